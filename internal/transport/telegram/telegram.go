// Package telegram is a send-only adapter for students reachable at
// "telegram:<chat-id>" addresses instead of WhatsApp.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"avisobot/internal/transport"
	"avisobot/pkg/logx"
)

const contactPrefix = "telegram:"

type Config struct {
	Token string // usually from TELEGRAM_TOKEN
}

type Sender struct {
	bot *tele.Bot
	log logx.Logger
}

var _ transport.Sender = (*Sender)(nil)

// New builds the sender; a missing token yields a sender whose Send reports
// transport.ErrMisconfigured, mirroring the Twilio adapter.
func New(cfg Config, log logx.Logger) (*Sender, error) {
	s := &Sender{log: log}
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return s, nil
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: nil, // outbound only; inbound commands arrive over the webhook
		Client: nil,
		OnError: func(err error, _ tele.Context) {
			log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	s.bot = b
	return s, nil
}

func (s *Sender) Send(ctx context.Context, contact, body string) (string, error) {
	if s.bot == nil {
		return "", fmt.Errorf("%w: telegram token not set", transport.ErrMisconfigured)
	}
	raw := strings.TrimPrefix(strings.ToLower(contact), contactPrefix)
	chatID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", &transport.DeliveryError{Contact: contact, Err: errors.New("malformed telegram chat id")}
	}

	done := make(chan struct{})
	var (
		msg     *tele.Message
		sendErr error
	)
	go func() {
		defer close(done)
		msg, sendErr = s.bot.Send(&tele.Chat{ID: chatID}, body)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return "", &transport.DeliveryError{Contact: contact, Err: ctx.Err()}
	case <-time.After(30 * time.Second):
		return "", &transport.DeliveryError{Contact: contact, Err: errors.New("telegram send timed out")}
	}
	if sendErr != nil {
		return "", &transport.DeliveryError{Contact: contact, Err: sendErr}
	}
	s.log.Debug("telegram message sent", logx.String("to", contact), logx.Int("msg_id", msg.ID))
	return strconv.Itoa(msg.ID), nil
}
