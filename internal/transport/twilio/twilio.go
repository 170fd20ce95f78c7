// Package twilio sends WhatsApp messages through the Twilio REST API.
package twilio

import (
	"context"
	"fmt"
	"strings"

	twiliogo "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"avisobot/internal/transport"
	"avisobot/pkg/logx"
)

type Config struct {
	AccountSID string // usually from TWILIO_ACCOUNT_SID
	AuthToken  string // usually from TWILIO_AUTH_TOKEN
	From       string // sandbox default: "whatsapp:+14155238886"
}

type Sender struct {
	client *twiliogo.RestClient
	from   string
	log    logx.Logger
}

var _ transport.Sender = (*Sender)(nil)

// New builds the sender. Missing credentials are not an error here: the
// daemon may legitimately run webhook-only. Send then reports
// transport.ErrMisconfigured, which aborts a dispatch run cleanly.
func New(cfg Config, log logx.Logger) *Sender {
	s := &Sender{from: strings.TrimSpace(cfg.From), log: log}
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		s.client = twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
	}
	return s
}

func (s *Sender) Send(ctx context.Context, contact, body string) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("%w: twilio credentials not set", transport.ErrMisconfigured)
	}
	if s.from == "" {
		return "", fmt.Errorf("%w: twilio from number not set", transport.ErrMisconfigured)
	}

	params := &openapi.CreateMessageParams{}
	params.SetFrom(s.from)
	params.SetTo(contact)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", &transport.DeliveryError{Contact: contact, Err: err}
	}
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	s.log.Debug("whatsapp message sent", logx.String("to", contact), logx.String("sid", sid))
	return sid, nil
}
