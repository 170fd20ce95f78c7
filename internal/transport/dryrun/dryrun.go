// Package dryrun logs messages instead of sending them. It is a complete,
// valid implementation of transport.Sender used by default until real
// credentials are configured, and by tests.
package dryrun

import (
	"context"
	"sync"

	"avisobot/internal/transport"
	"avisobot/pkg/logx"
)

// MessageID is returned for every simulated send.
const MessageID = "SIMULADO"

type Sender struct {
	log logx.Logger

	mu   sync.Mutex
	sent []Message
}

// Message records one simulated delivery.
type Message struct {
	Contact string
	Body    string
}

var _ transport.Sender = (*Sender)(nil)

func New(log logx.Logger) *Sender {
	return &Sender{log: log}
}

func (s *Sender) Send(_ context.Context, contact, body string) (string, error) {
	s.mu.Lock()
	s.sent = append(s.sent, Message{Contact: contact, Body: body})
	s.mu.Unlock()
	s.log.Info("[SIMULADO] mensaje", logx.String("to", contact), logx.String("body", body))
	return MessageID, nil
}

// Sent returns a copy of everything delivered so far.
func (s *Sender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
