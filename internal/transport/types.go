// Package transport defines the outbound messaging boundary. The dispatch
// loop only sees Sender; concrete providers (Twilio WhatsApp, Telegram, the
// dry-run logger) live in subpackages and are swappable via config.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrMisconfigured signals a configuration-level transport failure (missing
// credentials, unbuilt client). The dispatch loop aborts the whole run on it,
// since no send was actually attempted.
var ErrMisconfigured = errors.New("transport misconfigured")

// Sender delivers one message body to a contact address and returns the
// provider message id. Implementations own their timeouts and retries; the
// caller treats Send as a bounded synchronous call.
type Sender interface {
	Send(ctx context.Context, contact, body string) (string, error)
}

// DeliveryError wraps a provider-side failure for one contact. The reminder
// was attempted; per policy it is still marked as fired.
type DeliveryError struct {
	Contact string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Contact, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
