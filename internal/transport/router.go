package transport

import (
	"context"
	"fmt"
	"strings"
)

// Router picks a Sender by contact-address prefix ("whatsapp:", "telegram:").
// Prefix matching is longest-first insensitive to registration order.
type Router struct {
	routes map[string]Sender
}

func NewRouter() *Router {
	return &Router{routes: map[string]Sender{}}
}

// Register binds a contact prefix to a sender. Later registrations for the
// same prefix win.
func (r *Router) Register(prefix string, s Sender) {
	r.routes[strings.ToLower(prefix)] = s
}

func (r *Router) Send(ctx context.Context, contact, body string) (string, error) {
	var (
		best    string
		matched Sender
	)
	lc := strings.ToLower(contact)
	for prefix, s := range r.routes {
		if strings.HasPrefix(lc, prefix) && len(prefix) > len(best) {
			best = prefix
			matched = s
		}
	}
	if matched == nil {
		// One unroutable contact must not abort the whole run.
		return "", &DeliveryError{Contact: contact, Err: fmt.Errorf("no sender registered for this address")}
	}
	return matched.Send(ctx, contact, body)
}
