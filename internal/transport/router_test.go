package transport

import (
	"context"
	"errors"
	"testing"
)

type recordSender struct {
	name string
	last string
}

func (r *recordSender) Send(_ context.Context, contact, _ string) (string, error) {
	r.last = contact
	return r.name, nil
}

func TestRouterPrefixDispatch(t *testing.T) {
	t.Parallel()
	wa := &recordSender{name: "wa"}
	tg := &recordSender{name: "tg"}
	r := NewRouter()
	r.Register("whatsapp:", wa)
	r.Register("telegram:", tg)

	id, err := r.Send(context.Background(), "whatsapp:+51999999999", "hola")
	if err != nil || id != "wa" {
		t.Fatalf("Send = %q, %v", id, err)
	}
	if wa.last != "whatsapp:+51999999999" {
		t.Fatalf("sender saw %q", wa.last)
	}

	if id, _ = r.Send(context.Background(), "telegram:12345", "hola"); id != "tg" {
		t.Fatalf("telegram routed to %q", id)
	}

	// Prefix match is case-insensitive on the contact side.
	if id, _ = r.Send(context.Background(), "WhatsApp:+51", "hola"); id != "wa" {
		t.Fatalf("mixed-case contact routed to %q", id)
	}
}

func TestRouterLongestPrefixWins(t *testing.T) {
	t.Parallel()
	short := &recordSender{name: "short"}
	long := &recordSender{name: "long"}
	r := NewRouter()
	r.Register("whatsapp:", short)
	r.Register("whatsapp:+1", long)

	if id, _ := r.Send(context.Background(), "whatsapp:+14155550100", "x"); id != "long" {
		t.Fatalf("routed to %q, want longest prefix", id)
	}
	if id, _ := r.Send(context.Background(), "whatsapp:+51999999999", "x"); id != "short" {
		t.Fatalf("routed to %q, want fallback prefix", id)
	}
}

func TestRouterUnroutableIsDeliveryError(t *testing.T) {
	t.Parallel()
	r := NewRouter()
	r.Register("whatsapp:", &recordSender{})

	_, err := r.Send(context.Background(), "sms:+51999999999", "hola")
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want DeliveryError", err)
	}
	if de.Contact != "sms:+51999999999" {
		t.Fatalf("DeliveryError contact = %q", de.Contact)
	}
	// Not a configuration failure: a dispatch run keeps going.
	if errors.Is(err, ErrMisconfigured) {
		t.Fatal("unroutable contact reported as misconfiguration")
	}
}
