package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"avisobot/pkg/logx"
)

type stubHandler struct {
	lastContact string
	lastBody    string
	reply       string
}

func (s *stubHandler) HandleInbound(_ context.Context, contact, body string) string {
	s.lastContact = contact
	s.lastBody = body
	return s.reply
}

func newTestServer(h Handler) *Server {
	return New(Config{Addr: ":0"}, h, logx.Nop())
}

func postForm(t *testing.T, s *Server, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func TestInboundRepliesTwiML(t *testing.T) {
	t.Parallel()
	h := &stubHandler{reply: "¡Hola! Te acabo de registrar."}
	s := newTestServer(h)

	rec := postForm(t, s, url.Values{
		"From": {"whatsapp:+51999999999"},
		"Body": {"hola"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if h.lastContact != "whatsapp:+51999999999" || h.lastBody != "hola" {
		t.Fatalf("handler saw %q / %q", h.lastContact, h.lastBody)
	}
	got := rec.Body.String()
	if !strings.Contains(got, "<Response>") || !strings.Contains(got, "<Message>¡Hola! Te acabo de registrar.</Message>") {
		t.Fatalf("body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "xml") {
		t.Fatalf("content type = %q", ct)
	}
}

func TestInboundMissingFrom(t *testing.T) {
	t.Parallel()
	h := &stubHandler{reply: "never"}
	s := newTestServer(h)

	rec := postForm(t, s, url.Values{"Body": {"hola"}})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if h.lastBody != "" {
		t.Fatal("handler invoked without From")
	}
}

func TestInboundEmptyBodyStillDelivered(t *testing.T) {
	t.Parallel()
	h := &stubHandler{reply: "Envía *MENU* para ver tus opciones."}
	s := newTestServer(h)

	rec := postForm(t, s, url.Values{"From": {"whatsapp:+51999999999"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if h.lastContact == "" {
		t.Fatal("handler not invoked for empty body")
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	s := newTestServer(&stubHandler{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Body.String() != "avisobot OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
}
