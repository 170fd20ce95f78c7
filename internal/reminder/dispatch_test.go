package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"avisobot/internal/transport"
	"avisobot/pkg/logx"
)

func testLogger() logx.Logger { return logx.Nop() }

type memStore struct {
	mu       sync.Mutex
	students []Student
	fired    map[LedgerKey]bool
}

func newMemStore(students ...Student) *memStore {
	return &memStore{students: students, fired: map[LedgerKey]bool{}}
}

func (m *memStore) ListStudents(context.Context) ([]Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Student(nil), m.students...), nil
}

func (m *memStore) LedgerHasFired(_ context.Context, k LedgerKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired[k], nil
}

func (m *memStore) LedgerMarkFired(_ context.Context, k LedgerKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fired[k] = true
	return nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string // bodies, one per attempt
	to   []string
	err  error
}

func (f *fakeSender) Send(_ context.Context, contact, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.to = append(f.to, contact)
	f.sent = append(f.sent, body)
	return "msg-1", nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.to)
}

type fixedQuote string

func (q fixedQuote) Pick() string { return string(q) }

func newTestDispatcher(store Store, sender transport.Sender) *Dispatcher {
	return NewDispatcher(store, sender, fixedQuote("Sigue adelante."), Config{
		FireHour:        8,
		DefaultTimezone: "America/Lima",
		Limits:          DefaultLimits(),
	}, testLogger())
}

func testStudent(contact string, exams ...Exam) Student {
	return Student{
		Contact:     contact,
		Timezone:    "America/Lima",
		Defaults:    NoticeSet{30, 20, 10, 5},
		UseDefaults: true,
		Exams:       exams,
	}
}

func onDemand(t *testing.T, today string) RunOptions {
	t.Helper()
	d, err := ParseDate(today)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	return RunOptions{Today: d, Now: d, BypassHourGate: true}
}

func TestDispatchSendsDueReminderOnce(t *testing.T) {
	t.Parallel()
	exam := Exam{Course: "Física", Date: mustDate(t, "2025-08-15"), Notices: NoticeSet{10, 5}}
	store := newMemStore(testStudent("whatsapp:+51999999999", exam))
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	rep, err := d.Run(context.Background(), onDemand(t, "2025-08-05"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Sent != 1 || rep.Due != 1 {
		t.Fatalf("report = %+v, want one due, one sent", rep)
	}

	// Second run on the same day: deduped, no second transport call.
	rep, err = d.Run(context.Background(), onDemand(t, "2025-08-05"))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.Deduped != 1 || rep.Sent != 0 {
		t.Fatalf("second report = %+v, want dedup only", rep)
	}
	if sender.count() != 1 {
		t.Fatalf("sends = %d, want exactly 1", sender.count())
	}
}

func TestDispatchNotDueDays(t *testing.T) {
	t.Parallel()
	exam := Exam{Course: "Física", Date: mustDate(t, "2025-08-15"), Notices: NoticeSet{10, 5}}
	for _, today := range []string{"2025-08-04", "2025-08-06", "2025-08-16"} {
		store := newMemStore(testStudent("whatsapp:+51999999999", exam))
		sender := &fakeSender{}
		d := newTestDispatcher(store, sender)
		rep, err := d.Run(context.Background(), onDemand(t, today))
		if err != nil {
			t.Fatalf("Run(%s): %v", today, err)
		}
		if rep.Sent != 0 {
			t.Fatalf("Run(%s) sent %d, want 0", today, rep.Sent)
		}
	}
}

func TestDispatchHourGate(t *testing.T) {
	t.Parallel()
	// Exam 20 days out, student defaults (30,20,10,5), Lima (UTC-5).
	exam := Exam{Course: "Historia", Date: mustDate(t, "2025-08-25")}
	store := newMemStore(testStudent("whatsapp:+51999999999", exam))
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	run := func(now time.Time) Report {
		rep, err := d.Run(context.Background(), RunOptions{Today: Midnight(now), Now: now})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return rep
	}

	// 13:05 UTC = 08:05 local on D-20: exactly one send.
	if rep := run(time.Date(2025, 8, 5, 13, 5, 0, 0, time.UTC)); rep.Sent != 1 {
		t.Fatalf("in-window run sent %d, want 1", rep.Sent)
	}
	// 19:00 UTC = 14:00 local the same day: the gate holds.
	if rep := run(time.Date(2025, 8, 5, 19, 0, 0, 0, time.UTC)); rep.Sent != 0 {
		t.Fatal("hour gate did not hold")
	}
	// Next day 08:xx local: D-19 is not in the notice-set.
	if rep := run(time.Date(2025, 8, 6, 13, 5, 0, 0, time.UTC)); rep.Sent != 0 {
		t.Fatal("sent on a non-member day")
	}
	if sender.count() != 1 {
		t.Fatalf("total sends = %d, want 1", sender.count())
	}
}

func TestDispatchModesAgree(t *testing.T) {
	t.Parallel()
	exam := Exam{Course: "Química", Date: mustDate(t, "2025-08-25")}
	now := time.Date(2025, 8, 5, 13, 5, 0, 0, time.UTC) // 08:05 Lima, D-20

	periodic := newMemStore(testStudent("whatsapp:+51", exam))
	sGate := &fakeSender{}
	repGate, err := newTestDispatcher(periodic, sGate).Run(context.Background(),
		RunOptions{Today: Midnight(now), Now: now})
	if err != nil {
		t.Fatalf("periodic run: %v", err)
	}

	demand := newMemStore(testStudent("whatsapp:+51", exam))
	sDemand := &fakeSender{}
	repDemand, err := newTestDispatcher(demand, sDemand).Run(context.Background(),
		RunOptions{Today: Midnight(now), Now: now, BypassHourGate: true})
	if err != nil {
		t.Fatalf("on-demand run: %v", err)
	}

	if repGate.Sent != repDemand.Sent || repGate.Due != repDemand.Due {
		t.Fatalf("mode mismatch: periodic %+v vs on-demand %+v", repGate, repDemand)
	}
}

func TestDispatchMisconfiguredAbortsWithoutMarking(t *testing.T) {
	t.Parallel()
	exam := Exam{Course: "Física", Date: mustDate(t, "2025-08-15"), Notices: NoticeSet{10}}
	store := newMemStore(testStudent("whatsapp:+51999999999", exam))
	bad := &fakeSender{err: fmt.Errorf("%w: twilio credentials not set", transport.ErrMisconfigured)}
	d := newTestDispatcher(store, bad)

	if _, err := d.Run(context.Background(), onDemand(t, "2025-08-05")); !errors.Is(err, transport.ErrMisconfigured) {
		t.Fatalf("expected misconfigured abort, got %v", err)
	}
	if len(store.fired) != 0 {
		t.Fatal("ledger marked despite aborted run")
	}

	// Once credentials exist the same reminder goes out.
	good := &fakeSender{}
	rep, err := newTestDispatcher(store, good).Run(context.Background(), onDemand(t, "2025-08-05"))
	if err != nil {
		t.Fatalf("recovered run: %v", err)
	}
	if rep.Sent != 1 {
		t.Fatalf("recovered run sent %d, want 1", rep.Sent)
	}
}

func TestDispatchDeliveryFailureStillMarks(t *testing.T) {
	t.Parallel()
	exam := Exam{Course: "Física", Date: mustDate(t, "2025-08-15"), Notices: NoticeSet{10}}
	store := newMemStore(testStudent("whatsapp:+51999999999", exam))
	flaky := &fakeSender{err: &transport.DeliveryError{Contact: "whatsapp:+51999999999", Err: errors.New("provider 500")}}
	d := newTestDispatcher(store, flaky)

	rep, err := d.Run(context.Background(), onDemand(t, "2025-08-05"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failures != 1 || rep.Sent != 0 {
		t.Fatalf("report = %+v, want one failure", rep)
	}

	// The attempt is marked: no resend that day, even with a healthy sender.
	healthy := &fakeSender{}
	rep, err = newTestDispatcher(store, healthy).Run(context.Background(), onDemand(t, "2025-08-05"))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.Deduped != 1 || healthy.count() != 0 {
		t.Fatalf("failed send was not suppressed: %+v, sends=%d", rep, healthy.count())
	}
}

func TestDispatchStudentIsolation(t *testing.T) {
	t.Parallel()
	// The first student's exams are unroutable; the second still gets mail.
	broken := testStudent("carrierpigeon:12",
		Exam{Course: "Física", Date: mustDate(t, "2025-08-15"), Notices: NoticeSet{10}})
	ok := testStudent("whatsapp:+51888888888",
		Exam{Course: "Química", Date: mustDate(t, "2025-08-15"), Notices: NoticeSet{10}})
	store := newMemStore(broken, ok)

	router := transport.NewRouter()
	inner := &fakeSender{}
	router.Register("whatsapp:", inner)

	rep, err := newTestDispatcher(store, router).Run(context.Background(), onDemand(t, "2025-08-05"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Sent != 1 || rep.Failures != 1 {
		t.Fatalf("report = %+v, want 1 sent / 1 failure", rep)
	}
}

func TestDispatchMessageBody(t *testing.T) {
	t.Parallel()
	exam := Exam{Course: "Física", Date: mustDate(t, "2025-08-15"), Notices: NoticeSet{10}}
	store := newMemStore(testStudent("whatsapp:+51999999999", exam))
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender)

	if _, err := d.Run(context.Background(), onDemand(t, "2025-08-05")); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := "📢 *Recordatorio de examen*\n\n" +
		"Hola! Tu examen de *Física* es en *10* día(s) (fecha: 2025-08-15).\n\n" +
		"Es un buen momento para organizar tu estudio. 💪\n" +
		"Frase: Sigue adelante."
	if len(sender.sent) != 1 || sender.sent[0] != want {
		t.Fatalf("body mismatch:\n got: %q\nwant: %q", strings.Join(sender.sent, "|"), want)
	}
}

func TestQuoteSourceSeeded(t *testing.T) {
	t.Parallel()
	pool := []string{"a", "b", "c", "d"}
	q1 := NewQuoteSource(pool, 42)
	q2 := NewQuoteSource(pool, 42)
	for i := 0; i < 16; i++ {
		if q1.Pick() != q2.Pick() {
			t.Fatal("same seed produced diverging sequences")
		}
	}
}
