package reminder

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"avisobot/internal/transport"
	"avisobot/pkg/logx"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still iterating. Periodic cadence treats it as "skip this tick".
var ErrRunInProgress = errors.New("dispatch run already in progress")

// Store is the read side of persistence the dispatch loop needs. The sqlite
// implementation lives in internal/storage.
type Store interface {
	ListStudents(ctx context.Context) ([]Student, error)
	LedgerHasFired(ctx context.Context, k LedgerKey) (bool, error)
	LedgerMarkFired(ctx context.Context, k LedgerKey) error
}

// Config carries the dispatch tunables. Everything here can be changed at
// runtime through Apply (config hot reload).
type Config struct {
	FireHour        int    // local hour gate for periodic runs
	DefaultTimezone string // fallback for unknown student zones
	Limits          Limits
	RatePerSec      int // outbound send rate; <=0 means unlimited
}

// RunOptions selects the reference date and mode for one run.
type RunOptions struct {
	Today          time.Time // reference calendar date
	Now            time.Time // instant used by the local-hour gate
	BypassHourGate bool      // on-demand runs skip the gate
}

// Report summarizes one dispatch run.
type Report struct {
	Students int
	Due      int
	Sent     int
	Deduped  int
	Failures int
}

// Dispatcher walks all students/exams and sends due reminders at most once
// per (student, course, exam date, day). Safe for concurrent use; overlapping
// runs are rejected rather than interleaved.
type Dispatcher struct {
	store  Store
	sender transport.Sender
	quotes QuoteSource
	log    logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	runMu sync.Mutex
}

func NewDispatcher(store Store, sender transport.Sender, quotes QuoteSource, cfg Config, log logx.Logger) *Dispatcher {
	d := &Dispatcher{store: store, sender: sender, quotes: quotes, log: log}
	d.Apply(cfg)
	return d
}

// Apply swaps the dispatch tunables at runtime. Safe to call concurrently
// with runs; a run in flight keeps the snapshot it started with.
func (d *Dispatcher) Apply(cfg Config) {
	if cfg.Limits.MaxCount == 0 {
		cfg.Limits = DefaultLimits()
	}
	d.mu.Lock()
	d.cfg = cfg
	if cfg.RatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	} else {
		d.limiter = nil
	}
	d.mu.Unlock()
}

// RunPeriodic is the cron entry point: today and now come from the wall
// clock, the local-hour gate applies.
func (d *Dispatcher) RunPeriodic(ctx context.Context) (Report, error) {
	now := time.Now()
	return d.Run(ctx, RunOptions{Today: Midnight(now), Now: now})
}

// Run executes one dispatch pass. On-demand callers inject the date and
// bypass the hour gate; due/not-due decisions are otherwise identical to the
// periodic mode.
func (d *Dispatcher) Run(ctx context.Context, opt RunOptions) (Report, error) {
	if !d.runMu.TryLock() {
		return Report{}, ErrRunInProgress
	}
	defer d.runMu.Unlock()

	d.mu.Lock()
	cfg := d.cfg
	limiter := d.limiter
	d.mu.Unlock()

	fallback, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		fallback = time.UTC
	}

	var rep Report
	students, err := d.store.ListStudents(ctx)
	if err != nil {
		return rep, err
	}
	rep.Students = len(students)

	today := Midnight(opt.Today)
	log := d.log.With(logx.Time("today", today), logx.Bool("gate", !opt.BypassHourGate))
	log.Debug("dispatch run started", logx.Int("students", len(students)))

	for _, st := range students {
		if !opt.BypassHourGate && !InFiringWindow(opt.Now, st.Timezone, cfg.FireHour, fallback) {
			continue
		}
		if err := d.runStudent(ctx, &rep, cfg, limiter, today, st); err != nil {
			// Configuration-level transport errors abort the whole run:
			// nothing was attempted, nothing has been marked.
			if errors.Is(err, transport.ErrMisconfigured) {
				log.Error("dispatch aborted", logx.Err(err))
				return rep, err
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return rep, err
			}
			// Anything else stays isolated to this student.
			rep.Failures++
			log.Error("student dispatch failed", logx.String("contact", st.Contact), logx.Err(err))
		}
	}

	log.Info("dispatch run finished",
		logx.Int("due", rep.Due), logx.Int("sent", rep.Sent),
		logx.Int("deduped", rep.Deduped), logx.Int("failures", rep.Failures))
	return rep, nil
}

func (d *Dispatcher) runStudent(ctx context.Context, rep *Report, cfg Config, limiter *rate.Limiter, today time.Time, st Student) error {
	for _, ex := range st.Exams {
		set, _ := Resolve(st, ex, cfg.Limits)
		if !Due(today, ex, set) {
			continue
		}
		rep.Due++

		key := LedgerKey{Contact: st.Contact, Course: ex.Course, ExamDate: Midnight(ex.Date), FiredOn: today}
		fired, err := d.store.LedgerHasFired(ctx, key)
		if err != nil {
			return err
		}
		if fired {
			rep.Deduped++
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		body := RenderReminder(ex.Course, DaysRemaining(today, ex), ex.Date, d.quotes.Pick())
		_, sendErr := d.sender.Send(ctx, st.Contact, body)
		if errors.Is(sendErr, transport.ErrMisconfigured) {
			return sendErr
		}
		if sendErr != nil {
			// Delivery failed but the send was attempted. No retry; the
			// ledger is still marked so the day is not re-sent.
			rep.Failures++
			d.log.Warn("reminder delivery failed",
				logx.String("contact", st.Contact), logx.String("course", ex.Course), logx.Err(sendErr))
		} else {
			rep.Sent++
		}
		if err := d.store.LedgerMarkFired(ctx, key); err != nil {
			return err
		}
	}
	return nil
}
