package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"avisobot/internal/reminder"
	"avisobot/pkg/logx"
)

// Store is the mutation surface the interpreter needs. Every method applies
// one command atomically; the sqlite implementation lives in
// internal/storage.
type Store interface {
	FindStudent(ctx context.Context, contact string) (*reminder.Student, error)
	CreateStudent(ctx context.Context, contact, timezone string) (*reminder.Student, error)
	SetStudentDefaults(ctx context.Context, studentID int64, offsets reminder.NoticeSet, useDefaults bool) error
	SetUseDefaults(ctx context.Context, studentID int64, use bool) error
	AddExam(ctx context.Context, studentID int64, ex reminder.Exam) error
	SetExamNotices(ctx context.Context, studentID int64, course string, offsets reminder.NoticeSet) error
	SetExamDate(ctx context.Context, studentID int64, course string, date time.Time) error
	DeleteExam(ctx context.Context, studentID int64, course string) error
}

// Config carries the interpreter tunables.
type Config struct {
	Limits          reminder.Limits
	DefaultTimezone string // assigned to students auto-registered on first contact
}

// Handler turns one inbound chat line into one reply, mutating the student's
// configuration through Store. Concurrent calls for different students are
// independent; calls for the same contact serialize on a per-contact mutex.
type Handler struct {
	store Store
	log   logx.Logger

	cfgMu sync.Mutex
	cfg   Config

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewHandler(store Store, cfg Config, log logx.Logger) *Handler {
	if cfg.Limits.MaxCount == 0 {
		cfg.Limits = reminder.DefaultLimits()
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "America/Lima"
	}
	return &Handler{store: store, cfg: cfg, log: log, locks: map[string]*sync.Mutex{}}
}

// Apply swaps tunables at runtime (config reload).
func (h *Handler) Apply(cfg Config) {
	if cfg.Limits.MaxCount == 0 {
		cfg.Limits = reminder.DefaultLimits()
	}
	h.cfgMu.Lock()
	h.cfg = cfg
	h.cfgMu.Unlock()
}

func (h *Handler) config() Config {
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	return h.cfg
}

func (h *Handler) contactLock(contact string) *sync.Mutex {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	mu, ok := h.locks[contact]
	if !ok {
		mu = &sync.Mutex{}
		h.locks[contact] = mu
	}
	return mu
}

// HandleInbound processes one webhook message and returns the reply text.
// All side effects go through Store; failures surface as reply strings, never
// as errors reaching the HTTP layer.
func (h *Handler) HandleInbound(ctx context.Context, contact, body string) string {
	contact = strings.TrimSpace(contact)
	body = strings.TrimSpace(body)
	cfg := h.config()

	mu := h.contactLock(contact)
	mu.Lock()
	defer mu.Unlock()

	st, err := h.store.FindStudent(ctx, contact)
	if errors.Is(err, reminder.ErrStudentNotFound) {
		if _, err := h.store.CreateStudent(ctx, contact, cfg.DefaultTimezone); err != nil {
			h.log.Error("auto-registration failed", logx.String("contact", contact), logx.Err(err))
			return replyInternal
		}
		return replyWelcome
	}
	if err != nil {
		h.log.Error("student lookup failed", logx.String("contact", contact), logx.Err(err))
		return replyInternal
	}

	if body == "" {
		return replyEmpty
	}

	intent, err := Parse(body, cfg.Limits)
	if err != nil {
		var re *ReplyError
		if errors.As(err, &re) {
			return re.Text
		}
		return replyInternal
	}
	return h.apply(ctx, cfg, st, intent)
}

func (h *Handler) apply(ctx context.Context, cfg Config, st *reminder.Student, intent Intent) string {
	switch in := intent.(type) {
	case ShowMenu:
		return helpText()

	case ListExams:
		return renderExamList(st, cfg.Limits)

	case SetDefaults:
		if err := h.store.SetStudentDefaults(ctx, st.ID, in.Offsets, true); err != nil {
			return h.internal(st.Contact, "SET GLOBALES", err)
		}
		return fmt.Sprintf("✅ Avisos globales guardados: %s\nSe aplicarán a todos tus cursos.", in.Offsets)

	case ToggleDefaults:
		if err := h.store.SetUseDefaults(ctx, st.ID, in.Enable); err != nil {
			return h.internal(st.Contact, "USAR GLOBALES", err)
		}
		if in.Enable {
			return replyUseOn
		}
		return replyUseOff

	case SetCourseOverride:
		err := h.store.SetExamNotices(ctx, st.ID, in.Course, in.Offsets)
		if errors.Is(err, reminder.ErrExamNotFound) {
			return courseNotFound(in.Course)
		}
		if err != nil {
			return h.internal(st.Contact, "SET CURSO", err)
		}
		return fmt.Sprintf("✅ Avisos del curso *%s* actualizados a: %s", in.Course, in.Offsets)

	case AddExam:
		err := h.store.AddExam(ctx, st.ID, reminder.Exam{Course: in.Course, Date: in.Date, Notices: in.Offsets})
		if errors.Is(err, reminder.ErrDuplicateCourse) {
			return fmt.Sprintf("❌ Ya existe un examen para el curso '%s'. Usa CAMBIAR FECHA o SET CURSO.", in.Course)
		}
		if err != nil {
			return h.internal(st.Contact, "AGREGAR EXAMEN", err)
		}
		notices := "(usará globales/default)"
		if len(in.Offsets) > 0 {
			notices = in.Offsets.String()
		}
		return fmt.Sprintf("✅ Examen agregado: *%s* el %s (avisos: %s)",
			in.Course, in.Date.Format(reminder.DateLayout), notices)

	case ChangeDate:
		err := h.store.SetExamDate(ctx, st.ID, in.Course, in.Date)
		if errors.Is(err, reminder.ErrExamNotFound) {
			return courseNotFound(in.Course)
		}
		if err != nil {
			return h.internal(st.Contact, "CAMBIAR FECHA", err)
		}
		return fmt.Sprintf("✅ Fecha actualizada para *%s*: %s", in.Course, in.Date.Format(reminder.DateLayout))

	case DeleteExam:
		err := h.store.DeleteExam(ctx, st.ID, in.Course)
		if errors.Is(err, reminder.ErrExamNotFound) {
			return courseNotFound(in.Course)
		}
		if err != nil {
			return h.internal(st.Contact, "ELIMINAR EXAMEN", err)
		}
		return fmt.Sprintf("✅ Examen eliminado: *%s*", in.Course)

	default:
		return replyUnknown
	}
}

func (h *Handler) internal(contact, op string, err error) string {
	h.log.Error("command failed", logx.String("contact", contact), logx.String("op", op), logx.Err(err))
	return replyInternal
}
