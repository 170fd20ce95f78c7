package reminder

import (
	"errors"
	"time"
)

var (
	ErrStudentNotFound = errors.New("student not found")
	ErrExamNotFound    = errors.New("exam not found")
	ErrDuplicateCourse = errors.New("course already exists")
)

// DateLayout is the wire/storage format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date (midnight UTC).
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Midnight truncates t to its calendar date in UTC, so day arithmetic
// stays exact regardless of where t came from.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Student is one registered contact with its reminder configuration.
type Student struct {
	ID          int64
	Contact     string // e.g. "whatsapp:+51999999999" or "telegram:123456"
	Timezone    string // IANA name
	Defaults    NoticeSet
	UseDefaults bool
	Exams       []Exam
}

// Exam belongs to exactly one student. Course is unique per student.
type Exam struct {
	ID      int64
	Course  string
	Date    time.Time // calendar date, midnight UTC
	Notices NoticeSet // per-exam override; empty means "defer to precedence"
}

// LedgerKey identifies one (student, course, exam date, calendar day)
// reminder in the dedup ledger.
type LedgerKey struct {
	Contact  string
	Course   string
	ExamDate time.Time
	FiredOn  time.Time
}
