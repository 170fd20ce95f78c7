package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"avisobot/internal/reminder"
	"avisobot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// DB is the SQLite-backed store. It satisfies reminder.Store and
// command.Store.
type DB struct {
	db  *sql.DB
	log logx.Logger
}

// Open creates/migrates the database file and returns the store.
func Open(cfg Config, log logx.Logger) (*DB, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	s := &DB{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DB) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *DB) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Students ----

func (s *DB) FindStudent(ctx context.Context, contact string) (*reminder.Student, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, contact, timezone, default_notices, use_defaults FROM students WHERE contact = ?`,
		contact)
	st, err := scanStudent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reminder.ErrStudentNotFound
	}
	if err != nil {
		return nil, err
	}
	if st.Exams, err = s.loadExams(ctx, st.ID); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *DB) CreateStudent(ctx context.Context, contact, timezone string) (*reminder.Student, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO students(contact, timezone) VALUES(?, ?)`,
		contact, timezone)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	s.log.Info("student registered", logx.String("contact", contact), logx.String("tz", timezone))
	return &reminder.Student{
		ID:          id,
		Contact:     contact,
		Timezone:    timezone,
		Defaults:    reminder.DefaultOffsets(),
		UseDefaults: true,
	}, nil
}

func (s *DB) ListStudents(ctx context.Context) ([]reminder.Student, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contact, timezone, default_notices, use_defaults FROM students ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Exams, err = s.loadExams(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *DB) SetStudentDefaults(ctx context.Context, studentID int64, offsets reminder.NoticeSet, useDefaults bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET default_notices = ?, use_defaults = ? WHERE id = ?`,
		encodeNotices(offsets), boolInt(useDefaults), studentID)
	if err != nil {
		return err
	}
	return requireRow(res, reminder.ErrStudentNotFound)
}

func (s *DB) SetUseDefaults(ctx context.Context, studentID int64, use bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE students SET use_defaults = ? WHERE id = ?`, boolInt(use), studentID)
	if err != nil {
		return err
	}
	return requireRow(res, reminder.ErrStudentNotFound)
}

// ---- Exams ----

func (s *DB) AddExam(ctx context.Context, studentID int64, ex reminder.Exam) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM exams WHERE student_id = ? AND course = ?`,
			studentID, ex.Course).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return reminder.ErrDuplicateCourse
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO exams(student_id, course, exam_date, notices) VALUES(?,?,?,?)`,
			studentID, ex.Course, ex.Date.Format(reminder.DateLayout), encodeNotices(ex.Notices))
		return err
	})
}

// SetExamNotices stores a per-course override and flips the student to
// per-course mode in the same transaction.
func (s *DB) SetExamNotices(ctx context.Context, studentID int64, course string, offsets reminder.NoticeSet) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE exams SET notices = ? WHERE student_id = ? AND course = ?`,
			encodeNotices(offsets), studentID, course)
		if err != nil {
			return err
		}
		if err := requireRow(res, reminder.ErrExamNotFound); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE students SET use_defaults = 0 WHERE id = ?`, studentID)
		return err
	})
}

func (s *DB) SetExamDate(ctx context.Context, studentID int64, course string, date time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exams SET exam_date = ? WHERE student_id = ? AND course = ?`,
		date.Format(reminder.DateLayout), studentID, course)
	if err != nil {
		return err
	}
	return requireRow(res, reminder.ErrExamNotFound)
}

func (s *DB) RenameExam(ctx context.Context, studentID int64, course, newCourse string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM exams WHERE student_id = ? AND course = ?`,
			studentID, newCourse).Scan(&n); err != nil {
			return err
		}
		if n > 0 {
			return reminder.ErrDuplicateCourse
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE exams SET course = ? WHERE student_id = ? AND course = ?`,
			newCourse, studentID, course)
		if err != nil {
			return err
		}
		return requireRow(res, reminder.ErrExamNotFound)
	})
}

func (s *DB) DeleteExam(ctx context.Context, studentID int64, course string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM exams WHERE student_id = ? AND course = ?`, studentID, course)
	if err != nil {
		return err
	}
	return requireRow(res, reminder.ErrExamNotFound)
}

// CopyNoticesToAll copies one course's override to every exam of the student
// and flips the student to per-course mode.
func (s *DB) CopyNoticesToAll(ctx context.Context, studentID int64, course string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT notices FROM exams WHERE student_id = ? AND course = ?`,
			studentID, course).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return reminder.ErrExamNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE exams SET notices = ? WHERE student_id = ?`, raw, studentID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE students SET use_defaults = 0 WHERE id = ?`, studentID)
		return err
	})
}

func (s *DB) loadExams(ctx context.Context, studentID int64) ([]reminder.Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, course, exam_date, notices FROM exams WHERE student_id = ? ORDER BY id`,
		studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Exam
	for rows.Next() {
		var (
			ex      reminder.Exam
			rawDate string
			rawSet  string
		)
		if err := rows.Scan(&ex.ID, &ex.Course, &rawDate, &rawSet); err != nil {
			return nil, err
		}
		d, err := reminder.ParseDate(rawDate)
		if err != nil {
			// A malformed date row must not take the whole student down.
			s.log.Warn("skipping exam with malformed date",
				logx.Int64("student_id", studentID), logx.String("course", ex.Course), logx.String("date", rawDate))
			continue
		}
		ex.Date = d
		ex.Notices = decodeNotices(rawSet)
		out = append(out, ex)
	}
	return out, rows.Err()
}

// ---- Dedup ledger ----

func (s *DB) LedgerHasFired(ctx context.Context, k reminder.LedgerKey) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger WHERE contact = ? AND course = ? AND exam_date = ? AND fired_on = ?`,
		k.Contact, k.Course, k.ExamDate.Format(reminder.DateLayout), k.FiredOn.Format(reminder.DateLayout),
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LedgerMarkFired is idempotent: marking an already-marked key is a no-op.
// INSERT OR IGNORE doubles as the per-key check-and-set under concurrent runs.
func (s *DB) LedgerMarkFired(ctx context.Context, k reminder.LedgerKey) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO ledger(contact, course, exam_date, fired_on) VALUES(?,?,?,?)`,
		k.Contact, k.Course, k.ExamDate.Format(reminder.DateLayout), k.FiredOn.Format(reminder.DateLayout))
	return err
}

// ---- helpers ----

func (s *DB) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(r rowScanner) (*reminder.Student, error) {
	var (
		st  reminder.Student
		raw string
		use int
	)
	if err := r.Scan(&st.ID, &st.Contact, &st.Timezone, &raw, &use); err != nil {
		return nil, err
	}
	st.Defaults = decodeNotices(raw)
	st.UseDefaults = use != 0
	return &st, nil
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
