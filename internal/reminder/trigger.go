package reminder

import "time"

// DaysRemaining computes whole days from today until the exam date. Both are
// calendar dates at midnight UTC; callers supply today explicitly, this
// package never reads the wall clock for decision logic.
func DaysRemaining(today time.Time, ex Exam) int {
	return int(Midnight(ex.Date).Sub(Midnight(today)) / (24 * time.Hour))
}

// Due reports whether a reminder fires today for this exam under the resolved
// notice-set. Exact membership only: an offset missed because the scheduler
// skipped the day stays missed. Past exams never fire.
func Due(today time.Time, ex Exam, set NoticeSet) bool {
	days := DaysRemaining(today, ex)
	if days < 0 {
		return false
	}
	return set.Contains(days)
}

// InFiringWindow reports whether now, converted to the student's timezone,
// falls inside the configured local firing hour (hour:00–hour:59).
//
// An unknown timezone never crashes the loop; the gate is evaluated against
// fallback instead.
func InFiringWindow(now time.Time, tzName string, hour int, fallback *time.Location) bool {
	loc, err := time.LoadLocation(tzName)
	if err != nil || tzName == "" {
		loc = fallback
	}
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Hour() == hour
}
