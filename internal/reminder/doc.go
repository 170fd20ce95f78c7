// Package reminder implements the exam reminder engine: the canonical
// notice-set representation, the per-exam/per-student precedence rules,
// the day/hour trigger evaluation and the dispatch loop that turns due
// reminders into outbound messages exactly once per day.
package reminder
