// Package storage persists students, exams and the reminder dedup ledger in
// SQLite (modernc.org/sqlite, no cgo).
//
// The comma-joined textual form of notice-sets exists only here, in the
// encode/decode step; everything above this package works with []int.
package storage
