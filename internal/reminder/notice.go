package reminder

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Built-in bounds for notice offsets. A Limits value carries the effective
// (possibly reconfigured) bounds through the engine.
const (
	DefaultMinOffset = 5
	DefaultMaxOffset = 30
	DefaultMaxCount  = 4
)

// DefaultOffsets is the fallback sequence applied when a student has nothing
// configured, or when normalization filters everything out.
func DefaultOffsets() NoticeSet { return NoticeSet{30, 20, 10, 5} }

// NoticeSet is a canonical sequence of day-offsets before an exam date:
// strictly descending, deduplicated, bounded in length and range.
type NoticeSet []int

// Limits bounds notice-set normalization.
type Limits struct {
	MinOffset int
	MaxOffset int
	MaxCount  int
	Default   NoticeSet
}

func DefaultLimits() Limits {
	return Limits{
		MinOffset: DefaultMinOffset,
		MaxOffset: DefaultMaxOffset,
		MaxCount:  DefaultMaxCount,
		Default:   DefaultOffsets(),
	}
}

// Canonical filters days to [MinOffset,MaxOffset], deduplicates, sorts
// descending and keeps the MaxCount largest survivors. An empty result is a
// policy decision, not an error: the configured default sequence is returned.
func (l Limits) Canonical(days []int) NoticeSet {
	seen := make(map[int]bool, len(days))
	out := make(NoticeSet, 0, len(days))
	for _, d := range days {
		if d < l.MinOffset || d > l.MaxOffset || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	if len(out) == 0 {
		return append(NoticeSet(nil), l.Default...)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(out)))
	if len(out) > l.MaxCount {
		out = out[:l.MaxCount]
	}
	return out
}

// Normalize parses tokens leniently: non-numeric tokens are dropped, the rest
// goes through Canonical.
func (l Limits) Normalize(tokens []string) NoticeSet {
	days := make([]int, 0, len(tokens))
	for _, t := range tokens {
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			continue
		}
		days = append(days, n)
	}
	return l.Canonical(days)
}

// NormalizeStrict parses tokens like Normalize but fails on the first
// unparseable token. Used where the input is an explicit operator argument
// rather than free chat text.
func (l Limits) NormalizeStrict(tokens []string) (NoticeSet, error) {
	days := make([]int, 0, len(tokens))
	for _, t := range tokens {
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return nil, fmt.Errorf("invalid notice day %q: must be an integer", t)
		}
		days = append(days, n)
	}
	return l.Canonical(days), nil
}

// Equal reports whether two canonical notice-sets are the same sequence.
func (s NoticeSet) Equal(o NoticeSet) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Contains reports exact membership of days.
func (s NoticeSet) Contains(days int) bool {
	for _, d := range s {
		if d == days {
			return true
		}
	}
	return false
}

// String renders "30,20,10,5". Display only; the storage codec owns the
// persisted comma form.
func (s NoticeSet) String() string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
