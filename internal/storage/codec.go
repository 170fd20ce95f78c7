package storage

import (
	"strconv"
	"strings"

	"avisobot/internal/reminder"
)

// encodeNotices renders the persisted comma form ("30,20,10,5"; "" for none).
func encodeNotices(s reminder.NoticeSet) string {
	if len(s) == 0 {
		return ""
	}
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// decodeNotices parses the persisted comma form. Tolerant of stray spaces and
// junk segments left behind by older writers.
func decodeNotices(raw string) reminder.NoticeSet {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out reminder.NoticeSet
	for _, seg := range strings.Split(raw, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(seg))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
