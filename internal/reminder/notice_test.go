package reminder

import (
	"testing"
)

func TestNormalizeVariants(t *testing.T) {
	t.Parallel()
	lim := DefaultLimits()

	tests := []struct {
		name   string
		tokens []string
		want   NoticeSet
	}{
		{name: "empty falls back to default", tokens: nil, want: NoticeSet{30, 20, 10, 5}},
		{name: "all garbage falls back to default", tokens: []string{"abc"}, want: NoticeSet{30, 20, 10, 5}},
		{name: "filters dedupes sorts truncates", tokens: []string{"3", "7", "40", "7", "20", "15", "10"}, want: NoticeSet{20, 15, 10, 7}},
		{name: "keeps four largest", tokens: []string{"5", "6", "7", "8", "9", "10"}, want: NoticeSet{10, 9, 8, 7}},
		{name: "mixed garbage dropped silently", tokens: []string{"30", "x", "10", "--", "5"}, want: NoticeSet{30, 10, 5}},
		{name: "bounds are inclusive", tokens: []string{"5", "30"}, want: NoticeSet{30, 5}},
		{name: "out of range only falls back", tokens: []string{"1", "4", "31", "99"}, want: NoticeSet{30, 20, 10, 5}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := lim.Normalize(tt.tokens)
			if !got.Equal(tt.want) {
				t.Fatalf("Normalize(%v) = %v, want %v", tt.tokens, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()
	lim := DefaultLimits()
	once := lim.Normalize([]string{"3", "7", "40", "7", "20", "15", "10"})
	twice := lim.Canonical(once)
	if !once.Equal(twice) {
		t.Fatalf("normalization not idempotent: %v vs %v", once, twice)
	}
}

func TestNormalizeInvariants(t *testing.T) {
	t.Parallel()
	lim := DefaultLimits()
	inputs := [][]string{
		nil,
		{"30", "20", "10", "5"},
		{"5", "5", "5"},
		{"17"},
		{"0", "100", "-3", "25", "25", "12", "8", "6"},
	}
	for _, in := range inputs {
		got := lim.Normalize(in)
		if len(got) == 0 || len(got) > lim.MaxCount {
			t.Fatalf("Normalize(%v): bad length %d", in, len(got))
		}
		for i, d := range got {
			if d < lim.MinOffset || d > lim.MaxOffset {
				t.Fatalf("Normalize(%v): element %d out of range", in, d)
			}
			if i > 0 && got[i-1] <= d {
				t.Fatalf("Normalize(%v) = %v not strictly descending", in, got)
			}
		}
	}
}

func TestNormalizeStrict(t *testing.T) {
	t.Parallel()
	lim := DefaultLimits()

	if _, err := lim.NormalizeStrict([]string{"30", "abc"}); err == nil {
		t.Fatal("expected error for non-numeric token in strict mode")
	}
	got, err := lim.NormalizeStrict([]string{"20", "10"})
	if err != nil {
		t.Fatalf("NormalizeStrict error: %v", err)
	}
	if !got.Equal(NoticeSet{20, 10}) {
		t.Fatalf("NormalizeStrict = %v, want 20,10", got)
	}
}

func TestCustomLimits(t *testing.T) {
	t.Parallel()
	lim := Limits{MinOffset: 1, MaxOffset: 10, MaxCount: 2, Default: NoticeSet{7, 3}}
	if got := lim.Normalize([]string{"9", "2", "5"}); !got.Equal(NoticeSet{9, 5}) {
		t.Fatalf("custom limits: got %v", got)
	}
	if got := lim.Normalize([]string{"11"}); !got.Equal(NoticeSet{7, 3}) {
		t.Fatalf("custom default: got %v", got)
	}
}

func TestNoticeSetString(t *testing.T) {
	t.Parallel()
	if s := (NoticeSet{30, 20, 10, 5}).String(); s != "30,20,10,5" {
		t.Fatalf("String() = %q", s)
	}
	if s := (NoticeSet{}).String(); s != "" {
		t.Fatalf("empty String() = %q", s)
	}
}
