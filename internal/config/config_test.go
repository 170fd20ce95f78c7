package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"avisobot/internal/reminder"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.Mode != "dryrun" || *cfg.Dispatch.FireHour != 8 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.Dispatch.DefaultTimezone != "America/Lima" {
		t.Fatalf("default timezone = %q", cfg.Dispatch.DefaultTimezone)
	}
	if m.Get() != cfg {
		t.Fatal("Load did not commit the config")
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: debug
transport:
  mode: live
  rate_per_sec: 3
dispatch:
  fire_hour: 9
  min_offset: 3
  max_offset: 45
  default_notices: [21, 14, 7]
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || cfg.Transport.Mode != "live" {
		t.Fatalf("parsed = %+v", cfg)
	}
	if *cfg.Dispatch.FireHour != 9 || cfg.Dispatch.MinOffset != 3 {
		t.Fatalf("dispatch = %+v", cfg.Dispatch)
	}
	// Omitted sections still get defaults.
	if cfg.Storage.Path != "./avisobot.db" || cfg.Webhook.Addr != ":8080" {
		t.Fatalf("defaults not filled: %+v", cfg)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json",
		`{"dispatch": {"fire_hour": 0, "default_timezone": "UTC"}}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	// fire_hour 0 (midnight) is a real value, not "omitted".
	if *cfg.Dispatch.FireHour != 0 {
		t.Fatalf("fire_hour = %d, want 0", *cfg.Dispatch.FireHour)
	}
	if cfg.Dispatch.DefaultTimezone != "UTC" {
		t.Fatalf("timezone = %q", cfg.Dispatch.DefaultTimezone)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", "dispatch:\n  fire_huor: 9\n")
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("typo field accepted")
	}
}

func TestParseValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		wantSub string
	}{
		{"bad mode", "transport:\n  mode: carrier-pigeon\n", "transport.mode"},
		{"fire hour range", "dispatch:\n  fire_hour: 24\n", "fire_hour"},
		{"unknown zone", "dispatch:\n  default_timezone: Mars/Olympus\n", "default_timezone"},
		{"min above max", "dispatch:\n  min_offset: 40\n  max_offset: 20\n", "min_offset"},
		{"bad busy timeout", "storage:\n  busy_timeout: quick\n", "busy_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "config.yaml", tt.content)
			_, err := NewManager(path).Parse()
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("err = %v, want mention of %s", err, tt.wantSub)
			}
		})
	}
}

func TestDispatchLimits(t *testing.T) {
	t.Parallel()
	d := DispatchConfig{
		MinOffset:      5,
		MaxOffset:      30,
		MaxNotices:     4,
		DefaultNotices: []int{10, 99, 20, 10}, // out-of-range and duplicate entries
	}
	lim := d.Limits()
	if !lim.Default.Equal(reminder.NoticeSet{20, 10}) {
		t.Fatalf("canonicalized default = %v", lim.Default)
	}
	if lim.MinOffset != 5 || lim.MaxOffset != 30 || lim.MaxCount != 4 {
		t.Fatalf("limits = %+v", lim)
	}
}

func TestBusyTimeoutDuration(t *testing.T) {
	t.Parallel()
	s := StorageConfig{BusyTimeout: "750ms"}
	if d := s.BusyTimeoutDuration(); d.Milliseconds() != 750 {
		t.Fatalf("BusyTimeoutDuration = %v", d)
	}
}
