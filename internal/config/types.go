package config

import (
	"fmt"
	"time"

	"avisobot/internal/reminder"
)

// Config is the full daemon configuration. Files may be YAML or JSON; both
// go through the same strict decoder (unknown fields are rejected).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Transport TransportConfig `json:"transport"`
	Webhook   WebhookConfig   `json:"webhook"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Debug     DebugConfig     `json:"debug,omitempty"`
}

// DebugConfig controls the optional pprof listener. Off unless enabled.
type DebugConfig struct {
	Pprof                bool   `json:"pprof,omitempty"`
	PprofAddr            string `json:"pprof_addr,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console *bool      `json:"console,omitempty"` // omitted means true
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// TransportConfig selects outbound delivery. Credentials come from the
// environment (TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TELEGRAM_TOKEN), never
// from the config file.
type TransportConfig struct {
	Mode          string         `json:"mode,omitempty"` // "dryrun" (default) or "live"
	RatePerSec    int            `json:"rate_per_sec,omitempty"`
	ContactPrefix string         `json:"contact_prefix,omitempty"` // prepended to bare phone numbers
	WhatsApp      WhatsAppConfig `json:"whatsapp,omitempty"`
	Telegram      TelegramConfig `json:"telegram,omitempty"`
}

type WhatsAppConfig struct {
	From string `json:"from,omitempty"` // e.g. "whatsapp:+14155238886" (Twilio sandbox)
}

type TelegramConfig struct {
	Enabled bool `json:"enabled,omitempty"`
}

type WebhookConfig struct {
	Enabled *bool  `json:"enabled,omitempty"` // omitted means true
	Addr    string `json:"addr,omitempty"`
}

// DispatchConfig carries every reminder tunable the engine exposes.
type DispatchConfig struct {
	Cadence         string   `json:"cadence,omitempty"`   // cron spec, e.g. "@every 30m"
	FireHour        *int     `json:"fire_hour,omitempty"` // local hour gate; omitted means 8
	DefaultTimezone string   `json:"default_timezone,omitempty"`
	MinOffset       int      `json:"min_offset,omitempty"`
	MaxOffset       int      `json:"max_offset,omitempty"`
	MaxNotices      int      `json:"max_notices,omitempty"`
	DefaultNotices  []int    `json:"default_notices,omitempty"`
	Quotes          []string `json:"quotes,omitempty"`
	QuoteSeed       int64    `json:"quote_seed,omitempty"` // non-zero pins the quote sequence
}

// Default returns the configuration used when fields are omitted.
func Default() Config {
	on := true
	hour := 8
	return Config{
		Logging: LoggingConfig{Level: "info", Console: &on},
		Storage: StorageConfig{Path: "./avisobot.db", BusyTimeout: "5s"},
		Transport: TransportConfig{
			Mode:          "dryrun",
			RatePerSec:    1,
			ContactPrefix: "whatsapp:",
			WhatsApp:      WhatsAppConfig{From: "whatsapp:+14155238886"},
		},
		Webhook: WebhookConfig{Enabled: &on, Addr: ":8080"},
		Dispatch: DispatchConfig{
			Cadence:         "@every 30m",
			FireHour:        &hour,
			DefaultTimezone: "America/Lima",
			MinOffset:       reminder.DefaultMinOffset,
			MaxOffset:       reminder.DefaultMaxOffset,
			MaxNotices:      reminder.DefaultMaxCount,
			DefaultNotices:  reminder.DefaultOffsets(),
			Quotes:          reminder.DefaultQuotes(),
		},
		Debug: DebugConfig{PprofAddr: "127.0.0.1:6060"},
	}
}

// Normalize fills omitted fields with defaults and validates cross-field
// constraints. Always called after a successful parse.
func (c *Config) Normalize() error {
	def := Default()

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Console == nil {
		c.Logging.Console = def.Logging.Console
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
	if c.Storage.BusyTimeout == "" {
		c.Storage.BusyTimeout = def.Storage.BusyTimeout
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}

	switch c.Transport.Mode {
	case "":
		c.Transport.Mode = def.Transport.Mode
	case "dryrun", "live":
	default:
		return fmt.Errorf("transport.mode: unknown mode %q (want dryrun or live)", c.Transport.Mode)
	}
	if c.Transport.RatePerSec == 0 {
		c.Transport.RatePerSec = def.Transport.RatePerSec
	}
	if c.Transport.ContactPrefix == "" {
		c.Transport.ContactPrefix = def.Transport.ContactPrefix
	}
	if c.Transport.WhatsApp.From == "" {
		c.Transport.WhatsApp.From = def.Transport.WhatsApp.From
	}

	if c.Webhook.Enabled == nil {
		c.Webhook.Enabled = def.Webhook.Enabled
	}
	if c.Webhook.Addr == "" {
		c.Webhook.Addr = def.Webhook.Addr
	}

	d := &c.Dispatch
	dd := def.Dispatch
	if d.Cadence == "" {
		d.Cadence = dd.Cadence
	}
	if d.FireHour == nil {
		d.FireHour = dd.FireHour
	}
	if *d.FireHour < 0 || *d.FireHour > 23 {
		return fmt.Errorf("dispatch.fire_hour: %d out of range [0,23]", *d.FireHour)
	}
	if d.DefaultTimezone == "" {
		d.DefaultTimezone = dd.DefaultTimezone
	}
	if _, err := time.LoadLocation(d.DefaultTimezone); err != nil {
		return fmt.Errorf("dispatch.default_timezone: unknown zone %q", d.DefaultTimezone)
	}
	if d.MinOffset == 0 {
		d.MinOffset = dd.MinOffset
	}
	if d.MaxOffset == 0 {
		d.MaxOffset = dd.MaxOffset
	}
	if d.MaxNotices == 0 {
		d.MaxNotices = dd.MaxNotices
	}
	if d.MinOffset > d.MaxOffset {
		return fmt.Errorf("dispatch: min_offset %d > max_offset %d", d.MinOffset, d.MaxOffset)
	}
	if len(d.DefaultNotices) == 0 {
		d.DefaultNotices = dd.DefaultNotices
	}
	if len(d.Quotes) == 0 {
		d.Quotes = dd.Quotes
	}
	if c.Debug.PprofAddr == "" {
		c.Debug.PprofAddr = "127.0.0.1:6060"
	}
	return nil
}

// Limits maps the dispatch section onto the engine's normalization bounds.
func (d DispatchConfig) Limits() reminder.Limits {
	lim := reminder.Limits{
		MinOffset: d.MinOffset,
		MaxOffset: d.MaxOffset,
		MaxCount:  d.MaxNotices,
		Default:   append(reminder.NoticeSet(nil), d.DefaultNotices...),
	}
	// The default sequence itself goes through canonicalization once, so a
	// misconfigured default cannot smuggle out-of-range offsets in.
	tmp := lim
	tmp.Default = reminder.DefaultOffsets()
	lim.Default = tmp.Canonical(lim.Default)
	return lim
}

// BusyTimeout returns the parsed storage busy timeout.
func (s StorageConfig) BusyTimeoutDuration() time.Duration {
	d, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}
