// Package config loads the static configuration surface enumerated in
// spec §6 (notifications, AI, sync, maildir) from a YAML file (no
// environment-variable overlay is applied), the way fenilsonani-email-server's
// internal/config loads mail-server settings: koanf with a yaml parser
// and a file provider, merged with defaults before validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Notifications mirrors spec §6's enumerated notification surface.
type Notifications struct {
	Enabled         bool             `koanf:"enabled"`
	ShowPreview     bool             `koanf:"show_preview"`
	PerSourceEnable map[string]bool  `koanf:"per_source_enable"`
	MinPriority     string           `koanf:"min_priority"`
	Batching        BatchingConfig   `koanf:"batching"`
	QuietHours      QuietHoursConfig `koanf:"quiet_hours"`
	VIPSenders      []string         `koanf:"vip_senders"`
	PriorityWords   []string         `koanf:"priority_keywords"`
}

type BatchingConfig struct {
	WindowSeconds int `koanf:"window_s"`
	MaxPerBatch   int `koanf:"max_per_batch"`
}

type QuietHoursConfig struct {
	StartHour     int  `koanf:"start_h"`
	EndHour       int  `koanf:"end_h"`
	WeekendsOnly  bool `koanf:"weekends_only"`
}

// AI mirrors spec §6's AI configuration surface.
type AI struct {
	Enabled             bool               `koanf:"enabled"`
	ProviderKind        string             `koanf:"provider_kind"`
	PrivacyMode         string             `koanf:"privacy_mode"`
	Model               string             `koanf:"model"`
	Endpoint            string             `koanf:"endpoint"`
	Creativity          float64            `koanf:"creativity"`
	MaxContextLength    int                `koanf:"max_context_length"`
	CapabilityEnables   map[string]bool    `koanf:"per_capability_enables"`
	RequestTimeout      time.Duration      `koanf:"request_timeout"`
	RetryAttempts       int                `koanf:"retry_attempts"`
	CacheTTL            time.Duration      `koanf:"cache_ttl"`
	RedisAddr           string             `koanf:"redis_addr"`
}

// Sync mirrors spec §6's Sync configuration surface.
type Sync struct {
	PollIntervalPerFolder      time.Duration `koanf:"poll_interval_per_folder"`
	ConcurrentFoldersPerAccount int          `koanf:"concurrent_folders_per_account"`
	BackoffBase                time.Duration `koanf:"backoff_base"`
	BackoffCap                 time.Duration `koanf:"backoff_cap"`
	BackoffJitter              float64       `koanf:"backoff_jitter"`
}

// Maildir mirrors spec §6's Maildir configuration surface.
type Maildir struct {
	IncludeDrafts      bool `koanf:"include_drafts"`
	IncludeDeleted     bool `koanf:"include_deleted"`
	PreserveTimestamps bool `koanf:"preserve_timestamps"`
	SkipDuplicates     bool `koanf:"skip_duplicates"`
	ValidateFormat     bool `koanf:"validate_format"`
}

// Account is one configured mail/calendar source. Kind selects which
// transport package (imap, caldav, gcal) the sync coordinator wires it
// to; Password/OAuth state lives in internal/credentials, keyed by ID.
type Account struct {
	ID       string   `koanf:"id"`
	Kind     string   `koanf:"kind"` // "imap", "caldav", "gcal"
	Host     string   `koanf:"host"`
	Port     int      `koanf:"port"`
	Username string   `koanf:"username"`
	UseTLS   bool     `koanf:"use_tls"`
	Folders  []string `koanf:"folders"`

	// CalDAV/Google-specific.
	CalendarPath string `koanf:"calendar_path"`
	CalendarID   string `koanf:"calendar_id"`
}

// Config is the full static configuration surface.
type Config struct {
	Notifications Notifications `koanf:"notifications"`
	AI            AI            `koanf:"ai"`
	Sync          Sync          `koanf:"sync"`
	Maildir       Maildir       `koanf:"maildir"`
	Accounts      []Account     `koanf:"accounts"`
	DataDir       string        `koanf:"data_dir"`

	// UserEmails identifies the user among an invitation's attendees
	// (spec §4.6's "the user"), and DefaultCalendarID is where a
	// REQUEST-method invitation lands when it names no calendar of its
	// own.
	UserEmails        []string `koanf:"user_emails"`
	DefaultCalendarID string   `koanf:"default_calendar_id"`
}

// Default returns the configuration surface's documented defaults.
func Default() *Config {
	return &Config{
		Notifications: Notifications{
			Enabled:     true,
			ShowPreview: true,
			MinPriority: "Normal",
			Batching:    BatchingConfig{WindowSeconds: 30, MaxPerBatch: 5},
			QuietHours:  QuietHoursConfig{StartHour: 22, EndHour: 7},
		},
		AI: AI{
			ProviderKind:     "local",
			PrivacyMode:      "LocalPreferred",
			MaxContextLength: 8000,
			RequestTimeout:   30 * time.Second,
			RetryAttempts:    3,
			CacheTTL:         time.Hour,
		},
		Sync: Sync{
			PollIntervalPerFolder:       5 * time.Minute,
			ConcurrentFoldersPerAccount: 2,
			BackoffBase:                 time.Second,
			BackoffCap:                  5 * time.Minute,
			BackoffJitter:               0.2,
		},
		Maildir: Maildir{
			PreserveTimestamps: true,
			SkipDuplicates:     true,
			ValidateFormat:     true,
		},
	}
}

// Load reads defaults, then overlays a YAML file at path if it exists.
// A missing file is not an error — the defaults stand alone, matching the
// teacher's tolerance for a first-run config directory with nothing in it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}

	// Unmarshal onto the pre-populated defaults so keys absent from the
	// file keep their documented default rather than zeroing out.
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
