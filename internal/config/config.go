package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SchedulingConfig holds the default preferences applied when a request
// leaves them unset.
type SchedulingConfig struct {
	// BusinessHoursStart / BusinessHoursEnd are "HH:MM" clock times.
	BusinessHoursStart string `yaml:"business_hours_start" json:"business_hours_start"`
	BusinessHoursEnd   string `yaml:"business_hours_end" json:"business_hours_end"`

	// DurationMinutes is the default meeting length.
	DurationMinutes int `yaml:"duration_minutes" json:"duration_minutes"`

	// BufferMinutes is reserved between meetings but not displayed.
	BufferMinutes int `yaml:"buffer_minutes" json:"buffer_minutes"`

	ExcludeWeekends bool `yaml:"exclude_weekends" json:"exclude_weekends"`

	// SearchDays is how far ahead the schedule command searches by default.
	SearchDays int `yaml:"search_days" json:"search_days"`

	// MaxOccurrences caps recurrence expansion per event.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// TopRecommendations is how many ranked slots to surface.
	TopRecommendations int `yaml:"top_recommendations" json:"top_recommendations"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API server.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for human-facing display defaults.
	Timezone string `yaml:"timezone" json:"timezone"`

	Scheduling SchedulingConfig `yaml:"scheduling" json:"scheduling"`

	// SessionTTLMinutes bounds how long uploaded calendars are retained.
	SessionTTLMinutes int `yaml:"session_ttl_minutes" json:"session_ttl_minutes"`

	// SweepCron is a cron-style schedule for session-store expiry sweeps.
	SweepCron string `yaml:"sweep_cron" json:"sweep_cron"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "UTC",
		Scheduling: SchedulingConfig{
			BusinessHoursStart: "09:00",
			BusinessHoursEnd:   "17:00",
			DurationMinutes:    60,
			BufferMinutes:      0,
			ExcludeWeekends:    true,
			SearchDays:         14,
			MaxOccurrences:     1000,
			TopRecommendations: 5,
		},
		SessionTTLMinutes: 30,
		SweepCron:         "*/5 * * * *",
	}
}

// Normalize fills in missing/zero values with defaults so partially-filled
// configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Scheduling.BusinessHoursStart == "" {
		c.Scheduling.BusinessHoursStart = def.Scheduling.BusinessHoursStart
	}
	if c.Scheduling.BusinessHoursEnd == "" {
		c.Scheduling.BusinessHoursEnd = def.Scheduling.BusinessHoursEnd
	}
	if c.Scheduling.DurationMinutes <= 0 {
		c.Scheduling.DurationMinutes = def.Scheduling.DurationMinutes
	}
	if c.Scheduling.BufferMinutes < 0 {
		c.Scheduling.BufferMinutes = 0
	}
	if c.Scheduling.SearchDays <= 0 {
		c.Scheduling.SearchDays = def.Scheduling.SearchDays
	}
	if c.Scheduling.MaxOccurrences <= 0 {
		c.Scheduling.MaxOccurrences = def.Scheduling.MaxOccurrences
	}
	if c.Scheduling.TopRecommendations <= 0 {
		c.Scheduling.TopRecommendations = def.Scheduling.TopRecommendations
	}
	if c.SessionTTLMinutes <= 0 {
		c.SessionTTLMinutes = def.SessionTTLMinutes
	}
	if c.SweepCron == "" {
		c.SweepCron = def.SweepCron
	}
}

// Load loads configuration from the given YAML path. A missing file is a
// first run: a default config is written with 0600 perms and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".meetsched-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
