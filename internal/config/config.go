package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"nlcal/internal/timeres"
)

// EnvOracleAPIKey overrides Oracle.APIKey when set, so the key does not
// have to live in the YAML file.
const EnvOracleAPIKey = "NLCAL_OPENAI_API_KEY"

// Calendar backends.
const (
	BackendGoogle = "google"
	BackendICS    = "ics"
)

// GoogleConfig selects the calendar and the OAuth client used to refresh
// tokens installed through /api/session.
type GoogleConfig struct {
	CalendarID   string `yaml:"calendar_id" json:"calendar_id"`
	ClientID     string `yaml:"client_id" json:"client_id"`
	ClientSecret string `yaml:"client_secret" json:"client_secret"`
}

// ICSConfig describes the local calendar file used by the ics backend.
type ICSConfig struct {
	// Path is the .ics file read and rewritten by the store.
	Path string `yaml:"path" json:"path"`
	// ReloadCron re-reads the file on a cron schedule so edits made by other
	// programs are picked up. Empty disables reloading.
	ReloadCron string `yaml:"reload" json:"reload"`
}

// OracleConfig points at an OpenAI-compatible chat completions endpoint.
type OracleConfig struct {
	BaseURL        string  `yaml:"base_url" json:"base_url"`
	Model          string  `yaml:"model" json:"model"`
	APIKey         string  `yaml:"api_key" json:"-"`
	Temperature    float32 `yaml:"temperature" json:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// SearchConfig bounds the window scanned when a request names an event.
type SearchConfig struct {
	PastDays   int `yaml:"past_days" json:"past_days"`
	FutureDays int `yaml:"future_days" json:"future_days"`
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone requests are interpreted in (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// UTCOffset, when set (e.g. "+09:00"), pins every normalized timestamp to
	// this fixed offset instead of the zone's DST-aware offset.
	UTCOffset string `yaml:"utc_offset,omitempty" json:"utc_offset,omitempty"`

	// Backend is "google" or "ics".
	Backend string `yaml:"backend" json:"backend"`

	Google GoogleConfig `yaml:"google" json:"google"`
	ICS    ICSConfig    `yaml:"ics" json:"ics"`
	Oracle OracleConfig `yaml:"oracle" json:"oracle"`
	Search SearchConfig `yaml:"search" json:"search"`

	// SessionProbeCron refreshes the Google token on a schedule so an expired
	// grant is reported as disconnected before a request needs it.
	SessionProbeCron string `yaml:"session_probe" json:"session_probe"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Seoul"
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendGoogle, BackendICS:
	default:
		// Unknown or empty; the local file works without credentials.
		c.Backend = BackendICS
	}
	if c.Google.CalendarID == "" {
		c.Google.CalendarID = "primary"
	}
	if c.ICS.Path == "" {
		c.ICS.Path = "/var/lib/nlcal/calendar.ics"
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = "gpt-4o-mini"
	}
	if c.Oracle.TimeoutSeconds <= 0 {
		c.Oracle.TimeoutSeconds = 30
	}
	if c.Search.PastDays <= 0 {
		c.Search.PastDays = 7
	}
	if c.Search.FutureDays <= 0 {
		c.Search.FutureDays = 14
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 50
	}
	if c.SessionProbeCron == "" {
		c.SessionProbeCron = "*/10 * * * *"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// applyEnv copies environment overrides into c. It is not persisted by Save.
func (c *Config) applyEnv() {
	if key := os.Getenv(EnvOracleAPIKey); key != "" {
		c.Oracle.APIKey = key
	}
}

// Validate reports settings that cannot be defaulted.
// Call it after Normalize.
func (c *Config) Validate() error {
	if c.Backend == BackendGoogle && (c.Google.ClientID == "") != (c.Google.ClientSecret == "") {
		return errors.New("google.client_id and google.client_secret must be set together")
	}
	if c.UTCOffset != "" {
		if _, err := timeres.ParseOffset(c.UTCOffset); err != nil {
			return fmt.Errorf("utc_offset: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults and validate
//
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.applyEnv()
				return cfg, err
			}
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600, since the file may hold the
//     oracle key and OAuth client secret.
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

	tmp, err := os.CreateTemp(dir, ".nlcal-config-*.tmp")
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
