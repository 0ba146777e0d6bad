package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// DefaultBaseURL is the production object-storage host serving the feed.
const DefaultBaseURL = "https://r2.cn.saaaai.com"

// Config is the persistent application configuration
type Config struct {
	// Feed endpoints
	BaseURL     string `json:"base_url"`
	FallbackURL string `json:"fallback_url,omitempty"`

	// Polling and search behavior
	PollIntervalMinutes int `json:"poll_interval_minutes"`
	SearchDebounceMs    int `json:"search_debounce_ms"`
	PageSize            int `json:"page_size"`

	// Local persistence
	ArchiveCache  bool `json:"archive_cache"` // persist archive pages across sessions
	FetchTimeoutS int  `json:"fetch_timeout_seconds"`

	// UI Preferences
	UI UIConfig `json:"ui"`
}

// UIConfig holds UI preferences
type UIConfig struct {
	Theme       string `json:"theme"`
	DensityMode string `json:"density_mode"` // "comfortable" or "compact"
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		BaseURL:             DefaultBaseURL,
		PollIntervalMinutes: 5,
		SearchDebounceMs:    500,
		PageSize:            25,
		ArchiveCache:        true,
		FetchTimeoutS:       30,
		UI: UIConfig{
			Theme:       "dark",
			DensityMode: "comfortable",
		},
	}
}

// PollInterval returns the polling interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// SearchDebounce returns the search debounce as a duration.
func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMs) * time.Millisecond
}

// FetchTimeout returns the per-request HTTP timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutS) * time.Second
}

// DataDir returns the application data directory.
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cnjp")
}

// ConfigPath returns the path to the config file
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// Load reads config from disk, or returns defaults
func Load() (*Config, error) {
	path := ConfigPath()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		// Corrupt file degrades to defaults; env overrides still apply.
		cfg = DefaultConfig()
	}
	cfg.applyEnv()
	return cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	path := ConfigPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// applyEnv overrides endpoints from environment variables
func (c *Config) applyEnv() {
	if v := os.Getenv("CNJP_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CNJP_FALLBACK_URL"); v != "" {
		c.FallbackURL = v
	}
}
