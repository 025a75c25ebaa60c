package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all briefly configuration.
type Config struct {
	// Backend connection
	Server ServerConfig `yaml:"server"`

	// Block summary polling
	Poll PollConfig `yaml:"poll"`

	// Typing effect
	Typing TypingConfig `yaml:"typing"`

	// Conversation export
	Export ExportConfig `yaml:"export"`

	// Local transcript archive
	Store StoreConfig `yaml:"store"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the backend HTTP client.
type ServerConfig struct {
	BaseURL         string `yaml:"base_url"`
	Timeout         string `yaml:"timeout"`
	UploadTimeout   string `yaml:"upload_timeout"`
	SessionCacheTTL string `yaml:"session_cache_ttl"`
}

// PollConfig configures the summary polling cycle.
type PollConfig struct {
	InitialDelay  string  `yaml:"initial_delay"`
	ReadyDelay    string  `yaml:"ready_delay"`
	FailureBase   string  `yaml:"failure_base"`
	FailureMax    string  `yaml:"failure_max"`
	FailureFactor float64 `yaml:"failure_factor"`
	MaxAttempts   int     `yaml:"max_attempts"`
	NoticeEvery   int     `yaml:"notice_every"`
}

// TypingConfig configures the typing effect.
type TypingConfig struct {
	CharsPerSecond float64 `yaml:"chars_per_second"`
	MinDuration    string  `yaml:"min_duration"`
	MaxDuration    string  `yaml:"max_duration"`
}

// Export modes.
const (
	ExportAuto   = "auto"   // remote unless the server is local
	ExportRemote = "remote" // backend renders the file, local fallback
	ExportLocal  = "local"  // always render locally
)

// ValidExportModes lists the accepted export.mode values.
var ValidExportModes = []string{ExportAuto, ExportRemote, ExportLocal}

// ExportConfig configures conversation export.
type ExportConfig struct {
	Mode string `yaml:"mode"`
	Dir  string `yaml:"dir"`
}

// StoreConfig configures the SQLite transcript archive.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:         "http://localhost:5000",
			Timeout:         "60s",
			UploadTimeout:   "5m",
			SessionCacheTTL: "30s",
		},

		Poll: PollConfig{
			InitialDelay:  "2s",
			ReadyDelay:    "2s",
			FailureBase:   "3s",
			FailureMax:    "10s",
			FailureFactor: 1.5,
			MaxAttempts:   10,
			NoticeEvery:   3,
		},

		Typing: TypingConfig{
			CharsPerSecond: 30,
			MinDuration:    "1500ms",
			MaxDuration:    "8s",
		},

		Export: ExportConfig{
			Mode: ExportAuto,
			Dir:  ".",
		},

		Store: StoreConfig{
			Enabled: true,
			Path:    "",
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			DebugMode: false,
		},
	}
}

// DefaultDir returns the config directory: ./.briefly when it exists,
// otherwise ~/.briefly.
func DefaultDir() string {
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, ".briefly")
		if st, err := os.Stat(local); err == nil && st.IsDir() {
			return local
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".briefly")
	}
	return ".briefly"
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if u := os.Getenv("BRIEFLY_SERVER_URL"); u != "" {
		c.Server.BaseURL = u
	}
	if dir := os.Getenv("BRIEFLY_EXPORT_DIR"); dir != "" {
		c.Export.Dir = dir
	}
	if mode := os.Getenv("BRIEFLY_EXPORT_MODE"); mode != "" {
		c.Export.Mode = strings.ToLower(mode)
	}
	if path := os.Getenv("BRIEFLY_DB"); path != "" {
		c.Store.Path = path
	}
	if v := os.Getenv("BRIEFLY_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = on
		}
	}
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetTimeout returns the per-request timeout as a duration.
func (c *Config) GetTimeout() time.Duration {
	return parseDuration(c.Server.Timeout, 60*time.Second)
}

// GetUploadTimeout returns the upload timeout as a duration.
func (c *Config) GetUploadTimeout() time.Duration {
	return parseDuration(c.Server.UploadTimeout, 5*time.Minute)
}

// GetSessionCacheTTL returns how long session info is cached. "0" disables the cache.
func (c *Config) GetSessionCacheTTL() time.Duration {
	if strings.TrimSpace(c.Server.SessionCacheTTL) == "0" {
		return 0
	}
	return parseDuration(c.Server.SessionCacheTTL, 30*time.Second)
}

// DBPath returns the archive database path, defaulting into dir.
func (c *Config) DBPath(dir string) string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(dir, "briefly.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid server.base_url: %q (expected http(s)://host[:port])", c.Server.BaseURL)
	}

	validMode := false
	for _, m := range ValidExportModes {
		if c.Export.Mode == m {
			validMode = true
			break
		}
	}
	if !validMode {
		return fmt.Errorf("invalid export.mode: %s (valid: %v)", c.Export.Mode, ValidExportModes)
	}

	if c.Poll.MaxAttempts <= 0 {
		return fmt.Errorf("poll.max_attempts must be positive, got %d", c.Poll.MaxAttempts)
	}
	if c.Poll.NoticeEvery < 0 {
		return fmt.Errorf("poll.notice_every must not be negative, got %d", c.Poll.NoticeEvery)
	}
	if c.Poll.FailureFactor < 1 {
		return fmt.Errorf("poll.failure_factor must be >= 1, got %v", c.Poll.FailureFactor)
	}
	if c.Typing.CharsPerSecond <= 0 {
		return fmt.Errorf("typing.chars_per_second must be positive, got %v", c.Typing.CharsPerSecond)
	}
	if c.GetTypingMin() > c.GetTypingMax() {
		return fmt.Errorf("typing.min_duration (%s) exceeds typing.max_duration (%s)", c.Typing.MinDuration, c.Typing.MaxDuration)
	}

	return nil
}
