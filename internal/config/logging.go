package config

import "briefly/internal/logging"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`           // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty"`         // json, text
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"` // Master toggle - false = no logging
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"` // Per-category toggles
	MaxSizeMB  int             `yaml:"max_size_mb" json:"max_size_mb,omitempty"`
	MaxBackups int             `yaml:"max_backups" json:"max_backups,omitempty"`
	MaxAgeDays int             `yaml:"max_age_days" json:"max_age_days,omitempty"`
}

// ToLogging converts the section into the logging package configuration.
func (c LoggingConfig) ToLogging() logging.Config {
	return logging.Config{
		DebugMode:  c.DebugMode,
		Categories: c.Categories,
		Level:      c.Level,
		JSONFormat: c.Format == "json",
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
	}
}
