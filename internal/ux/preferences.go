package ux

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PreferencesVersion is the current schema version for preferences.json.
const PreferencesVersion = "1.0"

// Metric names accepted by IncrementMetric.
const (
	MetricSessions = "sessions_count"
	MetricUploads  = "uploads_count"
	MetricQueries  = "queries_count"
	MetricExports  = "exports_count"
)

// UserPreferences is the persisted preferences schema.
type UserPreferences struct {
	// Version is the schema version for migration detection
	Version string `json:"version"`

	// DarkMode is the theme choice. Nil means the user never chose, and the
	// terminal background decides.
	DarkMode *bool `json:"darkMode,omitempty"`

	// Metrics tracks local usage statistics
	Metrics UserMetrics `json:"metrics"`
}

// UserMetrics holds local counters. Nothing leaves the machine.
type UserMetrics struct {
	SessionsCount int    `json:"sessions_count"`
	UploadsCount  int    `json:"uploads_count"`
	QueriesCount  int    `json:"queries_count"`
	ExportsCount  int    `json:"exports_count"`
	LastUsedAt    string `json:"last_used_at,omitempty"`
}

// DefaultUserPreferences returns preferences for a first run.
func DefaultUserPreferences() *UserPreferences {
	return &UserPreferences{Version: PreferencesVersion}
}

// PreferencesManager handles loading/saving preferences.
type PreferencesManager struct {
	mu          sync.RWMutex
	path        string
	preferences *UserPreferences
}

// NewPreferencesManager creates a preferences manager storing its file in dir.
func NewPreferencesManager(dir string) *PreferencesManager {
	return &PreferencesManager{
		path: filepath.Join(dir, "preferences.json"),
	}
}

// Path returns the preferences file location.
func (pm *PreferencesManager) Path() string { return pm.path }

// Load reads preferences from disk, using defaults if the file does not exist.
func (pm *PreferencesManager) Load() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	data, err := os.ReadFile(pm.path)
	if err != nil {
		if os.IsNotExist(err) {
			pm.preferences = DefaultUserPreferences()
			return nil
		}
		return fmt.Errorf("failed to read preferences: %w", err)
	}

	var prefs UserPreferences
	if err := json.Unmarshal(data, &prefs); err != nil {
		return fmt.Errorf("failed to parse preferences: %w", err)
	}
	if prefs.Version == "" {
		prefs.Version = PreferencesVersion
	}

	pm.preferences = &prefs
	return nil
}

// Save writes preferences to disk.
func (pm *PreferencesManager) Save() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.preferences == nil {
		pm.preferences = DefaultUserPreferences()
	}

	dir := filepath.Dir(pm.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create preferences directory: %w", err)
	}

	data, err := json.MarshalIndent(pm.preferences, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	if err := os.WriteFile(pm.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}

	return nil
}

// Get returns a copy of the current preferences (thread-safe).
func (pm *PreferencesManager) Get() UserPreferences {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if pm.preferences == nil {
		return *DefaultUserPreferences()
	}
	cp := *pm.preferences
	if cp.DarkMode != nil {
		v := *cp.DarkMode
		cp.DarkMode = &v
	}
	return cp
}

// DarkMode returns the stored theme choice. ok is false when the user never
// chose one.
func (pm *PreferencesManager) DarkMode() (dark bool, ok bool) {
	prefs := pm.Get()
	if prefs.DarkMode == nil {
		return false, false
	}
	return *prefs.DarkMode, true
}

// SetDarkMode records the theme choice.
func (pm *PreferencesManager) SetDarkMode(dark bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.preferences == nil {
		pm.preferences = DefaultUserPreferences()
	}
	pm.preferences.DarkMode = &dark
}

// ToggleDarkMode flips the theme, starting from current when no choice was
// stored, and persists it. It returns the new value.
func (pm *PreferencesManager) ToggleDarkMode(current bool) (bool, error) {
	dark, ok := pm.DarkMode()
	if !ok {
		dark = current
	}
	pm.SetDarkMode(!dark)
	return !dark, pm.Save()
}

// IncrementMetric increments a numeric metric.
func (pm *PreferencesManager) IncrementMetric(metric string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.preferences == nil {
		pm.preferences = DefaultUserPreferences()
	}

	switch metric {
	case MetricSessions:
		pm.preferences.Metrics.SessionsCount++
	case MetricUploads:
		pm.preferences.Metrics.UploadsCount++
	case MetricQueries:
		pm.preferences.Metrics.QueriesCount++
	case MetricExports:
		pm.preferences.Metrics.ExportsCount++
	default:
		return fmt.Errorf("unknown metric: %s", metric)
	}
	pm.preferences.Metrics.LastUsedAt = time.Now().Format(time.RFC3339)

	return nil
}
