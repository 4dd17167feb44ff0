// Package config holds the application configuration: defaults,
// overridden by the TOML config file, overridden by environment
// variables. Settings the UI changes at runtime (goal minutes, AFK
// threshold, last target) are written back to the config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultGoalMinutes  = 90
	DefaultAFKThreshold = 60

	defaultConfigDir = ".config/playtrack"
)

// Config holds all application configuration.
type Config struct {
	// GoalMinutes is the daily engagement goal shown in reports.
	GoalMinutes int `toml:"goal_minutes"`

	Tracker TrackerConfig     `toml:"tracker"`
	Data    DataConfig        `toml:"data"`
	Daemon  DaemonConfig      `toml:"daemon"`
	Session SessionConfig     `toml:"session"`
	Binding map[string]string `toml:"bindings"` // process name -> target title
}

// TrackerConfig holds tracking behavior configuration.
type TrackerConfig struct {
	AFKThresholdSeconds     int    `toml:"afk_threshold_seconds"`
	SaveIntervalSeconds     int    `toml:"save_interval_seconds"` // max unflushed active time
	AutosaveIntervalSeconds int    `toml:"autosave_interval_seconds"`
	RefreshIntervalSeconds  int    `toml:"refresh_interval_seconds"` // process list refresh
	LoopFailurePolicy       string `toml:"loop_failure_policy"`      // "isolate" or "halt"
}

// DataConfig holds file locations. Empty paths mean the defaults under
// ~/.config/playtrack.
type DataConfig struct {
	LedgerPath    string `toml:"ledger_path"`
	HistoryDBPath string `toml:"history_db_path"`
	LogFile       string `toml:"log_file"`
}

// DaemonConfig holds daemon process configuration.
type DaemonConfig struct {
	PIDFile string `toml:"pid_file"`
}

// SessionConfig remembers what was tracked last so the daemon can
// resume without arguments.
type SessionConfig struct {
	LastTarget  string `toml:"last_target"`
	LastProcess string `toml:"last_process"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		GoalMinutes: DefaultGoalMinutes,
		Tracker: TrackerConfig{
			AFKThresholdSeconds:     DefaultAFKThreshold,
			SaveIntervalSeconds:     10,
			AutosaveIntervalSeconds: 30,
			RefreshIntervalSeconds:  120,
			LoopFailurePolicy:       "isolate",
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/playtrack-%d.pid", os.Getuid()),
		},
		Binding: make(map[string]string),
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.GoalMinutes < 0 {
		return fmt.Errorf("goal minutes cannot be negative")
	}
	if c.Tracker.AFKThresholdSeconds < 0 {
		return fmt.Errorf("AFK threshold cannot be negative")
	}
	if c.Tracker.SaveIntervalSeconds < 1 {
		return fmt.Errorf("save interval must be at least 1 second")
	}
	if c.Tracker.AutosaveIntervalSeconds < 1 {
		return fmt.Errorf("autosave interval must be at least 1 second")
	}
	if c.Tracker.RefreshIntervalSeconds < 1 {
		return fmt.Errorf("refresh interval must be at least 1 second")
	}
	switch c.Tracker.LoopFailurePolicy {
	case "isolate", "halt":
	default:
		return fmt.Errorf("loop failure policy must be isolate or halt, got %q", c.Tracker.LoopFailurePolicy)
	}
	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}
	return nil
}

// SaveInterval returns the flush interval as a duration.
func (c *Config) SaveInterval() time.Duration {
	return time.Duration(c.Tracker.SaveIntervalSeconds) * time.Second
}

// AutosaveInterval returns the autosave period as a duration.
func (c *Config) AutosaveInterval() time.Duration {
	return time.Duration(c.Tracker.AutosaveIntervalSeconds) * time.Second
}

// RefreshInterval returns the process refresh period as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Tracker.RefreshIntervalSeconds) * time.Second
}

// DefaultDir returns (and creates) the application data directory.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(homeDir, defaultConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// LedgerPath resolves the time-data file location.
func (c *Config) LedgerPath() (string, error) {
	if c.Data.LedgerPath != "" {
		return c.Data.LedgerPath, nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "timedata.json"), nil
}

// LogFilePath resolves the daemon log file location.
func (c *Config) LogFilePath() (string, error) {
	if c.Data.LogFile != "" {
		return c.Data.LogFile, nil
	}
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "playtrack.log"), nil
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Goal: %d minutes/day
  Tracker:
    AFK Threshold: %ds
    Flush Interval: %ds
    Autosave Interval: %ds
    Refresh Interval: %ds
    Loop Failure Policy: %s
  Data:
    Ledger: %s
    History DB: %s
  Daemon:
    PID File: %s`,
		c.GoalMinutes,
		c.Tracker.AFKThresholdSeconds,
		c.Tracker.SaveIntervalSeconds,
		c.Tracker.AutosaveIntervalSeconds,
		c.Tracker.RefreshIntervalSeconds,
		c.Tracker.LoopFailurePolicy,
		c.Data.LedgerPath,
		c.Data.HistoryDBPath,
		c.Daemon.PIDFile,
	)
}
