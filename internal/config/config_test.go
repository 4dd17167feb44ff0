package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.GoalMinutes != 90 {
		t.Errorf("GoalMinutes = %d, want 90", cfg.GoalMinutes)
	}
	if cfg.Tracker.AFKThresholdSeconds != 60 {
		t.Errorf("AFKThresholdSeconds = %d, want 60", cfg.Tracker.AFKThresholdSeconds)
	}
	if cfg.SaveInterval() != 10*time.Second {
		t.Errorf("SaveInterval = %v, want 10s", cfg.SaveInterval())
	}
	if cfg.AutosaveInterval() != 30*time.Second {
		t.Errorf("AutosaveInterval = %v, want 30s", cfg.AutosaveInterval())
	}
	if cfg.RefreshInterval() != 120*time.Second {
		t.Errorf("RefreshInterval = %v, want 120s", cfg.RefreshInterval())
	}
	if cfg.Tracker.LoopFailurePolicy != "isolate" {
		t.Errorf("LoopFailurePolicy = %q, want isolate", cfg.Tracker.LoopFailurePolicy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadFrom() on missing file error: %v", err)
	}
	if cfg.GoalMinutes != DefaultGoalMinutes {
		t.Errorf("GoalMinutes = %d, want default %d", cfg.GoalMinutes, DefaultGoalMinutes)
	}
}

func TestLoadFromMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("goal_minutes = [broken"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom() on malformed TOML should fail")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg := Default()
	cfg.GoalMinutes = 45
	cfg.Tracker.AFKThresholdSeconds = 120
	cfg.Session.LastTarget = "My Novel"
	cfg.Session.LastProcess = "foo.exe"
	cfg.Binding["foo.exe"] = "My Novel"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error: %v", err)
	}
	if loaded.GoalMinutes != 45 {
		t.Errorf("GoalMinutes = %d, want 45", loaded.GoalMinutes)
	}
	if loaded.Tracker.AFKThresholdSeconds != 120 {
		t.Errorf("AFKThresholdSeconds = %d, want 120", loaded.Tracker.AFKThresholdSeconds)
	}
	if loaded.Session.LastTarget != "My Novel" {
		t.Errorf("LastTarget = %q, want My Novel", loaded.Session.LastTarget)
	}
	if loaded.Binding["foo.exe"] != "My Novel" {
		t.Errorf("Binding = %v, want foo.exe -> My Novel", loaded.Binding)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("goal_minutes = 30\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GoalMinutes != 30 {
		t.Errorf("GoalMinutes = %d, want 30", cfg.GoalMinutes)
	}
	if cfg.Tracker.AFKThresholdSeconds != DefaultAFKThreshold {
		t.Errorf("unset field AFKThresholdSeconds = %d, want default %d",
			cfg.Tracker.AFKThresholdSeconds, DefaultAFKThreshold)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("goal_minutes = 30\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PLAYTRACK_GOAL_MINUTES", "200")
	t.Setenv("PLAYTRACK_AFK_THRESHOLD", "15")
	t.Setenv("PLAYTRACK_LEDGER_PATH", "/tmp/other.json")
	t.Setenv("PLAYTRACK_LOOP_FAILURE_POLICY", "halt")

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GoalMinutes != 200 {
		t.Errorf("GoalMinutes = %d, env should win over file", cfg.GoalMinutes)
	}
	if cfg.Tracker.AFKThresholdSeconds != 15 {
		t.Errorf("AFKThresholdSeconds = %d, want 15", cfg.Tracker.AFKThresholdSeconds)
	}
	if cfg.Data.LedgerPath != "/tmp/other.json" {
		t.Errorf("LedgerPath = %q, want /tmp/other.json", cfg.Data.LedgerPath)
	}
	if cfg.Tracker.LoopFailurePolicy != "halt" {
		t.Errorf("LoopFailurePolicy = %q, want halt", cfg.Tracker.LoopFailurePolicy)
	}
}

func TestEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("PLAYTRACK_GOAL_MINUTES", "not-a-number")
	t.Setenv("PLAYTRACK_AFK_THRESHOLD", "-5")
	t.Setenv("PLAYTRACK_LOOP_FAILURE_POLICY", "explode")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GoalMinutes != DefaultGoalMinutes {
		t.Errorf("GoalMinutes = %d, invalid env should be ignored", cfg.GoalMinutes)
	}
	if cfg.Tracker.AFKThresholdSeconds != DefaultAFKThreshold {
		t.Errorf("AFKThresholdSeconds = %d, negative env should be ignored", cfg.Tracker.AFKThresholdSeconds)
	}
	if cfg.Tracker.LoopFailurePolicy != "isolate" {
		t.Errorf("LoopFailurePolicy = %q, unknown env should be ignored", cfg.Tracker.LoopFailurePolicy)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative goal", func(c *Config) { c.GoalMinutes = -1 }},
		{"negative afk threshold", func(c *Config) { c.Tracker.AFKThresholdSeconds = -1 }},
		{"zero save interval", func(c *Config) { c.Tracker.SaveIntervalSeconds = 0 }},
		{"zero autosave interval", func(c *Config) { c.Tracker.AutosaveIntervalSeconds = 0 }},
		{"zero refresh interval", func(c *Config) { c.Tracker.RefreshIntervalSeconds = 0 }},
		{"unknown failure policy", func(c *Config) { c.Tracker.LoopFailurePolicy = "retry" }},
		{"empty pid file", func(c *Config) { c.Daemon.PIDFile = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}
