package config

import (
	"os"
	"strconv"
)

// loadFromEnv applies environment variable overrides on top of the
// file-derived configuration.
func loadFromEnv(cfg *Config) {
	if ledgerPath := os.Getenv("PLAYTRACK_LEDGER_PATH"); ledgerPath != "" {
		cfg.Data.LedgerPath = ledgerPath
	}

	if dbPath := os.Getenv("PLAYTRACK_HISTORY_DB"); dbPath != "" {
		cfg.Data.HistoryDBPath = dbPath
	}

	if logFile := os.Getenv("PLAYTRACK_LOG_FILE"); logFile != "" {
		cfg.Data.LogFile = logFile
	}

	if afk := os.Getenv("PLAYTRACK_AFK_THRESHOLD"); afk != "" {
		if seconds, err := strconv.Atoi(afk); err == nil && seconds >= 0 {
			cfg.Tracker.AFKThresholdSeconds = seconds
		}
	}

	if goal := os.Getenv("PLAYTRACK_GOAL_MINUTES"); goal != "" {
		if minutes, err := strconv.Atoi(goal); err == nil && minutes >= 0 {
			cfg.GoalMinutes = minutes
		}
	}

	if save := os.Getenv("PLAYTRACK_SAVE_INTERVAL"); save != "" {
		if seconds, err := strconv.Atoi(save); err == nil && seconds > 0 {
			cfg.Tracker.SaveIntervalSeconds = seconds
		}
	}

	if policy := os.Getenv("PLAYTRACK_LOOP_FAILURE_POLICY"); policy == "isolate" || policy == "halt" {
		cfg.Tracker.LoopFailurePolicy = policy
	}

	if pidFile := os.Getenv("PLAYTRACK_PID_FILE"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}
}
