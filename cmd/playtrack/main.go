package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"playtrack/internal/config"
	"playtrack/internal/daemon"
	"playtrack/internal/history"
	"playtrack/internal/ledger"
	"playtrack/internal/monitor"
	"playtrack/internal/reporter"
	"playtrack/internal/tracker"
	"playtrack/pkg/probe/x11"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "start":
		startDaemon()
	case "run":
		runForeground()
	case "stop":
		stopDaemon()
	case "status":
		showStatus()
	case "report":
		generateReport()
	case "export":
		exportData()
	case "reset":
		resetToday()
	case "version":
		fmt.Printf("playtrack version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`playtrack - Engaged-time tracker for a designated application

Usage:
  playtrack <command> [options]

Commands:
  start [title process]   Start the tracking daemon (a bare process name
                          resumes its bound title; no arguments resume
                          the last target)
  run [title process]     Run the tracker in the foreground
  stop                    Stop the tracking daemon
  status                  Show daemon status and today's time
  report [period]         Generate a time report (period: day, week, month)
  export <target> [dir]   Export one target's daily log as CSV
  export --all [path]     Export the full ledger as JSON
  reset <target>          Reset today's time for a target to zero
  version                 Show version information
  help                    Show this help message

Examples:
  playtrack start "Some Title" game.exe
  playtrack status
  playtrack report week
  playtrack export "Some Title" .
  playtrack stop

Environment Variables:
  PLAYTRACK_LEDGER_PATH          Time data file path
  PLAYTRACK_HISTORY_DB           History database path
  PLAYTRACK_AFK_THRESHOLD        AFK threshold in seconds
  PLAYTRACK_GOAL_MINUTES         Daily goal in minutes
  PLAYTRACK_SAVE_INTERVAL        Flush interval in seconds
  PLAYTRACK_LOOP_FAILURE_POLICY  isolate (default) or halt
  PLAYTRACK_PID_FILE             PID file path

Version: %s
`, version)
}

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

// targetFromArgs resolves the target/process pair from the command line.
// A bare process name resolves through the saved bindings; no arguments
// falls back to the last tracked pair remembered in the config file.
func targetFromArgs(cfg *config.Config, args []string) (string, string) {
	switch {
	case len(args) >= 2:
		title := args[0]
		process := strings.ToLower(args[1])
		rememberTarget(cfg, title, process)
		return title, process

	case len(args) == 1:
		process := strings.ToLower(args[0])
		title, ok := cfg.Binding[process]
		if !ok {
			log.Printf("no saved target is bound to process %q", process)
			return "", ""
		}
		rememberTarget(cfg, title, process)
		return title, process
	}
	return cfg.Session.LastTarget, cfg.Session.LastProcess
}

func rememberTarget(cfg *config.Config, title, process string) {
	cfg.Session.LastTarget = title
	cfg.Session.LastProcess = process
	cfg.Binding[process] = title
	if err := cfg.Save(""); err != nil {
		log.Printf("failed to remember target in config: %v", err)
	}
}

func startDaemon() {
	cfg := loadConfig()

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}
	if running {
		log.Fatalf("Daemon is already running (PID: %d)", pid)
	}

	if os.Getenv("PLAYTRACK_DAEMON_CHILD") != "1" {
		daemonize(cfg)
		return
	}

	runDaemon(cfg, dm, false)
}

func runForeground() {
	cfg := loadConfig()

	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}
	if running {
		log.Fatalf("Daemon is already running (PID: %d)", pid)
	}

	runDaemon(cfg, dm, true)
}

func runDaemon(cfg *config.Config, dm *daemon.Daemon, foreground bool) {
	if !foreground {
		if logPath, err := cfg.LogFilePath(); err == nil {
			if logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
				log.SetOutput(logFile)
				defer logFile.Close()
			}
		}
	}

	ledgerPath, err := cfg.LedgerPath()
	if err != nil {
		log.Fatalf("Failed to resolve ledger path: %v", err)
	}
	store := ledger.New(ledgerPath)
	if err := store.Load(); err != nil {
		log.Fatalf("Failed to load time data: %v", err)
	}

	// History is a best-effort side channel; tracking runs without it.
	var repo *history.Repository
	db, err := history.Connect(cfg.Data.HistoryDBPath)
	if err != nil {
		log.Printf("history database unavailable: %v", err)
	} else {
		defer db.Close()
		if err := db.Initialize(); err != nil {
			log.Printf("history schema initialization failed: %v", err)
		} else {
			repo = history.NewRepository(db)
		}
	}

	if !x11.IsAvailable() {
		log.Fatalf("No X11 display available; cannot probe the foreground window")
	}
	prb, err := x11.New()
	if err != nil {
		log.Fatalf("Failed to initialize activity probe: %v", err)
	}
	defer prb.Close()

	var tr *tracker.Tracker
	mon := monitor.New(prb, cfg.RefreshInterval(), func(name string, err error) {
		if tr != nil {
			tr.LoopFatal(name, err)
		}
	})

	tr = tracker.New(store, mon, repo, tracker.Options{
		SaveInterval:      cfg.SaveInterval(),
		AutosaveInterval:  cfg.AutosaveInterval(),
		AFKThreshold:      cfg.Tracker.AFKThresholdSeconds,
		HaltOnLoopFailure: cfg.Tracker.LoopFailurePolicy == "halt",
	})

	if err := dm.WritePID(); err != nil {
		log.Fatalf("Failed to write PID file: %v", err)
	}
	defer dm.RemovePID()

	mon.AddProcessListCallback(func(processes []string) {
		log.Printf("process list refreshed: %d processes", len(processes))
	})

	// Drain notifications; the daemon has no UI, so state changes just
	// go to the log.
	go func() {
		for n := range tr.Notifications() {
			if n.Kind == tracker.KindStateChanged {
				log.Printf("state: %s (%s today: %s)", n.State, n.Target, reporter.FormatHMS(n.Seconds))
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	mon.Start()
	tr.Start()

	title, process := targetFromArgs(cfg, os.Args[2:])
	if title != "" && process != "" {
		log.Printf("tracking %q bound to process %q", title, process)
		tr.SetTarget(title, process)
	} else {
		log.Printf("no target bound; waiting for one (start with: playtrack start <title> <process>)")
	}

	log.Println("Starting playtrack daemon...")
	log.Printf("Configuration:\n%s", cfg.String())

	<-sigChan
	log.Println("Received shutdown signal")

	tr.Shutdown()
	mon.Stop()

	log.Println("Daemon stopped successfully")
}

func daemonize(cfg *config.Config) {
	env := os.Environ()
	env = append(env, "PLAYTRACK_DAEMON_CHILD=1")

	procAttr := &os.ProcAttr{
		Env:   env,
		Files: []*os.File{nil, nil, nil}, // stdin, stdout, stderr to /dev/null
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	process, err := os.StartProcess(os.Args[0], os.Args, procAttr)
	if err != nil {
		log.Fatalf("Failed to start daemon process: %v", err)
	}

	fmt.Printf("Daemon started successfully (PID: %d)\n", process.Pid)
	if logPath, err := cfg.LogFilePath(); err == nil {
		fmt.Printf("Logs: %s\n", logPath)
	}
}

func stopDaemon() {
	cfg := loadConfig()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}

	if !running {
		fmt.Println("Daemon is not running")
		return
	}

	fmt.Printf("Stopping daemon (PID: %d)...\n", pid)
	if err := dm.Stop(); err != nil {
		log.Fatalf("Failed to stop daemon: %v", err)
	}

	fmt.Println("Daemon stopped successfully")
}

func showStatus() {
	cfg := loadConfig()
	dm := daemon.New(cfg.Daemon.PIDFile)

	running, pid, err := dm.IsRunning()
	if err != nil {
		log.Fatalf("Failed to check daemon status: %v", err)
	}

	if !running {
		fmt.Println("Status: Not running")
	} else {
		fmt.Printf("Status: Running (PID: %d)\n", pid)
	}

	if cfg.Session.LastTarget != "" {
		fmt.Printf("Target: %s (process: %s)\n", cfg.Session.LastTarget, cfg.Session.LastProcess)
	}

	// Read-only view of the persisted ledger; in-progress time in a
	// running daemon may lag by up to one flush interval.
	ledgerPath, err := cfg.LedgerPath()
	if err == nil {
		store := ledger.New(ledgerPath)
		if err := store.Load(); err == nil && cfg.Session.LastTarget != "" {
			if today, err := store.TodaySeconds(cfg.Session.LastTarget); err == nil {
				fmt.Printf("Today: %s", reporter.FormatHMS(today))
				if cfg.GoalMinutes > 0 {
					fmt.Printf("  (goal: %dm)", cfg.GoalMinutes)
				}
				fmt.Println()
			}
		}
	}

	if x11.IsAvailable() {
		if prb, err := x11.New(); err == nil {
			defer prb.Close()
			if name, err := prb.ActiveProcessName(); err == nil && name != "" {
				fmt.Printf("Foreground process: %s\n", name)
			}
			if idle, err := prb.IdleSeconds(); err == nil {
				fmt.Printf("Idle: %.0fs\n", idle)
			}
		}
	}
}

func generateReport() {
	period := "day"
	if len(os.Args) > 2 {
		period = os.Args[2]
	}

	cfg := loadConfig()
	store := openStore(cfg)

	rep := reporter.New(store, cfg.GoalMinutes)
	report, err := rep.Generate(period)
	if err != nil {
		log.Fatalf("Failed to generate report: %v", err)
	}

	fmt.Println(rep.FormatText(report))
}

func exportData() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: playtrack export <target> [dir] | export --all [path]")
		os.Exit(1)
	}

	cfg := loadConfig()
	store := openStore(cfg)

	if os.Args[2] == "--all" {
		path := "playtrack_export.json"
		if len(os.Args) > 3 {
			path = os.Args[3]
		}
		if err := store.ExportAll(path); err != nil {
			log.Fatalf("Failed to export data: %v", err)
		}
		fmt.Printf("Exported full ledger to %s\n", path)
		return
	}

	target := os.Args[2]
	dir := "."
	if len(os.Args) > 3 {
		dir = os.Args[3]
	}
	path, err := store.ExportTarget(target, dir)
	if err != nil {
		log.Fatalf("Failed to export %q: %v", target, err)
	}
	fmt.Printf("Exported %q to %s\n", target, path)
}

func resetToday() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: playtrack reset <target>")
		os.Exit(1)
	}
	target := os.Args[2]

	fmt.Printf("This will reset today's time for %q to zero. Are you sure? (yes/no): ", target)
	var response string
	fmt.Scanln(&response)
	if response != "yes" && response != "y" {
		fmt.Println("Operation cancelled")
		return
	}

	cfg := loadConfig()
	store := openStore(cfg)

	if err := store.ResetToday(target); err != nil {
		log.Fatalf("Failed to reset today: %v", err)
	}
	if err := store.Save(true); err != nil {
		log.Fatalf("Failed to save time data: %v", err)
	}
	fmt.Println("Today's time reset to zero")
}

func openStore(cfg *config.Config) *ledger.Store {
	ledgerPath, err := cfg.LedgerPath()
	if err != nil {
		log.Fatalf("Failed to resolve ledger path: %v", err)
	}
	store := ledger.New(ledgerPath)
	if err := store.Load(); err != nil {
		log.Fatalf("Failed to load time data: %v", err)
	}
	return store
}
