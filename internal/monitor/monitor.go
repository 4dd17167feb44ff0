// Package monitor wraps the platform probe so the tracking state machine
// never touches OS queries directly. It caches the running-process set,
// refreshed by a background loop, and swallows transient probe failures
// the way the tracking loop expects: a failed query is "no active
// process" or "no idle time", never an exception in the tick.
package monitor

import (
	"log"
	"sync"
	"time"

	"playtrack/internal/safesync"
	"playtrack/pkg/probe"
)

// DefaultRefreshInterval is how often the process list is re-read.
// Enumerating processes is comparatively expensive, so it is cached
// rather than computed per tick.
const DefaultRefreshInterval = 120 * time.Second

// ProcessListCallback receives a defensive copy of the process set
// whenever the refreshed set differs from the previous one. Callbacks
// run outside the monitor lock.
type ProcessListCallback func([]string)

// FatalFunc is invoked when the refresh loop gives up after repeated
// consecutive failures.
type FatalFunc func(loop string, err error)

// Monitor polls the probe and maintains the cached process list.
type Monitor struct {
	probe           probe.Probe
	refreshInterval time.Duration
	onFatal         FatalFunc

	mu        sync.Mutex
	processes []string
	callbacks []ProcessListCallback
	running   bool

	stop safesync.Signal
	done chan struct{}
}

// New creates a monitor over the given probe. onFatal may be nil.
func New(p probe.Probe, refreshInterval time.Duration, onFatal FatalFunc) *Monitor {
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}
	return &Monitor{
		probe:           p,
		refreshInterval: refreshInterval,
		onFatal:         onFatal,
	}
}

// Start performs an initial refresh and spawns the refresh loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.stop.Clear()
	m.done = make(chan struct{})

	if err := m.Refresh(); err != nil {
		log.Printf("initial process list load failed: %v", err)
	}

	go m.refreshLoop()
}

// Stop signals the refresh loop and waits for it with a bounded join.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.stop.Set()
	if m.done != nil {
		safesync.JoinTimeout("process-refresh", m.done, 5*time.Second)
	}
}

// ActiveProcessName returns the lower-cased foreground process name, or
// "" when there is none or the probe failed.
func (m *Monitor) ActiveProcessName() string {
	name, err := m.probe.ActiveProcessName()
	if err != nil {
		return ""
	}
	return name
}

// IdleSeconds returns seconds since last user input; probe failures
// count as zero idle time.
func (m *Monitor) IdleSeconds() float64 {
	idle, err := m.probe.IdleSeconds()
	if err != nil {
		return 0
	}
	return idle
}

// Processes returns a copy of the cached process list.
func (m *Monitor) Processes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.processes))
	copy(out, m.processes)
	return out
}

// AddProcessListCallback registers an observer for process-list changes.
func (m *Monitor) AddProcessListCallback(cb ProcessListCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

// Refresh re-reads the process list immediately, notifying observers if
// it changed. UI-triggered refresh uses this directly.
func (m *Monitor) Refresh() error {
	fresh, err := m.probe.RunningProcesses()
	if err != nil {
		return err
	}

	m.mu.Lock()
	if equalStrings(m.processes, fresh) {
		m.mu.Unlock()
		return nil
	}
	m.processes = fresh
	callbacks := make([]ProcessListCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, cb := range callbacks {
		snapshot := make([]string, len(fresh))
		copy(snapshot, fresh)
		cb(snapshot)
	}
	return nil
}

func (m *Monitor) refreshLoop() {
	defer close(m.done)

	var failures safesync.Failures
	for !m.stop.IsSet() {
		if err := m.Refresh(); err != nil {
			delay, fatal := failures.Failure()
			log.Printf("process list refresh failed (%d consecutive): %v", failures.Count(), err)
			if fatal {
				log.Printf("FATAL: process-refresh loop stopping after %d consecutive failures", failures.Count())
				if m.onFatal != nil {
					m.onFatal("process-refresh", err)
				}
				return
			}
			if !m.stop.Sleep(delay) {
				return
			}
			continue
		}
		failures.Reset()

		if !m.stop.Sleep(m.refreshInterval) {
			return
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
