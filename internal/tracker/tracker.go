// Package tracker implements the tracking state machine: it consumes
// activity samples, decides ACTIVE/AFK/INACTIVE, flushes elapsed time
// into the ledger, and fans out notifications over a bounded channel.
//
// Two background loops run here: the tracking loop (1s ticks) and the
// autosave loop (30s saves). Both poll the shared stop signal and
// synchronize with other writers only through the ledger's internal
// lock, so neither can deadlock against a slow disk write.
package tracker

import (
	"log"
	"strings"
	"sync"
	"time"

	"playtrack/internal/history"
	"playtrack/internal/ledger"
	"playtrack/internal/safesync"
)

// Sampler is the slice of the activity monitor the state machine needs.
// Implementations swallow OS failures: no foreground process is "" and
// an unknown idle time is 0.
type Sampler interface {
	ActiveProcessName() string
	IdleSeconds() float64
}

// Options tune the loops. Zero values select the defaults.
type Options struct {
	TickInterval     time.Duration // state evaluation period (1s)
	SaveInterval     time.Duration // max unflushed active time (10s)
	AutosaveInterval time.Duration // ledger save period (30s)
	AFKThreshold     int           // seconds of idle before AFK
	ShutdownTimeout  time.Duration // lock budget for the final save (10s)

	// HaltOnLoopFailure makes a loop that dies from repeated
	// consecutive errors take the whole subsystem down. The default
	// leaves the remaining loops running in a degraded state.
	HaltOnLoopFailure bool
}

const (
	defaultTickInterval     = time.Second
	defaultSaveInterval     = 10 * time.Second
	defaultAutosaveInterval = 30 * time.Second
	defaultAFKThreshold     = 60
	defaultShutdownTimeout  = 10 * time.Second
	notificationBuffer      = 64
	joinTimeout             = 5 * time.Second
)

// Tracker is the orchestrator. Session fields (target, process, session
// start) are owned here and mutated only under mu, in the same scope as
// the ledger flushes they relate to, so a target switch can never race
// a flush of the previous target's time.
type Tracker struct {
	store   *ledger.Store
	sampler Sampler
	repo    *history.Repository // best-effort; may be nil

	opts Options

	mu           sync.Mutex
	target       string
	process      string
	sessionStart time.Time // zero means no open session
	lastFlush    time.Time
	afkThreshold float64
	state        State
	running      bool

	notifications chan Notification
	stop          safesync.Signal
	trackDone     chan struct{}
	autosaveDone  chan struct{}

	now func() time.Time
}

// New creates a tracker over the given store and sampler. repo may be
// nil to disable history recording.
func New(store *ledger.Store, sampler Sampler, repo *history.Repository, opts Options) *Tracker {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.SaveInterval <= 0 {
		opts.SaveInterval = defaultSaveInterval
	}
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = defaultAutosaveInterval
	}
	if opts.AFKThreshold < 0 {
		opts.AFKThreshold = defaultAFKThreshold
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaultShutdownTimeout
	}

	return &Tracker{
		store:         store,
		sampler:       sampler,
		repo:          repo,
		opts:          opts,
		afkThreshold:  float64(opts.AFKThreshold),
		state:         StateInactive,
		notifications: make(chan Notification, notificationBuffer),
		now:           time.Now,
	}
}

// Notifications is the bounded channel carrying state and update
// messages to the UI boundary. Messages are dropped, never blocked on,
// when the consumer falls behind.
func (t *Tracker) Notifications() <-chan Notification {
	return t.notifications
}

// Start spawns the tracking and autosave loops.
func (t *Tracker) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()

	t.stop.Clear()
	t.trackDone = make(chan struct{})
	t.autosaveDone = make(chan struct{})

	log.Printf("starting tracker: tick=%v flush=%v autosave=%v afk=%ds",
		t.opts.TickInterval, t.opts.SaveInterval, t.opts.AutosaveInterval, t.opts.AFKThreshold)

	go t.trackLoop()
	go t.autosaveLoop()
}

// Shutdown stops and joins the loops first, then performs the final
// flush and a forced save under a bounded lock budget, falling back to
// the emergency-save chain if that budget expires. Joining before the
// save means no tick can flush or reopen a session once the final save
// has started. Loops that do not finish within the join timeout are
// abandoned rather than blocking process exit.
func (t *Tracker) Shutdown() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	t.stop.Set()
	if t.trackDone != nil {
		safesync.JoinTimeout("tracking", t.trackDone, joinTimeout)
	}
	if t.autosaveDone != nil {
		safesync.JoinTimeout("autosave", t.autosaveDone, joinTimeout)
	}

	t.mu.Lock()
	t.closeSession(t.now())
	t.mu.Unlock()

	if err := t.store.SaveWithTimeout(true, t.opts.ShutdownTimeout); err != nil {
		log.Printf("final save failed: %v, invoking emergency save", err)
		t.store.EmergencySave()
	}
}

// SetTarget binds a target title to a process name. Pending elapsed
// time for the previous target is flushed first, under the same lock,
// so no time can be attributed to the wrong target. The change takes
// effect on the next tick.
func (t *Tracker) SetTarget(target, process string) {
	t.mu.Lock()
	t.closeSession(t.now())
	t.target = target
	t.process = strings.ToLower(process)
	t.mu.Unlock()
}

// Stop flushes pending time for the current target, clears the session,
// forces INACTIVE, and notifies observers with the flushed total.
func (t *Tracker) Stop() {
	t.mu.Lock()
	flushed := t.closeSession(t.now())
	prevTarget, prevProcess := t.target, t.process
	t.target = ""
	t.process = ""
	t.state = StateInactive
	t.mu.Unlock()

	if prevTarget == "" {
		return
	}

	seconds, err := t.store.TodaySeconds(prevTarget)
	if err != nil {
		log.Printf("failed to read seconds on stop: %v", err)
	}
	t.recordTransition(prevTarget, prevProcess, StateInactive, flushed)
	t.send(Notification{Kind: KindStateChanged, State: StateInactive, Target: prevTarget, Seconds: seconds})
}

// SetAFKThreshold updates the idle threshold in seconds. Negative
// values clamp to zero; the new threshold applies from the next tick.
func (t *Tracker) SetAFKThreshold(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	t.mu.Lock()
	t.afkThreshold = float64(seconds)
	t.mu.Unlock()
}

// State returns the current tracking state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Target returns the currently bound target title.
func (t *Tracker) Target() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}

// CurrentSeconds returns today's persisted seconds for the bound target
// plus any in-progress session time. A tick that flushes time resets
// the session start in the same lock scope, so this never double-counts.
func (t *Tracker) CurrentSeconds() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentSeconds(t.now())
}

// currentSeconds computes persisted + in-progress seconds. Caller must
// hold t.mu.
func (t *Tracker) currentSeconds(now time.Time) int64 {
	if t.target == "" {
		return 0
	}
	base, err := t.store.TodaySeconds(t.target)
	if err != nil {
		log.Printf("failed to read today's seconds: %v", err)
		return 0
	}
	if !t.sessionStart.IsZero() {
		base += int64(now.Sub(t.sessionStart).Seconds())
	}
	return base
}

// closeSession flushes an open session's elapsed time into the ledger
// and clears the session start. Fractional seconds are truncated so a
// flush can never overcount. Caller must hold t.mu. Returns the number
// of seconds flushed.
func (t *Tracker) closeSession(now time.Time) int64 {
	if t.target == "" || t.sessionStart.IsZero() {
		t.sessionStart = time.Time{}
		return 0
	}

	elapsed := int64(now.Sub(t.sessionStart).Seconds())
	t.sessionStart = time.Time{}
	if elapsed <= 0 {
		return 0
	}
	if err := t.store.AddTime(t.target, elapsed); err != nil {
		log.Printf("failed to flush %ds for %q: %v", elapsed, t.target, err)
		return 0
	}
	return elapsed
}

// tick evaluates the state machine once. State evaluation, flush, and
// seconds computation happen under one lock acquisition; notifications
// and history writes happen after the lock is released.
func (t *Tracker) tick() error {
	t.mu.Lock()

	if t.target == "" || t.process == "" {
		t.state = StateInactive
		t.sessionStart = time.Time{}
		t.mu.Unlock()
		return nil
	}

	active := t.sampler.ActiveProcessName()
	idle := t.sampler.IdleSeconds()
	now := t.now()

	var tickErr error
	var flushed int64
	var newState State

	switch {
	case active != t.process:
		newState = StateInactive
		flushed = t.flushOnExit(now, &tickErr)

	case idle >= t.afkThreshold:
		// An exact tie counts as AFK, not ACTIVE.
		newState = StateAFK
		flushed = t.flushOnExit(now, &tickErr)

	default:
		newState = StateActive
		if t.sessionStart.IsZero() {
			t.sessionStart = now
			t.lastFlush = now
		}
	}

	// Periodic partial flush while ACTIVE bounds the data an unclean
	// shutdown can lose to roughly one save interval.
	if newState == StateActive && now.Sub(t.lastFlush) > t.opts.SaveInterval {
		elapsed := int64(now.Sub(t.sessionStart).Seconds())
		if elapsed > 0 {
			if err := t.store.AddTime(t.target, elapsed); err != nil {
				tickErr = err
			} else {
				t.sessionStart = now
				t.lastFlush = now
			}
		}
	}

	changed := newState != t.state
	t.state = newState
	target, process := t.target, t.process
	seconds := t.currentSeconds(now)
	t.mu.Unlock()

	if changed {
		t.recordTransition(target, process, newState, flushed)
		t.send(Notification{Kind: KindStateChanged, State: newState, Target: target, Seconds: seconds})
	}
	t.send(Notification{Kind: KindUpdate, State: newState, Target: target, Seconds: seconds})

	return tickErr
}

// flushOnExit closes the session when leaving ACTIVE, routing a flush
// failure into the tick error. Caller must hold t.mu.
func (t *Tracker) flushOnExit(now time.Time, tickErr *error) int64 {
	if t.sessionStart.IsZero() {
		return 0
	}
	elapsed := int64(now.Sub(t.sessionStart).Seconds())
	t.sessionStart = time.Time{}
	if elapsed <= 0 {
		return 0
	}
	if err := t.store.AddTime(t.target, elapsed); err != nil {
		*tickErr = err
		return 0
	}
	return elapsed
}

func (t *Tracker) trackLoop() {
	defer close(t.trackDone)

	var failures safesync.Failures
	for !t.stop.IsSet() {
		if err := t.tick(); err != nil {
			delay, fatal := failures.Failure()
			log.Printf("tracking tick failed (%d consecutive): %v", failures.Count(), err)
			t.recordError("tracking", err)
			if fatal {
				t.loopFatal("tracking", err)
				return
			}
			if !t.stop.Sleep(delay) {
				return
			}
			continue
		}
		failures.Reset()

		if !t.stop.Sleep(t.opts.TickInterval) {
			return
		}
	}
}

func (t *Tracker) autosaveLoop() {
	defer close(t.autosaveDone)

	var failures safesync.Failures
	for !t.stop.IsSet() {
		if err := t.store.Save(false); err != nil {
			delay, fatal := failures.Failure()
			log.Printf("autosave failed (%d consecutive): %v", failures.Count(), err)
			t.recordError("autosave", err)
			if fatal {
				t.loopFatal("autosave", err)
				return
			}
			if !t.stop.Sleep(delay) {
				return
			}
			continue
		}
		failures.Reset()

		if !t.stop.Sleep(t.opts.AutosaveInterval) {
			return
		}
	}
}

// LoopFatal is the shared policy hook for a loop that has given up.
// The monitor's refresh loop reports here too, so one setting governs
// all three loops.
func (t *Tracker) LoopFatal(name string, err error) {
	t.loopFatal(name, err)
}

func (t *Tracker) loopFatal(name string, err error) {
	log.Printf("FATAL: %s loop stopped after repeated failures: %v", name, err)
	if t.opts.HaltOnLoopFailure {
		log.Printf("halting tracker: loop failure policy is halt")
		t.stop.Set()
	}
}

// send delivers a notification without ever blocking the tick. When the
// consumer has fallen behind and the buffer is full, the message is
// dropped.
func (t *Tracker) send(n Notification) {
	select {
	case t.notifications <- n:
	default:
	}
}

// recordTransition writes a history row for a state change. History is
// best-effort and never affects tracking.
func (t *Tracker) recordTransition(target, process string, state State, flushed int64) {
	if t.repo == nil {
		return
	}
	event := &history.SessionEvent{
		Timestamp:      t.now(),
		Target:         target,
		Process:        process,
		State:          state.String(),
		FlushedSeconds: flushed,
	}
	if err := t.repo.CreateEvent(event); err != nil {
		log.Printf("failed to record session event: %v", err)
	}
}

// recordError stores a loop error in the history database.
func (t *Tracker) recordError(source string, cause error) {
	if t.repo == nil {
		return
	}
	entry := &history.ErrorLog{
		Timestamp: t.now(),
		Source:    source,
		ErrorMsg:  cause.Error(),
	}
	if err := t.repo.CreateErrorLog(entry); err != nil {
		log.Printf("failed to store error in history: %v (original error: %v)", err, cause)
	}
}
