// Package safesync provides the cooperative cancellation primitives shared
// by the background loops: a polling stop signal, bounded sleeps and joins,
// and a consecutive-failure counter with capped backoff.
//
// The signal is deliberately poll-based rather than built on a blocking
// wait. Every loop observes a shutdown request within one poll interval
// regardless of how the platform schedules blocked goroutines, and no loop
// can ever be parked indefinitely on a wait that never returns.
package safesync

import (
	"log"
	"sync/atomic"
	"time"
)

// pollInterval bounds how long a Wait or Sleep can run before re-checking
// the signal.
const pollInterval = 100 * time.Millisecond

// Signal is a resettable stop flag polled by background loops.
type Signal struct {
	fired atomic.Bool
}

// Set fires the signal.
func (s *Signal) Set() {
	s.fired.Store(true)
}

// Clear resets the signal so the owner can be restarted.
func (s *Signal) Clear() {
	s.fired.Store(false)
}

// IsSet reports whether the signal has fired.
func (s *Signal) IsSet() bool {
	return s.fired.Load()
}

// Wait blocks until the signal fires or the timeout elapses, polling at
// short intervals. It returns true if the signal fired.
func (s *Signal) Wait(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.fired.Load() {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		if remaining > pollInterval {
			remaining = pollInterval
		}
		time.Sleep(remaining)
	}
}

// Sleep pauses for d while watching the signal. It returns true if the
// full duration elapsed and false if the sleep was cut short by the
// signal; loops use the return value as "keep running".
func (s *Signal) Sleep(d time.Duration) bool {
	return !s.Wait(d)
}

// JoinTimeout waits for a loop's done channel for at most d. A loop that
// does not finish in time is abandoned rather than blocking shutdown; the
// timeout is logged with the loop's name.
func JoinTimeout(name string, done <-chan struct{}, d time.Duration) bool {
	select {
	case <-done:
		return true
	case <-time.After(d):
		log.Printf("timed out after %v waiting for %s loop to finish", d, name)
		return false
	}
}

// Failure-counter defaults shared by all loops.
const (
	DefaultMaxConsecutive = 5
	defaultBackoffBase    = time.Second
	defaultBackoffCap     = 60 * time.Second
)

// Failures tracks consecutive errors for a loop and derives the retry
// delay. After Max consecutive failures the loop must stop itself.
type Failures struct {
	Max         int           // fatal cap; DefaultMaxConsecutive if zero
	Base        time.Duration // first backoff step; 1s if zero
	Cap         time.Duration // backoff ceiling; 60s if zero
	consecutive int
}

// Failure records one error. It returns the delay to sleep before the
// next attempt and whether the consecutive-failure cap has been reached.
func (f *Failures) Failure() (time.Duration, bool) {
	f.consecutive++

	limit := f.Max
	if limit <= 0 {
		limit = DefaultMaxConsecutive
	}
	base := f.Base
	if base <= 0 {
		base = defaultBackoffBase
	}
	ceiling := f.Cap
	if ceiling <= 0 {
		ceiling = defaultBackoffCap
	}

	delay := base
	for i := 1; i < f.consecutive; i++ {
		delay *= 2
		if delay >= ceiling {
			delay = ceiling
			break
		}
	}

	return delay, f.consecutive >= limit
}

// Reset clears the counter after a successful iteration.
func (f *Failures) Reset() {
	f.consecutive = 0
}

// Count returns the current consecutive-failure count.
func (f *Failures) Count() int {
	return f.consecutive
}
