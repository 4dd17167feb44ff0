// Package ledger implements the durable time store: a crash-safe
// accumulator mapping (target, date) to elapsed seconds, persisted as a
// JSON file with backup, atomic replace, and an emergency-save fallback
// chain.
//
// All mutation goes through a single internal lock acquired under a
// bounded timeout, so a caller contending with a slow disk write gets
// ErrLockTimeout instead of blocking forever.
package ledger

import (
	"time"

	"github.com/pkg/errors"
)

// DateFormat is the calendar-day key format, in local time.
const DateFormat = "2006-01-02"

// DefaultLockTimeout bounds lock acquisition for every operation unless
// the caller overrides it (shutdown uses a longer budget).
const DefaultLockTimeout = 5 * time.Second

// ErrLockTimeout is returned when the store lock cannot be acquired
// within the timeout. Callers treat it as transient.
var ErrLockTimeout = errors.New("time store lock acquisition timed out")

// Store owns the ledger. Targets map to per-day accumulated whole
// seconds; a day entry only ever grows, except through ResetToday and
// DeleteTarget.
type Store struct {
	path        string
	lockTimeout time.Duration

	sem   chan struct{} // 1-slot semaphore; supports timed acquisition
	data  map[string]map[string]int64
	dirty bool

	now func() time.Time
}

// New creates a store persisting to path. The ledger is empty until
// Load is called.
func New(path string) *Store {
	return &Store{
		path:        path,
		lockTimeout: DefaultLockTimeout,
		sem:         make(chan struct{}, 1),
		data:        make(map[string]map[string]int64),
		now:         time.Now,
	}
}

// acquire takes the store lock, waiting at most timeout.
func (s *Store) acquire(timeout time.Duration) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	default:
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-t.C:
		return ErrLockTimeout
	}
}

func (s *Store) release() {
	<-s.sem
}

func (s *Store) today() string {
	return s.now().Format(DateFormat)
}

// AddTime accumulates seconds for target on today's date. Seconds must
// be positive; zero or negative amounts are rejected.
func (s *Store) AddTime(target string, seconds int64) error {
	return s.AddTimeOn(target, s.today(), seconds)
}

// AddTimeOn accumulates seconds for target on an explicit date.
func (s *Store) AddTimeOn(target, date string, seconds int64) error {
	if target == "" {
		return errors.New("target must not be empty")
	}
	if seconds <= 0 {
		return errors.Errorf("seconds must be positive, got %d", seconds)
	}

	if err := s.acquire(s.lockTimeout); err != nil {
		return err
	}
	defer s.release()

	days, ok := s.data[target]
	if !ok {
		days = make(map[string]int64)
		s.data[target] = days
	}
	days[date] += seconds
	s.dirty = true
	return nil
}

// TodaySeconds returns today's accumulated seconds for target.
func (s *Store) TodaySeconds(target string) (int64, error) {
	if err := s.acquire(s.lockTimeout); err != nil {
		return 0, err
	}
	defer s.release()
	return s.data[target][s.today()], nil
}

// WeeklySeconds sums the trailing 7 calendar days including today.
func (s *Store) WeeklySeconds(target string) (int64, error) {
	return s.trailingSeconds(target, 7)
}

// MonthlySeconds sums the trailing 30 calendar days including today.
func (s *Store) MonthlySeconds(target string) (int64, error) {
	return s.trailingSeconds(target, 30)
}

// trailingSeconds sums the last n calendar days; missing days count as
// zero.
func (s *Store) trailingSeconds(target string, n int) (int64, error) {
	if err := s.acquire(s.lockTimeout); err != nil {
		return 0, err
	}
	defer s.release()

	days := s.data[target]
	if days == nil {
		return 0, nil
	}

	var total int64
	now := s.now()
	for i := 0; i < n; i++ {
		total += days[now.AddDate(0, 0, -i).Format(DateFormat)]
	}
	return total, nil
}

// TotalSeconds sums every recorded day for target.
func (s *Store) TotalSeconds(target string) (int64, error) {
	if err := s.acquire(s.lockTimeout); err != nil {
		return 0, err
	}
	defer s.release()

	var total int64
	for _, seconds := range s.data[target] {
		total += seconds
	}
	return total, nil
}

// ResetToday sets today's entry for target to zero. The key is kept so
// the reset survives the next save.
func (s *Store) ResetToday(target string) error {
	if target == "" {
		return errors.New("target must not be empty")
	}

	if err := s.acquire(s.lockTimeout); err != nil {
		return err
	}
	defer s.release()

	days, ok := s.data[target]
	if !ok {
		days = make(map[string]int64)
		s.data[target] = days
	}
	days[s.today()] = 0
	s.dirty = true
	return nil
}

// DeleteTarget removes all dated entries for target.
func (s *Store) DeleteTarget(target string) error {
	if err := s.acquire(s.lockTimeout); err != nil {
		return err
	}
	defer s.release()

	delete(s.data, target)
	s.dirty = true
	return nil
}

// Targets returns the known target titles in unspecified order.
func (s *Store) Targets() ([]string, error) {
	if err := s.acquire(s.lockTimeout); err != nil {
		return nil, err
	}
	defer s.release()

	targets := make([]string, 0, len(s.data))
	for target := range s.data {
		targets = append(targets, target)
	}
	return targets, nil
}

// Snapshot returns a deep copy of the ledger. Observers and exporters
// never see live references into the store.
func (s *Store) Snapshot() (map[string]map[string]int64, error) {
	if err := s.acquire(s.lockTimeout); err != nil {
		return nil, err
	}
	defer s.release()
	return copyLedger(s.data), nil
}

func copyLedger(data map[string]map[string]int64) map[string]map[string]int64 {
	out := make(map[string]map[string]int64, len(data))
	for target, days := range data {
		dst := make(map[string]int64, len(days))
		for date, seconds := range days {
			dst[date] = seconds
		}
		out[target] = dst
	}
	return out
}
