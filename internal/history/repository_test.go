package history

import (
	"testing"
	"time"
)

func setupTestRepo(t *testing.T) *Repository {
	t.Helper()

	db, err := Connect(":memory:")
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Initialize(); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}
	return NewRepository(db)
}

func TestCreateEventLowercasesProcess(t *testing.T) {
	repo := setupTestRepo(t)

	event := &SessionEvent{
		Timestamp: time.Now(),
		Target:    "My Novel",
		Process:   "FOO.EXE",
		State:     "ACTIVE",
	}
	if err := repo.CreateEvent(event); err != nil {
		t.Fatalf("CreateEvent() error: %v", err)
	}

	latest, err := repo.LatestEvent()
	if err != nil {
		t.Fatalf("LatestEvent() error: %v", err)
	}
	if latest == nil {
		t.Fatal("LatestEvent() returned nil after insert")
	}
	if latest.Process != "foo.exe" {
		t.Errorf("Process = %q, want foo.exe", latest.Process)
	}
	if latest.Target != "My Novel" {
		t.Errorf("Target = %q, want My Novel", latest.Target)
	}
}

func TestLatestEventEmptyHistory(t *testing.T) {
	repo := setupTestRepo(t)

	latest, err := repo.LatestEvent()
	if err != nil {
		t.Fatalf("LatestEvent() error: %v", err)
	}
	if latest != nil {
		t.Errorf("LatestEvent() on empty history = %+v, want nil", latest)
	}
}

func TestEventsSinceFiltersAndOrders(t *testing.T) {
	repo := setupTestRepo(t)
	base := time.Now().Add(-time.Hour)

	states := []string{"ACTIVE", "AFK", "ACTIVE", "INACTIVE"}
	for i, state := range states {
		event := &SessionEvent{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Target:    "My Novel",
			Process:   "foo.exe",
			State:     state,
		}
		if err := repo.CreateEvent(event); err != nil {
			t.Fatal(err)
		}
	}

	// Cutoff excludes the first event only.
	events, err := repo.EventsSince(base.Add(30 * time.Second))
	if err != nil {
		t.Fatalf("EventsSince() error: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("EventsSince() returned %d events, want 3", len(events))
	}
	want := []string{"AFK", "ACTIVE", "INACTIVE"}
	for i, w := range want {
		if events[i].State != w {
			t.Errorf("event %d state = %q, want %q", i, events[i].State, w)
		}
	}
}

func TestPruneBefore(t *testing.T) {
	repo := setupTestRepo(t)
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 4; i++ {
		event := &SessionEvent{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Target:    "My Novel",
			Process:   "foo.exe",
			State:     "ACTIVE",
		}
		if err := repo.CreateEvent(event); err != nil {
			t.Fatal(err)
		}
	}

	pruned, err := repo.PruneBefore(base.Add(90 * time.Second))
	if err != nil {
		t.Fatalf("PruneBefore() error: %v", err)
	}
	if pruned != 2 {
		t.Errorf("PruneBefore() removed %d rows, want 2", pruned)
	}

	remaining, err := repo.EventsSince(base.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 2 {
		t.Errorf("%d events remain after prune, want 2", len(remaining))
	}
}

func TestErrorLogRoundTrip(t *testing.T) {
	repo := setupTestRepo(t)

	entry := &ErrorLog{
		Timestamp: time.Now(),
		Source:    "track",
		ErrorMsg:  "probe connection lost",
	}
	if err := repo.CreateErrorLog(entry); err != nil {
		t.Fatalf("CreateErrorLog() error: %v", err)
	}

	logs, err := repo.ErrorsSince(time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("ErrorsSince() error: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("ErrorsSince() returned %d logs, want 1", len(logs))
	}
	if logs[0].Source != "track" || logs[0].ErrorMsg != "probe connection lost" {
		t.Errorf("error log = %+v", logs[0])
	}
}

func TestClearRemovesAllEvents(t *testing.T) {
	repo := setupTestRepo(t)

	event := &SessionEvent{
		Timestamp: time.Now(),
		Target:    "My Novel",
		Process:   "foo.exe",
		State:     "ACTIVE",
	}
	if err := repo.CreateEvent(event); err != nil {
		t.Fatal(err)
	}

	if err := repo.Clear(); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	events, err := repo.EventsSince(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("%d events remain after Clear(), want 0", len(events))
	}
}
