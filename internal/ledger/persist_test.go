package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timedata.json")

	s := New(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() on missing file error: %v", err)
	}
	if err := s.AddTime("novel", 42); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(false); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got, _ := reloaded.TodaySeconds("novel")
	if got != 42 {
		t.Errorf("reloaded TodaySeconds = %d, want 42", got)
	}
}

func TestSaveSkipsWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timedata.json")
	s := New(path)

	if err := s.Save(false); err != nil {
		t.Fatalf("Save() on clean store error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Save() on a clean store should not write the primary file")
	}

	// Forced save writes even without changes.
	if err := s.Save(true); err != nil {
		t.Fatalf("Save(force) error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Save(force) should write the primary file: %v", err)
	}
}

func TestLoadRecoversFromBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timedata.json")

	s := New(path)
	if err := s.AddTime("novel", 42); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(false); err != nil {
		t.Fatal(err)
	}
	// Second dirty save creates the backup of the first primary.
	if err := s.AddTime("novel", 8); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(false); err != nil {
		t.Fatal(err)
	}

	// Corrupt the primary's bytes; the backup stays valid.
	if err := os.WriteFile(path, []byte(`{"novel": {"2020-01-`), 0644); err != nil {
		t.Fatal(err)
	}

	recovered := New(path)
	if err := recovered.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	got, _ := recovered.TodaySeconds("novel")
	if got != 42 {
		t.Errorf("recovered TodaySeconds = %d, want backup content 42", got)
	}
}

func TestLoadBothCorruptStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timedata.json")

	if err := os.WriteFile(path, []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path+backupSuffix, []byte("also not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	if err := s.Load(); err != nil {
		t.Fatalf("Load() should never fail on corruption: %v", err)
	}
	total, _ := s.TotalSeconds("novel")
	if total != 0 {
		t.Errorf("corrupted store should start empty, got %d", total)
	}
}

func TestInterruptedWriteLeavesPrimaryIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timedata.json")

	s := New(path)
	if err := s.AddTime("novel", 42); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(false); err != nil {
		t.Fatal(err)
	}

	// Simulate a crash between temp-file write and rename: a stale,
	// half-written temp file next to a valid primary.
	if err := os.WriteFile(path+tmpSuffix, []byte(`{"novel": {"20`), 0644); err != nil {
		t.Fatal(err)
	}

	reloaded := New(path)
	if err := reloaded.Load(); err != nil {
		t.Fatal(err)
	}
	got, _ := reloaded.TodaySeconds("novel")
	if got != 42 {
		t.Errorf("TodaySeconds after interrupted write = %d, want 42", got)
	}
}

func TestSaveValidatesBeforeReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timedata.json")

	s := New(path)
	if err := s.AddTime("novel", 42); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(false); err != nil {
		t.Fatal(err)
	}

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Make the directory unwritable so the temp-file write fails; the
	// primary must be untouched.
	if err := os.Chmod(dir, 0555); err != nil {
		t.Fatal(err)
	}
	defer os.Chmod(dir, 0755)

	if err := s.AddTime("novel", 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(false); err == nil {
		t.Fatal("Save() into unwritable directory should fail")
	}

	os.Chmod(dir, 0755)
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("failed Save() modified the primary file")
	}
}

func TestEmergencySaveProducesRecoverableFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timedata.json")

	s := New(path)
	s.lockTimeout = 50 * time.Millisecond
	if err := s.AddTime("novel", 42); err != nil {
		t.Fatal(err)
	}

	// Hold the lock so the normal save path times out; the fallback
	// chain must still produce at least one recoverable file.
	s.sem <- struct{}{}
	s.EmergencySave()
	<-s.sem

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var sidecar string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".emergency_") {
			sidecar = filepath.Join(dir, e.Name())
			break
		}
	}
	if sidecar == "" {
		t.Fatal("EmergencySave produced no recoverable file")
	}

	raw, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatal(err)
	}
	var data map[string]map[string]int64
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("emergency sidecar is not valid JSON: %v", err)
	}
	if data["novel"][time.Now().Format(DateFormat)] != 42 {
		t.Error("emergency sidecar does not contain the ledger data")
	}
}

func TestEmergencySaveSnapshotsUnderConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timedata.json")

	s := New(path)
	s.lockTimeout = 50 * time.Millisecond
	if err := s.AddTime("novel", 42); err != nil {
		t.Fatal(err)
	}

	// Hold the lock so the normal save path times out, then release it
	// while writers keep mutating the ledger. The sidecar must come from
	// a consistent copy taken under the lock, not from the live map.
	s.sem <- struct{}{}

	saved := make(chan struct{})
	go func() {
		defer close(saved)
		s.EmergencySave()
	}()

	stopWriters := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stopWriters:
					return
				default:
					// Lock-contention errors are expected here.
					s.AddTime("other", 1)
				}
			}
		}()
	}

	time.Sleep(100 * time.Millisecond)
	<-s.sem

	<-saved
	close(stopWriters)
	wg.Wait()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var sidecar string
	for _, e := range entries {
		if strings.Contains(e.Name(), ".emergency_") && !strings.HasSuffix(e.Name(), ".txt") {
			sidecar = filepath.Join(dir, e.Name())
			break
		}
	}
	if sidecar == "" {
		t.Fatal("EmergencySave produced no recoverable file")
	}

	raw, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatal(err)
	}
	var data map[string]map[string]int64
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("emergency sidecar is not valid JSON: %v", err)
	}
	if data["novel"][time.Now().Format(DateFormat)] != 42 {
		t.Error("emergency sidecar does not contain the ledger data")
	}
}

func TestExportTargetCSV(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "timedata.json"))

	if err := s.AddTimeOn("my novel", "2024-01-01", 100); err != nil {
		t.Fatal(err)
	}
	if err := s.AddTimeOn("my novel", "2024-01-02", 200); err != nil {
		t.Fatal(err)
	}

	path, err := s.ExportTarget("my novel", dir)
	if err != nil {
		t.Fatalf("ExportTarget() error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "Date,Seconds\n2024-01-01,100\n2024-01-02,200\n"
	if string(raw) != want {
		t.Errorf("CSV export = %q, want %q", raw, want)
	}
}

func TestExportAllJSON(t *testing.T) {
	dir := t.TempDir()
	s := New(filepath.Join(dir, "timedata.json"))

	if err := s.AddTimeOn("novel", "2024-01-01", 100); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "export.json")
	if err := s.ExportAll(out); err != nil {
		t.Fatalf("ExportAll() error: %v", err)
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var data map[string]map[string]int64
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if data["novel"]["2024-01-01"] != 100 {
		t.Errorf("export content = %v, want novel/2024-01-01 = 100", data)
	}
}
