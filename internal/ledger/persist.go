package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
)

const (
	backupSuffix = ".backup"
	tmpSuffix    = ".tmp"
)

// Load reads the primary file into memory. On a read or parse failure
// it falls back to the backup file, and if both fail it starts with an
// empty ledger. Load never fails the process; corruption is logged.
func (s *Store) Load() error {
	if err := s.acquire(s.lockTimeout); err != nil {
		return err
	}
	defer s.release()

	data, err := readLedgerFile(s.path)
	if err == nil {
		s.data = data
		s.dirty = false
		return nil
	}
	if !os.IsNotExist(errors.Cause(err)) {
		log.Printf("WARNING: failed to load time data: %v, trying backup", err)
	}

	data, berr := readLedgerFile(s.path + backupSuffix)
	if berr == nil {
		log.Printf("recovered time data from backup file")
		s.data = data
		s.dirty = true // primary needs rewriting from the backup
		return nil
	}
	if !os.IsNotExist(errors.Cause(berr)) {
		log.Printf("WARNING: failed to load backup time data: %v", berr)
	}

	s.data = make(map[string]map[string]int64)
	s.dirty = false
	return nil
}

func readLedgerFile(path string) (map[string]map[string]int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ledger file")
	}
	var data map[string]map[string]int64
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Wrap(err, "failed to parse ledger file")
	}
	if data == nil {
		data = make(map[string]map[string]int64)
	}
	return data, nil
}

// Save persists the ledger if it has unflushed changes (or forceBackup
// is set): back up the current primary, write the full ledger to a temp
// file, validate the temp file parses, then atomically replace the
// primary. Any failure leaves the previous primary untouched.
func (s *Store) Save(forceBackup bool) error {
	if err := s.acquire(s.lockTimeout); err != nil {
		return err
	}
	defer s.release()
	return s.saveLocked(forceBackup)
}

// saveLocked does the actual write. Caller must hold the store lock.
func (s *Store) saveLocked(forceBackup bool) error {
	if !s.dirty && !forceBackup {
		return nil
	}

	if _, err := os.Stat(s.path); err == nil {
		if err := copyFile(s.path, s.path+backupSuffix); err != nil {
			return errors.Wrap(err, "failed to back up time data")
		}
	}

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode time data")
	}

	tmp := s.path + tmpSuffix
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return errors.Wrap(err, "failed to write temp file")
	}

	// Validate what actually landed on disk before replacing the primary.
	if _, err := readLedgerFile(tmp); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "temp file failed validation")
	}

	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, "failed to replace time data file")
	}

	s.dirty = false
	return nil
}

// SaveWithTimeout is Save with a caller-supplied lock budget, used on
// the shutdown path where the normal timeout is too short.
func (s *Store) SaveWithTimeout(forceBackup bool, timeout time.Duration) error {
	if err := s.acquire(timeout); err != nil {
		return err
	}
	defer s.release()
	return s.saveLocked(forceBackup)
}

// emergencyLockTimeout is the short budget EmergencySave spends trying
// to snapshot the ledger under the lock before resorting to a lock-free
// read.
const emergencyLockTimeout = time.Second

// EmergencySave is the best-effort last-resort persistence chain: a
// normal forced save, then a timestamped JSON sidecar, then a flat-text
// dump. Each stage runs only if the previous one failed, each stage
// logs, and the method itself never fails or panics. It tries to take a
// consistent copy of the ledger under a short lock budget; only when
// the lock stays unobtainable does it read the live map without it.
func (s *Store) EmergencySave() {
	if err := s.Save(true); err == nil {
		return
	} else {
		log.Printf("emergency save: normal save failed: %v", err)
	}

	data := s.data
	if err := s.acquire(emergencyLockTimeout); err == nil {
		data = copyLedger(s.data)
		s.release()
	} else {
		log.Printf("emergency save: lock still unobtainable, dumping live data")
	}

	stamp := s.now().Format("20060102_150405")
	sidecar := fmt.Sprintf("%s.emergency_%s", s.path, stamp)
	if err := writeEmergencyJSON(sidecar, data); err == nil {
		log.Printf("emergency save: wrote JSON sidecar %s", sidecar)
		return
	} else {
		log.Printf("emergency save: JSON sidecar failed: %v", err)
	}

	flat := sidecar + ".txt"
	if err := writeEmergencyText(flat, data); err == nil {
		log.Printf("emergency save: wrote flat-text dump %s", flat)
	} else {
		log.Printf("emergency save: flat-text dump failed: %v", err)
	}
}

func writeEmergencyJSON(path string, data map[string]map[string]int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic during emergency JSON write: %v", r)
		}
	}()

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0644)
}

func writeEmergencyText(path string, data map[string]map[string]int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic during emergency text write: %v", r)
		}
	}()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for target, days := range data {
		for date, seconds := range days {
			if _, err := fmt.Fprintf(f, "%s\t%s\t%d\n", target, date, seconds); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
