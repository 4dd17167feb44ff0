package ledger

import (
	"encoding/csv"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
)

// ExportTarget writes one target's dated entries to a two-column CSV
// file in dir and returns the file path. The target name is
// percent-escaped to form a safe filename.
func (s *Store) ExportTarget(target, dir string) (string, error) {
	if target == "" {
		return "", errors.New("target must not be empty")
	}

	snapshot, err := s.Snapshot()
	if err != nil {
		return "", err
	}
	days := snapshot[target]

	path := filepath.Join(dir, url.QueryEscape(target)+"_timelog.csv")
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to create export file")
	}
	defer f.Close()

	dates := make([]string, 0, len(days))
	for date := range days {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	w := csv.NewWriter(f)
	if err := w.Write([]string{"Date", "Seconds"}); err != nil {
		return "", errors.Wrap(err, "failed to write export header")
	}
	for _, date := range dates {
		if err := w.Write([]string{date, strconv.FormatInt(days[date], 10)}); err != nil {
			return "", errors.Wrap(err, "failed to write export row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", errors.Wrap(err, "failed to flush export file")
	}
	return path, nil
}

// ExportAll writes the full ledger as JSON to path.
func (s *Store) ExportAll(path string) error {
	snapshot, err := s.Snapshot()
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode export data")
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return errors.Wrap(err, "failed to write export file")
	}
	return nil
}
