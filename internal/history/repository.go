package history

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"gorm.io/gorm"
)

// Repository handles all database operations for session history.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateEvent inserts a new session event.
func (r *Repository) CreateEvent(event *SessionEvent) error {
	event.Process = strings.ToLower(event.Process)
	result := r.db.Create(event)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert session event")
	}
	return nil
}

// EventsSince retrieves all session events since a given time, oldest
// first.
func (r *Repository) EventsSince(since time.Time) ([]*SessionEvent, error) {
	var events []*SessionEvent
	result := r.db.Where("timestamp >= ?", since).Order("timestamp ASC").Find(&events)

	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query session events")
	}

	return events, nil
}

// LatestEvent retrieves the most recent session event, or nil when the
// history is empty.
func (r *Repository) LatestEvent() (*SessionEvent, error) {
	var event SessionEvent
	result := r.db.Order("timestamp DESC").First(&event)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(result.Error, "failed to get latest event")
	}
	return &event, nil
}

// PruneBefore deletes events older than the given time (soft delete).
func (r *Repository) PruneBefore(before time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", before).Delete(&SessionEvent{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to prune old events")
	}
	return result.RowsAffected, nil
}

// CreateErrorLog inserts a new error record.
func (r *Repository) CreateErrorLog(errorLog *ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// ErrorsSince retrieves recorded errors since a given time.
func (r *Repository) ErrorsSince(since time.Time) ([]*ErrorLog, error) {
	var logs []*ErrorLog
	result := r.db.Where("timestamp >= ?", since).Order("timestamp ASC").Find(&logs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query error logs")
	}
	return logs, nil
}

// Clear removes all session events.
func (r *Repository) Clear() error {
	result := r.db.Exec("DELETE FROM session_events")
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear session events")
	}
	return nil
}
