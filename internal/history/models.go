package history

import (
	"time"

	"gorm.io/gorm"
)

// SessionEvent records one tracking state transition: which target was
// bound, the process it is bound to, the state entered, and how many
// seconds were flushed into the ledger by the transition (zero when the
// transition opened a session rather than closing one).
type SessionEvent struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time      `gorm:"not null;index" json:"timestamp"`
	Target         string         `gorm:"not null;index" json:"target"`
	Process        string         `gorm:"not null" json:"process"`
	State          string         `gorm:"not null" json:"state"`
	FlushedSeconds int64          `gorm:"not null;default:0" json:"flushed_seconds"`
	CreatedAt      time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

type ErrorLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
	Source    string         `gorm:"not null;index" json:"source"`
	ErrorMsg  string         `gorm:"not null" json:"error_msg"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
