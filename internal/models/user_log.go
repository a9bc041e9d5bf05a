package models

import "time"

// UserLog is an append-only audit entry for a user action.
type UserLog struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	UserID    int64  `gorm:"not null;index"`
	Action    string `gorm:"size:64;not null"`
	Details   string `gorm:"type:text"`
	CreatedAt time.Time
}
