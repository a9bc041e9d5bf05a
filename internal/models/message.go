package models

import "time"

// Message is one relayed line of a chat transcript. Append-only.
type Message struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ChatID    uint   `gorm:"not null;index"`
	SenderID  int64  `gorm:"not null"`
	Text      string `gorm:"type:text"`
	CreatedAt time.Time
}
