package models

import "time"

// Contact request types.
const (
	RequestCallback     = "callback"
	RequestShareContact = "share_contact"
)

// ContactRequest records a user asking to be reached outside the chat.
type ContactRequest struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	UserID      int64  `gorm:"not null;index"`
	RequestType string `gorm:"size:16;not null"`
	Status      string `gorm:"size:16;default:pending"`
	CreatedAt   time.Time
}
