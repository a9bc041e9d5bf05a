package models

import "time"

// Chat statuses. Pending and active chats are "open"; closed and rejected
// are terminal.
const (
	ChatPending  = "pending"
	ChatActive   = "active"
	ChatClosed   = "closed"
	ChatRejected = "rejected"
)

// OpenChatStatuses lists the statuses that count toward the one-open-chat-per-user rule.
var OpenChatStatuses = []string{ChatPending, ChatActive}

// Chat is a handoff conversation between one user and one manager.
type Chat struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	UserID     int64     `gorm:"not null;index:idx_chat_user_status"`
	ManagerID  int64     `gorm:"not null;index"`
	Status     string    `gorm:"size:16;not null;default:pending;index:idx_chat_user_status"`
	CreatedAt  time.Time `gorm:"index"`
	AcceptedAt *time.Time
	ClosedAt   *time.Time
	Rating     *int

	User     User      `gorm:"foreignKey:UserID"`
	Messages []Message `gorm:"foreignKey:ChatID"`
}

// IsOpen reports whether the chat is pending or active.
func (c *Chat) IsOpen() bool {
	return c.Status == ChatPending || c.Status == ChatActive
}

// Counterparty returns the other participant of the chat for the given sender.
func (c *Chat) Counterparty(senderID int64) int64 {
	if senderID == c.UserID {
		return c.ManagerID
	}
	return c.UserID
}
