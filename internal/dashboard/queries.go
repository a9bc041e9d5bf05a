package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/handoff"
	"github.com/zulandar/switchboard/internal/models"
)

// ChatView is the API shape of a chat.
type ChatView struct {
	ID         uint       `json:"id"`
	UserID     int64      `json:"user_id"`
	User       string     `json:"user"`
	ManagerID  int64      `json:"manager_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
	Rating     *int       `json:"rating,omitempty"`
}

// MessageView is one transcript line.
type MessageView struct {
	From      string    `json:"from"` // "user" or "manager"
	SenderID  int64     `json:"sender_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// LogView is one audit entry.
type LogView struct {
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatDetail is a chat with its full transcript.
type ChatDetail struct {
	Chat       ChatView      `json:"chat"`
	Transcript []MessageView `json:"transcript"`
}

// NewChatView converts a chat. The user label is filled when the User
// relation is loaded.
func NewChatView(c *models.Chat) ChatView {
	v := ChatView{
		ID:         c.ID,
		UserID:     c.UserID,
		ManagerID:  c.ManagerID,
		Status:     c.Status,
		CreatedAt:  c.CreatedAt,
		AcceptedAt: c.AcceptedAt,
		ClosedAt:   c.ClosedAt,
		Rating:     c.Rating,
	}
	if c.User.ID != 0 {
		v.User = handoff.UserLabel(&c.User)
	}
	return v
}

// LoadChatDetail loads a chat, its user and its transcript in send order.
func LoadChatDetail(ctx context.Context, q Querier, id uint) (*ChatDetail, error) {
	chat, err := q.GetChat(ctx, id)
	if err != nil {
		return nil, err
	}
	u, err := q.GetUser(ctx, chat.UserID)
	if err != nil {
		return nil, err
	}
	if u != nil {
		chat.User = *u
	}
	msgs, err := q.ListMessages(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &ChatDetail{Chat: NewChatView(chat), Transcript: make([]MessageView, len(msgs))}
	for i, m := range msgs {
		from := "manager"
		if m.SenderID == chat.UserID {
			from = "user"
		}
		detail.Transcript[i] = MessageView{From: from, SenderID: m.SenderID, Text: m.Text, CreatedAt: m.CreatedAt}
	}
	return detail, nil
}

func badRequest(c *gin.Context, format string, args ...any) {
	c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf(format, args...)})
}

func serverError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
