// Package store persists users, chats, transcripts and audit logs through GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrUnavailable wraps every failure of the underlying database.
	ErrUnavailable = errors.New("store unavailable")
	// ErrOpenChatExists is returned by CreateChat when the user already has
	// a pending or active chat.
	ErrOpenChatExists = errors.New("user already has an open chat")
	// ErrStaleStatus is returned by conditional status updates when the chat
	// is no longer in an expected status.
	ErrStaleStatus = errors.New("chat status changed")
	// ErrNotFound is returned by GetChat when no chat has the given id.
	ErrNotFound = errors.New("not found")
)

// Store is the record store for the handoff subsystem.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by db.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying connection for callers that need raw access.
func (s *Store) DB() *gorm.DB {
	return s.db
}

func unavailable(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %w", op, ErrUnavailable, err)
}

// SaveUser inserts the user or updates its profile fields when it already exists.
// A nil Phone never clears a stored phone.
func (s *Store) SaveUser(ctx context.Context, u *models.User) error {
	cols := []string{"first_name", "last_name", "username", "updated_at"}
	if u.Phone != nil {
		cols = append(cols, "phone")
	}
	if u.BirthDate != nil {
		cols = append(cols, "birth_date")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(u).Error
	if err != nil {
		return unavailable("save user", err)
	}
	return nil
}

// GetUser returns the user with the given id, or nil when absent.
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}
	return &u, nil
}

// UpdateUserPhone stores the phone number for the user.
func (s *Store) UpdateUserPhone(ctx context.Context, id int64, phone string) error {
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"phone": phone, "updated_at": time.Now()}).Error
	if err != nil {
		return unavailable("update user phone", err)
	}
	return nil
}

// CreateChat inserts a pending chat for the user, provided the user has no
// open chat. The check and the insert run in one transaction; on servers
// that support it the user's row is locked for the duration.
func (s *Store) CreateChat(ctx context.Context, userID, managerID int64) (*models.Chat, error) {
	var chat *models.Chat
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", userID).Limit(1).Find(&owner).Error; err != nil {
			return unavailable("lock user", err)
		}

		var open int64
		if err := tx.Model(&models.Chat{}).
			Where("user_id = ? AND status IN ?", userID, models.OpenChatStatuses).
			Count(&open).Error; err != nil {
			return unavailable("check open chat", err)
		}
		if open > 0 {
			return ErrOpenChatExists
		}

		chat = &models.Chat{
			UserID:    userID,
			ManagerID: managerID,
			Status:    models.ChatPending,
		}
		if err := tx.Create(chat).Error; err != nil {
			return unavailable("insert chat", err)
		}
		return nil
	})
	if errors.Is(err, ErrOpenChatExists) {
		return nil, fmt.Errorf("store: create chat for user %d: %w", userID, err)
	}
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, unavailable("create chat", err)
	}
	return chat, nil
}

// GetChat returns the chat with the given id, or ErrNotFound.
func (s *Store) GetChat(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	err := s.db.WithContext(ctx).First(&chat, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: chat %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get chat", err)
	}
	return &chat, nil
}

// GetChatByUser returns the user's most recent open chat, or nil.
func (s *Store) GetChatByUser(ctx context.Context, userID int64) (*models.Chat, error) {
	return s.latestChat(ctx, "get chat by user",
		"user_id = ? AND status IN ?", userID, models.OpenChatStatuses)
}

// GetActiveChatByManager returns the manager's most recent active chat, or nil.
func (s *Store) GetActiveChatByManager(ctx context.Context, managerID int64) (*models.Chat, error) {
	return s.latestChat(ctx, "get active chat by manager",
		"manager_id = ? AND status = ?", managerID, models.ChatActive)
}

func (s *Store) latestChat(ctx context.Context, op, query string, args ...interface{}) (*models.Chat, error) {
	var chats []models.Chat
	err := s.db.WithContext(ctx).Where(query, args...).
		Order("created_at DESC, id DESC").Limit(1).Find(&chats).Error
	if err != nil {
		return nil, unavailable(op, err)
	}
	if len(chats) == 0 {
		return nil, nil
	}
	return &chats[0], nil
}

// GetPendingChats returns the pending queue, oldest first.
func (s *Store) GetPendingChats(ctx context.Context) ([]models.Chat, error) {
	var chats []models.Chat
	err := s.db.WithContext(ctx).Preload("User").
		Where("status = ?", models.ChatPending).
		Order("created_at ASC, id ASC").Find(&chats).Error
	if err != nil {
		return nil, unavailable("get pending chats", err)
	}
	return chats, nil
}

// UpdateChatStatus moves the chat to status "to" if its current status is one
// of from. Extra columns in set are written in the same statement. Returns
// ErrStaleStatus when no row matched.
func (s *Store) UpdateChatStatus(ctx context.Context, id uint, from []string, to string, set map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range set {
		updates[k] = v
	}
	result := s.db.WithContext(ctx).Model(&models.Chat{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return unavailable("update chat status", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: chat %d -> %s: %w", id, to, ErrStaleStatus)
	}
	return nil
}

// AcceptChat moves a pending chat to active, assigns it to the accepting
// manager and stamps accepted_at.
func (s *Store) AcceptChat(ctx context.Context, id uint, managerID int64) error {
	return s.UpdateChatStatus(ctx, id, []string{models.ChatPending}, models.ChatActive,
		map[string]interface{}{"accepted_at": time.Now(), "manager_id": managerID})
}

// RejectChat moves a pending chat to rejected.
func (s *Store) RejectChat(ctx context.Context, id uint) error {
	return s.UpdateChatStatus(ctx, id, []string{models.ChatPending}, models.ChatRejected, nil)
}

// CloseChat moves an open chat to closed and stamps closed_at.
func (s *Store) CloseChat(ctx context.Context, id uint) error {
	return s.UpdateChatStatus(ctx, id, models.OpenChatStatuses, models.ChatClosed,
		map[string]interface{}{"closed_at": time.Now()})
}

// SaveChatRating stores the rating of a chat.
func (s *Store) SaveChatRating(ctx context.Context, id uint, stars int) error {
	result := s.db.WithContext(ctx).Model(&models.Chat{}).
		Where("id = ?", id).Update("rating", stars)
	if result.Error != nil {
		return unavailable("save chat rating", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: chat %d: %w", id, ErrNotFound)
	}
	return nil
}

// SaveMessage appends a transcript line to the chat.
func (s *Store) SaveMessage(ctx context.Context, chatID uint, senderID int64, text string) (*models.Message, error) {
	msg := &models.Message{ChatID: chatID, SenderID: senderID, Text: text}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, unavailable("save message", err)
	}
	return msg, nil
}

// ListMessages returns the chat transcript in order of arrival.
func (s *Store) ListMessages(ctx context.Context, chatID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).
		Order("created_at ASC, id ASC").Find(&msgs).Error
	if err != nil {
		return nil, unavailable("list messages", err)
	}
	return msgs, nil
}

// CountMessages returns the number of transcript lines in the chat.
func (s *Store) CountMessages(ctx context.Context, chatID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("chat_id = ?", chatID).Count(&n).Error
	if err != nil {
		return 0, unavailable("count messages", err)
	}
	return n, nil
}

// SaveUserLog appends an audit entry for the user.
func (s *Store) SaveUserLog(ctx context.Context, userID int64, action, details string) error {
	entry := models.UserLog{UserID: userID, Action: action, Details: details}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return unavailable("save user log", err)
	}
	return nil
}

// ListUserLogs returns the user's audit entries, newest first. A limit of 0
// returns all of them.
func (s *Store) ListUserLogs(ctx context.Context, userID int64, limit int) ([]models.UserLog, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var logs []models.UserLog
	if err := q.Find(&logs).Error; err != nil {
		return nil, unavailable("list user logs", err)
	}
	return logs, nil
}

// CreateContactRequest records a callback or share-contact request.
func (s *Store) CreateContactRequest(ctx context.Context, userID int64, requestType string) (*models.ContactRequest, error) {
	req := &models.ContactRequest{UserID: userID, RequestType: requestType, Status: "pending"}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, unavailable("create contact request", err)
	}
	return req, nil
}

// ChatFilter narrows ListChats. Zero fields do not filter.
type ChatFilter struct {
	Status string
	UserID int64
	Limit  int
}

// ListChats returns chats matching the filter, newest first, with their users loaded.
func (s *Store) ListChats(ctx context.Context, f ChatFilter) ([]models.Chat, error) {
	q := s.db.WithContext(ctx).Preload("User").Order("created_at DESC, id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var chats []models.Chat
	if err := q.Find(&chats).Error; err != nil {
		return nil, unavailable("list chats", err)
	}
	return chats, nil
}

// Stats summarizes chat activity.
type Stats struct {
	Since     time.Time        `json:"since"`
	ByStatus  map[string]int64 `json:"by_status"`
	Created   int64            `json:"created"`
	Queued    int64            `json:"queued"`
	Rated     int64            `json:"rated"`
	AvgRating float64          `json:"avg_rating"`
	Messages  int64            `json:"messages"`
}

// Stats counts chats created since the given time by status, plus the
// current pending queue length and rating figures for the window.
func (s *Store) Stats(ctx context.Context, since time.Time) (Stats, error) {
	st := Stats{Since: since, ByStatus: map[string]int64{}}
	db := s.db.WithContext(ctx)

	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.Model(&models.Chat{}).
		Select("status, COUNT(*) AS count").
		Where("created_at >= ?", since).
		Group("status").Scan(&rows).Error; err != nil {
		return st, unavailable("stats by status", err)
	}
	for _, r := range rows {
		st.ByStatus[r.Status] = r.Count
		st.Created += r.Count
	}

	if err := db.Model(&models.Chat{}).
		Where("status = ?", models.ChatPending).
		Count(&st.Queued).Error; err != nil {
		return st, unavailable("stats queue", err)
	}

	var rating struct {
		Rated int64
		Avg   *float64
	}
	if err := db.Model(&models.Chat{}).
		Select("COUNT(rating) AS rated, AVG(rating) AS avg").
		Where("created_at >= ? AND rating IS NOT NULL", since).
		Scan(&rating).Error; err != nil {
		return st, unavailable("stats rating", err)
	}
	st.Rated = rating.Rated
	if rating.Avg != nil {
		st.AvgRating = *rating.Avg
	}

	if err := db.Model(&models.Message{}).
		Where("created_at >= ?", since).
		Count(&st.Messages).Error; err != nil {
		return st, unavailable("stats messages", err)
	}
	return st, nil
}
