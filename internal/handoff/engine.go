// Package handoff implements the manager handoff chat lifecycle: chat
// requests, the pending queue, acceptance, message relay, closing and rating.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/store"
)

// Store is the record store consumed by the engine. *store.Store satisfies it.
type Store interface {
	SaveUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	UpdateUserPhone(ctx context.Context, id int64, phone string) error
	CreateChat(ctx context.Context, userID, managerID int64) (*models.Chat, error)
	GetChat(ctx context.Context, id uint) (*models.Chat, error)
	GetChatByUser(ctx context.Context, userID int64) (*models.Chat, error)
	GetActiveChatByManager(ctx context.Context, managerID int64) (*models.Chat, error)
	GetPendingChats(ctx context.Context) ([]models.Chat, error)
	AcceptChat(ctx context.Context, id uint, managerID int64) error
	RejectChat(ctx context.Context, id uint) error
	CloseChat(ctx context.Context, id uint) error
	SaveChatRating(ctx context.Context, id uint, stars int) error
	SaveMessage(ctx context.Context, chatID uint, senderID int64, text string) (*models.Message, error)
	SaveUserLog(ctx context.Context, userID int64, action, details string) error
	CreateContactRequest(ctx context.Context, userID int64, requestType string) (*models.ContactRequest, error)
}

// Notifier delivers text to a party, optionally with reply options.
type Notifier interface {
	Send(ctx context.Context, partyID int64, text string, options ...string) error
}

// Mirror copies manager-facing escalations to a team feed.
type Mirror interface {
	Mirror(ctx context.Context, text string) error
}

// Audit actions written to the user log.
const (
	ActionChatRequested    = "chat_requested"
	ActionChatAccepted     = "chat_accepted"
	ActionChatRejected     = "chat_rejected"
	ActionChatClosed       = "chat_closed"
	ActionChatRated        = "chat_rated"
	ActionCallbackRequest  = "callback_requested"
	ActionContactShared    = "contact_shared"
	ActionManagerMenuShown = "manager_menu_opened"
)

// Engine runs chat lifecycle transitions against the store and routes the
// resulting notifications.
type Engine struct {
	store    Store
	notifier Notifier
	mirror   Mirror
	managers []int64
	isMgr    map[int64]bool
	log      *slog.Logger
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	Store    Store
	Notifier Notifier
	Managers []int64 // assignable manager set; the first entry receives requests
	Mirror   Mirror  // optional
	Logger   *slog.Logger
}

// New creates an Engine.
func New(opts Opts) (*Engine, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("handoff: store is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("handoff: notifier is required")
	}
	if len(opts.Managers) == 0 {
		return nil, fmt.Errorf("handoff: at least one manager is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("handoff")
	}
	isMgr := make(map[int64]bool, len(opts.Managers))
	for _, id := range opts.Managers {
		isMgr[id] = true
	}
	return &Engine{
		store:    opts.Store,
		notifier: opts.Notifier,
		mirror:   opts.Mirror,
		managers: append([]int64(nil), opts.Managers...),
		isMgr:    isMgr,
		log:      log,
	}, nil
}

// Manager returns the manager that receives new chat requests.
func (e *Engine) Manager() int64 {
	return e.managers[0]
}

// IsManager reports whether id belongs to the manager set.
func (e *Engine) IsManager(id int64) bool {
	return e.isMgr[id]
}

// RegisterUser upserts the user's profile.
func (e *Engine) RegisterUser(ctx context.Context, u *models.User) error {
	if err := e.store.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("handoff: register user %d: %w", u.ID, err)
	}
	e.audit(ctx, u.ID, ActionManagerMenuShown, "")
	return nil
}

// ChatForUser returns the user's open chat, or nil.
func (e *Engine) ChatForUser(ctx context.Context, userID int64) (*models.Chat, error) {
	chat, err := e.store.GetChatByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("handoff: chat for user %d: %w", userID, err)
	}
	return chat, nil
}

// ActiveChatForManager returns the manager's active chat, or nil.
func (e *Engine) ActiveChatForManager(ctx context.Context, managerID int64) (*models.Chat, error) {
	chat, err := e.store.GetActiveChatByManager(ctx, managerID)
	if err != nil {
		return nil, fmt.Errorf("handoff: active chat for manager %d: %w", managerID, err)
	}
	return chat, nil
}

// RequestChat opens a pending chat for the user and asks the manager to
// accept it. Fails with ErrDuplicateActiveChat if the user already has an
// open chat.
func (e *Engine) RequestChat(ctx context.Context, u *models.User) (*models.Chat, error) {
	if err := e.store.SaveUser(ctx, u); err != nil {
		return nil, fmt.Errorf("handoff: request chat: %w", err)
	}
	chat, err := e.store.CreateChat(ctx, u.ID, e.Manager())
	if errors.Is(err, store.ErrOpenChatExists) {
		return nil, fmt.Errorf("handoff: request chat for user %d: %w", u.ID, ErrDuplicateActiveChat)
	}
	if err != nil {
		return nil, fmt.Errorf("handoff: request chat: %w", err)
	}

	stored, err := e.store.GetUser(ctx, u.ID)
	if err == nil && stored != nil {
		u = stored
	}
	chat.User = *u

	e.audit(ctx, u.ID, ActionChatRequested, fmt.Sprintf("chat %d", chat.ID))
	text := chatRequestText(u, chat)
	e.notify(ctx, chat.ManagerID, text, AcceptOption(u), OptionReject)
	e.mirrorText(ctx, text)
	e.log.Info("chat requested", "chat", chat.ID, "user", u.ID, "manager", chat.ManagerID)
	return chat, nil
}

// AcceptChat moves the oldest pending chat to active for the manager. A chat
// that another transition claimed first is skipped in favor of the next one.
func (e *Engine) AcceptChat(ctx context.Context, managerID int64) (*models.Chat, error) {
	busy, err := e.store.GetActiveChatByManager(ctx, managerID)
	if err != nil {
		return nil, fmt.Errorf("handoff: accept chat: %w", err)
	}
	if busy != nil {
		return nil, fmt.Errorf("handoff: accept chat: chat %d still active: %w", busy.ID, ErrManagerBusy)
	}

	chat, err := e.claimPending(ctx, func(id uint) error {
		return e.store.AcceptChat(ctx, id, managerID)
	})
	if err != nil {
		return nil, fmt.Errorf("handoff: accept chat: %w", err)
	}

	e.audit(ctx, chat.UserID, ActionChatAccepted, fmt.Sprintf("chat %d by manager %d", chat.ID, managerID))
	e.notify(ctx, chat.UserID, "A manager has joined the chat. You can write your messages now.", OptionEndChat)
	e.notify(ctx, managerID, fmt.Sprintf("Chat #%d with %s started.", chat.ID, UserLabel(&chat.User)), OptionEndChat)
	e.log.Info("chat accepted", "chat", chat.ID, "user", chat.UserID, "manager", managerID)
	return chat, nil
}

// RejectChat moves the oldest pending chat to rejected.
func (e *Engine) RejectChat(ctx context.Context, managerID int64) (*models.Chat, error) {
	chat, err := e.claimPending(ctx, func(id uint) error {
		return e.store.RejectChat(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("handoff: reject chat: %w", err)
	}

	e.audit(ctx, chat.UserID, ActionChatRejected, fmt.Sprintf("chat %d by manager %d", chat.ID, managerID))
	e.notify(ctx, chat.UserID, "The manager declined your chat request.", OptionContactManager)
	e.notify(ctx, managerID, fmt.Sprintf("Chat #%d rejected.", chat.ID))
	e.log.Info("chat rejected", "chat", chat.ID, "user", chat.UserID, "manager", managerID)
	return chat, nil
}

// claimPending applies transition to the pending chats oldest first until one
// succeeds, then returns that chat as stored.
func (e *Engine) claimPending(ctx context.Context, transition func(id uint) error) (*models.Chat, error) {
	pending, err := e.store.GetPendingChats(ctx)
	if err != nil {
		return nil, err
	}
	for i := range pending {
		err := transition(pending[i].ID)
		if errors.Is(err, store.ErrStaleStatus) {
			continue
		}
		if err != nil {
			return nil, err
		}
		chat, err := e.store.GetChat(ctx, pending[i].ID)
		if err != nil {
			return nil, err
		}
		chat.User = pending[i].User
		if chat.User.ID == 0 {
			chat.User.ID = chat.UserID
		}
		return chat, nil
	}
	return nil, ErrNoPendingChat
}

// RelayMessage stores text in the chat transcript and forwards it to the
// sender's counterparty. The chat must be active.
func (e *Engine) RelayMessage(ctx context.Context, senderID int64, chat *models.Chat, text string) error {
	if chat == nil || chat.Status != models.ChatActive {
		return fmt.Errorf("handoff: relay: %w", ErrChatNotActive)
	}
	if _, err := e.store.SaveMessage(ctx, chat.ID, senderID, text); err != nil {
		return fmt.Errorf("handoff: relay: %w", err)
	}
	recipient := chat.Counterparty(senderID)
	if recipient == chat.UserID {
		e.notify(ctx, recipient, text, OptionEndChat)
	} else {
		e.notify(ctx, recipient, text)
	}
	return nil
}

// EndChat closes the initiator's chat: the active chat for a manager, the
// open chat for a user. The other party is notified.
func (e *Engine) EndChat(ctx context.Context, initiatorID int64) (*models.Chat, error) {
	byManager := e.IsManager(initiatorID)
	var chat *models.Chat
	var err error
	if byManager {
		chat, err = e.store.GetActiveChatByManager(ctx, initiatorID)
	} else {
		chat, err = e.store.GetChatByUser(ctx, initiatorID)
	}
	if err != nil {
		return nil, fmt.Errorf("handoff: end chat: %w", err)
	}
	if chat == nil || !chat.IsOpen() {
		return nil, fmt.Errorf("handoff: end chat for %d: %w", initiatorID, ErrNoActiveChat)
	}
	wasPending := chat.Status == models.ChatPending

	if err := e.store.CloseChat(ctx, chat.ID); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, fmt.Errorf("handoff: end chat %d: %w", chat.ID, ErrNoActiveChat)
		}
		return nil, fmt.Errorf("handoff: end chat: %w", err)
	}
	closed, err := e.store.GetChat(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("handoff: end chat: %w", err)
	}

	if byManager {
		e.audit(ctx, closed.UserID, ActionChatClosed, fmt.Sprintf("chat %d by manager", closed.ID))
		e.notify(ctx, closed.UserID, "The manager ended the chat.", OptionContactManager)
	} else {
		e.audit(ctx, closed.UserID, ActionChatClosed, fmt.Sprintf("chat %d by user", closed.ID))
		label := e.userLabel(ctx, closed.UserID)
		if wasPending {
			e.notify(ctx, closed.ManagerID, fmt.Sprintf("%s cancelled their chat request #%d.", label, closed.ID))
		} else {
			e.notify(ctx, closed.ManagerID, fmt.Sprintf("%s ended the chat #%d.", label, closed.ID))
		}
	}
	e.log.Info("chat closed", "chat", closed.ID, "by", initiatorID, "manager", byManager)
	return closed, nil
}

// SubmitRating stores a 1..5 rating on a closed chat.
func (e *Engine) SubmitRating(ctx context.Context, chatID uint, stars int) error {
	if stars < MinRating || stars > MaxRating {
		return fmt.Errorf("handoff: rate chat %d with %d: %w", chatID, stars, ErrInvalidRating)
	}
	chat, err := e.store.GetChat(ctx, chatID)
	if err != nil {
		return fmt.Errorf("handoff: rate chat: %w", err)
	}
	if chat.Status != models.ChatClosed {
		return fmt.Errorf("handoff: rate chat %d: %w", chatID, ErrChatNotClosed)
	}
	if err := e.store.SaveChatRating(ctx, chatID, stars); err != nil {
		return fmt.Errorf("handoff: rate chat: %w", err)
	}
	e.audit(ctx, chat.UserID, ActionChatRated, fmt.Sprintf("chat %d: %d", chatID, stars))
	return nil
}

// RequestCallback records that the user wants a phone call and tells the manager.
func (e *Engine) RequestCallback(ctx context.Context, u *models.User) error {
	if err := e.store.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("handoff: request callback: %w", err)
	}
	if _, err := e.store.CreateContactRequest(ctx, u.ID, models.RequestCallback); err != nil {
		return fmt.Errorf("handoff: request callback: %w", err)
	}
	if stored, err := e.store.GetUser(ctx, u.ID); err == nil && stored != nil {
		u = stored
	}
	e.audit(ctx, u.ID, ActionCallbackRequest, "")
	text := callbackText(u)
	e.notify(ctx, e.Manager(), text)
	e.mirrorText(ctx, text)
	return nil
}

// ShareContact stores the user's phone number and passes it to the manager.
func (e *Engine) ShareContact(ctx context.Context, u *models.User, phone string) error {
	if err := e.store.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("handoff: share contact: %w", err)
	}
	if err := e.store.UpdateUserPhone(ctx, u.ID, phone); err != nil {
		return fmt.Errorf("handoff: share contact: %w", err)
	}
	if _, err := e.store.CreateContactRequest(ctx, u.ID, models.RequestShareContact); err != nil {
		return fmt.Errorf("handoff: share contact: %w", err)
	}
	e.audit(ctx, u.ID, ActionContactShared, phone)
	e.notify(ctx, e.Manager(), sharedContactText(u, phone))
	return nil
}

// PendingChats returns the pending queue, oldest first.
func (e *Engine) PendingChats(ctx context.Context) ([]models.Chat, error) {
	chats, err := e.store.GetPendingChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("handoff: pending chats: %w", err)
	}
	return chats, nil
}

func (e *Engine) userLabel(ctx context.Context, userID int64) string {
	u, err := e.store.GetUser(ctx, userID)
	if err != nil || u == nil {
		return fmt.Sprintf("ID: %d", userID)
	}
	return UserLabel(u)
}

// notify sends best-effort; a failed delivery is logged and does not undo
// the transition that triggered it.
func (e *Engine) notify(ctx context.Context, partyID int64, text string, options ...string) {
	if err := e.notifier.Send(ctx, partyID, text, options...); err != nil {
		e.log.Warn("notification not delivered", "party", partyID,
			"error", fmt.Errorf("%w: %w", ErrDeliveryFailure, err))
	}
}

func (e *Engine) mirrorText(ctx context.Context, text string) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Mirror(ctx, text); err != nil {
		e.log.Warn("mirror failed", "error", err)
	}
}

// audit writes a user log entry. The transition it describes has already
// committed, so a failure is only logged.
func (e *Engine) audit(ctx context.Context, userID int64, action, details string) {
	if err := e.store.SaveUserLog(ctx, userID, action, details); err != nil {
		e.log.Error("user log not written", "user", userID, "action", action, "error", err)
	}
}
