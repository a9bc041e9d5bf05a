package dialog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/zulandar/switchboard/internal/handoff"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/messenger"
	"github.com/zulandar/switchboard/internal/models"
)

// User-facing option labels.
const (
	CommandStart         = "/start"
	LabelMenu            = "Menu"
	LabelAccept          = "Accept"
	LabelContactManager  = handoff.OptionContactManager
	LabelStartChat       = "Start chat"
	LabelRequestCallback = "Request callback"
	LabelShareContact    = "Share contact"
	LabelBack            = "Back"
	LabelEndChat         = handoff.OptionEndChat
	LabelSkip            = "Skip"
	LabelReject          = handoff.OptionReject
	LabelPending         = handoff.OptionPending
)

// ErrNotRating is returned by SubmitRating when the user is not rating that chat.
var ErrNotRating = errors.New("user is not rating this chat")

var phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]{5,19}$`)

// Inbound is one message from a user or manager.
type Inbound struct {
	SenderID  int64
	FirstName string
	LastName  string
	Username  string
	Phone     string // set when the platform delivered a contact card
	Text      string
}

func (in Inbound) user() *models.User {
	return &models.User{
		ID:        in.SenderID,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Username:  in.Username,
	}
}

// Controller maps inbound messages onto engine operations according to each
// user's dialog step. Managers have no tracked step.
type Controller struct {
	engine   *handoff.Engine
	sessions SessionStore
	notifier handoff.Notifier
	log      *slog.Logger
}

// Opts holds parameters for creating a Controller.
type Opts struct {
	Engine   *handoff.Engine
	Sessions SessionStore // defaults to a MemoryStore
	Notifier handoff.Notifier
	Logger   *slog.Logger
}

// NewController creates a Controller.
func NewController(opts Opts) (*Controller, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("dialog: engine is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("dialog: notifier is required")
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = NewMemoryStore()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("dialog")
	}
	return &Controller{
		engine:   opts.Engine,
		sessions: sessions,
		notifier: opts.Notifier,
		log:      log,
	}, nil
}

// Handle processes one inbound message. Errors are logged and answered with
// a reply; none are returned.
func (c *Controller) Handle(ctx context.Context, in Inbound) {
	in.Text = strings.TrimSpace(in.Text)
	if c.engine.IsManager(in.SenderID) {
		c.handleManager(ctx, in)
		return
	}
	st, err := c.sessions.Get(ctx, in.SenderID)
	if err != nil {
		c.log.Error("load dialog state", "user", in.SenderID, "error", err)
		st = idle()
	}
	c.handleUser(ctx, in, st)
}

func (c *Controller) handleUser(ctx context.Context, in Inbound, st State) {
	if in.Text == CommandStart || in.Text == LabelMenu {
		switch st.Step {
		case StepInChat:
			c.reply(ctx, in.SenderID, "You are in a chat with the manager. Send \"End chat\" to finish it.", LabelEndChat)
		case StepRating:
			c.reply(ctx, in.SenderID, "Please rate the manager's work.", RatingOptions()...)
		default:
			c.setStep(ctx, in.SenderID, State{Step: StepIdle})
			c.mainMenu(ctx, in.SenderID, "Welcome! How can we help you?")
		}
		return
	}

	switch st.Step {
	case StepAwaitingManagerChoice:
		c.onManagerChoice(ctx, in)
	case StepAwaitingContact:
		c.onContact(ctx, in)
	case StepInChat:
		c.onChatMessage(ctx, in, st)
	case StepRating:
		c.onRating(ctx, in, st)
	default:
		c.onIdle(ctx, in)
	}
}

func (c *Controller) onIdle(ctx context.Context, in Inbound) {
	if in.Text == LabelContactManager {
		if err := c.engine.RegisterUser(ctx, in.user()); err != nil {
			c.log.Error("register user", "user", in.SenderID, "error", err)
			c.mainMenu(ctx, in.SenderID, "Could not save your details. Please try again later.")
			return
		}
		c.setStep(ctx, in.SenderID, State{Step: StepAwaitingManagerChoice})
		c.choiceMenu(ctx, in.SenderID, "Choose how to contact the manager:")
		return
	}

	// The session may have been lost while a chat stayed open.
	chat, err := c.engine.ChatForUser(ctx, in.SenderID)
	if err != nil {
		c.log.Error("look up open chat", "user", in.SenderID, "error", err)
	}
	if chat != nil {
		st := State{Step: StepInChat, ChatID: chat.ID}
		c.setStep(ctx, in.SenderID, st)
		c.onChatMessage(ctx, in, st)
		return
	}
	c.mainMenu(ctx, in.SenderID, "Please choose an option from the menu.")
}

func (c *Controller) onManagerChoice(ctx context.Context, in Inbound) {
	switch in.Text {
	case LabelStartChat:
		chat, err := c.engine.RequestChat(ctx, in.user())
		switch {
		case err == nil:
			c.setStep(ctx, in.SenderID, State{Step: StepInChat, ChatID: chat.ID})
			c.reply(ctx, in.SenderID, "Your chat request was sent to the manager. Please wait for confirmation.", LabelEndChat)
		case errors.Is(err, handoff.ErrDuplicateActiveChat):
			st := State{Step: StepInChat}
			if open, lerr := c.engine.ChatForUser(ctx, in.SenderID); lerr == nil && open != nil {
				st.ChatID = open.ID
			}
			c.setStep(ctx, in.SenderID, st)
			c.reply(ctx, in.SenderID, "You already have an open chat with the manager.", LabelEndChat)
		default:
			c.log.Error("request chat", "user", in.SenderID, "error", err)
			c.choiceMenu(ctx, in.SenderID, "Could not create the chat. Please try again later.")
		}
	case LabelRequestCallback:
		if err := c.engine.RequestCallback(ctx, in.user()); err != nil {
			c.log.Error("request callback", "user", in.SenderID, "error", err)
			c.choiceMenu(ctx, in.SenderID, "Could not register the request. Please try again later.")
			return
		}
		c.setStep(ctx, in.SenderID, State{Step: StepIdle})
		c.mainMenu(ctx, in.SenderID, "Thank you! The manager will call you back.")
	case LabelShareContact:
		c.setStep(ctx, in.SenderID, State{Step: StepAwaitingContact})
		c.reply(ctx, in.SenderID, "Send your phone number or press the button below.", messenger.RequestContactLabel, LabelBack)
	case LabelBack:
		c.setStep(ctx, in.SenderID, State{Step: StepIdle})
		c.mainMenu(ctx, in.SenderID, "Main menu.")
	default:
		c.choiceMenu(ctx, in.SenderID, "Please choose one of the options.")
	}
}

func (c *Controller) onContact(ctx context.Context, in Inbound) {
	if in.Text == LabelBack {
		c.setStep(ctx, in.SenderID, State{Step: StepAwaitingManagerChoice})
		c.choiceMenu(ctx, in.SenderID, "Choose how to contact the manager:")
		return
	}
	phone := in.Phone
	if phone == "" && phonePattern.MatchString(in.Text) {
		phone = in.Text
	}
	if phone == "" {
		c.reply(ctx, in.SenderID, "That does not look like a phone number. Try again or press Back.", messenger.RequestContactLabel, LabelBack)
		return
	}
	if err := c.engine.ShareContact(ctx, in.user(), phone); err != nil {
		c.log.Error("share contact", "user", in.SenderID, "error", err)
		c.reply(ctx, in.SenderID, "Could not save your phone number. Please try again later.", messenger.RequestContactLabel, LabelBack)
		return
	}
	c.setStep(ctx, in.SenderID, State{Step: StepAwaitingManagerChoice})
	c.choiceMenu(ctx, in.SenderID, "Thank you! The manager has received your phone number.")
}

func (c *Controller) onChatMessage(ctx context.Context, in Inbound, st State) {
	if in.Text == LabelEndChat {
		c.endUserChat(ctx, in)
		return
	}
	if in.Text == "" {
		return
	}
	chat, err := c.engine.ChatForUser(ctx, in.SenderID)
	if err != nil {
		c.log.Error("look up chat", "user", in.SenderID, "error", err)
		c.reply(ctx, in.SenderID, "Could not send the message. Please try again later.", LabelEndChat)
		return
	}
	if chat == nil {
		c.setStep(ctx, in.SenderID, State{Step: StepIdle})
		c.mainMenu(ctx, in.SenderID, "Chat not found. Please start a new chat.")
		return
	}
	if chat.ID != st.ChatID {
		c.setStep(ctx, in.SenderID, State{Step: StepInChat, ChatID: chat.ID})
	}
	err = c.engine.RelayMessage(ctx, in.SenderID, chat, in.Text)
	switch {
	case err == nil:
	case errors.Is(err, handoff.ErrChatNotActive):
		c.reply(ctx, in.SenderID, "The chat is not active yet. Please wait for the manager.", LabelEndChat)
	default:
		c.log.Error("relay user message", "user", in.SenderID, "chat", chat.ID, "error", err)
		c.reply(ctx, in.SenderID, "Could not send the message. Please try again later.", LabelEndChat)
	}
}

func (c *Controller) endUserChat(ctx context.Context, in Inbound) {
	chat, err := c.engine.EndChat(ctx, in.SenderID)
	switch {
	case err == nil:
	case errors.Is(err, handoff.ErrNoActiveChat):
		c.setStep(ctx, in.SenderID, State{Step: StepIdle})
		c.mainMenu(ctx, in.SenderID, "You have no active chats.")
		return
	default:
		c.log.Error("end chat", "user", in.SenderID, "error", err)
		c.reply(ctx, in.SenderID, "Could not end the chat. Please try again later.", LabelEndChat)
		return
	}
	if chat.AcceptedAt == nil {
		c.setStep(ctx, in.SenderID, State{Step: StepIdle})
		c.mainMenu(ctx, in.SenderID, "Your chat request was cancelled.")
		return
	}
	c.setStep(ctx, in.SenderID, State{Step: StepRating, ChatID: chat.ID})
	c.reply(ctx, in.SenderID, "Chat ended. Please rate the manager's work:", RatingOptions()...)
}

func (c *Controller) onRating(ctx context.Context, in Inbound, st State) {
	if in.Text == LabelSkip {
		c.setStep(ctx, in.SenderID, State{Step: StepIdle})
		c.mainMenu(ctx, in.SenderID, "Thank you!")
		return
	}
	stars, ok := ParseRating(in.Text)
	if !ok {
		c.reply(ctx, in.SenderID, "Please rate the manager's work from 1 to 5 stars.", RatingOptions()...)
		return
	}
	_, err := c.SubmitRating(ctx, in.SenderID, st.ChatID, stars)
	switch {
	case err == nil:
		c.mainMenu(ctx, in.SenderID, "Thank you for your rating!")
	case errors.Is(err, handoff.ErrInvalidRating):
		c.reply(ctx, in.SenderID, "Please choose from 1 to 5 stars.", RatingOptions()...)
	default:
		c.log.Error("submit rating", "user", in.SenderID, "chat", st.ChatID, "error", err)
		c.setStep(ctx, in.SenderID, State{Step: StepIdle})
		c.mainMenu(ctx, in.SenderID, "Could not save your rating.")
	}
}

// SubmitRating rates chatID on behalf of the user. It succeeds only while the
// user is in the RATING step for that same chat, and returns the user to IDLE.
func (c *Controller) SubmitRating(ctx context.Context, userID int64, chatID uint, stars int) (bool, error) {
	st, err := c.sessions.Get(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("dialog: submit rating: %w", err)
	}
	if st.Step != StepRating || st.ChatID != chatID {
		return false, fmt.Errorf("dialog: submit rating for chat %d: %w", chatID, ErrNotRating)
	}
	if err := c.engine.SubmitRating(ctx, chatID, stars); err != nil {
		return false, err
	}
	if err := c.sessions.Clear(ctx, userID); err != nil {
		c.log.Error("clear dialog state", "user", userID, "error", err)
	}
	return true, nil
}

// isAcceptCommand matches the bare accept command and the per-request accept
// option. Other text starting with "Accept" is chat text.
func isAcceptCommand(text string) bool {
	return text == LabelAccept || strings.HasPrefix(text, handoff.AcceptPrefix)
}

func (c *Controller) handleManager(ctx context.Context, in Inbound) {
	mgr := in.SenderID
	switch {
	case isAcceptCommand(in.Text):
		chat, err := c.engine.AcceptChat(ctx, mgr)
		switch {
		case err == nil:
			c.setStep(ctx, chat.UserID, State{Step: StepInChat, ChatID: chat.ID})
		case errors.Is(err, handoff.ErrNoPendingChat):
			c.reply(ctx, mgr, "No pending chats.", LabelPending)
		case errors.Is(err, handoff.ErrManagerBusy):
			c.reply(ctx, mgr, "Finish the current chat before accepting another one.", LabelEndChat)
		default:
			c.log.Error("accept chat", "manager", mgr, "error", err)
			c.reply(ctx, mgr, "Could not accept the chat.")
		}
	case in.Text == LabelReject:
		chat, err := c.engine.RejectChat(ctx, mgr)
		switch {
		case err == nil:
			c.clearStep(ctx, chat.UserID)
		case errors.Is(err, handoff.ErrNoPendingChat):
			c.reply(ctx, mgr, "No pending chats.", LabelPending)
		default:
			c.log.Error("reject chat", "manager", mgr, "error", err)
			c.reply(ctx, mgr, "Could not reject the chat.")
		}
	case in.Text == LabelEndChat:
		chat, err := c.engine.EndChat(ctx, mgr)
		switch {
		case err == nil:
			c.clearStep(ctx, chat.UserID)
			c.reply(ctx, mgr, "Chat ended.", LabelPending)
		case errors.Is(err, handoff.ErrNoActiveChat):
			c.reply(ctx, mgr, "You have no active chats.", LabelPending)
		default:
			c.log.Error("end chat", "manager", mgr, "error", err)
			c.reply(ctx, mgr, "Could not end the chat.")
		}
	case in.Text == LabelPending:
		c.showPending(ctx, mgr)
	case in.Text == CommandStart || in.Text == LabelMenu:
		c.reply(ctx, mgr, "Manager console. New chat requests arrive here.", LabelPending)
	default:
		c.relayFromManager(ctx, in)
	}
}

func (c *Controller) showPending(ctx context.Context, mgr int64) {
	chats, err := c.engine.PendingChats(ctx)
	if err != nil {
		c.log.Error("list pending chats", "manager", mgr, "error", err)
		c.reply(ctx, mgr, "Could not load pending chats.")
		return
	}
	if len(chats) == 0 {
		c.reply(ctx, mgr, handoff.PendingSummary(chats), LabelPending)
		return
	}
	next := chats[0].User
	if next.ID == 0 {
		next.ID = chats[0].UserID
	}
	c.reply(ctx, mgr, handoff.PendingSummary(chats), handoff.AcceptOption(&next), LabelReject)
}

func (c *Controller) relayFromManager(ctx context.Context, in Inbound) {
	if in.Text == "" {
		return
	}
	chat, err := c.engine.ActiveChatForManager(ctx, in.SenderID)
	if err != nil {
		c.log.Error("look up manager chat", "manager", in.SenderID, "error", err)
		c.reply(ctx, in.SenderID, "Could not send the message.")
		return
	}
	if chat == nil {
		c.reply(ctx, in.SenderID, "You have no active chats.", LabelPending)
		return
	}
	if err := c.engine.RelayMessage(ctx, in.SenderID, chat, in.Text); err != nil {
		c.log.Error("relay manager message", "manager", in.SenderID, "chat", chat.ID, "error", err)
		c.reply(ctx, in.SenderID, "Could not send the message.")
	}
}

func (c *Controller) mainMenu(ctx context.Context, userID int64, text string) {
	c.reply(ctx, userID, text, LabelContactManager)
}

func (c *Controller) choiceMenu(ctx context.Context, userID int64, text string) {
	c.reply(ctx, userID, text, LabelStartChat, LabelRequestCallback, LabelShareContact, LabelBack)
}

func (c *Controller) reply(ctx context.Context, to int64, text string, options ...string) {
	if err := c.notifier.Send(ctx, to, text, options...); err != nil {
		c.log.Warn("reply not delivered", "to", to, "error", fmt.Errorf("%w: %w", handoff.ErrDeliveryFailure, err))
	}
}

func (c *Controller) setStep(ctx context.Context, userID int64, st State) {
	if err := c.sessions.Set(ctx, userID, st); err != nil {
		c.log.Error("save dialog state", "user", userID, "step", st.Step, "error", err)
	}
}

func (c *Controller) clearStep(ctx context.Context, userID int64) {
	if err := c.sessions.Clear(ctx, userID); err != nil {
		c.log.Error("clear dialog state", "user", userID, "error", err)
	}
}
