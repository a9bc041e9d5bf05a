// Package telegram implements the messenger Adapter for Telegram using the
// Bot API with long polling.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/zulandar/switchboard/internal/logger"
	"github.com/zulandar/switchboard/internal/messenger"
	"golang.org/x/time/rate"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// maxRetryWait bounds the total rate-limit wait for one send. Sends run
	// on the serial inbound loop, so a longer retry_after fails the send.
	maxRetryWait = 2 * time.Second
	// defaultPollTimeout is the long-polling timeout in seconds.
	defaultPollTimeout = 30
	// defaultRatePerSec keeps outbound sends under Telegram's global bot limit.
	defaultRatePerSec = 25
	// buttonsPerRow is the reply keyboard width.
	buttonsPerRow = 2
)

// botAPI abstracts the tgbotapi.BotAPI methods we use, enabling test mocks.
type botAPI interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Adapter implements messenger.Adapter for Telegram private chats.
type Adapter struct {
	bot         botAPI
	token       string
	pollTimeout int
	limiter     *rate.Limiter
	retryBudget time.Duration
	log         *slog.Logger

	mu        sync.Mutex
	connected bool
	closed    bool
	inbound   chan messenger.InboundMessage
	cancel    context.CancelFunc
	done      chan struct{}
}

// AdapterOpts holds parameters for creating a Telegram Adapter.
type AdapterOpts struct {
	Token       string  // bot token from @BotFather
	PollTimeout int     // long-polling timeout in seconds
	RatePerSec  float64 // outbound message rate limit
	Logger      *slog.Logger
	// For testing: inject a mock bot instead of the real Bot API.
	Bot botAPI
}

// New creates a Telegram Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Bot == nil && opts.Token == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}
	perSec := opts.RatePerSec
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("telegram")
	}
	return &Adapter{
		bot:         opts.Bot,
		token:       opts.Token,
		pollTimeout: pollTimeout,
		limiter:     rate.NewLimiter(rate.Limit(perSec), int(perSec)+1),
		retryBudget: maxRetryWait,
		log:         log,
		inbound:     make(chan messenger.InboundMessage, 100),
	}, nil
}

// Connect authenticates against the Bot API.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("telegram: adapter already closed")
	}
	if a.connected {
		return nil
	}
	if a.bot == nil {
		bot, err := tgbotapi.NewBotAPI(a.token)
		if err != nil {
			return fmt.Errorf("telegram: create bot: %w", err)
		}
		a.log.Info("connected", "bot", bot.Self.UserName)
		a.bot = bot
	}
	a.connected = true
	return nil
}

// Listen starts long polling and returns the inbound message channel.
// Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan messenger.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("telegram: not connected")
	}
	if a.done != nil {
		return a.inbound, nil
	}

	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = a.pollTimeout
	updates := a.bot.GetUpdatesChan(cfg)

	listenCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.pump(listenCtx, updates, a.done)
	return a.inbound, nil
}

func (a *Adapter) pump(ctx context.Context, updates tgbotapi.UpdatesChannel, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			msg, ok := toInbound(update)
			if !ok {
				continue
			}
			select {
			case a.inbound <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// toInbound converts a private-chat update into an InboundMessage.
func toInbound(update tgbotapi.Update) (messenger.InboundMessage, bool) {
	m := update.Message
	if m == nil || m.From == nil || m.Chat == nil || !m.Chat.IsPrivate() {
		return messenger.InboundMessage{}, false
	}
	if m.From.IsBot {
		return messenger.InboundMessage{}, false
	}
	in := messenger.InboundMessage{
		Platform:  "telegram",
		UserID:    m.From.ID,
		FirstName: m.From.FirstName,
		LastName:  m.From.LastName,
		Username:  m.From.UserName,
		Text:      strings.TrimSpace(m.Text),
		Timestamp: time.Unix(int64(m.Date), 0).UTC(),
	}
	// Only accept the sender's own contact card as their phone.
	if m.Contact != nil && m.Contact.UserID == m.From.ID {
		in.Phone = m.Contact.PhoneNumber
	}
	if in.Text == "" && in.Phone == "" {
		return messenger.InboundMessage{}, false
	}
	return in, true
}

// Send delivers a message to a user's private chat, with options rendered as
// a reply keyboard.
func (a *Adapter) Send(ctx context.Context, msg messenger.OutboundMessage) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("telegram: not connected")
	}
	a.mu.Unlock()

	out := buildMessage(msg)
	err := a.retryOnRateLimit(ctx, func() error {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
		_, sendErr := a.bot.Send(out)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("telegram: send to %d: %w", msg.RecipientID, err)
	}
	return nil
}

// buildMessage translates an OutboundMessage into a Bot API message. With
// no options the chat keeps its current keyboard.
func buildMessage(msg messenger.OutboundMessage) tgbotapi.MessageConfig {
	out := tgbotapi.NewMessage(msg.RecipientID, msg.Text)
	if len(msg.Options) > 0 {
		out.ReplyMarkup = buildKeyboard(msg.Options)
	}
	return out
}

// buildKeyboard lays options out two per row. RequestContactLabel becomes a
// share-contact button.
func buildKeyboard(options []string) tgbotapi.ReplyKeyboardMarkup {
	var rows [][]tgbotapi.KeyboardButton
	var row []tgbotapi.KeyboardButton
	for _, opt := range options {
		btn := tgbotapi.NewKeyboardButton(opt)
		if opt == messenger.RequestContactLabel {
			btn = tgbotapi.NewKeyboardButtonContact(opt)
		}
		row = append(row, btn)
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// retryOnRateLimit calls fn and retries on Telegram 429 responses, waiting
// the retry_after the API asks for while the total wait stays within the
// retry budget. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	var waited time.Duration
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var apiErr *tgbotapi.Error
		if !errors.As(err, &apiErr) || apiErr.Code != 429 {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(apiErr.RetryAfter) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		if waited+wait > a.retryBudget {
			a.log.Warn("rate limited, giving up", "attempt", attempt+1, "retry_after", wait)
			return err
		}
		waited += wait
		a.log.Warn("rate limited", "attempt", attempt+1, "retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// Close stops polling and closes the inbound channel.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.connected = false
	cancel, done, bot := a.cancel, a.done, a.bot
	a.mu.Unlock()

	if bot != nil && done != nil {
		bot.StopReceivingUpdates()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	close(a.inbound)
	return nil
}
