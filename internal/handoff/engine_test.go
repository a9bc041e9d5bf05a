package handoff

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/store"
)

const managerID int64 = 900

type sent struct {
	To      int64
	Text    string
	Options []string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
	fail bool
}

func (n *recordingNotifier) Send(_ context.Context, partyID int64, text string, options ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("transport down")
	}
	n.sent = append(n.sent, sent{To: partyID, Text: text, Options: options})
	return nil
}

func (n *recordingNotifier) to(id int64) []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sent
	for _, s := range n.sent {
		if s.To == id {
			out = append(out, s)
		}
	}
	return out
}

func (n *recordingNotifier) last(id int64) sent {
	msgs := n.to(id)
	if len(msgs) == 0 {
		return sent{}
	}
	return msgs[len(msgs)-1]
}

type recordingMirror struct {
	texts []string
}

func (m *recordingMirror) Mirror(_ context.Context, text string) error {
	m.texts = append(m.texts, text)
	return nil
}

type fixture struct {
	store    *store.Store
	notifier *recordingNotifier
	mirror   *recordingMirror
	engine   *Engine
	logs     *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gormDB, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gormDB))

	f := &fixture{
		store:    store.New(gormDB),
		notifier: &recordingNotifier{},
		mirror:   &recordingMirror{},
		logs:     &bytes.Buffer{},
	}
	f.engine, err = New(Opts{
		Store:    f.store,
		Notifier: f.notifier,
		Managers: []int64{managerID},
		Mirror:   f.mirror,
		Logger:   slog.New(slog.NewTextHandler(f.logs, nil)),
	})
	require.NoError(t, err)
	return f
}

func user(id int64, first, last string) *models.User {
	return &models.User{ID: id, FirstName: first, LastName: last}
}

// backdate sets the chat's creation time.
func (f *fixture) backdate(t *testing.T, chatID uint, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.DB().Model(&models.Chat{}).Where("id = ?", chatID).Update("created_at", at).Error)
}

func (f *fixture) chat(t *testing.T, id uint) *models.Chat {
	t.Helper()
	c, err := f.store.GetChat(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Opts{Notifier: &recordingNotifier{}, Managers: []int64{1}})
	assert.ErrorContains(t, err, "store is required")

	_, err = New(Opts{Store: &store.Store{}, Managers: []int64{1}})
	assert.ErrorContains(t, err, "notifier is required")

	_, err = New(Opts{Store: &store.Store{}, Notifier: &recordingNotifier{}})
	assert.ErrorContains(t, err, "at least one manager")
}

func TestManagerSet(t *testing.T) {
	e, err := New(Opts{Store: &store.Store{}, Notifier: &recordingNotifier{}, Managers: []int64{5, 6}})
	require.NoError(t, err)
	assert.Equal(t, int64(5), e.Manager())
	assert.True(t, e.IsManager(6))
	assert.False(t, e.IsManager(7))
}

func TestRequestChat_NotifiesManagerWithAcceptLabel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat, err := f.engine.RequestChat(ctx, user(1, "Anna", "Smirnova"))
	require.NoError(t, err)
	assert.Equal(t, models.ChatPending, chat.Status)
	assert.Equal(t, managerID, chat.ManagerID)

	msg := f.notifier.last(managerID)
	assert.Contains(t, msg.Text, "New chat request")
	assert.Contains(t, msg.Text, "Anna Smirnova")
	assert.Equal(t, []string{"Accept chat with Anna Smirnova", OptionReject}, msg.Options)

	require.Len(t, f.mirror.texts, 1)
	assert.Contains(t, f.mirror.texts[0], "Anna Smirnova")

	logs, err := f.store.ListUserLogs(ctx, 1, 0)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Equal(t, ActionChatRequested, logs[0].Action)
}

func TestRequestChat_DuplicateOpenChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	_, err = f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.ErrorIs(t, err, ErrDuplicateActiveChat)

	chats, err := f.store.ListChats(ctx, store.ChatFilter{UserID: 1})
	require.NoError(t, err)
	assert.Len(t, chats, 1)
}

func TestRequestChat_ConcurrentDuplicateTaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.RequestChat(ctx, user(1, "Anna", ""))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateActiveChat)
		}
	}
	assert.Equal(t, 1, ok)
	open, err := f.store.ListChats(ctx, store.ChatFilter{UserID: 1, Status: models.ChatPending})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func TestAcceptChat_FIFO(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	later, err := f.engine.RequestChat(ctx, user(2, "Boris", ""))
	require.NoError(t, err)
	earlier, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	now := time.Now()
	f.backdate(t, earlier.ID, now.Add(-2*time.Minute))
	f.backdate(t, later.ID, now.Add(-time.Minute))

	accepted, err := f.engine.AcceptChat(ctx, managerID)
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, accepted.ID)
	assert.Equal(t, models.ChatActive, accepted.Status)
	assert.NotNil(t, accepted.AcceptedAt)
	assert.Equal(t, models.ChatPending, f.chat(t, later.ID).Status)

	userMsg := f.notifier.last(1)
	assert.Contains(t, userMsg.Text, "manager has joined")
	assert.Equal(t, []string{OptionEndChat}, userMsg.Options)
	assert.Contains(t, f.notifier.last(managerID).Text, "Anna")
}

func TestAcceptChat_NoPending(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.AcceptChat(context.Background(), managerID)
	assert.ErrorIs(t, err, ErrNoPendingChat)
}

func TestAcceptChat_ManagerBusy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	_, err = f.engine.AcceptChat(ctx, managerID)
	require.NoError(t, err)
	second, err := f.engine.RequestChat(ctx, user(2, "Boris", ""))
	require.NoError(t, err)

	_, err = f.engine.AcceptChat(ctx, managerID)
	require.ErrorIs(t, err, ErrManagerBusy)
	assert.Equal(t, models.ChatPending, f.chat(t, second.ID).Status)
}

// raceStore makes the first pending chat go stale right before the engine
// tries to accept it, as if another accept had won.
type raceStore struct {
	*store.Store
	once sync.Once
}

func (r *raceStore) AcceptChat(ctx context.Context, id uint, mgr int64) error {
	r.once.Do(func() {
		_ = r.Store.RejectChat(ctx, id)
	})
	return r.Store.AcceptChat(ctx, id, mgr)
}

func TestAcceptChat_LostRaceMovesToNextPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	second, err := f.engine.RequestChat(ctx, user(2, "Boris", ""))
	require.NoError(t, err)
	f.backdate(t, first.ID, time.Now().Add(-time.Hour))

	racy, err := New(Opts{Store: &raceStore{Store: f.store}, Notifier: f.notifier, Managers: []int64{managerID}})
	require.NoError(t, err)

	accepted, err := racy.AcceptChat(ctx, managerID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, accepted.ID)
	assert.Equal(t, models.ChatRejected, f.chat(t, first.ID).Status)
}

func TestAcceptChat_NotifierFailureKeepsChatActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	f.notifier.fail = true

	_, err = f.engine.AcceptChat(ctx, managerID)
	require.NoError(t, err)
	assert.Equal(t, models.ChatActive, f.chat(t, chat.ID).Status)
	assert.Contains(t, f.logs.String(), ErrDeliveryFailure.Error())
}

func TestRejectChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)

	rejected, err := f.engine.RejectChat(ctx, managerID)
	require.NoError(t, err)
	assert.Equal(t, chat.ID, rejected.ID)
	assert.Equal(t, models.ChatRejected, rejected.Status)
	assert.Contains(t, f.notifier.last(1).Text, "declined")

	_, err = f.engine.RejectChat(ctx, managerID)
	assert.ErrorIs(t, err, ErrNoPendingChat)

	// A rejected chat does not block a new request.
	_, err = f.engine.RequestChat(ctx, user(1, "Anna", ""))
	assert.NoError(t, err)
}

func TestRelayMessage_BothDirections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	chat, err := f.engine.AcceptChat(ctx, managerID)
	require.NoError(t, err)

	require.NoError(t, f.engine.RelayMessage(ctx, 1, chat, "hello"))
	assert.Equal(t, "hello", f.notifier.last(managerID).Text)
	assert.Empty(t, f.notifier.last(managerID).Options)

	require.NoError(t, f.engine.RelayMessage(ctx, managerID, chat, "hi Anna"))
	toUser := f.notifier.last(1)
	assert.Equal(t, "hi Anna", toUser.Text)
	assert.Equal(t, []string{OptionEndChat}, toUser.Options)

	msgs, err := f.store.ListMessages(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].SenderID)
	assert.Equal(t, managerID, msgs[1].SenderID)
}

func TestRelayMessage_RequiresActiveChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)

	err = f.engine.RelayMessage(ctx, 1, chat, "anyone there?")
	require.ErrorIs(t, err, ErrChatNotActive)
	n, err := f.store.CountMessages(ctx, chat.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, f.engine.RelayMessage(ctx, 1, nil, "x"), ErrChatNotActive)
}

func TestEndChat_ByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	_, err = f.engine.AcceptChat(ctx, managerID)
	require.NoError(t, err)

	closed, err := f.engine.EndChat(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ChatClosed, closed.Status)
	assert.NotNil(t, closed.ClosedAt)
	assert.Contains(t, f.notifier.last(managerID).Text, "Anna ended the chat")

	_, err = f.engine.EndChat(ctx, 1)
	assert.ErrorIs(t, err, ErrNoActiveChat)
	again, err := f.store.GetChat(ctx, closed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ChatClosed, again.Status)
	assert.Equal(t, closed.ClosedAt.Unix(), again.ClosedAt.Unix())
}

func TestEndChat_ByManager(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	_, err = f.engine.AcceptChat(ctx, managerID)
	require.NoError(t, err)

	closed, err := f.engine.EndChat(ctx, managerID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed.UserID)
	msg := f.notifier.last(1)
	assert.Contains(t, msg.Text, "manager ended the chat")
	assert.Equal(t, []string{OptionContactManager}, msg.Options)
}

func TestEndChat_PendingCancelledByUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	closed, err := f.engine.EndChat(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ChatClosed, closed.Status)
	assert.Contains(t, f.notifier.last(managerID).Text, "cancelled")
}

func TestEndChat_NoActiveChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.EndChat(ctx, 1)
	assert.ErrorIs(t, err, ErrNoActiveChat)
	_, err = f.engine.EndChat(ctx, managerID)
	assert.ErrorIs(t, err, ErrNoActiveChat)
}

func TestSubmitRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.SubmitRating(ctx, chat.ID, 4), ErrChatNotClosed)

	_, err = f.engine.EndChat(ctx, 1)
	require.NoError(t, err)

	for _, stars := range []int{0, 6, -1} {
		assert.ErrorIs(t, f.engine.SubmitRating(ctx, chat.ID, stars), ErrInvalidRating)
	}
	assert.Nil(t, f.chat(t, chat.ID).Rating)

	require.NoError(t, f.engine.SubmitRating(ctx, chat.ID, 5))
	rating := f.chat(t, chat.ID).Rating
	require.NotNil(t, rating)
	assert.Equal(t, 5, *rating)
}

func TestRequestCallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.RequestCallback(ctx, user(1, "Anna", "")))
	assert.Contains(t, f.notifier.last(managerID).Text, "Callback requested by Anna")
	require.Len(t, f.mirror.texts, 1)

	var reqs []models.ContactRequest
	require.NoError(t, f.store.DB().Find(&reqs).Error)
	require.Len(t, reqs, 1)
	assert.Equal(t, models.RequestCallback, reqs[0].RequestType)
}

func TestShareContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.engine.ShareContact(ctx, user(1, "Anna", ""), "+79001234567"))
	u, err := f.store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, u.Phone)
	assert.Equal(t, "+79001234567", *u.Phone)
	assert.Contains(t, f.notifier.last(managerID).Text, "+79001234567")

	// The phone now shows up in the manager's accept label.
	_, err = f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	assert.Contains(t, f.notifier.last(managerID).Options, "Accept chat with Anna +79001234567")
}

func TestPendingChats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.RequestChat(ctx, user(1, "Anna", ""))
	require.NoError(t, err)
	_, err = f.engine.RequestChat(ctx, user(2, "", ""))
	require.NoError(t, err)

	chats, err := f.engine.PendingChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	summary := PendingSummary(chats)
	assert.True(t, strings.HasPrefix(summary, "Pending chats: 2"))
	assert.Contains(t, summary, "Anna")
	assert.Contains(t, summary, "ID: 2")
}

func TestStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	sqlDB, err := f.store.DB().DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = f.engine.RequestChat(context.Background(), user(1, "Anna", ""))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = f.engine.AcceptChat(context.Background(), managerID)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
