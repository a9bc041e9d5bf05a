// Package dialog tracks each user's position in the bot conversation and
// turns inbound text into handoff engine operations.
package dialog

import (
	"context"
	"sync"
	"time"
)

// Step is a user's position in the dialog.
type Step string

// Dialog steps.
const (
	StepIdle                  Step = "IDLE"
	StepAwaitingManagerChoice Step = "AWAITING_MANAGER_CHOICE"
	StepAwaitingContact       Step = "AWAITING_CONTACT"
	StepInChat                Step = "IN_CHAT"
	StepRating                Step = "RATING"
)

// State is the per-user dialog state. ChatID is the chat in progress or the
// chat awaiting a rating.
type State struct {
	Step      Step      `json:"step"`
	ChatID    uint      `json:"chat_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// idle is the state of a user with no tracked dialog.
func idle() State {
	return State{Step: StepIdle}
}

// SessionStore holds dialog state keyed by user. State is process-wide and
// carries no guarantee of surviving a restart.
type SessionStore interface {
	// Get returns the user's state, or an IDLE state when none is tracked.
	Get(ctx context.Context, userID int64) (State, error)
	Set(ctx context.Context, userID int64, st State) error
	Clear(ctx context.Context, userID int64) error
}

// MemoryStore is an in-process SessionStore. State is lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[int64]State
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]State)}
}

// Get returns the user's state.
func (m *MemoryStore) Get(_ context.Context, userID int64) (State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[userID]
	if !ok {
		return idle(), nil
	}
	return st, nil
}

// Set replaces the user's state.
func (m *MemoryStore) Set(_ context.Context, userID int64, st State) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	m.states[userID] = st
	m.mu.Unlock()
	return nil
}

// Clear forgets the user's state.
func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.states, userID)
	m.mu.Unlock()
	return nil
}
