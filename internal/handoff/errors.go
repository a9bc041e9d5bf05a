package handoff

import (
	"errors"

	"github.com/zulandar/switchboard/internal/store"
)

// Errors returned by Engine operations. Match them with errors.Is.
var (
	// ErrDuplicateActiveChat means the user already has a pending or active chat.
	ErrDuplicateActiveChat = errors.New("user already has an open chat")
	// ErrNoPendingChat means the manager asked to accept or reject with an empty queue.
	ErrNoPendingChat = errors.New("no pending chat")
	// ErrNoActiveChat means the initiator has no chat to end or relay into.
	ErrNoActiveChat = errors.New("no active chat")
	// ErrChatNotActive means a relay was attempted on a chat that is not active.
	ErrChatNotActive = errors.New("chat is not active")
	// ErrChatNotClosed means a rating was submitted for a chat that is still open.
	ErrChatNotClosed = errors.New("chat is not closed")
	// ErrStoreUnavailable wraps every record store failure.
	ErrStoreUnavailable = store.ErrUnavailable
	// ErrDeliveryFailure marks a notification that could not be delivered.
	// It is logged, never returned: delivery is best-effort.
	ErrDeliveryFailure = errors.New("notification delivery failed")
	// ErrInvalidRating means the rating is outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrManagerBusy means the manager already holds an active chat.
	ErrManagerBusy = errors.New("manager already has an active chat")
)
