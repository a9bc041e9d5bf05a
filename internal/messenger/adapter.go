// Package messenger connects Switchboard to chat platforms (Telegram, Discord)
// and carries handoff notifications to them.
package messenger

import (
	"context"
	"time"
)

// RequestContactLabel marks the option that asks the platform for the user's
// phone number. Adapters that support contact sharing render it as a native
// share-contact button; others show it as plain text.
const RequestContactLabel = "Send phone number"

// Adapter is the interface that platform-specific implementations must satisfy.
// Each adapter handles connection management and message sending/receiving
// for a single chat platform.
type Adapter interface {
	// Connect establishes a connection to the chat platform.
	Connect(ctx context.Context) error

	// Listen returns a channel of inbound messages from the platform.
	// The channel is closed when the adapter is closed. Listen must only be
	// called after Connect.
	Listen(ctx context.Context) (<-chan InboundMessage, error)

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close gracefully shuts down the adapter connection.
	Close() error
}

// InboundMessage represents a direct message received from the chat platform.
type InboundMessage struct {
	Platform  string // e.g. "telegram", "discord"
	UserID    int64  // platform user id
	FirstName string
	LastName  string
	Username  string
	Phone     string    // set when the user shared a contact card
	Text      string    // raw message text
	Timestamp time.Time // when the message was sent
}

// OutboundMessage represents a message to be sent to one party.
type OutboundMessage struct {
	RecipientID int64
	Text        string
	Options     []string // reply options, rendered as a keyboard where supported
}
