package messenger

import (
	"context"
	"fmt"
)

// Notifier delivers handoff notifications through an Adapter.
type Notifier struct {
	adapter Adapter
}

// NewNotifier returns a Notifier that sends through adapter.
func NewNotifier(adapter Adapter) *Notifier {
	return &Notifier{adapter: adapter}
}

// Send delivers text with optional reply options to partyID.
func (n *Notifier) Send(ctx context.Context, partyID int64, text string, options ...string) error {
	err := n.adapter.Send(ctx, OutboundMessage{
		RecipientID: partyID,
		Text:        text,
		Options:     options,
	})
	if err != nil {
		return fmt.Errorf("messenger: send to %d: %w", partyID, err)
	}
	return nil
}
