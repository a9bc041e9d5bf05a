package messenger

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNotifier_Send(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)

	n := NewNotifier(m)
	if err := n.Send(ctx, 42, "hello", "Yes", "No"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	msg, ok := m.LastSent()
	if !ok {
		t.Fatal("nothing sent")
	}
	if msg.RecipientID != 42 || msg.Text != "hello" {
		t.Errorf("sent = %+v", msg)
	}
	if len(msg.Options) != 2 || msg.Options[0] != "Yes" || msg.Options[1] != "No" {
		t.Errorf("Options = %v, want [Yes No]", msg.Options)
	}
}

func TestNotifier_SendWithoutOptions(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)

	if err := NewNotifier(m).Send(ctx, 1, "plain"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	msg, _ := m.LastSent()
	if len(msg.Options) != 0 {
		t.Errorf("Options = %v, want none", msg.Options)
	}
}

func TestNotifier_WrapsAdapterError(t *testing.T) {
	m := NewMockAdapter()
	ctx := context.Background()
	m.Connect(ctx)
	boom := errors.New("boom")
	m.SetSendError(boom)

	err := NewNotifier(m).Send(ctx, 7, "x")
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want to wrap %v", err, boom)
	}
	if !strings.Contains(err.Error(), "send to 7") {
		t.Errorf("error = %q, want recipient in message", err.Error())
	}
}
