package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
)

func TestNew_RequiresWebhookURL(t *testing.T) {
	_, err := New(MirrorOpts{})
	if err == nil {
		t.Fatal("expected error for missing webhook url")
	}
	if !strings.Contains(err.Error(), "webhook url") {
		t.Errorf("error = %q, want to mention webhook url", err.Error())
	}
}

func TestBuildWebhookMessage(t *testing.T) {
	msg := buildWebhookMessage("New chat request!\nIvan Petrov +7 900\nChat ID: 3\n")
	if msg.Text != "New chat request!" {
		t.Errorf("Text = %q", msg.Text)
	}
	if len(msg.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Title != "New chat request!" || att.Text != "Ivan Petrov +7 900\nChat ID: 3" {
		t.Errorf("attachment = %+v", att)
	}
	if att.Color != defaultColor {
		t.Errorf("Color = %q", att.Color)
	}
}

func TestMirror_PostsToWebhook(t *testing.T) {
	var got slackapi.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, err := New(MirrorOpts{WebhookURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := m.Mirror(context.Background(), "Callback requested by Ivan"); err != nil {
		t.Fatalf("mirror: %v", err)
	}
	if got.Text != "Callback requested by Ivan" {
		t.Errorf("posted text = %q", got.Text)
	}
}

func TestMirror_RetriesOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, _ := New(MirrorOpts{WebhookURL: srv.URL})
	m.baseBackoff = time.Millisecond

	if err := m.Mirror(context.Background(), "x"); err != nil {
		t.Fatalf("mirror: %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("calls = %d, want 3", n)
	}
}

func TestMirror_ServerErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, _ := New(MirrorOpts{WebhookURL: srv.URL})
	err := m.Mirror(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "slack: post webhook") {
		t.Errorf("error = %q", err.Error())
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("calls = %d, want 1", n)
	}
}
