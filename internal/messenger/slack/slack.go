// Package slack mirrors manager-facing escalations into a Slack channel
// through an incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/switchboard/internal/logger"
)

const (
	// maxRetries is the max number of retries for rate-limited webhook posts.
	maxRetries = 3
	// defaultColor tags escalations in the channel.
	defaultColor = "#f2c744"
)

// Mirror posts copies of escalation texts to a Slack incoming webhook.
type Mirror struct {
	webhookURL  string
	client      *http.Client
	log         *slog.Logger
	baseBackoff time.Duration
}

// MirrorOpts holds parameters for creating a Mirror.
type MirrorOpts struct {
	WebhookURL string
	Timeout    time.Duration // per post, defaults to 10s
	Logger     *slog.Logger
}

// New creates a Mirror.
func New(opts MirrorOpts) (*Mirror, error) {
	if opts.WebhookURL == "" {
		return nil, fmt.Errorf("slack: webhook url is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logger.Component("slack")
	}
	return &Mirror{
		webhookURL:  opts.WebhookURL,
		client:      &http.Client{Timeout: timeout},
		log:         log,
		baseBackoff: time.Second,
	}, nil
}

// Mirror posts text as a colored attachment. The first line becomes the
// attachment title.
func (m *Mirror) Mirror(ctx context.Context, text string) error {
	msg := buildWebhookMessage(text)
	err := m.retryOnRateLimit(ctx, func() error {
		return slackapi.PostWebhookCustomHTTPContext(ctx, m.webhookURL, m.client, msg)
	})
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	return nil
}

// buildWebhookMessage converts escalation text to a webhook payload.
func buildWebhookMessage(text string) *slackapi.WebhookMessage {
	title, body, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return &slackapi.WebhookMessage{
		Text: title,
		Attachments: []slackapi.Attachment{{
			Title:    title,
			Text:     strings.TrimSpace(body),
			Color:    defaultColor,
			Fallback: title,
		}},
	}
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func (m *Mirror) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * m.baseBackoff
		}
		m.log.Warn("rate limited", "attempt", attempt+1, "retry_in", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
