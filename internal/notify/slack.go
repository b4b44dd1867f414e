package notify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
)

// maxRetries is the max number of retries for rate-limited webhook calls.
const maxRetries = 3

type webhookPoster func(ctx context.Context, url string, msg *slackapi.WebhookMessage) error

// Slack posts messages to an incoming webhook.
type Slack struct {
	url  string
	post webhookPoster
}

// NewSlack returns a Slack sink for the incoming webhook url.
func NewSlack(url string) (*Slack, error) {
	if url == "" {
		return nil, fmt.Errorf("slack: webhook url is required")
	}
	return &Slack{url: url, post: slackapi.PostWebhookContext}, nil
}

// Name implements Sink.
func (s *Slack) Name() string { return "slack" }

// Send implements Sink.
func (s *Slack) Send(ctx context.Context, msg Message) error {
	payload := &slackapi.WebhookMessage{
		Text:        msg.Title,
		Attachments: []slackapi.Attachment{messageToAttachment(msg)},
	}
	return retryOnRateLimit(ctx, time.Second, func() error {
		return s.post(ctx, s.url, payload)
	})
}

// messageToAttachment converts a Message to a Slack Attachment.
func messageToAttachment(msg Message) slackapi.Attachment {
	att := slackapi.Attachment{
		Title:    msg.Title,
		Text:     msg.Body,
		Color:    msg.Color,
		Fallback: msg.Title,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return att
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit
// errors, honoring RetryAfter and context cancellation.
func retryOnRateLimit(ctx context.Context, base time.Duration, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) || attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * base
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
