package activity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// WebhookSink posts each event as JSON to an HTTP endpoint.
type WebhookSink struct {
	client *resty.Client
	url    string
}

// NewWebhookSink constructs a sink. token, when set, is sent as a bearer token.
func NewWebhookSink(url, token string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if token != "" {
		client.SetAuthToken(token)
	}
	return &WebhookSink{client: client, url: url}
}

// Name identifies the sink.
func (s *WebhookSink) Name() string { return "webhook" }

// Append posts the event. Any 4xx/5xx response is a failure.
func (s *WebhookSink) Append(ctx context.Context, event Event) error {
	if s == nil || s.client == nil || s.url == "" {
		return errors.New("webhook sink: not configured")
	}
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("X-Event-ID", event.EventID).
		SetBody(event).
		Post(s.url)
	if err != nil {
		return fmt.Errorf("webhook sink: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("webhook sink: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
