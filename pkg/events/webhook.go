package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/theory-cloud/replytheory/pkg/observability"
)

// WebhookNotifier POSTs selected pipeline events to an external URL as JSON.
// Delivery is best-effort: failures are logged and never propagate into the
// publishing pipeline.
type WebhookNotifier struct {
	url    string
	http   *http.Client
	logger observability.StructuredLogger
}

// NewWebhookNotifier builds a notifier with the given per-request timeout.
func NewWebhookNotifier(url string, timeout time.Duration, logger observability.StructuredLogger) (*WebhookNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("events: webhook url cannot be empty")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = observability.NewNoOpLogger()
	}
	return &WebhookNotifier{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// Attach subscribes the notifier to the given event types on bus.
func (n *WebhookNotifier) Attach(bus Bus, eventTypes ...string) error {
	for _, eventType := range eventTypes {
		if err := bus.Subscribe(eventType, n.handle); err != nil {
			return err
		}
	}
	return nil
}

func (n *WebhookNotifier) handle(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("webhook encode failed", map[string]any{"error": err.Error()})
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn("webhook request build failed", map[string]any{"error": err.Error()})
		return nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.http.Do(req)
	if err != nil {
		n.logger.Warn("webhook delivery failed", map[string]any{
			"event_type": event.Type,
			"error":      err.Error(),
		})
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		n.logger.Warn("webhook rejected", map[string]any{
			"event_type": event.Type,
			"status":     resp.StatusCode,
		})
	}
	return nil
}
