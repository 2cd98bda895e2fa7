// Package events carries pipeline notifications (message received, response
// sent or suppressed, guardrail violation) over an in-process bus, with an
// optional webhook notifier for external observers.
package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Pipeline event types.
const (
	TypeMessageReceived    = "message.received"
	TypeResponseSent       = "response.sent"
	TypeResponseSuppressed = "response.suppressed"
	TypeGuardrailViolation = "guardrail.violation"
)

// Event is one pipeline notification.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	RequestID   string         `json:"request_id,omitempty"`
	Recipient   string         `json:"recipient,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"`
	PublishedAt time.Time      `json:"published_at"`
}

// Handler consumes one event. A handler error stops delivery to later
// handlers and is returned from Publish.
type Handler func(ctx context.Context, event *Event) error

// Bus publishes and subscribes pipeline events.
type Bus interface {
	// Publish delivers the event to subscribers of its type and returns the
	// event ID (assigned if blank).
	Publish(ctx context.Context, event *Event) (string, error)

	// Subscribe registers a handler for one event type.
	Subscribe(eventType string, handler Handler) error

	Close() error
}

// recentCapacity bounds the in-memory tail kept for inspection.
const recentCapacity = 256

// MemoryBus is the in-process implementation. Handlers run synchronously on
// the publisher's goroutine; the handler list is snapshotted under the lock
// and invoked outside it.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	recent   []*Event
	closed   bool
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{handlers: make(map[string][]Handler)}
}

func (b *MemoryBus) Publish(ctx context.Context, event *Event) (string, error) {
	if event == nil {
		return "", fmt.Errorf("events: event cannot be nil")
	}
	if strings.TrimSpace(event.Type) == "" {
		return "", fmt.Errorf("events: event type cannot be empty")
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = ulid.Make().String()
	}
	if event.PublishedAt.IsZero() {
		event.PublishedAt = time.Now().UTC()
	}

	stored := *event

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", fmt.Errorf("events: bus is closed")
	}
	b.recent = append(b.recent, &stored)
	if len(b.recent) > recentCapacity {
		b.recent = b.recent[len(b.recent)-recentCapacity:]
	}
	handlers := append([]Handler(nil), b.handlers[event.Type]...)
	b.mu.Unlock()

	for _, handler := range handlers {
		if handler == nil {
			continue
		}
		if err := handler(ctx, &stored); err != nil {
			return stored.ID, err
		}
	}
	return stored.ID, nil
}

func (b *MemoryBus) Subscribe(eventType string, handler Handler) error {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return fmt.Errorf("events: event type cannot be empty")
	}
	if handler == nil {
		return fmt.Errorf("events: handler cannot be nil")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("events: bus is closed")
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// Recent returns up to n most recent events, newest last.
func (b *MemoryBus) Recent(n int) []*Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.recent) {
		n = len(b.recent)
	}
	out := make([]*Event, n)
	copy(out, b.recent[len(b.recent)-n:])
	return out
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = make(map[string][]Handler)
	return nil
}
