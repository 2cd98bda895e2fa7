// Package relay runs the inbound message loop: poll the transport, admit
// through the rate limiter, generate via the responder, send, and record.
// Every per-message failure is logged and absorbed; only context cancellation
// stops the loop.
package relay

import (
	"context"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/theory-cloud/replytheory/pkg/events"
	"github.com/theory-cloud/replytheory/pkg/limited"
	"github.com/theory-cloud/replytheory/pkg/metrics"
	"github.com/theory-cloud/replytheory/pkg/naming"
	"github.com/theory-cloud/replytheory/pkg/observability"
	"github.com/theory-cloud/replytheory/pkg/responder"
	"github.com/theory-cloud/replytheory/pkg/store"
	"github.com/theory-cloud/replytheory/pkg/transport"
)

// seenCapacity bounds the in-memory dedup set. The store remains the durable
// dedup layer; this set just avoids a query for messages still in the poll
// window.
const seenCapacity = 512

// Responder produces a reply for one inbound message.
type Responder interface {
	Respond(ctx context.Context, req responder.Request) (*responder.Result, error)
}

var _ Responder = (*responder.Orchestrator)(nil)

// MessageStore is the persistence surface the relay needs.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *store.Message) (uint, error)
	HasMessageWithExtID(ctx context.Context, extID string) (bool, error)
}

var _ MessageStore = (*store.Store)(nil)

// Limiter admits outbound replies.
type Limiter interface {
	CheckAndRecord(recipient string) limited.Decision
}

var _ Limiter = (*limited.RateLimiter)(nil)

// Config controls the relay loop.
type Config struct {
	// PollInterval is the pause between receiver polls.
	PollInterval time.Duration

	// AutoReply gates sending entirely; when false the relay still records
	// inbound messages.
	AutoReply bool

	// AllowedNumbers, when non-empty, restricts replies to these senders.
	AllowedNumbers []string

	// IgnoredNumbers are never replied to.
	IgnoredNumbers []string

	// ProviderName labels LLM latency metrics.
	ProviderName string
}

// Relay wires the transport to the responder.
type Relay struct {
	cfg       Config
	receiver  transport.Receiver
	sender    transport.Sender
	responder Responder
	limiter   Limiter
	store     MessageStore
	bus       events.Bus
	metrics   *metrics.Metrics
	logger    observability.StructuredLogger

	allowed map[string]struct{}
	ignored map[string]struct{}

	seen      map[string]struct{}
	seenOrder []string

	entropy *ulid.MonotonicEntropy
}

// Option configures a Relay.
type Option func(*Relay)

// WithBus attaches an event bus; without one, events are dropped.
func WithBus(bus events.Bus) Option {
	return func(r *Relay) { r.bus = bus }
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(logger observability.StructuredLogger) Option {
	return func(r *Relay) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates a relay. Receiver, sender, responder, limiter, and store are
// all required.
func New(cfg Config, receiver transport.Receiver, sender transport.Sender, rsp Responder, limiter Limiter, ms MessageStore, opts ...Option) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	r := &Relay{
		cfg:       cfg,
		receiver:  receiver,
		sender:    sender,
		responder: rsp,
		limiter:   limiter,
		store:     ms,
		logger:    observability.NewNoOpLogger(),
		allowed:   numberSet(cfg.AllowedNumbers),
		ignored:   numberSet(cfg.IgnoredNumbers),
		seen:      make(map[string]struct{}),
		entropy:   ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func numberSet(numbers []string) map[string]struct{} {
	set := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		if normalized := naming.NormalizeNumber(n); normalized != "" {
			set[normalized] = struct{}{}
		}
	}
	return set
}

// Run polls until ctx is canceled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("relay started", map[string]any{
		"poll_interval": r.cfg.PollInterval.String(),
		"auto_reply":    r.cfg.AutoReply,
	})

	for {
		r.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessOnce performs a single poll-and-handle pass.
func (r *Relay) ProcessOnce(ctx context.Context) {
	inbound, err := r.receiver.Poll(ctx)
	if err != nil {
		if r.metrics != nil {
			r.metrics.PollErrorsTotal.Inc()
		}
		r.logger.Warn("poll failed", map[string]any{"error": err.Error()})
		return
	}
	for i := range inbound {
		if ctx.Err() != nil {
			return
		}
		r.handleMessage(ctx, &inbound[i])
	}
}

func (r *Relay) handleMessage(ctx context.Context, msg *transport.InboundMessage) {
	sender := naming.NormalizeNumber(msg.From)
	if sender == "" || msg.Body == "" {
		return
	}
	if r.alreadySeen(ctx, msg.ID) {
		return
	}

	requestID := ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
	logger := r.logger.WithRequestID(requestID).WithRecipient(naming.MaskNumber(sender))

	if _, err := r.store.SaveMessage(ctx, &store.Message{
		RequestID:   requestID,
		PhoneNumber: sender,
		Direction:   store.DirectionIncoming,
		Body:        msg.Body,
		ExtID:       msg.ID,
	}); err != nil {
		logger.Error("save inbound failed", map[string]any{"error": err.Error()})
	}
	r.publish(ctx, &events.Event{
		Type:      events.TypeMessageReceived,
		RequestID: requestID,
		Recipient: sender,
		Detail:    map[string]any{"length": len(msg.Body)},
	})

	if reason := r.replyBlocked(sender); reason != "" {
		logger.Debug("not replying", map[string]any{"reason": reason})
		return
	}

	decision := r.limiter.CheckAndRecord(sender)
	if !decision.Allowed {
		if r.metrics != nil {
			r.metrics.AdmissionDenied.WithLabelValues(string(decision.Constraint)).Inc()
		}
		r.publish(ctx, &events.Event{
			Type:      events.TypeResponseSuppressed,
			RequestID: requestID,
			Recipient: sender,
			Detail: map[string]any{
				"constraint":  string(decision.Constraint),
				"retry_after": decision.RetryAfter.String(),
			},
		})
		logger.Info("reply suppressed by rate limit", map[string]any{
			"constraint":  string(decision.Constraint),
			"retry_after": decision.RetryAfter.String(),
		})
		return
	}

	result, err := r.responder.Respond(ctx, responder.Request{
		RequestID: requestID,
		Recipient: sender,
		Message:   msg.Body,
	})
	if err != nil {
		logger.Error("respond failed", map[string]any{"error": err.Error()})
		return
	}

	if err := r.sender.SendMessage(ctx, sender, result.Response); err != nil {
		if r.metrics != nil {
			r.metrics.SendFailuresTotal.Inc()
		}
		logger.Error("send failed", map[string]any{"error": err.Error()})
		return
	}

	if _, err := r.store.SaveMessage(ctx, &store.Message{
		RequestID:   requestID,
		PhoneNumber: sender,
		Direction:   store.DirectionOutgoing,
		Body:        result.Response,
		Source:      string(result.Source),
	}); err != nil {
		logger.Error("save outbound failed", map[string]any{"error": err.Error()})
	}

	r.observe(result)
	if result.Guardrail != nil && len(result.Guardrail.Violations) > 0 {
		detail := make([]string, 0, len(result.Guardrail.Violations))
		for _, v := range result.Guardrail.Violations {
			detail = append(detail, string(v.Type))
		}
		r.publish(ctx, &events.Event{
			Type:      events.TypeGuardrailViolation,
			RequestID: requestID,
			Recipient: sender,
			Detail:    map[string]any{"violations": detail},
		})
	}
	r.publish(ctx, &events.Event{
		Type:      events.TypeResponseSent,
		RequestID: requestID,
		Recipient: sender,
		Detail: map[string]any{
			"source":     string(result.Source),
			"length":     len(result.Response),
			"latency_ms": result.LatencyMs,
		},
	})
	logger.Info("reply sent", map[string]any{
		"source":     string(result.Source),
		"length":     len(result.Response),
		"latency_ms": result.LatencyMs,
	})
}

// alreadySeen consults the in-memory set first and falls back to the store
// for IDs that aged out of it.
func (r *Relay) alreadySeen(ctx context.Context, extID string) bool {
	if extID == "" {
		return false
	}
	if _, ok := r.seen[extID]; ok {
		return true
	}
	handled, err := r.store.HasMessageWithExtID(ctx, extID)
	if err != nil {
		r.logger.Warn("dedup lookup failed", map[string]any{"error": err.Error()})
	}
	r.markSeen(extID)
	return handled
}

func (r *Relay) markSeen(extID string) {
	if len(r.seenOrder) >= seenCapacity {
		oldest := r.seenOrder[0]
		r.seenOrder = r.seenOrder[1:]
		delete(r.seen, oldest)
	}
	r.seen[extID] = struct{}{}
	r.seenOrder = append(r.seenOrder, extID)
}

// replyBlocked returns the reason a sender gets no reply, or "" to proceed.
func (r *Relay) replyBlocked(sender string) string {
	if !r.cfg.AutoReply {
		return "auto-reply disabled"
	}
	if naming.IsShortCode(sender) {
		return "short code"
	}
	if _, ok := r.ignored[sender]; ok {
		return "ignored number"
	}
	if len(r.allowed) > 0 {
		if _, ok := r.allowed[sender]; !ok {
			return "not in allowed list"
		}
	}
	return ""
}

func (r *Relay) observe(result *responder.Result) {
	if r.metrics == nil {
		return
	}
	r.metrics.ResponsesTotal.WithLabelValues(string(result.Source)).Inc()
	if result.TokensUsed > 0 {
		r.metrics.LLMTokensTotal.Add(float64(result.TokensUsed))
	}
	if result.Source == responder.SourceAI {
		provider := r.cfg.ProviderName
		if provider == "" {
			provider = "unknown"
		}
		r.metrics.LLMRequestSeconds.WithLabelValues(provider, "success").
			Observe(float64(result.LatencyMs) / 1000.0)
	}
	if result.Guardrail != nil {
		for _, v := range result.Guardrail.Violations {
			r.metrics.GuardrailViolations.WithLabelValues(string(v.Type)).Inc()
		}
	}
}

func (r *Relay) publish(ctx context.Context, event *events.Event) {
	if r.bus == nil {
		return
	}
	if _, err := r.bus.Publish(ctx, event); err != nil {
		r.logger.Warn("event publish failed", map[string]any{
			"type":  event.Type,
			"error": err.Error(),
		})
	}
}
