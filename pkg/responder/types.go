// Package responder decides how to answer an incoming message: AI generation
// first when enabled, then the rules engine, then a canned fallback. Every
// candidate passes through the guardrail validator before it is returned.
package responder

import (
	"context"
	"time"

	"github.com/theory-cloud/replytheory/pkg/guardrail"
	"github.com/theory-cloud/replytheory/pkg/store"
)

// Clock interface for time operations (allows mocking in tests).
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// Source names where a response came from.
type Source string

const (
	SourceAI       Source = "ai"
	SourceRules    Source = "rules"
	SourceFallback Source = "fallback"
)

// Request is one incoming message to answer. RequestID is the caller's
// correlation id (the relay assigns a ULID); it threads through audit rows.
type Request struct {
	RequestID string
	Recipient string
	Message   string
}

// Result is the outcome of one Respond call.
type Result struct {
	Response   string            `json:"response"`
	Source     Source            `json:"source"`
	Model      string            `json:"model,omitempty"`
	TokensUsed int               `json:"tokens_used,omitempty"`
	LatencyMs  int64             `json:"latency_ms"`
	Guardrail  *guardrail.Result `json:"guardrail,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// Store is the persistence surface the orchestrator needs: audit logging
// plus conversation context and contact personalization. *store.Store
// satisfies it; tests use a mock.
type Store interface {
	LogLLMRequest(ctx context.Context, entry *store.LLMRequestLog) error
	LogGuardrailViolation(ctx context.Context, entry *store.GuardrailLog) error
	ConversationContext(ctx context.Context, recipient string, max int) ([]store.ContextMessage, error)
	Contact(ctx context.Context, recipient string) (*store.Contact, error)
}

var _ Store = (*store.Store)(nil)

// Config controls the fallback chain.
type Config struct {
	// AIEnabled gates the provider call; with it off the chain starts at
	// the rules engine.
	AIEnabled bool `yaml:"ai_enabled"`

	// FallbackToRules absorbs provider errors and continues down the chain.
	// With it off, Respond returns the provider error.
	FallbackToRules bool `yaml:"fallback_to_rules"`

	// MaxContextMessages bounds the conversation history in the prompt.
	MaxContextMessages int `yaml:"max_context_messages"`

	// Personality and AgentRules are the two instruction blocks that open
	// the system prompt. Defaults are applied when blank.
	Personality string `yaml:"personality,omitempty"`
	AgentRules  string `yaml:"agent_rules,omitempty"`
}

// DefaultConfig enables AI with rule fallback and a ten-message context.
func DefaultConfig() Config {
	return Config{
		AIEnabled:          true,
		FallbackToRules:    true,
		MaxContextMessages: 10,
	}
}

// DefaultPersonality is used when no personality file is configured.
const DefaultPersonality = `You are a friendly and helpful SMS assistant. Your responses should be:
- Concise and to the point (under 300 characters)
- Friendly and conversational
- Helpful and informative
- Professional but approachable

Avoid:
- Long explanations
- Unnecessary details
- Technical jargon
- Sensitive personal information`

// DefaultAgentRules is used when no agent-rules file is configured.
const DefaultAgentRules = `As an SMS assistant, you must:
1. Never share personal information about yourself or others
2. Never generate harmful or inappropriate content
3. Keep responses under 300 characters for SMS compatibility
4. Be helpful while maintaining appropriate boundaries
5. Decline requests that could be harmful or illegal
6. If unsure about a request, respond with a polite clarification request`
