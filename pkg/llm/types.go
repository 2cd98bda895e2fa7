// Package llm defines the provider abstraction for chat-completion backends
// and ships three implementations: OpenRouter and Groq (hosted, OpenAI-style
// APIs) and Ollama (local runtime). Providers are created through an explicit
// Registry constructed by the caller; there is no package-level registration.
package llm

import (
	"context"
	"time"
)

// Chat message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a conversation in OpenAI chat format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response carries the generated text plus generation metadata.
type Response struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	LatencyMs        int64  `json:"latency_ms"`
	FinishReason     string `json:"finish_reason"`
}

// TokensUsed is the total token cost of the exchange.
func (r *Response) TokensUsed() int {
	return r.PromptTokens + r.CompletionTokens
}

// IsComplete reports whether generation ended naturally.
func (r *Response) IsComplete() bool {
	return r.FinishReason == "stop"
}

// WasTruncated reports whether generation hit the token budget.
func (r *Response) WasTruncated() bool {
	return r.FinishReason == "length"
}

// Provider is the narrow surface the responder consumes. Chat performs one
// blocking completion call bounded by the configured timeout through ctx.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (*Response, error)
	IsAvailable(ctx context.Context) bool
	ListModels(ctx context.Context) ([]string, error)
	Name() string
}

// Config holds the parameters shared by every provider.
type Config struct {
	// Provider selects the registry builder: "openrouter", "groq", "ollama".
	Provider string `yaml:"provider"`

	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	APIBase string `yaml:"api_base"`

	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	TopP        float64       `yaml:"top_p"`
	Timeout     time.Duration `yaml:"timeout"`

	// OllamaHost overrides APIBase for the local runtime only.
	OllamaHost string `yaml:"ollama_host,omitempty"`
}

// DefaultConfig mirrors the generation defaults an SMS reply wants: short,
// slightly creative completions on a free-tier model.
func DefaultConfig() Config {
	return Config{
		Provider:    "openrouter",
		Model:       "meta-llama/llama-3.3-70b-instruct:free",
		Temperature: 0.7,
		MaxTokens:   150,
		TopP:        0.9,
		Timeout:     30 * time.Second,
	}
}

// Validate rejects out-of-range generation parameters at construction time.
func (c Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return NewError(ErrorTypeInvalidConfig, "temperature must be between 0 and 2")
	}
	if c.MaxTokens < 1 {
		return NewError(ErrorTypeInvalidConfig, "max_tokens must be at least 1")
	}
	if c.TopP <= 0 || c.TopP > 1 {
		return NewError(ErrorTypeInvalidConfig, "top_p must be in (0, 1]")
	}
	if c.Timeout < time.Second {
		return NewError(ErrorTypeInvalidConfig, "timeout must be at least one second")
	}
	return nil
}
