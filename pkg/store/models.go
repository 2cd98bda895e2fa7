// Package store persists messages, contacts, and audit logs in SQLite via
// GORM, and serves conversation context to the responder.
package store

import "time"

// Message directions.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Message is one SMS in either direction.
type Message struct {
	ID          uint      `gorm:"primaryKey"`
	RequestID   string    `gorm:"index"`
	PhoneNumber string    `gorm:"index;not null"`
	Direction   string    `gorm:"index;not null"`
	Body        string    `gorm:"not null"`
	// Source is ai, rules, fallback, or manual; empty for incoming messages.
	Source    string
	ExtID     string `gorm:"index"` // transport-assigned message id, for dedup
	CreatedAt time.Time
}

// Contact carries per-recipient personalization for the system prompt.
type Contact struct {
	ID           uint   `gorm:"primaryKey"`
	PhoneNumber  string `gorm:"uniqueIndex;not null"`
	Name         string
	Relation     string
	Age          int
	CustomPrompt string
	Notes        string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LLMRequestLog audits one provider call, successful or not.
type LLMRequestLog struct {
	ID           uint   `gorm:"primaryKey"`
	RequestID    string `gorm:"index"`
	Provider     string
	Model        string
	Prompt       string
	Response     string
	TokensUsed   int
	LatencyMs    int64
	Status       string `gorm:"index"` // success, incomplete, error
	ErrorMessage string
	CreatedAt    time.Time
}

// GuardrailLog audits one guardrail intervention.
type GuardrailLog struct {
	ID               uint   `gorm:"primaryKey"`
	RequestID        string `gorm:"index"`
	PhoneNumber      string `gorm:"index"`
	OriginalResponse string
	ViolationType    string
	ActionTaken      string
	FinalResponse    string
	CreatedAt        time.Time
}

// ContextMessage is one turn of conversation history, oldest first.
type ContextMessage struct {
	Direction string
	Body      string
}
