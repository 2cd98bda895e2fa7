// Package limited provides admission control for outbound SMS replies.
//
// A single limiter instance combines four independent constraints: a minimum
// inter-message interval per recipient, one global token bucket shared across
// all recipients, per-recipient hourly and daily sliding windows, and a
// per-recipient burst bucket. All constraints must pass for a send to be
// admitted.
package limited

import (
	"fmt"
	"time"
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

// Constraint names a specific admission check; denials carry the first one
// that failed.
type Constraint string

const (
	ConstraintNone        Constraint = ""
	ConstraintMinInterval Constraint = "min_interval"
	ConstraintGlobal      Constraint = "global"
	ConstraintHourly      Constraint = "hourly"
	ConstraintDaily       Constraint = "daily"
	ConstraintBurst       Constraint = "burst"
)

// Decision is the outcome of an admission check.
//
// Remaining takes the minimum across the global, hourly, and daily budgets.
// Because those refill at different rates it is a momentary estimate, not a
// promise of how many further sends will succeed — treat it as advisory.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
	Constraint Constraint    `json:"constraint,omitempty"`
}

// Status is a point-in-time snapshot of one recipient's budgets.
type Status struct {
	PhoneNumber     string `json:"phone_number"`
	GlobalRemaining int    `json:"global_remaining"`
	HourlyCount     int    `json:"hourly_count"`
	HourlyLimit     int    `json:"hourly_limit"`
	DailyCount      int    `json:"daily_count"`
	DailyLimit      int    `json:"daily_limit"`
	BurstTokens     int    `json:"burst_tokens"`
	BurstLimit      int    `json:"burst_limit"`
}

// Config holds the limiter thresholds.
type Config struct {
	// MaxPerMinute caps outbound messages across all recipients. The global
	// bucket refills continuously at MaxPerMinute/60 tokens per second.
	MaxPerMinute int `yaml:"max_per_minute"`

	// MaxPerHour and MaxPerDay cap messages to a single recipient.
	MaxPerHour int `yaml:"max_per_hour"`
	MaxPerDay  int `yaml:"max_per_day"`

	// MinInterval is the shortest allowed gap between two messages to the
	// same recipient. Zero disables the check.
	MinInterval time.Duration `yaml:"min_interval"`

	// BurstAllowance and BurstWindow shape the per-recipient burst bucket:
	// capacity BurstAllowance, refilling over BurstWindow.
	BurstAllowance int           `yaml:"burst_allowance"`
	BurstWindow    time.Duration `yaml:"burst_window"`
}

// DefaultConfig returns conservative device-agent thresholds.
func DefaultConfig() Config {
	return Config{
		MaxPerMinute:   10,
		MaxPerHour:     5,
		MaxPerDay:      20,
		MinInterval:    5 * time.Second,
		BurstAllowance: 3,
		BurstWindow:    time.Minute,
	}
}

// Validate rejects non-positive limits eagerly, at construction time.
func (c Config) Validate() error {
	if c.MaxPerMinute < 1 {
		return NewError(ErrorTypeInvalidConfig, "max_per_minute must be at least 1")
	}
	if c.MaxPerHour < 1 {
		return NewError(ErrorTypeInvalidConfig, "max_per_hour must be at least 1")
	}
	if c.MaxPerDay < 1 {
		return NewError(ErrorTypeInvalidConfig, "max_per_day must be at least 1")
	}
	if c.MinInterval < 0 {
		return NewError(ErrorTypeInvalidConfig, "min_interval cannot be negative")
	}
	if c.BurstAllowance < 1 {
		return NewError(ErrorTypeInvalidConfig, "burst_allowance must be at least 1")
	}
	if c.BurstWindow <= 0 {
		return NewError(ErrorTypeInvalidConfig, "burst_window must be positive")
	}
	return nil
}

// Error types for rate limiting operations.
type ErrorType string

const (
	ErrorTypeInternal      ErrorType = "internal_error"
	ErrorTypeInvalidConfig ErrorType = "invalid_config"
)

// Error represents a rate limiting error.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new rate limiting error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// WrapError wraps an existing error with rate limiting context.
func WrapError(errorType ErrorType, message string, cause error) *Error {
	return &Error{Type: errorType, Message: message, Cause: cause}
}
