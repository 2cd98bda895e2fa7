package llm

import (
	"errors"
	"fmt"
)

// ErrorType classifies provider failures so the responder can decide whether
// to fall back to rules or surface the error.
type ErrorType string

const (
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeRateLimited   ErrorType = "rate_limited"
	ErrorTypeMalformed     ErrorType = "malformed_response"
	ErrorTypeInvalidConfig ErrorType = "invalid_config"
)

// Error represents a provider failure.
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

// NewError creates a new provider error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// WrapError wraps an existing error with provider context.
func WrapError(errorType ErrorType, message string, cause error) *Error {
	return &Error{Type: errorType, Message: message, Cause: cause}
}

// IsProviderError reports whether err is (or wraps) a provider Error, and
// returns it when so.
func IsProviderError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
