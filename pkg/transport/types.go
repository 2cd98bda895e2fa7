// Package transport moves SMS in and out of the system. The Termux bridge
// covers on-device operation; the SNS sender and SQS receiver cover the AWS
// two-way-SMS pipeline. Everything behind the Sender/Receiver interfaces so
// the relay does not care which path is wired.
package transport

import (
	"context"
	"fmt"
	"time"
)

// InboundMessage is one received SMS, transport-agnostic.
type InboundMessage struct {
	// ID is the transport's own identifier for the message, used for dedup.
	ID         string    `json:"id"`
	From       string    `json:"from"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

// Sender delivers one outbound SMS.
type Sender interface {
	SendMessage(ctx context.Context, recipient, text string) error
}

// Receiver polls for new inbound SMS.
type Receiver interface {
	Poll(ctx context.Context) ([]InboundMessage, error)
}

// Error wraps a transport failure with the transport's name.
type Error struct {
	Transport string
	Op        string
	Cause     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Transport, e.Op, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func wrapErr(transport, op string, cause error) *Error {
	return &Error{Transport: transport, Op: op, Cause: cause}
}
