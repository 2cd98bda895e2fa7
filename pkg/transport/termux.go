package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/theory-cloud/replytheory/pkg/observability"
)

// termux-sms-list message types: 1 inbox, 2 sent.
const termuxTypeInbox = 1

// Commander runs one external command with stdin and returns its stdout.
// The default shells out through exec.CommandContext; tests substitute it.
type Commander func(ctx context.Context, stdin string, name string, args ...string) ([]byte, error)

func execCommander(ctx context.Context, stdin string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, err
	}
	return out, nil
}

// TermuxConfig configures the on-device bridge.
type TermuxConfig struct {
	// SendCommand and ListCommand name the termux-api binaries, overridable
	// for non-standard installs.
	SendCommand string `yaml:"send_command"`
	ListCommand string `yaml:"list_command"`

	// ListLimit bounds how many messages one poll asks the device for.
	ListLimit int `yaml:"list_limit"`

	// CommandTimeout bounds each shell invocation.
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// DefaultTermuxConfig uses the standard termux-api command names.
func DefaultTermuxConfig() TermuxConfig {
	return TermuxConfig{
		SendCommand:    "termux-sms-send",
		ListCommand:    "termux-sms-list",
		ListLimit:      25,
		CommandTimeout: 30 * time.Second,
	}
}

// TermuxBridge sends and receives SMS through the Termux:API shell commands
// on an Android device. It is both a Sender and a Receiver.
type TermuxBridge struct {
	cfg    TermuxConfig
	run    Commander
	logger observability.StructuredLogger
}

var (
	_ Sender   = (*TermuxBridge)(nil)
	_ Receiver = (*TermuxBridge)(nil)
)

// TermuxOption configures the bridge.
type TermuxOption func(*TermuxBridge)

// WithCommander substitutes the subprocess runner, for tests.
func WithCommander(run Commander) TermuxOption {
	return func(b *TermuxBridge) {
		if run != nil {
			b.run = run
		}
	}
}

// WithTermuxLogger sets the structured logger.
func WithTermuxLogger(logger observability.StructuredLogger) TermuxOption {
	return func(b *TermuxBridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewTermuxBridge builds the bridge. It does not probe the device; call
// Available for that.
func NewTermuxBridge(cfg TermuxConfig, opts ...TermuxOption) *TermuxBridge {
	if cfg.SendCommand == "" {
		cfg.SendCommand = "termux-sms-send"
	}
	if cfg.ListCommand == "" {
		cfg.ListCommand = "termux-sms-list"
	}
	if cfg.ListLimit < 1 {
		cfg.ListLimit = 25
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 30 * time.Second
	}
	b := &TermuxBridge{
		cfg:    cfg,
		run:    execCommander,
		logger: observability.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Available reports whether the list command answers on this device.
func (b *TermuxBridge) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()
	_, err := b.run(ctx, "", b.cfg.ListCommand, "-l", "1")
	return err == nil
}

// SendMessage delivers text to recipient via termux-sms-send. The message
// body goes through stdin so shell quoting cannot mangle it.
func (b *TermuxBridge) SendMessage(ctx context.Context, recipient, text string) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()

	if _, err := b.run(ctx, text, b.cfg.SendCommand, "-n", recipient); err != nil {
		return wrapErr("termux", "send", err)
	}
	b.logger.WithRecipient(recipient).Debug("sms sent", map[string]any{
		"length": len(text),
	})
	return nil
}

// termuxMessage is one row of termux-sms-list JSON output. Field names vary
// across termux-api versions, hence the alternates.
type termuxMessage struct {
	ID       json.Number `json:"_id"`
	ThreadID json.Number `json:"threadid"`
	Type     int         `json:"type"`
	Read     bool        `json:"read"`
	Number   string      `json:"number"`
	Address  string      `json:"address"`
	Body     string      `json:"body"`
	Text     string      `json:"text"`
	Received string      `json:"received"`
	Date     string      `json:"date"`
}

// Poll lists recent device messages and returns the inbox entries as
// InboundMessages, oldest first. Dedup against already-seen IDs is the
// relay's job; the device keeps no cursor.
func (b *TermuxBridge) Poll(ctx context.Context) ([]InboundMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.CommandTimeout)
	defer cancel()

	out, err := b.run(ctx, "", b.cfg.ListCommand, "-l", strconv.Itoa(b.cfg.ListLimit))
	if err != nil {
		return nil, wrapErr("termux", "list", err)
	}

	var rows []termuxMessage
	if err := json.Unmarshal(out, &rows); err != nil {
		return nil, wrapErr("termux", "parse list output", err)
	}

	inbound := make([]InboundMessage, 0, len(rows))
	for _, row := range rows {
		if row.Type != termuxTypeInbox {
			continue
		}
		from := row.Number
		if from == "" {
			from = row.Address
		}
		body := row.Body
		if body == "" {
			body = row.Text
		}
		if from == "" || body == "" {
			continue
		}
		inbound = append(inbound, InboundMessage{
			ID:         termuxMessageID(row),
			From:       from,
			Body:       body,
			ReceivedAt: parseTermuxTime(row.Received, row.Date),
		})
	}
	return inbound, nil
}

// termuxMessageID prefers the device row id; without one it falls back to a
// composite that is stable for the same message across polls.
func termuxMessageID(row termuxMessage) string {
	if row.ID.String() != "" {
		return "termux-" + row.ID.String()
	}
	ts := row.Received
	if ts == "" {
		ts = row.Date
	}
	from := row.Number
	if from == "" {
		from = row.Address
	}
	return fmt.Sprintf("termux-%s-%s-%d", from, ts, len(row.Body)+len(row.Text))
}

// parseTermuxTime handles both the human format ("2026-02-01 14:30:00") and
// epoch milliseconds, falling back to now.
func parseTermuxTime(received, date string) time.Time {
	raw := received
	if raw == "" {
		raw = date
	}
	if raw == "" {
		return time.Now()
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", raw, time.Local); err == nil {
		return ts
	}
	if millis, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(millis)
	}
	return time.Now()
}
