package guardrail

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/theory-cloud/replytheory/pkg/observability"
	"github.com/theory-cloud/replytheory/pkg/sanitization"
)

const (
	redactedToken  = "[REDACTED]"
	profanityToken = "****"
	ellipsis       = "..."
)

// fallbackResponses are the canned replies used when no better response can
// be produced. They contain nothing any check could flag.
var fallbackResponses = []string{
	"I received your message but cannot provide a specific response right now.",
	"Thanks for reaching out! I'll get back to you soon.",
	"Message received. I'll respond when available.",
	"Thanks for your message! I'm currently unavailable.",
}

// categoryPatterns are the built-in detection sets, one per toggleable
// category. On a category's first hit every pattern in the set is redacted.
var categoryPatterns = map[ViolationType][]*regexp.Regexp{
	ViolationPhoneNumber: {
		regexp.MustCompile(`(?i)\+?1?[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
		regexp.MustCompile(`(?i)\+\d{1,3}[-.\s]?\d{4,14}`),
	},
	ViolationEmail: {
		regexp.MustCompile(`(?i)[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	},
	ViolationURL: {
		regexp.MustCompile(`(?i)https?://[^\s<>"]+|www\.[^\s<>"]+`),
	},
	ViolationCreditCard: {
		regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
		regexp.MustCompile(`\b\d{13,19}\b`),
	},
	ViolationSSN: {
		regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`),
	},
}

var profanityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(damn|hell|crap)\b`),
}

// PIIScanner widens detection beyond the built-in categories. It is the
// fifth pipeline stage and only runs when configured.
// *sanitization.Detector satisfies it.
type PIIScanner interface {
	Detect(text string) []sanitization.Finding
	Redact(text string) string
}

var _ PIIScanner = (*sanitization.Detector)(nil)

type customPattern struct {
	source string
	re     *regexp.Regexp
}

// Validator runs candidate responses through the safety pipeline: length
// truncation, category redaction, profanity masking, custom patterns, the
// optional PII scanner, and a final length re-check. Stages after the first
// operate on the output of earlier stages, so redactions compound.
//
// A validator is safe for concurrent use. The custom pattern list is
// replaced copy-on-write so in-flight validations keep a stable view.
type Validator struct {
	cfg     Config
	scanner PIIScanner
	rand    Randomizer
	logger  observability.StructuredLogger

	mu     sync.RWMutex
	custom []customPattern
}

// Option configures the validator.
type Option func(*Validator)

// WithScanner wires the delegated PII detection stage.
func WithScanner(scanner PIIScanner) Option {
	return func(v *Validator) {
		v.scanner = scanner
	}
}

// WithRandomizer supplies the source for fallback response selection.
func WithRandomizer(rand Randomizer) Option {
	return func(v *Validator) {
		if rand != nil {
			v.rand = rand
		}
	}
}

// WithLogger sets the logger for invalid custom pattern diagnostics.
func WithLogger(logger observability.StructuredLogger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// Validate rejects a zero or negative length budget eagerly.
func (c Config) Validate() error {
	if c.MaxLength < 1 {
		return fmt.Errorf("guardrail: max_length must be at least 1, got %d", c.MaxLength)
	}
	return nil
}

// NewValidator creates a validator for the given policy. Invalid custom
// patterns in the config are logged and skipped, matching runtime
// AddCustomPattern behavior.
func NewValidator(cfg Config, opts ...Option) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v := &Validator{
		cfg:    cfg,
		rand:   globalRandomizer{},
		logger: observability.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	for _, pattern := range cfg.CustomPatterns {
		if err := v.AddCustomPattern(pattern); err != nil {
			v.logger.Warn("invalid custom guardrail pattern skipped", map[string]any{
				"pattern": pattern,
				"error":   err.Error(),
			})
		}
	}
	return v, nil
}

// Validate runs the full pipeline over response and reports what was found
// and what the text became. The result always carries transmittable text:
// redactions and truncations do not fail it, only a block-action violation
// would.
func (v *Validator) Validate(response string) *Result {
	result := &Result{
		Passed:   true,
		Original: response,
		Modified: response,
	}

	if exceedsLength(result.Modified, v.cfg.MaxLength) {
		result.Violations = append(result.Violations, Violation{
			Type:   ViolationLengthExceeded,
			Detail: fmt.Sprintf("length %d exceeds max %d", runeLen(result.Modified), v.cfg.MaxLength),
			Action: ActionTruncate,
		})
		result.Modified = truncate(result.Modified, v.cfg.MaxLength)
		result.Actions = append(result.Actions, "truncated")
	}

	for _, check := range v.categoryChecks() {
		if !check.enabled {
			continue
		}
		match := firstMatch(categoryPatterns[check.violation], result.Modified)
		if match == "" {
			continue
		}
		result.Violations = append(result.Violations, Violation{
			Type:   check.violation,
			Detail: match,
			Action: ActionRedact,
		})
		result.Modified = redactAll(categoryPatterns[check.violation], result.Modified, redactedToken)
		result.Actions = append(result.Actions, "redacted_"+string(check.violation))
	}

	if v.cfg.BlockProfanity {
		if match := firstMatch(profanityPatterns, result.Modified); match != "" {
			result.Violations = append(result.Violations, Violation{
				Type:   ViolationProfanity,
				Detail: match,
				Action: ActionRedact,
			})
			result.Modified = redactAll(profanityPatterns, result.Modified, profanityToken)
			result.Actions = append(result.Actions, "redacted_profanity")
		}
	}

	if custom := v.customSnapshot(); len(custom) > 0 {
		if match := firstCustomMatch(custom, result.Modified); match != "" {
			result.Violations = append(result.Violations, Violation{
				Type:   ViolationCustom,
				Detail: match,
				Action: ActionRedact,
			})
			for _, cp := range custom {
				result.Modified = cp.re.ReplaceAllString(result.Modified, redactedToken)
			}
			result.Actions = append(result.Actions, "redacted_custom")
		}
	}

	if v.scanner != nil {
		if findings := v.scanner.Detect(result.Modified); len(findings) > 0 {
			result.Violations = append(result.Violations, Violation{
				Type:   ViolationPII,
				Detail: fmt.Sprintf("%d finding(s): %s", len(findings), findingTypes(findings)),
				Action: ActionRedact,
			})
			result.Modified = v.scanner.Redact(result.Modified)
			result.Actions = append(result.Actions, "redacted_pii")
		}
	}

	for _, violation := range result.Violations {
		if violation.Action == ActionBlock {
			result.Passed = false
			break
		}
	}

	// Redaction tokens can be longer than what they replaced.
	if exceedsLength(result.Modified, v.cfg.MaxLength) {
		result.Modified = truncate(result.Modified, v.cfg.MaxLength)
		result.Actions = append(result.Actions, "final_truncated")
	}

	return result
}

type categoryCheck struct {
	violation ViolationType
	enabled   bool
}

// categoryChecks fixes the evaluation order of the toggleable categories.
func (v *Validator) categoryChecks() []categoryCheck {
	return []categoryCheck{
		{ViolationPhoneNumber, v.cfg.BlockPhoneNumbers},
		{ViolationEmail, v.cfg.BlockEmails},
		{ViolationURL, v.cfg.BlockURLs},
		{ViolationCreditCard, v.cfg.BlockCreditCards},
		{ViolationSSN, v.cfg.BlockSSN},
	}
}

// AddCustomPattern registers an additional case-insensitive redaction
// pattern, effective for validations that start after it returns.
func (v *Validator) AddCustomPattern(pattern string) error {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return fmt.Errorf("guardrail: invalid custom pattern %q: %w", pattern, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	next := make([]customPattern, len(v.custom), len(v.custom)+1)
	copy(next, v.custom)
	v.custom = append(next, customPattern{source: pattern, re: re})
	return nil
}

// RemoveCustomPattern drops the pattern registered under the given source
// string, reporting whether it was present.
func (v *Validator) RemoveCustomPattern(pattern string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, cp := range v.custom {
		if cp.source == pattern {
			next := make([]customPattern, 0, len(v.custom)-1)
			next = append(next, v.custom[:i]...)
			next = append(next, v.custom[i+1:]...)
			v.custom = next
			return true
		}
	}
	return false
}

// FallbackResponse returns one of the generic canned replies at random.
func (v *Validator) FallbackResponse() string {
	return fallbackResponses[v.rand.Intn(len(fallbackResponses))]
}

// Status reports the active policy.
func (v *Validator) Status() Status {
	v.mu.RLock()
	customCount := len(v.custom)
	v.mu.RUnlock()

	return Status{
		MaxLength: v.cfg.MaxLength,
		Blocks: BlockFlags{
			PhoneNumbers: v.cfg.BlockPhoneNumbers,
			Emails:       v.cfg.BlockEmails,
			URLs:         v.cfg.BlockURLs,
			CreditCards:  v.cfg.BlockCreditCards,
			SSN:          v.cfg.BlockSSN,
			Profanity:    v.cfg.BlockProfanity,
		},
		CustomPatternsCount: customCount,
	}
}

// MaxLength returns the configured length budget.
func (v *Validator) MaxLength() int {
	return v.cfg.MaxLength
}

func (v *Validator) customSnapshot() []customPattern {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.custom
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if match := re.FindString(text); match != "" {
			return match
		}
	}
	return ""
}

func firstCustomMatch(patterns []customPattern, text string) string {
	for _, cp := range patterns {
		if match := cp.re.FindString(text); match != "" {
			return match
		}
	}
	return ""
}

func redactAll(patterns []*regexp.Regexp, text, token string) string {
	for _, re := range patterns {
		text = re.ReplaceAllString(text, token)
	}
	return text
}

func findingTypes(findings []sanitization.Finding) string {
	seen := make(map[sanitization.PIIType]bool)
	var out string
	for _, f := range findings {
		if seen[f.Type] {
			continue
		}
		seen[f.Type] = true
		if out != "" {
			out += ","
		}
		out += string(f.Type)
	}
	return out
}

// Length accounting is in runes so multi-byte text is budgeted the way a
// phone counts characters.
func runeLen(text string) int {
	return len([]rune(text))
}

func exceedsLength(text string, max int) bool {
	return runeLen(text) > max
}

// truncate cuts text to at most max runes. It reserves room for the
// ellipsis marker and prefers the last space past half the budget; with no
// such boundary, or no room for the marker at all, it hard-cuts.
func truncate(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if max <= len(ellipsis) {
		return string(runes[:max])
	}

	cut := runes[:max-len(ellipsis)]
	if idx := lastSpace(cut); idx > max/2 {
		cut = cut[:idx]
	}
	return string(cut) + ellipsis
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == ' ' {
			return i
		}
	}
	return -1
}
