// Package guardrail enforces length and content-safety policy on candidate
// responses before they are transmitted.
package guardrail

import "math/rand"

// ViolationType names what a check found.
type ViolationType string

const (
	ViolationLengthExceeded ViolationType = "length_exceeded"
	ViolationPhoneNumber    ViolationType = "phone_number"
	ViolationEmail          ViolationType = "email"
	ViolationURL            ViolationType = "url"
	ViolationCreditCard     ViolationType = "credit_card"
	ViolationSSN            ViolationType = "ssn"
	ViolationProfanity      ViolationType = "profanity"
	ViolationCustom         ViolationType = "custom"
	ViolationPII            ViolationType = "pii"
)

// ActionType names how a violation was (or should be) handled. The built-in
// checks only ever truncate or redact; a block action is what flips a result
// to failed.
type ActionType string

const (
	ActionBlock    ActionType = "block"
	ActionRedact   ActionType = "redact"
	ActionModify   ActionType = "modify"
	ActionWarn     ActionType = "warn"
	ActionTruncate ActionType = "truncate"
)

// Violation records one finding from the validation pipeline.
type Violation struct {
	Type   ViolationType `json:"type"`
	Detail string        `json:"detail,omitempty"`
	Action ActionType    `json:"action"`
}

// Result is the outcome of validating one candidate response.
//
// Passed stays true for truncations and redactions; the pipeline prefers
// producing some safe text over refusing outright. Only a violation carrying
// ActionBlock fails the result, and SafeResponse is well-formed even then.
type Result struct {
	Passed     bool        `json:"passed"`
	Original   string      `json:"original"`
	Modified   string      `json:"modified"`
	Violations []Violation `json:"violations,omitempty"`
	Actions    []string    `json:"actions,omitempty"`
}

// SafeResponse returns the text that is safe to transmit.
func (r *Result) SafeResponse() string {
	if r.Modified != "" {
		return r.Modified
	}
	return r.Original
}

// WasModified reports whether validation changed the text.
func (r *Result) WasModified() bool {
	return r.Modified != "" && r.Modified != r.Original
}

// Config holds the validator policy. Every block flag is independent.
type Config struct {
	// MaxLength caps the response in characters (SMS budget).
	MaxLength int `yaml:"max_length" json:"max_length"`

	BlockPhoneNumbers bool `yaml:"block_phone_numbers" json:"block_phone_numbers"`
	BlockEmails       bool `yaml:"block_emails" json:"block_emails"`
	BlockURLs         bool `yaml:"block_urls" json:"block_urls"`
	BlockCreditCards  bool `yaml:"block_credit_cards" json:"block_credit_cards"`
	BlockSSN          bool `yaml:"block_ssn" json:"block_ssn"`
	BlockProfanity    bool `yaml:"block_profanity" json:"block_profanity"`

	// CustomPatterns are additional case-insensitive regexes to redact.
	CustomPatterns []string `yaml:"custom_patterns,omitempty" json:"custom_patterns,omitempty"`
}

// DefaultConfig blocks everything except URLs at the standard SMS budget.
func DefaultConfig() Config {
	return Config{
		MaxLength:         300,
		BlockPhoneNumbers: true,
		BlockEmails:       true,
		BlockURLs:         false,
		BlockCreditCards:  true,
		BlockSSN:          true,
		BlockProfanity:    true,
	}
}

// BlockFlags is the per-category toggle section of Status.
type BlockFlags struct {
	PhoneNumbers bool `json:"phone_numbers"`
	Emails       bool `json:"emails"`
	URLs         bool `json:"urls"`
	CreditCards  bool `json:"credit_cards"`
	SSN          bool `json:"ssn"`
	Profanity    bool `json:"profanity"`
}

// Status is a point-in-time view of the validator configuration.
type Status struct {
	MaxLength           int        `json:"max_length"`
	Blocks              BlockFlags `json:"blocks"`
	CustomPatternsCount int        `json:"custom_patterns_count"`
}

// Randomizer supplies the draw behind FallbackResponse.
type Randomizer interface {
	Intn(n int) int
}

type globalRandomizer struct{}

func (globalRandomizer) Intn(n int) int {
	return rand.Intn(n)
}
