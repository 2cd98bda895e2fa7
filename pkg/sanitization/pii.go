package sanitization

import (
	"regexp"
	"strings"
)

// PIIType classifies a detected span of personally identifiable information.
type PIIType string

const (
	PIITypePhone      PIIType = "phone_number"
	PIITypeEmail      PIIType = "email"
	PIITypeURL        PIIType = "url"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeSSN        PIIType = "ssn"
	PIITypeAddress    PIIType = "street_address"
	PIITypeIPAddress  PIIType = "ip_address"
	PIITypeCredential PIIType = "credential"
)

// PIIPattern defines a regex-based detection rule for one PII category.
//
// MaskingFunc is used by Mask to keep partial context (last four digits,
// email domain); Redact ignores it and always substitutes the redaction token.
type PIIPattern struct {
	Pattern     *regexp.Regexp
	MaskingFunc func(match string) string
	Type        PIIType
}

// Finding is one detected PII span. Value carries the raw matched text for
// redaction bookkeeping; log only the Type.
type Finding struct {
	Type  PIIType `json:"type"`
	Value string  `json:"-"`
	Start int     `json:"start"`
	End   int     `json:"end"`
}

// DefaultPIIPatterns covers the categories an SMS reply is likely to leak.
// Order matters: broader digit patterns (cards) run after phone numbers so
// findings report the most specific category first.
var DefaultPIIPatterns = []PIIPattern{
	{
		Type:        PIITypePhone,
		Pattern:     regexp.MustCompile(`\+?1?[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`),
		MaskingFunc: MaskPhone,
	},
	{
		Type:        PIITypePhone,
		Pattern:     regexp.MustCompile(`\+\d{1,3}[-.\s]?\d{4,14}`),
		MaskingFunc: MaskPhone,
	},
	{
		Type:        PIITypeEmail,
		Pattern:     regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`),
		MaskingFunc: maskEmail,
	},
	{
		Type:        PIITypeURL,
		Pattern:     regexp.MustCompile(`https?://[^\s<>"]+|www\.[^\s<>"]+`),
		MaskingFunc: maskCompletely,
	},
	{
		Type:        PIITypeCreditCard,
		Pattern:     regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`),
		MaskingFunc: maskCardNumberString,
	},
	{
		Type:        PIITypeCreditCard,
		Pattern:     regexp.MustCompile(`\b\d{13,19}\b`),
		MaskingFunc: maskCardNumberString,
	},
	{
		Type:        PIITypeSSN,
		Pattern:     regexp.MustCompile(`\b\d{3}[-\s]?\d{2}[-\s]?\d{4}\b`),
		MaskingFunc: maskCompletely,
	},
	{
		Type:        PIITypeAddress,
		Pattern:     regexp.MustCompile(`(?i)\b\d{1,5}\s+\w+(?:\s+\w+)?\s+(?:street|st|avenue|ave|road|rd|boulevard|blvd|drive|dr|lane|ln|court|ct|way|place|pl)\b`),
		MaskingFunc: maskCompletely,
	},
	{
		Type:        PIITypeIPAddress,
		Pattern:     regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		MaskingFunc: maskCompletely,
	},
}

// UnsafePatterns flags credential-shaped assignments that should never be
// spoken back to a recipient.
var UnsafePatterns = []PIIPattern{
	{Type: PIITypeCredential, Pattern: regexp.MustCompile(`(?i)\bpassword\s*[:=]\s*\S+`), MaskingFunc: maskCompletely},
	{Type: PIITypeCredential, Pattern: regexp.MustCompile(`(?i)\bapi[_-]?key\s*[:=]\s*\S+`), MaskingFunc: maskCompletely},
	{Type: PIITypeCredential, Pattern: regexp.MustCompile(`(?i)\bsecret\s*[:=]\s*\S+`), MaskingFunc: maskCompletely},
	{Type: PIITypeCredential, Pattern: regexp.MustCompile(`(?i)\btoken\s*[:=]\s*\S+`), MaskingFunc: maskCompletely},
}

// Detector scans free text for PII spans. The zero-argument constructor uses
// DefaultPIIPatterns; compiled patterns are shared and safe for concurrent use.
type Detector struct {
	patterns []PIIPattern
}

func NewDetector(patterns ...PIIPattern) *Detector {
	if len(patterns) == 0 {
		patterns = DefaultPIIPatterns
	}
	return &Detector{patterns: append([]PIIPattern(nil), patterns...)}
}

// Detect returns every PII span in text, in pattern order.
func (d *Detector) Detect(text string) []Finding {
	if d == nil || text == "" {
		return nil
	}

	var findings []Finding
	for _, p := range d.patterns {
		for _, loc := range p.Pattern.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Type:  p.Type,
				Value: text[loc[0]:loc[1]],
				Start: loc[0],
				End:   loc[1],
			})
		}
	}
	return findings
}

// Redact replaces every occurrence of every pattern with the redaction token.
func (d *Detector) Redact(text string) string {
	if d == nil || text == "" {
		return text
	}
	out := text
	for _, p := range d.patterns {
		out = p.Pattern.ReplaceAllString(out, redactedValue)
	}
	return out
}

// Mask rewrites PII keeping partial context per category (phone last four,
// email domain, card BIN + last four). Used for log-bound text where full
// redaction would destroy debuggability.
func (d *Detector) Mask(text string) string {
	if d == nil || text == "" {
		return text
	}
	out := text
	for _, p := range d.patterns {
		fn := p.MaskingFunc
		if fn == nil {
			fn = maskCompletely
		}
		out = p.Pattern.ReplaceAllStringFunc(out, fn)
	}
	return out
}

// UnsafeContent reports credential-shaped assignments in text.
func (d *Detector) UnsafeContent(text string) []Finding {
	if text == "" {
		return nil
	}

	var findings []Finding
	for _, p := range UnsafePatterns {
		for _, loc := range p.Pattern.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Type:  p.Type,
				Value: text[loc[0]:loc[1]],
				Start: loc[0],
				End:   loc[1],
			})
		}
	}
	return findings
}

func maskCompletely(_ string) string {
	return redactedValue
}

func maskEmail(match string) string {
	at := strings.Index(match, "@")
	if at <= 0 {
		return redactedValue
	}
	return match[:1] + "***" + match[at:]
}
