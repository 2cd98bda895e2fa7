// Package rules matches incoming messages against a priority-ordered rule
// set and renders templated responses, independent of any AI provider.
package rules

import (
	"math/rand"
	"regexp"
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

// Randomizer supplies the draw behind response selection.
type Randomizer interface {
	Intn(n int) int
}

type globalRandomizer struct{}

func (globalRandomizer) Intn(n int) int {
	return rand.Intn(n)
}

// MatchType selects how a rule's patterns are compared to a message. All
// comparisons are case-insensitive.
type MatchType string

const (
	MatchExact       MatchType = "exact"
	MatchContains    MatchType = "contains"
	MatchStartsWith  MatchType = "startswith"
	MatchEndsWith    MatchType = "endswith"
	MatchRegex       MatchType = "regex"
	MatchKeywords    MatchType = "keywords"     // any keyword present
	MatchAllKeywords MatchType = "all_keywords" // every keyword present
)

// Conventional priority levels. Any integer works; higher evaluates first.
const (
	PriorityLowest  = 0
	PriorityLow     = 25
	PriorityNormal  = 50
	PriorityHigh    = 75
	PriorityHighest = 100
)

// Conditions gate a rule beyond its patterns. Zero value imposes nothing.
type Conditions struct {
	// TimeStart and TimeEnd bound the active time of day, "HH:MM" each.
	// The window does not wrap past midnight.
	TimeStart string `yaml:"time_start,omitempty" json:"time_start,omitempty"`
	TimeEnd   string `yaml:"time_end,omitempty" json:"time_end,omitempty"`

	// Days restricts activation to the named weekdays (case-insensitive).
	Days []string `yaml:"days,omitempty" json:"days,omitempty"`

	// AllowedSenders restricts activation to these sender numbers.
	AllowedSenders []string `yaml:"allowed_senders,omitempty" json:"allowed_senders,omitempty"`
}

func (c Conditions) empty() bool {
	return c.TimeStart == "" && c.TimeEnd == "" && len(c.Days) == 0 && len(c.AllowedSenders) == 0
}

// Rule pairs match patterns with candidate responses.
type Rule struct {
	Name       string     `yaml:"name" json:"name"`
	Patterns   []string   `yaml:"patterns" json:"patterns"`
	MatchType  MatchType  `yaml:"match_type" json:"match_type"`
	Responses  []string   `yaml:"responses" json:"responses"`
	Priority   int        `yaml:"priority" json:"priority"`
	Enabled    bool       `yaml:"enabled" json:"enabled"`
	Conditions Conditions `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	// Matcher, when set, admits messages that no pattern matched.
	Matcher func(message string) bool `yaml:"-" json:"-"`

	// compiled mirrors Patterns for regex rules; nil entries never match.
	compiled []*regexp.Regexp
}

// MatchContext carries the per-message inputs condition checks need.
type MatchContext struct {
	Sender string
}

// RuleMatch is the outcome of a rule matching one message. It references
// the live rule and is meant to be consumed immediately.
type RuleMatch struct {
	Rule       *Rule
	Message    string
	Groups     map[string]string
	Variables  map[string]any
	Confidence float64
}
