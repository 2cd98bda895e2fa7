// Package templates renders response templates against a variable context.
//
// Placeholders come in five forms, processed in a fixed order:
//
//	{name}                   value from the context
//	{name:default}           value from the context, or the default
//	{name:%H:%M}             strftime-formatted timestamp
//	{random:a|b|c}           uniform choice among the options
//	{if:name}yes{else}no{endif}  conditional on context truthiness
//
// Built-in variables ({date}, {time}, {datetime}, {year}, {month}, {day},
// {weekday}, {hour}, {minute}) are substituted last from the current
// wall-clock time. Context entries shadow built-ins because the simple pass
// runs first. Placeholders that resolve to nothing are left verbatim.
package templates

import (
	"math/rand"
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

// Randomizer supplies the draws behind {random:...} placeholders.
// *math/rand.Rand satisfies it.
type Randomizer interface {
	Intn(n int) int
}

// globalRandomizer delegates to the locked package-level source, which is
// safe for concurrent renders.
type globalRandomizer struct{}

func (globalRandomizer) Intn(n int) int {
	return rand.Intn(n)
}

// Template is a named piece of renderable content.
type Template struct {
	Name    string `yaml:"name" json:"name"`
	Content string `yaml:"content" json:"content"`
}
