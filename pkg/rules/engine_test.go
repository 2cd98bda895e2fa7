package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/replytheory/pkg/templates"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type fixedPick struct {
	pick int
}

func (f fixedPick) Intn(n int) int { return f.pick % n }

// Thursday, mid-morning.
var testNow = time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)

func newTestEngine(opts ...Option) *Engine {
	base := []Option{WithClock(fixedClock{now: testNow}), WithRandomizer(fixedPick{pick: 0})}
	return NewEngine(nil, append(base, opts...)...)
}

func TestEngine_Match_MatchTypes(t *testing.T) {
	tests := []struct {
		name      string
		matchType MatchType
		pattern   string
		message   string
		matches   bool
	}{
		{"exact hit", MatchExact, "hello", "hello", true},
		{"exact is case-insensitive", MatchExact, "hello", "HELLO", true},
		{"exact rejects superstring", MatchExact, "hello", "hello world", false},
		{"contains hit", MatchContains, "hello", "say hello please", true},
		{"contains miss", MatchContains, "hello", "goodbye", false},
		{"startswith hit", MatchStartsWith, "order", "Order 42 please", true},
		{"startswith miss", MatchStartsWith, "order", "my order", false},
		{"endswith hit", MatchEndsWith, "now", "do it NOW", true},
		{"endswith miss", MatchEndsWith, "now", "now then", false},
		{"regex hit", MatchRegex, `\d{3}-\d{4}`, "Call 555-1234 now", true},
		{"regex miss", MatchRegex, `\d{3}-\d{4}`, "no digits here", false},
		{"keywords any hit", MatchKeywords, "help support assist", "I need help", true},
		{"keywords any second", MatchKeywords, "help support assist", "support team", true},
		{"keywords miss", MatchKeywords, "help support assist", "nothing here", false},
		{"all keywords hit", MatchAllKeywords, "order status", "status of my order", true},
		{"all keywords partial", MatchAllKeywords, "order status", "my order", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine()
			engine.AddRule(&Rule{
				Name:      "probe",
				Patterns:  []string{tt.pattern},
				MatchType: tt.matchType,
				Responses: []string{"ok"},
				Priority:  PriorityNormal,
				Enabled:   true,
			})

			match := engine.Match(tt.message, MatchContext{})
			if tt.matches {
				require.NotNil(t, match)
				require.Equal(t, "probe", match.Rule.Name)
				require.Equal(t, tt.message, match.Message)
			} else {
				require.Nil(t, match)
			}
		})
	}
}

func TestEngine_Match_RegexCapturesNamedGroups(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{
		Name:      "reminder",
		Patterns:  []string{`remind me to (?P<task>.+)`},
		MatchType: MatchRegex,
		Responses: []string{"Will do: {task}"},
		Priority:  PriorityNormal,
		Enabled:   true,
	})

	match := engine.Match("Remind me to buy milk", MatchContext{})
	require.NotNil(t, match)
	require.Equal(t, "buy milk", match.Groups["task"])
	require.Equal(t, "Will do: buy milk", engine.RenderResponse(match))
}

func TestEngine_Match_DisabledRuleSkipped(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{
		Name:      "off",
		Patterns:  []string{"hello"},
		Responses: []string{"Hi!"},
		Enabled:   false,
	})

	require.Nil(t, engine.Match("hello", MatchContext{}))

	require.True(t, engine.EnableRule("off"))
	require.NotNil(t, engine.Match("hello", MatchContext{}))

	require.True(t, engine.DisableRule("off"))
	require.Nil(t, engine.Match("hello", MatchContext{}))

	require.False(t, engine.EnableRule("missing"))
}

func TestEngine_Match_PriorityOrder(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{Name: "low", Patterns: []string{"test"}, Responses: []string{"Low"}, Priority: 10, Enabled: true})
	engine.AddRule(&Rule{Name: "high", Patterns: []string{"test"}, Responses: []string{"High"}, Priority: 90, Enabled: true})

	match := engine.Match("test", MatchContext{})
	require.NotNil(t, match)
	require.Equal(t, "high", match.Rule.Name)
}

func TestEngine_Match_EqualPriorityKeepsInsertionOrder(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{Name: "first", Patterns: []string{"test"}, Responses: []string{"a"}, Priority: 50, Enabled: true})
	engine.AddRule(&Rule{Name: "second", Patterns: []string{"test"}, Responses: []string{"b"}, Priority: 50, Enabled: true})

	match := engine.Match("test", MatchContext{})
	require.NotNil(t, match)
	require.Equal(t, "first", match.Rule.Name)
}

func TestEngine_MatchAll_CollectsInPriorityOrder(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{Name: "one", Patterns: []string{"test"}, Responses: []string{"1"}, Priority: 10, Enabled: true})
	engine.AddRule(&Rule{Name: "two", Patterns: []string{"test"}, Responses: []string{"2"}, Priority: 90, Enabled: true})
	engine.AddRule(&Rule{Name: "miss", Patterns: []string{"other"}, Responses: []string{"3"}, Priority: 50, Enabled: true})

	matches := engine.MatchAll("test", MatchContext{})
	require.Len(t, matches, 2)
	require.Equal(t, "two", matches[0].Rule.Name)
	require.Equal(t, "one", matches[1].Rule.Name)
}

func TestEngine_Conditions_TimeWindow(t *testing.T) {
	rule := &Rule{
		Name:      "office",
		Patterns:  []string{"hello"},
		Responses: []string{"Hi!"},
		Enabled:   true,
		Priority:  PriorityNormal,
		Conditions: Conditions{
			TimeStart: "09:00",
			TimeEnd:   "17:00",
		},
	}

	inside := NewEngine(nil, WithClock(fixedClock{now: testNow})) // 10:00
	inside.AddRule(rule)
	require.NotNil(t, inside.Match("hello", MatchContext{}))

	early := NewEngine(nil, WithClock(fixedClock{now: time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)}))
	early.AddRule(rule)
	require.Nil(t, early.Match("hello", MatchContext{}))

	late := NewEngine(nil, WithClock(fixedClock{now: time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC)}))
	late.AddRule(rule)
	require.Nil(t, late.Match("hello", MatchContext{}))
}

func TestEngine_Conditions_Days(t *testing.T) {
	engine := newTestEngine() // Thursday
	engine.AddRule(&Rule{
		Name:       "weekday",
		Patterns:   []string{"hello"},
		Responses:  []string{"Hi!"},
		Enabled:    true,
		Conditions: Conditions{Days: []string{"Thursday"}},
	})
	engine.AddRule(&Rule{
		Name:       "weekend",
		Patterns:   []string{"weekend"},
		Responses:  []string{"Hi!"},
		Enabled:    true,
		Conditions: Conditions{Days: []string{"saturday", "sunday"}},
	})

	require.NotNil(t, engine.Match("hello", MatchContext{}))
	require.Nil(t, engine.Match("weekend", MatchContext{}))
}

func TestEngine_Conditions_AllowedSenders(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{
		Name:       "private",
		Patterns:   []string{"secret"},
		Responses:  []string{"ack"},
		Enabled:    true,
		Conditions: Conditions{AllowedSenders: []string{"+15551234567"}},
	})

	require.NotNil(t, engine.Match("secret", MatchContext{Sender: "+15551234567"}))
	require.Nil(t, engine.Match("secret", MatchContext{Sender: "+15559999999"}))
	require.Nil(t, engine.Match("secret", MatchContext{}))
}

func TestEngine_CustomMatcher(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{
		Name:      "long",
		Responses: []string{"that was long"},
		Enabled:   true,
		Matcher:   func(message string) bool { return len(message) > 20 },
	})

	require.NotNil(t, engine.Match("this message is definitely long enough", MatchContext{}))
	require.Nil(t, engine.Match("short", MatchContext{}))
}

func TestEngine_RenderResponse(t *testing.T) {
	renderer := templates.NewRenderer(
		templates.WithClock(fixedClock{now: testNow}),
		templates.WithRandomizer(fixedPick{pick: 1}),
	)
	engine := NewEngine(nil,
		WithClock(fixedClock{now: testNow}),
		WithRandomizer(fixedPick{pick: 1}),
		WithRenderer(renderer),
	)
	engine.AddRule(&Rule{
		Name:      "echo",
		Patterns:  []string{"ping"},
		Responses: []string{"first: {message}", "second: {message} on {date}"},
		Enabled:   true,
	})

	match := engine.Match("ping", MatchContext{})
	require.NotNil(t, match)
	require.Equal(t, "second: ping on 2026-03-05", engine.RenderResponse(match))
}

func TestEngine_RenderResponse_EmptyResponses(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{Name: "mute", Patterns: []string{"x"}, Enabled: true})

	match := engine.Match("x", MatchContext{})
	require.NotNil(t, match)
	require.Equal(t, "", engine.RenderResponse(match))
	require.Equal(t, "", engine.RenderResponse(nil))
}

func TestEngine_AddRemoveGet(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{Name: "test", Patterns: []string{"hello"}, Responses: []string{"Hi!"}, Enabled: true})

	require.Equal(t, 1, engine.Count())

	rule, ok := engine.GetRule("test")
	require.True(t, ok)
	require.Equal(t, "test", rule.Name)
	require.Equal(t, MatchContains, rule.MatchType) // defaulted on add

	require.True(t, engine.RemoveRule("test"))
	require.False(t, engine.RemoveRule("test"))
	require.Equal(t, 0, engine.Count())

	_, ok = engine.GetRule("test")
	require.False(t, ok)
}

func TestEngine_InvalidRegexNeverMatches(t *testing.T) {
	engine := newTestEngine()
	engine.AddRule(&Rule{
		Name:      "mixed",
		Patterns:  []string{"(unclosed", `valid\d+`},
		MatchType: MatchRegex,
		Responses: []string{"ok"},
		Enabled:   true,
	})

	require.Nil(t, engine.Match("(unclosed", MatchContext{}))
	require.NotNil(t, engine.Match("valid123", MatchContext{}))
}

func TestEngine_ClearRules(t *testing.T) {
	engine := newTestEngine()
	for _, rule := range DefaultRules() {
		engine.AddRule(rule)
	}
	require.Equal(t, 8, engine.Count())

	engine.ClearRules()
	require.Equal(t, 0, engine.Count())
	require.Nil(t, engine.Match("hello", MatchContext{}))
}

func TestEngine_DefaultRuleSetBehavior(t *testing.T) {
	engine := newTestEngine()
	for _, rule := range DefaultRules() {
		engine.AddRule(rule)
	}

	tests := []struct {
		message  string
		ruleName string
	}{
		{"hello there", "greeting"},
		{"thanks a lot", "thanks"},
		{"bye for now", "goodbye"},
		{"can you help me", "help"},
		{"what's the status", "status"},
		{"yes", "yes"},
		{"nope", "no"},
		{"are you real?", "question"},
	}
	for _, tt := range tests {
		match := engine.Match(tt.message, MatchContext{})
		require.NotNil(t, match, "message %q should match", tt.message)
		require.Equal(t, tt.ruleName, match.Rule.Name, "message %q", tt.message)
	}

	require.Nil(t, engine.Match("completely unrelated text", MatchContext{}))
}
