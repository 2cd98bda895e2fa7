package rules

import (
	"errors"
	"sort"
	"sync"

	"github.com/theory-cloud/replytheory/pkg/observability"
	"github.com/theory-cloud/replytheory/pkg/templates"
)

// ErrNoStore is returned by SaveRules when the engine was built without a
// persistence store.
var ErrNoStore = errors.New("rules: no store configured")

// Engine evaluates rules in descending priority order. A read-write lock
// guards the rule list; match traversals take the read side.
type Engine struct {
	mu       sync.RWMutex
	rules    []*Rule
	store    Store
	renderer *templates.Renderer
	clock    Clock
	rand     Randomizer
	logger   observability.StructuredLogger
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger sets the logger for load warnings and rule diagnostics.
func WithLogger(logger observability.StructuredLogger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithClock supplies the time source for condition checks.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithRandomizer supplies the source for response selection.
func WithRandomizer(rand Randomizer) Option {
	return func(e *Engine) {
		if rand != nil {
			e.rand = rand
		}
	}
}

// WithRenderer supplies the template renderer used for responses.
func WithRenderer(renderer *templates.Renderer) Option {
	return func(e *Engine) {
		if renderer != nil {
			e.renderer = renderer
		}
	}
}

// NewEngine creates an engine and loads rules from store. A nil store keeps
// the engine purely in-memory. When the store holds nothing yet, the
// built-in default rule set is installed and persisted.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		clock:  RealClock{},
		rand:   globalRandomizer{},
		logger: observability.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.renderer == nil {
		e.renderer = templates.NewRenderer(templates.WithRandomizer(e.rand))
	}
	if e.store != nil {
		e.loadRules()
	}
	return e
}

func (e *Engine) loadRules() {
	loaded, err := e.store.Load()
	switch {
	case errors.Is(err, ErrNoRules):
		for _, rule := range DefaultRules() {
			e.addLocked(rule)
		}
		if err := e.store.Save(e.snapshotLocked()); err != nil {
			e.logger.Warn("failed to persist default rules", map[string]any{"error": err.Error()})
		}
	case err != nil:
		e.logger.Warn("failed to load rules", map[string]any{"error": err.Error()})
	default:
		for _, rule := range loaded {
			e.addLocked(rule)
		}
	}
}

// AddRule registers a rule and re-sorts by descending priority. Equal
// priorities keep insertion order. Invalid regex patterns are logged and
// never match.
func (e *Engine) AddRule(rule *Rule) {
	if rule == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.addLocked(rule)
}

func (e *Engine) addLocked(rule *Rule) {
	if rule.MatchType == "" {
		rule.MatchType = MatchContains
	}
	for _, pattern := range rule.compile() {
		e.logger.Warn("invalid rule pattern skipped", map[string]any{
			"rule":    rule.Name,
			"pattern": pattern,
		})
	}
	e.rules = append(e.rules, rule)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority > e.rules[j].Priority
	})
}

// RemoveRule deletes the named rule, reporting whether it existed.
func (e *Engine) RemoveRule(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, rule := range e.rules {
		if rule.Name == name {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return true
		}
	}
	return false
}

// GetRule returns a copy of the named rule.
func (e *Engine) GetRule(name string) (Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if rule := e.findLocked(name); rule != nil {
		return *rule, true
	}
	return Rule{}, false
}

// EnableRule activates the named rule.
func (e *Engine) EnableRule(name string) bool {
	return e.setEnabled(name, true)
}

// DisableRule deactivates the named rule without removing it.
func (e *Engine) DisableRule(name string) bool {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rule := e.findLocked(name); rule != nil {
		rule.Enabled = enabled
		return true
	}
	return false
}

func (e *Engine) findLocked(name string) *Rule {
	for _, rule := range e.rules {
		if rule.Name == name {
			return rule
		}
	}
	return nil
}

// Match returns the first rule match in priority order, or nil when nothing
// fires.
func (e *Engine) Match(message string, mctx MatchContext) *RuleMatch {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.clock.Now()
	for _, rule := range e.rules {
		if match := rule.matches(message, mctx, now); match != nil {
			return match
		}
	}
	return nil
}

// MatchAll returns every matching rule in priority order. Each rule still
// short-circuits at its first matching pattern.
func (e *Engine) MatchAll(message string, mctx MatchContext) []*RuleMatch {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.clock.Now()
	var matches []*RuleMatch
	for _, rule := range e.rules {
		if match := rule.matches(message, mctx, now); match != nil {
			matches = append(matches, match)
		}
	}
	return matches
}

// RenderResponse picks one of the matched rule's responses at random and
// expands it with the captured groups, the original message, and the
// built-in date/time variables.
func (e *Engine) RenderResponse(match *RuleMatch) string {
	if match == nil || match.Rule == nil || len(match.Rule.Responses) == 0 {
		return ""
	}
	choice := match.Rule.Responses[e.rand.Intn(len(match.Rule.Responses))]

	context := map[string]any{"message": match.Message}
	for name, value := range match.Groups {
		context[name] = value
	}
	for name, value := range match.Variables {
		context[name] = value
	}
	return e.renderer.Render(choice, context)
}

// SaveRules writes the current rule set back to the store.
func (e *Engine) SaveRules() error {
	if e.store == nil {
		return ErrNoStore
	}
	e.mu.RLock()
	snapshot := e.snapshotLocked()
	e.mu.RUnlock()
	return e.store.Save(snapshot)
}

// Rules returns a snapshot of the rule list in priority order. Callers must
// treat the rules as read-only.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// Count reports how many rules are registered.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// ClearRules removes every rule.
func (e *Engine) ClearRules() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = nil
}

func (e *Engine) snapshotLocked() []*Rule {
	snapshot := make([]*Rule, len(e.rules))
	copy(snapshot, e.rules)
	return snapshot
}
