package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

var (
	simpleVarPattern  = regexp.MustCompile(`\{(\w+)\}`)
	defaultValPattern = regexp.MustCompile(`\{(\w+):([^}]+)\}`)
	dateFormatPattern = regexp.MustCompile(`\{(\w+):(%[^}]+)\}`)
	randomPattern     = regexp.MustCompile(`\{random:([^}]+)\}`)
	ifElsePattern     = regexp.MustCompile(`\{if:(\w+)\}([^{]*)\{else\}([^{]*)\{endif\}`)
	ifOnlyPattern     = regexp.MustCompile(`\{if:(\w+)\}([^{]*)\{endif\}`)
	ifRefPattern      = regexp.MustCompile(`\{if:(\w+)\}`)
)

// builtinNames are substituted from the clock after every other pass, and
// excluded from ExtractVariables.
var builtinNames = map[string]bool{
	"date": true, "time": true, "datetime": true,
	"year": true, "month": true, "day": true,
	"weekday": true, "hour": true, "minute": true,
	"random": true,
}

// controlNames are placeholder syntax, not variables.
var controlNames = map[string]bool{
	"if": true, "else": true, "endif": true, "random": true,
}

// timestampLayouts are tried in order when a context value formatted with a
// strftime pattern arrives as a string.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Renderer expands templates. It is stateless per call; one instance can
// serve concurrent renders.
type Renderer struct {
	clock Clock
	rand  Randomizer
}

// Option configures the renderer.
type Option func(*Renderer)

// WithClock supplies the time source for built-in variables and strftime
// placeholders.
func WithClock(clock Clock) Option {
	return func(r *Renderer) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithRandomizer supplies the source for {random:...} choices.
func WithRandomizer(rand Randomizer) Option {
	return func(r *Renderer) {
		if rand != nil {
			r.rand = rand
		}
	}
}

// NewRenderer creates a renderer backed by the system clock and the shared
// math/rand source unless options say otherwise.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{
		clock: RealClock{},
		rand:  globalRandomizer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render expands content against context. Unknown placeholders survive
// verbatim; Render never fails.
func (r *Renderer) Render(content string, context map[string]any) string {
	result := r.substituteSimple(content, context)
	result = r.substituteDefaults(result, context)
	result = r.substituteDates(result, context)
	result = r.substituteRandom(result)
	result = r.substituteConditionals(result, context)
	result = r.substituteBuiltins(result)
	return result
}

// RenderTemplate expands a stored template.
func (r *Renderer) RenderTemplate(t *Template, context map[string]any) string {
	if t == nil {
		return ""
	}
	return r.Render(t.Content, context)
}

func (r *Renderer) substituteSimple(text string, context map[string]any) string {
	return simpleVarPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		if value, ok := context[name]; ok {
			return fmt.Sprint(value)
		}
		return match
	})
}

// substituteDefaults handles {name:default}. Strftime forms, {random:...},
// and {if:...} share the same outer shape and are left for their own passes.
func (r *Renderer) substituteDefaults(text string, context map[string]any) string {
	return defaultValPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := defaultValPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]
		if name == "if" || name == "random" || strings.HasPrefix(fallback, "%") {
			return match
		}
		if value, ok := context[name]; ok {
			return fmt.Sprint(value)
		}
		return fallback
	})
}

func (r *Renderer) substituteDates(text string, context map[string]any) string {
	return dateFormatPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := dateFormatPattern.FindStringSubmatch(match)
		name, format := parts[1], parts[2]

		if name == "date" || name == "time" {
			return r.formatOrKeep(format, r.clock.Now(), match)
		}
		if value, ok := context[name]; ok {
			switch v := value.(type) {
			case time.Time:
				return r.formatOrKeep(format, v, match)
			case string:
				for _, layout := range timestampLayouts {
					if ts, err := time.Parse(layout, v); err == nil {
						return r.formatOrKeep(format, ts, match)
					}
				}
			}
		}
		return match
	})
}

func (r *Renderer) formatOrKeep(format string, ts time.Time, original string) string {
	formatted, err := strftime.Format(format, ts)
	if err != nil {
		return original
	}
	return formatted
}

func (r *Renderer) substituteRandom(text string) string {
	return randomPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := randomPattern.FindStringSubmatch(match)
		options := strings.Split(parts[1], "|")
		return options[r.rand.Intn(len(options))]
	})
}

// substituteConditionals evaluates {if:name}...{endif} blocks by context
// truthiness. Branch bodies cannot contain further braces; placeholders
// inside branches are already expanded by the earlier passes.
func (r *Renderer) substituteConditionals(text string, context map[string]any) string {
	text = ifElsePattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := ifElsePattern.FindStringSubmatch(match)
		if truthy(context[parts[1]]) {
			return parts[2]
		}
		return parts[3]
	})
	return ifOnlyPattern.ReplaceAllStringFunc(text, func(match string) string {
		parts := ifOnlyPattern.FindStringSubmatch(match)
		if truthy(context[parts[1]]) {
			return parts[2]
		}
		return ""
	})
}

func (r *Renderer) substituteBuiltins(text string) string {
	now := r.clock.Now()
	replacements := []struct {
		placeholder string
		value       string
	}{
		{"{date}", now.Format("2006-01-02")},
		{"{time}", now.Format("15:04")},
		{"{datetime}", now.Format("2006-01-02 15:04")},
		{"{year}", strconv.Itoa(now.Year())},
		{"{month}", strconv.Itoa(int(now.Month()))},
		{"{day}", strconv.Itoa(now.Day())},
		{"{weekday}", now.Weekday().String()},
		{"{hour}", strconv.Itoa(now.Hour())},
		{"{minute}", strconv.Itoa(now.Minute())},
	}
	for _, rep := range replacements {
		text = strings.ReplaceAll(text, rep.placeholder, rep.value)
	}
	return text
}

// truthy mirrors dynamic-language truthiness for the handful of value kinds
// a context realistically carries.
func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}

// ExtractVariables returns the sorted set of non-builtin variable names a
// template references, including condition names. Intended for validation
// and UI display.
func ExtractVariables(content string) []string {
	seen := make(map[string]bool)

	for _, match := range simpleVarPattern.FindAllStringSubmatch(content, -1) {
		seen[match[1]] = true
	}
	for _, match := range defaultValPattern.FindAllStringSubmatch(content, -1) {
		seen[match[1]] = true
	}
	for _, match := range ifRefPattern.FindAllStringSubmatch(content, -1) {
		seen[match[1]] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		if builtinNames[name] || controlNames[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
