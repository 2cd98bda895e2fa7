package rules

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// compile builds the regex cache for regex rules. Patterns that fail to
// compile get a nil slot and are reported back so the caller can log them.
func (r *Rule) compile() []string {
	if r.MatchType != MatchRegex {
		r.compiled = nil
		return nil
	}
	var invalid []string
	r.compiled = make([]*regexp.Regexp, len(r.Patterns))
	for i, pattern := range r.Patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			invalid = append(invalid, pattern)
			continue
		}
		r.compiled[i] = re
	}
	return invalid
}

// matches reports whether this rule fires for the message, trying patterns
// in order and falling back to the custom Matcher.
func (r *Rule) matches(message string, mctx MatchContext, now time.Time) *RuleMatch {
	if !r.Enabled {
		return nil
	}
	if !r.conditionsMet(mctx, now) {
		return nil
	}

	for i, pattern := range r.Patterns {
		if match := r.matchPattern(i, pattern, message); match != nil {
			return match
		}
	}

	if r.Matcher != nil && r.Matcher(message) {
		return r.newMatch(message, nil)
	}
	return nil
}

func (r *Rule) matchPattern(index int, pattern, message string) *RuleMatch {
	messageLower := strings.ToLower(message)
	patternLower := strings.ToLower(pattern)

	switch r.MatchType {
	case MatchExact:
		if messageLower == patternLower {
			return r.newMatch(message, nil)
		}

	case MatchContains, "":
		if strings.Contains(messageLower, patternLower) {
			return r.newMatch(message, nil)
		}

	case MatchStartsWith:
		if strings.HasPrefix(messageLower, patternLower) {
			return r.newMatch(message, nil)
		}

	case MatchEndsWith:
		if strings.HasSuffix(messageLower, patternLower) {
			return r.newMatch(message, nil)
		}

	case MatchRegex:
		if index >= len(r.compiled) || r.compiled[index] == nil {
			return nil
		}
		re := r.compiled[index]
		submatch := re.FindStringSubmatch(message)
		if submatch == nil {
			return nil
		}
		groups := make(map[string]string)
		for i, name := range re.SubexpNames() {
			if i > 0 && name != "" {
				groups[name] = submatch[i]
			}
		}
		return r.newMatch(message, groups)

	case MatchKeywords:
		for _, keyword := range strings.Fields(patternLower) {
			if strings.Contains(messageLower, keyword) {
				return r.newMatch(message, nil)
			}
		}

	case MatchAllKeywords:
		for _, keyword := range strings.Fields(patternLower) {
			if !strings.Contains(messageLower, keyword) {
				return nil
			}
		}
		return r.newMatch(message, nil)
	}

	return nil
}

func (r *Rule) newMatch(message string, groups map[string]string) *RuleMatch {
	if groups == nil {
		groups = make(map[string]string)
	}
	return &RuleMatch{
		Rule:       r,
		Message:    message,
		Groups:     groups,
		Variables:  make(map[string]any),
		Confidence: 1.0,
	}
}

func (r *Rule) conditionsMet(mctx MatchContext, now time.Time) bool {
	c := r.Conditions
	if c.empty() {
		return true
	}

	if c.TimeStart != "" || c.TimeEnd != "" {
		nowSecs := now.Hour()*3600 + now.Minute()*60 + now.Second()
		if c.TimeStart != "" {
			if start, ok := parseClockTime(c.TimeStart); ok && nowSecs < start {
				return false
			}
		}
		if c.TimeEnd != "" {
			if end, ok := parseClockTime(c.TimeEnd); ok && nowSecs > end {
				return false
			}
		}
	}

	if len(c.Days) > 0 {
		today := strings.ToLower(now.Weekday().String())
		allowed := false
		for _, day := range c.Days {
			if strings.ToLower(day) == today {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	if len(c.AllowedSenders) > 0 {
		allowed := false
		for _, sender := range c.AllowedSenders {
			if sender == mctx.Sender {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	return true
}

// parseClockTime converts "HH:MM" to seconds past midnight. Malformed
// values report false and the bound is skipped.
func parseClockTime(value string) (int, bool) {
	parts := strings.Split(value, ":")
	if len(parts) < 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return hour*3600 + minute*60, true
}
