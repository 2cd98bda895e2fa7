package rules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrNoRules is returned by Store.Load when nothing has been persisted yet,
// which tells the engine to install its default rule set.
var ErrNoRules = errors.New("rules: no persisted rules")

// Store persists rule definitions.
type Store interface {
	Load() ([]*Rule, error)
	Save(rules []*Rule) error
}

// FileStore keeps rules in a single YAML file.
type FileStore struct {
	path string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by the given file path. The file is
// created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

type rulesDocument struct {
	Rules []ruleDocument `yaml:"rules"`
}

// ruleDocument is the on-disk shape. Pointer fields distinguish "absent"
// from zero so omitted enabled/priority keep their defaults.
type ruleDocument struct {
	Name       string     `yaml:"name"`
	Patterns   []string   `yaml:"patterns"`
	MatchType  string     `yaml:"match_type"`
	Responses  []string   `yaml:"responses"`
	Priority   *int       `yaml:"priority"`
	Enabled    *bool      `yaml:"enabled"`
	Conditions Conditions `yaml:"conditions"`
}

func (d ruleDocument) toRule() *Rule {
	rule := &Rule{
		Name:       d.Name,
		Patterns:   d.Patterns,
		MatchType:  MatchType(d.MatchType),
		Responses:  d.Responses,
		Priority:   PriorityNormal,
		Enabled:    true,
		Conditions: d.Conditions,
	}
	if d.MatchType == "" {
		rule.MatchType = MatchContains
	}
	if d.Priority != nil {
		rule.Priority = *d.Priority
	}
	if d.Enabled != nil {
		rule.Enabled = *d.Enabled
	}
	return rule
}

// Load reads the rule file. A missing file reports ErrNoRules; an existing
// but empty file is a valid empty rule set.
func (s *FileStore) Load() ([]*Rule, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoRules
		}
		return nil, fmt.Errorf("rules: read %s: %w", s.path, err)
	}

	var doc rulesDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("rules: parse %s: %w", s.path, err)
	}

	rules := make([]*Rule, 0, len(doc.Rules))
	for _, d := range doc.Rules {
		rules = append(rules, d.toRule())
	}
	return rules, nil
}

// Save writes the rule set, creating parent directories as needed.
func (s *FileStore) Save(rules []*Rule) error {
	doc := struct {
		Rules []*Rule `yaml:"rules"`
	}{Rules: rules}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("rules: marshal: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("rules: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("rules: write %s: %w", s.path, err)
	}
	return nil
}
