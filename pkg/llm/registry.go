package llm

import (
	"sort"
	"strings"
	"sync"
)

// Builder constructs a provider from its config.
type Builder func(cfg Config) (Provider, error)

// Registry maps provider names to builders. It is an explicit object: build
// one in main, register anything custom, and pass it to whoever creates
// providers. Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

// NewRegistry returns a registry seeded with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{builders: make(map[string]Builder)}
	r.Register("openrouter", func(cfg Config) (Provider, error) { return NewOpenRouter(cfg) })
	r.Register("groq", func(cfg Config) (Provider, error) { return NewGroq(cfg) })
	r.Register("ollama", func(cfg Config) (Provider, error) { return NewOllama(cfg) })
	return r
}

// Register adds or replaces a builder under the lowercased name.
func (r *Registry) Register(name string, builder Builder) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || builder == nil {
		return
	}
	r.mu.Lock()
	r.builders[name] = builder
	r.mu.Unlock()
}

// Create builds the provider named by cfg.Provider.
func (r *Registry) Create(cfg Config) (Provider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))

	r.mu.RLock()
	builder, ok := r.builders[name]
	r.mu.RUnlock()

	if !ok {
		return nil, NewError(ErrorTypeInvalidConfig,
			"unknown provider "+name+" (available: "+strings.Join(r.Providers(), ", ")+")")
	}
	return builder(cfg)
}

// Providers lists the registered names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
