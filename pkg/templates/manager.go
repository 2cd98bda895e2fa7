package templates

import (
	"sort"
	"sync"
)

// Manager stores named templates and renders them through an injected
// Renderer. Safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	renderer  *Renderer
	templates map[string]*Template
}

// NewManager creates an empty manager. A nil renderer falls back to a
// default one.
func NewManager(renderer *Renderer) *Manager {
	if renderer == nil {
		renderer = NewRenderer()
	}
	return &Manager{
		renderer:  renderer,
		templates: make(map[string]*Template),
	}
}

// Add registers a template, replacing any previous content under the name.
func (m *Manager) Add(name, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[name] = &Template{Name: name, Content: content}
}

// Get returns a copy of the named template.
func (m *Manager) Get(name string) (Template, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[name]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// Has reports whether the named template exists.
func (m *Manager) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.templates[name]
	return ok
}

// Remove deletes a template, reporting whether it existed.
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.templates[name]
	delete(m.templates, name)
	return ok
}

// Render expands the named template against context. The second return is
// false when the template does not exist.
func (m *Manager) Render(name string, context map[string]any) (string, bool) {
	m.mu.RLock()
	t, ok := m.templates[name]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	return m.renderer.Render(t.Content, context), true
}

// Names lists registered template names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.templates))
	for name := range m.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadFromMap bulk-registers templates from a name → content mapping.
func (m *Manager) LoadFromMap(data map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, content := range data {
		m.templates[name] = &Template{Name: name, Content: content}
	}
}

// ToMap exports all templates as a name → content mapping.
func (m *Manager) ToMap() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.templates))
	for name, t := range m.templates {
		out[name] = t.Content
	}
	return out
}
