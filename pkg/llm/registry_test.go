package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s *stubProvider) Chat(context.Context, []Message) (*Response, error) { return nil, nil }
func (s *stubProvider) IsAvailable(context.Context) bool                   { return true }
func (s *stubProvider) ListModels(context.Context) ([]string, error)       { return nil, nil }
func (s *stubProvider) Name() string                                       { return s.name }

func TestRegistry_SeedsBuiltins(t *testing.T) {
	registry := NewRegistry()
	require.Equal(t, []string{"groq", "ollama", "openrouter"}, registry.Providers())
}

func TestRegistry_Create_KnownProvider(t *testing.T) {
	registry := NewRegistry()

	cfg := DefaultConfig()
	cfg.Provider = "Ollama" // case-insensitive
	cfg.Model = "llama3"

	provider, err := registry.Create(cfg)
	require.NoError(t, err)
	require.Equal(t, "ollama", provider.Name())
}

func TestRegistry_Create_UnknownProvider(t *testing.T) {
	registry := NewRegistry()

	cfg := DefaultConfig()
	cfg.Provider = "mystery"

	_, err := registry.Create(cfg)
	pe, ok := IsProviderError(err)
	require.True(t, ok)
	require.Equal(t, ErrorTypeInvalidConfig, pe.Type)
	require.Contains(t, pe.Message, "groq, ollama, openrouter")
}

func TestRegistry_Register_Custom(t *testing.T) {
	registry := NewRegistry()
	registry.Register("fake", func(cfg Config) (Provider, error) {
		return &stubProvider{name: "fake"}, nil
	})

	cfg := DefaultConfig()
	cfg.Provider = "fake"

	provider, err := registry.Create(cfg)
	require.NoError(t, err)
	require.Equal(t, "fake", provider.Name())
}
