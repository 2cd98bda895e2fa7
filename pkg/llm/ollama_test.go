package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func ollamaConfig(host string) Config {
	cfg := DefaultConfig()
	cfg.Provider = "ollama"
	cfg.Model = "llama3"
	cfg.OllamaHost = host
	return cfg
}

func TestOllama_Chat_Success(t *testing.T) {
	var gotReq ollamaChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{
			"model": "llama3",
			"message": {"role": "assistant", "content": "Hello from local"},
			"done": true,
			"done_reason": "stop",
			"prompt_eval_count": 30,
			"eval_count": 10
		}`))
	}))
	defer server.Close()

	provider, err := NewOllama(ollamaConfig(server.URL))
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "Hello from local", resp.Content)
	require.Equal(t, "ollama", resp.Provider)
	require.Equal(t, 40, resp.TokensUsed())
	require.True(t, resp.IsComplete())

	require.False(t, gotReq.Stream)
	require.Equal(t, "llama3", gotReq.Model)
	require.InDelta(t, 0.7, gotReq.Options["temperature"], 0.001)
	require.EqualValues(t, 150, gotReq.Options["num_predict"])
}

func TestOllama_Chat_TokenBudgetHit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"message": {"content": "partial"}, "done": true, "done_reason": "length"}`))
	}))
	defer server.Close()

	provider, err := NewOllama(ollamaConfig(server.URL))
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	require.NoError(t, err)
	require.True(t, resp.WasTruncated())
}

func TestOllama_Chat_EmptyContentIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"message": {"content": ""}, "done": true}`))
	}))
	defer server.Close()

	provider, err := NewOllama(ollamaConfig(server.URL))
	require.NoError(t, err)

	_, err = provider.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	pe, ok := IsProviderError(err)
	require.True(t, ok)
	require.Equal(t, ErrorTypeMalformed, pe.Type)
}

func TestOllama_Chat_DaemonDown(t *testing.T) {
	provider, err := NewOllama(ollamaConfig("http://127.0.0.1:1"))
	require.NoError(t, err)

	_, err = provider.Chat(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	pe, ok := IsProviderError(err)
	require.True(t, ok)
	require.Equal(t, ErrorTypeNetwork, pe.Type)
	require.False(t, provider.IsAvailable(context.Background()))
}

func TestOllama_ListModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models": [{"name": "llama3:latest"}, {"name": "phi3:mini"}]}`))
	}))
	defer server.Close()

	provider, err := NewOllama(ollamaConfig(server.URL))
	require.NoError(t, err)

	models, err := provider.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"llama3:latest", "phi3:mini"}, models)
	require.True(t, provider.IsAvailable(context.Background()))
}

func TestOllama_HostResolution(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OllamaHost = ""
	cfg.APIBase = ""

	provider, err := NewOllama(cfg)
	require.NoError(t, err)
	require.Equal(t, ollamaDefaultHost, provider.host)

	cfg.APIBase = "http://device:11434/"
	provider, err = NewOllama(cfg)
	require.NoError(t, err)
	require.Equal(t, "http://device:11434", provider.host)
}
