package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

const ollamaDefaultHost = "http://localhost:11434"

// Ollama talks to a local Ollama runtime over its native /api/chat endpoint.
// No API key: availability means the daemon is reachable.
type Ollama struct {
	host string
	cfg  Config
	http *http.Client
}

var _ Provider = (*Ollama)(nil)

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
	Error           string `json:"error,omitempty"`
}

// NewOllama validates the config and builds the provider. Host resolution
// order: OllamaHost, APIBase, the localhost default.
func NewOllama(cfg Config) (*Ollama, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	host := cfg.OllamaHost
	if host == "" {
		host = cfg.APIBase
	}
	if host == "" {
		host = ollamaDefaultHost
	}
	return &Ollama{
		host: strings.TrimRight(host, "/"),
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *Ollama) Name() string {
	return "ollama"
}

func (p *Ollama) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewError(ErrorTypeMalformed, "no messages to send")
	}

	start := time.Now()
	body, err := json.Marshal(ollamaChatRequest{
		Model:    p.cfg.Model,
		Messages: messages,
		Stream:   false,
		Options: map[string]any{
			"temperature": p.cfg.Temperature,
			"num_predict": p.cfg.MaxTokens,
			"top_p":       p.cfg.TopP,
		},
	})
	if err != nil {
		return nil, WrapError(ErrorTypeMalformed, "encode request", err)
	}

	raw, err := p.post(ctx, "/api/chat", body)
	if err != nil {
		return nil, err
	}

	var parsed ollamaChatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, WrapError(ErrorTypeMalformed, "invalid chat body", err)
	}
	if parsed.Error != "" {
		return nil, NewError(ErrorTypeNetwork, "ollama: "+parsed.Error)
	}
	if parsed.Message.Content == "" {
		return nil, NewError(ErrorTypeMalformed, "response has no content")
	}

	model := parsed.Model
	if model == "" {
		model = p.cfg.Model
	}
	finish := "stop"
	if parsed.DoneReason == "length" || (!parsed.Done && parsed.DoneReason == "") {
		finish = "length"
	}

	return &Response{
		Content:          parsed.Message.Content,
		Model:            model,
		Provider:         "ollama",
		PromptTokens:     parsed.PromptEvalCount,
		CompletionTokens: parsed.EvalCount,
		LatencyMs:        time.Since(start).Milliseconds(),
		FinishReason:     finish,
	}, nil
}

// ListModels returns the locally pulled models from /api/tags.
func (p *Ollama) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/api/tags", nil)
	if err != nil {
		return nil, WrapError(ErrorTypeNetwork, "build request", err)
	}
	resp, err := p.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, WrapError(ErrorTypeTimeout, "ollama request timed out", err)
		}
		return nil, WrapError(ErrorTypeNetwork, "is ollama running?", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(ErrorTypeNetwork, "read ollama response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, NewError(ErrorTypeNetwork, "ollama returned "+resp.Status)
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, WrapError(ErrorTypeMalformed, "invalid tags body", err)
	}
	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		if m.Name != "" {
			names = append(names, m.Name)
		}
	}
	return names, nil
}

// IsAvailable reports whether the local daemon answers at all.
func (p *Ollama) IsAvailable(ctx context.Context) bool {
	_, err := p.ListModels(ctx)
	return err == nil
}

func (p *Ollama) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(ErrorTypeNetwork, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, WrapError(ErrorTypeTimeout, "ollama request timed out", err)
		}
		return nil, WrapError(ErrorTypeNetwork, "is ollama running?", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(ErrorTypeNetwork, "read ollama response", err)
	}
	if resp.StatusCode >= 400 {
		return nil, NewError(ErrorTypeNetwork, "ollama returned "+resp.Status+": "+apiErrorMessage(raw, resp.Status))
	}
	return raw, nil
}
