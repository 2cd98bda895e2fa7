package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// openAIClient is the shared plumbing for providers speaking the OpenAI
// chat-completions dialect (OpenRouter, Groq). The provider supplies its base
// URL, bearer key, and any extra headers.
type openAIClient struct {
	provider string
	apiBase  string
	apiKey   string
	headers  map[string]string
	cfg      Config
	http     *http.Client
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	TopP        float64   `json:"top_p,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type modelListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func newOpenAIClient(provider, defaultBase string, cfg Config, headers map[string]string) *openAIClient {
	base := cfg.APIBase
	if base == "" {
		base = defaultBase
	}
	return &openAIClient{
		provider: provider,
		apiBase:  strings.TrimRight(base, "/"),
		apiKey:   cfg.APIKey,
		headers:  headers,
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

// chat performs one blocking completion call and maps the HTTP outcome onto
// the provider error taxonomy.
func (c *openAIClient) chat(ctx context.Context, messages []Message) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewError(ErrorTypeMalformed, "no messages to send")
	}

	start := time.Now()
	body, err := c.post(ctx, "/chat/completions", chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		TopP:        c.cfg.TopP,
	})
	if err != nil {
		return nil, err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, WrapError(ErrorTypeMalformed, "invalid completion body", err)
	}
	if len(parsed.Choices) == 0 {
		detail := "response has no choices"
		if parsed.Error != nil && parsed.Error.Message != "" {
			detail = parsed.Error.Message
		}
		return nil, NewError(ErrorTypeMalformed, detail)
	}

	choice := parsed.Choices[0]
	model := parsed.Model
	if model == "" {
		model = c.cfg.Model
	}
	finish := choice.FinishReason
	if finish == "" {
		finish = "stop"
	}

	return &Response{
		Content:          choice.Message.Content,
		Model:            model,
		Provider:         c.provider,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
		FinishReason:     finish,
	}, nil
}

func (c *openAIClient) listModels(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/models")
	if err != nil {
		return nil, err
	}
	var parsed modelListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, WrapError(ErrorTypeMalformed, "invalid model list body", err)
	}
	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

func (c *openAIClient) post(ctx context.Context, path string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, WrapError(ErrorTypeMalformed, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, WrapError(ErrorTypeNetwork, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *openAIClient) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return nil, WrapError(ErrorTypeNetwork, "build request", err)
	}
	return c.do(req)
}

func (c *openAIClient) do(req *http.Request) ([]byte, error) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, WrapError(ErrorTypeTimeout, c.provider+" request timed out", err)
		}
		return nil, WrapError(ErrorTypeNetwork, "request to "+c.provider+" failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(ErrorTypeNetwork, "read "+c.provider+" response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, NewError(ErrorTypeAuth, c.provider+" rejected the API key: "+apiErrorMessage(body, resp.Status))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewError(ErrorTypeRateLimited, c.provider+" rate limited: "+apiErrorMessage(body, resp.Status))
	case resp.StatusCode >= 400:
		return nil, NewError(ErrorTypeNetwork, fmt.Sprintf("%s returned %s: %s", c.provider, resp.Status, apiErrorMessage(body, resp.Status)))
	}
	return body, nil
}

// apiErrorMessage digs the human-readable message out of an error body,
// falling back to the HTTP status line.
func apiErrorMessage(body []byte, status string) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && len(trimmed) <= 200 {
		return trimmed
	}
	return status
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}
