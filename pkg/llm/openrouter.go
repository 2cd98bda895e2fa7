package llm

import "context"

const openRouterAPIBase = "https://openrouter.ai/api/v1"

// openRouterHeaders identify the agent for OpenRouter's app rankings.
var openRouterHeaders = map[string]string{
	"HTTP-Referer": "https://github.com/theory-cloud/replytheory",
	"X-Title":      "ReplyTheory",
}

// OpenRouter talks to the OpenRouter API gateway, which fronts many hosted
// models behind one OpenAI-style endpoint.
type OpenRouter struct {
	client *openAIClient
}

var _ Provider = (*OpenRouter)(nil)

// NewOpenRouter validates the config and builds the provider. An API key is
// required.
func NewOpenRouter(cfg Config) (*OpenRouter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, NewError(ErrorTypeAuth, "openrouter requires an API key")
	}
	return &OpenRouter{
		client: newOpenAIClient("openrouter", openRouterAPIBase, cfg, openRouterHeaders),
	}, nil
}

func (p *OpenRouter) Name() string {
	return "openrouter"
}

func (p *OpenRouter) Chat(ctx context.Context, messages []Message) (*Response, error) {
	return p.client.chat(ctx, messages)
}

func (p *OpenRouter) ListModels(ctx context.Context) ([]string, error) {
	return p.client.listModels(ctx)
}

// IsAvailable probes the model list endpoint.
func (p *OpenRouter) IsAvailable(ctx context.Context) bool {
	_, err := p.client.listModels(ctx)
	return err == nil
}
