package llm

import "context"

const groqAPIBase = "https://api.groq.com/openai/v1"

// Groq talks to the Groq cloud inference API, OpenAI chat-completions
// compatible and fast enough for near-real-time SMS turnaround.
type Groq struct {
	client *openAIClient
}

var _ Provider = (*Groq)(nil)

// NewGroq validates the config and builds the provider. An API key is
// required.
func NewGroq(cfg Config) (*Groq, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, NewError(ErrorTypeAuth, "groq requires an API key")
	}
	return &Groq{
		client: newOpenAIClient("groq", groqAPIBase, cfg, nil),
	}, nil
}

func (p *Groq) Name() string {
	return "groq"
}

func (p *Groq) Chat(ctx context.Context, messages []Message) (*Response, error) {
	return p.client.chat(ctx, messages)
}

func (p *Groq) ListModels(ctx context.Context) ([]string, error) {
	return p.client.listModels(ctx)
}

func (p *Groq) IsAvailable(ctx context.Context) bool {
	_, err := p.client.listModels(ctx)
	return err == nil
}
