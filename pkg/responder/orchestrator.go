package responder

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/theory-cloud/replytheory/pkg/guardrail"
	"github.com/theory-cloud/replytheory/pkg/llm"
	"github.com/theory-cloud/replytheory/pkg/observability"
	"github.com/theory-cloud/replytheory/pkg/rules"
	"github.com/theory-cloud/replytheory/pkg/store"
)

// Orchestrator walks the three response sources in order. Provider, engine,
// and store are optional collaborators: a missing provider skips straight to
// rules, a missing engine to the fallback, a missing store just skips audit
// rows. The validator is required.
type Orchestrator struct {
	cfg       Config
	validator *guardrail.Validator
	provider  llm.Provider
	engine    *rules.Engine
	store     Store
	logger    observability.StructuredLogger
	clock     Clock
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithProvider wires the AI source.
func WithProvider(provider llm.Provider) Option {
	return func(o *Orchestrator) {
		o.provider = provider
	}
}

// WithEngine wires the rules source.
func WithEngine(engine *rules.Engine) Option {
	return func(o *Orchestrator) {
		o.engine = engine
	}
}

// WithStore wires audit logging and conversation context.
func WithStore(s Store) Option {
	return func(o *Orchestrator) {
		o.store = s
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger observability.StructuredLogger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the clock, for deterministic prompts in tests.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// New builds an orchestrator. The validator is the one collaborator every
// response must pass through, so it is a required argument.
func New(cfg Config, validator *guardrail.Validator, opts ...Option) (*Orchestrator, error) {
	if validator == nil {
		return nil, fmt.Errorf("responder: validator is required")
	}
	if cfg.MaxContextMessages < 0 {
		return nil, fmt.Errorf("responder: max_context_messages cannot be negative")
	}
	if cfg.Personality == "" {
		cfg.Personality = DefaultPersonality
	}
	if cfg.AgentRules == "" {
		cfg.AgentRules = DefaultAgentRules
	}
	o := &Orchestrator{
		cfg:       cfg,
		validator: validator,
		logger:    observability.NewNoOpLogger(),
		clock:     RealClock{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Respond produces exactly one answer for the request. The chain is strictly
// sequential with no retries: AI (when enabled and wired), rules, fallback.
// An error is returned only for provider failures with FallbackToRules off.
func (o *Orchestrator) Respond(ctx context.Context, req Request) (*Result, error) {
	start := o.clock.Now()
	logger := o.logger.WithRequestID(req.RequestID).WithRecipient(req.Recipient)

	if o.cfg.AIEnabled && o.provider != nil {
		result, err := o.generateAI(ctx, req, logger)
		if err != nil {
			return nil, err
		}
		if result != nil {
			result.LatencyMs = o.clock.Now().Sub(start).Milliseconds()
			return result, nil
		}
		// nil/nil means a swallowed provider error: continue down the chain.
	}

	if o.engine != nil {
		if match := o.engine.Match(req.Message, rules.MatchContext{Sender: req.Recipient}); match != nil {
			response := o.engine.RenderResponse(match)
			checked := o.validator.Validate(response)
			o.auditGuardrail(ctx, req, response, checked)

			logger.Info("rules response selected", map[string]any{
				"rule": match.Rule.Name,
			})
			return &Result{
				Response:  checked.SafeResponse(),
				Source:    SourceRules,
				LatencyMs: o.clock.Now().Sub(start).Milliseconds(),
				Guardrail: checked,
				Metadata:  map[string]any{"rule": match.Rule.Name},
			}, nil
		}
	}

	logger.Info("fallback response selected")
	return &Result{
		Response:  o.validator.FallbackResponse(),
		Source:    SourceFallback,
		LatencyMs: o.clock.Now().Sub(start).Milliseconds(),
	}, nil
}

// generateAI runs one provider call. Returns (nil, nil) when the error was
// absorbed and the chain should continue.
func (o *Orchestrator) generateAI(ctx context.Context, req Request, logger observability.StructuredLogger) (*Result, error) {
	messages := o.buildMessages(ctx, req)

	response, err := o.provider.Chat(ctx, messages)
	if err != nil {
		logger.Error("ai generation failed", map[string]any{
			"provider": o.provider.Name(),
			"error":    err.Error(),
		})
		o.auditLLM(ctx, &store.LLMRequestLog{
			RequestID:    req.RequestID,
			Provider:     o.provider.Name(),
			Prompt:       req.Message,
			Status:       "error",
			ErrorMessage: err.Error(),
		})
		if o.cfg.FallbackToRules {
			return nil, nil
		}
		return nil, err
	}
	if response.Content == "" {
		// A well-formed body with nothing in it is as useless as a broken one.
		err := llm.NewError(llm.ErrorTypeMalformed, "provider returned empty content")
		o.auditLLM(ctx, &store.LLMRequestLog{
			RequestID:    req.RequestID,
			Provider:     o.provider.Name(),
			Prompt:       req.Message,
			Status:       "error",
			ErrorMessage: err.Error(),
		})
		if o.cfg.FallbackToRules {
			return nil, nil
		}
		return nil, err
	}

	checked := o.validator.Validate(response.Content)
	o.auditGuardrail(ctx, req, response.Content, checked)

	status := "success"
	if !response.IsComplete() {
		status = "incomplete"
	}
	o.auditLLM(ctx, &store.LLMRequestLog{
		RequestID:  req.RequestID,
		Provider:   o.provider.Name(),
		Model:      response.Model,
		Prompt:     req.Message,
		Response:   response.Content,
		TokensUsed: response.TokensUsed(),
		LatencyMs:  response.LatencyMs,
		Status:     status,
	})

	logger.Info("ai response generated", map[string]any{
		"model":      response.Model,
		"tokens":     response.TokensUsed(),
		"latency_ms": response.LatencyMs,
	})

	return &Result{
		Response:   checked.SafeResponse(),
		Source:     SourceAI,
		Model:      response.Model,
		TokensUsed: response.TokensUsed(),
		Guardrail:  checked,
		Metadata: map[string]any{
			"provider":      o.provider.Name(),
			"finish_reason": response.FinishReason,
		},
	}, nil
}

// buildMessages assembles the system prompt, bounded history, and the new
// message. Deterministic given its inputs and the clock.
func (o *Orchestrator) buildMessages(ctx context.Context, req Request) []llm.Message {
	var system strings.Builder
	system.WriteString(o.cfg.Personality)
	system.WriteString("\n\n")
	system.WriteString(o.cfg.AgentRules)

	if o.store != nil {
		if contact, err := o.store.Contact(ctx, req.Recipient); err == nil && contact != nil {
			system.WriteString("\n\n### CURRENT CONVERSATION CONTEXT")
			if contact.Name != "" {
				system.WriteString("\n- Talking to: " + contact.Name)
			}
			if contact.Relation != "" {
				system.WriteString("\n- Relation: " + contact.Relation)
			}
			if contact.Age > 0 {
				system.WriteString("\n- Age: " + strconv.Itoa(contact.Age))
			}
			if contact.CustomPrompt != "" {
				system.WriteString("\n- Specific Instructions: " + contact.CustomPrompt)
			}
		}
	}

	system.WriteString("\n\nCurrent date: " + o.clock.Now().Format("2006-01-02"))
	system.WriteString("\nKeep your response under " + strconv.Itoa(o.validator.MaxLength()) + " characters.")

	messages := []llm.Message{{Role: llm.RoleSystem, Content: system.String()}}

	if o.store != nil && o.cfg.MaxContextMessages > 0 {
		history, err := o.store.ConversationContext(ctx, req.Recipient, o.cfg.MaxContextMessages)
		if err != nil {
			o.logger.Warn("conversation context unavailable", map[string]any{
				"error": err.Error(),
			})
		}
		for _, msg := range history {
			role := llm.RoleAssistant
			if msg.Direction == store.DirectionIncoming {
				role = llm.RoleUser
			}
			messages = append(messages, llm.Message{Role: role, Content: msg.Body})
		}
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})
}

// auditGuardrail records the first violation of a validation, if any.
func (o *Orchestrator) auditGuardrail(ctx context.Context, req Request, original string, checked *guardrail.Result) {
	if o.store == nil || len(checked.Violations) == 0 {
		return
	}
	action := "blocked"
	if len(checked.Actions) > 0 {
		action = checked.Actions[0]
	}
	entry := &store.GuardrailLog{
		RequestID:        req.RequestID,
		PhoneNumber:      req.Recipient,
		OriginalResponse: original,
		ViolationType:    string(checked.Violations[0].Type),
		ActionTaken:      action,
		FinalResponse:    checked.SafeResponse(),
	}
	if err := o.store.LogGuardrailViolation(ctx, entry); err != nil {
		o.logger.Warn("guardrail audit write failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (o *Orchestrator) auditLLM(ctx context.Context, entry *store.LLMRequestLog) {
	if o.store == nil {
		return
	}
	if entry.Model == "" {
		entry.Model = "unknown"
	}
	if err := o.store.LogLLMRequest(ctx, entry); err != nil {
		o.logger.Warn("llm audit write failed", map[string]any{
			"error": err.Error(),
		})
	}
}
