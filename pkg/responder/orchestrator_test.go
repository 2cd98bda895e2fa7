package responder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theory-cloud/replytheory/pkg/guardrail"
	"github.com/theory-cloud/replytheory/pkg/llm"
	"github.com/theory-cloud/replytheory/pkg/rules"
	"github.com/theory-cloud/replytheory/pkg/store"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	args := m.Called(ctx, messages)
	if resp := args.Get(0); resp != nil {
		return resp.(*llm.Response), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProvider) IsAvailable(ctx context.Context) bool {
	return m.Called(ctx).Bool(0)
}

func (m *mockProvider) ListModels(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockProvider) Name() string { return "mockai" }

type mockStore struct {
	mock.Mock
}

func (m *mockStore) LogLLMRequest(ctx context.Context, entry *store.LLMRequestLog) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) LogGuardrailViolation(ctx context.Context, entry *store.GuardrailLog) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *mockStore) ConversationContext(ctx context.Context, recipient string, max int) ([]store.ContextMessage, error) {
	args := m.Called(ctx, recipient, max)
	if history := args.Get(0); history != nil {
		return history.([]store.ContextMessage), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockStore) Contact(ctx context.Context, recipient string) (*store.Contact, error) {
	args := m.Called(ctx, recipient)
	if contact := args.Get(0); contact != nil {
		return contact.(*store.Contact), args.Error(1)
	}
	return nil, args.Error(1)
}

type memoryRuleStore struct {
	rules []*rules.Rule
}

func (s *memoryRuleStore) Load() ([]*rules.Rule, error) {
	if len(s.rules) == 0 {
		return nil, rules.ErrNoRules
	}
	return s.rules, nil
}

func (s *memoryRuleStore) Save(loaded []*rules.Rule) error {
	s.rules = loaded
	return nil
}

type fixedRand struct{}

func (fixedRand) Intn(int) int { return 0 }

func testValidator(t *testing.T) *guardrail.Validator {
	t.Helper()
	validator, err := guardrail.NewValidator(guardrail.DefaultConfig(), guardrail.WithRandomizer(fixedRand{}))
	require.NoError(t, err)
	return validator
}

func defaultEngine() *rules.Engine {
	return rules.NewEngine(&memoryRuleStore{}, rules.WithRandomizer(fixedRand{}))
}

func TestOrchestrator_Respond_AISuccess(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, mock.Anything).Return(&llm.Response{
		Content:          "Hey! All good here.",
		Model:            "test-model",
		Provider:         "mockai",
		PromptTokens:     40,
		CompletionTokens: 10,
		LatencyMs:        120,
		FinishReason:     "stop",
	}, nil)

	st := &mockStore{}
	st.On("Contact", mock.Anything, "+15551234567").Return(nil, nil)
	st.On("ConversationContext", mock.Anything, "+15551234567", 10).Return([]store.ContextMessage{
		{Direction: store.DirectionIncoming, Body: "earlier question"},
		{Direction: store.DirectionOutgoing, Body: "earlier answer"},
	}, nil)
	st.On("LogLLMRequest", mock.Anything, mock.MatchedBy(func(entry *store.LLMRequestLog) bool {
		return entry.Status == "success" && entry.TokensUsed == 50 && entry.RequestID == "req-1"
	})).Return(nil)

	o, err := New(DefaultConfig(), testValidator(t),
		WithProvider(provider), WithStore(st), WithEngine(defaultEngine()))
	require.NoError(t, err)

	result, err := o.Respond(context.Background(), Request{
		RequestID: "req-1",
		Recipient: "+15551234567",
		Message:   "how are you?",
	})
	require.NoError(t, err)
	require.Equal(t, SourceAI, result.Source)
	require.Equal(t, "Hey! All good here.", result.Response)
	require.Equal(t, "test-model", result.Model)
	require.Equal(t, 50, result.TokensUsed)
	require.NotNil(t, result.Guardrail)

	// History became user/assistant turns between system prompt and message.
	sent := provider.Calls[0].Arguments.Get(1).([]llm.Message)
	require.Len(t, sent, 4)
	require.Equal(t, llm.RoleSystem, sent[0].Role)
	require.Equal(t, llm.RoleUser, sent[1].Role)
	require.Equal(t, llm.RoleAssistant, sent[2].Role)
	require.Equal(t, "how are you?", sent[3].Content)

	st.AssertExpectations(t)
}

func TestOrchestrator_Respond_SystemPromptIncludesContact(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, mock.Anything).Return(&llm.Response{
		Content: "ok", Model: "m", FinishReason: "stop",
	}, nil)

	st := &mockStore{}
	st.On("Contact", mock.Anything, "+15551234567").Return(&store.Contact{
		PhoneNumber:  "+15551234567",
		Name:         "Sam",
		Relation:     "sibling",
		Age:          30,
		CustomPrompt: "reply in spanish",
	}, nil)
	st.On("ConversationContext", mock.Anything, "+15551234567", 10).Return(nil, nil)
	st.On("LogLLMRequest", mock.Anything, mock.Anything).Return(nil)

	clock := fixedClock{now: time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)}
	o, err := New(DefaultConfig(), testValidator(t),
		WithProvider(provider), WithStore(st), WithClock(clock))
	require.NoError(t, err)

	_, err = o.Respond(context.Background(), Request{Recipient: "+15551234567", Message: "hola"})
	require.NoError(t, err)

	system := provider.Calls[0].Arguments.Get(1).([]llm.Message)[0].Content
	require.Contains(t, system, "Talking to: Sam")
	require.Contains(t, system, "Relation: sibling")
	require.Contains(t, system, "Age: 30")
	require.Contains(t, system, "Specific Instructions: reply in spanish")
	require.Contains(t, system, "Current date: 2026-04-02")
	require.Contains(t, system, "under 300 characters")
}

func TestOrchestrator_Respond_AIDisabledUsesRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AIEnabled = false

	o, err := New(cfg, testValidator(t), WithEngine(defaultEngine()))
	require.NoError(t, err)

	result, err := o.Respond(context.Background(), Request{
		RequestID: "req-2",
		Recipient: "+15551234567",
		Message:   "hello",
	})
	require.NoError(t, err)
	require.Equal(t, SourceRules, result.Source)
	require.Equal(t, "greeting", result.Metadata["rule"])
	require.NotEmpty(t, result.Response)
	require.LessOrEqual(t, len(result.Response), 300)
}

func TestOrchestrator_Respond_ProviderErrorFallsBackToRules(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, mock.Anything).
		Return(nil, llm.NewError(llm.ErrorTypeNetwork, "connection refused"))

	st := &mockStore{}
	st.On("Contact", mock.Anything, mock.Anything).Return(nil, nil)
	st.On("ConversationContext", mock.Anything, mock.Anything, 10).Return(nil, nil)
	st.On("LogLLMRequest", mock.Anything, mock.MatchedBy(func(entry *store.LLMRequestLog) bool {
		return entry.Status == "error" && entry.ErrorMessage != ""
	})).Return(nil)

	o, err := New(DefaultConfig(), testValidator(t),
		WithProvider(provider), WithStore(st), WithEngine(defaultEngine()))
	require.NoError(t, err)

	result, err := o.Respond(context.Background(), Request{Recipient: "+15551234567", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, SourceRules, result.Source)

	st.AssertExpectations(t)
}

func TestOrchestrator_Respond_ProviderErrorNoMatchFallsBackToCanned(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, mock.Anything).
		Return(nil, llm.NewError(llm.ErrorTypeTimeout, "deadline exceeded"))

	o, err := New(DefaultConfig(), testValidator(t),
		WithProvider(provider), WithEngine(defaultEngine()))
	require.NoError(t, err)

	result, err := o.Respond(context.Background(), Request{
		Recipient: "+15551234567",
		Message:   "zxqwv unmatched gibberish",
	})
	require.NoError(t, err)
	require.Equal(t, SourceFallback, result.Source)
	require.NotEmpty(t, result.Response)
}

func TestOrchestrator_Respond_ProviderErrorPropagatesWhenFallbackOff(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, mock.Anything).
		Return(nil, llm.NewError(llm.ErrorTypeAuth, "bad key"))

	cfg := DefaultConfig()
	cfg.FallbackToRules = false

	o, err := New(cfg, testValidator(t), WithProvider(provider), WithEngine(defaultEngine()))
	require.NoError(t, err)

	_, err = o.Respond(context.Background(), Request{Recipient: "+15551234567", Message: "hello"})
	require.Error(t, err)
	pe, ok := llm.IsProviderError(err)
	require.True(t, ok)
	require.Equal(t, llm.ErrorTypeAuth, pe.Type)
}

func TestOrchestrator_Respond_EmptyContentTreatedAsProviderError(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, mock.Anything).Return(&llm.Response{
		Content: "", Model: "m", FinishReason: "stop",
	}, nil)

	o, err := New(DefaultConfig(), testValidator(t),
		WithProvider(provider), WithEngine(defaultEngine()))
	require.NoError(t, err)

	result, err := o.Respond(context.Background(), Request{Recipient: "+15551234567", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, SourceRules, result.Source)
}

func TestOrchestrator_Respond_GuardrailViolationAudited(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, mock.Anything).Return(&llm.Response{
		Content:      "Call me at 555-123-4567 anytime",
		Model:        "m",
		FinishReason: "stop",
	}, nil)

	st := &mockStore{}
	st.On("Contact", mock.Anything, mock.Anything).Return(nil, nil)
	st.On("ConversationContext", mock.Anything, mock.Anything, 10).Return(nil, nil)
	st.On("LogLLMRequest", mock.Anything, mock.Anything).Return(nil)
	st.On("LogGuardrailViolation", mock.Anything, mock.MatchedBy(func(entry *store.GuardrailLog) bool {
		return entry.ViolationType == "phone_number" && entry.FinalResponse != entry.OriginalResponse
	})).Return(nil)

	o, err := New(DefaultConfig(), testValidator(t), WithProvider(provider), WithStore(st))
	require.NoError(t, err)

	result, err := o.Respond(context.Background(), Request{Recipient: "+15551234567", Message: "number?"})
	require.NoError(t, err)
	require.Equal(t, SourceAI, result.Source)
	require.NotContains(t, result.Response, "555-123-4567")

	st.AssertExpectations(t)
}

func TestOrchestrator_Respond_NoCollaboratorsYieldsFallback(t *testing.T) {
	o, err := New(DefaultConfig(), testValidator(t))
	require.NoError(t, err)

	result, err := o.Respond(context.Background(), Request{Recipient: "+15551234567", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, SourceFallback, result.Source)
	require.NotEmpty(t, result.Response)
}

func TestOrchestrator_Respond_StoreFailureDoesNotAbort(t *testing.T) {
	provider := &mockProvider{}
	provider.On("Chat", mock.Anything, mock.Anything).Return(&llm.Response{
		Content: "fine", Model: "m", FinishReason: "stop",
	}, nil)

	st := &mockStore{}
	st.On("Contact", mock.Anything, mock.Anything).Return(nil, errors.New("db locked"))
	st.On("ConversationContext", mock.Anything, mock.Anything, 10).Return(nil, errors.New("db locked"))
	st.On("LogLLMRequest", mock.Anything, mock.Anything).Return(errors.New("db locked"))

	o, err := New(DefaultConfig(), testValidator(t), WithProvider(provider), WithStore(st))
	require.NoError(t, err)

	result, err := o.Respond(context.Background(), Request{Recipient: "+15551234567", Message: "hello"})
	require.NoError(t, err)
	require.Equal(t, SourceAI, result.Source)
	require.Equal(t, "fine", result.Response)
}

func TestNew_RequiresValidator(t *testing.T) {
	_, err := New(DefaultConfig(), nil)
	require.Error(t, err)
}
