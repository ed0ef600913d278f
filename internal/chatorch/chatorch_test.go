package chatorch

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
	"github.com/spencerjireh/portfoliobridge/internal/breaker"
	"github.com/spencerjireh/portfoliobridge/internal/cache"
	"github.com/spencerjireh/portfoliobridge/internal/eventbus"
	"github.com/spencerjireh/portfoliobridge/internal/llmclient"
	"github.com/spencerjireh/portfoliobridge/internal/pii"
	"github.com/spencerjireh/portfoliobridge/internal/ratelimit"
	"github.com/spencerjireh/portfoliobridge/internal/tools"
)

// fakeStore is a minimal in-memory Store for orchestrator-level unit tests.
type fakeStore struct {
	sessions map[string]*Session
	messages map[string][]Message
	nextID   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*Session{}, messages: map[string][]Message{}}
}

func (f *fakeStore) FindActiveSession(ctx context.Context, visitorID string) (*Session, error) {
	for _, s := range f.sessions {
		if s.VisitorID == visitorID && s.Status == SessionActive {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CreateSession(ctx context.Context, visitorID, ipHash string, userAgent *string) (*Session, error) {
	f.nextID++
	s := &Session{ID: "sess_" + string(rune('0'+f.nextID)), VisitorID: visitorID, IPHash: ipHash, UserAgent: userAgent, Status: SessionActive}
	f.sessions[s.ID] = s
	return s, nil
}

func (f *fakeStore) AppendMessage(ctx context.Context, sessionID string, role MessageRole, content string, tokensUsed *int, model *string) (*Message, error) {
	m := Message{ID: "msg", SessionID: sessionID, Role: role, Content: content, TokensUsed: tokensUsed, Model: model}
	f.messages[sessionID] = append(f.messages[sessionID], m)
	return &m, nil
}

func (f *fakeStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	msgs := f.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// fakeLLM is a scripted llmclient.Client: each call pops the next response.
type fakeLLM struct {
	responses []llmclient.Response
	calls     int
	err       error
}

func (f *fakeLLM) SendMessage(ctx context.Context, messages []llmclient.Message, opts llmclient.Options) (*llmclient.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	resp := f.responses[f.calls]
	f.calls++
	return &resp, nil
}

func newOrchestrator(store Store, llm llmclient.Client, registry *tools.Registry) *Orchestrator {
	bus := eventbus.New()
	limiter := ratelimit.New(cache.NewInProcess(), ratelimit.Config{Capacity: 10, RefillRate: 1, TTL: 0})
	llmBreaker := breaker.New("test-llm", breaker.DefaultConfig, bus)
	if registry == nil {
		registry = tools.NewRegistry()
	}
	return New(store, limiter, pii.NewDefault(), llmBreaker, llm, registry, bus, Config{
		Model: "test-model", MaxTokens: 100, Temperature: 0, SystemPrompt: "be helpful", HistoryWindow: 20,
		RetryConfig: llmclient.RetryConfig{MaxRetries: 0},
	})
}

func TestSendMessageHappyPath(t *testing.T) {
	llm := &fakeLLM{responses: []llmclient.Response{
		{Content: "Hello there", TokensUsed: 12, Model: "test-model"},
	}}
	orch := newOrchestrator(newFakeStore(), llm, nil)

	result, err := orch.SendMessage(context.Background(), SendMessageInput{
		VisitorID: "visitor-1", IPHash: "iphash", Message: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", result.Content)
	assert.Equal(t, "assistant", result.Role)
	assert.Equal(t, 12, result.TokensUsed)
}

func TestSendMessageRejectsEmptyMessage(t *testing.T) {
	orch := newOrchestrator(newFakeStore(), &fakeLLM{}, nil)
	_, err := orch.SendMessage(context.Background(), SendMessageInput{VisitorID: "v1", IPHash: "h", Message: "   "})
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindValidation, ae.Kind)
}

func TestSendMessageRateLimitedAfterCapacityExhausted(t *testing.T) {
	bus := eventbus.New()
	limiter := ratelimit.New(cache.NewInProcess(), ratelimit.Config{Capacity: 1, RefillRate: 0.001, TTL: 0})
	llmBreaker := breaker.New("test-llm", breaker.DefaultConfig, bus)
	llm := &fakeLLM{responses: []llmclient.Response{
		{Content: "ok", TokensUsed: 1, Model: "test-model"},
		{Content: "ok2", TokensUsed: 1, Model: "test-model"},
	}}
	orch := New(newFakeStore(), limiter, pii.NewDefault(), llmBreaker, llm, tools.NewRegistry(), bus, Config{
		Model: "test-model", HistoryWindow: 20, RetryConfig: llmclient.RetryConfig{MaxRetries: 0},
	})

	_, err := orch.SendMessage(context.Background(), SendMessageInput{VisitorID: "v1", IPHash: "same-key", Message: "one"})
	require.NoError(t, err)

	_, err = orch.SendMessage(context.Background(), SendMessageInput{VisitorID: "v1", IPHash: "same-key", Message: "two"})
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindRateLimited, ae.Kind)
}

func TestSendMessageStopsAtToolIterationCap(t *testing.T) {
	registry := tools.NewRegistry()
	registry.MustRegister(tools.Definition{Name: "noop_tool", Description: "does nothing", Access: tools.AccessRead, InputSchema: map[string]any{}},
		func(ctx context.Context, args json.RawMessage) (any, error) { return map[string]any{"ok": true}, nil })

	toolCallResp := llmclient.Response{Content: "", TokensUsed: 1, Model: "test-model"}
	toolCallResp.ToolCalls = []llmclient.ToolCall{{ID: "call1", Type: "function"}}
	toolCallResp.ToolCalls[0].Function.Name = "noop_tool"
	toolCallResp.ToolCalls[0].Function.Arguments = "{}"

	llm := &fakeLLM{responses: []llmclient.Response{toolCallResp, toolCallResp, toolCallResp, toolCallResp}}
	orch := newOrchestrator(newFakeStore(), llm, registry)

	result, err := orch.SendMessage(context.Background(), SendMessageInput{VisitorID: "v1", IPHash: "h", Message: "loop please"})
	require.NoError(t, err)
	assert.Equal(t, maxToolIterations, llm.calls)
	assert.Equal(t, "", result.Content)
}

func TestSendMessageMapsBreakerOpenToUpstreamUnavailable(t *testing.T) {
	bus := eventbus.New()
	limiter := ratelimit.New(cache.NewInProcess(), ratelimit.Config{Capacity: 10, RefillRate: 1, TTL: 0})
	llmBreaker := breaker.New("test-llm", breaker.Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, bus)
	llm := &fakeLLM{err: apierr.NewUpstreamUnavailable("test-llm", "boom", nil)}

	orch := New(newFakeStore(), limiter, pii.NewDefault(), llmBreaker, llm, tools.NewRegistry(), bus, Config{
		Model: "test-model", HistoryWindow: 20, RetryConfig: llmclient.RetryConfig{MaxRetries: 0},
	})

	_, err := orch.SendMessage(context.Background(), SendMessageInput{VisitorID: "v1", IPHash: "h1", Message: "first call trips breaker"})
	require.Error(t, err)

	_, err = orch.SendMessage(context.Background(), SendMessageInput{VisitorID: "v1", IPHash: "h1", Message: "second call sees open breaker"})
	require.Error(t, err)
	ae, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.KindUpstreamUnavailable, ae.Kind)
}
