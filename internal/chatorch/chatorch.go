// Package chatorch implements the Chat Orchestrator from spec.md §4.8: the
// public sendMessage op that ties together rate limiting, session
// persistence, PII obfuscation, the circuit-breaker-guarded LLM client, and
// a bounded tool-use loop over the tool registry it shares with the MCP
// server.
package chatorch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
	"github.com/spencerjireh/portfoliobridge/internal/breaker"
	"github.com/spencerjireh/portfoliobridge/internal/eventbus"
	"github.com/spencerjireh/portfoliobridge/internal/llmclient"
	"github.com/spencerjireh/portfoliobridge/internal/pii"
	"github.com/spencerjireh/portfoliobridge/internal/ratelimit"
	"github.com/spencerjireh/portfoliobridge/internal/tools"
)

const maxMessageLength = 2000

// maxToolIterations bounds the tool-use loop (spec.md §4.8 step 6: "a
// bounded iteration cap (≥4)").
const maxToolIterations = 4

// Config holds the per-call LLM invocation parameters and prompt assembly
// knobs, sourced from config.Config at wiring time.
type Config struct {
	Model             string
	MaxTokens         int
	Temperature       float64
	SystemPrompt      string
	HistoryWindow     int
	RetryConfig       llmclient.RetryConfig
}

// Orchestrator implements sendMessage.
type Orchestrator struct {
	store     Store
	limiter   *ratelimit.Limiter
	obfuscate *pii.Obfuscator
	llmBreaker *breaker.Breaker
	llm       llmclient.Client
	registry  *tools.Registry
	bus       *eventbus.Bus
	cfg       Config
}

func New(store Store, limiter *ratelimit.Limiter, obfuscator *pii.Obfuscator, llmBreaker *breaker.Breaker,
	llm llmclient.Client, registry *tools.Registry, bus *eventbus.Bus, cfg Config) *Orchestrator {
	return &Orchestrator{
		store: store, limiter: limiter, obfuscate: obfuscator, llmBreaker: llmBreaker,
		llm: llm, registry: registry, bus: bus, cfg: cfg,
	}
}

// SendMessageInput is sendMessage's request envelope (spec.md §4.8).
type SendMessageInput struct {
	VisitorID string
	IPHash    string
	UserAgent *string
	Message   string
}

// SendMessageResult is sendMessage's response envelope.
type SendMessageResult struct {
	SessionID  string
	Role       string
	Content    string
	TokensUsed int
}

// SendMessage runs the full flow from spec.md §4.8: validate, rate-limit,
// resolve/create session, persist the user turn, run the tool-use loop
// against the obfuscated prompt, deobfuscate the result, and persist the
// assistant turn.
func (o *Orchestrator) SendMessage(ctx context.Context, in SendMessageInput) (*SendMessageResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	rl := o.limiter.Consume(ctx, in.IPHash)
	if !rl.Allowed {
		o.bus.Emit(eventbus.Event{
			Kind:    eventbus.ChatRateLimited,
			Payload: eventbus.ChatPayload{VisitorID: in.VisitorID, RetryAfter: rl.RetryAfter},
		})
		return nil, apierr.NewRateLimited(rl.RetryAfter)
	}

	session, err := o.resolveSession(ctx, in)
	if err != nil {
		return nil, apierr.NewInternal("failed to resolve chat session", err)
	}

	if _, err := o.store.AppendMessage(ctx, session.ID, RoleUser, in.Message, nil, nil); err != nil {
		return nil, apierr.NewInternal("failed to persist chat message", err)
	}

	history, err := o.store.RecentMessages(ctx, session.ID, o.historyWindow())
	if err != nil {
		return nil, apierr.NewInternal("failed to load chat history", err)
	}

	obfuscator := o.obfuscate
	prompt, tokens := buildObfuscatedPrompt(obfuscator, o.cfg.SystemPrompt, history)

	resp, err := o.runToolLoop(ctx, prompt)
	if err != nil {
		return nil, err
	}

	finalContent := obfuscator.Deobfuscate(resp.Content, tokens)

	tokensUsed := resp.TokensUsed
	model := resp.Model
	if _, err := o.store.AppendMessage(ctx, session.ID, RoleAssistant, finalContent, &tokensUsed, &model); err != nil {
		return nil, apierr.NewInternal("failed to persist assistant message", err)
	}

	o.bus.Emit(eventbus.Event{
		Kind:    eventbus.ChatMessageSent,
		Payload: eventbus.ChatPayload{SessionID: session.ID, VisitorID: in.VisitorID},
	})

	return &SendMessageResult{
		SessionID: session.ID, Role: string(RoleAssistant), Content: finalContent, TokensUsed: tokensUsed,
	}, nil
}

func (o *Orchestrator) historyWindow() int {
	if o.cfg.HistoryWindow <= 0 {
		return 20
	}
	return o.cfg.HistoryWindow
}

func validateInput(in SendMessageInput) error {
	fields := map[string][]string{}
	if strings.TrimSpace(in.VisitorID) == "" {
		fields["visitorId"] = append(fields["visitorId"], "visitorId is required")
	}
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		fields["message"] = append(fields["message"], "message must not be empty")
	} else if len(in.Message) > maxMessageLength {
		fields["message"] = append(fields["message"], fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}
	if len(fields) > 0 {
		return apierr.NewValidation("invalid chat request", fields)
	}
	return nil
}

// resolveSession implements spec.md §4.8 step 3: findActiveSession else
// createSession, emitting chat:session_started on creation.
func (o *Orchestrator) resolveSession(ctx context.Context, in SendMessageInput) (*Session, error) {
	session, err := o.store.FindActiveSession(ctx, in.VisitorID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session, err = o.store.CreateSession(ctx, in.VisitorID, in.IPHash, in.UserAgent)
	if err != nil {
		return nil, err
	}
	o.bus.Emit(eventbus.Event{
		Kind:    eventbus.ChatSessionStarted,
		Payload: eventbus.ChatPayload{SessionID: session.ID, VisitorID: in.VisitorID},
	})
	return session, nil
}

// buildObfuscatedPrompt assembles the system prompt, the recency-windowed
// history, and obfuscates every message's content in place, returning the
// merged token table needed to reverse it on the model's final answer
// (spec.md §4.8 step 5).
func buildObfuscatedPrompt(ob *pii.Obfuscator, systemPrompt string, history []Message) ([]llmclient.Message, []pii.Token) {
	out := make([]llmclient.Message, 0, len(history)+1)
	if systemPrompt != "" {
		out = append(out, llmclient.Message{Role: string(RoleSystem), Content: systemPrompt})
	}

	var allTokens []pii.Token
	for _, m := range history {
		result := ob.Obfuscate(m.Content)
		allTokens = append(allTokens, result.Tokens...)
		out = append(out, llmclient.Message{Role: string(m.Role), Content: result.Text})
	}
	return out, allTokens
}

// runToolLoop implements spec.md §4.8 step 6: invoke the LLM through the
// circuit breaker and retry wrapper, executing any requested tool calls and
// re-invoking until a response carries no tool calls or the iteration cap
// is reached.
func (o *Orchestrator) runToolLoop(ctx context.Context, messages []llmclient.Message) (*llmclient.Response, error) {
	schemas := toolSchemas(o.registry.ListByAccess(tools.AccessRead))
	opts := llmclient.Options{
		Model: o.cfg.Model, MaxTokens: o.cfg.MaxTokens, Temperature: o.cfg.Temperature, Tools: schemas,
	}

	totalTokens := 0
	var lastModel string

	for iter := 0; iter < maxToolIterations; iter++ {
		resp, err := o.invokeLLM(ctx, messages, opts)
		if err != nil {
			return nil, err
		}
		totalTokens += resp.TokensUsed
		lastModel = resp.Model

		if len(resp.ToolCalls) == 0 {
			resp.TokensUsed = totalTokens
			return resp, nil
		}

		messages = append(messages, llmclient.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result := o.executeToolCall(ctx, call)
			messages = append(messages, llmclient.Message{Role: "tool", Content: result, ToolCallID: call.ID})
		}
	}

	log.Warn().Int("cap", maxToolIterations).Msg("chatorch: tool loop iteration cap reached, returning last content")
	return &llmclient.Response{Content: "", TokensUsed: totalTokens, Model: lastModel}, nil
}

// invokeLLM wraps a single round-trip in the circuit breaker and retry
// wrapper (spec.md §4.5/§4.6). A breaker-open or exhausted-retry failure
// surfaces as apierr.KindUpstreamUnavailable, mapped to 502 by handlers.
func (o *Orchestrator) invokeLLM(ctx context.Context, messages []llmclient.Message, opts llmclient.Options) (*llmclient.Response, error) {
	var resp *llmclient.Response
	err := o.llmBreaker.Call(ctx, func(ctx context.Context) error {
		r, err := llmclient.WithRetry(ctx, o.cfg.RetryConfig, func(ctx context.Context) (*llmclient.Response, error) {
			return o.llm.SendMessage(ctx, messages, opts)
		})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if _, ok := apierr.As(err); ok {
			return nil, err
		}
		var llmErr *llmclient.LLMError
		provider := "llm"
		if e, ok := err.(*llmclient.LLMError); ok {
			llmErr = e
			provider = e.Provider
		}
		msg := err.Error()
		if llmErr != nil {
			msg = llmErr.Message
		}
		return nil, apierr.NewUpstreamUnavailable(provider, msg, err)
	}
	return resp, nil
}

// toolCallResult is the adapter's wire shape for a tool's follow-up turn
// (spec.md §4.7: "a JSON string {success, data?, error?}").
type toolCallResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// executeToolCall dispatches one model-issued tool call through the shared
// registry. A tool-level failure is encoded into the JSON result rather
// than returned as a Go error, since spec.md §4.8 treats it as feedback for
// the model's next turn, not a request-level failure.
func (o *Orchestrator) executeToolCall(ctx context.Context, call llmclient.ToolCall) string {
	out, err := o.registry.Call(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
	if err != nil {
		msg := err.Error()
		if te, ok := err.(*tools.Error); ok {
			msg = te.Message
		}
		b, _ := json.Marshal(toolCallResult{Success: false, Error: msg})
		return string(b)
	}
	b, marshalErr := json.Marshal(toolCallResult{Success: true, Data: out})
	if marshalErr != nil {
		log.Error().Err(marshalErr).Str("tool", call.Function.Name).Msg("chatorch: failed to marshal tool result")
		fallback, _ := json.Marshal(toolCallResult{Success: false, Error: "failed to encode tool result"})
		return string(fallback)
	}
	return string(b)
}

func toolSchemas(defs []tools.Definition) []llmclient.ToolSchema {
	out := make([]llmclient.ToolSchema, len(defs))
	for i, d := range defs {
		out[i].Type = "function"
		out[i].Function.Name = d.Name
		out[i].Function.Description = d.Description
		out[i].Function.Parameters = d.InputSchema
	}
	return out
}
