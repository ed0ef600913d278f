// Package llmclient implements the chat-completion RPC and retry policy
// from spec.md §4.6: an OpenAI-compatible wire format, exponential backoff
// via cenkalti/backoff, and the pinned retryable-error classification.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
)

// Message is one chat-completion turn (spec.md §4.6).
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a model-issued function invocation request.
type ToolCall struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

// ToolSchema describes one callable tool in OpenAI function-calling shape.
type ToolSchema struct {
	Type     string `json:"type"`
	Function struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		Parameters  map[string]any `json:"parameters"`
	} `json:"function"`
}

// Options configures a single sendMessage call.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Tools       []ToolSchema
}

// Response is sendMessage's return shape.
type Response struct {
	Content     string
	TokensUsed  int
	Model       string
	ToolCalls   []ToolCall
}

// Client is the LLM-facing port the chat orchestrator depends on.
type Client interface {
	SendMessage(ctx context.Context, messages []Message, opts Options) (*Response, error)
}

// HTTPClient targets an OpenAI-compatible /chat/completions endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	provider   string
}

func NewHTTPClient(baseURL, apiKey, provider string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiKey:   apiKey,
		provider: provider,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatCompletionRequest struct {
	Model       string       `json:"model"`
	Messages    []Message    `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature float64      `json:"temperature,omitempty"`
	Tools       []ToolSchema `json:"tools,omitempty"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			ToolCalls []ToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *HTTPClient) SendMessage(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	reqBody := chatCompletionRequest{
		Model:       opts.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Tools:       opts.Tools,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apierr.NewInternal("failed to encode chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, apierr.NewInternal("failed to build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newLLMError(c.provider, err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newLLMError(c.provider, "failed to read response body: "+err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := newLLMError(c.provider, fmt.Sprintf("upstream returned HTTP %d: %s", resp.StatusCode, string(respBody)))
		err.httpStatus = resp.StatusCode
		return nil, err
	}

	var parsed chatCompletionResponse
	if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr != nil {
		return nil, newLLMError(c.provider, "failed to decode chat response: "+jsonErr.Error())
	}
	if len(parsed.Choices) == 0 {
		return nil, newLLMError(c.provider, "chat response contained no choices")
	}

	choice := parsed.Choices[0]
	return &Response{
		Content:    choice.Message.Content,
		TokensUsed: parsed.Usage.TotalTokens,
		Model:      parsed.Model,
		ToolCalls:  choice.Message.ToolCalls,
	}, nil
}

// LLMError is the wire-level upstream failure (spec.md §4.6), distinguished
// from apierr.Error so the retry layer can inspect httpStatus without
// coupling to the HTTP transport's status code directly.
type LLMError struct {
	Provider   string
	Message    string
	httpStatus int
}

func newLLMError(provider, message string) *LLMError {
	return &LLMError{Provider: provider, Message: message}
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm error (%s): %s", e.Provider, e.Message)
}

// RetryConfig mirrors spec.md §4.6's withRetry parameters.
type RetryConfig struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

var DefaultRetryConfig = RetryConfig{
	MaxRetries:        3,
	InitialDelay:      time.Second,
	MaxDelay:          10 * time.Second,
	BackoffMultiplier: 2,
}

var retryableStatuses = map[int]bool{429: true, 500: true, 502: true, 503: true, 504: true}

var retryableSubstrings = []string{
	"rate limit", "network", "connection", "econnrefused", "enotfound",
	"etimedout", "timeout", "fetch failed", "socket hang up",
}

// IsRetryableError implements spec.md §4.6's isRetryableError predicate.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var llmErr *LLMError
	if e, ok := err.(*LLMError); ok {
		llmErr = e
	}
	if llmErr != nil && llmErr.httpStatus != 0 && retryableStatuses[llmErr.httpStatus] {
		return true
	}

	if isTimeoutOrAbort(err) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isTimeoutOrAbort checks for the two named error kinds
// (AbortError/TimeoutError) via the standard context/net timeout
// interfaces, since Go doesn't carry JS-style error "names".
func isTimeoutOrAbort(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok && t.Timeout() {
		return true
	}
	return err == context.DeadlineExceeded || err == context.Canceled
}

// WithRetry retries fn using the classification and backoff curve from
// spec.md §4.6, returning the last error unretried when it is not
// classified retryable.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (*Response, error)) (*Response, error) {
	var resp *Response

	op := func() error {
		r, err := fn(ctx)
		if err == nil {
			resp = r
			return nil
		}
		if !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := newBoundedExponential(cfg)
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(cfg.MaxRetries)), ctx))
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// boundedExponential implements backoff.BackOff with spec.md §4.6's exact
// delay formula (min(maxDelay, initialDelay * multiplier^attempt) plus
// small jitter) rather than cenkalti/backoff's default curve, so retry
// timing matches the pinned contract.
type boundedExponential struct {
	cfg     RetryConfig
	attempt int
}

func newBoundedExponential(cfg RetryConfig) *boundedExponential {
	return &boundedExponential{cfg: cfg}
}

func (b *boundedExponential) NextBackOff() time.Duration {
	delay := float64(b.cfg.InitialDelay) * math.Pow(b.cfg.BackoffMultiplier, float64(b.attempt))
	if maxDelay := float64(b.cfg.MaxDelay); delay > maxDelay {
		delay = maxDelay
	}
	b.attempt++
	jitter := time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
	return time.Duration(delay) + jitter
}

func (b *boundedExponential) Reset() {
	b.attempt = 0
}
