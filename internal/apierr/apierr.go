// Package apierr defines the structured error kinds the core distinguishes
// and their mapping onto HTTP status codes.
package apierr

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// Kind is one of the semantic error categories the core surfaces.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindNotFound            Kind = "NOT_FOUND"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindConflict            Kind = "CONFLICT"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindUpstreamUnavailable Kind = "UPSTREAM_UNAVAILABLE"
	KindInternal            Kind = "INTERNAL"
)

// Error is the structured error type propagated out of core packages.
// Route handlers map Kind to an HTTP status exactly as spec.md §7 requires.
type Error struct {
	Kind       Kind
	Message    string
	Fields     map[string][]string // populated for KindValidation
	RetryAfter int                 // seconds, populated for KindRateLimited
	Provider   string              // populated for KindUpstreamUnavailable
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// StatusCode returns the HTTP status code for the error's kind.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func NewValidation(msg string, fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func NewNotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func NewUnauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NewConflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func NewRateLimited(retryAfter int) *Error {
	return &Error{Kind: KindRateLimited, Message: "rate limit exceeded", RetryAfter: retryAfter}
}

func NewUpstreamUnavailable(provider, msg string, cause error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Message: msg, Provider: provider, Cause: cause}
}

func NewInternal(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Cause: cause}
}

// wireBody is the error response envelope from spec.md §6: "{error: {code,
// message, requestId, fields?, retryAfter?, stack?}}".
type wireBody struct {
	Error wireError `json:"error"`
}

type wireError struct {
	Code       Kind                `json:"code"`
	Message    string              `json:"message"`
	RequestID  string              `json:"requestId"`
	Fields     map[string][]string `json:"fields,omitempty"`
	RetryAfter int                 `json:"retryAfter,omitempty"`
	Stack      string              `json:"stack,omitempty"`
}

// WriteHTTP writes err onto w as the standard error envelope, mapping Kind
// to its HTTP status and echoing the request id chi's middleware attached.
// devMode controls whether the cause's stack/message detail is included;
// production deployments must pass false per spec.md §7.
func WriteHTTP(w http.ResponseWriter, r *http.Request, err *Error, devMode bool) {
	body := wireBody{Error: wireError{
		Code:       err.Kind,
		Message:    err.Message,
		RequestID:  middleware.GetReqID(r.Context()),
		Fields:     err.Fields,
		RetryAfter: err.RetryAfter,
	}}
	if devMode && err.Cause != nil {
		body.Error.Stack = err.Cause.Error()
	}
	if err.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", err.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode())
	_ = json.NewEncoder(w).Encode(body)
}

// As reports whether err (or something it wraps) is an *Error, and returns it.
func As(err error) (*Error, bool) {
	ae, ok := err.(*Error)
	if ok {
		return ae, true
	}
	type unwrapper interface{ Unwrap() error }
	for u, ok := err.(unwrapper); ok; u, ok = err.(unwrapper) {
		err = u.Unwrap()
		if ae, ok := err.(*Error); ok {
			return ae, true
		}
	}
	return nil, false
}
