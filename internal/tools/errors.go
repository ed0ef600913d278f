package tools

import (
	"encoding/json"
	"fmt"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
)

// Error is a structured tool-execution failure, distinct from apierr.Error
// since a tool failure can be fed back to the model as a normal tool result
// (spec.md §4.8) rather than always surfacing as a request-level failure.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode categorizes a tool failure for JSON-RPC translation.
type ErrorCode string

const (
	ErrCodeInvalidParams ErrorCode = "INVALID_PARAMS"
	ErrCodeValidation    ErrorCode = "VALIDATION"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
)

func NewError(code ErrorCode, message string, data map[string]any) *Error {
	return &Error{Code: code, Message: message, Data: data}
}

// FromAPIError maps an apierr.Error (as returned by the content repository
// and validation layer) onto the tool error vocabulary.
func FromAPIError(err error) error {
	if err == nil {
		return nil
	}
	apiErr, ok := apierr.As(err)
	if !ok {
		return NewError(ErrCodeInternal, err.Error(), nil)
	}

	switch apiErr.Kind {
	case apierr.KindValidation:
		data := map[string]any{}
		if len(apiErr.Fields) > 0 {
			data["fields"] = apiErr.Fields
		}
		return NewError(ErrCodeValidation, apiErr.Message, data)
	case apierr.KindNotFound:
		return NewError(ErrCodeNotFound, apiErr.Message, nil)
	case apierr.KindConflict:
		return NewError(ErrCodeConflict, apiErr.Message, nil)
	default:
		return NewError(ErrCodeInternal, apiErr.Message, nil)
	}
}

// JSONRPCCode maps a tool ErrorCode to the MCP-mirrored JSON-RPC error code
// from spec.md §4.9: -32602 Invalid params, -32001 Resource not found,
// -32002 Validation failed, -32603 Internal error (conflict is reported as
// an application-level internal error; it is not one of the pinned codes).
func (e *Error) JSONRPCCode() int {
	switch e.Code {
	case ErrCodeInvalidParams:
		return -32602
	case ErrCodeNotFound:
		return -32001
	case ErrCodeValidation:
		return -32002
	default:
		return -32603
	}
}

// DataJSON marshals the error's Data payload, or nil if there is none.
func (e *Error) DataJSON() json.RawMessage {
	if len(e.Data) == 0 {
		return nil
	}
	b, _ := json.Marshal(e.Data)
	return b
}
