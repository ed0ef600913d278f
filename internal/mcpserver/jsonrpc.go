// Package mcpserver implements the MCP Session Manager from spec.md §4.9:
// a transport-agnostic JSON-RPC core shared by the stdio entrypoint
// (cmd/mcpstdio) and the streamable-HTTP transport mounted under /mcp,
// adapted from the teacher's mcpserver/server package (whose session
// map/reaper and SSE framing carried over; its JSON-RPC envelope and
// dispatch never compiled in the copied tree and are rebuilt here against
// this spec's tool/resource/prompt surface).
package mcpserver

import "encoding/json"

// JSONRPCVersion is the only version this server accepts or emits.
const JSONRPCVersion = "2.0"

// JSONRPCRequest is an incoming JSON-RPC 2.0 request or notification (no id).
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id, and therefore
// expects no response per the JSON-RPC spec.
func (r *JSONRPCRequest) IsNotification() bool {
	return len(r.ID) == 0
}

// JSONRPCResponse is the envelope for both successful results and errors.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError is the error member of a JSONRPCResponse.
type JSONRPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Pinned protocol error codes (spec.md §4.9).
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeResourceNotFound = -32001
	CodeValidationFailed = -32002
)

func newResult(id json.RawMessage, result any) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

func newError(id json.RawMessage, code int, message string, data json.RawMessage) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: JSONRPCVersion, ID: id, Error: &JSONRPCError{
		Code: code, Message: message, Data: data,
	}}
}
