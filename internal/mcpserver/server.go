package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/spencerjireh/portfoliobridge/internal/content"
	"github.com/spencerjireh/portfoliobridge/internal/tools"
)

const protocolVersion = "2025-03-26"

// serverInfo is echoed back from initialize, per MCP's handshake.
type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

const serverName = "portfoliobridge-mcp"

var serverVersion = "0.1.0"

// Server is the transport-agnostic MCP core: tool dispatch, resource
// reads, and prompt rendering, identical across the stdio and
// streamable-HTTP transports (spec.md §4.9).
type Server struct {
	registry *tools.Registry
	repo     content.Repository
}

func NewServer(registry *tools.Registry, repo content.Repository) *Server {
	return &Server{registry: registry, repo: repo}
}

// Dispatch handles one parsed JSON-RPC request and returns its response, or
// nil for a notification (no id). authenticated gates write-tool calls
// (create_content/update_content/delete_content) per spec.md §4.9's bearer-
// auth convention; read tools, resources, and prompts never require it.
func (s *Server) Dispatch(ctx context.Context, req *JSONRPCRequest, authenticated bool) *JSONRPCResponse {
	var resp *JSONRPCResponse

	switch req.Method {
	case "initialize":
		resp = s.handleInitialize(req)
	case "ping":
		resp = newResult(req.ID, map[string]any{})
	case "tools/list":
		resp = newResult(req.ID, map[string]any{"tools": s.registry.List()})
	case "tools/call":
		resp = s.handleToolsCall(ctx, req, authenticated)
	case "resources/list":
		resp = newResult(req.ID, map[string]any{"resources": listResources()})
	case "resources/read":
		resp = s.handleResourcesRead(ctx, req)
	case "prompts/list":
		resp = newResult(req.ID, map[string]any{"prompts": listPrompts()})
	case "prompts/get":
		resp = s.handlePromptsGet(req)
	default:
		resp = newError(req.ID, CodeMethodNotFound, "method not found: "+req.Method, nil)
	}

	if req.IsNotification() {
		return nil
	}
	return resp
}

func (s *Server) handleInitialize(req *JSONRPCRequest) *JSONRPCResponse {
	return newResult(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo":      serverInfo{Name: serverName, Version: serverVersion},
		"capabilities": map[string]any{
			"tools":     map[string]any{},
			"resources": map[string]any{},
			"prompts":   map[string]any{},
		},
	})
}

type toolsCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolsCall(ctx context.Context, req *JSONRPCRequest, authenticated bool) *JSONRPCResponse {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error(), nil)
	}

	def, ok := s.registry.Get(params.Name)
	if !ok {
		return newError(req.ID, CodeMethodNotFound, "unknown tool: "+params.Name, nil)
	}
	if def.Access == tools.AccessWrite && !authenticated {
		return newError(req.ID, CodeInternalError, "write tools require a valid admin bearer token", nil)
	}

	result, err := s.registry.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		if te, ok := err.(*tools.Error); ok {
			return newError(req.ID, te.JSONRPCCode(), te.Message, te.DataJSON())
		}
		return newError(req.ID, CodeInternalError, err.Error(), nil)
	}
	return newResult(req.ID, map[string]any{"content": result})
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourcesRead(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	var params resourcesReadParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, CodeInvalidParams, "invalid resources/read params: "+err.Error(), nil)
	}

	rc, rerr := readResource(ctx, s.repo, params.URI)
	if rerr != nil {
		return newError(req.ID, rerr.Code, rerr.Message, nil)
	}
	return newResult(req.ID, map[string]any{"contents": []resourceContent{*rc}})
}

type promptsGetParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (s *Server) handlePromptsGet(req *JSONRPCRequest) *JSONRPCResponse {
	var params promptsGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return newError(req.ID, CodeInvalidParams, "invalid prompts/get params: "+err.Error(), nil)
	}

	msg, perr := getPrompt(params.Name, params.Arguments)
	if perr != nil {
		return newError(req.ID, perr.Code, perr.Message, nil)
	}
	return newResult(req.ID, map[string]any{"messages": []promptMessage{*msg}})
}
