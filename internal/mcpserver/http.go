package mcpserver

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/spencerjireh/portfoliobridge/internal/auth"
)

// sessionHeader is the header name MCP's streamable-HTTP transport uses to
// bind a request to a session (spec.md §4.9). net/http canonicalizes
// header names on both read and write, so the exact casing used here
// doesn't matter to callers.
const sessionHeader = "Mcp-Session-Id"

// HTTPTransport mounts the MCP streamable-HTTP transport under a single
// path (spec.md §4.9): POST for JSON-RPC requests, GET for a
// server-initiated-notification SSE stream, DELETE to tear a session down.
type HTTPTransport struct {
	server         *Server
	sessions       *SessionManager
	adminSecret    string
	devMode        bool
	allowedOrigins []string
}

func NewHTTPTransport(server *Server, sessions *SessionManager, adminSecret string, devMode bool, allowedOrigins []string) *HTTPTransport {
	return &HTTPTransport{
		server: server, sessions: sessions, adminSecret: adminSecret,
		devMode: devMode, allowedOrigins: allowedOrigins,
	}
}

func (t *HTTPTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !t.validateOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodPost:
		t.handlePost(w, r)
	case http.MethodGet:
		t.handleGet(w, r)
	case http.MethodDelete:
		t.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// validateOrigin guards against DNS-rebinding attacks on the local
// streamable-HTTP endpoint: a request carrying an Origin header must match
// one of the configured allowed origins. Non-browser clients (no Origin
// header at all) and deployments with no allowlist configured pass
// through unchecked.
func (t *HTTPTransport) validateOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(t.allowedOrigins) == 0 {
		return true
	}
	for _, o := range t.allowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (t *HTTPTransport) isAuthenticated(r *http.Request) bool {
	token := auth.BearerToken(r)
	if token == "" {
		return false
	}
	return auth.ValidateAdminToken(token, t.adminSecret) == nil
}

func (t *HTTPTransport) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeRPCError(w, nil, CodeParseError, "failed to read request body")
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPCError(w, nil, CodeParseError, "invalid JSON-RPC request: "+err.Error())
		return
	}
	if req.JSONRPC != JSONRPCVersion {
		writeRPCError(w, req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\"")
		return
	}

	sessionID := r.Header.Get(sessionHeader)

	if req.Method == "initialize" && sessionID == "" {
		sess := t.sessions.Create()
		w.Header().Set(sessionHeader, sess.ID)
		t.respond(w, r, &req)
		return
	}

	if sessionID == "" {
		writeRPCError(w, req.ID, CodeInvalidRequest, "missing "+sessionHeader+" header")
		return
	}
	if _, ok := t.sessions.Get(sessionID); !ok {
		writeRPCError(w, req.ID, CodeInvalidRequest, "unknown or expired session")
		return
	}

	w.Header().Set(sessionHeader, sessionID)
	t.respond(w, r, &req)
}

func (t *HTTPTransport) respond(w http.ResponseWriter, r *http.Request, req *JSONRPCRequest) {
	resp := t.server.Dispatch(r.Context(), req, t.isAuthenticated(r))
	w.Header().Set("Content-Type", "application/json")
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("mcpserver: failed to encode response")
	}
}

func (t *HTTPTransport) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "missing "+sessionHeader+" header", http.StatusBadRequest)
		return
	}
	if _, ok := t.sessions.Get(sessionID); !ok {
		http.Error(w, "unknown or expired session", http.StatusNotFound)
		return
	}

	stream, err := NewSSEStream(r.Context(), w, sessionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer stream.Close()

	// This server emits no asynchronous notifications today; the stream
	// simply holds the connection open until the peer disconnects (reaping
	// or deleting the session does not close it), matching the teacher's
	// sse.go shape for when a
	// future notification source (e.g. content:updated) is wired in.
	<-r.Context().Done()
}

func (t *HTTPTransport) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "missing "+sessionHeader+" header", http.StatusBadRequest)
		return
	}
	if !t.sessions.Delete(sessionID) {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(newError(id, code, message, nil))
}
