package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net"
	"net/http"

	"github.com/spencerjireh/portfoliobridge/internal/apierr"
	"github.com/spencerjireh/portfoliobridge/internal/chatorch"
)

type chatRequestBody struct {
	VisitorID string `json:"visitorId"`
	Message   string `json:"message"`
}

type chatResponseBody struct {
	SessionID  string `json:"sessionId"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	TokensUsed int    `json:"tokensUsed"`
}

// PostChat serves POST /api/v1/chat, the public chat endpoint backed by
// chatorch.Orchestrator.SendMessage (spec.md §4.8/§6).
func (s *Server) PostChat(w http.ResponseWriter, r *http.Request) {
	var body chatRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apierr.WriteHTTP(w, r, apierr.NewValidation("malformed request body", nil), s.DevMode)
		return
	}

	var ua *string
	if h := r.Header.Get("User-Agent"); h != "" {
		ua = &h
	}

	result, err := s.Chat.SendMessage(r.Context(), chatorch.SendMessageInput{
		VisitorID: body.VisitorID,
		IPHash:    hashClientIP(r),
		UserAgent: ua,
		Message:   body.Message,
	})
	if err != nil {
		if ae, ok := apierr.As(err); ok {
			apierr.WriteHTTP(w, r, ae, s.DevMode)
			return
		}
		apierr.WriteHTTP(w, r, apierr.NewInternal("chat request failed", err), s.DevMode)
		return
	}

	writeJSON(w, http.StatusOK, chatResponseBody{
		SessionID: result.SessionID, Role: result.Role, Content: result.Content, TokensUsed: result.TokensUsed,
	})
}

// hashClientIP derives the rate-limiter/session key from the request's
// remote address without retaining the raw IP, per spec.md §4.4's
// ipHash-keyed bucket.
func hashClientIP(r *http.Request) string {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip = fwd
	}
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])
}
