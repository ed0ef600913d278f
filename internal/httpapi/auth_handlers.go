package httpapi

import (
	"net/http"

	"github.com/spencerjireh/portfoliobridge/internal/auth"
)

// IssueMCPToken serves POST /api/v1/admin/mcp-token. It sits behind the same
// X-Admin-Key middleware as the rest of /api/v1/admin/*, so only an operator
// holding the admin secret can mint the short-lived bearer token an MCP
// client then presents as "Authorization: Bearer <token>" to reach write
// tools over the streamable-HTTP transport (auth.IssueAdminToken).
func (s *Server) IssueMCPToken(w http.ResponseWriter, r *http.Request) {
	token, err := auth.IssueAdminToken(s.AdminSecret)
	if err != nil {
		writeInternal(w, r, "failed to mint admin token", err, s.DevMode)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"tokenType": "Bearer",
		"expiresIn": int(auth.AdminTokenTTL.Seconds()),
	})
}
