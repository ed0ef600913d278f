package httpapi

import (
	"net/http"
)

// HealthLive serves /api/health and /api/health/live: a liveness probe that
// never touches the database, adapted from the teacher's equivalent
// no-dependency health endpoint.
func (s *Server) HealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthReady serves /ready: a readiness probe that confirms the database
// pool can actually serve a query, per spec.md §6.
func (s *Server) HealthReady(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	var one int
	if err := s.DB.QueryRow(r.Context(), "SELECT 1").Scan(&one); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
