package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jerrsapps1/opssync/internal/model"
)

// Wire error kinds returned in mutation failure payloads.
const (
	errKindNotFound = "NotFound"
	errKindConflict = "Conflict"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header.
func (s *Server) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/entities", s.handleCreateEntity)
	mux.HandleFunc("GET /v1/entities", s.handleListEntities)
	mux.HandleFunc("GET /v1/entities/{kind}/{id}", s.handleGetEntity)
	mux.HandleFunc("PATCH /v1/entities/{kind}/{id}/assignment", s.handleAssign)
	mux.HandleFunc("POST /v1/entities/{kind}/{id}/archive", s.handleArchiveEntity)
	mux.HandleFunc("POST /v1/entities/{kind}/{id}/restore", s.handleRestoreEntity)
	mux.HandleFunc("DELETE /v1/entities/{kind}/{id}", s.handleRemoveEntity)
	mux.HandleFunc("GET /v1/conflicts", s.handleConflicts)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	return AuthMiddleware(authToken, mux)
}

// handleHealth handles GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AuthMiddleware enforces bearer-token auth when token is non-empty.
// GET /v1/health stays open for load-balancer checks.
func AuthMiddleware(token string, next http.Handler) http.Handler {
	if token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && r.URL.Path == "/v1/health" {
			next.ServeHTTP(w, r)
			return
		}

		auth := r.Header.Get("Authorization")
		if auth == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "invalid authorization scheme")
			return
		}
		provided := strings.TrimPrefix(auth, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// mutationFailure is the wire shape for failed assignment mutations. For
// conflicts, CurrentValue carries the authoritative assignment so the client
// can re-render from truth.
type mutationFailure struct {
	ErrorKind    string            `json:"errorKind"`
	Error        string            `json:"error"`
	CurrentValue *model.Assignment `json:"currentValue,omitempty"`
	Version      int64             `json:"version,omitempty"`
}
