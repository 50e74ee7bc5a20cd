// Package api serves the read-only HTTP endpoints next to the WebSocket:
// health checks and a snapshot of connected sessions.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"rendezvous/internal/session"
)

// Registry is the read side of session.Registry.
type Registry interface {
	Sessions() []*session.Session
	SnapshotNames() []string
	GetStats() map[string]int
}

// Liveness reports whether the event loop is accepting work.
type Liveness interface {
	IsRunning() bool
}

type Server struct {
	registry Registry
	hub      Liveness
	router   *http.ServeMux
	logger   zerolog.Logger
}

func NewServer(registry Registry, hub Liveness, logger zerolog.Logger) *Server {
	s := &Server{
		registry: registry,
		hub:      hub,
		router:   http.NewServeMux(),
		logger:   logger.With().Str("component", "api").Logger(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.healthCheck))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.stats))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

type SessionInfo struct {
	ID         uint32 `json:"id"`
	Name       string `json:"name"`
	State      string `json:"state"`
	Connection string `json:"connection,omitempty"`
}

type StatsResponse struct {
	TotalConnections int           `json:"total_connections"`
	Named            int           `json:"named"`
	Users            []string      `json:"users"`
	Sessions         []SessionInfo `json:"sessions"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:      "ok",
		Connections: s.registry.GetStats()["total_connections"],
	}

	if s.hub != nil && !s.hub.IsRunning() {
		response.Status = "unavailable"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	s.encode(w, response)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	counts := s.registry.GetStats()
	sessions := s.registry.Sessions()

	response := StatsResponse{
		TotalConnections: counts["total_connections"],
		Named:            counts["named"],
		Users:            s.registry.SnapshotNames(),
		Sessions:         make([]SessionInfo, 0, len(sessions)),
	}
	for _, sess := range sessions {
		response.Sessions = append(response.Sessions, SessionInfo{
			ID:         sess.ID,
			Name:       sess.DisplayName(),
			State:      sess.State().String(),
			Connection: sess.ConnectionID(),
		})
	}

	w.WriteHeader(http.StatusOK)
	s.encode(w, response)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	s.encode(w, ErrorResponse{Error: message, Code: code})
}

func (s *Server) encode(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
