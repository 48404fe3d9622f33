package console

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server provides HTTP endpoints for health monitoring and cache
// introspection.
type Server struct {
	console *Console
	server  *http.Server
}

// NewServer creates a new ops server.
func NewServer(c *Console, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		console: c,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/cache", s.handleCache)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	blocked, resumeAt := s.console.Gate().Blocked()

	response := map[string]any{
		"status":       "ok",
		"rate_limited": blocked,
	}
	if blocked {
		response["status"] = "throttled"
		response["resume_at"] = resumeAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.console.Store().Stats())
}
