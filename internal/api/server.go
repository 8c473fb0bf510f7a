// Package api exposes the medrag service over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/medrag/internal/config"
	"github.com/dgallion1/medrag/internal/llm"
	"github.com/dgallion1/medrag/internal/rag"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server.
type Server struct {
	router chi.Router
	system *rag.System
	claude *llm.ClaudeClient
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server. claude may be nil when
// the model client is a test fake; the stats endpoint then reports
// unavailable.
func NewServer(system *rag.System, claude *llm.ClaudeClient, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		system: system,
		claude: claude,
		log:    log,
		cfg:    cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints. With no API key configured the group is open.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/query", s.handleQuery)
		r.Post("/api/ingest", s.handleIngest)
		r.Get("/api/papers", s.handlePapers)
		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
