// Package httpserver provides the HTTP REST API of the reference service.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/acquisition"
	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/index"
	"github.com/helixir/reference-service/internal/repository"
)

// Acquirer runs acquisition requests. *acquisition.Pipeline satisfies it.
type Acquirer interface {
	Run(ctx context.Context, req acquisition.Request) (*domain.AcquisitionReport, error)
}

// LocationResolver finds an open access location for one paper. *oa.Resolver satisfies it.
type LocationResolver interface {
	Resolve(ctx context.Context, p *domain.Paper) *domain.ResolvedLocation
}

// Verifier checks the citations of a text. *citation.Engine satisfies it.
type Verifier interface {
	Verify(ctx context.Context, text string) (string, *domain.VerificationReport, error)
}

// Searcher queries the full-text index. *index.BleveIndex satisfies it.
type Searcher interface {
	Search(ctx context.Context, text string, limit int) ([]index.Hit, uint64, error)
}

// Deps groups the services behind the API. Verifier, Index and Ready are
// optional: endpoints whose service is missing answer 503.
type Deps struct {
	Papers   repository.PaperRepository
	Acquirer Acquirer
	Resolver LocationResolver
	Verifier Verifier
	Index    Searcher
	// Ready reports whether the store is reachable.
	Ready func(ctx context.Context) error
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
	validate   *validator.Validate
	logger     zerolog.Logger
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// NewServer creates a new HTTP server.
func NewServer(cfg Config, deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		deps:     deps,
		validate: newValidator(),
		logger:   logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(requestLogger(s.logger))
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/acquisitions", s.startAcquisition)
		r.Post("/resolutions", s.resolveLocation)
		r.Post("/verifications", s.verifyCitations)

		r.Get("/papers", s.listPapers)
		r.Get("/papers/wishlist", s.getWishlist)
		r.Get("/papers/search", s.searchPapers)
		r.Get("/papers/{paperID}", s.getPaper)
	})

	return r
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readinessHandler reports whether the store is reachable.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"store":  "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"store":  "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
