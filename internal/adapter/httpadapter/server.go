package httpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
	"github.com/couchcryptid/storm-lightning-service/internal/engine"
)

// maxStrikeBody bounds the size of a strike POST body.
const maxStrikeBody = 64 << 10

// Engine is the subset of *engine.Engine the HTTP surface needs.
type Engine interface {
	sharedobs.ReadinessChecker
	IngestRaw(ctx context.Context, raw domain.RawStrike) error
	Status() engine.Status
}

// Server exposes health, readiness, metrics, strike ingest and status endpoints.
type Server struct {
	httpServer *http.Server
	engine     Engine
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics,
// POST /api/v1/strikes and GET /api/v1/status routes.
func NewServer(addr string, eng Engine, clock clockwork.Clock, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine: eng,
		clock:  clock,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(eng))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("POST /api/v1/strikes", s.handleStrike)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleStrike(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStrikeBody))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	raw := domain.RawStrike{Value: body, Timestamp: s.clock.Now()}
	if err := s.engine.IngestRaw(r.Context(), raw); err != nil {
		s.logger.Debug("rejected strike over http", "error", err)
		sharedobs.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, s.engine.Status())
}
