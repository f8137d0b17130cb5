// Package server exposes the read-only status API: health, ingestion state,
// bets, recent lifecycle events, the live event websocket and Prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/betbridge/internal/server/handler"
	"github.com/alanyoungcy/betbridge/internal/server/middleware"
	"github.com/alanyoungcy/betbridge/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port              int
	APIKey            string  // empty disables authentication
	RequestsPerSecond float64 // per client; zero disables rate limiting
	Burst             int
}

// Handlers are the endpoint handlers. Events, Live and Metrics may be nil.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Bets    *handler.BetHandler
	Events  *handler.EventHandler
	Live    *ws.Hub
	Metrics http.Handler
}

// Server is the HTTP status server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New registers the routes and wraps them in rate limiting, authentication
// and request logging. /api/health and /metrics skip authentication.
func New(cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)
	mux.HandleFunc("GET /api/bets", h.Bets.ListBets)
	mux.HandleFunc("GET /api/bets/{id}", h.Bets.GetBet)
	if h.Events != nil {
		mux.HandleFunc("GET /api/events", h.Events.ListEvents)
	}
	if h.Live != nil {
		mux.HandleFunc("GET /api/ws", h.Live.HandleWS)
	}
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	var limiter *middleware.ClientLimiter
	if cfg.RequestsPerSecond > 0 {
		limiter = middleware.NewClientLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}

	var root http.Handler = mux
	root = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(root)
	root = middleware.RateLimit(limiter)(root)
	root = middleware.Logging(logger)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           root,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
