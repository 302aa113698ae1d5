// Package server exposes the dashboard's HTTP JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/kalshiboard/internal/domain"
	"github.com/alanyoungcy/kalshiboard/internal/server/handler"
	"github.com/alanyoungcy/kalshiboard/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	AdminKey      string // if empty, /api/refresh is open
	RefreshLimit  int    // per client per RefreshWindow; 0 disables
	RefreshWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health  *handler.HealthHandler
	Status  *handler.StatusHandler
	Markets *handler.MarketHandler
}

// Server is the HTTP API server for the market dashboard.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter may be nil, in which case refresh calls are not rate limited.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Category endpoints. The literal "upstream" segment takes precedence
	// over the {name} wildcard.
	mux.HandleFunc("GET /api/categories", handlers.Markets.ListCategories)
	mux.HandleFunc("GET /api/categories/upstream", handlers.Markets.UpstreamCategories)
	mux.HandleFunc("GET /api/categories/{name}/markets", handlers.Markets.TopMarkets)
	mux.HandleFunc("GET /api/categories/{name}/events", handlers.Markets.TopEvents)

	// Market endpoints.
	mux.HandleFunc("GET /api/markets/{ticker}", handlers.Markets.GetMarket)

	// Cache refresh: per-client rate limit, then admin key. Rejected keys
	// still count against the limit.
	var refresh http.Handler = http.HandlerFunc(handlers.Markets.Refresh)
	refresh = middleware.AdminKey(cfg.AdminKey)(refresh)
	if limiter != nil && cfg.RefreshLimit > 0 {
		refresh = middleware.RateLimit(limiter, "refresh", cfg.RefreshLimit, cfg.RefreshWindow, logger)(refresh)
	}
	mux.Handle("POST /api/refresh", refresh)

	// Build the middleware chain.
	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.RequestID()(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: starting",
		slog.String("addr", ln.Addr().String()),
	)
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
