// Package server exposes the bot's HTTP and WebSocket API: offer and fill
// inspection, maker-side offer management, preflight dry-runs, and health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/meridianxyz/fillbot/internal/domain"
	"github.com/meridianxyz/fillbot/internal/server/handler"
	"github.com/meridianxyz/fillbot/internal/server/middleware"
	"github.com/meridianxyz/fillbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimitPerMinute caps requests per client IP when a limiter is
	// provided. Zero disables HTTP rate limiting.
	RateLimitPerMinute int
	RateLimiter        domain.RateLimiter
}

// Handlers aggregates the HTTP handlers the server registers. Offers and
// Fills may be nil in modes that run without the corresponding service; their
// routes are simply not registered.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Offers   *handler.OfferHandler
	Fills    *handler.FillHandler
	Pipeline *handler.PipelineHandler
}

// Server is the headless HTTP + WebSocket API server for the fill bot.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (CORS, logging, rate limit, auth) applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check bypasses nothing: it runs through the same chain so a
	// probe also exercises auth when a key is configured.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	if handlers.Offers != nil {
		mux.HandleFunc("GET /api/offers", handlers.Offers.ListOffers)
		mux.HandleFunc("POST /api/offers", handlers.Offers.CreateOffer)
		mux.HandleFunc("GET /api/offers/{id}", handlers.Offers.GetOffer)
		mux.HandleFunc("DELETE /api/offers/{id}", handlers.Offers.CancelOffer)
	}

	if handlers.Fills != nil {
		mux.HandleFunc("GET /api/fills", handlers.Fills.ListFills)
		mux.HandleFunc("POST /api/fills", handlers.Fills.ExecuteFill)
		mux.HandleFunc("GET /api/fills/{id}", handlers.Fills.GetFill)
		mux.HandleFunc("POST /api/fills/preflight", handlers.Fills.Preflight)
		if handlers.Offers != nil {
			mux.HandleFunc("GET /api/offers/{id}/fills", handlers.Fills.ListByOffer)
		}
	}

	if handlers.Pipeline != nil {
		mux.HandleFunc("POST /api/pipeline/scrape", handlers.Pipeline.TriggerScrape)
		mux.HandleFunc("POST /api/pipeline/archive", handlers.Pipeline.TriggerArchive)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.RateLimiter != nil && cfg.RateLimitPerMinute > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimitPerMinute, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
