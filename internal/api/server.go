package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/cinema-bridge/internal/events"
	"github.com/mattjoyce/cinema-bridge/internal/journal"
	"github.com/mattjoyce/cinema-bridge/internal/protocol"
	"github.com/mattjoyce/cinema-bridge/internal/request"
)

// DefaultMaxBodyBytes caps the size of a call body.
const DefaultMaxBodyBytes = 64 << 10

// CallHandler answers method calls on the channel.
type CallHandler interface {
	HandleCall(ctx context.Context, call protocol.Call) protocol.Reply
}

// DispatchLister lists journaled calls, newest first.
type DispatchLister interface {
	List(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is the bearer token for every route except /healthz. Empty
	// disables auth.
	APIKey string
	// Channel is the method channel name served under /channels/.
	Channel string
	// Method and Aliases are advertised in /openapi.json.
	Method  string
	Aliases []string
	Domain  request.Domain

	MaxBodyBytes int64
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	handler   CallHandler
	journal   DispatchLister
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. journal and hub may be nil, which
// disables /dispatches and /events respectively.
func New(config Config, handler CallHandler, journal DispatchLister, hub *events.Hub, logger *slog.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    config,
		handler:   handler,
		journal:   journal,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// /events streams indefinitely; write deadlines are left to the client.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen, "channel", s.config.Channel)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	r.Group(func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		// Channel names contain slashes, e.g. cinema/termux.
		r.Post("/channels/*", s.handleCall)
		r.Get("/dispatches", s.handleDispatches)
		r.Get("/events", s.handleEvents)
		r.Get("/openapi.json", s.handleOpenAPI)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
