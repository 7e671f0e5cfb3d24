package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/giantswarm/mailgate/internal/security"
)

// ServerConfig carries listener settings for the gateway server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8000".
	Addr string

	// MetricsHandler, when set, is mounted at /metrics (the Prometheus
	// export from instrumentation.PrometheusHandler).
	MetricsHandler http.Handler
}

// Server wires the Handler onto an http.Server with the full route
// table and middleware chain, and supports graceful shutdown.
type Server struct {
	handler    *Handler
	cfg        ServerConfig
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer builds the gateway server around a ready Handler.
func NewServer(handler *Handler, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler: handler,
		cfg:     cfg,
		logger:  logger,
	}
}

// Routes returns the complete route table wrapped in the request-ID
// middleware. Exposed separately so tests can drive it with httptest.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// OAuth flow
	mux.HandleFunc("/oauth/authorize", s.handler.ServeAuthorize)
	mux.HandleFunc("/oauth/callback", s.handler.ServeCallback)
	mux.HandleFunc("/oauth/status", s.handler.ServeStatus)
	mux.HandleFunc("/oauth/logout", s.handler.ServeLogout)
	mux.HandleFunc("/oauth/success", s.handler.ServeSuccess)
	mux.HandleFunc("/oauth/error", s.handler.ServeError)

	// Account API. The listing requires a bound session; the delete
	// operates on an explicit session ID and answers 204 or 404.
	mux.Handle("/api/accounts", s.handler.WithSession(http.HandlerFunc(s.handler.ServeAccounts)))
	mux.HandleFunc("/api/accounts/", s.handler.ServeAccountDelete)

	mux.HandleFunc("/healthz", s.handler.ServeHealth)

	if s.cfg.MetricsHandler != nil {
		mux.Handle("/metrics", s.cfg.MetricsHandler)
	}

	return security.RequestIDMiddleware(mux)
}

// Start runs the listener until Shutdown is called or it fails. A
// graceful shutdown is reported as nil.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("Gateway listening", "addr", s.cfg.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting new connections and waits for in-flight
// requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
