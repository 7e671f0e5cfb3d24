package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mailgate/internal/config"
	"github.com/giantswarm/mailgate/internal/flow"
	"github.com/giantswarm/mailgate/internal/gateway"
	"github.com/giantswarm/mailgate/internal/instrumentation"
	"github.com/giantswarm/mailgate/internal/providers"
	"github.com/giantswarm/mailgate/internal/providers/gmail"
	"github.com/giantswarm/mailgate/internal/providers/outlook"
	"github.com/giantswarm/mailgate/internal/security"
	"github.com/giantswarm/mailgate/internal/storage/memory"
)

func newServeCmd() *cobra.Command {
	var (
		configPath       string
		debugMode        bool
		telemetryEnabled bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the OAuth session gateway",
		Long: `Start the HTTP gateway that drives the OAuth consent flow and holds
the resulting sessions in memory.

Provider credentials come from the config file or the environment:
  OAUTH_GMAIL_CLIENT_ID / OAUTH_GMAIL_CLIENT_SECRET
  OAUTH_OUTLOOK_CLIENT_ID / OAUTH_OUTLOOK_CLIENT_SECRET
  OAUTH_OUTLOOK_TENANT_ID (default "common")
  OAUTH_REDIRECT_URI (default http://localhost:8000/oauth/callback)

Session behavior:
  SESSION_TIMEOUT seconds (default 3600), COOKIE_SECURE (default true),
  COOKIE_SAMESITE (default lax). Sessions live in memory only and do
  not survive a restart; that is deliberate.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, debugMode, telemetryEnabled)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML config file (optional; environment variables still apply)")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&telemetryEnabled, "telemetry-enabled", false, "Enable OpenTelemetry metrics and tracing with a Prometheus /metrics endpoint")

	return cmd
}

func runServe(configPath string, debugMode, telemetryEnabled bool) error {
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Enabled:        telemetryEnabled || cfg.Telemetry.Enabled,
	})
	if err != nil {
		return fmt.Errorf("initialize instrumentation: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := inst.Shutdown(ctx); err != nil {
			logger.Error("Instrumentation shutdown failed", "error", err)
		}
	}()

	store := memory.New()
	store.SetLogger(logger)
	store.SetInstrumentation(inst)
	defer store.Stop()

	registry, err := buildRegistry(&cfg)
	if err != nil {
		return fmt.Errorf("configure providers: %w", err)
	}
	if len(registry.Configured()) == 0 {
		logger.Warn("No OAuth providers configured; every authorize request will fail",
			"hint", "set OAUTH_GMAIL_CLIENT_ID or OAUTH_OUTLOOK_CLIENT_ID")
	} else {
		logger.Info("OAuth providers configured", "providers", registry.Configured())
	}

	auditor := security.NewAuditor(logger, cfg.AuditEnabled())

	controller, err := flow.NewController(&flow.Config{
		Registry:   registry,
		Sessions:   store,
		States:     store,
		SessionTTL: cfg.SessionTTL(),
		Auditor:    auditor,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("create flow controller: %w", err)
	}
	controller.SetInstrumentation(inst)

	handler, err := gateway.NewHandler(controller, gateway.Config{
		ServerURL:         cfg.ServerURL(),
		CookieName:        cfg.Session.CookieName,
		CookieSecure:      cfg.CookieSecure(),
		CookieSameSite:    cfg.CookieSameSite(),
		TrustProxy:        cfg.Server.TrustProxy,
		TrustedProxyCount: cfg.Server.TrustedProxyCount,
	}, logger)
	if err != nil {
		return fmt.Errorf("create gateway handler: %w", err)
	}
	handler.SetAuditor(auditor)
	handler.SetInstrumentation(inst)

	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter := security.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, logger)
		defer limiter.Stop()
		handler.SetRateLimiter(limiter)
	}

	serverCfg := gateway.ServerConfig{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
	}
	if telemetryEnabled || cfg.Telemetry.Enabled {
		serverCfg.MetricsHandler = inst.PrometheusHandler()
	}
	server := gateway.NewServer(handler, serverCfg, logger)

	logger.Info("Starting mailgate",
		"addr", serverCfg.Addr,
		"session_ttl", cfg.SessionTTL(),
		"redirect_uri", cfg.OAuth.RedirectURI,
		"audit_logging", cfg.AuditEnabled(),
		"telemetry", telemetryEnabled || cfg.Telemetry.Enabled)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := server.Start(); err != nil {
			serverDone <- err
		}
	}()

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received, stopping gateway")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shut down gateway: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("gateway stopped with error: %w", err)
		}
	}

	logger.Info("Gateway stopped")
	return nil
}

// buildRegistry constructs one provider per set of configured
// credentials. Unconfigured providers stay out of the registry so the
// gateway can distinguish them from unknown ones.
func buildRegistry(cfg *config.Config) (*providers.Registry, error) {
	var configured []providers.Provider

	if cfg.OAuth.Gmail.Configured() {
		p, err := gmail.NewProvider(&gmail.Config{
			ClientID:     cfg.OAuth.Gmail.ClientID,
			ClientSecret: cfg.OAuth.Gmail.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURI,
		})
		if err != nil {
			return nil, fmt.Errorf("gmail: %w", err)
		}
		configured = append(configured, p)
	}

	if cfg.OAuth.Outlook.Configured() {
		p, err := outlook.NewProvider(&outlook.Config{
			ClientID:     cfg.OAuth.Outlook.ClientID,
			ClientSecret: cfg.OAuth.Outlook.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURI,
			TenantID:     cfg.OAuth.Outlook.TenantID,
		})
		if err != nil {
			return nil, fmt.Errorf("outlook: %w", err)
		}
		configured = append(configured, p)
	}

	return providers.NewRegistry(configured...)
}
