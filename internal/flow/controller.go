// Package flow implements the OAuth authorization flow: issuing redirects
// to provider consent screens and turning provider callbacks into
// authenticated sessions.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/giantswarm/mailgate/internal/instrumentation"
	"github.com/giantswarm/mailgate/internal/providers"
	"github.com/giantswarm/mailgate/internal/security"
	"github.com/giantswarm/mailgate/internal/storage"
)

// DefaultSessionTTL is the session lifetime when none is configured.
const DefaultSessionTTL = time.Hour

// PlaceholderEmail is recorded when the provider's userinfo endpoint
// cannot be reached after a successful token exchange. Authentication
// itself succeeded, so the session is still created.
const PlaceholderEmail = "unknown@example.com"

// Controller drives the authorization flow against the provider registry
// and the session and state stores.
type Controller struct {
	registry *providers.Registry
	sessions storage.SessionStore
	states   storage.StateStore

	sessionTTL time.Duration

	auditor *security.Auditor
	logger  *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer
}

// Config holds the controller's dependencies and settings.
type Config struct {
	Registry *providers.Registry
	Sessions storage.SessionStore
	States   storage.StateStore

	// SessionTTL bounds every session's lifetime. Zero or negative means
	// DefaultSessionTTL.
	SessionTTL time.Duration

	Auditor *security.Auditor
	Logger  *slog.Logger
}

// NewController creates a flow controller.
func NewController(cfg *Config) (*Controller, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("provider registry is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.States == nil {
		return nil, fmt.Errorf("state store is required")
	}

	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	auditor := cfg.Auditor
	if auditor == nil {
		auditor = security.NewAuditor(logger, false)
	}

	return &Controller{
		registry:   cfg.Registry,
		sessions:   cfg.Sessions,
		states:     cfg.States,
		sessionTTL: sessionTTL,
		auditor:    auditor,
		logger:     logger,
	}, nil
}

// SetInstrumentation sets OpenTelemetry instrumentation for the controller
func (c *Controller) SetInstrumentation(inst *instrumentation.Instrumentation) {
	c.instrumentation = inst
	if inst != nil {
		c.tracer = inst.Tracer("flow")
	}
}

// SessionTTL returns the configured session lifetime.
func (c *Controller) SessionTTL() time.Duration {
	return c.sessionTTL
}

// Registry returns the provider registry the controller resolves against.
func (c *Controller) Registry() *providers.Registry {
	return c.registry
}

// BeginAuthorization starts an authorization flow for the named provider.
// It issues a fresh CSRF state and returns the provider consent URL to
// redirect the user to. Provider resolution errors
// (providers.ErrProviderUnknown, providers.ErrProviderUnconfigured) pass
// through unchanged.
func (c *Controller) BeginAuthorization(ctx context.Context, providerName, clientIP string) (string, error) {
	ctx, span := c.startFlowSpan(ctx, "begin_authorization")
	defer span.End()

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProvider, providerName))

	provider, err := c.registry.Resolve(providerName)
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", err
	}

	state, err := c.states.Issue(ctx, providerName)
	if err != nil {
		instrumentation.RecordError(span, err)
		return "", fmt.Errorf("failed to issue state: %w", err)
	}

	authURL := provider.AuthorizationURL(state)

	c.auditor.LogAuthorizeStarted(providerName, clientIP)
	if c.instrumentation != nil {
		c.instrumentation.Metrics().RecordAuthorizationStarted(ctx, providerName)
	}

	c.logger.Info("Authorization flow started", "provider", providerName)
	instrumentation.SetSpanSuccess(span)

	return authURL, nil
}

// CallbackRequest carries the provider callback parameters.
type CallbackRequest struct {
	// Code is the authorization code, empty when the provider reported an
	// error.
	Code string

	// State is the CSRF state token echoed by the provider.
	State string

	// ErrorCode is the provider's error parameter, e.g. "access_denied".
	ErrorCode string

	// ClientIP is the caller's address for audit logging.
	ClientIP string
}

// CompleteAuthorization finishes an authorization flow: it consumes the
// CSRF state, exchanges the code, resolves the user's email, and creates a
// session. All failures come back as *AuthError.
func (c *Controller) CompleteAuthorization(ctx context.Context, req *CallbackRequest) (*storage.Session, error) {
	ctx, span := c.startFlowSpan(ctx, "complete_authorization")
	defer span.End()

	// Provider-reported errors short-circuit before the state is touched,
	// matching the order the parameters are produced in: a denied consent
	// screen never issued a code.
	if req.ErrorCode != "" {
		c.auditor.LogProviderDenied("", req.ErrorCode, req.ClientIP)
		err := NewAuthError(KindProviderDenied, fmt.Sprintf("provider reported %q", req.ErrorCode))
		instrumentation.RecordError(span, err)
		return nil, err
	}

	providerName, err := c.states.Consume(ctx, req.State)
	if err != nil {
		reason := "invalid"
		if errors.Is(err, storage.ErrStateExpired) {
			reason = "expired"
		}
		// The reason stays in the audit trail; the returned error is the
		// same either way so callers cannot probe which states exist.
		c.auditor.LogCSRFRejected(reason, req.ClientIP)
		if c.instrumentation != nil {
			c.instrumentation.Metrics().RecordCSRFRejected(ctx, reason)
		}
		authErr := NewAuthError(KindCSRFRejected, "invalid or expired state token")
		instrumentation.RecordError(span, authErr)
		return nil, authErr
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrProvider, providerName))

	provider, err := c.registry.Resolve(providerName)
	if err != nil {
		// The state named a provider that has since been deconfigured.
		c.auditor.LogExchangeFailed(providerName, req.ClientIP)
		authErr := NewAuthError(KindExchangeFailed, "provider no longer available")
		instrumentation.RecordError(span, authErr)
		return nil, authErr
	}

	token, err := provider.ExchangeCode(ctx, req.Code)
	if err != nil || token == nil || token.AccessToken == "" {
		c.auditor.LogExchangeFailed(providerName, req.ClientIP)
		if c.instrumentation != nil {
			c.instrumentation.Metrics().RecordExchangeFailed(ctx, providerName)
			c.instrumentation.Metrics().RecordCallbackProcessed(ctx, providerName, false)
		}
		c.logger.Warn("Token exchange failed", "provider", providerName, "error", err)
		authErr := NewAuthError(KindExchangeFailed, "token exchange failed")
		instrumentation.RecordError(span, authErr)
		return nil, authErr
	}

	userEmail, err := provider.FetchEmail(ctx, token.AccessToken)
	if err != nil {
		// Userinfo is best effort: the exchange already proved the
		// authorization, so the session proceeds with a placeholder.
		c.logger.Warn("Could not fetch user email", "provider", providerName, "error", err)
		userEmail = PlaceholderEmail
	}

	now := time.Now()
	session := &storage.Session{
		ID:          oauth2.GenerateVerifier(),
		Provider:    providerName,
		UserEmail:   userEmail,
		AccessToken: token.AccessToken,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.sessionTTL),
	}

	if err := c.sessions.Create(ctx, session); err != nil {
		authErr := NewAuthError(KindExchangeFailed, "failed to create session")
		instrumentation.RecordError(span, authErr)
		return nil, authErr
	}

	c.auditor.LogSessionCreated(providerName, userEmail, req.ClientIP)
	if c.instrumentation != nil {
		c.instrumentation.Metrics().RecordSessionCreated(ctx, providerName)
		c.instrumentation.Metrics().RecordCallbackProcessed(ctx, providerName, true)
	}

	c.logger.Info("Authorization completed",
		"provider", providerName,
		"expires_at", session.ExpiresAt)
	instrumentation.SetSpanSuccess(span)

	return session, nil
}

// RemoveSession deletes a session by ID, e.g. for an explicit disconnect.
// Returns storage.ErrSessionNotFound if no such session exists, or
// storage.ErrSessionExpired if it had already lapsed (and was evicted).
func (c *Controller) RemoveSession(ctx context.Context, sessionID, clientIP string) error {
	ctx, span := c.startFlowSpan(ctx, "remove_session")
	defer span.End()

	session, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		instrumentation.RecordError(span, err)
		return err
	}

	if err := c.sessions.Remove(ctx, sessionID); err != nil {
		instrumentation.RecordError(span, err)
		return err
	}

	c.auditor.LogSessionRevoked(session.Provider, session.UserEmail, clientIP)
	if c.instrumentation != nil {
		c.instrumentation.Metrics().RecordSessionRemoved(ctx, "disconnect")
	}

	c.logger.Info("Session removed", "provider", session.Provider)
	instrumentation.SetSpanSuccess(span)
	return nil
}

// ListSessions returns all active sessions.
func (c *Controller) ListSessions(ctx context.Context) ([]*storage.Session, error) {
	return c.sessions.List(ctx)
}

// GetSession returns the active session for an ID. It passes through the
// store's error: storage.ErrSessionNotFound for an absent ID,
// storage.ErrSessionExpired for one past its deadline.
func (c *Controller) GetSession(ctx context.Context, sessionID string) (*storage.Session, error) {
	return c.sessions.Get(ctx, sessionID)
}

func (c *Controller) startFlowSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if c.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return c.tracer.Start(ctx, fmt.Sprintf("flow.%s", operation))
}
