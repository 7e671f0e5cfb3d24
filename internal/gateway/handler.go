package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/mailgate/internal/flow"
	"github.com/giantswarm/mailgate/internal/instrumentation"
	"github.com/giantswarm/mailgate/internal/providers"
	"github.com/giantswarm/mailgate/internal/security"
	"github.com/giantswarm/mailgate/internal/storage"
)

// DefaultCookieName is the session cookie handed to the browser after a
// successful callback.
const DefaultCookieName = "mailgate_session"

// defaultProvider is assumed when /oauth/authorize is called without a
// provider query parameter.
const defaultProvider = "gmail"

// Config carries the HTTP-boundary settings for the Handler.
type Config struct {
	// ServerURL is the externally visible base URL. Only its scheme
	// matters here: HSTS is emitted for https URLs.
	ServerURL string

	// CookieName overrides DefaultCookieName when non-empty.
	CookieName string

	// CookieSecure marks the session cookie Secure. Disable only for
	// local plain-HTTP development.
	CookieSecure bool

	// CookieSameSite defaults to http.SameSiteLaxMode, which still
	// permits the top-level provider redirect to carry the cookie.
	CookieSameSite http.SameSite

	// TrustProxy enables X-Forwarded-For parsing for client IPs.
	TrustProxy        bool
	TrustedProxyCount int
}

// Handler is a thin HTTP adapter over the flow.Controller. It owns
// request parsing, status codes, cookies and rate limiting; all OAuth
// semantics live in the controller.
type Handler struct {
	flow    *flow.Controller
	cfg     Config
	logger  *slog.Logger
	auditor *security.Auditor
	limiter *security.RateLimiter
	inst    *instrumentation.Instrumentation
	tracer  trace.Tracer
}

// NewHandler creates the HTTP adapter. The controller is required.
func NewHandler(controller *flow.Controller, cfg Config, logger *slog.Logger) (*Handler, error) {
	if controller == nil {
		return nil, fmt.Errorf("flow controller is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookieSameSite == 0 {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}

	return &Handler{
		flow:    controller,
		cfg:     cfg,
		logger:  logger,
		auditor: security.NewAuditor(logger, false),
	}, nil
}

// SetAuditor replaces the disabled default auditor.
func (h *Handler) SetAuditor(auditor *security.Auditor) {
	if auditor != nil {
		h.auditor = auditor
	}
}

// SetRateLimiter enables per-IP rate limiting on the OAuth endpoints.
func (h *Handler) SetRateLimiter(limiter *security.RateLimiter) {
	h.limiter = limiter
}

// SetInstrumentation enables HTTP metrics and tracing.
func (h *Handler) SetInstrumentation(inst *instrumentation.Instrumentation) {
	h.inst = inst
	if inst != nil {
		h.tracer = inst.Tracer("http")
	}
}

// ServeAuthorize handles GET /oauth/authorize. It issues a CSRF state
// and redirects the browser to the provider's consent screen.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "gateway.http.authorize")
		defer span.End()
	}

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics("authorize", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.cfg.ServerURL)

	clientIP := security.GetClientIP(r, h.cfg.TrustProxy, h.cfg.TrustedProxyCount)
	if !h.checkRateLimit(w, clientIP, "authorize") {
		h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusTooManyRequests, startTime)
		instrumentation.SetSpanError(span, "rate limit exceeded")
		return
	}

	providerName := r.URL.Query().Get("provider")
	if providerName == "" {
		providerName = defaultProvider
	}
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrProvider, providerName))

	authURL, err := h.flow.BeginAuthorization(ctx, providerName, clientIP)
	if err != nil {
		instrumentation.RecordError(span, err)
		switch {
		case errors.Is(err, providers.ErrProviderUnknown):
			h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusBadRequest, startTime)
			h.writeError(w, ErrorCodeUnknownProvider,
				fmt.Sprintf("unknown provider %q", providerName), http.StatusBadRequest)
		case errors.Is(err, providers.ErrProviderUnconfigured):
			h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusBadRequest, startTime)
			h.writeError(w, ErrorCodeProviderNotConfigured,
				fmt.Sprintf("provider %q is not configured", providerName), http.StatusBadRequest)
		default:
			h.logger.Error("Failed to start authorization", "error", err)
			h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusInternalServerError, startTime)
			h.writeError(w, ErrorCodeServerError,
				"failed to start authorization flow", http.StatusInternalServerError)
		}
		return
	}

	h.recordHTTPMetrics("authorize", http.MethodGet, http.StatusFound, startTime)
	instrumentation.SetSpanSuccess(span)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// ServeCallback handles GET /oauth/callback: the provider redirect
// carrying either an authorization code or an error. On success it sets
// the session cookie and sends the browser to the success page.
func (h *Handler) ServeCallback(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ctx := r.Context()

	var span trace.Span
	if h.tracer != nil {
		ctx, span = h.tracer.Start(ctx, "gateway.http.callback")
		defer span.End()
	}

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics("callback", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.cfg.ServerURL)

	clientIP := security.GetClientIP(r, h.cfg.TrustProxy, h.cfg.TrustedProxyCount)
	if !h.checkRateLimit(w, clientIP, "callback") {
		h.recordHTTPMetrics("callback", http.MethodGet, http.StatusTooManyRequests, startTime)
		instrumentation.SetSpanError(span, "rate limit exceeded")
		return
	}

	query := r.URL.Query()
	errorCode := query.Get("error")
	code := query.Get("code")
	state := query.Get("state")

	if errorCode == "" && (code == "" || state == "") {
		h.recordHTTPMetrics("callback", http.MethodGet, http.StatusBadRequest, startTime)
		instrumentation.SetSpanError(span, "missing code or state")
		h.writeError(w, ErrorCodeInvalidRequest,
			"code and state parameters are required", http.StatusBadRequest)
		return
	}

	session, err := h.flow.CompleteAuthorization(ctx, &flow.CallbackRequest{
		Code:      code,
		State:     state,
		ErrorCode: errorCode,
		ClientIP:  clientIP,
	})
	if err != nil {
		instrumentation.RecordError(span, err)

		var authErr *flow.AuthError
		if errors.As(err, &authErr) && authErr.Kind == flow.KindProviderDenied {
			// The user declined at the consent screen. Send the browser
			// to the human-readable error page rather than raw JSON.
			h.recordHTTPMetrics("callback", http.MethodGet, http.StatusFound, startTime)
			http.Redirect(w, r, "/oauth/error?error="+url.QueryEscape(errorCode), http.StatusFound)
			return
		}
		if errors.As(err, &authErr) {
			h.recordHTTPMetrics("callback", http.MethodGet, http.StatusBadRequest, startTime)
			h.writeError(w, authErr.Kind, authErr.Description, http.StatusBadRequest)
			return
		}

		h.logger.Error("Callback handling failed", "error", err)
		h.recordHTTPMetrics("callback", http.MethodGet, http.StatusInternalServerError, startTime)
		h.writeError(w, ErrorCodeServerError, "authorization failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.ID, int(h.flow.SessionTTL().Seconds())))

	h.recordHTTPMetrics("callback", http.MethodGet, http.StatusFound, startTime)
	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrProvider, session.Provider))
	instrumentation.SetSpanSuccess(span)
	http.Redirect(w, r, "/oauth/success", http.StatusFound)
}

// ServeAccounts handles GET /api/accounts. It runs behind WithSession,
// so reaching it implies a valid cookie; the response lists every
// active session held by the gateway.
func (h *Handler) ServeAccounts(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics("accounts", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.cfg.ServerURL)

	sessions, err := h.flow.ListSessions(r.Context())
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err)
		h.recordHTTPMetrics("accounts", http.MethodGet, http.StatusInternalServerError, startTime)
		h.writeError(w, ErrorCodeServerError, "failed to list accounts", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	accounts := make([]accountResponse, 0, len(sessions))
	for _, session := range sessions {
		accounts = append(accounts, accountResponse{
			SessionID:        session.ID,
			Provider:         session.Provider,
			UserEmail:        session.UserEmail,
			ExpiresInSeconds: int64(session.ExpiresIn(now).Seconds()),
		})
	}

	h.recordHTTPMetrics("accounts", http.MethodGet, http.StatusOK, startTime)
	h.writeJSON(w, http.StatusOK, accounts)
}

// ServeAccountDelete handles DELETE /api/accounts/{sessionId}:
// disconnect one account. 204 on removal, 404 when the session is
// absent or already lapsed.
func (h *Handler) ServeAccountDelete(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method != http.MethodDelete {
		h.recordHTTPMetrics("accounts", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.cfg.ServerURL)

	sessionID := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		h.recordHTTPMetrics("accounts", http.MethodDelete, http.StatusNotFound, startTime)
		h.writeError(w, ErrorCodeNotFound, "no such account", http.StatusNotFound)
		return
	}

	clientIP := security.GetClientIP(r, h.cfg.TrustProxy, h.cfg.TrustedProxyCount)
	err := h.flow.RemoveSession(r.Context(), sessionID, clientIP)
	switch {
	case err == nil:
		h.recordHTTPMetrics("accounts", http.MethodDelete, http.StatusNoContent, startTime)
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, storage.ErrSessionExpired):
		h.recordHTTPMetrics("accounts", http.MethodDelete, http.StatusNotFound, startTime)
		h.writeError(w, ErrorCodeNotFound, "no such account", http.StatusNotFound)
	default:
		h.logger.Error("Failed to remove session", "error", err)
		h.recordHTTPMetrics("accounts", http.MethodDelete, http.StatusInternalServerError, startTime)
		h.writeError(w, ErrorCodeServerError, "failed to disconnect account", http.StatusInternalServerError)
	}
}

// ServeStatus handles GET /oauth/status: the browser-facing
// authentication probe. Always 200; the body says whether the cookie
// maps to a live session and, if not, how to start one.
func (h *Handler) ServeStatus(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method != http.MethodGet {
		h.recordHTTPMetrics("status", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.cfg.ServerURL)

	bound, bindErr := h.Bind(r)
	if bindErr != nil {
		h.recordHTTPMetrics("status", http.MethodGet, http.StatusOK, startTime)
		h.writeJSON(w, http.StatusOK, statusResponse{
			Authenticated:      false,
			AvailableProviders: h.flow.Registry().Configured(),
			AuthURLs:           h.authURLs(),
		})
		return
	}

	h.recordHTTPMetrics("status", http.MethodGet, http.StatusOK, startTime)
	h.writeJSON(w, http.StatusOK, statusResponse{
		Authenticated:    true,
		Provider:         bound.Provider,
		Email:            bound.UserEmail,
		ExpiresInSeconds: int64(time.Until(bound.ExpiresAt).Seconds()),
	})
}

// ServeLogout handles POST /oauth/logout. It removes the bound session
// when one exists and always clears the cookie; logging out an already
// logged-out browser is not an error.
func (h *Handler) ServeLogout(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if r.Method != http.MethodPost {
		h.recordHTTPMetrics("logout", r.Method, http.StatusMethodNotAllowed, startTime)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	security.SetSecurityHeaders(w, h.cfg.ServerURL)

	if bound, bindErr := h.Bind(r); bindErr == nil {
		clientIP := security.GetClientIP(r, h.cfg.TrustProxy, h.cfg.TrustedProxyCount)
		if err := h.flow.RemoveSession(r.Context(), bound.SessionID, clientIP); err != nil &&
			!errors.Is(err, storage.ErrSessionNotFound) && !errors.Is(err, storage.ErrSessionExpired) {
			h.logger.Error("Failed to remove session on logout", "error", err)
		}
	}

	// Expire the cookie regardless of whether a session was bound.
	http.SetCookie(w, h.sessionCookie("", -1))

	h.recordHTTPMetrics("logout", http.MethodPost, http.StatusOK, startTime)
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ServeHealth handles GET /healthz.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// accountResponse is one entry in the GET /api/accounts listing. The
// access token is deliberately absent.
type accountResponse struct {
	SessionID        string `json:"sessionId"`
	Provider         string `json:"provider"`
	UserEmail        string `json:"userEmail"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

// statusResponse is the GET /oauth/status body.
type statusResponse struct {
	Authenticated      bool              `json:"authenticated"`
	Provider           string            `json:"provider,omitempty"`
	Email              string            `json:"email,omitempty"`
	ExpiresInSeconds   int64             `json:"expires_in_seconds,omitempty"`
	AvailableProviders []string          `json:"available_providers,omitempty"`
	AuthURLs           map[string]string `json:"auth_urls,omitempty"`
}

// sessionCookie builds the session cookie. maxAge -1 clears it.
func (h *Handler) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	}
}

// authURLs maps each configured provider to its local authorize URL so
// callers can restart the flow without further discovery.
func (h *Handler) authURLs() map[string]string {
	configured := h.flow.Registry().Configured()
	urls := make(map[string]string, len(configured))
	for _, name := range configured {
		urls[name] = "/oauth/authorize?provider=" + name
	}
	return urls
}

// checkRateLimit enforces the per-IP limiter. Returns false (response
// already written) when the request is over budget.
func (h *Handler) checkRateLimit(w http.ResponseWriter, clientIP, endpoint string) bool {
	if h.limiter == nil || h.limiter.Allow(clientIP) {
		return true
	}

	h.auditor.LogRateLimitExceeded(clientIP, endpoint)
	if h.inst != nil {
		h.inst.Metrics().RecordRateLimitExceeded(context.Background(), endpoint)
	}
	h.writeError(w, ErrorCodeRateLimitExceeded,
		"rate limit exceeded, try again later", http.StatusTooManyRequests)
	return false
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	h.writeJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) recordHTTPMetrics(endpoint, method string, status int, startTime time.Time) {
	if h.inst == nil {
		return
	}
	durationMs := time.Since(startTime).Seconds() * 1000
	h.inst.Metrics().RecordHTTPRequest(context.Background(), method, endpoint, status, durationMs)
}
