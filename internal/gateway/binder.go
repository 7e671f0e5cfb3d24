package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/giantswarm/mailgate/internal/storage"
	"github.com/giantswarm/mailgate/internal/util"
)

// BoundSession is the per-request view of an authenticated session. It
// is what downstream mail-operation handlers receive: valid for the
// duration of one request and never cached beyond it.
type BoundSession struct {
	SessionID   string
	Provider    string
	UserEmail   string
	AccessToken string
	ExpiresAt   time.Time
}

// BindError explains why a request could not be bound to a session.
// Code is ErrorCodeUnauthenticated for an absent or unknown cookie and
// ErrorCodeSessionExpired for one whose session lapsed; both responses
// carry the authorize URLs so the caller can restart the flow.
type BindError struct {
	Code        string
	Description string
}

type sessionContextKey struct{}

// WithBoundSession returns a context carrying the bound session.
func WithBoundSession(ctx context.Context, session *BoundSession) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, session)
}

// SessionFromContext retrieves the session bound by WithSession.
func SessionFromContext(ctx context.Context) (*BoundSession, bool) {
	session, ok := ctx.Value(sessionContextKey{}).(*BoundSession)
	return session, ok
}

// Bind resolves the session cookie on a request to a live session. An
// expired session is removed from the store as a side effect, so the
// next cleanup sweep has nothing left to do for it.
func (h *Handler) Bind(r *http.Request) (*BoundSession, *BindError) {
	cookie, err := r.Cookie(h.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, &BindError{
			Code:        ErrorCodeUnauthenticated,
			Description: "no session cookie; connect an email account first",
		}
	}

	session, err := h.flow.GetSession(r.Context(), cookie.Value)
	if err != nil {
		if errors.Is(err, storage.ErrSessionExpired) {
			// The store evicted the session on access.
			h.logger.Debug("Bound session expired",
				"session_prefix", util.SafeTruncate(cookie.Value, 8))
			if h.inst != nil {
				h.inst.Metrics().RecordSessionRemoved(r.Context(), "expired")
			}
			return nil, &BindError{
				Code:        ErrorCodeSessionExpired,
				Description: "session expired; connect the email account again",
			}
		}
		return nil, &BindError{
			Code:        ErrorCodeUnauthenticated,
			Description: "unknown session; connect an email account first",
		}
	}

	return &BoundSession{
		SessionID:   session.ID,
		Provider:    session.Provider,
		UserEmail:   session.UserEmail,
		AccessToken: session.AccessToken,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

// WithSession is middleware that requires a live session. On success
// the bound session is threaded through the request context; otherwise
// the request ends here with a 401 carrying the re-authorization URLs.
func (h *Handler) WithSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bound, bindErr := h.Bind(r)
		if bindErr != nil {
			h.writeUnauthenticated(w, bindErr)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithBoundSession(r.Context(), bound)))
	})
}

// writeUnauthenticated renders the structured 401 body. Every variant
// includes auth_urls: callers recover by restarting from
// /oauth/authorize, never by retrying the failed request.
func (h *Handler) writeUnauthenticated(w http.ResponseWriter, bindErr *BindError) {
	h.writeJSON(w, http.StatusUnauthorized, unauthenticatedResponse{
		Error:            bindErr.Code,
		ErrorDescription: bindErr.Description,
		AuthURLs:         h.authURLs(),
	})
}

type unauthenticatedResponse struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description"`
	AuthURLs         map[string]string `json:"auth_urls"`
}
