// Package storage defines the contracts for holding authenticated mail
// sessions and the short-lived CSRF states that protect the OAuth flow.
// Records live in volatile memory only; nothing here is ever persisted.
package storage

import (
	"context"
	"time"
)

// Session is one authenticated, time-bounded grant of access to a single
// mail provider account. The access token is held in memory only and the
// expiry deadline is fixed at creation; there is no sliding expiration and
// no refresh-token path.
type Session struct {
	// ID is the opaque random session identifier. It is the primary key
	// and the value handed to the browser as a cookie.
	ID string

	// Provider is the identity provider this session was authorized
	// against (e.g. "gmail", "outlook").
	Provider string

	// UserEmail is the account email resolved once at creation from the
	// provider's user-info endpoint. Best effort: a placeholder when the
	// user-info call failed.
	UserEmail string

	// AccessToken is the short-lived bearer credential for the provider
	// API. Never logged, never serialized to API responses.
	AccessToken string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the session deadline has passed at the given
// instant. The comparison is exact: the deadline is this gateway's own
// wall-clock deadline, so once true it stays true.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// ExpiresIn returns the remaining lifetime at the given instant, floored
// at zero.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	if remaining := s.ExpiresAt.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// AuthState is a one-time CSRF token binding an authorization redirect to
// its callback. States older than StateTTL are invalid.
type AuthState struct {
	// State is the opaque random token sent to the provider and returned
	// in the callback.
	State string

	// Provider is the provider this authorization attempt targets.
	Provider string

	CreatedAt time.Time
}

// StateTTL is how long a CSRF state may be used after issuance.
const StateTTL = 5 * time.Minute

// IsExpired reports whether the state is older than StateTTL at the given
// instant.
func (a *AuthState) IsExpired(now time.Time) bool {
	return now.Sub(a.CreatedAt) > StateTTL
}

// SessionStore holds authenticated sessions. Implementations must make
// Create, Get, Remove, and List safe for concurrent use from many in-flight
// requests and the background cleanup sweep; each operation is atomic per
// key.
type SessionStore interface {
	// Create inserts a new session. An ID collision is an invariant
	// violation (the ID source carries 256 bits of entropy) and is
	// reported as ErrSessionExists.
	Create(ctx context.Context, session *Session) error

	// Get returns the session for the given ID. An absent ID yields
	// ErrSessionNotFound; a session past its deadline yields
	// ErrSessionExpired and is evicted, so the next lookup for the same
	// ID reports it as absent.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// Remove deletes a session. Removing an absent ID returns
	// ErrSessionNotFound.
	Remove(ctx context.Context, sessionID string) error

	// List returns all sessions that are not expired at call time.
	List(ctx context.Context) ([]*Session, error)
}

// StateStore issues and consumes one-time CSRF states.
type StateStore interface {
	// Issue generates a fresh random state bound to the provider and
	// returns the token.
	Issue(ctx context.Context, provider string) (string, error)

	// Consume atomically checks and deletes a state, returning the
	// provider it was issued for. Exactly one of two concurrent calls
	// for the same token can succeed. Returns ErrStateNotFound for an
	// absent token and ErrStateExpired for one past StateTTL (the entry
	// is deleted in both the success and expired cases).
	Consume(ctx context.Context, state string) (string, error)
}
