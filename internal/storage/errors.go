package storage

import "errors"

// Sentinel errors returned by stores. Callers match with errors.Is; the
// distinction between an absent and an expired state is kept for audit
// logging even though the HTTP boundary collapses the two.
var (
	// ErrSessionNotFound indicates the session ID is not in the store.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session was found but its deadline
	// has passed. The store evicts it on access, so a repeat lookup yields
	// ErrSessionNotFound.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionExists indicates a Create collided with an existing ID.
	// With 256-bit random IDs this signals a broken ID source, not a
	// recoverable condition.
	ErrSessionExists = errors.New("session ID already exists")

	// ErrStateNotFound indicates the CSRF state token is absent, either
	// never issued or already consumed.
	ErrStateNotFound = errors.New("authorization state not found")

	// ErrStateExpired indicates the CSRF state token exceeded its TTL
	// before the callback arrived.
	ErrStateExpired = errors.New("authorization state expired")
)
