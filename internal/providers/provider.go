// Package providers defines the interface for email OAuth providers and the
// registry that resolves provider names to configured instances.
package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// Provider defines the interface for an email OAuth provider.
// Implementations exist for Gmail and Outlook.
type Provider interface {
	// Name returns the provider identifier (e.g., "gmail", "outlook")
	Name() string

	// DisplayName returns a human-readable provider name for UI rendering
	DisplayName() string

	// AuthorizationURL generates the URL to redirect users to the provider's
	// consent screen. The state is the CSRF token carried through the flow.
	//
	// The returned URL always requests online access with a forced consent
	// screen, so the provider never issues a refresh token.
	AuthorizationURL(state string) string

	// ExchangeCode exchanges an authorization code for tokens.
	// Returns standard oauth2.Token.
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchEmail retrieves the authenticated user's email address from the
	// provider's userinfo endpoint using the given access token.
	FetchEmail(ctx context.Context, accessToken string) (string, error)
}
