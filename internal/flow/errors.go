package flow

import "fmt"

// Authorization failure kinds. The callback handler maps these to the user
// facing error page; the audit log keeps the finer distinctions.
const (
	// KindProviderDenied means the provider reported an error in the
	// callback, typically because the user declined consent.
	KindProviderDenied = "provider_denied"

	// KindCSRFRejected means the state token was missing, unknown,
	// already used, or expired. Externally these cases are
	// indistinguishable.
	KindCSRFRejected = "csrf_rejected"

	// KindExchangeFailed means the authorization-code exchange with the
	// provider failed or returned no access token.
	KindExchangeFailed = "exchange_failed"
)

// AuthError represents a failed authorization attempt.
type AuthError struct {
	Kind        string // one of the Kind* constants
	Description string // human-readable description, safe for the error page
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// NewAuthError creates a new authorization error
func NewAuthError(kind, description string) *AuthError {
	return &AuthError{
		Kind:        kind,
		Description: description,
	}
}
