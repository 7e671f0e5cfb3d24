package gateway

// Error codes used in JSON error responses. The flow.AuthError kinds
// (provider_denied, csrf_rejected, exchange_failed) pass through as-is.
const (
	ErrorCodeInvalidRequest        = "invalid_request"
	ErrorCodeUnknownProvider       = "unknown_provider"
	ErrorCodeProviderNotConfigured = "provider_not_configured"
	ErrorCodeUnauthenticated       = "unauthenticated"
	ErrorCodeSessionExpired        = "session_expired"
	ErrorCodeNotFound              = "not_found"
	ErrorCodeRateLimitExceeded     = "rate_limit_exceeded"
	ErrorCodeServerError           = "server_error"
)
