package providers

import "errors"

var (
	// ErrProviderUnknown is returned when a provider name is not one the
	// gateway knows about at all.
	ErrProviderUnknown = errors.New("unknown provider")

	// ErrProviderUnconfigured is returned when a provider name is known but
	// no OAuth credentials were supplied for it.
	ErrProviderUnconfigured = errors.New("provider not configured")
)
