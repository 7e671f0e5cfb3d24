// Package security provides security features for the gateway including
// audit logging, rate limiting, request correlation, and secure header
// management.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Auditor handles security event logging with PII protection.
// Email addresses are hashed before they hit the log stream; session and
// state tokens are never logged at all.
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		logger:  logger,
		enabled: enabled,
	}
}

// Event represents a security audit event
type Event struct {
	ID        string
	Type      string
	Provider  string
	UserEmail string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII. Each event gets a unique
// ID so downstream log pipelines can deduplicate and cross-reference.
func (a *Auditor) LogEvent(event Event) {
	if !a.enabled {
		return
	}

	event.ID = uuid.NewString()
	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_id", event.ID,
		"event_type", event.Type,
		"provider", event.Provider,
		"user_email_hash", hashForLogging(event.UserEmail),
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogAuthorizeStarted logs the start of an authorization flow
func (a *Auditor) LogAuthorizeStarted(provider, ipAddress string) {
	a.LogEvent(Event{
		Type:      "authorize_started",
		Provider:  provider,
		IPAddress: ipAddress,
	})
}

// LogCSRFRejected logs a callback rejected for a bad state token.
// The reason distinguishes "invalid" from "expired" even though the HTTP
// response collapses the two.
func (a *Auditor) LogCSRFRejected(reason, ipAddress string) {
	a.LogEvent(Event{
		Type:      "csrf_rejected",
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogProviderDenied logs a callback where the provider reported an error
func (a *Auditor) LogProviderDenied(provider, errorCode, ipAddress string) {
	a.LogEvent(Event{
		Type:      "provider_denied",
		Provider:  provider,
		IPAddress: ipAddress,
		Details: map[string]any{
			"error": errorCode,
		},
	})
}

// LogExchangeFailed logs a failed authorization-code exchange
func (a *Auditor) LogExchangeFailed(provider, ipAddress string) {
	a.LogEvent(Event{
		Type:      "exchange_failed",
		Provider:  provider,
		IPAddress: ipAddress,
	})
}

// LogSessionCreated logs a successful authentication and session creation
func (a *Auditor) LogSessionCreated(provider, userEmail, ipAddress string) {
	a.LogEvent(Event{
		Type:      "session_created",
		Provider:  provider,
		UserEmail: userEmail,
		IPAddress: ipAddress,
	})
}

// LogSessionRevoked logs an explicit session disconnect
func (a *Auditor) LogSessionRevoked(provider, userEmail, ipAddress string) {
	a.LogEvent(Event{
		Type:      "session_revoked",
		Provider:  provider,
		UserEmail: userEmail,
		IPAddress: ipAddress,
	})
}

// LogRateLimitExceeded logs a rate limit violation
func (a *Auditor) LogRateLimitExceeded(ipAddress, endpoint string) {
	a.LogEvent(Event{
		Type:      "rate_limit_exceeded",
		IPAddress: ipAddress,
		Details: map[string]any{
			"endpoint": endpoint,
		},
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
