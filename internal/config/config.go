// Package config loads the gateway configuration from an optional YAML
// file and environment variables. The environment wins over the file,
// which is how container deployments inject provider credentials
// without mounting secrets into config files.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither file nor environment set a value.
const (
	DefaultPort           = 8000
	DefaultRedirectURI    = "http://localhost:8000/oauth/callback"
	DefaultSessionTimeout = 3600
	DefaultCookieSameSite = "lax"
	DefaultTenantID       = "common"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port int `yaml:"port,omitempty"`

	// ServerURL is the externally visible base URL. Derived from the
	// redirect URI when empty.
	ServerURL string `yaml:"serverUrl,omitempty"`

	TrustProxy        bool `yaml:"trustProxy,omitempty"`
	TrustedProxyCount int  `yaml:"trustedProxyCount,omitempty"`
}

// SessionConfig holds session and cookie settings.
type SessionConfig struct {
	// TimeoutSeconds bounds every session's lifetime. There is no
	// sliding expiration; the deadline is fixed at creation.
	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty"`

	CookieName     string `yaml:"cookieName,omitempty"`
	CookieSecure   *bool  `yaml:"cookieSecure,omitempty"`
	CookieSameSite string `yaml:"cookieSameSite,omitempty"`
}

// OAuthConfig holds the redirect URI and per-provider credentials.
type OAuthConfig struct {
	RedirectURI string `yaml:"redirectUri,omitempty"`

	Gmail   ProviderCredentials `yaml:"gmail,omitempty"`
	Outlook ProviderCredentials `yaml:"outlook,omitempty"`
}

// ProviderCredentials is one provider's OAuth client registration. A
// provider is considered configured when ClientID is non-empty.
type ProviderCredentials struct {
	ClientID     string `yaml:"clientId,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`

	// TenantID only applies to outlook; empty means the multi-tenant
	// "common" endpoint.
	TenantID string `yaml:"tenantId,omitempty"`
}

// Configured reports whether credentials are present.
func (p ProviderCredentials) Configured() bool {
	return p.ClientID != ""
}

// RateLimitConfig bounds per-IP request rates on the OAuth endpoints.
type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requestsPerSecond,omitempty"`
	Burst             int `yaml:"burst,omitempty"`
}

// TelemetryConfig toggles OpenTelemetry metrics and tracing.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled,omitempty"`
	ServiceName string `yaml:"serviceName,omitempty"`
}

// AuditConfig toggles security audit logging.
type AuditConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

// Default returns the configuration used when no file and no
// environment overrides exist.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              DefaultPort,
			TrustedProxyCount: 1,
		},
		Session: SessionConfig{
			TimeoutSeconds: DefaultSessionTimeout,
			CookieSameSite: DefaultCookieSameSite,
		},
		OAuth: OAuthConfig{
			RedirectURI: DefaultRedirectURI,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "mailgate",
		},
	}
}

// Load reads the YAML file at path (skipped when path is empty or the
// file does not exist), applies environment overrides, and validates
// the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			// Fall through to environment-only configuration.
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv layers the environment variables over the file values,
// using the variable names the deployment tooling already sets.
func applyEnv(cfg *Config) {
	setString(&cfg.OAuth.Gmail.ClientID, "OAUTH_GMAIL_CLIENT_ID")
	setString(&cfg.OAuth.Gmail.ClientSecret, "OAUTH_GMAIL_CLIENT_SECRET")
	setString(&cfg.OAuth.Outlook.ClientID, "OAUTH_OUTLOOK_CLIENT_ID")
	setString(&cfg.OAuth.Outlook.ClientSecret, "OAUTH_OUTLOOK_CLIENT_SECRET")
	setString(&cfg.OAuth.Outlook.TenantID, "OAUTH_OUTLOOK_TENANT_ID")
	setString(&cfg.OAuth.RedirectURI, "OAUTH_REDIRECT_URI")
	setString(&cfg.Session.CookieSameSite, "COOKIE_SAMESITE")

	if v, ok := os.LookupEnv("SESSION_TIMEOUT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.TimeoutSeconds = n
		}
	}
	if v, ok := os.LookupEnv("PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v, ok := os.LookupEnv("COOKIE_SECURE"); ok {
		secure := v == "true" || v == "1" || v == "yes"
		cfg.Session.CookieSecure = &secure
	}
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

// Validate checks the assembled configuration. A gateway with zero
// configured providers is valid (it can only answer 400s) so local
// smoke tests do not need real credentials.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Session.TimeoutSeconds <= 0 {
		return fmt.Errorf("session timeout must be positive, got %d", c.Session.TimeoutSeconds)
	}
	switch c.Session.CookieSameSite {
	case "lax", "strict", "none":
	default:
		return fmt.Errorf("invalid cookieSameSite %q (want lax, strict or none)", c.Session.CookieSameSite)
	}
	if _, err := url.ParseRequestURI(c.OAuth.RedirectURI); err != nil {
		return fmt.Errorf("invalid redirect URI %q: %w", c.OAuth.RedirectURI, err)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	return nil
}

// SessionTTL returns the session timeout as a duration.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TimeoutSeconds) * time.Second
}

// CookieSecure defaults to true: plain-HTTP cookies are an opt-out.
func (c *Config) CookieSecure() bool {
	if c.Session.CookieSecure == nil {
		return true
	}
	return *c.Session.CookieSecure
}

// CookieSameSite maps the configured mode onto the http constant.
func (c *Config) CookieSameSite() http.SameSite {
	switch c.Session.CookieSameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// AuditEnabled defaults to true.
func (c *Config) AuditEnabled() bool {
	if c.Audit.Enabled == nil {
		return true
	}
	return *c.Audit.Enabled
}

// ServerURL returns the explicit server URL, or one derived from the
// redirect URI so HSTS decisions track the deployed scheme.
func (c *Config) ServerURL() string {
	if c.Server.ServerURL != "" {
		return c.Server.ServerURL
	}
	if u, err := url.Parse(c.OAuth.RedirectURI); err == nil {
		return u.Scheme + "://" + u.Host
	}
	return ""
}

// OutlookTenant returns the configured tenant or the multi-tenant
// default.
func (c *Config) OutlookTenant() string {
	if c.OAuth.Outlook.TenantID != "" {
		return c.OAuth.Outlook.TenantID
	}
	return DefaultTenantID
}
