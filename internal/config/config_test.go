package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultRedirectURI, cfg.OAuth.RedirectURI)
	assert.Equal(t, time.Hour, cfg.SessionTTL())
	assert.True(t, cfg.CookieSecure())
	assert.Equal(t, http.SameSiteLaxMode, cfg.CookieSameSite())
	assert.True(t, cfg.AuditEnabled())
	assert.False(t, cfg.OAuth.Gmail.Configured())
	assert.False(t, cfg.OAuth.Outlook.Configured())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  trustProxy: true
session:
  timeoutSeconds: 120
  cookieSecure: false
  cookieSameSite: strict
oauth:
  redirectUri: https://mail.example.com/oauth/callback
  gmail:
    clientId: gmail-client
    clientSecret: gmail-secret
  outlook:
    clientId: outlook-client
    clientSecret: outlook-secret
    tenantId: contoso
rateLimit:
  requestsPerSecond: 5
  burst: 10
telemetry:
  enabled: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Server.TrustProxy)
	assert.Equal(t, 2*time.Minute, cfg.SessionTTL())
	assert.False(t, cfg.CookieSecure())
	assert.Equal(t, http.SameSiteStrictMode, cfg.CookieSameSite())
	assert.Equal(t, "https://mail.example.com/oauth/callback", cfg.OAuth.RedirectURI)
	assert.Equal(t, "https://mail.example.com", cfg.ServerURL())
	assert.True(t, cfg.OAuth.Gmail.Configured())
	assert.Equal(t, "contoso", cfg.OutlookTenant())
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not a map"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  timeoutSeconds: 120
oauth:
  gmail:
    clientId: file-client
`), 0o600))

	t.Setenv("OAUTH_GMAIL_CLIENT_ID", "env-client")
	t.Setenv("OAUTH_GMAIL_CLIENT_SECRET", "env-secret")
	t.Setenv("OAUTH_OUTLOOK_CLIENT_ID", "env-outlook")
	t.Setenv("OAUTH_OUTLOOK_TENANT_ID", "fabrikam")
	t.Setenv("OAUTH_REDIRECT_URI", "https://gw.example.com/oauth/callback")
	t.Setenv("SESSION_TIMEOUT", "300")
	t.Setenv("PORT", "8443")
	t.Setenv("COOKIE_SECURE", "false")
	t.Setenv("COOKIE_SAMESITE", "none")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.OAuth.Gmail.ClientID)
	assert.Equal(t, "env-secret", cfg.OAuth.Gmail.ClientSecret)
	assert.Equal(t, "env-outlook", cfg.OAuth.Outlook.ClientID)
	assert.Equal(t, "fabrikam", cfg.OutlookTenant())
	assert.Equal(t, "https://gw.example.com/oauth/callback", cfg.OAuth.RedirectURI)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL())
	assert.Equal(t, 8443, cfg.Server.Port)
	assert.False(t, cfg.CookieSecure())
	assert.Equal(t, http.SameSiteNoneMode, cfg.CookieSameSite())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
		},
		{
			name:    "port too large",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
		},
		{
			name:    "zero session timeout",
			mutate:  func(c *Config) { c.Session.TimeoutSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "negative session timeout",
			mutate:  func(c *Config) { c.Session.TimeoutSeconds = -1 },
			wantErr: true,
		},
		{
			name:    "bad samesite mode",
			mutate:  func(c *Config) { c.Session.CookieSameSite = "sometimes" },
			wantErr: true,
		},
		{
			name:    "unparseable redirect URI",
			mutate:  func(c *Config) { c.OAuth.RedirectURI = "not a url" },
			wantErr: true,
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.RateLimit.RequestsPerSecond = -1 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOutlookTenant_Default(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultTenantID, cfg.OutlookTenant())
}

func TestServerURL_Explicit(t *testing.T) {
	cfg := Default()
	cfg.Server.ServerURL = "https://gateway.internal"
	assert.Equal(t, "https://gateway.internal", cfg.ServerURL())
}
