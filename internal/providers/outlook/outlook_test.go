package outlook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: &Config{
				ClientID:     "test-client-id",
				ClientSecret: "test-client-secret",
				RedirectURL:  "https://example.com/oauth/callback",
			},
			wantErr: false,
		},
		{
			name: "valid config with tenant",
			config: &Config{
				ClientID:     "test-client-id",
				ClientSecret: "test-client-secret",
				RedirectURL:  "https://example.com/oauth/callback",
				TenantID:     "my-tenant-id",
			},
			wantErr: false,
		},
		{
			name: "missing client ID",
			config: &Config{
				ClientSecret: "test-client-secret",
			},
			wantErr: true,
		},
		{
			name: "missing client secret",
			config: &Config{
				ClientID: "test-client-id",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestProvider_Name(t *testing.T) {
	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://example.com/oauth/callback",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	if got := provider.Name(); got != "outlook" {
		t.Errorf("Name() = %q, want %q", got, "outlook")
	}
}

func TestProvider_TenantEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		tenantID   string
		wantTenant string
	}{
		{
			name:       "default to common",
			tenantID:   "",
			wantTenant: "common",
		},
		{
			name:       "explicit tenant",
			tenantID:   "contoso-tenant",
			wantTenant: "contoso-tenant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(&Config{
				ClientID:     "test-client-id",
				ClientSecret: "test-client-secret",
				RedirectURL:  "https://example.com/oauth/callback",
				TenantID:     tt.tenantID,
			})
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}

			wantPrefix := "https://login.microsoftonline.com/" + tt.wantTenant + "/"
			if !strings.HasPrefix(provider.config.Endpoint.AuthURL, wantPrefix) {
				t.Errorf("AuthURL = %q, want prefix %q", provider.config.Endpoint.AuthURL, wantPrefix)
			}
			if !strings.HasPrefix(provider.config.Endpoint.TokenURL, wantPrefix) {
				t.Errorf("TokenURL = %q, want prefix %q", provider.config.Endpoint.TokenURL, wantPrefix)
			}
		})
	}
}

func TestProvider_AuthorizationURL(t *testing.T) {
	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://example.com/oauth/callback",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	authURL := provider.AuthorizationURL("test-state")

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("AuthorizationURL() produced unparseable URL: %v", err)
	}

	q := parsed.Query()
	wantParams := map[string]string{
		"state":       "test-state",
		"client_id":   "test-client-id",
		"access_type": "online",
		"prompt":      "consent",
	}
	for key, want := range wantParams {
		if got := q.Get(key); got != want {
			t.Errorf("AuthorizationURL() param %s = %q, want %q", key, got, want)
		}
	}

	if scope := q.Get("scope"); !strings.Contains(scope, "Mail.Send") {
		t.Errorf("AuthorizationURL() scope %q missing Mail.Send", scope)
	}
}

func TestProvider_ExchangeCode(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form data", http.StatusBadRequest)
			return
		}

		if r.FormValue("code") != "test-code" {
			http.Error(w, "invalid code", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-access-token",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://example.com/oauth/callback",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	// Override endpoint for testing
	provider.config.Endpoint.TokenURL = server.URL + "/token"

	token, err := provider.ExchangeCode(ctx, "test-code")
	if err != nil {
		t.Fatalf("ExchangeCode() error = %v", err)
	}

	if token.AccessToken != "test-access-token" {
		t.Errorf("AccessToken = %q, want %q", token.AccessToken, "test-access-token")
	}
}

func TestProvider_FetchEmail(t *testing.T) {
	tests := []struct {
		name      string
		response  map[string]interface{}
		wantEmail string
		wantErr   bool
	}{
		{
			name: "mail field present",
			response: map[string]interface{}{
				"mail":              "user@contoso.com",
				"userPrincipalName": "user_contoso.com#EXT#@tenant.onmicrosoft.com",
			},
			wantEmail: "user@contoso.com",
		},
		{
			name: "fallback to userPrincipalName",
			response: map[string]interface{}{
				"mail":              nil,
				"userPrincipalName": "user@contoso.com",
			},
			wantEmail: "user@contoso.com",
		},
		{
			name:     "neither field present",
			response: map[string]interface{}{},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Header.Get("Authorization") != "Bearer test-access-token" {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			provider, err := NewProvider(&Config{
				ClientID:     "test-client-id",
				ClientSecret: "test-client-secret",
				RedirectURL:  "https://example.com/oauth/callback",
				HTTPClient: &http.Client{
					Transport: &graphTransport{server: server},
				},
			})
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}

			email, err := provider.FetchEmail(context.Background(), "test-access-token")
			if (err != nil) != tt.wantErr {
				t.Fatalf("FetchEmail() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && email != tt.wantEmail {
				t.Errorf("FetchEmail() = %q, want %q", email, tt.wantEmail)
			}
		})
	}
}

// graphTransport redirects Microsoft Graph requests to the test server.
type graphTransport struct {
	server *httptest.Server
}

func (g *graphTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.Contains(req.URL.String(), "graph.microsoft.com") {
		testURL, _ := url.Parse(g.server.URL)
		req.URL = testURL
	}
	return http.DefaultTransport.RoundTrip(req)
}
