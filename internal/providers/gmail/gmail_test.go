package gmail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
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
			name: "missing client ID",
			config: &Config{
				ClientSecret: "test-client-secret",
				RedirectURL:  "https://example.com/oauth/callback",
			},
			wantErr: true,
		},
		{
			name: "missing client secret",
			config: &Config{
				ClientID:    "test-client-id",
				RedirectURL: "https://example.com/oauth/callback",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && provider != nil {
				if provider.httpClient == nil {
					t.Error("NewProvider() httpClient is nil")
				}
			}
		})
	}
}

func TestNewProvider_DefaultScopes(t *testing.T) {
	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://example.com/oauth/callback",
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	if len(provider.config.Scopes) != len(defaultScopes) {
		t.Errorf("Scopes = %v, want defaults %v", provider.config.Scopes, defaultScopes)
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

	if got := provider.Name(); got != "gmail" {
		t.Errorf("Name() = %q, want %q", got, "gmail")
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

	if !strings.HasPrefix(authURL, Endpoint.AuthURL) {
		t.Errorf("AuthorizationURL() = %q, want prefix %q", authURL, Endpoint.AuthURL)
	}

	q := parsed.Query()
	wantParams := map[string]string{
		"state":         "test-state",
		"client_id":     "test-client-id",
		"redirect_uri":  "https://example.com/oauth/callback",
		"response_type": "code",
		"access_type":   "online",
		"prompt":        "consent",
	}
	for key, want := range wantParams {
		if got := q.Get(key); got != want {
			t.Errorf("AuthorizationURL() param %s = %q, want %q", key, got, want)
		}
	}

	if scope := q.Get("scope"); !strings.Contains(scope, "gmail.modify") {
		t.Errorf("AuthorizationURL() scope %q missing gmail.modify", scope)
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

func TestProvider_ExchangeCode_Failure(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
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

	provider.config.Endpoint.TokenURL = server.URL + "/token"

	if _, err := provider.ExchangeCode(ctx, "bad-code"); err == nil {
		t.Error("ExchangeCode() expected error for rejected code")
	}
}

func TestProvider_FetchEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer test-access-token" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"email": "user@gmail.com",
		})
	}))
	defer server.Close()

	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://example.com/oauth/callback",
		HTTPClient: &http.Client{
			Transport: &mockTransport{server: server},
			Timeout:   5 * time.Second,
		},
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	email, err := provider.FetchEmail(context.Background(), "test-access-token")
	if err != nil {
		t.Fatalf("FetchEmail() error = %v", err)
	}

	if email != "user@gmail.com" {
		t.Errorf("FetchEmail() = %q, want %q", email, "user@gmail.com")
	}
}

func TestProvider_FetchEmail_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer server.Close()

	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://example.com/oauth/callback",
		HTTPClient: &http.Client{
			Transport: &mockTransport{server: server},
		},
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	if _, err := provider.FetchEmail(context.Background(), "bad-token"); err == nil {
		t.Error("FetchEmail() expected error for unauthorized token")
	}
}

func TestProvider_FetchEmail_MissingEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	provider, err := NewProvider(&Config{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "https://example.com/oauth/callback",
		HTTPClient: &http.Client{
			Transport: &mockTransport{server: server},
		},
	})
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}

	if _, err := provider.FetchEmail(context.Background(), "test-access-token"); err == nil {
		t.Error("FetchEmail() expected error for response without email")
	}
}

// mockTransport redirects userinfo requests to the test server.
type mockTransport struct {
	server *httptest.Server
}

func (m *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.Contains(req.URL.String(), "googleapis.com/oauth2/v2/userinfo") {
		testURL, _ := url.Parse(m.server.URL)
		req.URL = testURL
	}
	return http.DefaultTransport.RoundTrip(req)
}
