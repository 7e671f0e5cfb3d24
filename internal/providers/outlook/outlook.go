package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// DefaultTenant is the multi-tenant endpoint used when no tenant ID is
// configured.
const DefaultTenant = "common"

const userinfoURL = "https://graph.microsoft.com/v1.0/me"

// defaultScopes grant mailbox read/write/send access plus the user profile.
var defaultScopes = []string{
	"https://graph.microsoft.com/Mail.Read",
	"https://graph.microsoft.com/Mail.ReadWrite",
	"https://graph.microsoft.com/Mail.Send",
	"https://graph.microsoft.com/User.Read",
}

// Provider implements the providers.Provider interface for Outlook via
// Microsoft identity platform v2.0 endpoints.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// Config holds Outlook OAuth configuration
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// TenantID selects the Azure AD tenant. Empty means the "common"
	// multi-tenant endpoint.
	TenantID   string
	Scopes     []string
	HTTPClient *http.Client // Optional custom HTTP client
}

// NewProvider creates a new Outlook OAuth provider
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("client secret is required")
	}

	tenant := cfg.TenantID
	if tenant == "" {
		tenant = DefaultTenant
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     microsoft.AzureADEndpoint(tenant),
		},
		httpClient: httpClient,
	}, nil
}

// Name returns the provider identifier
func (p *Provider) Name() string {
	return "outlook"
}

// DisplayName returns the human-readable provider name
func (p *Provider) DisplayName() string {
	return "Microsoft / Outlook"
}

// AuthorizationURL generates the Microsoft consent screen URL.
// Online access with forced consent means no refresh token is issued.
func (p *Provider) AuthorizationURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode exchanges an authorization code for tokens
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	return token, nil
}

// FetchEmail retrieves the user's email address from Microsoft Graph.
// Graph reports the address in "mail" for mailbox-enabled accounts and
// falls back to "userPrincipalName" otherwise.
func (p *Provider) FetchEmail(ctx context.Context, accessToken string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	client := p.config.Client(ctx, &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build userinfo request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var userInfo struct {
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&userInfo); err != nil {
		return "", fmt.Errorf("failed to decode user info: %w", err)
	}

	if userInfo.Mail != "" {
		return userInfo.Mail, nil
	}
	if userInfo.UserPrincipalName != "" {
		return userInfo.UserPrincipalName, nil
	}

	return "", fmt.Errorf("userinfo response contained no email")
}
