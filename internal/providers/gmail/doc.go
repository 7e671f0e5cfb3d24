// Package gmail provides the Gmail OAuth 2.0 provider implementation.
//
// This package implements the providers.Provider interface against Google's
// OAuth 2.0 authorization server. It supports:
//   - Authorization code flow with a server-issued CSRF state
//   - Email retrieval via Google's userinfo endpoint
//
// The provider always requests online access with a forced consent screen,
// so Google never issues a refresh token. Default scopes grant Gmail
// read/write/send access plus the user's email address.
//
// Example usage:
//
//	provider, err := gmail.NewProvider(&gmail.Config{
//	    ClientID:     os.Getenv("OAUTH_GMAIL_CLIENT_ID"),
//	    ClientSecret: os.Getenv("OAUTH_GMAIL_CLIENT_SECRET"),
//	    RedirectURL:  "http://localhost:8000/oauth/callback",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
package gmail
