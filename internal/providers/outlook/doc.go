// Package outlook provides the Outlook OAuth 2.0 provider implementation.
//
// This package implements the providers.Provider interface against the
// Microsoft identity platform v2.0 endpoints. The Azure AD tenant is
// configurable; the default is the "common" multi-tenant endpoint. Email
// retrieval goes through Microsoft Graph's /me resource.
package outlook
