// Package mock provides a mock implementation of the Provider interface for
// testing.
package mock

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
)

// MockProvider is a mock implementation of the Provider interface for testing
type MockProvider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// DisplayNameFunc is called when DisplayName() is invoked
	DisplayNameFunc func() string

	// AuthorizationURLFunc is called when AuthorizationURL() is invoked
	AuthorizationURLFunc func(state string) string

	// ExchangeCodeFunc is called when ExchangeCode() is invoked
	ExchangeCodeFunc func(ctx context.Context, code string) (*oauth2.Token, error)

	// FetchEmailFunc is called when FetchEmail() is invoked
	FetchEmailFunc func(ctx context.Context, accessToken string) (string, error)

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	// mu protects CallCounts from concurrent access
	mu sync.RWMutex
}

// NewMockProvider creates a new mock provider with default implementations
func NewMockProvider() *MockProvider {
	return &MockProvider{
		CallCounts: make(map[string]int),
		NameFunc: func() string {
			return "gmail"
		},
		DisplayNameFunc: func() string {
			return "Mock Provider"
		},
		AuthorizationURLFunc: func(state string) string {
			return fmt.Sprintf("https://mock.example.com/authorize?state=%s&access_type=online&prompt=consent", state)
		},
		ExchangeCodeFunc: func(ctx context.Context, code string) (*oauth2.Token, error) {
			return &oauth2.Token{
				AccessToken: "mock-access-token",
				TokenType:   "Bearer",
			}, nil
		},
		FetchEmailFunc: func(ctx context.Context, accessToken string) (string, error) {
			return "mock@example.com", nil
		},
	}
}

// Name returns the provider identifier
func (m *MockProvider) Name() string {
	m.incrementCallCount("Name")
	return m.NameFunc()
}

// DisplayName returns the human-readable provider name
func (m *MockProvider) DisplayName() string {
	m.incrementCallCount("DisplayName")
	return m.DisplayNameFunc()
}

// AuthorizationURL generates the mock consent screen URL
func (m *MockProvider) AuthorizationURL(state string) string {
	m.incrementCallCount("AuthorizationURL")
	return m.AuthorizationURLFunc(state)
}

// ExchangeCode exchanges an authorization code for tokens
func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	m.incrementCallCount("ExchangeCode")
	return m.ExchangeCodeFunc(ctx, code)
}

// FetchEmail retrieves the mock user's email address
func (m *MockProvider) FetchEmail(ctx context.Context, accessToken string) (string, error) {
	m.incrementCallCount("FetchEmail")
	return m.FetchEmailFunc(ctx, accessToken)
}

// GetCallCount returns the number of times a method was called
func (m *MockProvider) GetCallCount(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CallCounts[method]
}

func (m *MockProvider) incrementCallCount(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCounts[method]++
}
