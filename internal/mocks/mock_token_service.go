package mocks

import (
	"strings"
	"time"

	"github.com/you/mimora/domain"
)

// MockTokenService implements domain.TokenService interface for testing
type MockTokenService struct {
	IssueProviderTokenFunc    func(subject string, channel domain.Channel, identifier string) (*domain.ProviderToken, error)
	ValidateProviderTokenFunc func(raw string) (*domain.ProviderToken, error)
	IssueSessionTokenFunc     func(accountID string, role domain.Role) (string, error)
	ValidateSessionTokenFunc  func(raw string) (*domain.TokenClaims, error)
	ExpiryOfFunc              func(raw string) (time.Time, error)
}

// NewMockTokenService creates a new MockTokenService with default behaviors
func NewMockTokenService() *MockTokenService {
	return &MockTokenService{}
}

// IssueProviderToken mints a provider token
func (m *MockTokenService) IssueProviderToken(subject string, channel domain.Channel, identifier string) (*domain.ProviderToken, error) {
	if m.IssueProviderTokenFunc != nil {
		return m.IssueProviderTokenFunc(subject, channel, identifier)
	}
	return &domain.ProviderToken{
		Raw:        "provider:" + string(channel) + ":" + identifier,
		Subject:    subject,
		Channel:    string(channel),
		Identifier: identifier,
		ExpiresAt:  time.Now().Add(15 * time.Minute),
	}, nil
}

// ValidateProviderToken parses a provider token
func (m *MockTokenService) ValidateProviderToken(raw string) (*domain.ProviderToken, error) {
	if m.ValidateProviderTokenFunc != nil {
		return m.ValidateProviderTokenFunc(raw)
	}
	// Default behavior: accept tokens minted by IssueProviderToken
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] != "provider" {
		return nil, domain.ErrTokenInvalid
	}
	return &domain.ProviderToken{
		Raw:        raw,
		Subject:    parts[1] + ":" + parts[2],
		Channel:    parts[1],
		Identifier: parts[2],
		ExpiresAt:  time.Now().Add(15 * time.Minute),
	}, nil
}

// IssueSessionToken mints a session token
func (m *MockTokenService) IssueSessionToken(accountID string, role domain.Role) (string, error) {
	if m.IssueSessionTokenFunc != nil {
		return m.IssueSessionTokenFunc(accountID, role)
	}
	return "session:" + string(role) + ":" + accountID, nil
}

// ValidateSessionToken parses a session token
func (m *MockTokenService) ValidateSessionToken(raw string) (*domain.TokenClaims, error) {
	if m.ValidateSessionTokenFunc != nil {
		return m.ValidateSessionTokenFunc(raw)
	}
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 || parts[0] != "session" {
		return nil, domain.ErrTokenInvalid
	}
	now := time.Now()
	return &domain.TokenClaims{
		AccountID: parts[2],
		Role:      domain.Role(parts[1]),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
	}, nil
}

// ExpiryOf returns the exp claim of raw
func (m *MockTokenService) ExpiryOf(raw string) (time.Time, error) {
	if m.ExpiryOfFunc != nil {
		return m.ExpiryOfFunc(raw)
	}
	// Default behavior: any non-empty token is valid for another hour
	if raw == "" {
		return time.Time{}, domain.ErrTokenMalformed
	}
	return time.Now().Add(time.Hour), nil
}

// Compile-time interface compliance verification
var _ domain.TokenService = (*MockTokenService)(nil)
