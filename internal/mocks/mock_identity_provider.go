package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/you/mimora/domain"
)

// ValidTestCode is accepted by the default MockIdentityProvider
const ValidTestCode = "123456"

// MockIdentityProvider implements domain.IdentityProvider interface for testing
type MockIdentityProvider struct {
	SendPhoneChallengeFunc    func(ctx context.Context, number string) (domain.ChallengeHandle, error)
	ConfirmPhoneChallengeFunc func(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.ProviderToken, error)
	SendEmailChallengeFunc    func(ctx context.Context, email, label string) (domain.ChallengeHandle, error)
	ConfirmEmailChallengeFunc func(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.ProviderToken, error)
	InteractiveLoginFunc      func(ctx context.Context, credential string) (*domain.ProviderToken, error)

	mu           sync.Mutex
	sendCalls    int
	confirmCalls int
	targets      map[domain.ChallengeHandle]string
}

// NewMockIdentityProvider creates a new MockIdentityProvider with default behaviors
func NewMockIdentityProvider() *MockIdentityProvider {
	return &MockIdentityProvider{targets: make(map[domain.ChallengeHandle]string)}
}

// SendPhoneChallenge dispatches a code to number
func (m *MockIdentityProvider) SendPhoneChallenge(ctx context.Context, number string) (domain.ChallengeHandle, error) {
	m.countSend()
	if m.SendPhoneChallengeFunc != nil {
		return m.SendPhoneChallengeFunc(ctx, number)
	}
	return m.remember(number), nil
}

// ConfirmPhoneChallenge checks code for handle
func (m *MockIdentityProvider) ConfirmPhoneChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.ProviderToken, error) {
	m.countConfirm()
	if m.ConfirmPhoneChallengeFunc != nil {
		return m.ConfirmPhoneChallengeFunc(ctx, handle, code)
	}
	return m.confirm(handle, code, domain.ChannelPhone)
}

// SendEmailChallenge dispatches a code to email
func (m *MockIdentityProvider) SendEmailChallenge(ctx context.Context, email, label string) (domain.ChallengeHandle, error) {
	m.countSend()
	if m.SendEmailChallengeFunc != nil {
		return m.SendEmailChallengeFunc(ctx, email, label)
	}
	return m.remember(email), nil
}

// ConfirmEmailChallenge checks code for handle
func (m *MockIdentityProvider) ConfirmEmailChallenge(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.ProviderToken, error) {
	m.countConfirm()
	if m.ConfirmEmailChallengeFunc != nil {
		return m.ConfirmEmailChallengeFunc(ctx, handle, code)
	}
	return m.confirm(handle, code, domain.ChannelEmail)
}

// InteractiveLogin runs the provider login
func (m *MockIdentityProvider) InteractiveLogin(ctx context.Context, credential string) (*domain.ProviderToken, error) {
	if m.InteractiveLoginFunc != nil {
		return m.InteractiveLoginFunc(ctx, credential)
	}
	// Default behavior: empty credential means the popup was closed
	if credential == "" {
		return nil, domain.ErrProviderCancelled
	}
	return &domain.ProviderToken{
		Raw:        "provider-token-oidc",
		Subject:    "oidc:" + credential,
		Channel:    "oidc",
		Identifier: credential,
		ExpiresAt:  time.Now().Add(15 * time.Minute),
	}, nil
}

// SendCalls returns how many challenges were dispatched
func (m *MockIdentityProvider) SendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalls
}

// ConfirmCalls returns how many confirmations were attempted
func (m *MockIdentityProvider) ConfirmCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.confirmCalls
}

func (m *MockIdentityProvider) countSend() {
	m.mu.Lock()
	m.sendCalls++
	m.mu.Unlock()
}

func (m *MockIdentityProvider) countConfirm() {
	m.mu.Lock()
	m.confirmCalls++
	m.mu.Unlock()
}

func (m *MockIdentityProvider) remember(target string) domain.ChallengeHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := domain.ChallengeHandle(fmt.Sprintf("handle-%d", m.sendCalls))
	m.targets[h] = target
	return h
}

func (m *MockIdentityProvider) confirm(handle domain.ChallengeHandle, code string, channel domain.Channel) (*domain.ProviderToken, error) {
	m.mu.Lock()
	target, ok := m.targets[handle]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrCodeExpired
	}
	if code != ValidTestCode {
		return nil, domain.ErrInvalidCode
	}
	return &domain.ProviderToken{
		Raw:        "provider-token-" + target,
		Subject:    string(channel) + ":" + target,
		Channel:    string(channel),
		Identifier: target,
		ExpiresAt:  time.Now().Add(15 * time.Minute),
	}, nil
}

// Compile-time interface compliance verification
var _ domain.IdentityProvider = (*MockIdentityProvider)(nil)
