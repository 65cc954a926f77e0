package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/you/mimora/domain"
)

// MockOTPService implements domain.OTPService interface for testing
type MockOTPService struct {
	GenerateFunc  func(ctx context.Context, channel domain.Channel, target, label string) (*domain.OTPRequest, error)
	VerifyFunc    func(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.OTPRequest, error)
	CanResendFunc func(ctx context.Context, channel domain.Channel, target string) (bool, int64, error)

	mu       sync.Mutex
	seq      int
	requests map[domain.ChallengeHandle]*domain.OTPRequest
}

// NewMockOTPService creates a new MockOTPService with default behaviors
func NewMockOTPService() *MockOTPService {
	return &MockOTPService{requests: make(map[domain.ChallengeHandle]*domain.OTPRequest)}
}

// Generate records a request for target
func (m *MockOTPService) Generate(ctx context.Context, channel domain.Channel, target, label string) (*domain.OTPRequest, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, channel, target, label)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	req := &domain.OTPRequest{
		Handle:    domain.ChallengeHandle(fmt.Sprintf("otp-%d", m.seq)),
		Channel:   channel,
		Target:    target,
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}
	m.requests[req.Handle] = req
	return req, nil
}

// Verify accepts ValidTestCode for a known handle
func (m *MockOTPService) Verify(ctx context.Context, handle domain.ChallengeHandle, code string) (*domain.OTPRequest, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, handle, code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[handle]
	if !ok {
		return nil, domain.ErrCodeExpired
	}
	if code != ValidTestCode {
		req.Attempts++
		return nil, domain.ErrInvalidCode
	}
	delete(m.requests, handle)
	return req, nil
}

// CanResend always allows a resend by default
func (m *MockOTPService) CanResend(ctx context.Context, channel domain.Channel, target string) (bool, int64, error) {
	if m.CanResendFunc != nil {
		return m.CanResendFunc(ctx, channel, target)
	}
	return true, 0, nil
}

// Compile-time interface compliance verification
var _ domain.OTPService = (*MockOTPService)(nil)
