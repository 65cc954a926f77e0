package mocks

import (
	"context"
	"sync"

	"github.com/you/mimora/domain"
)

// MockAuditLogger implements domain.AuditLogger and records every event
type MockAuditLogger struct {
	LogEventFunc func(ctx context.Context, event *domain.AuditEvent) error

	mu     sync.Mutex
	events []*domain.AuditEvent
}

// NewMockAuditLogger creates a new MockAuditLogger
func NewMockAuditLogger() *MockAuditLogger {
	return &MockAuditLogger{}
}

// LogEvent records event
func (m *MockAuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.LogEventFunc != nil {
		return m.LogEventFunc(ctx, event)
	}
	return nil
}

func (m *MockAuditLogger) LogOTPRequest(ctx context.Context, channel domain.Channel, target string, err error) error {
	ev := domain.NewAuditEvent(domain.OTPRequestEvent, "").WithTarget(channel, target).WithError(err)
	return m.LogEvent(ctx, ev)
}

func (m *MockAuditLogger) LogOTPVerification(ctx context.Context, channel domain.Channel, target string, success bool, errMsg string) error {
	typ := domain.OTPVerifyEvent
	if !success {
		typ = domain.OTPFailureEvent
	}
	ev := domain.NewAuditEvent(typ, "").WithTarget(channel, target)
	ev.Success = success
	ev.ErrorMsg = errMsg
	return m.LogEvent(ctx, ev)
}

func (m *MockAuditLogger) LogLogin(ctx context.Context, accountID string, role domain.Role, method string, success bool, errMsg string) error {
	typ := domain.UserLoginEvent
	if !success {
		typ = domain.UserLoginFailureEvent
	}
	ev := domain.NewAuditEvent(typ, accountID).WithMetadata("role", string(role)).WithMetadata("method", method)
	ev.Success = success
	ev.ErrorMsg = errMsg
	return m.LogEvent(ctx, ev)
}

func (m *MockAuditLogger) LogLogout(ctx context.Context, accountID, reason string) error {
	typ := domain.UserLogoutEvent
	if reason == "expired" {
		typ = domain.SessionExpiredEvent
	}
	return m.LogEvent(ctx, domain.NewAuditEvent(typ, accountID).WithMetadata("reason", reason))
}

func (m *MockAuditLogger) LogStepCompleted(ctx context.Context, accountID string, step domain.StepID, profileComplete bool) error {
	typ := domain.StepCompletedEvent
	if profileComplete {
		typ = domain.ProfileCompletedEvent
	}
	return m.LogEvent(ctx, domain.NewAuditEvent(typ, accountID).WithMetadata("step", string(step)))
}

func (m *MockAuditLogger) LogAccessAttempt(ctx context.Context, accountID, resource string, granted bool, reason string) error {
	typ := domain.AccessGrantedEvent
	if !granted {
		typ = domain.AccessDeniedEvent
	}
	ev := domain.NewAuditEvent(typ, accountID).WithMetadata("resource", resource).WithMetadata("reason", reason)
	ev.Success = granted
	return m.LogEvent(ctx, ev)
}

// Events returns recorded events
func (m *MockAuditLogger) Events() []*domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.AuditEvent(nil), m.events...)
}

// Count returns how many events of typ were recorded
func (m *MockAuditLogger) Count(typ domain.AuditEventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.EventType == typ {
			n++
		}
	}
	return n
}

// Compile-time interface compliance verification
var _ domain.AuditLogger = (*MockAuditLogger)(nil)
