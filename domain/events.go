package domain

import (
	"context"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Verification events
	OTPRequestEvent AuditEventType = "OTP_REQUESTED"
	OTPVerifyEvent  AuditEventType = "OTP_VERIFIED"
	OTPFailureEvent AuditEventType = "OTP_VERIFICATION_FAILED"

	// Session events
	UserLoginEvent        AuditEventType = "USER_LOGIN"
	UserLoginFailureEvent AuditEventType = "USER_LOGIN_FAILED"
	UserLogoutEvent       AuditEventType = "USER_LOGOUT"
	SessionExpiredEvent   AuditEventType = "SESSION_EXPIRED"

	// Onboarding events
	StepCompletedEvent    AuditEventType = "ONBOARDING_STEP_COMPLETED"
	ProfileCompletedEvent AuditEventType = "PROFILE_COMPLETED"

	// Authorization events
	AccessGrantedEvent AuditEventType = "ACCESS_GRANTED"
	AccessDeniedEvent  AuditEventType = "ACCESS_DENIED"
)

// AuditEvent represents a business event that occurred in the system
type AuditEvent struct {
	EventType AuditEventType         `json:"event_type"`
	ClientID  string                 `json:"client_id,omitempty"`
	AccountID string                 `json:"account_id,omitempty"`
	Email     string                 `json:"email,omitempty"`
	Phone     string                 `json:"phone,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	ErrorMsg  string                 `json:"error_msg,omitempty"`
	Success   bool                   `json:"success"`
}

// AuditLogger defines operations for audit logging
type AuditLogger interface {
	// LogEvent logs a generic audit event
	LogEvent(ctx context.Context, event *AuditEvent) error

	// Verification specific events
	LogOTPRequest(ctx context.Context, channel Channel, target string, err error) error
	LogOTPVerification(ctx context.Context, channel Channel, target string, success bool, errMsg string) error

	// Session specific events
	LogLogin(ctx context.Context, accountID string, role Role, method string, success bool, errMsg string) error
	LogLogout(ctx context.Context, accountID, reason string) error

	// Onboarding specific events
	LogStepCompleted(ctx context.Context, accountID string, step StepID, profileComplete bool) error

	// Authorization specific events
	LogAccessAttempt(ctx context.Context, accountID, resource string, granted bool, reason string) error
}

// ClientContext represents client information extracted from HTTP request
type ClientContext struct {
	ClientID  string
	IPAddress string
	UserAgent string
}

type clientContextKey struct{}

// WithClientContext stores client information on ctx
func WithClientContext(ctx context.Context, cc *ClientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, cc)
}

// ClientContextFrom returns the client information stored on ctx, if any
func ClientContextFrom(ctx context.Context) *ClientContext {
	cc, _ := ctx.Value(clientContextKey{}).(*ClientContext)
	return cc
}

// NewAuditEvent creates a new audit event with common fields populated
func NewAuditEvent(eventType AuditEventType, accountID string) *AuditEvent {
	return &AuditEvent{
		EventType: eventType,
		AccountID: accountID,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]interface{}),
		Success:   true,
	}
}

// WithError sets error information on the audit event
func (e *AuditEvent) WithError(err error) *AuditEvent {
	if err == nil {
		return e
	}
	e.Success = false
	e.ErrorMsg = err.Error()
	return e
}

// WithEmail sets the email field
func (e *AuditEvent) WithEmail(email string) *AuditEvent {
	e.Email = email
	return e
}

// WithPhone sets the phone field
func (e *AuditEvent) WithPhone(phone string) *AuditEvent {
	e.Phone = phone
	return e
}

// WithTarget sets the email or phone field depending on channel
func (e *AuditEvent) WithTarget(channel Channel, target string) *AuditEvent {
	if channel == ChannelEmail {
		return e.WithEmail(target)
	}
	return e.WithPhone(target)
}

// WithClientContext sets client context information
func (e *AuditEvent) WithClientContext(ctx *ClientContext) *AuditEvent {
	if ctx != nil {
		e.ClientID = ctx.ClientID
		e.IPAddress = ctx.IPAddress
		e.UserAgent = ctx.UserAgent
	}
	return e
}

// WithMetadata adds metadata to the event
func (e *AuditEvent) WithMetadata(key string, value interface{}) *AuditEvent {
	e.Metadata[key] = value
	return e
}
