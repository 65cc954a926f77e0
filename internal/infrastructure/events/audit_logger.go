package events

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"
	"github.com/you/mimora/domain"
)

// AuditLogger implements domain.AuditLogger by writing structured log lines
// and, when a publisher is set, mirroring each event to it as JSON
type AuditLogger struct {
	log       *logrus.Entry
	publisher domain.EventPublisher
	subject   string
}

// NewAuditLogger creates an audit logger. publisher may be nil.
func NewAuditLogger(log *logrus.Entry, publisher domain.EventPublisher, subject string) *AuditLogger {
	return &AuditLogger{
		log:       log.WithField("audit", true),
		publisher: publisher,
		subject:   subject,
	}
}

// LogEvent implements domain.AuditLogger
func (a *AuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	event.WithClientContext(domain.ClientContextFrom(ctx))

	fields := logrus.Fields{
		"event":   event.EventType,
		"success": event.Success,
	}
	if event.ClientID != "" {
		fields["client_id"] = event.ClientID
	}
	if event.AccountID != "" {
		fields["account_id"] = event.AccountID
	}
	if event.Email != "" {
		fields["email"] = event.Email
	}
	if event.Phone != "" {
		fields["phone"] = event.Phone
	}
	if event.ErrorMsg != "" {
		fields["error"] = event.ErrorMsg
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := a.log.WithFields(fields)
	if event.Success {
		entry.Info("audit event")
	} else {
		entry.Warn("audit event")
	}

	if a.publisher == nil {
		return nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := a.publisher.Publish(a.subject+"."+string(event.EventType), data); err != nil {
		a.log.WithError(err).Error("failed to publish audit event")
		return err
	}
	return nil
}

// LogOTPRequest implements domain.AuditLogger
func (a *AuditLogger) LogOTPRequest(ctx context.Context, channel domain.Channel, target string, err error) error {
	ev := domain.NewAuditEvent(domain.OTPRequestEvent, "").
		WithTarget(channel, target).
		WithMetadata("channel", string(channel)).
		WithError(err)
	return a.LogEvent(ctx, ev)
}

// LogOTPVerification implements domain.AuditLogger
func (a *AuditLogger) LogOTPVerification(ctx context.Context, channel domain.Channel, target string, success bool, errMsg string) error {
	typ := domain.OTPVerifyEvent
	if !success {
		typ = domain.OTPFailureEvent
	}
	ev := domain.NewAuditEvent(typ, "").WithTarget(channel, target).WithMetadata("channel", string(channel))
	ev.Success = success
	ev.ErrorMsg = errMsg
	return a.LogEvent(ctx, ev)
}

// LogLogin implements domain.AuditLogger
func (a *AuditLogger) LogLogin(ctx context.Context, accountID string, role domain.Role, method string, success bool, errMsg string) error {
	typ := domain.UserLoginEvent
	if !success {
		typ = domain.UserLoginFailureEvent
	}
	ev := domain.NewAuditEvent(typ, accountID).
		WithMetadata("role", string(role)).
		WithMetadata("method", method)
	ev.Success = success
	ev.ErrorMsg = errMsg
	return a.LogEvent(ctx, ev)
}

// LogLogout implements domain.AuditLogger. Reason "expired" is recorded as
// a session expiry.
func (a *AuditLogger) LogLogout(ctx context.Context, accountID, reason string) error {
	typ := domain.UserLogoutEvent
	if reason == "expired" {
		typ = domain.SessionExpiredEvent
	}
	return a.LogEvent(ctx, domain.NewAuditEvent(typ, accountID).WithMetadata("reason", reason))
}

// LogStepCompleted implements domain.AuditLogger
func (a *AuditLogger) LogStepCompleted(ctx context.Context, accountID string, step domain.StepID, profileComplete bool) error {
	typ := domain.StepCompletedEvent
	if profileComplete {
		typ = domain.ProfileCompletedEvent
	}
	return a.LogEvent(ctx, domain.NewAuditEvent(typ, accountID).WithMetadata("step", string(step)))
}

// LogAccessAttempt implements domain.AuditLogger
func (a *AuditLogger) LogAccessAttempt(ctx context.Context, accountID, resource string, granted bool, reason string) error {
	typ := domain.AccessGrantedEvent
	if !granted {
		typ = domain.AccessDeniedEvent
	}
	ev := domain.NewAuditEvent(typ, accountID).
		WithMetadata("resource", resource).
		WithMetadata("reason", reason)
	ev.Success = granted
	return a.LogEvent(ctx, ev)
}

var _ domain.AuditLogger = (*AuditLogger)(nil)
