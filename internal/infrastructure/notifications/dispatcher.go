package notifications

import "github.com/you/mimora/domain"

// SMSSender delivers text messages
type SMSSender interface {
	SendSMS(to, message string) error
}

// EmailSender delivers email
type EmailSender interface {
	SendEmail(to, subject, body string) error
}

// Dispatcher implements domain.NotificationService by routing each
// channel to its sender
type Dispatcher struct {
	sms   SMSSender
	email EmailSender
}

// NewDispatcher creates a notification service from the two senders
func NewDispatcher(sms SMSSender, email EmailSender) *Dispatcher {
	return &Dispatcher{sms: sms, email: email}
}

// SendSMS implements domain.NotificationService
func (d *Dispatcher) SendSMS(to, message string) error {
	return d.sms.SendSMS(to, message)
}

// SendEmail implements domain.NotificationService
func (d *Dispatcher) SendEmail(to, subject, body string) error {
	return d.email.SendEmail(to, subject, body)
}

var _ domain.NotificationService = (*Dispatcher)(nil)
