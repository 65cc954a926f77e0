package notifications

import (
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// SendGridService delivers email through SendGrid
type SendGridService struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	log       *logrus.Entry
}

// NewSendGridService creates a SendGrid email sender. With an empty API
// key emails are logged instead of sent.
func NewSendGridService(apiKey, fromEmail, fromName string, log *logrus.Entry) *SendGridService {
	var client *sendgrid.Client
	if apiKey != "" {
		client = sendgrid.NewSendClient(apiKey)
	}
	return &SendGridService{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		log:       log.WithField("sender", "sendgrid"),
	}
}

// SendEmail sends a plain-text email
func (s *SendGridService) SendEmail(to, subject, body string) error {
	if s.client == nil {
		s.log.WithFields(logrus.Fields{"to": to, "subject": subject}).Warn("sendgrid not configured, email not sent")
		return nil
	}

	from := mail.NewEmail(s.fromName, s.fromEmail)
	msg := mail.NewSingleEmail(from, subject, mail.NewEmail("", to), body, "")

	resp, err := s.client.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("failed to send email: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
