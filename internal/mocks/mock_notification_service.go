package mocks

import (
	"regexp"
	"sync"

	"github.com/you/mimora/domain"
)

var deliveredCode = regexp.MustCompile(`\d{4,8}`)

// Delivery is one message handed to the notifier. Subject is empty for SMS.
type Delivery struct {
	Channel domain.Channel
	To      string
	Subject string
	Body    string
}

// MockNotificationService records every successful OTP delivery so tests can
// read the code a user would have received. SendSMSFunc and SendEmailFunc
// override delivery; a non-nil error from either means nothing is recorded.
type MockNotificationService struct {
	SendSMSFunc   func(to, message string) error
	SendEmailFunc func(to, subject, body string) error

	mu   sync.Mutex
	sent []Delivery
}

func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

func (m *MockNotificationService) SendSMS(to, message string) error {
	if m.SendSMSFunc != nil {
		if err := m.SendSMSFunc(to, message); err != nil {
			return err
		}
	}
	m.record(Delivery{Channel: domain.ChannelPhone, To: to, Body: message})
	return nil
}

func (m *MockNotificationService) SendEmail(to, subject, body string) error {
	if m.SendEmailFunc != nil {
		if err := m.SendEmailFunc(to, subject, body); err != nil {
			return err
		}
	}
	m.record(Delivery{Channel: domain.ChannelEmail, To: to, Subject: subject, Body: body})
	return nil
}

func (m *MockNotificationService) record(d Delivery) {
	m.mu.Lock()
	m.sent = append(m.sent, d)
	m.mu.Unlock()
}

// Deliveries returns a copy of everything sent so far, oldest first.
func (m *MockNotificationService) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Delivery(nil), m.sent...)
}

// LastCode returns the numeric code in the most recent message sent to the
// target, or "" when nothing reached it.
func (m *MockNotificationService) LastCode(to string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return deliveredCode.FindString(m.sent[i].Body)
		}
	}
	return ""
}

var _ domain.NotificationService = (*MockNotificationService)(nil)
