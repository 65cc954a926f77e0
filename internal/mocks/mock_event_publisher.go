package mocks

import (
	"sync"

	"github.com/you/mimora/domain"
)

// Published is one message handed to MockEventPublisher
type Published struct {
	Subject string
	Data    []byte
}

// MockEventPublisher implements domain.EventPublisher interface for testing
type MockEventPublisher struct {
	PublishFunc func(subject string, data []byte) error

	mu       sync.Mutex
	messages []Published
}

// NewMockEventPublisher creates a new MockEventPublisher
func NewMockEventPublisher() *MockEventPublisher {
	return &MockEventPublisher{}
}

// Publish records the message
func (m *MockEventPublisher) Publish(subject string, data []byte) error {
	m.mu.Lock()
	m.messages = append(m.messages, Published{Subject: subject, Data: data})
	m.mu.Unlock()
	if m.PublishFunc != nil {
		return m.PublishFunc(subject, data)
	}
	return nil
}

// Messages returns published messages
func (m *MockEventPublisher) Messages() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Published(nil), m.messages...)
}

// Compile-time interface compliance verification
var _ domain.EventPublisher = (*MockEventPublisher)(nil)
