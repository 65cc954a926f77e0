package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/you/mimora/domain"
)

// MockUploader implements domain.Uploader interface for testing
type MockUploader struct {
	UploadFunc func(ctx context.Context, file domain.UploadFile, category domain.UploadCategory) (string, error)

	mu    sync.Mutex
	calls int
}

// NewMockUploader creates a new MockUploader with default behaviors
func NewMockUploader() *MockUploader {
	return &MockUploader{}
}

// Upload stores file and returns its URL
func (m *MockUploader) Upload(ctx context.Context, file domain.UploadFile, category domain.UploadCategory) (string, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, file, category)
	}
	return fmt.Sprintf("https://cdn.test/%s/%d-%s", category, n, file.Name), nil
}

// Calls returns how many uploads were attempted
func (m *MockUploader) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Compile-time interface compliance verification
var _ domain.Uploader = (*MockUploader)(nil)
