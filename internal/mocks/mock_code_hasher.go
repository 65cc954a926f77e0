package mocks

import "github.com/you/mimora/domain"

// MockCodeHasher implements domain.CodeHasher interface for testing
type MockCodeHasher struct {
	HashFunc   func(code string) (string, error)
	VerifyFunc func(hashed, code string) bool
}

// NewMockCodeHasher creates a new MockCodeHasher with default behaviors
func NewMockCodeHasher() *MockCodeHasher {
	return &MockCodeHasher{}
}

// Hash hashes a code
func (m *MockCodeHasher) Hash(code string) (string, error) {
	if m.HashFunc != nil {
		return m.HashFunc(code)
	}
	// Default behavior: simple prefix
	return "hashed_" + code, nil
}

// Verify checks code against hashed
func (m *MockCodeHasher) Verify(hashed, code string) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(hashed, code)
	}
	return hashed == "hashed_"+code
}

// Compile-time interface compliance verification
var _ domain.CodeHasher = (*MockCodeHasher)(nil)
