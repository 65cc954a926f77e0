package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/you/mimora/domain"
)

// StepCall records one CompleteArtistStep invocation
type StepCall struct {
	Token        string
	Step         domain.StepID
	Fields       domain.Fields
	MarkComplete bool
}

// MockProfileService implements domain.ProfileService interface for testing
type MockProfileService struct {
	AuthenticateFunc       func(ctx context.Context, providerToken string, role domain.Role, mode domain.AuthMode) (*domain.AuthResult, error)
	CheckExistsFunc        func(ctx context.Context, identifier string, channel domain.Channel, role domain.Role) (*domain.AccountConflict, error)
	CompleteArtistStepFunc func(ctx context.Context, token string, step domain.StepID, fields domain.Fields, markComplete bool) (domain.Account, error)
	GetCurrentArtistFunc   func(ctx context.Context, token string) (*domain.ArtistAccount, error)

	mu         sync.Mutex
	checkCalls int
	stepCalls  []StepCall
}

// NewMockProfileService creates a new MockProfileService with default behaviors
func NewMockProfileService() *MockProfileService {
	return &MockProfileService{}
}

// Authenticate materializes an account for the provider token
func (m *MockProfileService) Authenticate(ctx context.Context, providerToken string, role domain.Role, mode domain.AuthMode) (*domain.AuthResult, error) {
	if m.AuthenticateFunc != nil {
		return m.AuthenticateFunc(ctx, providerToken, role, mode)
	}
	if providerToken == "" {
		return nil, domain.ErrTokenInvalid
	}
	// Default behavior: an account of the requested role
	var acct domain.Account
	if role == domain.RoleArtist {
		acct = &domain.ArtistAccount{ID: "artist-1", Phone: "+919812345678", Email: "a@b.com", CreatedAt: time.Now()}
	} else {
		acct = &domain.CustomerAccount{ID: "customer-1", Phone: "+919812345678", Email: "a@b.com", CreatedAt: time.Now()}
	}
	return &domain.AuthResult{Account: acct, Token: "session-token"}, nil
}

// CheckExists looks up identifier
func (m *MockProfileService) CheckExists(ctx context.Context, identifier string, channel domain.Channel, role domain.Role) (*domain.AccountConflict, error) {
	m.mu.Lock()
	m.checkCalls++
	m.mu.Unlock()
	if m.CheckExistsFunc != nil {
		return m.CheckExistsFunc(ctx, identifier, channel, role)
	}
	// Default behavior: identifier is free
	return &domain.AccountConflict{Exists: false}, nil
}

// CompleteArtistStep saves one step
func (m *MockProfileService) CompleteArtistStep(ctx context.Context, token string, step domain.StepID, fields domain.Fields, markComplete bool) (domain.Account, error) {
	m.mu.Lock()
	m.stepCalls = append(m.stepCalls, StepCall{Token: token, Step: step, Fields: fields, MarkComplete: markComplete})
	m.mu.Unlock()
	if m.CompleteArtistStepFunc != nil {
		return m.CompleteArtistStepFunc(ctx, token, step, fields, markComplete)
	}
	// Default behavior: caller keeps its own account copy
	return nil, nil
}

// GetCurrentArtist returns the durable artist record
func (m *MockProfileService) GetCurrentArtist(ctx context.Context, token string) (*domain.ArtistAccount, error) {
	if m.GetCurrentArtistFunc != nil {
		return m.GetCurrentArtistFunc(ctx, token)
	}
	// Default behavior: no remote record
	return nil, nil
}

// CheckCalls returns how many existence checks were made
func (m *MockProfileService) CheckCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkCalls
}

// StepCalls returns recorded CompleteArtistStep calls
func (m *MockProfileService) StepCalls() []StepCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StepCall(nil), m.stepCalls...)
}

// Compile-time interface compliance verification
var _ domain.ProfileService = (*MockProfileService)(nil)
