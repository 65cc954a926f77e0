package services

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/mocks"
)

const (
	testPhone = "+919812345678"
	testEmail = "a@b.com"
)

// harness bundles the mocks shared by session and onboarding tests
type harness struct {
	store    *mocks.MockStore
	idp      *mocks.MockIdentityProvider
	profiles *mocks.MockProfileService
	tokens   *mocks.MockTokenService
	audit    *mocks.MockAuditLogger
	uploader *mocks.MockUploader
	clock    *mocks.ManualClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	return &harness{
		store:    mocks.NewMockStore(),
		idp:      mocks.NewMockIdentityProvider(),
		profiles: mocks.NewMockProfileService(),
		tokens:   mocks.NewMockTokenService(),
		audit:    mocks.NewMockAuditLogger(),
		uploader: mocks.NewMockUploader(),
		clock:    mocks.NewManualClock(time.Now()),
	}
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testSessionConfig() SessionConfig {
	return SessionConfig{
		ResendCooldown:      30 * time.Second,
		ExpiryCheckInterval: 5 * time.Minute,
		ExpiryWarning:       10 * time.Minute,
		EmailLabel:          "Mimora sign in",
	}
}

// manager builds a SessionManager hydrated from h.store; it is closed when
// the test ends
func (h *harness) manager(t *testing.T) *SessionManager {
	t.Helper()

	m := NewSessionManager(context.Background(), SessionDeps{
		Store:    h.store,
		Identity: h.idp,
		Profiles: h.profiles,
		Tokens:   h.tokens,
		Audit:    h.audit,
		Clock:    h.clock,
		Log:      testLogger(),
	}, testSessionConfig())
	t.Cleanup(m.Close)
	return m
}

func (h *harness) tracker(t *testing.T, m *SessionManager) *OnboardingTracker {
	t.Helper()

	tr := NewOnboardingTracker(TrackerDeps{
		Session:  m,
		Store:    h.store,
		Identity: h.idp,
		Profiles: h.profiles,
		Uploader: h.uploader,
		Audit:    h.audit,
		Clock:    h.clock,
		Log:      testLogger(),
	}, testSessionConfig())
	t.Cleanup(tr.Close)
	return tr
}

func createTestArtist(t *testing.T) *domain.ArtistAccount {
	t.Helper()

	return &domain.ArtistAccount{
		ID:        "artist-1",
		Name:      "Asha Rao",
		Phone:     testPhone,
		Email:     testEmail,
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}
}

func createTestCustomer(t *testing.T) *domain.CustomerAccount {
	t.Helper()

	return &domain.CustomerAccount{
		ID:        "customer-1",
		Phone:     testPhone,
		Email:     testEmail,
		CreatedAt: time.Now().Add(-24 * time.Hour),
	}
}

// signIn funnels account through CompleteAuth
func signIn(t *testing.T, m *SessionManager, account domain.Account) {
	t.Helper()

	if err := m.CompleteAuth(context.Background(), account, "session-token"); err != nil {
		t.Fatalf("CompleteAuth: %v", err)
	}
}

func countNotices(notices []domain.Notice, code string) int {
	n := 0
	for _, notice := range notices {
		if notice.Code == code {
			n++
		}
	}
	return n
}

func validPersonalDetails() domain.Fields {
	return domain.Fields{
		"fullName":   "Asha Rao",
		"email":      testEmail,
		"phone":      testPhone,
		"birthday":   "1995-04-12",
		"gender":     "female",
		"experience": "3-5 years",
		"bio":        "Bridal and editorial makeup.",
	}
}

func validBookingModes() domain.Fields {
	return domain.Fields{
		"modes":         []any{"studio"},
		"studioAddress": "12 MG Road, Bengaluru",
	}
}

func validPortfolio() domain.Fields {
	return domain.Fields{"portfolio": []any{"https://cdn.test/portfolio/1.jpg"}}
}

func validBankDetails() domain.Fields {
	return domain.Fields{
		"accountNumber":        "123",
		"confirmAccountNumber": "123",
		"bankName":             "X",
		"ifscCode":             "Y",
	}
}
