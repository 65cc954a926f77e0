package e2e

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/you/mimora/internal/app"
	"github.com/you/mimora/internal/infrastructure/auth"
	"github.com/you/mimora/internal/infrastructure/database"
	"github.com/you/mimora/internal/infrastructure/events"
	"github.com/you/mimora/internal/infrastructure/identity"
	"github.com/you/mimora/internal/infrastructure/repositories"
	"github.com/you/mimora/internal/infrastructure/upload"
	"github.com/you/mimora/internal/mocks"
	"github.com/you/mimora/internal/services"
	testconfig "github.com/you/mimora/internal/tests/config"
)

const (
	oidcIssuer   = "https://accounts.e2e.test"
	oidcClientID = "mimora-e2e"
)

// TestServer runs the full HTTP stack in-process. Postgres is replaced by
// SQLite, Redis by miniredis, and outbound SMS/email by an Outbox.
type TestServer struct {
	Server    *httptest.Server
	Container *app.Container
	Redis     *miniredis.Miniredis
	Outbox    *Outbox
	Events    *mocks.MockEventPublisher
	oidcKey   *rsa.PrivateKey
}

// NewTestServer creates a server instance for E2E testing; it is shut
// down when the test ends
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	cfg := testconfig.LoadTestConfig(t)
	l := logrus.New()
	l.SetOutput(io.Discard)
	log := logrus.NewEntry(l)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get underlying sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := database.NewRedis(mr.Addr(), "", 0)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("Failed to generate OIDC key: %v", err)
	}
	verifier := identity.NewOIDCVerifierFromKeys(oidcIssuer, oidcClientID, &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}})

	outbox := NewOutbox()
	publisher := mocks.NewMockEventPublisher()
	tokens := auth.NewJWTService(cfg.JWTSecret, cfg.JWTIssuer, cfg.ProviderTTL, cfg.SessionTTL)
	otp := services.NewOTPService(outbox, auth.NewCodeHasher(), rdb.Client, services.OTPConfig{
		Length:       cfg.OTP_Length,
		TTL:          cfg.OTP_TTL,
		MaxAttempts:  cfg.OTP_MaxAttempts,
		ResendWindow: cfg.OTP_ResendWindow,
	})

	c := &app.Container{
		Config:          cfg,
		Log:             log,
		DB:              db,
		Redis:           rdb,
		TokenSvc:        tokens,
		NotificationSvc: outbox,
		OTPSvc:          otp,
		IdentitySvc:     identity.NewProvider(otp, tokens, verifier, log),
		ProfileSvc:      repositories.NewProfileService(db, tokens),
		AuditLogger:     events.NewAuditLogger(log, publisher, cfg.NATSSubject),
		Uploader: upload.NewLocalUploader(cfg.UploadDir, cfg.UploadBaseURL, upload.Policy{
			MaxSizeBytes: cfg.UploadMaxSizeBytes,
			AllowedTypes: cfg.UploadAllowedTypes,
		}, log),
	}
	if err := c.InitPolicies(); err != nil {
		t.Fatalf("Failed to init policies: %v", err)
	}
	if err := c.InitRegistry(); err != nil {
		t.Fatalf("Failed to init registry: %v", err)
	}

	s := &TestServer{
		Server:    httptest.NewServer(app.NewHandler(c)),
		Container: c,
		Redis:     mr,
		Outbox:    outbox,
		Events:    publisher,
		oidcKey:   key,
	}
	t.Cleanup(func() {
		s.Server.Close()
		c.Close()
	})
	return s
}

// Restart drops every in-memory client and serves from a fresh registry.
// Persisted client state survives in Redis.
func (s *TestServer) Restart(t *testing.T) {
	t.Helper()

	s.Server.Close()
	s.Container.Registry.Close()
	if err := s.Container.InitRegistry(); err != nil {
		t.Fatalf("Failed to init registry: %v", err)
	}
	s.Server = httptest.NewServer(app.NewHandler(s.Container))
}

// IDToken signs an identity-provider credential for email
func (s *TestServer) IDToken(t *testing.T, subject, email string) string {
	t.Helper()

	now := time.Now()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            oidcIssuer,
		"aud":            oidcClientID,
		"sub":            subject,
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"email":          email,
		"email_verified": true,
	}).SignedString(s.oidcKey)
	if err != nil {
		t.Fatalf("Failed to sign id token: %v", err)
	}
	return raw
}

// PassResendWindow lets the per-target OTP throttle lapse
func (s *TestServer) PassResendWindow() {
	s.Redis.FastForward(s.Container.Config.OTP_ResendWindow + time.Second)
}
