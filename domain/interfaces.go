package domain

import (
	"context"
	"time"
)

// IdentityProvider performs phone/email challenges and interactive login,
// issuing a provider token on success
type IdentityProvider interface {
	SendPhoneChallenge(ctx context.Context, number string) (ChallengeHandle, error)
	ConfirmPhoneChallenge(ctx context.Context, handle ChallengeHandle, code string) (*ProviderToken, error)
	SendEmailChallenge(ctx context.Context, email, label string) (ChallengeHandle, error)
	ConfirmEmailChallenge(ctx context.Context, handle ChallengeHandle, code string) (*ProviderToken, error)
	InteractiveLogin(ctx context.Context, credential string) (*ProviderToken, error)
}

// ProfileService is the backend of record for accounts and artist profiles
type ProfileService interface {
	Authenticate(ctx context.Context, providerToken string, role Role, mode AuthMode) (*AuthResult, error)
	CheckExists(ctx context.Context, identifier string, channel Channel, role Role) (*AccountConflict, error)
	CompleteArtistStep(ctx context.Context, token string, step StepID, fields Fields, markComplete bool) (Account, error)
	GetCurrentArtist(ctx context.Context, token string) (*ArtistAccount, error)
}

// Uploader stores a file and resolves it to a URL
type Uploader interface {
	Upload(ctx context.Context, file UploadFile, category UploadCategory) (string, error)
}

// Store is the per-client persisted key/value store.
// Get returns ErrKeyNotFound when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

// OTPService generates and checks one-time codes for a channel target
type OTPService interface {
	Generate(ctx context.Context, channel Channel, target, label string) (*OTPRequest, error)
	Verify(ctx context.Context, handle ChallengeHandle, code string) (*OTPRequest, error)
	CanResend(ctx context.Context, channel Channel, target string) (bool, int64, error)
}

// CodeHasher hashes codes at rest
type CodeHasher interface {
	Hash(code string) (string, error)
	Verify(hashed, code string) bool
}

// TokenService issues and validates provider and session tokens
type TokenService interface {
	IssueProviderToken(subject string, channel Channel, identifier string) (*ProviderToken, error)
	ValidateProviderToken(raw string) (*ProviderToken, error)
	IssueSessionToken(accountID string, role Role) (string, error)
	ValidateSessionToken(raw string) (*TokenClaims, error)
	// ExpiryOf decodes the exp claim without checking the signature
	ExpiryOf(raw string) (time.Time, error)
}

// NotificationService delivers challenge messages
type NotificationService interface {
	SendSMS(to, message string) error
	SendEmail(to, subject, body string) error
}

// PolicyService manages role to view permissions
type PolicyService interface {
	AddPolicy(role, resource, action string) error
	RemovePolicy(role, resource, action string) error
	CheckPermission(role, resource, action string) (bool, error)
	GetPolicies() [][]string
}

// TokenClaims represents session token claims
type TokenClaims struct {
	AccountID string `json:"account_id"`
	Role      Role   `json:"role"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

// CasbinEnforcer interface defines the methods we need from Casbin enforcer
type CasbinEnforcer interface {
	AddPolicy(params ...interface{}) (bool, error)
	RemovePolicy(params ...interface{}) (bool, error)
	Enforce(rvals ...interface{}) (bool, error)
	GetPolicy() ([][]string, error)
	SavePolicy() error
}

// EventPublisher forwards audit events to an external sink
type EventPublisher interface {
	Publish(subject string, data []byte) error
}

// Clock abstracts time for countdowns and the expiry monitor
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback
type Timer interface {
	Stop() bool
}
