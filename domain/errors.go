package domain

import (
	"errors"
	"fmt"
)

// Verification errors
var (
	ErrRateLimited  = errors.New("rate limited")
	ErrInvalidCode  = errors.New("invalid verification code")
	ErrCodeExpired  = errors.New("verification code has expired")
	ErrInvalidPhase = errors.New("operation not allowed in current verification phase")
)

// Account errors
var (
	ErrNoAccount            = errors.New("no account found for this identifier")
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrRoleMismatch         = errors.New("account exists with a different role, sign up instead")
)

// Provider and transport errors
var (
	ErrProviderCancelled = errors.New("provider login cancelled")
	ErrNetworkFailure    = errors.New("network failure")
)

// Session errors
var (
	ErrSessionExpired   = errors.New("session has expired")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrActionInProgress = errors.New("another action is in progress")
	ErrSuperseded       = errors.New("result superseded by a newer request")
	ErrClosed           = errors.New("session manager closed")
	ErrAlreadySignedIn  = errors.New("already signed in")
)

// Token errors
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
)

// Store errors
var (
	ErrKeyNotFound = errors.New("key not found")
)

// Onboarding errors
var (
	ErrValidationFailed = errors.New("validation failed")
	ErrStepLocked       = errors.New("onboarding step is locked")
	ErrUnknownStep      = errors.New("unknown onboarding step")
	ErrNotArtist        = errors.New("onboarding is only available to artists")
	ErrUploadRejected   = errors.New("upload rejected")
	ErrOnboardingDone   = errors.New("onboarding already completed")
)

// ValidationError reports the first field that failed a local rule
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a ValidationError for field
func NewValidationError(field string) *ValidationError {
	return &ValidationError{Field: field}
}

func (e *ValidationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("validation failed: %s (%s)", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Field)
}

// Is lets errors.Is(err, ErrValidationFailed) match any field
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// FieldOf returns the failing field when err is a ValidationError
func FieldOf(err error) (string, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Field, true
	}
	return "", false
}

// IsUserFacing reports whether err belongs to the taxonomy surfaced to users
func IsUserFacing(err error) bool {
	for _, target := range []error{
		ErrRateLimited, ErrInvalidCode, ErrCodeExpired, ErrNoAccount,
		ErrAccountAlreadyExists, ErrRoleMismatch, ErrProviderCancelled,
		ErrNetworkFailure, ErrSessionExpired, ErrValidationFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
