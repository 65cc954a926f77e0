package services

import (
	"errors"
	"fmt"

	"github.com/you/mimora/domain"
)

// passthrough lists errors collaborators may return that already belong to
// our taxonomy
var passthrough = []error{
	domain.ErrRateLimited,
	domain.ErrInvalidCode,
	domain.ErrCodeExpired,
	domain.ErrNoAccount,
	domain.ErrAccountAlreadyExists,
	domain.ErrRoleMismatch,
	domain.ErrProviderCancelled,
	domain.ErrNetworkFailure,
	domain.ErrSessionExpired,
	domain.ErrValidationFailed,
	domain.ErrUploadRejected,
	domain.ErrNotArtist,
	domain.ErrTokenInvalid,
	domain.ErrStepLocked,
}

// mapProviderError folds a collaborator error into the domain taxonomy.
// Anything unrecognised is reported as a network failure.
func mapProviderError(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range passthrough {
		if errors.Is(err, target) {
			return err
		}
	}
	if errors.Is(err, domain.ErrTokenExpired) {
		return fmt.Errorf("%w: %v", domain.ErrSessionExpired, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrNetworkFailure, err)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
