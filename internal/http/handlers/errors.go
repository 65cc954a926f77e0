package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/mimora/domain"
)

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidationFailed),
		errors.Is(err, domain.ErrInvalidCode),
		errors.Is(err, domain.ErrProviderCancelled):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionExpired),
		errors.Is(err, domain.ErrNotAuthenticated),
		errors.Is(err, domain.ErrTokenInvalid),
		errors.Is(err, domain.ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotArtist):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNoAccount),
		errors.Is(err, domain.ErrUnknownStep):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAccountAlreadyExists),
		errors.Is(err, domain.ErrRoleMismatch),
		errors.Is(err, domain.ErrInvalidPhase),
		errors.Is(err, domain.ErrActionInProgress),
		errors.Is(err, domain.ErrSuperseded),
		errors.Is(err, domain.ErrAlreadySignedIn),
		errors.Is(err, domain.ErrStepLocked),
		errors.Is(err, domain.ErrOnboardingDone):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCodeExpired):
		return http.StatusGone
	case errors.Is(err, domain.ErrUploadRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNetworkFailure):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err in the standard error envelope. Validation
// errors also name the offending field.
func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	body := gin.H{"error": err.Error()}
	if status == http.StatusInternalServerError {
		body["error"] = "Internal server error"
	}

	if field, ok := domain.FieldOf(err); ok {
		body["field"] = field
	}
	c.JSON(status, body)
}

// bindError reports a malformed request body
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
