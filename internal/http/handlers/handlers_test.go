package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/mocks"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{domain.NewValidationError("phone"), http.StatusBadRequest},
		{domain.ErrInvalidCode, http.StatusBadRequest},
		{domain.ErrProviderCancelled, http.StatusBadRequest},
		{domain.ErrSessionExpired, http.StatusUnauthorized},
		{domain.ErrNotAuthenticated, http.StatusUnauthorized},
		{domain.ErrTokenExpired, http.StatusUnauthorized},
		{domain.ErrNotArtist, http.StatusForbidden},
		{domain.ErrNoAccount, http.StatusNotFound},
		{domain.ErrUnknownStep, http.StatusNotFound},
		{fmt.Errorf("%w: registered as artist", domain.ErrRoleMismatch), http.StatusConflict},
		{domain.ErrAccountAlreadyExists, http.StatusConflict},
		{domain.ErrActionInProgress, http.StatusConflict},
		{domain.ErrSuperseded, http.StatusConflict},
		{domain.ErrStepLocked, http.StatusConflict},
		{domain.ErrCodeExpired, http.StatusGone},
		{domain.ErrUploadRejected, http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: resend available in 12s", domain.ErrRateLimited), http.StatusTooManyRequests},
		{domain.ErrNetworkFailure, http.StatusBadGateway},
		{domain.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.expected, errorStatus(tt.err))
		})
	}
}

func TestRespondError(t *testing.T) {
	t.Run("validation names the field", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, domain.NewValidationError("fullName"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "fullName", body["field"])
	})

	t.Run("internal errors are not leaked", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, errors.New("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "pq:")
	})
}

func TestPolicyHandlers(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		body           string
		setupMocks     func(*mocks.MockPolicyService)
		expectedStatus int
	}{
		{
			name:           "list",
			method:         http.MethodGet,
			expectedStatus: http.StatusOK,
		},
		{
			name:           "add",
			method:         http.MethodPost,
			body:           `{"sub":"artist","obj":"/views/artist/payouts","act":"view"}`,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "add missing field",
			method:         http.MethodPost,
			body:           `{"sub":"artist","obj":"/views/artist/payouts"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:   "add rejected",
			method: http.MethodPost,
			body:   `{"sub":"artist","obj":"/views/artist/payouts","act":"view"}`,
			setupMocks: func(m *mocks.MockPolicyService) {
				m.AddPolicyFunc = func(role, resource, action string) error { return errors.New("exists") }
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "remove",
			method:         http.MethodDelete,
			body:           `{"sub":"customer","obj":"/views/common/*","act":"view"}`,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:   "remove missing",
			method: http.MethodDelete,
			body:   `{"sub":"customer","obj":"/views/nowhere","act":"view"}`,
			setupMocks: func(m *mocks.MockPolicyService) {
				m.RemovePolicyFunc = func(role, resource, action string) error { return errors.New("not found") }
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policies := mocks.NewMockPolicyService()
			if tt.setupMocks != nil {
				tt.setupMocks(policies)
			}
			h := &PolicyHandlers{Policies: policies}

			r := gin.New()
			r.GET("/policies", h.List)
			r.POST("/policies", h.Add)
			r.DELETE("/policies", h.Remove)

			req := httptest.NewRequest(tt.method, "/policies", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.method == http.MethodGet {
				var body struct {
					Data [][]string `json:"data"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
				assert.Len(t, body.Data, 4)
			}
		})
	}
}

func TestViewHandlers_Render(t *testing.T) {
	r := gin.New()
	r.GET("/v", func(c *gin.Context) {
		c.Set("view", "/views/customer/home")
		c.Set("account_id", "customer-1")
		c.Set("role", "customer")
		c.Next()
	}, (&ViewHandlers{}).Render)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"view":"/views/customer/home","account_id":"customer-1","role":"customer"}}`, w.Body.String())
}
