package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/http/middleware"
	"github.com/you/mimora/internal/services"
)

// SessionHandlers exposes a client's SessionManager
type SessionHandlers struct{}

// NewSessionHandlers creates new session handlers
func NewSessionHandlers() *SessionHandlers {
	return &SessionHandlers{}
}

// SelectRoleRequest represents role selection request
type SelectRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SendOTPRequest represents OTP send request
type SendOTPRequest struct {
	Channel    string `json:"channel" binding:"required,oneof=phone email"`
	Identifier string `json:"identifier" binding:"required"`
	Mode       string `json:"mode" binding:"required,oneof=login signup"`
}

// VerifyOTPRequest represents OTP verification request
type VerifyOTPRequest struct {
	Code string `json:"code" binding:"required"`
}

// ProviderLoginRequest carries the credential returned by the provider popup
type ProviderLoginRequest struct {
	Credential string `json:"credential"`
}

// SessionResponse is the client-visible session state
type SessionResponse struct {
	Session       domain.Session             `json:"session"`
	Account       domain.Account             `json:"account,omitempty"`
	ActiveChannel domain.Channel             `json:"active_channel,omitempty"`
	Phone         domain.VerificationAttempt `json:"phone"`
	Email         domain.VerificationAttempt `json:"email"`
	Notices       []domain.Notice            `json:"notices,omitempty"`
}

func sessionResponse(m *services.SessionManager) SessionResponse {
	s := m.Snapshot()
	phone, _ := m.Attempt(domain.ChannelPhone)
	email, _ := m.Attempt(domain.ChannelEmail)
	return SessionResponse{
		Session:       s,
		Account:       s.Account,
		ActiveChannel: m.ActiveChannel(),
		Phone:         phone,
		Email:         email,
		Notices:       m.TakeNotices(),
	}
}

// respondSession writes the session state, with err mapped to a status
// when set
func respondSession(c *gin.Context, m *services.SessionManager, err error) {
	if err != nil {
		status := errorStatus(err)
		body := gin.H{"error": err.Error(), "data": sessionResponse(m)}
		if field, ok := domain.FieldOf(err); ok {
			body["field"] = field
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": sessionResponse(m)})
}

// Get returns the current session
func (h *SessionHandlers) Get(c *gin.Context) {
	m := middleware.ClientFrom(c).Session
	respondSession(c, m, nil)
}

// ClearError is called by the client when the user edits an input, so an
// error about the previous value stops showing
func (h *SessionHandlers) ClearError(c *gin.Context) {
	m := middleware.ClientFrom(c).Session
	m.ClearError()
	respondSession(c, m, nil)
}

// SelectRole handles role selection before login
func (h *SessionHandlers) SelectRole(c *gin.Context) {
	var req SelectRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	m := middleware.ClientFrom(c).Session
	role, err := domain.ParseRole(req.Role)
	if err == nil {
		err = m.SelectRole(c.Request.Context(), role)
	}
	respondSession(c, m, err)
}

// SendOTP handles conflict check and OTP dispatch
func (h *SessionHandlers) SendOTP(c *gin.Context) {
	var req SendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	m := middleware.ClientFrom(c).Session
	err := m.SendOTP(c.Request.Context(), domain.Channel(req.Channel), req.Identifier, domain.AuthMode(req.Mode))
	respondSession(c, m, err)
}

// VerifyOTP handles OTP verification and completes sign-in on success
func (h *SessionHandlers) VerifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	m := middleware.ClientFrom(c).Session
	err := m.VerifyOTP(c.Request.Context(), req.Code)
	respondSession(c, m, err)
}

// ResetOTP returns the verification flow to idle
func (h *SessionHandlers) ResetOTP(c *gin.Context) {
	m := middleware.ClientFrom(c).Session
	m.ResetVerification()
	respondSession(c, m, nil)
}

// ProviderLogin handles interactive provider login
func (h *SessionHandlers) ProviderLogin(c *gin.Context) {
	var req ProviderLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	m := middleware.ClientFrom(c).Session
	err := m.LoginWithProvider(c.Request.Context(), req.Credential)
	respondSession(c, m, err)
}

// Logout clears the session; calling it twice is fine
func (h *SessionHandlers) Logout(c *gin.Context) {
	m := middleware.ClientFrom(c).Session
	err := m.Logout(c.Request.Context())
	respondSession(c, m, err)
}
