package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/http/middleware"
)

// OnboardingHandlers exposes a client's OnboardingTracker
type OnboardingHandlers struct {
	maxUploadBytes int64
}

// NewOnboardingHandlers creates new onboarding handlers
func NewOnboardingHandlers(maxUploadBytes int64) *OnboardingHandlers {
	return &OnboardingHandlers{maxUploadBytes: maxUploadBytes}
}

// ContactOTPRequest represents a contact verification send request
type ContactOTPRequest struct {
	Channel string `json:"channel" binding:"required,oneof=phone email"`
	Target  string `json:"target" binding:"required"`
}

// Get loads or initialises onboarding progress
func (h *OnboardingHandlers) Get(c *gin.Context) {
	view, err := middleware.ClientFrom(c).Onboarding.LoadOrInit(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// UpdateDraft merges fields into a step's draft
func (h *OnboardingHandlers) UpdateDraft(c *gin.Context) {
	var fields domain.Fields
	if err := c.ShouldBindJSON(&fields); err != nil {
		bindError(c, err)
		return
	}

	view, err := middleware.ClientFrom(c).Onboarding.UpdateDraft(c.Request.Context(), domain.StepID(c.Param("step")), fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// ClearDraft empties a step's draft
func (h *OnboardingHandlers) ClearDraft(c *gin.Context) {
	view, err := middleware.ClientFrom(c).Onboarding.ClearStep(c.Request.Context(), domain.StepID(c.Param("step")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// Submit validates and completes a step
func (h *OnboardingHandlers) Submit(c *gin.Context) {
	view, err := middleware.ClientFrom(c).Onboarding.SubmitStep(c.Request.Context(), domain.StepID(c.Param("step")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// SendContactOTP starts verifying a contact for the personal details step
func (h *OnboardingHandlers) SendContactOTP(c *gin.Context) {
	var req ContactOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	tracker := middleware.ClientFrom(c).Onboarding
	if err := tracker.SendContactOTP(c.Request.Context(), domain.Channel(req.Channel), req.Target); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tracker.View()})
}

// VerifyContactOTP confirms the contact code
func (h *OnboardingHandlers) VerifyContactOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	tracker := middleware.ClientFrom(c).Onboarding
	if err := tracker.VerifyContactOTP(c.Request.Context(), req.Code); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tracker.View()})
}

// Upload stores a multipart "file" for the category in the path
func (h *OnboardingHandlers) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		bindError(c, err)
		return
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		bindError(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		bindError(c, err)
		return
	}

	file := domain.UploadFile{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Data:        data,
	}
	url, view, err := middleware.ClientFrom(c).Onboarding.Upload(c.Request.Context(), domain.UploadCategory(c.Param("category")), file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": gin.H{"url": url, "onboarding": view}})
}
