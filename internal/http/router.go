package httpx

import (
	"github.com/gin-gonic/gin"
	"github.com/you/mimora/internal/http/handlers"
	"github.com/you/mimora/internal/http/middleware"
)

// Handlers groups the endpoint handlers mounted by BuildRouter
type Handlers struct {
	Session    *handlers.SessionHandlers
	Onboarding *handlers.OnboardingHandlers
	Views      *handlers.ViewHandlers
	Policies   *handlers.PolicyHandlers
}

// Middleware groups the middleware mounted by BuildRouter
type Middleware struct {
	Client    *middleware.ClientMW
	ViewGuard *middleware.ViewGuardMW
	Admin     *middleware.AdminMW
}

func BuildRouter(h Handlers, mw Middleware) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	api := r.Group("/api/v1")
	api.Use(mw.Client.Resolve())

	api.GET("/session", h.Session.Get)
	api.POST("/session/role", h.Session.SelectRole)
	api.DELETE("/session/error", h.Session.ClearError)

	auth := api.Group("/auth")
	auth.POST("/otp/send", h.Session.SendOTP)
	auth.POST("/otp/verify", h.Session.VerifyOTP)
	auth.POST("/otp/reset", h.Session.ResetOTP)
	auth.POST("/provider", h.Session.ProviderLogin)
	auth.POST("/logout", h.Session.Logout)

	ob := api.Group("/onboarding")
	ob.GET("", h.Onboarding.Get)
	ob.PATCH("/steps/:step/draft", h.Onboarding.UpdateDraft)
	ob.DELETE("/steps/:step/draft", h.Onboarding.ClearDraft)
	ob.POST("/steps/:step/submit", h.Onboarding.Submit)
	ob.POST("/contact/otp/send", h.Onboarding.SendContactOTP)
	ob.POST("/contact/otp/verify", h.Onboarding.VerifyContactOTP)
	ob.POST("/uploads/:category", h.Onboarding.Upload)

	api.GET("/views/*view", mw.ViewGuard.Enforce(), h.Views.Render)

	adm := r.Group("/admin").Use(mw.Admin.RequireKey())
	adm.GET("/policies", h.Policies.List)
	adm.POST("/policies", h.Policies.Add)
	adm.DELETE("/policies", h.Policies.Remove)

	return r
}
