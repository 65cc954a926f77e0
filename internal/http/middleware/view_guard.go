package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/services"
)

// ViewGuardMW applies the route guard and the role view policy to
// protected views
type ViewGuardMW struct {
	guard    services.RouteGuard
	policies domain.PolicyService
	audit    domain.AuditLogger
}

// NewViewGuardMW creates new view guard middleware wrapper
func NewViewGuardMW(guard services.RouteGuard, policies domain.PolicyService, audit domain.AuditLogger) *ViewGuardMW {
	return &ViewGuardMW{guard: guard, policies: policies, audit: audit}
}

// Enforce returns the view guard middleware function. It must run after
// ClientMW.Resolve on a route with a *view wildcard.
func (mw *ViewGuardMW) Enforce() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := ClientFrom(c)
		if client == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Client not resolved"})
			return
		}
		ctx := c.Request.Context()
		path := "/views" + c.Param("view")

		// 1. Route guard: signed in, and artists must finish onboarding
		session := client.Session.Snapshot()
		decision := mw.guard.CanEnter(session, services.ProfileCompleted(session))
		if !decision.Allow {
			status := http.StatusForbidden
			if !session.Authenticated() {
				status = http.StatusUnauthorized
			}
			_ = mw.audit.LogAccessAttempt(ctx, session.UserRef, path, false, "redirect "+decision.RedirectTo)
			c.AbortWithStatusJSON(status, gin.H{"error": "Access Denied", "redirect_to": decision.RedirectTo})
			return
		}

		// 2. Role policy for the concrete view
		allowed, err := services.CanView(mw.policies, session.Role, path)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Authorization check failed"})
			return
		}
		if !allowed {
			_ = mw.audit.LogAccessAttempt(ctx, session.UserRef, path, false, "policy")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access Denied"})
			return
		}

		_ = mw.audit.LogAccessAttempt(ctx, session.UserRef, path, true, "")
		c.Set("view", path)
		c.Set("account_id", session.UserRef)
		c.Set("role", string(session.Role))
		c.Next()
	}
}
