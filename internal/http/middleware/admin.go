package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminMW protects the policy administration endpoints with a static key
type AdminMW struct {
	key string
}

// NewAdminMW creates new admin middleware wrapper
func NewAdminMW(key string) *AdminMW {
	return &AdminMW{key: key}
}

// RequireKey returns the admin key middleware function. With no key
// configured every request is rejected.
func (mw *AdminMW) RequireKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenParts := strings.SplitN(authHeader, " ", 2)
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			return
		}
		if mw.key == "" || subtle.ConstantTimeCompare([]byte(tokenParts[1]), []byte(mw.key)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access Denied"})
			return
		}
		c.Next()
	}
}
