package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ViewHandlers serves guarded views
type ViewHandlers struct{}

// Render acknowledges a view the guard let through
func (h *ViewHandlers) Render(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"view":       c.GetString("view"),
			"account_id": c.GetString("account_id"),
			"role":       c.GetString("role"),
		},
	})
}
