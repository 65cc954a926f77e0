package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/you/mimora/domain"
	"github.com/you/mimora/internal/services"
)

// ClientHeader carries the browser-generated client ID
const ClientHeader = "X-Client-ID"

const clientKey = "client"

// ClientSource resolves a client ID to its state machines
type ClientSource interface {
	Get(ctx context.Context, id string) (*services.Client, error)
}

// ClientMW binds each request to its client
type ClientMW struct {
	clients ClientSource
}

// NewClientMW creates new client middleware wrapper
func NewClientMW(clients ClientSource) *ClientMW {
	return &ClientMW{clients: clients}
}

// Resolve returns the client resolution middleware function
func (mw *ClientMW) Resolve() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ClientHeader)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": ClientHeader + " header required"})
			return
		}
		if _, err := uuid.Parse(id); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid " + ClientHeader + " header"})
			return
		}

		ctx := domain.WithClientContext(c.Request.Context(), &domain.ClientContext{
			ClientID:  id,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)

		client, err := mw.clients.Get(ctx, id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service is shutting down"})
			return
		}
		c.Set(clientKey, client)
		c.Next()
	}
}

// ClientFrom returns the client bound by Resolve
func ClientFrom(c *gin.Context) *services.Client {
	v, ok := c.Get(clientKey)
	if !ok {
		return nil
	}
	client, _ := v.(*services.Client)
	return client
}
