package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"roomchat/internal/middleware"
	"roomchat/internal/observability"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}

	requestID := c.GetHeader(observability.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

// usernameFromContext reads the caller's self-declared name, if any.
func usernameFromContext(c *gin.Context) *string {
	if name := c.GetHeader("X-Username"); name != "" {
		return &name
	}
	if name := c.Query("username"); name != "" {
		return &name
	}
	return nil
}
