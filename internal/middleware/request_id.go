package middleware

import (
	"github.com/gin-gonic/gin"

	"roomchat/internal/observability"
)

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "request_id"

// RequestID makes sure every request carries an X-Request-Id, echoes it in
// the response and attaches it to the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := observability.RequestIDFromRequest(c.Request)
		c.Request.Header.Set(observability.RequestIDHeader, requestID)
		c.Writer.Header().Set(observability.RequestIDHeader, requestID)
		c.Set(RequestIDKey, requestID)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}
