package handlers

import (
	"github.com/gin-gonic/gin"

	"pairchat/internal/middleware"
	"pairchat/internal/observability"
	"pairchat/internal/telemetry"
)

const requestIDContextKey = "request_id"

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) string {
	if id := c.GetString(middleware.UserIDKey); id != "" {
		return id
	}
	return c.GetHeader("X-User-ID")
}

// RequestContext stamps the request ID on the request context so services
// can attach it to audit entries and outgoing broker headers.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := requestIDFromContext(c)
		c.Header("X-Request-Id", requestID)
		c.Request = c.Request.WithContext(telemetry.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}
