// Package middleware contains Gin middleware for the server.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/relaypoint/socketio/internal/v1/logging"
)

// HeaderXCorrelationID is the header key for the correlation ID.
const HeaderXCorrelationID = "X-Correlation-ID"

// CorrelationID propagates the caller's correlation ID, or mints one, so
// every log line of an upgrade request can be tied back to it.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(HeaderXCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		c.Header(HeaderXCorrelationID, correlationID)
		c.Set(string(logging.CorrelationIDKey), correlationID)

		c.Next()
	}
}
