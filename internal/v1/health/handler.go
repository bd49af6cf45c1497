// Package health exposes Kubernetes-style liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/relaypoint/socketio/internal/v1/logging"
)

// BusPinger is the slice of the bus adapter the readiness probe needs.
type BusPinger interface {
	Ping(ctx context.Context) error
}

// Handler manages health check endpoints.
type Handler struct {
	bus BusPinger
}

// NewHandler creates a health check handler. bus may be nil when the server
// runs in single-instance mode without a Redis adapter.
func NewHandler(bus BusPinger) *Handler {
	return &Handler{bus: bus}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live. Returns 200 if the process is alive;
// no dependency checks.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. Returns 200 only if all critical
// dependencies are healthy, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{
		"redis": h.checkRedis(ctx),
	}

	status := "ready"
	statusCode := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkRedis verifies bus connectivity with a PING. A server without a bus
// adapter has nothing to check and reports healthy.
func (h *Handler) checkRedis(ctx context.Context) string {
	if h.bus == nil {
		return "healthy"
	}
	if err := h.bus.Ping(ctx); err != nil {
		logging.Error(ctx, "Redis health check failed", zap.Error(err))
		return "unhealthy"
	}
	return "healthy"
}
