package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

func serve(handler gin.HandlerFunc, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", path, nil)
	handler(c)
	return w
}

func TestLiveness(t *testing.T) {
	h := NewHandler(nil)
	w := serve(h.Liveness, "/health/live")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
	assert.Contains(t, w.Body.String(), "timestamp")
}

func TestReadiness_NoBus(t *testing.T) {
	h := NewHandler(nil)
	w := serve(h.Readiness, "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestReadiness_HealthyBus(t *testing.T) {
	h := NewHandler(&mockPinger{})
	w := serve(h.Readiness, "/health/ready")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"redis":"healthy"`)
}

func TestReadiness_UnhealthyBus(t *testing.T) {
	h := NewHandler(&mockPinger{err: errors.New("connection refused")})
	w := serve(h.Readiness, "/health/ready")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "unavailable")
	assert.Contains(t, w.Body.String(), `"redis":"unhealthy"`)
}
