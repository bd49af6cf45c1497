// Package ratelimit implements connection rate limiting using Redis or
// local memory.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.uber.org/zap"

	"github.com/relaypoint/socketio/internal/v1/config"
	"github.com/relaypoint/socketio/internal/v1/logging"
	"github.com/relaypoint/socketio/internal/v1/metrics"
)

// RateLimiter enforces the per-IP upgrade limit.
type RateLimiter struct {
	wsIP  *limiter.Limiter
	store limiter.Store
}

// NewRateLimiter builds a limiter from the configured rate. With a Redis
// client the limit is shared across processes; without one it falls back to
// a per-process memory store.
func NewRateLimiter(cfg *config.Config, redisClient *redis.Client) (*RateLimiter, error) {
	wsIPRate, err := limiter.NewRateFromFormatted(cfg.RateLimitWsIP)
	if err != nil {
		return nil, fmt.Errorf("invalid WS IP rate: %w", err)
	}

	var store limiter.Store
	if redisClient != nil {
		s, err := sredis.NewStoreWithOptions(redisClient, limiter.StoreOptions{
			Prefix: "limiter:v1:",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis store: %w", err)
		}
		store = s
		logging.Info(context.Background(), "Rate limiter using Redis store")
	} else {
		store = memory.NewStore()
		logging.Warn(context.Background(), "Rate limiter using memory store (Redis disabled or unavailable)")
	}

	return &RateLimiter{
		wsIP:  limiter.New(store, wsIPRate),
		store: store,
	}, nil
}

// CheckWebSocket reports whether an upgrade attempt from this client IP is
// allowed. On rejection it writes the 429 response itself. Store failures
// fail open; rate limiting never takes down connectivity.
func (rl *RateLimiter) CheckWebSocket(c *gin.Context) bool {
	ctx := c.Request.Context()

	ip := c.ClientIP()
	ipContext, err := rl.wsIP.Get(ctx, ip)
	if err != nil {
		logging.Error(ctx, "WS rate limiter store failed", zap.Error(err))
		return true
	}

	if ipContext.Reached {
		metrics.RateLimitExceeded.WithLabelValues("ip").Inc()
		c.Header("X-RateLimit-Retry-After", strconv.FormatInt(ipContext.Reset, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many connections from this IP"})
		return false
	}

	return true
}

// Middleware wraps CheckWebSocket for route groups.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.CheckWebSocket(c) {
			c.Abort()
			return
		}
		c.Next()
	}
}
