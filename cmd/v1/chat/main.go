// Command chat is a reference deployment of the socket.io engine: a chat
// server where clients join named rooms and every "chat message" is fanned
// out to the sender's rooms, across processes when Redis is enabled.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/relaypoint/socketio/internal/v1/adapter"
	"github.com/relaypoint/socketio/internal/v1/bus"
	"github.com/relaypoint/socketio/internal/v1/config"
	"github.com/relaypoint/socketio/internal/v1/health"
	"github.com/relaypoint/socketio/internal/v1/logging"
	"github.com/relaypoint/socketio/internal/v1/middleware"
	"github.com/relaypoint/socketio/internal/v1/ratelimit"
	"github.com/relaypoint/socketio/internal/v1/socketio"
	"github.com/relaypoint/socketio/internal/v1/tracing"
)

// onConnect registers the chat listeners on every new socket.
func onConnect(s *socketio.Socket) error {
	s.On("join room", func(ctx context.Context, s *socketio.Socket, payload string) error {
		s.Join(payload)
		return nil
	})

	s.On("chat message", func(ctx context.Context, s *socketio.Socket, payload string) error {
		for _, room := range s.Rooms() {
			s.EmitTo(room, "chat message", payload)
		}
		return nil
	})

	return nil
}

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	if cfg.DevelopmentMode {
		slog.Info("Running in DEVELOPMENT MODE")
	}

	// --- Tracing (optional) ---
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(context.Background(), "socketio-chat", cfg.OTelCollectorAddr)
		if err != nil {
			slog.Error("Failed to initialize tracing", "error", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tp.Shutdown(ctx)
			}()
			slog.Info("✅ Tracing initialized", "collector", cfg.OTelCollectorAddr)
		}
	}

	// --- Redis Bus Initialization (Optional) ---
	// Connect the pub/sub adapter for distributed fan-out if enabled
	var busAdapter *bus.Adapter
	var limiterRedis *redis.Client
	if cfg.RedisEnabled {
		busAdapter, err = bus.Connect(context.Background(), bus.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Channel:  cfg.RedisChannel,
		})
		if err != nil {
			slog.Error("Failed to connect to Redis, running in single-instance mode", "error", err)
			busAdapter = nil // Fallback to single-instance mode
		} else {
			adapter.Install(busAdapter)
			slog.Info("✅ Redis pub/sub initialized for distributed messaging", "addr", cfg.RedisAddr)
			limiterRedis = redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
		}
	} else {
		slog.Info("Running in single-instance mode (Redis disabled)")
	}

	// --- Rate Limiting ---
	rl, err := ratelimit.NewRateLimiter(cfg, limiterRedis)
	if err != nil {
		slog.Error("Failed to create rate limiter", "error", err)
		os.Exit(1)
	}

	// --- Engine Hub ---
	hub := socketio.NewHub(onConnect,
		socketio.WithMailboxCapacity(cfg.MailboxCapacity),
		socketio.WithPingInterval(time.Duration(cfg.PingIntervalMs)*time.Millisecond),
		socketio.WithPingTimeout(time.Duration(cfg.PingTimeoutMs)*time.Millisecond),
	)

	// --- Set up Server ---
	router := gin.Default()

	// Cors
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins(cfg.AllowedOrigins)
	router.Use(cors.New(corsConfig))

	// Error handling and request correlation
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	// Routing
	router.GET("/socket.io/*any", rl.Middleware(), hub.ServeIO)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := newHealthHandler(busAdapter)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Start the server.
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		slog.Info("Chat server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close all active sessions gracefully
	if err := hub.Shutdown(ctx); err != nil {
		slog.Error("Error during hub shutdown:", "error", err)
	}

	// Shutdown HTTP server
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown:", "error", err)
	}

	// Close Redis connections if they were initialized
	if busAdapter != nil {
		if err := busAdapter.Close(); err != nil {
			slog.Error("Failed to close Redis connection:", "error", err)
		} else {
			slog.Info("Redis connection closed")
		}
	}
	if limiterRedis != nil {
		_ = limiterRedis.Close()
	}

	slog.Info("Server exiting")
}

// newHealthHandler avoids handing health a typed-nil interface when the bus
// is disabled.
func newHealthHandler(busAdapter *bus.Adapter) *health.Handler {
	if busAdapter == nil {
		return health.NewHandler(nil)
	}
	return health.NewHandler(busAdapter)
}

// allowedOrigins parses the comma-separated ALLOWED_ORIGINS value, falling
// back to the local dev frontend.
func allowedOrigins(raw string) []string {
	if raw == "" {
		return []string{"http://localhost:3000"}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
