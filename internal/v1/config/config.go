package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	Port string

	// Optional variables with defaults
	GoEnv           string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string

	// Redis adapter (optional)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisChannel  string

	// Engine tuning
	PingIntervalMs  int
	PingTimeoutMs   int
	MailboxCapacity int

	// Rate limits
	RateLimitWsIP string

	// Tracing (optional)
	TracingEnabled    bool
	OTelCollectorAddr string
}

// ValidateEnv validates all required environment variables and returns a Config object
// Returns an error if any required variable is missing or invalid
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errors = append(errors, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			// Default to localhost:6379 if not specified
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
		cfg.RedisChannel = getEnvOrDefault("REDIS_CHANNEL", "socketio")
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Engine tuning knobs. Defaults match the Engine.IO handshake values
	// advertised to clients.
	var err error
	if cfg.PingIntervalMs, err = getEnvInt("PING_INTERVAL_MS", 25000); err != nil {
		errors = append(errors, err.Error())
	}
	if cfg.PingTimeoutMs, err = getEnvInt("PING_TIMEOUT_MS", 20000); err != nil {
		errors = append(errors, err.Error())
	}
	if cfg.MailboxCapacity, err = getEnvInt("MAILBOX_CAPACITY", 16); err != nil {
		errors = append(errors, err.Error())
	}

	// Rate limits (M = Minute, H = Hour)
	cfg.RateLimitWsIP = getEnvOrDefault("RATE_LIMIT_WS_IP", "100-M")

	// Tracing
	cfg.TracingEnabled = os.Getenv("TRACING_ENABLED") == "true"
	cfg.OTelCollectorAddr = getEnvOrDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")

	// If there are validation errors, return them
	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	// Log validated configuration (with secrets redacted)
	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	// Validate port is a number
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	// Validate host is not empty
	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("✅ Environment configuration validated successfully")
	slog.Info("Configuration",
		"port", cfg.Port,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"redis_channel", cfg.RedisChannel,
		"redis_password", redactSecret(cfg.RedisPassword),
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
		"ping_interval_ms", cfg.PingIntervalMs,
		"ping_timeout_ms", cfg.PingTimeoutMs,
		"mailbox_capacity", cfg.MailboxCapacity,
		"rate_limit_ws_ip", cfg.RateLimitWsIP,
		"tracing_enabled", cfg.TracingEnabled,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable parsed as a positive integer,
// or the default if unset.
func getEnvInt(key string, defaultValue int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer (got '%s')", key, value)
	}
	return n, nil
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
