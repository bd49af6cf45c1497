package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEnv_MissingPort(t *testing.T) {
	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT is required")
}

func TestValidateEnv_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT must be a valid port number")

	t.Setenv("PORT", "70000")
	_, err = ValidateEnv()
	require.Error(t, err)
}

func TestValidateEnv_Defaults(t *testing.T) {
	t.Setenv("PORT", "8080")

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "production", cfg.GoEnv)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.RedisEnabled)
	assert.Equal(t, 25000, cfg.PingIntervalMs)
	assert.Equal(t, 20000, cfg.PingTimeoutMs)
	assert.Equal(t, 16, cfg.MailboxCapacity)
	assert.Equal(t, "100-M", cfg.RateLimitWsIP)
	assert.False(t, cfg.TracingEnabled)
}

func TestValidateEnv_RedisEnabled(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("REDIS_CHANNEL", "chat-bus")

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.True(t, cfg.RedisEnabled)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.Equal(t, "chat-bus", cfg.RedisChannel)
}

func TestValidateEnv_RedisDefaultsWhenEnabled(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, "socketio", cfg.RedisChannel)
}

func TestValidateEnv_InvalidRedisAddr(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "no-port")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_ADDR must be in format 'host:port'")
}

func TestValidateEnv_EngineTuning(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("PING_INTERVAL_MS", "100")
	t.Setenv("PING_TIMEOUT_MS", "50")
	t.Setenv("MAILBOX_CAPACITY", "32")

	cfg, err := ValidateEnv()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.PingIntervalMs)
	assert.Equal(t, 50, cfg.PingTimeoutMs)
	assert.Equal(t, 32, cfg.MailboxCapacity)
}

func TestValidateEnv_InvalidTuning(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MAILBOX_CAPACITY", "zero")

	_, err := ValidateEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAILBOX_CAPACITY must be a positive integer")

	t.Setenv("MAILBOX_CAPACITY", "0")
	_, err = ValidateEnv()
	require.Error(t, err)
}

func TestIsValidHostPort(t *testing.T) {
	assert.True(t, isValidHostPort("localhost:6379"))
	assert.True(t, isValidHostPort("10.0.0.1:1"))
	assert.False(t, isValidHostPort("localhost"))
	assert.False(t, isValidHostPort(":6379"))
	assert.False(t, isValidHostPort("host:port"))
	assert.False(t, isValidHostPort("host:0"))
	assert.False(t, isValidHostPort("a:b:c"))
}

func TestRedactSecret(t *testing.T) {
	assert.Equal(t, "", redactSecret(""))
	assert.Equal(t, "***", redactSecret("short"))
	assert.Equal(t, "12345678***", redactSecret("1234567890abcdef"))
}
