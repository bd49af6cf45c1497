package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitialize(t *testing.T) {
	err := Initialize(true)
	require.NoError(t, err)
	assert.NotNil(t, GetLogger())

	// Second call is a no-op; the once guard keeps the first logger.
	err = Initialize(false)
	require.NoError(t, err)
}

func TestGetLogger_BeforeInit(t *testing.T) {
	// Must never return nil even before Initialize runs.
	assert.NotNil(t, GetLogger())
}

func TestAppendContextFields(t *testing.T) {
	ctx := context.WithValue(context.Background(), CorrelationIDKey, "cid-1")
	ctx = context.WithValue(ctx, SessionIDKey, "sid-1")
	ctx = context.WithValue(ctx, RoomIDKey, "room-1")

	fields := appendContextFields(ctx, nil)

	keys := make(map[string]string)
	for _, f := range fields {
		keys[f.Key] = f.String
	}
	assert.Equal(t, "cid-1", keys["correlation_id"])
	assert.Equal(t, "sid-1", keys["session_id"])
	assert.Equal(t, "room-1", keys["room_id"])
	assert.Equal(t, "socketio", keys["service"])
}

func TestAppendContextFields_NilContext(t *testing.T) {
	in := []zap.Field{zap.String("k", "v")}
	out := appendContextFields(nil, in)
	assert.Equal(t, in, out)
}

func TestAppendContextFields_EmptyContext(t *testing.T) {
	fields := appendContextFields(context.Background(), nil)
	// Only the service field is added.
	require.Len(t, fields, 1)
	assert.Equal(t, "service", fields[0].Key)
}

func TestLogHelpers_DoNotPanic(t *testing.T) {
	ctx := context.WithValue(context.Background(), SessionIDKey, "sid-2")
	Info(ctx, "info message", zap.Int("n", 1))
	Warn(ctx, "warn message")
	Error(ctx, "error message")
}
