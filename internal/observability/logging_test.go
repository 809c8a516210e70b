package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     LogConfig
		wantErr bool
	}{
		{
			name: "json logger",
			cfg:  LogConfig{Level: "info", Format: "json", Output: "stdout"},
		},
		{
			name: "console logger",
			cfg:  LogConfig{Level: "debug", Format: "console", Output: "stderr"},
		},
		{
			name:    "invalid level",
			cfg:     LogConfig{Level: "verbose", Format: "json"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}

func TestContextRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestIDFromContext(ctx))

	ctx = ContextWithRequestID(ctx, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestContextTraceID(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "trace-abc")
	assert.Equal(t, "trace-abc", TraceIDFromContext(ctx))
}

func TestWithContextAddsFields(t *testing.T) {
	logger := NopLogger()

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTraceID(ctx, "trace-1")

	enriched := logger.WithContext(ctx)
	assert.NotNil(t, enriched)

	// Empty context returns the original logger unchanged.
	same := logger.WithContext(context.Background())
	assert.Equal(t, logger, same)
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()
	require.NotNil(t, logger)

	logger.Debug("debug")
	logger.Info("info", String("k", "v"))
	logger.Warn("warn")
	logger.Error("error", Error(nil))
	assert.NoError(t, logger.Sync())
}
