package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// bufferLogger builds a logger with the production encoder writing to buf
func bufferLogger(t *testing.T, buf *bytes.Buffer) *zap.Logger {
	t.Helper()

	cfg, err := Config("production", "debug")
	require.NoError(t, err)

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.AddSync(buf),
		cfg.Level,
	)
	return zap.New(core)
}

// Property: Logs are structured
func TestProperty_LogsAreStructured(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("all log entries are in structured JSON format", prop.ForAll(
		func(message string, level string) bool {
			var buf bytes.Buffer
			logger := bufferLogger(t, &buf).Named("orders")

			switch level {
			case "debug":
				logger.Debug(message, zap.String("order_id", "o-1"))
			case "warn":
				logger.Warn(message, zap.String("order_id", "o-1"))
			case "error":
				logger.Error(message, zap.String("order_id", "o-1"))
			default:
				logger.Info(message, zap.String("order_id", "o-1"))
			}

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				return false
			}

			return entry["level"] == level &&
				entry["msg"] == message &&
				entry["logger"] == "orders" &&
				entry["order_id"] == "o-1"
		},
		gen.AlphaString(),
		gen.OneConstOf("debug", "info", "warn", "error"),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestConfig(t *testing.T) {
	t.Run("production", func(t *testing.T) {
		cfg, err := Config("production", "")
		require.NoError(t, err)
		assert.Equal(t, "json", cfg.Encoding)
		assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
		assert.False(t, cfg.Level.Enabled(zapcore.DebugLevel))
	})

	t.Run("development", func(t *testing.T) {
		cfg, err := Config("development", "")
		require.NoError(t, err)
		assert.Equal(t, "console", cfg.Encoding)
		assert.True(t, cfg.Level.Enabled(zapcore.DebugLevel))
	})

	t.Run("level override", func(t *testing.T) {
		cfg, err := Config("development", "warn")
		require.NoError(t, err)
		assert.False(t, cfg.Level.Enabled(zapcore.InfoLevel))
		assert.True(t, cfg.Level.Enabled(zapcore.WarnLevel))
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := Config("production", "chatty")
		assert.Error(t, err)
	})
}

func TestNew(t *testing.T) {
	logger, err := New("production", "info")
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = New("production", "chatty")
	assert.Error(t, err)
}
