package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/YuminosukeSato/gwlearn/pkg/errors"
)

func TestTestLoggerCapturesLevelsAndFields(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationFit)
	testLogger.Warn("warning message", InvariantKey, 3)
	testLogger.Error("error message", fmt.Errorf("boom"), FocalIDKey, 7)

	require.NotEmpty(t, buffer.String())
	for _, msg := range []string{"debug message", "info message", "warning message", "error message"} {
		assert.True(t, testLogger.ContainsMessage(msg), msg)
	}
	assert.True(t, testLogger.ContainsField("key1", "value1"))
	assert.True(t, testLogger.ContainsField("number", 42.0))
	assert.True(t, testLogger.ContainsField(ErrAttrKey, "boom"))
	assert.True(t, testLogger.ContainsField(FocalIDKey, 7.0))
}

func TestTestLoggerWithAndEnabled(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	assert.True(t, testLogger.Enabled(ctx, LevelInfo))
	assert.True(t, testLogger.Enabled(ctx, LevelError))
	assert.False(t, testLogger.Enabled(ctx, LevelDebug))

	child := testLogger.With(ModelNameKey, "GWClassifier", BandwidthKey, 150.0)
	child.Debug("hidden")
	child.Info("visible", BatchKey, 1)

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "GWClassifier", entries[0][ModelNameKey])
	assert.Equal(t, 150.0, entries[0][BandwidthKey])
	assert.Equal(t, 1.0, entries[0][BatchKey])
}

func TestTestLoggerConcurrentWrites(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			testLogger.With(FocalIDKey, i).Info("fitted")
		}(i)
	}
	wg.Wait()

	entries, err := testLogger.GetLogEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 16)
}

func TestProvider(t *testing.T) {
	provider, buffer := NewTestLoggerProvider(LevelDebug)
	provider.GetLogger().Info("provider message")
	provider.GetLoggerWithName("graph").Info("named message")

	out := buffer.String()
	assert.Contains(t, out, "provider message")
	assert.Contains(t, out, `"ml.component":"graph"`)
}

func TestDefaultLogger(t *testing.T) {
	defer SetLogger(nil)

	testLogger, _ := NewTestLogger(LevelDebug)
	SetLogger(testLogger)
	GetLoggerWithName("gw").Info("through default")

	assert.True(t, testLogger.ContainsField(ComponentKey, "gw"))

	SetLogger(nil)
	_, ok := GetLogger().(*slogLogger)
	assert.True(t, ok, "nil should restore the slog adapter")
}

func TestSlogLoggerWithErrFmtHandler(t *testing.T) {
	var buf bytes.Buffer
	h := WrapByErrFmtHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	logger := NewSlogLogger(slog.New(h)).With(ModelNameKey, "GWClassifier")

	logger.Error("fit failed", errors.New("local model failed"), FocalIDKey, 2)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "fit failed", entry["msg"])
	assert.Equal(t, "GWClassifier", entry[ModelNameKey])
	assert.Equal(t, "local model failed", entry[ErrAttrKey])
	assert.Contains(t, entry, StacktraceAttrKey)
	assert.True(t, logger.Enabled(context.Background(), LevelDebug))
}

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	require.NoError(t, SetupLogger(&buf, "warn"))
	GetLogger().Info("dropped")
	GetLogger().Warn("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, `"severity":"WARN"`)
	assert.Contains(t, out, `"message":"kept"`)

	assert.Error(t, SetupLogger(&buf, "verbose"))
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		err  bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestZerologLogger(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf).Level(zerolog.InfoLevel)
	logger := NewZerologLogger(zl).With(ModelNameKey, "GWClassifier")

	assert.False(t, logger.Enabled(context.Background(), LevelDebug))
	assert.True(t, logger.Enabled(context.Background(), LevelWarn))

	logger.Debug("hidden")
	logger.Info("fitted", FittedKey, 4)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "fitted", entry["message"])
	assert.Equal(t, 4.0, entry[FittedKey])
	assert.Equal(t, "GWClassifier", entry[ModelNameKey])
}

func TestEnableZerologWarnings(t *testing.T) {
	defer DisableZerologWarnings()

	var buf bytes.Buffer
	EnableZerologWarnings(zerolog.New(&buf))
	gwerrors.Warn(gwerrors.NewInvariantNeighborhoodWarning([]int{1, 4}))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	warning, ok := entry["warning"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "InvariantNeighborhoodWarning", warning["type"])
	assert.Equal(t, []interface{}{1.0, 4.0}, warning["focal_ids"])
}
