package logging

import (
	"bytes"
	"context"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

// resetGlobalLogger resets global logger state for test isolation
func resetGlobalLogger(t *testing.T) {
	t.Helper()
	globalLogger = nil
	initOnce = sync.Once{}
	require.NoError(t, SetPackageLogLevels(map[string]string{}))
}

// captureOutput redirects both output streams for the duration of f.
func captureOutput(t *testing.T, f func()) (stdout, stderr string) {
	t.Helper()
	t.Setenv("LOG_TIMESTAMP", "2024-01-01T00:00:00Z")

	var outBuf, errBuf bytes.Buffer
	oldLog := log.Writer()
	oldFlags := log.Flags()
	oldErr := errorOutput
	log.SetOutput(&outBuf)
	log.SetFlags(0)
	errorOutput = &errBuf
	defer func() {
		log.SetOutput(oldLog)
		log.SetFlags(oldFlags)
		errorOutput = oldErr
	}()

	f()
	return outBuf.String(), errBuf.String()
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel LogLevel
	}{
		{"debug level", "debug", DEBUG},
		{"info level", "info", INFO},
		{"warn level", "warn", WARN},
		{"error level", "error", ERROR},
		{"fatal level", "fatal", FATAL},
		{"mixed case", "WaRn", WARN},
		{"invalid falls back to info", "verbose", INFO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetGlobalLogger(t)
			require.NoError(t, Initialize(tt.level))
			require.NotNil(t, globalLogger)
			assert.Equal(t, tt.wantLevel, globalLogger.level)
			assert.Equal(t, "tripwire", globalLogger.name)
		})
	}
}

func TestGetLoggerLazyInit(t *testing.T) {
	resetGlobalLogger(t)

	logger := GetLogger("trigger")

	require.NotNil(t, logger)
	assert.Equal(t, INFO, logger.level)
	assert.Equal(t, "trigger", logger.Name())
	assert.NotNil(t, logger.fields)
}

func TestLevelFiltering(t *testing.T) {
	resetGlobalLogger(t)
	require.NoError(t, Initialize("warn"))
	logger := GetLogger("store")

	stdout, stderr := captureOutput(t, func() {
		logger.Debug("hidden debug")
		logger.Info("hidden info")
		logger.Warn("visible warn %d", 1)
		logger.Error("visible error")
	})

	assert.NotContains(t, stdout, "hidden")
	assert.Contains(t, stdout, "[2024-01-01T00:00:00Z] [WARN] store: visible warn 1")
	assert.Contains(t, stderr, "[ERROR] store: visible error")
	assert.NotContains(t, stdout, "visible error")
}

func TestPackageLevels(t *testing.T) {
	resetGlobalLogger(t)
	require.NoError(t, Initialize("info", map[string]string{
		"pipeline.*":    "debug",
		"pipeline.loop": "error",
	}))

	tests := []struct {
		name string
		want LogLevel
	}{
		{"pipeline.loop", ERROR},
		{"pipeline.run", DEBUG},
		{"pipeline", DEBUG},
		{"store", LogLevel(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetPackageLogLevel(tt.name))
		})
	}

	stdout, _ := captureOutput(t, func() {
		GetLogger("pipeline.run").Debug("debug from run")
		GetLogger("store").Debug("debug from store")
	})
	assert.Contains(t, stdout, "debug from run")
	assert.NotContains(t, stdout, "debug from store")
}

func TestSetPackageLogLevelsInvalid(t *testing.T) {
	resetGlobalLogger(t)
	err := SetPackageLogLevels(map[string]string{"store": "loud"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"store"`)
}

func TestFieldsAreSortedAndMerged(t *testing.T) {
	resetGlobalLogger(t)
	require.NoError(t, Initialize("info"))

	base := GetLogger("trigger").WithField("run", 7).WithField("metric", "cpu_usage")

	stdout, _ := captureOutput(t, func() {
		base.InfoWithFields("done", Field("anomalies", 2), Field("metric", "heap_usage_mb"))
	})

	assert.Contains(t, stdout, "done | anomalies=2 metric=heap_usage_mb run=7")
}

func TestWithFieldDoesNotMutateParent(t *testing.T) {
	resetGlobalLogger(t)
	parent := GetLogger("trigger")
	child := parent.WithField("k", "v")

	assert.Empty(t, parent.fields)
	assert.Equal(t, "v", child.fields["k"])
}

func TestContextFields(t *testing.T) {
	resetGlobalLogger(t)
	require.NoError(t, Initialize("info"))

	t.Run("explicit keys", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), TraceIDKey(), "trace-123")
		ctx = context.WithValue(ctx, SpanIDKey(), "span-456")

		stdout, _ := captureOutput(t, func() {
			GetLogger("pipeline").WithContext(ctx).Info("run")
		})
		assert.Contains(t, stdout, "span_id=span-456 trace_id=trace-123")
	})

	t.Run("otel span context", func(t *testing.T) {
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID: trace.TraceID{0x01},
			SpanID:  trace.SpanID{0x02},
		})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		fields := extractContextFields(ctx)
		assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
		assert.Equal(t, sc.SpanID().String(), fields["span_id"])
	})

	t.Run("empty context", func(t *testing.T) {
		assert.Nil(t, extractContextFields(context.Background()))
		assert.Nil(t, extractContextFields(nil))
	})
}

func TestFatalCallsExit(t *testing.T) {
	resetGlobalLogger(t)
	var code int
	oldExit := exitFunc
	exitFunc = func(c int) { code = c }
	defer func() { exitFunc = oldExit }()

	_, stderr := captureOutput(t, func() {
		GetLogger("main").Fatal("boom")
	})

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "[FATAL] main: boom")
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "WARN", WARN.String())
	assert.Equal(t, "LEVEL(9)", LogLevel(9).String())
}
