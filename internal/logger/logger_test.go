package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesToConfiguredWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithQuiet(), WithWriter(&buf), WithFormat("json"))

	lg.Info("merging finished", "table", "products")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "merging finished", record["msg"])
	assert.Equal(t, "products", record["table"])
	assert.Equal(t, "INFO", record["level"])
}

func TestDebugSuppressedByDefault(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithQuiet(), WithWriter(&buf))

	lg.Debug("noise")
	assert.Empty(t, buf.String())

	lg = NewLogger(WithQuiet(), WithWriter(&buf), WithDebug())
	lg.Debug("signal")
	assert.Contains(t, buf.String(), "signal")
}

func TestWithAttachesAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithQuiet(), WithWriter(&buf), WithFormat("json"))

	lg.With("catalog", "clothes").Info("page collected", "page", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "clothes", record["catalog"])
	assert.Equal(t, float64(3), record["page"])
}

func TestInfofFormats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithQuiet(), WithWriter(&buf))

	lg.Infof("processed %d of %d categories", 10, 40)
	assert.Contains(t, buf.String(), "processed 10 of 40 categories")
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithQuiet(), WithWriter(&buf), WithFormat("json"))

	ctx := WithLogger(context.Background(), lg)
	ctx = WithValues(ctx, "cycle", "full")
	Info(ctx, "started")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "started", record["msg"])
	assert.Equal(t, "full", record["cycle"])
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	t.Parallel()

	assert.NotNil(t, FromContext(context.Background()))
}

func TestGuardedHandlerConcurrentWrites(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	lg := NewLogger(WithQuiet(), WithWriter(&buf))

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				lg.Info("concurrent write probe")
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 400)
	for _, line := range lines {
		assert.Contains(t, line, "concurrent write probe")
	}
}
