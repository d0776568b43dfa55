package obs

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLog(zap.New(core)).With("component", "relay")
	l.Warn("relay_delivery_failed", "sequence", uint64(4))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "relay_delivery_failed", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "relay", fields["component"])
	assert.EqualValues(t, 4, fields["sequence"])
}

func TestInitLoggerModes(t *testing.T) {
	prev := Logger
	t.Cleanup(func() { Logger = prev })
	for _, mode := range []string{"production", "development", ""} {
		require.NoError(t, InitLogger(mode), mode)
		Logger.Debug("probe")
	}
}

func TestInitTracerWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracer("marketplace-ledger-test", 1, &buf)
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "ledger.Create")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, buf.String(), `"Name":"ledger.Create"`)
	assert.Contains(t, buf.String(), "marketplace-ledger-test")
}
