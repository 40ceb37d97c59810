package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/Amund211/assetcache/internal/logging"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestTracingLogHandler(t *testing.T) {
	t.Parallel()

	newLogger := func() (*slog.Logger, *bytes.Buffer) {
		buf := &bytes.Buffer{}
		return slog.New(logging.NewTracingLogHandler(slog.NewJSONHandler(buf, nil))), buf
	}

	t.Run("adds span info", func(t *testing.T) {
		t.Parallel()

		logger, buf := newLogger()
		sc := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    trace.TraceID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10},
			SpanID:     trace.SpanID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(t.Context(), sc)

		logger.With("component", "cache").InfoContext(ctx, "test")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		require.Equal(t, "0102030405060708090a0b0c0d0e0f10", entry["trace_id"])
		require.Equal(t, "0102030405060708", entry["span_id"])
		require.Equal(t, true, entry["trace_sampled"])
		require.Equal(t, "cache", entry["component"])
	})

	t.Run("no span info without span", func(t *testing.T) {
		t.Parallel()

		logger, buf := newLogger()
		logger.InfoContext(t.Context(), "test")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		require.NotContains(t, entry, "trace_id")
		require.NotContains(t, entry, "span_id")
	})
}
