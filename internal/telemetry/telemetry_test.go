package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

func TestTracerProviderLogsSpans(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tp := NewTracerProvider("modulekitd-test", logger)
	defer tp.Shutdown(context.Background())

	_, span := tp.Tracer("test").Start(context.Background(), "modulekit.enable")
	span.SetAttributes(attribute.String("modulekit.module", "assets"), attribute.Bool("modulekit.ok", true))
	span.End()

	_, failed := tp.Tracer("test").Start(context.Background(), "modulekit.disable")
	failed.SetStatus(codes.Error, "module depreciation depends on this module")
	failed.End()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "DEBUG", first["level"])
	assert.Equal(t, "modulekit.enable", first["span"])
	assert.Equal(t, "assets", first["modulekit.module"])
	assert.Equal(t, "true", first["modulekit.ok"])
	assert.Len(t, first["trace_id"], 32)

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "WARN", second["level"])
	assert.Equal(t, "module depreciation depends on this module", second["status"])
}

func TestExporterShutdown(t *testing.T) {
	e := NewLogSpanExporter(nil)
	assert.NoError(t, e.ExportSpans(context.Background(), nil))
	assert.NoError(t, e.Shutdown(context.Background()))
}
