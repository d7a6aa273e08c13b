package infrastructure

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitloader/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOTelInitialization(t *testing.T) {
	cfg := DefaultOTelConfig()
	var spans bytes.Buffer
	cfg.TraceWriter = &spans

	providers, err := InitializeOTel(cfg, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.NotNil(t, providers.TracerProvider)
	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.MeterProvider)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.PrometheusHTTP)

	ctx, span := providers.Tracer.Start(context.Background(), "pit.test")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	AddSpanEvent(ctx, "checkpoint", map[string]interface{}{"rows": 3, "dataset": "cash"})
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, providers.Shutdown(ctx))
	assert.Contains(t, spans.String(), "pit.test")
}

func TestOTelDisabled(t *testing.T) {
	cfg := OTelConfigFrom(config.TelemetryConfig{ServiceName: "pit-test"})
	providers, err := InitializeOTel(cfg, quietLogger())
	require.NoError(t, err)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.MeterProvider)
	assert.Nil(t, providers.PrometheusHTTP)
	assert.NotNil(t, providers.Tracer, "falls back to the global tracer")
	assert.NotNil(t, providers.Meter, "falls back to the global meter")
	assert.Equal(t, "", TraceIDFromContext(context.Background()))
	assert.NoError(t, providers.Shutdown(context.Background()))
}

func TestOTelUnsupportedExporter(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.TraceExporter = "zipkin"
	_, err := InitializeOTel(cfg, quietLogger())
	assert.Error(t, err)

	cfg = DefaultOTelConfig()
	cfg.EnableTracing = false
	cfg.MetricExporter = "statsd"
	_, err = InitializeOTel(cfg, quietLogger())
	assert.Error(t, err)
}

func TestLoaderMetricsExported(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.EnableTracing = false
	providers, err := InitializeOTel(cfg, quietLogger())
	require.NoError(t, err)
	defer func() { _ = providers.Shutdown(context.Background()) }()

	metrics, err := CreateLoaderMetrics(providers.Meter)
	require.NoError(t, err)

	ctx := context.Background()
	RecordLoadMetrics(ctx, metrics, "cash", 25*time.Millisecond, "")
	RecordLoadMetrics(ctx, metrics, "share", time.Millisecond, "schema")
	metrics.CellsProjected.Add(ctx, 62)
	RecordLoadMetrics(ctx, nil, "cash", time.Second, "")

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "pit_loads_total")
	assert.Contains(t, body, "pit_load_duration_seconds")
	assert.Contains(t, body, "pit_cells_projected_total")
	assert.Contains(t, body, `error_type="schema"`)
}
