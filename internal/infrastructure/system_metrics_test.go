package infrastructure

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSystemMetricsCollector(t *testing.T) {
	cfg := DefaultOTelConfig()
	cfg.EnableTracing = false
	providers, err := InitializeOTel(cfg, quietLogger())
	require.NoError(t, err)
	defer func() { _ = providers.Shutdown(context.Background()) }()

	collector, err := NewSystemMetricsCollector(providers.Meter, time.Hour)
	require.NoError(t, err)

	stats := collector.Sample(context.Background())
	assert.Positive(t, stats.GoRoutines)
	assert.Positive(t, stats.MemorySystem)

	rec := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "pit_system_goroutines")
}

func TestSystemMetricsCollectorStop(t *testing.T) {
	collector, err := NewSystemMetricsCollector(otel.Meter("pit-test"), 10*time.Millisecond)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		collector.Start(context.Background())
		close(done)
	}()

	collector.Stop()
	collector.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop")
	}
}

func TestSystemMetricsCollectorInterval(t *testing.T) {
	_, err := NewSystemMetricsCollector(otel.Meter("pit-test"), 0)
	assert.Error(t, err)
}
