package telemetry

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	internaltelemetry "github.com/sushant-115/minidb/internal/telemetry"
)

func TestNew_DisabledIsNoop(t *testing.T) {
	tel, shutdown, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, tel.MeterProvider)
	assert.Nil(t, tel.Registry)
	assert.Empty(t, tel.MetricsAddr)
	assert.NotNil(t, tel.Meter)
	require.NoError(t, shutdown(context.Background()))
}

func TestNew_ServesBufferMetrics(t *testing.T) {
	tel, shutdown, err := New(Config{Enabled: true, ServiceName: "minidb-test", PrometheusPort: 0})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	metrics, err := internaltelemetry.NewBufferMetrics(tel.Meter)
	require.NoError(t, err)
	metrics.HitsCounter.Add(context.Background(), 3)

	_, port, err := net.SplitHostPort(tel.MetricsAddr)
	require.NoError(t, err)
	resp, err := http.Get("http://127.0.0.1:" + port + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "minidb_buffer_hits")
}
