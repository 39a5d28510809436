package infra

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountsOutcomes(t *testing.T) {
	m := NewMetrics()
	m.ObserveFulfillment("placed", 1)
	m.ObserveFulfillment("placed", 2)
	m.ObserveFulfillment("insufficient_stock", 3)
	m.ObserveTransfer("completed")
	m.ObserveRetry("fulfill")
	m.ObserveRetry("fulfill")
	m.ObserveRelay("published", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fulfillments.WithLabelValues("placed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fulfillments.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.retries.WithLabelValues("fulfill")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.relayed.WithLabelValues("published")))
}

func TestMetrics_HandlerExposesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObserveTransfer("failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `stock_transfers_total{outcome="failed"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
