package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IncIngestOutcome("recorded")
	m.IncIngestOutcome("recorded")
	m.IncIngestOutcome("cooldown")
	m.IncReconcileRun("ok", 3)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.IngestOutcome.WithLabelValues("recorded")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.IngestOutcome.WithLabelValues("cooldown")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ReconcileConverted))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncIngestOutcome("recorded")
		m.IncRecorded("check_in")
		m.IncReconcileRun("failed", 0)
		m.IncWebhook("accepted")
		m.IncStreamReconnect()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.IncWebhook("accepted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `hikvision_webhook_requests_total{result="accepted"} 1`)
}
