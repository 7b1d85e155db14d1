package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Outcome("add", "done")
	m.Outcome("add", "done")
	m.Outcome("delete", "not_found")
	m.ParseFailure("format")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.outcomes.WithLabelValues("add", "done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.outcomes.WithLabelValues("delete", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parse.WithLabelValues("format")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Outcome("add", "done")
		m.ParseFailure("oracle")
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.Outcome("move", "failed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `nlcal_requests_total{action="move",state="failed"} 1`)
}
