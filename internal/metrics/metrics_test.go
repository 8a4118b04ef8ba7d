package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RunLifecycle(t *testing.T) {
	c := NewCollector(nil)

	c.RunStarted()
	c.RunStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(c.activeRuns))

	c.RunFinished("invalid", 40, 120*time.Millisecond)
	assert.Equal(t, float64(1), testutil.ToFloat64(c.activeRuns))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsTotal.WithLabelValues("invalid")))
	assert.Equal(t, float64(40), testutil.ToFloat64(c.rowsTotal))

	c.Diagnostic("duplicate_key", "error")
	c.Diagnostic("duplicate_key", "error")
	assert.Equal(t, float64(2), testutil.ToFloat64(c.diagnostics.WithLabelValues("duplicate_key", "error")))

	c.Rejected("busy")
	assert.Equal(t, float64(1), testutil.ToFloat64(c.rejections.WithLabelValues("busy")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RunStarted()
		c.RunFinished("valid", 1, time.Second)
		c.Diagnostic("pattern", "error")
		c.Rejected("timeout")
	})
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(nil)
	c.RunStarted()
	c.RunFinished("valid", 3, time.Second)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "csvlint_runs_total")
	assert.Contains(t, rec.Body.String(), "csvlint_rows_validated_total")
}
