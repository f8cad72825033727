package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/prism/pulse/async"
)

func TestObserveJob(t *testing.T) {
	m := New()
	m.ObserveJob(async.QueueSearch, "search.entity", async.OutcomeCompleted, 20*time.Millisecond)
	m.ObserveJob(async.QueueSearch, "search.entity", async.OutcomeCompleted, 30*time.Millisecond)
	m.ObserveJob(async.QueueGraph, "graph.entity", async.OutcomeRetried, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.JobsProcessed.WithLabelValues(async.QueueSearch, "search.entity", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsProcessed.WithLabelValues(async.QueueGraph, "graph.entity", "retried")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.JobDuration))
}

func TestObserveReconcile(t *testing.T) {
	m := New()
	finished := time.Unix(1717236000, 0)

	m.ObserveReconcile(ResultSkipped, 0, finished)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ReconcileLast))

	m.ObserveReconcile(ResultOK, 12, finished)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRuns.WithLabelValues(ResultOK)))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ReconcileCount))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.ReconcileLast))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObserveFanout("entity", 3)
	assert.Equal(t, 1, testutil.CollectAndCount(a.FanoutUnits))
	assert.Equal(t, 0, testutil.CollectAndCount(b.FanoutUnits))
}

func TestHandlerServesText(t *testing.T) {
	m := New()
	m.ObserveFanout("collection", 40)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `prism_fanout_units_count{model="collection"} 1`)
}
