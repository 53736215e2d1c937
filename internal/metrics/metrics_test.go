package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	m, err := New(nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	m.RecordRequest("SELECT", "success", time.Second)
	m.RecordFetch(false, time.Second)
	m.RecordCacheHit("p")
	m.TaskQueued()
	m.TaskStarted()
	m.TaskDone()
}

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RecordRequest("SELECT", "success", 10*time.Millisecond)
	m.RecordRequest("SELECT", "success", 10*time.Millisecond)
	m.RecordRequestTimeout("ASK")
	m.RecordFetch(true, time.Millisecond)
	m.RecordFetch(false, time.Millisecond)
	m.RecordCacheHit("dbpedia")
	m.RecordCacheMiss("dbpedia")
	m.RecordCacheError("put")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("SELECT", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestTimeouts.WithLabelValues("ASK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetchTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHits.WithLabelValues("dbpedia")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheErrors.WithLabelValues("put")))

	m.TaskQueued()
	m.TaskQueued()
	m.TaskStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queuedTasks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeTasks))
	m.TaskAbandoned()
	m.TaskDone()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queuedTasks))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeTasks))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}
