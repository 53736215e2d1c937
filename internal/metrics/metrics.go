// Package metrics exposes Prometheus collectors for the federation engine.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without a registry in tests and in the CLI query command.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sparqlfed"

// Metrics holds the gateway collectors.
type Metrics struct {
	// Federated requests
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestTimeouts *prometheus.CounterVec

	// Per-endpoint fetches
	fetchTotal    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	// Cache
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheErrors *prometheus.CounterVec

	// Pool
	activeTasks prometheus.Gauge
	queuedTasks prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil registerer
// returns nil.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of federated requests",
		}, []string{"query_type", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Federated request duration including merge",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query_type"}),
		requestTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_timeouts_total",
			Help:      "Federated requests merged before every endpoint reported",
		}, []string{"query_type"}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "endpoint_fetch_total",
			Help:      "Total number of remote endpoint fetches",
		}, []string{"status"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "endpoint_fetch_duration_seconds",
			Help:      "Remote endpoint fetch duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Endpoint responses served from the cache",
		}, []string{"project"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Endpoint responses not found in the cache",
		}, []string{"project"}),
		cacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Cache backend errors",
		}, []string{"operation"}),
		activeTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_active_tasks",
			Help:      "Endpoint fetch tasks currently holding a pool slot",
		}),
		queuedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_queued_tasks",
			Help:      "Endpoint fetch tasks waiting for a pool slot",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.requestsTotal, m.requestDuration, m.requestTimeouts,
		m.fetchTotal, m.fetchDuration,
		m.cacheHits, m.cacheMisses, m.cacheErrors,
		m.activeTasks, m.queuedTasks,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordRequest records a finished federated request.
func (m *Metrics) RecordRequest(queryType, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(queryType, status).Inc()
	m.requestDuration.WithLabelValues(queryType).Observe(d.Seconds())
}

// RecordRequestTimeout records a request that hit its deadline.
func (m *Metrics) RecordRequestTimeout(queryType string) {
	if m == nil {
		return
	}
	m.requestTimeouts.WithLabelValues(queryType).Inc()
}

// RecordFetch records a remote fetch outcome.
func (m *Metrics) RecordFetch(success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.fetchTotal.WithLabelValues(status).Inc()
	m.fetchDuration.WithLabelValues(status).Observe(d.Seconds())
}

// RecordCacheHit records a cache hit for project.
func (m *Metrics) RecordCacheHit(project string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(project).Inc()
}

// RecordCacheMiss records a cache miss for project.
func (m *Metrics) RecordCacheMiss(project string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(project).Inc()
}

// RecordCacheError records a failed cache operation ("get", "put", "flush").
func (m *Metrics) RecordCacheError(operation string) {
	if m == nil {
		return
	}
	m.cacheErrors.WithLabelValues(operation).Inc()
}

// TaskQueued marks a task waiting for a pool slot.
func (m *Metrics) TaskQueued() {
	if m == nil {
		return
	}
	m.queuedTasks.Inc()
}

// TaskStarted moves a task from queued to active.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.queuedTasks.Dec()
	m.activeTasks.Inc()
}

// TaskAbandoned removes a queued task that never got a slot.
func (m *Metrics) TaskAbandoned() {
	if m == nil {
		return
	}
	m.queuedTasks.Dec()
}

// TaskDone releases an active task.
func (m *Metrics) TaskDone() {
	if m == nil {
		return
	}
	m.activeTasks.Dec()
}
