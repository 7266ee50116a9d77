// Package metrics provides Prometheus instrumentation for the push and bulk
// read paths.
//
// # Basic Usage
//
//	c := metrics.Default()
//	timer := metrics.NewTimer()
//	// push ...
//	c.ObservePush("fast", rows, bytes, timer.Stop())
//
// Tests build an isolated collector with NewCollector(prometheus.NewRegistry()).
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "qdbbatch"

// Collector holds the qdbbatch metrics registered against one registerer.
// It is safe for concurrent use.
type Collector struct {
	RowsPushed   *prometheus.CounterVec
	PushDuration *prometheus.HistogramVec
	PushBytes    *prometheus.CounterVec
	Errors       *prometheus.CounterVec
	RowsRead     prometheus.Counter
	BulkReads    prometheus.Counter
}

// NewCollector registers the qdbbatch metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		RowsPushed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_pushed_total",
			Help:      "Rows handed to the engine, by push mode",
		}, []string{"mode"}),
		PushDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "push_duration_seconds",
			Help:      "Time from encode start to engine answer, by push mode",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
		}, []string{"mode"}),
		PushBytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_bytes_total",
			Help:      "Encoded frame bytes handed to the engine, by push mode",
		}, []string{"mode"}),
		Errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed operations by operation and error kind",
		}, []string{"op", "kind"}),
		RowsRead: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Rows delivered by bulk readers",
		}),
		BulkReads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bulk_reads_total",
			Help:      "Bulk readers opened",
		}),
	}
}

var (
	defaultOnce      sync.Once
	defaultCollector *Collector
)

// Default returns the collector registered with prometheus.DefaultRegisterer.
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultCollector = NewCollector(prometheus.DefaultRegisterer)
	})
	return defaultCollector
}

// ObservePush records one successful push.
func (c *Collector) ObservePush(mode string, rows, bytes int, d time.Duration) {
	c.RowsPushed.WithLabelValues(mode).Add(float64(rows))
	c.PushBytes.WithLabelValues(mode).Add(float64(bytes))
	c.PushDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveError records a failed operation.
func (c *Collector) ObserveError(op, kind string) {
	c.Errors.WithLabelValues(op, kind).Inc()
}

// Timer measures elapsed time.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
