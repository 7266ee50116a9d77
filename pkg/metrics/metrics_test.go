package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePush(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.ObservePush("fast", 10, 512, 3*time.Millisecond)
	c.ObservePush("fast", 5, 128, time.Millisecond)
	c.ObservePush("async", 1, 64, time.Millisecond)

	assert.Equal(t, 15.0, promtest.ToFloat64(c.RowsPushed.WithLabelValues("fast")))
	assert.Equal(t, 640.0, promtest.ToFloat64(c.PushBytes.WithLabelValues("fast")))
	assert.Equal(t, 1.0, promtest.ToFloat64(c.RowsPushed.WithLabelValues("async")))
	assert.Equal(t, 2, promtest.CollectAndCount(c.PushDuration))
}

func TestObserveError(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	c.ObserveError("push", "partial_failure")
	c.ObserveError("push", "partial_failure")
	assert.Equal(t, 2.0, promtest.ToFloat64(c.Errors.WithLabelValues("push", "partial_failure")))
}

func TestDefaultIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), time.Millisecond)
}
