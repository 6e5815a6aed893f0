// Package prometheus provides Prometheus implementations of the metrics
// interfaces for both pillars (Actor, Transport).
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/troupe-go/core/metrics"
)

// timer wraps a Prometheus histogram to implement the Timer interface.
type timer struct {
	h     prometheus.Observer
	start time.Time
}

func newTimer(h prometheus.Observer) metrics.Timer {
	return &timer{h: h, start: time.Now()}
}

func (t *timer) ObserveDuration() {
	t.h.Observe(time.Since(t.start).Seconds())
}

// Default histogram buckets for latency metrics (in seconds).
var defaultBuckets = []float64{
	.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

func boolToStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// AllMetrics holds Prometheus implementations for both pillars.
// Use this when you want to initialize metrics for your entire application
// at once.
type AllMetrics struct {
	Actor     *actorMetrics
	Transport *transportMetrics
}

// NewAllMetrics creates Prometheus metrics for both pillars.
func NewAllMetrics(reg prometheus.Registerer) *AllMetrics {
	return &AllMetrics{
		Actor:     NewActorMetrics(reg).(*actorMetrics),
		Transport: NewTransportMetrics(reg).(*transportMetrics),
	}
}
