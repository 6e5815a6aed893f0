package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/troupe-go/core/metrics"
	"github.com/codewandler/troupe-go/core/proc"
)

// transportMetrics implements proc.TransportMetrics using Prometheus.
type transportMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	pendingRequests *prometheus.GaugeVec
	respawnsTotal   *prometheus.CounterVec
}

// NewTransportMetrics creates a new Prometheus implementation of
// TransportMetrics.
func NewTransportMetrics(reg prometheus.Registerer) proc.TransportMetrics {
	m := &transportMetrics{
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "troupe_transport_request_duration_seconds",
			Help:    "Round trip time over the transport in seconds",
			Buckets: defaultBuckets,
		}, []string{"frame_type"}),

		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "troupe_transport_requests_total",
			Help: "Total number of completed round trips",
		}, []string{"frame_type", "success"}),

		pendingRequests: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "troupe_transport_pending_requests",
			Help: "Requests awaiting a response per proxy",
		}, []string{"actor_id"}),

		respawnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "troupe_transport_respawns_total",
			Help: "Total number of successful respawns after a crash",
		}, []string{"actor_id"}),
	}

	reg.MustRegister(
		m.requestDuration,
		m.requestsTotal,
		m.pendingRequests,
		m.respawnsTotal,
	)

	return m
}

func (m *transportMetrics) RequestDuration(frameType string) metrics.Timer {
	return newTimer(m.requestDuration.WithLabelValues(frameType))
}

func (m *transportMetrics) RequestCompleted(frameType string, success bool) {
	m.requestsTotal.WithLabelValues(frameType, boolToStr(success)).Inc()
}

func (m *transportMetrics) PendingRequests(actorID string, count int) {
	m.pendingRequests.WithLabelValues(actorID).Set(float64(count))
}

func (m *transportMetrics) Respawned(actorID string) {
	m.respawnsTotal.WithLabelValues(actorID).Inc()
}

var _ proc.TransportMetrics = (*transportMetrics)(nil)
