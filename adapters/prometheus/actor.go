package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/troupe-go/core/actor"
	"github.com/codewandler/troupe-go/core/metrics"
)

// actorMetrics implements actor.ActorMetrics using Prometheus.
type actorMetrics struct {
	messageDuration *prometheus.HistogramVec
	messagesTotal   *prometheus.CounterVec
	mailboxDepth    *prometheus.GaugeVec
}

// NewActorMetrics creates a new Prometheus implementation of ActorMetrics.
func NewActorMetrics(reg prometheus.Registerer) actor.ActorMetrics {
	m := &actorMetrics{
		messageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "troupe_actor_message_duration_seconds",
			Help:    "Message handling time in seconds",
			Buckets: defaultBuckets,
		}, []string{"topic"}),

		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "troupe_actor_messages_total",
			Help: "Total number of messages processed",
		}, []string{"topic", "success"}),

		mailboxDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "troupe_actor_mailbox_depth",
			Help: "Current mailbox queue depth",
		}, []string{"actor_id"}),
	}

	reg.MustRegister(
		m.messageDuration,
		m.messagesTotal,
		m.mailboxDepth,
	)

	return m
}

func (m *actorMetrics) MessageDuration(topic string) metrics.Timer {
	return newTimer(m.messageDuration.WithLabelValues(topic))
}

func (m *actorMetrics) MessageProcessed(topic string, success bool) {
	m.messagesTotal.WithLabelValues(topic, boolToStr(success)).Inc()
}

func (m *actorMetrics) MailboxDepth(actorID string, depth int) {
	m.mailboxDepth.WithLabelValues(actorID).Set(float64(depth))
}

var _ actor.ActorMetrics = (*actorMetrics)(nil)
