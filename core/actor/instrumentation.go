package actor

import "github.com/codewandler/troupe-go/core/metrics"

// ActorMetrics receives per-message instrumentation from the engine.
// All methods must be safe for concurrent use.
type ActorMetrics interface {
	// MessageDuration times one handler execution for the topic.
	MessageDuration(topic string) metrics.Timer
	// MessageProcessed counts one handled message.
	MessageProcessed(topic string, success bool)
	// MailboxDepth reports the mailbox depth after an enqueue.
	MailboxDepth(actorID string, depth int)
}

type nopActorMetrics struct{}

func (nopActorMetrics) MessageDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopActorMetrics) MessageProcessed(string, bool)        {}
func (nopActorMetrics) MailboxDepth(string, int)             {}

// NopActorMetrics returns a no-op ActorMetrics implementation.
func NopActorMetrics() ActorMetrics { return nopActorMetrics{} }
