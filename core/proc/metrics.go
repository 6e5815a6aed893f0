package proc

import "github.com/codewandler/troupe-go/core/metrics"

// TransportMetrics receives instrumentation from transport proxies.
// All methods must be safe for concurrent use.
type TransportMetrics interface {
	// RequestDuration times one correlated round trip.
	RequestDuration(frameType string) metrics.Timer
	// RequestCompleted counts one finished round trip.
	RequestCompleted(frameType string, success bool)
	// PendingRequests reports the current size of the correlation table.
	PendingRequests(actorID string, count int)
	// Respawned counts one successful respawn after a crash.
	Respawned(actorID string)
}

type nopTransportMetrics struct{}

func (nopTransportMetrics) RequestDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopTransportMetrics) RequestCompleted(string, bool)        {}
func (nopTransportMetrics) PendingRequests(string, int)          {}
func (nopTransportMetrics) Respawned(string)                     {}

// NopTransportMetrics returns a no-op TransportMetrics implementation.
func NopTransportMetrics() TransportMetrics { return nopTransportMetrics{} }
