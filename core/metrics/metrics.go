// Package metrics holds the small instrumentation vocabulary shared by the
// core packages, so they stay decoupled from any concrete backend
// (Prometheus, StatsD, etc.).
package metrics

// Timer measures the duration of an operation. Call ObserveDuration when
// the operation completes to record the elapsed time.
type Timer interface {
	// ObserveDuration records the elapsed time since the timer was created.
	ObserveDuration()
}
