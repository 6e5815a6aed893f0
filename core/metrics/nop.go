package metrics

// nopTimer is a no-op implementation of Timer.
type nopTimer struct{}

func (nopTimer) ObserveDuration() {}

// NopTimer returns a no-op Timer.
func NopTimer() Timer { return nopTimer{} }
