package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (NoopRecorder) IncAnalysis(string)                     {}
func (NoopRecorder) ObserveInferenceDuration(time.Duration) {}
func (NoopRecorder) IncHistorySaved()                       {}
func (NoopRecorder) IncUserRegistered()                     {}
func (NoopRecorder) IncLogin(bool)                          {}
func (NoopRecorder) IncRateLimited()                        {}
