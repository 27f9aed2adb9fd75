// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Analysis outcomes passed to IncAnalysis.
const (
	OutcomeSuccess         = "success"
	OutcomeRejected        = "rejected"
	OutcomeInferenceFailed = "inference_error"
	OutcomeStoreFailed     = "database_error"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Analysis pipeline
	IncAnalysis(outcome string)
	ObserveInferenceDuration(duration time.Duration)
	IncHistorySaved()

	// Accounts
	IncUserRegistered()
	IncLogin(success bool)

	// Rate limiting
	IncRateLimited()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
