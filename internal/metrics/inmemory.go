package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	AnalysesSucceeded        uint64
	AnalysesRejected         uint64
	AnalysesInferenceFailed  uint64
	AnalysesStoreFailed      uint64
	InferenceDurationCount   uint64
	InferenceDurationTotalNs int64
	HistorySaved             uint64
	UsersRegistered          uint64
	LoginsSucceeded          uint64
	LoginsFailed             uint64
	RateLimited              uint64
}

// InMemoryRecorder stores metrics in memory. It backs the /metrics endpoint
// and is used directly by tests.
type InMemoryRecorder struct {
	analysesSucceeded        uint64
	analysesRejected         uint64
	analysesInferenceFailed  uint64
	analysesStoreFailed      uint64
	inferenceDurationCount   uint64
	inferenceDurationTotalNs int64
	historySaved             uint64
	usersRegistered          uint64
	loginsSucceeded          uint64
	loginsFailed             uint64
	rateLimited              uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		AnalysesSucceeded:        atomic.LoadUint64(&m.analysesSucceeded),
		AnalysesRejected:         atomic.LoadUint64(&m.analysesRejected),
		AnalysesInferenceFailed:  atomic.LoadUint64(&m.analysesInferenceFailed),
		AnalysesStoreFailed:      atomic.LoadUint64(&m.analysesStoreFailed),
		InferenceDurationCount:   atomic.LoadUint64(&m.inferenceDurationCount),
		InferenceDurationTotalNs: atomic.LoadInt64(&m.inferenceDurationTotalNs),
		HistorySaved:             atomic.LoadUint64(&m.historySaved),
		UsersRegistered:          atomic.LoadUint64(&m.usersRegistered),
		LoginsSucceeded:          atomic.LoadUint64(&m.loginsSucceeded),
		LoginsFailed:             atomic.LoadUint64(&m.loginsFailed),
		RateLimited:              atomic.LoadUint64(&m.rateLimited),
	}
}

// IncAnalysis counts a finished analysis by outcome. Unknown outcomes are ignored.
func (m *InMemoryRecorder) IncAnalysis(outcome string) {
	switch outcome {
	case OutcomeSuccess:
		atomic.AddUint64(&m.analysesSucceeded, 1)
	case OutcomeRejected:
		atomic.AddUint64(&m.analysesRejected, 1)
	case OutcomeInferenceFailed:
		atomic.AddUint64(&m.analysesInferenceFailed, 1)
	case OutcomeStoreFailed:
		atomic.AddUint64(&m.analysesStoreFailed, 1)
	}
}

// ObserveInferenceDuration records one model round trip.
func (m *InMemoryRecorder) ObserveInferenceDuration(duration time.Duration) {
	atomic.AddUint64(&m.inferenceDurationCount, 1)
	atomic.AddInt64(&m.inferenceDurationTotalNs, duration.Nanoseconds())
}

// IncHistorySaved increments the saved history counter.
func (m *InMemoryRecorder) IncHistorySaved() {
	atomic.AddUint64(&m.historySaved, 1)
}

// IncUserRegistered increments the registration counter.
func (m *InMemoryRecorder) IncUserRegistered() {
	atomic.AddUint64(&m.usersRegistered, 1)
}

// IncLogin counts a login attempt.
func (m *InMemoryRecorder) IncLogin(success bool) {
	if success {
		atomic.AddUint64(&m.loginsSucceeded, 1)
		return
	}
	atomic.AddUint64(&m.loginsFailed, 1)
}

// IncRateLimited counts a rejected request.
func (m *InMemoryRecorder) IncRateLimited() {
	atomic.AddUint64(&m.rateLimited, 1)
}
