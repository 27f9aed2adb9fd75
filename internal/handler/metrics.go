package handler

import (
	"fmt"
	"net/http"

	"github.com/dermascan/dermascan/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "# TYPE dermascan_analyses_total counter\n")
	writeMetric(w, "dermascan_analyses_total{outcome=%q} %d\n", metrics.OutcomeSuccess, snap.AnalysesSucceeded)
	writeMetric(w, "dermascan_analyses_total{outcome=%q} %d\n", metrics.OutcomeRejected, snap.AnalysesRejected)
	writeMetric(w, "dermascan_analyses_total{outcome=%q} %d\n", metrics.OutcomeInferenceFailed, snap.AnalysesInferenceFailed)
	writeMetric(w, "dermascan_analyses_total{outcome=%q} %d\n", metrics.OutcomeStoreFailed, snap.AnalysesStoreFailed)

	writeMetric(w, "# TYPE dermascan_inference_duration_seconds summary\n")
	writeMetric(w, "dermascan_inference_duration_seconds_count %d\n", snap.InferenceDurationCount)
	writeMetric(w, "dermascan_inference_duration_seconds_sum %.6f\n", float64(snap.InferenceDurationTotalNs)/1e9)

	writeMetric(w, "# TYPE dermascan_history_records_saved_total counter\n")
	writeMetric(w, "dermascan_history_records_saved_total %d\n", snap.HistorySaved)

	writeMetric(w, "# TYPE dermascan_users_registered_total counter\n")
	writeMetric(w, "dermascan_users_registered_total %d\n", snap.UsersRegistered)

	writeMetric(w, "# TYPE dermascan_logins_total counter\n")
	writeMetric(w, "dermascan_logins_total{result=\"success\"} %d\n", snap.LoginsSucceeded)
	writeMetric(w, "dermascan_logins_total{result=\"failure\"} %d\n", snap.LoginsFailed)

	writeMetric(w, "# TYPE dermascan_rate_limited_total counter\n")
	writeMetric(w, "dermascan_rate_limited_total %d\n", snap.RateLimited)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
