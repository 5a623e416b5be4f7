package handler

import (
	"fmt"
	"net/http"

	"github.com/edssentials/edssentials-api/internal/metrics"
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

	writeMetric(w, "edssentials_logins_total{result=\"success\"} %d\n", snap.LoginsSucceeded)
	writeMetric(w, "edssentials_logins_total{result=\"%s\"} %d\n", metrics.ReasonInvalidCredentials, snap.LoginsInvalidCredentials)
	writeMetric(w, "edssentials_logins_total{result=\"%s\"} %d\n", metrics.ReasonAccountDisabled, snap.LoginsDisabled)
	writeMetric(w, "edssentials_logins_total{result=\"%s\"} %d\n", metrics.ReasonUnavailable, snap.LoginsUnavailable)
	writeMetric(w, "edssentials_logins_total{result=\"%s\"} %d\n", metrics.ReasonRateLimited, snap.LoginsRateLimited)

	writeMetric(w, "edssentials_password_hash_duration_seconds_count %d\n", snap.HashDurationCount)
	writeMetric(w, "edssentials_password_hash_duration_seconds_sum %.6f\n", float64(snap.HashDurationTotalNs)/1e9)

	writeMetric(w, "edssentials_tokens_issued_total %d\n", snap.TokensIssued)
	writeMetric(w, "edssentials_tokens_rejected_total{reason=\"%s\"} %d\n", metrics.ReasonTokenExpired, snap.TokensExpired)
	writeMetric(w, "edssentials_tokens_rejected_total{reason=\"%s\"} %d\n", metrics.ReasonTokenMalformed, snap.TokensMalformed)
	writeMetric(w, "edssentials_tokens_rejected_total{reason=\"%s\"} %d\n", metrics.ReasonTokenSignature, snap.TokensBadSignature)

	writeMetric(w, "edssentials_authorization_denied_total %d\n", snap.AuthorizationDenied)
	writeMetric(w, "edssentials_users_registered_total %d\n", snap.UsersRegistered)
	writeMetric(w, "edssentials_admins_bootstrapped_total %d\n", snap.AdminsBootstrapped)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
