package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/quickgpt/quickgpt/internal/metrics"
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

	for _, mode := range sortedKeys(snap.MessagesHandled) {
		byStatus := snap.MessagesHandled[mode]
		for _, status := range sortedKeys(byStatus) {
			writeMetric(w, "quickgpt_messages_handled_total{mode=%q,status=%q} %d\n", mode, status, byStatus[status])
		}
	}

	for _, mode := range sortedKeys(snap.GenerationDurationCount) {
		writeMetric(w, "quickgpt_generation_duration_seconds_count{mode=%q} %d\n", mode, snap.GenerationDurationCount[mode])
		writeMetric(w, "quickgpt_generation_duration_seconds_sum{mode=%q} %.6f\n", mode, float64(snap.GenerationDurationTotalNs[mode])/1e9)
	}

	writeMetric(w, "quickgpt_credits_debited_total %d\n", snap.CreditsDebited)
	writeMetric(w, "quickgpt_credits_granted_total %d\n", snap.CreditsGranted)

	writeMetric(w, "quickgpt_chats_created_total %d\n", snap.ChatsCreated)
	writeMetric(w, "quickgpt_chats_deleted_total %d\n", snap.ChatsDeleted)

	for _, reason := range sortedKeys(snap.AuthFailures) {
		writeMetric(w, "quickgpt_auth_failures_total{reason=%q} %d\n", reason, snap.AuthFailures[reason])
	}

	writeMetric(w, "quickgpt_gallery_cache_hits_total %d\n", snap.GalleryCacheHits)
	writeMetric(w, "quickgpt_gallery_cache_misses_total %d\n", snap.GalleryCacheMisses)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
