package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/osce-practice-platform/internal/observability/metrics"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

// AdminDialogueHandler reports selector activity to station editors.
type AdminDialogueHandler struct {
	gatherer prometheus.Gatherer
	logger   *logging.Logger
}

// NewAdminDialogueHandler reads from gatherer, or the default registry when nil.
func NewAdminDialogueHandler(gatherer prometheus.Gatherer, logger *logging.Logger) *AdminDialogueHandler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminDialogueHandler{gatherer: gatherer, logger: logger}
}

// MetricsSnapshot returns route, enforcement and latency totals.
func (h *AdminDialogueHandler) MetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := metrics.TakeSnapshot(h.gatherer)
	if err != nil {
		h.logger.Error("gather dialogue metrics failed", "error", err)
		writeError(w, http.StatusInternalServerError, "metrics unavailable")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
