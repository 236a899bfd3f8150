package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

type eventQuerier interface {
	QueryEvents(ctx context.Context, filter Filter) ([]Event, error)
}

// Handler exposes the audit trail to station editors.
type Handler struct {
	events eventQuerier
	logger *logging.Logger
}

func NewHandler(events eventQuerier, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{events: events, logger: logger}
}

// ListEvents returns audit events for a station.
// GET /admin/stations/{stationID}/audit
// Query params:
//   - session_id, outcome: optional filters
//   - start, end: RFC3339 timestamps (optional)
//   - limit: default 100
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	if stationID == "" {
		http.Error(w, `{"error": "station_id required"}`, http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	filter := Filter{
		StationID: stationID,
		SessionID: q.Get("session_id"),
		Outcome:   dialogue.EnforcementOutcome(q.Get("outcome")),
		Limit:     100,
	}
	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, `{"error": "invalid start time"}`, http.StatusBadRequest)
			return
		}
		filter.StartTime = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, `{"error": "invalid end time"}`, http.StatusBadRequest)
			return
		}
		filter.EndTime = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, `{"error": "invalid limit"}`, http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}

	events, err := h.events.QueryEvents(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to query audit events", "station_id", stationID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []Event{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		h.logger.Error("failed to encode audit events", "station_id", stationID, "error", err)
	}
}
