package station

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

// Handler provides admin HTTP endpoints for station editing.
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// Routes returns a chi router with station admin routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	return r
}

// Register adds the station admin routes to r, so callers can hang extra
// per-station routes off the same subtree.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", h.ListStations)
	r.Get("/{stationID}", h.GetStation)
	r.Put("/{stationID}", h.PutStation)
	r.Delete("/{stationID}", h.DeleteStation)
	r.Get("/{stationID}/lint", h.LintStation)
}

// ListStations returns every station.
// GET /admin/stations
func (h *Handler) ListStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.repo.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list stations", "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	if stations == nil {
		stations = []*Station{}
	}
	h.writeJSON(w, http.StatusOK, stations)
}

// GetStation returns a station.
// GET /admin/stations/{stationID}
func (h *Handler) GetStation(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, st)
}

// PutStationRequest is the request body for creating or replacing a station.
type PutStationRequest struct {
	Title              string                    `json:"title"`
	Script             string                    `json:"script"`
	FiveMinuteQuestion string                    `json:"five_minute_question,omitempty"`
	FiveMinuteRules    *dialogue.FiveMinuteRules `json:"five_minute_rules,omitempty"`
}

// PutStation creates or replaces a station.
// PUT /admin/stations/{stationID}
func (h *Handler) PutStation(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	if stationID == "" {
		http.Error(w, `{"error": "station_id required"}`, http.StatusBadRequest)
		return
	}

	var req PutStationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}

	st := &Station{
		ID:                 stationID,
		Title:              req.Title,
		Script:             req.Script,
		FiveMinuteQuestion: req.FiveMinuteQuestion,
		FiveMinuteRules:    req.FiveMinuteRules,
	}
	if err := st.Validate(); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if err := h.repo.Put(r.Context(), st); err != nil {
		h.logger.Error("failed to save station", "station_id", stationID, "error", err)
		http.Error(w, `{"error": "failed to save station"}`, http.StatusInternalServerError)
		return
	}

	lint := st.ParsedScript().Lint()
	h.logger.Info("station saved",
		"station_id", stationID,
		"pairs", len(lint.Pairs),
		"unmatched_triggers", len(lint.UnmatchedTriggers),
	)
	h.writeJSON(w, http.StatusOK, st)
}

// DeleteStation removes a station.
// DELETE /admin/stations/{stationID}
func (h *Handler) DeleteStation(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	err := h.repo.Delete(r.Context(), stationID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, `{"error": "station not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to delete station", "station_id", stationID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LintStation reports how the station script parses.
// GET /admin/stations/{stationID}/lint
func (h *Handler) LintStation(w http.ResponseWriter, r *http.Request) {
	st, ok := h.load(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, st.ParsedScript().Lint())
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*Station, bool) {
	stationID := chi.URLParam(r, "stationID")
	if stationID == "" {
		http.Error(w, `{"error": "station_id required"}`, http.StatusBadRequest)
		return nil, false
	}
	st, err := h.repo.Get(r.Context(), stationID)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, `{"error": "station not found"}`, http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		h.logger.Error("failed to get station", "station_id", stationID, "error", err)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return nil, false
	}
	return st, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
