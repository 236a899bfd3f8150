package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
	"github.com/wolfman30/osce-practice-platform/internal/encounter"
	"github.com/wolfman30/osce-practice-platform/internal/session"
	"github.com/wolfman30/osce-practice-platform/internal/station"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

const maxUtteranceBytes = 64 << 10

// Replier answers one encounter turn.
type Replier interface {
	Reply(ctx context.Context, req encounter.ReplyRequest) (encounter.Reply, error)
}

// TranscriptLister reads a stored encounter transcript.
type TranscriptLister interface {
	List(ctx context.Context, sessionID string, limit int64) ([]session.Entry, error)
}

// EncounterHandler serves the student-facing JSON endpoints.
type EncounterHandler struct {
	replier     Replier
	classifier  *dialogue.IntentClassifier
	transcripts TranscriptLister
	logger      *logging.Logger
}

func NewEncounterHandler(replier Replier, classifier *dialogue.IntentClassifier, transcripts TranscriptLister, logger *logging.Logger) *EncounterHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if classifier == nil {
		classifier = dialogue.NewIntentClassifier()
	}
	return &EncounterHandler{
		replier:     replier,
		classifier:  classifier,
		transcripts: transcripts,
		logger:      logger,
	}
}

// IntentRequest is the body of POST /api/intent.
type IntentRequest struct {
	Utterance string `json:"utterance"`
}

// ClassifyIntent labels an utterance so the client can decide whether the
// patient should answer at all.
func (h *EncounterHandler) ClassifyIntent(w http.ResponseWriter, r *http.Request) {
	var req IntentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUtteranceBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, h.classifier.Classify(req.Utterance))
}

// ReplyRequest is the body of POST /api/stations/{stationID}/reply.
type ReplyRequest struct {
	Utterance  string          `json:"utterance"`
	IntentHint string          `json:"intent_hint,omitempty"`
	History    []dialogue.Turn `json:"history,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
}

// Reply selects the simulated patient's answer.
func (h *EncounterHandler) Reply(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	if stationID == "" {
		writeError(w, http.StatusBadRequest, "missing stationID")
		return
	}

	var req ReplyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUtteranceBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.replier.Reply(r.Context(), encounter.ReplyRequest{
		StationID:  stationID,
		SessionID:  strings.TrimSpace(req.SessionID),
		Utterance:  req.Utterance,
		IntentHint: req.IntentHint,
		History:    req.History,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, reply)
	case errors.Is(err, encounter.ErrUtteranceRequired):
		writeError(w, http.StatusBadRequest, "utterance is required")
	case errors.Is(err, encounter.ErrInvalidIntentHint):
		writeError(w, http.StatusBadRequest, "intent_hint must be confirm, question or statement")
	case errors.Is(err, station.ErrNotFound):
		writeError(w, http.StatusNotFound, "station not found")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		h.logger.Error("encounter reply failed", "station_id", stationID, "error", err)
		writeError(w, http.StatusBadGateway, "reply generation failed")
	}
}

// Transcript returns the stored turns of an encounter session.
func (h *EncounterHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing sessionID")
		return
	}
	limit := int64(100)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	if h.transcripts == nil {
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "entries": []session.Entry{}})
		return
	}
	entries, err := h.transcripts.List(r.Context(), sessionID, limit)
	if err != nil {
		h.logger.Error("load transcript failed", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if entries == nil {
		entries = []session.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": sessionID, "entries": entries})
}
