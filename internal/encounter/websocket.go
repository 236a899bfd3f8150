package encounter

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/osce-practice-platform/internal/session"
	"github.com/wolfman30/osce-practice-platform/internal/station"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

// InboundFrame is what the practice client sends.
type InboundFrame struct {
	Type       string `json:"type"` // "utterance", "ping"
	Text       string `json:"text"`
	IntentHint string `json:"intent_hint,omitempty"`
}

// OutboundFrame is what the server sends back.
type OutboundFrame struct {
	Type       string   `json:"type"` // "session", "reply", "error", "pong"
	SessionID  string   `json:"session_id,omitempty"`
	Text       string   `json:"text,omitempty"`
	Route      string   `json:"route,omitempty"`
	MatchScore *float64 `json:"match_score,omitempty"`
	Timestamp  string   `json:"timestamp,omitempty"`
}

// LiveHandler serves an encounter over a WebSocket. Frames on one
// connection are handled in order, so turns within a session never race.
type LiveHandler struct {
	service *Service
	logger  *logging.Logger
}

func NewLiveHandler(service *Service, logger *logging.Logger) *LiveHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &LiveHandler{service: service, logger: logger}
}

// HandleWebSocket upgrades GET /api/stations/{stationID}/encounter.
func (h *LiveHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	stationID := chi.URLParam(r, "stationID")
	websocket.Handler(func(conn *websocket.Conn) {
		h.serveWS(conn, r, stationID)
	}).ServeHTTP(w, r)
}

func (h *LiveHandler) serveWS(conn *websocket.Conn, r *http.Request, stationID string) {
	ctx := r.Context()
	if _, err := h.service.stations.Get(ctx, stationID); err != nil {
		text := "station unavailable"
		if errors.Is(err, station.ErrNotFound) {
			text = "station not found"
		}
		_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: text})
		return
	}

	sessionID := strings.TrimSpace(r.URL.Query().Get("session"))
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}
	_ = websocket.JSON.Send(conn, OutboundFrame{Type: "session", SessionID: sessionID})

	h.logger.Info("encounter: connection opened", "station_id", stationID, "session_id", sessionID)

	for {
		var frame InboundFrame
		if err := websocket.JSON.Receive(conn, &frame); err != nil {
			h.logger.Debug("encounter: connection closed", "session_id", sessionID, "error", err)
			return
		}

		switch frame.Type {
		case "ping":
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "pong"})
			continue
		case "utterance":
		default:
			continue
		}
		if strings.TrimSpace(frame.Text) == "" {
			continue
		}

		reply, err := h.service.Reply(ctx, ReplyRequest{
			StationID:  stationID,
			SessionID:  sessionID,
			Utterance:  frame.Text,
			IntentHint: frame.IntentHint,
		})
		if err != nil {
			_ = websocket.JSON.Send(conn, OutboundFrame{Type: "error", Text: frameError(err)})
			continue
		}
		_ = websocket.JSON.Send(conn, OutboundFrame{
			Type:       "reply",
			SessionID:  sessionID,
			Text:       reply.ReplyText,
			Route:      string(reply.Route),
			MatchScore: reply.MatchScore,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func frameError(err error) string {
	switch {
	case errors.Is(err, ErrInvalidIntentHint):
		return "invalid intent_hint"
	case errors.Is(err, station.ErrNotFound):
		return "station not found"
	default:
		return "Sorry, the patient could not answer. Please try again."
	}
}
