// Package encounter runs one practice encounter turn: it loads the station,
// recovers the session history, selects the patient reply and records the
// outcome.
package encounter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
	"github.com/wolfman30/osce-practice-platform/internal/observability/metrics"
	"github.com/wolfman30/osce-practice-platform/internal/session"
	"github.com/wolfman30/osce-practice-platform/internal/station"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

var (
	// ErrUtteranceRequired is returned for a blank utterance.
	ErrUtteranceRequired = errors.New("encounter: utterance required")
	// ErrInvalidIntentHint is returned for an intent hint outside confirm/question/statement.
	ErrInvalidIntentHint = errors.New("encounter: invalid intent_hint")
)

// StationReader loads station content.
type StationReader interface {
	Get(ctx context.Context, id string) (*station.Station, error)
}

// ReplySelector picks the patient reply.
type ReplySelector interface {
	Select(ctx context.Context, req dialogue.Request) (dialogue.Result, error)
}

// Transcript keeps the per-session turn list.
type Transcript interface {
	Append(ctx context.Context, sessionID string, entries ...session.Entry) error
	History(ctx context.Context, sessionID string, limits dialogue.HistoryLimits) ([]dialogue.Turn, error)
}

// AuditLogger records enforcement interventions.
type AuditLogger interface {
	LogSelection(ctx context.Context, stationID, sessionID, utterance string, res dialogue.Result) (bool, error)
}

// ReplyRequest is one student utterance.
type ReplyRequest struct {
	StationID  string
	SessionID  string
	Utterance  string
	IntentHint string
	// History, when non-nil, replaces the stored session transcript.
	History []dialogue.Turn
}

// Reply is the selected patient line plus the session it belongs to.
type Reply struct {
	dialogue.Result
	SessionID string `json:"session_id,omitempty"`
}

// Service wires the selector to station storage, transcripts, audit and metrics.
type Service struct {
	stations   StationReader
	selector   ReplySelector
	transcript Transcript
	audit      AuditLogger
	metrics    *metrics.DialogueMetrics
	limits     dialogue.HistoryLimits
	logger     *logging.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithTranscript(t Transcript) Option {
	return func(s *Service) { s.transcript = t }
}

func WithAudit(a AuditLogger) Option {
	return func(s *Service) { s.audit = a }
}

func WithMetrics(m *metrics.DialogueMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithHistoryLimits(l dialogue.HistoryLimits) Option {
	return func(s *Service) { s.limits = l }
}

func WithLogger(logger *logging.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(stations StationReader, selector ReplySelector, opts ...Option) *Service {
	if stations == nil {
		panic("encounter: station reader required")
	}
	if selector == nil {
		panic("encounter: selector required")
	}
	s := &Service{
		stations: stations,
		selector: selector,
		limits:   dialogue.DefaultHistoryLimits(),
		logger:   logging.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Reply selects the patient reply for req. Station lookup errors are
// returned as-is so callers can match station.ErrNotFound.
func (s *Service) Reply(ctx context.Context, req ReplyRequest) (Reply, error) {
	utterance := strings.TrimSpace(req.Utterance)
	if utterance == "" {
		return Reply{}, ErrUtteranceRequired
	}
	hint, err := parseHint(req.IntentHint)
	if err != nil {
		return Reply{}, err
	}

	st, err := s.stations.Get(ctx, req.StationID)
	if err != nil {
		return Reply{}, err
	}

	history := s.history(ctx, req)

	start := s.now()
	res, err := s.selector.Select(ctx, dialogue.Request{
		Script:             st.ParsedScript(),
		FiveMinuteQuestion: st.FiveMinuteQuestion,
		FiveMinuteRules:    st.FiveMinuteRules,
		History:            history,
		Utterance:          utterance,
		IntentHint:         hint,
	})
	if err != nil {
		s.metrics.ObserveGenerative("error", s.now().Sub(start).Seconds())
		s.logger.Error("encounter: select reply failed",
			"station_id", st.ID,
			"session_id", req.SessionID,
			"error", err,
		)
		return Reply{}, fmt.Errorf("encounter: select reply: %w", err)
	}

	s.observe(res)
	s.record(ctx, st.ID, req.SessionID, utterance, res)

	s.logger.Info("encounter: reply selected",
		"station_id", st.ID,
		"session_id", req.SessionID,
		"route", string(res.Route),
		"enforcement", string(res.Enforcement),
	)
	return Reply{Result: res, SessionID: req.SessionID}, nil
}

func parseHint(raw string) (dialogue.IntentLabel, error) {
	if strings.TrimSpace(raw) == "" {
		return "", nil
	}
	label, ok := dialogue.ParseIntentLabel(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidIntentHint, raw)
	}
	return label, nil
}

func (s *Service) history(ctx context.Context, req ReplyRequest) []dialogue.Turn {
	if req.History != nil {
		return dialogue.SanitizeHistory(req.History, s.limits)
	}
	if s.transcript == nil || req.SessionID == "" {
		return nil
	}
	turns, err := s.transcript.History(ctx, req.SessionID, s.limits)
	if err != nil {
		s.logger.Warn("encounter: load history failed", "session_id", req.SessionID, "error", err)
		return nil
	}
	return turns
}

func (s *Service) observe(res dialogue.Result) {
	s.metrics.ObserveSelection(string(res.Route))
	s.metrics.ObserveEnforcement(string(res.Enforcement))
	if res.MatchScore != nil {
		s.metrics.ObserveMatchScore(*res.MatchScore)
	}
	if res.Route == dialogue.RouteGenerative {
		s.metrics.ObserveGenerative("ok", res.GenerationTime.Seconds())
	}
}

// record appends the turn to the transcript and audits interventions.
// Failures are logged only.
func (s *Service) record(ctx context.Context, stationID, sessionID, utterance string, res dialogue.Result) {
	if s.transcript != nil && sessionID != "" {
		now := s.now().UTC()
		err := s.transcript.Append(ctx, sessionID,
			session.Entry{StationID: stationID, Role: dialogue.RoleUser, Content: utterance, Timestamp: now},
			session.Entry{StationID: stationID, Role: dialogue.RoleAssistant, Content: res.ReplyText, Route: string(res.Route), Timestamp: now},
		)
		if err != nil {
			s.logger.Warn("encounter: append transcript failed", "session_id", sessionID, "error", err)
		}
	}
	if s.audit != nil {
		if _, err := s.audit.LogSelection(ctx, stationID, sessionID, utterance, res); err != nil {
			s.logger.Warn("encounter: audit failed", "station_id", stationID, "error", err)
		}
	}
}
