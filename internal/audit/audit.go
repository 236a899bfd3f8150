// Package audit records every time the enforcement filter had to correct or
// discard a candidate reply.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
)

// Event is an immutable audit record.
type Event struct {
	ID        string                      `json:"id"`
	StationID string                      `json:"station_id"`
	SessionID string                      `json:"session_id,omitempty"`
	Route     dialogue.Route              `json:"route"`
	Utterance string                      `json:"utterance,omitempty"`
	Candidate string                      `json:"candidate,omitempty"`
	Reply     string                      `json:"reply"`
	Outcome   dialogue.EnforcementOutcome `json:"outcome"`
	CreatedAt time.Time                   `json:"created_at"`
}

// Service writes and reads dialogue_audit_events.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO dialogue_audit_events (
			id, station_id, session_id, route, utterance,
			candidate, reply, outcome, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.StationID,
		nullString(event.SessionID),
		string(event.Route),
		nullString(event.Utterance),
		nullString(event.Candidate),
		event.Reply,
		string(event.Outcome),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogSelection records res when its candidate was canonicalized or replaced.
// Exact and unenforced selections are not recorded; logged reports whether
// a row was written.
func (s *Service) LogSelection(ctx context.Context, stationID, sessionID, utterance string, res dialogue.Result) (logged bool, err error) {
	if res.Enforcement != dialogue.EnforcementCanonical && res.Enforcement != dialogue.EnforcementFallback {
		return false, nil
	}
	err = s.LogEvent(ctx, Event{
		StationID: stationID,
		SessionID: sessionID,
		Route:     res.Route,
		Utterance: utterance,
		Candidate: res.Candidate,
		Reply:     res.ReplyText,
		Outcome:   res.Enforcement,
	})
	return err == nil, err
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	StationID string
	SessionID string
	Outcome   dialogue.EnforcementOutcome
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// QueryEvents retrieves audit events for a station, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, station_id, session_id, route, utterance,
			   candidate, reply, outcome, created_at
		FROM dialogue_audit_events
		WHERE station_id = $1
	`
	args := []interface{}{filter.StationID}
	argIdx := 2

	if filter.SessionID != "" {
		query += fmt.Sprintf(" AND session_id = $%d", argIdx)
		args = append(args, filter.SessionID)
		argIdx++
	}
	if filter.Outcome != "" {
		query += fmt.Sprintf(" AND outcome = $%d", argIdx)
		args = append(args, string(filter.Outcome))
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			e                               Event
			route, outcome                  string
			sessionID, utterance, candidate sql.NullString
		)
		err := rows.Scan(
			&e.ID, &e.StationID, &sessionID, &route, &utterance,
			&candidate, &e.Reply, &outcome, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.SessionID = sessionID.String
		e.Utterance = utterance.String
		e.Candidate = candidate.String
		e.Route = dialogue.Route(route)
		e.Outcome = dialogue.EnforcementOutcome(outcome)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to iterate events: %w", err)
	}

	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
