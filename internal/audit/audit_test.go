package audit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
	"github.com/wolfman30/osce-practice-platform/pkg/logging"
)

var eventCols = []string{
	"id", "station_id", "session_id", "route", "utterance",
	"candidate", "reply", "outcome", "created_at",
}

func TestService_LogEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	created := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO dialogue_audit_events").
		WithArgs("evt-1", "st-1", sqlmock.AnyArg(), "OPENAI", sqlmock.AnyArg(),
			sqlmock.AnyArg(), "I'm not sure.", "fallback", created).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewService(db).LogEvent(context.Background(), Event{
		ID:        "evt-1",
		StationID: "st-1",
		Route:     dialogue.RouteGenerative,
		Candidate: "I also have chest pain.",
		Reply:     "I'm not sure.",
		Outcome:   dialogue.EnforcementFallback,
		CreatedAt: created,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_LogEventError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dbErr := errors.New("relation does not exist")
	mock.ExpectExec("INSERT INTO dialogue_audit_events").WillReturnError(dbErr)

	err = NewService(db).LogEvent(context.Background(), Event{StationID: "st-1"})
	assert.ErrorIs(t, err, dbErr)
}

func TestService_LogSelection(t *testing.T) {
	tests := []struct {
		name       string
		outcome    dialogue.EnforcementOutcome
		wantLogged bool
	}{
		{"exact not logged", dialogue.EnforcementExact, false},
		{"unenforced not logged", "", false},
		{"canonical logged", dialogue.EnforcementCanonical, true},
		{"fallback logged", dialogue.EnforcementFallback, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			if tt.wantLogged {
				mock.ExpectExec("INSERT INTO dialogue_audit_events").
					WillReturnResult(sqlmock.NewResult(1, 1))
			}

			logged, err := NewService(db).LogSelection(context.Background(), "st-1", "sess-1", "tell me more",
				dialogue.Result{ReplyText: "Hi good", Route: dialogue.RouteGenerative, Candidate: "hi, good!", Enforcement: tt.outcome})
			require.NoError(t, err)
			assert.Equal(t, tt.wantLogged, logged)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestService_QueryEvents(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows(eventCols).AddRow(
		"evt-1", "st-1", "sess-1", "OPENAI", nil,
		"hi, good!", "Hi good", "canonical", now,
	)
	mock.ExpectQuery("SELECT (.+) FROM dialogue_audit_events").
		WithArgs("st-1", "sess-1", "canonical").
		WillReturnRows(rows)

	events, err := NewService(db).QueryEvents(context.Background(), Filter{
		StationID: "st-1",
		SessionID: "sess-1",
		Outcome:   dialogue.EnforcementCanonical,
		Limit:     10,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, dialogue.RouteGenerative, events[0].Route)
	assert.Equal(t, dialogue.EnforcementCanonical, events[0].Outcome)
	assert.Empty(t, events[0].Utterance)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type stubQuerier struct {
	filter Filter
	events []Event
	err    error
}

func (s *stubQuerier) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	s.filter = filter
	return s.events, s.err
}

func serveAudit(h *Handler, target string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/admin/stations/{stationID}/audit", h.ListEvents)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHandler_ListEvents(t *testing.T) {
	q := &stubQuerier{events: []Event{{ID: "evt-1", StationID: "st-1", Reply: "Hi good"}}}
	rec := serveAudit(NewHandler(q, logging.Default()),
		"/admin/stations/st-1/audit?outcome=fallback&limit=5&start=2025-01-01T00:00:00Z")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"evt-1"`)
	assert.Equal(t, "st-1", q.filter.StationID)
	assert.Equal(t, dialogue.EnforcementFallback, q.filter.Outcome)
	assert.Equal(t, 5, q.filter.Limit)
	assert.Equal(t, 2025, q.filter.StartTime.Year())
}

func TestHandler_ListEventsBadInput(t *testing.T) {
	h := NewHandler(&stubQuerier{}, nil)
	assert.Equal(t, http.StatusBadRequest, serveAudit(h, "/admin/stations/st-1/audit?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, serveAudit(h, "/admin/stations/st-1/audit?start=yesterday").Code)
}

func TestHandler_ListEventsError(t *testing.T) {
	h := NewHandler(&stubQuerier{err: errors.New("db down")}, nil)
	assert.Equal(t, http.StatusInternalServerError, serveAudit(h, "/admin/stations/st-1/audit").Code)
}

func TestHandler_ListEventsEmpty(t *testing.T) {
	rec := serveAudit(NewHandler(&stubQuerier{}, nil), "/admin/stations/st-1/audit")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
