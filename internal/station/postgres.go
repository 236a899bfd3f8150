package station

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
)

// db is the subset of pgxpool.Pool the repository needs.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const stationColumns = `id, title, script, five_minute_question, five_minute_rules, updated_at`

// PGRepository stores stations in the stations table.
type PGRepository struct {
	db     db
	tracer trace.Tracer
	now    func() time.Time
}

// NewPGRepository creates a repository backed by a pgx pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	if pool == nil {
		panic("station: pgx pool required")
	}
	return NewPGRepositoryWithDB(pool)
}

// NewPGRepositoryWithDB allows injecting a mock database for testing.
func NewPGRepositoryWithDB(d db) *PGRepository {
	return &PGRepository{
		db:     d,
		tracer: otel.Tracer("osce.internal.station.postgres"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *PGRepository) Get(ctx context.Context, id string) (*Station, error) {
	ctx, span := r.tracer.Start(ctx, "station.postgres.get")
	defer span.End()

	row := r.db.QueryRow(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = $1`, id)
	st, err := scanStation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("station: get %s: %w", id, err)
	}
	return st, nil
}

// Put inserts or replaces a station and stamps UpdatedAt.
func (r *PGRepository) Put(ctx context.Context, st *Station) error {
	if err := st.Validate(); err != nil {
		return err
	}
	ctx, span := r.tracer.Start(ctx, "station.postgres.put")
	defer span.End()

	var rules []byte
	if st.FiveMinuteRules != nil {
		var err error
		rules, err = json.Marshal(st.FiveMinuteRules)
		if err != nil {
			return fmt.Errorf("station: marshal five minute rules: %w", err)
		}
	}
	st.UpdatedAt = r.now()

	query := `
		INSERT INTO stations (` + stationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			script = EXCLUDED.script,
			five_minute_question = EXCLUDED.five_minute_question,
			five_minute_rules = EXCLUDED.five_minute_rules,
			updated_at = EXCLUDED.updated_at`
	if _, err := r.db.Exec(ctx, query, st.ID, st.Title, st.Script, st.FiveMinuteQuestion, rules, st.UpdatedAt); err != nil {
		span.RecordError(err)
		return fmt.Errorf("station: put %s: %w", st.ID, err)
	}
	return nil
}

func (r *PGRepository) List(ctx context.Context) ([]*Station, error) {
	ctx, span := r.tracer.Start(ctx, "station.postgres.list")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT `+stationColumns+` FROM stations ORDER BY id`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("station: list: %w", err)
	}
	defer rows.Close()

	var out []*Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("station: scan: %w", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("station: list rows: %w", err)
	}
	return out, nil
}

func (r *PGRepository) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "station.postgres.delete")
	defer span.End()

	tag, err := r.db.Exec(ctx, `DELETE FROM stations WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("station: delete %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanStation(row pgx.Row) (*Station, error) {
	var (
		st    Station
		rules []byte
	)
	if err := row.Scan(&st.ID, &st.Title, &st.Script, &st.FiveMinuteQuestion, &rules, &st.UpdatedAt); err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		var parsed dialogue.FiveMinuteRules
		if err := json.Unmarshal(rules, &parsed); err != nil {
			return nil, fmt.Errorf("station: decode five minute rules: %w", err)
		}
		st.FiveMinuteRules = &parsed
	}
	return &st, nil
}
