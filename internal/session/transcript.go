// Package session keeps the running transcript of an encounter in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
)

const transcriptKeyPrefix = "encounter_transcript:"

// Entry is one stored turn.
type Entry struct {
	ID        string    `json:"id"`
	StationID string    `json:"station_id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Route     string    `json:"route,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptStore appends encounter turns to a capped Redis list per session.
type TranscriptStore struct {
	redis      *redis.Client
	tracer     trace.Tracer
	ttl        time.Duration
	maxEntries int64
}

func NewTranscriptStore(redisClient *redis.Client, ttl time.Duration) *TranscriptStore {
	if redisClient == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &TranscriptStore{
		redis:      redisClient,
		tracer:     otel.Tracer("osce.internal.session.transcript"),
		ttl:        ttl,
		maxEntries: 200,
	}
}

// NewSessionID returns a fresh encounter session identifier.
func NewSessionID() string {
	return uuid.NewString()
}

func (s *TranscriptStore) Append(ctx context.Context, sessionID string, entries ...Entry) error {
	if s == nil || s.redis == nil || len(entries) == 0 {
		return nil
	}
	if sessionID == "" {
		return errors.New("session: transcript sessionID required")
	}

	values := make([]any, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = time.Now().UTC()
		}
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("session: marshal transcript entry: %w", err)
		}
		values = append(values, data)
	}

	ctx, span := s.tracer.Start(ctx, "session.transcript.append")
	defer span.End()

	key := transcriptKey(sessionID)
	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.Expire(ctx, key, s.ttl)
	if s.maxEntries > 0 {
		pipe.LTrim(ctx, key, -s.maxEntries, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: append transcript: %w", err)
	}
	return nil
}

// List returns the last limit entries, or all of them when limit <= 0.
func (s *TranscriptStore) List(ctx context.Context, sessionID string, limit int64) ([]Entry, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}
	if sessionID == "" {
		return nil, errors.New("session: transcript sessionID required")
	}

	ctx, span := s.tracer.Start(ctx, "session.transcript.list")
	defer span.End()

	start := int64(0)
	if limit > 0 {
		start = -limit
	}
	raw, err := s.redis.LRange(ctx, transcriptKey(sessionID), start, -1).Result()
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, redis.Nil) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("session: list transcript: %w", err)
	}

	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// History loads the session transcript as sanitized selector history.
func (s *TranscriptStore) History(ctx context.Context, sessionID string, limits dialogue.HistoryLimits) ([]dialogue.Turn, error) {
	entries, err := s.List(ctx, sessionID, int64(limits.MaxTurns))
	if err != nil {
		return nil, err
	}
	turns := make([]dialogue.Turn, 0, len(entries))
	for _, e := range entries {
		turns = append(turns, dialogue.Turn{Role: e.Role, Content: e.Content})
	}
	return dialogue.SanitizeHistory(turns, limits), nil
}

func transcriptKey(sessionID string) string {
	return transcriptKeyPrefix + sessionID
}
