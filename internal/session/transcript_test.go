package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/osce-practice-platform/internal/dialogue"
)

func newTestStore(t *testing.T) (*TranscriptStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewTranscriptStore(client, time.Hour), mr
}

func TestTranscriptStore_AppendAndList(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	err := store.Append(ctx, "sess-1",
		Entry{Role: dialogue.RoleUser, Content: "hi", StationID: "st-1"},
		Entry{Role: dialogue.RoleAssistant, Content: "Hello", Route: "FAST_SCRIPT_MATCH"},
	)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("encounter_transcript:sess-1"))

	entries, err := store.List(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hi", entries[0].Content)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
	assert.Equal(t, "FAST_SCRIPT_MATCH", entries[1].Route)
}

func TestTranscriptStore_ListLimitAndCap(t *testing.T) {
	store, _ := newTestStore(t)
	store.maxEntries = 5
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		require.NoError(t, store.Append(ctx, "sess-1", Entry{Role: dialogue.RoleUser, Content: fmt.Sprintf("msg %d", i)}))
	}

	all, err := store.List(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "msg 3", all[0].Content)

	last, err := store.List(ctx, "sess-1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "msg 6", last[0].Content)
}

func TestTranscriptStore_History(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, "sess-1",
		Entry{Role: dialogue.RoleUser, Content: "hi"},
		Entry{Role: dialogue.RoleAssistant, Content: "Hello"},
	))
	_, err := mr.RPush("encounter_transcript:sess-1", "not json")
	require.NoError(t, err)

	turns, err := store.History(ctx, "sess-1", dialogue.HistoryLimits{MaxTurns: 12, MaxChars: 3})
	require.NoError(t, err)
	assert.Equal(t, []dialogue.Turn{
		{Role: dialogue.RoleUser, Content: "hi"},
		{Role: dialogue.RoleAssistant, Content: "Hel"},
	}, turns)
}

func TestTranscriptStore_Validation(t *testing.T) {
	store, _ := newTestStore(t)
	assert.Error(t, store.Append(context.Background(), "", Entry{Role: "user", Content: "x"}))
	_, err := store.List(context.Background(), "", 0)
	assert.Error(t, err)
}

func TestTranscriptStore_NilSafe(t *testing.T) {
	var store *TranscriptStore
	assert.Nil(t, NewTranscriptStore(nil, time.Hour))
	assert.NoError(t, store.Append(context.Background(), "sess", Entry{}))
	entries, err := store.List(context.Background(), "sess", 0)
	assert.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNewSessionID(t *testing.T) {
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}
