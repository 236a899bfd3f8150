package station

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryRepository()

	_, err := repo.Get(ctx, "chest-pain")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.Put(ctx, &Station{ID: "sore-throat", Title: "Sore throat"}))
	require.NoError(t, repo.Put(ctx, &Station{ID: "chest-pain", Title: "Chest pain", Script: "User: Hi\nAssistant: Hello"}))
	assert.Error(t, repo.Put(ctx, &Station{ID: "no-title"}))

	got, err := repo.Get(ctx, "chest-pain")
	require.NoError(t, err)
	assert.Equal(t, "Chest pain", got.Title)
	assert.False(t, got.UpdatedAt.IsZero())

	got.Title = "mutated"
	again, err := repo.Get(ctx, "chest-pain")
	require.NoError(t, err)
	assert.Equal(t, "Chest pain", again.Title)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "chest-pain", list[0].ID)
	assert.Equal(t, "sore-throat", list[1].ID)

	require.NoError(t, repo.Delete(ctx, "chest-pain"))
	assert.ErrorIs(t, repo.Delete(ctx, "chest-pain"), ErrNotFound)
}
