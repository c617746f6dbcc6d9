package index

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjuhl/wortkiste/internal/storage"
)

func TestStore_DecksMissingDocument(t *testing.T) {
	s := NewStore(storage.NewMemStore())
	decks, err := s.Decks(context.Background(), "wk/csv/index.json")
	require.NoError(t, err)
	assert.Empty(t, decks)
}

func TestStore_MalformedDocumentReadsAsEmpty(t *testing.T) {
	mem := storage.NewMemStore()
	ctx := context.Background()
	require.NoError(t, mem.Put(ctx, "wk/csv/index.json", []byte("{not json"), "application/json"))

	s := NewStore(mem)
	decks, err := s.Decks(ctx, "wk/csv/index.json")
	require.NoError(t, err)
	assert.Empty(t, decks)
}

func TestStore_UpdateDecksCreatesDocument(t *testing.T) {
	mem := storage.NewMemStore()
	s := NewStore(mem)
	ctx := context.Background()

	err := s.UpdateDecks(ctx, "wk/csv/index.json", func(entries []DeckEntry) []DeckEntry {
		return append(entries, DeckEntry{Name: "animals", File: "wk/csv/animals.csv"})
	})
	require.NoError(t, err)

	decks, err := s.Decks(ctx, "wk/csv/index.json")
	require.NoError(t, err)
	require.Len(t, decks, 1)
	assert.Equal(t, "animals", decks[0].Name)
}

// conflictStore rejects the first n conditional writes so the retry path is
// exercised.
type conflictStore struct {
	*storage.MemStore
	conflicts int32
}

func (c *conflictStore) PutIf(ctx context.Context, key string, body []byte, contentType string, cond storage.WriteCondition) error {
	if atomic.AddInt32(&c.conflicts, -1) >= 0 {
		return storage.ErrPreconditionFailed
	}
	return c.MemStore.PutIf(ctx, key, body, contentType, cond)
}

func TestStore_UpdateRetriesOnConflict(t *testing.T) {
	cs := &conflictStore{MemStore: storage.NewMemStore(), conflicts: 2}
	s := NewStore(cs)
	ctx := context.Background()

	err := s.UpdateFolders(ctx, "wk/folders/index.json", func(items []string) []string {
		return append(items, "Verbs")
	})
	require.NoError(t, err)

	folders, err := s.Folders(ctx, "wk/folders/index.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"Verbs"}, folders)
}

func TestStore_UpdateGivesUpAfterBoundedRetries(t *testing.T) {
	cs := &conflictStore{MemStore: storage.NewMemStore(), conflicts: 100}
	s := NewStore(cs)

	err := s.UpdateFolders(context.Background(), "wk/folders/index.json", func(items []string) []string {
		return items
	})
	assert.ErrorIs(t, err, storage.ErrPreconditionFailed)
	// initial attempt plus maxUpdateRetries
	assert.Equal(t, int32(100-(maxUpdateRetries+1)), cs.conflicts)
}

func TestStore_UpdateParentsInitializesMap(t *testing.T) {
	mem := storage.NewMemStore()
	s := NewStore(mem)
	ctx := context.Background()

	err := s.UpdateParents(ctx, "wk/folders/parents.json", func(m map[string]string) map[string]string {
		m["Child"] = "Parent"
		return m
	})
	require.NoError(t, err)

	parents, err := s.Parents(ctx, "wk/folders/parents.json")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Child": "Parent"}, parents)
}

func TestStore_ConcurrentUpdatesAllLand(t *testing.T) {
	mem := storage.NewMemStore()
	s := NewStore(mem)
	ctx := context.Background()

	// two sequential updates through the OCC path must both survive
	require.NoError(t, s.UpdateFolders(ctx, "k", func(items []string) []string {
		return append(items, "a")
	}))
	require.NoError(t, s.UpdateFolders(ctx, "k", func(items []string) []string {
		return append(items, "b")
	}))

	folders, err := s.Folders(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, folders)
}

func TestDeckEntry_JSONShape(t *testing.T) {
	e := DeckEntry{Name: "animals", File: "wk/csv/animals.csv"}
	b, err := json.Marshal(e)
	require.NoError(t, err)
	// folder and last_modified are omitted when unset
	assert.JSONEq(t, `{"name":"animals","file":"wk/csv/animals.csv"}`, string(b))
}
