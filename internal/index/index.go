// Package index maintains the JSON index documents that tie the bucket
// together: the deck index, folder list, parent map, order lists and the
// stories index. Every mutation runs as read-modify-write under optimistic
// concurrency: the document's ETag guards the write-back and a lost race is
// retried with bounded backoff.
package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/mjuhl/wortkiste/internal/common"
	"github.com/mjuhl/wortkiste/internal/storage"
)

// DeckEntry is one row of csv/index.json.
type DeckEntry struct {
	Name         string `json:"name"`
	File         string `json:"file"`
	Folder       string `json:"folder,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// StoryEntry is one row of stories/index.json.
type StoryEntry struct {
	Key          string `json:"key,omitempty"`
	Deck         string `json:"deck"`
	TitleDE      string `json:"title_de"`
	TitleEN      string `json:"title_en"`
	Level        string `json:"level"`
	LastModified string `json:"last_modified"`
}

const (
	maxUpdateRetries = 4
	retryBaseDelay   = 50 * time.Millisecond
)

// Store reads and mutates index documents in the object store.
type Store struct {
	store storage.ObjectStore
}

func NewStore(store storage.ObjectStore) *Store {
	return &Store{store: store}
}

// readDoc fetches and decodes a document. A missing or malformed document
// yields the zero value, never an error; "not yet created" and "empty" are
// the same state.
func readDoc[T any](ctx context.Context, store storage.ObjectStore, key string) (T, error) {
	var zero T
	body, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return zero, nil
		}
		return zero, err
	}
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return zero, nil
	}
	return v, nil
}

// updateDoc applies mutate to the current document value and writes the
// result back conditionally. On a precondition failure it re-reads and
// retries with exponential backoff, giving up after maxUpdateRetries.
func updateDoc[T any](ctx context.Context, store storage.ObjectStore, key string, mutate func(T) T) error {
	backoff := retry.WithMaxRetries(maxUpdateRetries, retry.NewExponential(retryBaseDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		var cur T
		var cond storage.WriteCondition

		body, etag, err := store.GetWithETag(ctx, key)
		switch {
		case err == nil:
			if jerr := json.Unmarshal(body, &cur); jerr != nil {
				var zero T
				cur = zero
			}
			cond = storage.WriteCondition{IfMatch: etag}
		case errors.Is(err, common.ErrNotFound):
			cond = storage.WriteCondition{IfNoneMatch: true}
		default:
			return err
		}

		next := mutate(cur)
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encoding %s: %w", key, err)
		}
		if err := store.PutIf(ctx, key, data, "application/json", cond); err != nil {
			if errors.Is(err, storage.ErrPreconditionFailed) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
}

// writeDoc overwrites a document unconditionally. Used for operations that
// replace the whole document (order-list set, index rebuilds).
func writeDoc[T any](ctx context.Context, store storage.ObjectStore, key string, v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return store.Put(ctx, key, data, "application/json")
}

func (s *Store) Decks(ctx context.Context, key string) ([]DeckEntry, error) {
	return readDoc[[]DeckEntry](ctx, s.store, key)
}

func (s *Store) UpdateDecks(ctx context.Context, key string, mutate func([]DeckEntry) []DeckEntry) error {
	return updateDoc(ctx, s.store, key, mutate)
}

func (s *Store) SetDecks(ctx context.Context, key string, entries []DeckEntry) error {
	return writeDoc(ctx, s.store, key, entries)
}

func (s *Store) Folders(ctx context.Context, key string) ([]string, error) {
	return readDoc[[]string](ctx, s.store, key)
}

func (s *Store) UpdateFolders(ctx context.Context, key string, mutate func([]string) []string) error {
	return updateDoc(ctx, s.store, key, mutate)
}

func (s *Store) Parents(ctx context.Context, key string) (map[string]string, error) {
	return readDoc[map[string]string](ctx, s.store, key)
}

func (s *Store) UpdateParents(ctx context.Context, key string, mutate func(map[string]string) map[string]string) error {
	return updateDoc(ctx, s.store, key, func(m map[string]string) map[string]string {
		if m == nil {
			m = make(map[string]string)
		}
		return mutate(m)
	})
}

func (s *Store) Order(ctx context.Context, key string) ([]string, error) {
	return readDoc[[]string](ctx, s.store, key)
}

func (s *Store) UpdateOrder(ctx context.Context, key string, mutate func([]string) []string) error {
	return updateDoc(ctx, s.store, key, mutate)
}

func (s *Store) SetOrder(ctx context.Context, key string, names []string) error {
	return writeDoc(ctx, s.store, key, names)
}

func (s *Store) Stories(ctx context.Context, key string) ([]StoryEntry, error) {
	return readDoc[[]StoryEntry](ctx, s.store, key)
}

func (s *Store) UpdateStories(ctx context.Context, key string, mutate func([]StoryEntry) []StoryEntry) error {
	return updateDoc(ctx, s.store, key, mutate)
}

func (s *Store) SetStories(ctx context.Context, key string, entries []StoryEntry) error {
	return writeDoc(ctx, s.store, key, entries)
}
