// Package folders manages the folder tree: an existence list, a child to
// parent map, and an advisory order list, all kept as JSON documents in the
// bucket. Folders also exist "virtually": any folder name referenced by a
// deck shows up in listings whether or not it was ever created explicitly.
package folders

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mjuhl/wortkiste/internal/cache"
	"github.com/mjuhl/wortkiste/internal/common"
	"github.com/mjuhl/wortkiste/internal/index"
	"github.com/mjuhl/wortkiste/internal/logging"
	"github.com/mjuhl/wortkiste/internal/names"
	"github.com/mjuhl/wortkiste/internal/storage"
)

const (
	cacheTTL     = 30 * time.Second
	cacheKeyList = "folders:list"
)

// Folder is one row of the folder listing.
type Folder struct {
	Name   string `json:"name"`
	Count  int    `json:"count"`
	Parent string `json:"parent,omitempty"`
}

// Service owns all folder operations.
type Service struct {
	store storage.ObjectStore
	keys  storage.Keys
	idx   *index.Store
	cache *cache.Cache
	log   logging.Logger
}

func NewService(store storage.ObjectStore, keys storage.Keys, idx *index.Store, c *cache.Cache, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{store: store, keys: keys, idx: idx, cache: c, log: log}
}

func (s *Service) available() error {
	if s.store == nil {
		return common.ErrStoreUnavailable
	}
	return nil
}

func (s *Service) invalidate() {
	s.cache.Invalidate("folders:")
	s.cache.Invalidate("decks:")
}

// List merges the explicit folder index with the virtual folders implied by
// deck assignments, attaches counts and parents, and applies the advisory
// order. Folders the order list does not know are appended; with no order
// list at all the result is sorted case-insensitively.
func (s *Service) List(ctx context.Context) ([]Folder, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	if v, ok := s.cache.Get(cacheKeyList, cacheTTL); ok {
		return v.([]Folder), nil
	}

	deckIndex, err := s.idx.Decks(ctx, s.keys.DeckIndex())
	if err != nil {
		return nil, err
	}
	folderIndex, err := s.idx.Folders(ctx, s.keys.FolderIndex())
	if err != nil {
		return nil, err
	}
	parents, err := s.idx.Parents(ctx, s.keys.Parents())
	if err != nil {
		return nil, err
	}
	order, err := s.idx.Order(ctx, s.keys.OrderFolders())
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, d := range deckIndex {
		name := d.Folder
		if name == "" {
			name = "Uncategorized"
		}
		counts[name]++
	}
	for _, f := range folderIndex {
		if f != "" {
			if _, ok := counts[f]; !ok {
				counts[f] = 0
			}
		}
	}

	base := make([]Folder, 0, len(counts))
	for name, count := range counts {
		base = append(base, Folder{Name: name, Count: count, Parent: parents[name]})
	}

	var ordered []Folder
	if len(order) > 0 {
		byName := make(map[string]Folder, len(base))
		for _, f := range base {
			byName[f.Name] = f
		}
		listed := make(map[string]bool, len(order))
		for _, name := range order {
			if f, ok := byName[name]; ok {
				ordered = append(ordered, f)
			}
			listed[name] = true
		}
		// order is advisory: unlisted folders still appear at the end
		rest := make([]Folder, 0)
		for _, f := range base {
			if !listed[f.Name] {
				rest = append(rest, f)
			}
		}
		sort.Slice(rest, func(i, j int) bool {
			return strings.ToLower(rest[i].Name) < strings.ToLower(rest[j].Name)
		})
		ordered = append(ordered, rest...)
	} else {
		ordered = base
		sort.Slice(ordered, func(i, j int) bool {
			return strings.ToLower(ordered[i].Name) < strings.ToLower(ordered[j].Name)
		})
	}

	s.cache.Set(cacheKeyList, ordered)
	return ordered, nil
}

// Create adds a folder to the existence list. Creating an existing folder
// is a no-op.
func (s *Service) Create(ctx context.Context, name string) (string, error) {
	if err := s.available(); err != nil {
		return "", err
	}
	safe := names.Sanitize(name)
	if safe == "" {
		return "", common.ErrInvalidName
	}
	err := s.idx.UpdateFolders(ctx, s.keys.FolderIndex(), func(items []string) []string {
		for _, f := range items {
			if f == safe {
				return items
			}
		}
		return append(items, safe)
	})
	if err != nil {
		return "", err
	}
	s.invalidate()
	return safe, nil
}

// Rename renames a folder everywhere it is referenced: the existence list,
// the order list, the parent map (as child and as parent) and every deck
// assigned to it. The existence-list update is the primary effect; the rest
// is best effort.
func (s *Service) Rename(ctx context.Context, oldName, newName string) (string, string, error) {
	if err := s.available(); err != nil {
		return "", "", err
	}
	oldSafe := names.Sanitize(oldName)
	newSafe := names.Sanitize(newName)
	if oldSafe == "" || newSafe == "" {
		return "", "", common.ErrInvalidName
	}

	err := s.idx.UpdateFolders(ctx, s.keys.FolderIndex(), func(items []string) []string {
		out := make([]string, 0, len(items)+1)
		seen := false
		for _, f := range items {
			if f == oldSafe {
				f = newSafe
			}
			if f == newSafe {
				if seen {
					continue
				}
				seen = true
			}
			out = append(out, f)
		}
		if !seen {
			out = append(out, newSafe)
		}
		return out
	})
	if err != nil {
		return "", "", err
	}

	if err := s.idx.UpdateOrder(ctx, s.keys.OrderFolders(), func(order []string) []string {
		for i := range order {
			if order[i] == oldSafe {
				order[i] = newSafe
			}
		}
		return order
	}); err != nil {
		s.log.Warn(ctx, "folder order rewrite failed", "folder", oldSafe, "error", err)
	}

	if err := s.idx.UpdateDecks(ctx, s.keys.DeckIndex(), func(entries []index.DeckEntry) []index.DeckEntry {
		for i := range entries {
			if entries[i].Folder == oldSafe {
				entries[i].Folder = newSafe
			}
		}
		return entries
	}); err != nil {
		s.log.Warn(ctx, "deck reassignment failed", "folder", oldSafe, "error", err)
	}

	if err := s.idx.UpdateParents(ctx, s.keys.Parents(), func(parents map[string]string) map[string]string {
		if p, ok := parents[oldSafe]; ok {
			delete(parents, oldSafe)
			parents[newSafe] = p
		}
		for child, parent := range parents {
			if parent == oldSafe {
				parents[child] = newSafe
			}
		}
		return parents
	}); err != nil {
		s.log.Warn(ctx, "parent map rewrite failed", "folder", oldSafe, "error", err)
	}

	s.invalidate()
	return oldSafe, newSafe, nil
}

// Delete removes a folder: it leaves the existence list and the order list,
// its decks become uncategorized, and its child folders move to the root.
func (s *Service) Delete(ctx context.Context, name string) (string, error) {
	if err := s.available(); err != nil {
		return "", err
	}
	safe := names.Sanitize(name)
	if safe == "" {
		return "", common.ErrInvalidName
	}

	err := s.idx.UpdateFolders(ctx, s.keys.FolderIndex(), func(items []string) []string {
		kept := items[:0]
		for _, f := range items {
			if f != safe {
				kept = append(kept, f)
			}
		}
		return kept
	})
	if err != nil {
		return "", err
	}

	if err := s.idx.UpdateOrder(ctx, s.keys.OrderFolders(), func(order []string) []string {
		kept := order[:0]
		for _, f := range order {
			if f != safe {
				kept = append(kept, f)
			}
		}
		return kept
	}); err != nil {
		s.log.Warn(ctx, "folder order removal failed", "folder", safe, "error", err)
	}

	if err := s.idx.UpdateDecks(ctx, s.keys.DeckIndex(), func(entries []index.DeckEntry) []index.DeckEntry {
		for i := range entries {
			if entries[i].Folder == safe {
				entries[i].Folder = ""
			}
		}
		return entries
	}); err != nil {
		s.log.Warn(ctx, "deck detachment failed", "folder", safe, "error", err)
	}

	if err := s.idx.UpdateParents(ctx, s.keys.Parents(), func(parents map[string]string) map[string]string {
		delete(parents, safe)
		for child, parent := range parents {
			if parent == safe {
				delete(parents, child)
			}
		}
		return parents
	}); err != nil {
		s.log.Warn(ctx, "parent cleanup failed", "folder", safe, "error", err)
	}

	s.invalidate()
	return safe, nil
}

// Move makes a folder a child of parent (or a root folder when parent is
// empty). Moving a folder under itself or one of its descendants is
// rejected.
func (s *Service) Move(ctx context.Context, name, parent string) (string, string, error) {
	if err := s.available(); err != nil {
		return "", "", err
	}
	safe := names.Sanitize(name)
	if safe == "" {
		return "", "", common.ErrInvalidName
	}
	target := ""
	if parent != "" {
		target = names.Sanitize(parent)
	}
	if target == safe {
		return "", "", fmt.Errorf("%w: cannot move folder into itself", common.ErrInvalidName)
	}

	parents, err := s.idx.Parents(ctx, s.keys.Parents())
	if err != nil {
		return "", "", err
	}
	if target != "" {
		current := target
		visited := make(map[string]bool)
		for current != "" {
			if current == safe {
				return "", "", fmt.Errorf("%w: cannot move folder into its own descendant", common.ErrInvalidName)
			}
			if visited[current] {
				break
			}
			visited[current] = true
			current = parents[current]
		}
	}

	err = s.idx.UpdateParents(ctx, s.keys.Parents(), func(m map[string]string) map[string]string {
		if target == "" {
			delete(m, safe)
		} else {
			m[safe] = target
		}
		return m
	})
	if err != nil {
		return "", "", err
	}
	s.invalidate()
	return safe, target, nil
}

// Order returns the advisory folder order.
func (s *Service) Order(ctx context.Context) ([]string, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	return s.idx.Order(ctx, s.keys.OrderFolders())
}

// SetOrder replaces the folder order list.
func (s *Service) SetOrder(ctx context.Context, order []string) ([]string, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	cleaned := make([]string, 0, len(order))
	for _, n := range order {
		if safe := names.Sanitize(n); safe != "" {
			cleaned = append(cleaned, safe)
		}
	}
	if err := s.idx.SetOrder(ctx, s.keys.OrderFolders(), cleaned); err != nil {
		return nil, err
	}
	s.invalidate()
	return cleaned, nil
}
