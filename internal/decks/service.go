// Package decks implements deck CRUD over the object store plus the derived
// operations that hang off a deck: ordering, audio preload and example-line
// generation. The CSV blob is the primary artifact of every mutating
// operation; index updates are secondary and surface as partial success
// instead of rolling the blob back.
package decks

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mjuhl/wortkiste/internal/audio"
	"github.com/mjuhl/wortkiste/internal/cache"
	"github.com/mjuhl/wortkiste/internal/common"
	"github.com/mjuhl/wortkiste/internal/index"
	"github.com/mjuhl/wortkiste/internal/logging"
	"github.com/mjuhl/wortkiste/internal/models"
	"github.com/mjuhl/wortkiste/internal/names"
	"github.com/mjuhl/wortkiste/internal/storage"
)

const (
	indexCacheTTL = 30 * time.Second

	cacheKeyIndex = "decks:index"
)

// Service owns all deck operations.
type Service struct {
	store storage.ObjectStore
	keys  storage.Keys
	idx   *index.Store
	cache *cache.Cache
	audio *audio.Manager
	ai    LineGenerator
	log   logging.Logger
}

// LineGenerator produces example sentences for cards. Satisfied by
// ai.Client.
type LineGenerator interface {
	GenerateLines(ctx context.Context, cards []models.Card) []models.Line
}

func NewService(store storage.ObjectStore, keys storage.Keys, idx *index.Store, c *cache.Cache, am *audio.Manager, gen LineGenerator, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{store: store, keys: keys, idx: idx, cache: c, audio: am, ai: gen, log: log}
}

func (s *Service) available() error {
	if s.store == nil {
		return common.ErrStoreUnavailable
	}
	return nil
}

func (s *Service) invalidate() {
	s.cache.Invalidate("decks:")
}

// List returns the deck index, newest first. Entries missing a
// last-modified stamp are backfilled from a bucket listing when no entry
// carries one.
func (s *Service) List(ctx context.Context) ([]index.DeckEntry, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	if v, ok := s.cache.Get(cacheKeyIndex, indexCacheTTL); ok {
		return v.([]index.DeckEntry), nil
	}

	raw, err := s.idx.Decks(ctx, s.keys.DeckIndex())
	if err != nil {
		return nil, err
	}
	entries := make([]index.DeckEntry, 0, len(raw))
	for _, e := range raw {
		file := strings.ToLower(e.File)
		if e.Name == "" || !strings.HasSuffix(file, ".csv") {
			continue
		}
		if !strings.HasPrefix(e.File, "csv/") && !strings.Contains(e.File, "/csv/") {
			continue
		}
		entries = append(entries, e)
	}

	anyStamped := false
	for _, e := range entries {
		if e.LastModified != "" {
			anyStamped = true
			break
		}
	}
	if !anyStamped && len(entries) > 0 {
		if infos, err := s.store.List(ctx, s.keys.CSVPrefix()); err == nil {
			stamps := make(map[string]string, len(infos))
			for _, info := range infos {
				stamps[info.Key] = info.LastModified.Format(time.RFC3339)
			}
			for i := range entries {
				key := entries[i].File
				if !strings.Contains(key, "/csv/") {
					key = s.keys.Bucket + "/" + key
				}
				entries[i].LastModified = stamps[key]
			}
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastModified > entries[j].LastModified
	})
	s.cache.Set(cacheKeyIndex, entries)
	return entries, nil
}

// Cards returns the parsed vocabulary of a deck.
func (s *Service) Cards(ctx context.Context, deck string) ([]models.Card, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	safe := names.Sanitize(deck)
	if safe == "" {
		return nil, common.ErrInvalidName
	}
	data, err := s.store.Get(ctx, s.keys.DeckCSV(safe))
	if err != nil {
		return nil, err
	}
	return models.ParseCSV(data), nil
}

// cardsSilent is Cards with every failure flattened to an empty slice, for
// background and best-effort paths.
func (s *Service) cardsSilent(ctx context.Context, deck string) []models.Card {
	cards, err := s.Cards(ctx, deck)
	if err != nil {
		return nil
	}
	return cards
}

// RawCSV returns the stored CSV content of a deck.
func (s *Service) RawCSV(ctx context.Context, deck string) (name, file, content string, err error) {
	if err := s.available(); err != nil {
		return "", "", "", err
	}
	safe := names.Sanitize(deck)
	if safe == "" {
		return "", "", "", common.ErrInvalidName
	}
	key := s.keys.DeckCSV(safe)
	data, err := s.store.Get(ctx, key)
	if err != nil {
		return "", "", "", err
	}
	return safe, key, string(data), nil
}

// CreateResult reports a deck creation, including the secondary index
// outcome.
type CreateResult struct {
	OK           bool   `json:"ok"`
	Bucket       string `json:"r2_bucket"`
	CSVKey       string `json:"r2_csv_key"`
	Rows         int    `json:"rows"`
	AudioStatus  string `json:"audio_status"`
	IndexUpdated bool   `json:"index_updated"`
	IndexError   string `json:"index_error,omitempty"`
}

// Create parses the submitted "en,de" lines, writes the CSV blob and then
// upserts the deck into the index. The blob write is the primary effect; an
// index failure is reported, not rolled back.
func (s *Service) Create(ctx context.Context, name, data, folder string) (CreateResult, error) {
	if err := s.available(); err != nil {
		return CreateResult{}, err
	}
	safe := names.Sanitize(name)
	if safe == "" {
		return CreateResult{}, common.ErrInvalidName
	}

	var rows [][]string
	for _, line := range strings.Split(data, "\n") {
		parts := strings.SplitN(line, ",", 2)
		if len(parts) != 2 {
			continue
		}
		en := strings.TrimSpace(parts[0])
		de := strings.TrimSpace(parts[1])
		if en != "" && de != "" {
			rows = append(rows, []string{en, de})
		}
	}
	if len(rows) == 0 {
		return CreateResult{}, fmt.Errorf("%w: no valid rows", common.ErrInvalidName)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return CreateResult{}, err
	}

	csvKey := s.keys.DeckCSV(safe)
	if err := s.store.Put(ctx, csvKey, buf.Bytes(), "text/csv"); err != nil {
		return CreateResult{}, fmt.Errorf("uploading deck csv: %w", err)
	}

	safeFolder := ""
	if folder != "" {
		safeFolder = names.Sanitize(folder)
	}
	result := CreateResult{
		OK:          true,
		Bucket:      s.keys.Bucket,
		CSVKey:      csvKey,
		Rows:        len(rows),
		AudioStatus: "generating_in_background",
	}
	err := s.idx.UpdateDecks(ctx, s.keys.DeckIndex(), func(entries []index.DeckEntry) []index.DeckEntry {
		for i := range entries {
			if entries[i].Name == safe {
				entries[i].File = csvKey
				if safeFolder != "" {
					entries[i].Folder = safeFolder
				}
				return entries
			}
		}
		return append(entries, index.DeckEntry{Name: safe, File: csvKey, Folder: safeFolder})
	})
	if err != nil {
		s.log.Warn(ctx, "deck index update failed", "deck", safe, "error", err)
		result.IndexError = err.Error()
	} else {
		result.IndexUpdated = true
	}
	s.invalidate()

	words := make([]string, 0, len(rows))
	for _, row := range rows {
		words = append(words, row[1])
	}
	s.audio.GenerateWords(words, "de")

	s.log.Info(ctx, "deck created", "deck", safe, "rows", len(rows))
	return result, nil
}

// UpdateResult reports a deck content update.
type UpdateResult struct {
	OK              bool   `json:"ok"`
	Bucket          string `json:"r2_bucket"`
	CSVKey          string `json:"r2_csv_key"`
	Rows            int    `json:"rows"`
	AudioStatus     string `json:"audio_status"`
	WordsToDelete   int    `json:"words_to_delete"`
	WordsToGenerate int    `json:"words_to_generate"`
}

// Update replaces a deck's CSV content and reconciles the word audio in the
// background: audio for dropped words is removed, audio for new words is
// generated.
func (s *Service) Update(ctx context.Context, name, content string) (UpdateResult, error) {
	if err := s.available(); err != nil {
		return UpdateResult{}, err
	}
	safe := names.Sanitize(name)
	if safe == "" {
		return UpdateResult{}, common.ErrInvalidName
	}
	key := s.keys.DeckCSV(safe)

	var oldWords []string
	if old, err := s.store.Get(ctx, key); err == nil {
		oldWords = models.GermanWords(old)
	} else if !storage.IsNotFound(err) {
		return UpdateResult{}, err
	}

	if err := s.store.Put(ctx, key, []byte(content), "text/csv"); err != nil {
		return UpdateResult{}, fmt.Errorf("updating deck csv: %w", err)
	}
	s.invalidate()

	newWords := models.GermanWords([]byte(content))
	toDelete := diff(oldWords, newWords)
	toGenerate := diff(newWords, oldWords)
	if len(toDelete) > 0 || len(toGenerate) > 0 {
		s.audio.ReplaceWords(toDelete, toGenerate, "de")
	}

	rows := 0
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(line, ",") {
			rows++
		}
	}
	return UpdateResult{
		OK:              true,
		Bucket:          s.keys.Bucket,
		CSVKey:          key,
		Rows:            rows,
		AudioStatus:     "processing_in_background",
		WordsToDelete:   len(toDelete),
		WordsToGenerate: len(toGenerate),
	}, nil
}

// diff returns the elements of a that are not in b.
func diff(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, x := range b {
		inB[x] = true
	}
	var out []string
	for _, x := range a {
		if !inB[x] {
			out = append(out, x)
		}
	}
	return out
}

// DeleteResult reports a deck deletion.
type DeleteResult struct {
	OK           bool `json:"ok"`
	CSVDeleted   bool `json:"csv_deleted"`
	AudioDeleted int  `json:"audio_deleted"`
	AudioErrors  int  `json:"audio_errors"`
	IndexUpdated bool `json:"index_updated"`
}

// Delete removes a deck: dependent audio first (best effort), then the CSV
// blob, then the index entry. The index removal is what counts as the
// deletion; an orphaned blob left by a partial failure is swept later.
func (s *Service) Delete(ctx context.Context, name string) (DeleteResult, error) {
	if err := s.available(); err != nil {
		return DeleteResult{}, err
	}
	safe := names.Sanitize(name)
	if safe == "" {
		return DeleteResult{}, common.ErrInvalidName
	}
	csvKey := s.keys.DeckCSV(safe)

	var result DeleteResult
	if data, err := s.store.Get(ctx, csvKey); err == nil {
		result.AudioDeleted, result.AudioErrors = s.audio.DeleteWords(ctx, models.GermanWords(data), "de")
	} else if !storage.IsNotFound(err) {
		return DeleteResult{}, err
	}

	if err := s.store.Delete(ctx, csvKey); err == nil {
		result.CSVDeleted = true
	} else {
		s.log.Warn(ctx, "deck csv delete failed", "deck", safe, "error", err)
	}

	err := s.idx.UpdateDecks(ctx, s.keys.DeckIndex(), func(entries []index.DeckEntry) []index.DeckEntry {
		kept := entries[:0]
		for _, e := range entries {
			if e.Name != safe && e.File != csvKey {
				kept = append(kept, e)
			}
		}
		return kept
	})
	if err != nil {
		s.log.Warn(ctx, "deck index removal failed", "deck", safe, "error", err)
	} else {
		result.IndexUpdated = true
	}
	s.invalidate()

	result.OK = true
	return result, nil
}

// RenameResult reports a deck rename.
type RenameResult struct {
	OK           bool   `json:"ok"`
	OldName      string `json:"old_name"`
	NewName      string `json:"new_name"`
	IndexUpdated bool   `json:"index_updated"`
}

// Rename copies the CSV blob to the new key before deleting the old one, so
// the content never has zero copies, then rewrites the index entry and the
// affected order list.
func (s *Service) Rename(ctx context.Context, oldName, newName string) (RenameResult, error) {
	if err := s.available(); err != nil {
		return RenameResult{}, err
	}
	oldSafe := names.Sanitize(oldName)
	newSafe := names.Sanitize(newName)
	if oldSafe == "" || newSafe == "" {
		return RenameResult{}, common.ErrInvalidName
	}
	if oldSafe == newSafe {
		return RenameResult{}, fmt.Errorf("%w: new name must be different", common.ErrInvalidName)
	}
	oldKey := s.keys.DeckCSV(oldSafe)
	newKey := s.keys.DeckCSV(newSafe)

	exists, err := s.store.Head(ctx, newKey)
	if err != nil {
		return RenameResult{}, err
	}
	if exists {
		return RenameResult{}, fmt.Errorf("%w: deck %s", common.ErrAlreadyExists, newSafe)
	}

	content, err := s.store.Get(ctx, oldKey)
	if err != nil {
		return RenameResult{}, err
	}
	if err := s.store.Put(ctx, newKey, content, "text/csv"); err != nil {
		return RenameResult{}, fmt.Errorf("copying deck csv: %w", err)
	}
	if err := s.store.Delete(ctx, oldKey); err != nil {
		s.log.Warn(ctx, "old deck csv delete failed", "deck", oldSafe, "error", err)
	}

	result := RenameResult{OK: true, OldName: oldSafe, NewName: newSafe}
	var folder string
	err = s.idx.UpdateDecks(ctx, s.keys.DeckIndex(), func(entries []index.DeckEntry) []index.DeckEntry {
		for i := range entries {
			if entries[i].Name == oldSafe {
				entries[i].Name = newSafe
				entries[i].File = newKey
				folder = entries[i].Folder
			}
		}
		return entries
	})
	if err != nil {
		s.log.Warn(ctx, "deck index rename failed", "deck", oldSafe, "error", err)
	} else {
		result.IndexUpdated = true
	}

	// the scope order list is cosmetic; a failed rewrite is not an error
	scope := folder
	if scope == "" {
		scope = "root"
	}
	if err := s.idx.UpdateOrder(ctx, s.keys.OrderDecks(scope), func(order []string) []string {
		for i := range order {
			if order[i] == oldSafe {
				order[i] = newSafe
			}
		}
		return order
	}); err != nil {
		s.log.Warn(ctx, "deck order rewrite failed", "scope", scope, "error", err)
	}
	s.invalidate()

	return result, nil
}

// Move reassigns a deck to a folder. Only the index entry is authoritative;
// the order-list updates are best effort.
func (s *Service) Move(ctx context.Context, name, folder string) (string, error) {
	if err := s.available(); err != nil {
		return "", err
	}
	safe := names.Sanitize(name)
	if safe == "" {
		return "", common.ErrInvalidName
	}
	target := ""
	if folder != "" {
		target = names.Sanitize(folder)
	}

	var prevFolder string
	err := s.idx.UpdateDecks(ctx, s.keys.DeckIndex(), func(entries []index.DeckEntry) []index.DeckEntry {
		for i := range entries {
			if entries[i].Name == safe {
				prevFolder = entries[i].Folder
				entries[i].Folder = target
			}
		}
		return entries
	})
	if err != nil {
		return "", err
	}
	s.invalidate()

	if prevFolder != "" {
		if err := s.idx.UpdateOrder(ctx, s.keys.OrderDecks(prevFolder), func(order []string) []string {
			kept := order[:0]
			for _, n := range order {
				if n != safe {
					kept = append(kept, n)
				}
			}
			return kept
		}); err != nil {
			s.log.Warn(ctx, "source order update failed", "scope", prevFolder, "error", err)
		}
	}
	scope := target
	if scope == "" {
		scope = "root"
	}
	if err := s.idx.UpdateOrder(ctx, s.keys.OrderDecks(scope), func(order []string) []string {
		for _, n := range order {
			if n == safe {
				return order
			}
		}
		return append(order, safe)
	}); err != nil {
		s.log.Warn(ctx, "target order update failed", "scope", scope, "error", err)
	}

	return target, nil
}

// RebuildIndex scans the csv/ prefix and rewrites the deck index from what
// actually exists, keeping known folder assignments.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	if err := s.available(); err != nil {
		return 0, err
	}
	prev, err := s.idx.Decks(ctx, s.keys.DeckIndex())
	if err != nil {
		return 0, err
	}
	folders := make(map[string]string, len(prev))
	for _, e := range prev {
		if e.Name != "" {
			folders[e.Name] = e.Folder
		}
	}

	infos, err := s.store.List(ctx, s.keys.CSVPrefix())
	if err != nil {
		return 0, err
	}
	var entries []index.DeckEntry
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, ".csv") {
			continue
		}
		base := info.Key[strings.LastIndex(info.Key, "/")+1:]
		name := names.Sanitize(strings.TrimSuffix(base, ".csv"))
		if name == "" {
			continue
		}
		entries = append(entries, index.DeckEntry{
			Name:         name,
			File:         info.Key,
			Folder:       folders[name],
			LastModified: info.LastModified.Format(time.RFC3339),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].LastModified > entries[j].LastModified
	})
	if err := s.idx.SetDecks(ctx, s.keys.DeckIndex(), entries); err != nil {
		return 0, fmt.Errorf("rebuilding deck index: %w", err)
	}
	s.invalidate()
	return len(entries), nil
}

// PreloadAudio makes sure every word of the deck has audio and returns text
// to URL mappings for the client.
func (s *Service) PreloadAudio(ctx context.Context, deck, lang string) (map[string]string, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	safe := names.Sanitize(deck)
	if safe == "" {
		return nil, common.ErrInvalidName
	}
	var words []string
	if data, err := s.store.Get(ctx, s.keys.DeckCSV(safe)); err == nil {
		words = models.GermanWords(data)
	}
	return s.audio.Preload(ctx, words, lang), nil
}

// Order returns the advisory deck order for a scope.
func (s *Service) Order(ctx context.Context, scope string) ([]string, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	return s.idx.Order(ctx, s.keys.OrderDecks(orderScope(scope)))
}

// SetOrder replaces the deck order list for a scope. Names that do not
// survive sanitizing are dropped.
func (s *Service) SetOrder(ctx context.Context, scope string, order []string) (string, []string, error) {
	if err := s.available(); err != nil {
		return "", nil, err
	}
	sc := orderScope(scope)
	cleaned := make([]string, 0, len(order))
	for _, n := range order {
		if safe := names.Sanitize(n); safe != "" {
			cleaned = append(cleaned, safe)
		}
	}
	if err := s.idx.SetOrder(ctx, s.keys.OrderDecks(sc), cleaned); err != nil {
		return "", nil, err
	}
	s.invalidate()
	return sc, cleaned, nil
}

func orderScope(scope string) string {
	if safe := names.Sanitize(scope); safe != "" {
		return safe
	}
	return "root"
}
