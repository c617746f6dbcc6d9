// Package stories generates, stores and lists German learner stories. A
// story belongs to a deck (built from its vocabulary), or is standalone:
// custom stories about an arbitrary topic and text stories translated line
// by line from pasted input.
package stories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"

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
	listCacheTTL = 60 * time.Second
	cacheKeyList = "stories:list"

	// deckStoryLevel is recorded on stories generated from deck vocabulary,
	// which target the whole beginner range rather than one CEFR level.
	deckStoryLevel = "A1-B1"

	rebuildConcurrency = 10
)

// CardSource yields the vocabulary of a deck.
type CardSource interface {
	Cards(ctx context.Context, deck string) ([]models.Card, error)
}

// Generator produces stories. Implementations return nil when generation is
// unavailable or failed.
type Generator interface {
	GenerateStory(ctx context.Context, cards []models.Card, deck string) *models.Story
	GenerateCustomStory(ctx context.Context, topic, level string) *models.Story
	GenerateSubtitleStory(ctx context.Context, lines []string, level string) *models.Story
}

// StoryResult is the payload of the story endpoints.
type StoryResult struct {
	Deck   string        `json:"deck"`
	Story  *models.Story `json:"story"`
	Cached bool          `json:"cached"`
}

// DeleteResult reports what a story deletion removed.
type DeleteResult struct {
	Deck         string `json:"deck"`
	FilesDeleted int    `json:"files_deleted"`
	Errors       int    `json:"errors"`
}

// Service owns all story operations.
type Service struct {
	store storage.ObjectStore
	keys  storage.Keys
	idx   *index.Store
	cache *cache.Cache
	cards CardSource
	ai    Generator
	audio *audio.Manager
	log   logging.Logger
}

func NewService(store storage.ObjectStore, keys storage.Keys, idx *index.Store, c *cache.Cache, cards CardSource, ai Generator, mgr *audio.Manager, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{store: store, keys: keys, idx: idx, cache: c, cards: cards, ai: ai, audio: mgr, log: log}
}

func (s *Service) available() error {
	if s.store == nil {
		return common.ErrStoreUnavailable
	}
	return nil
}

func (s *Service) invalidate() {
	s.cache.Invalidate("stories:")
}

// load reads a stored story, trying the per-story directory first and the
// flat legacy key second.
func (s *Service) load(ctx context.Context, name string) (*models.Story, error) {
	for _, key := range []string{s.keys.Story(name), s.keys.LegacyStory(name)} {
		data, err := s.store.Get(ctx, key)
		if err != nil {
			if storage.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		var story models.Story
		if jerr := json.Unmarshal(data, &story); jerr != nil {
			s.log.Warn(ctx, "stored story not decodable", "key", key, "error", jerr)
			continue
		}
		return &story, nil
	}
	return nil, common.ErrNotFound
}

func (s *Service) save(ctx context.Context, name string, story *models.Story) error {
	data, err := json.Marshal(story)
	if err != nil {
		return err
	}
	return s.store.Put(ctx, s.keys.Story(name), data, "application/json")
}

// upsertEntry replaces the story's index row and keeps the index sorted
// newest first.
func (s *Service) upsertEntry(ctx context.Context, name string, story *models.Story) {
	entry := index.StoryEntry{
		Key:          s.keys.Story(name),
		Deck:         name,
		TitleDE:      story.TitleDE,
		TitleEN:      story.TitleEN,
		Level:        story.Level,
		LastModified: time.Now().UTC().Format(time.RFC3339),
	}
	err := s.idx.UpdateStories(ctx, s.keys.StoriesIndex(), func(entries []index.StoryEntry) []index.StoryEntry {
		kept := entries[:0]
		for _, e := range entries {
			if e.Deck != name {
				kept = append(kept, e)
			}
		}
		kept = append(kept, entry)
		sort.Slice(kept, func(i, j int) bool { return kept[i].LastModified > kept[j].LastModified })
		return kept
	})
	if err != nil {
		s.log.Warn(ctx, "stories index update failed", "story", name, "error", err)
	}
}

// Generate returns the story for a deck, serving the stored one unless
// refresh is set. A fresh story is written back, indexed and has its audio
// queued.
func (s *Service) Generate(ctx context.Context, deck string, refresh bool) (StoryResult, error) {
	if err := s.available(); err != nil {
		return StoryResult{}, err
	}
	safe := names.Sanitize(deck)
	if safe == "" {
		return StoryResult{}, common.ErrInvalidName
	}

	if !refresh {
		story, err := s.load(ctx, safe)
		if err == nil {
			return StoryResult{Deck: safe, Story: story, Cached: true}, nil
		}
		if !storage.IsNotFound(err) {
			return StoryResult{}, err
		}
	}

	cards, err := s.cards.Cards(ctx, safe)
	if err != nil {
		return StoryResult{}, err
	}
	if len(cards) == 0 {
		return StoryResult{}, fmt.Errorf("%w: deck has no cards", common.ErrInvalidName)
	}

	story := s.ai.GenerateStory(ctx, cards, safe)
	if story == nil {
		return StoryResult{}, fmt.Errorf("%w: story generation failed", common.ErrExternalService)
	}
	if story.Level == "" {
		story.Level = deckStoryLevel
	}

	if err := s.save(ctx, safe, story); err != nil {
		return StoryResult{}, err
	}
	s.upsertEntry(ctx, safe, story)
	s.audio.GenerateStoryAudio(safe, story.Segments)
	s.invalidate()
	return StoryResult{Deck: safe, Story: story, Cached: false}, nil
}

// GenerateCustom writes a standalone story about an arbitrary topic. The
// story gets a fresh "custom_" identifier each call.
func (s *Service) GenerateCustom(ctx context.Context, topic, level string) (StoryResult, error) {
	if err := s.available(); err != nil {
		return StoryResult{}, err
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return StoryResult{}, fmt.Errorf("%w: topic is required", common.ErrInvalidName)
	}
	level = models.NormalizeLevel(level)

	story := s.ai.GenerateCustomStory(ctx, topic, level)
	if story == nil {
		return StoryResult{}, fmt.Errorf("%w: story generation failed", common.ErrExternalService)
	}
	story.Level = level

	id, err := storyID("custom")
	if err != nil {
		return StoryResult{}, err
	}
	if err := s.save(ctx, id, story); err != nil {
		return StoryResult{}, err
	}
	s.upsertEntry(ctx, id, story)
	s.audio.GenerateStoryAudio(id, story.Segments)
	s.invalidate()
	return StoryResult{Deck: id, Story: story, Cached: false}, nil
}

// FromText turns pasted German text into a story, one segment per input
// line. The model supplies translations and highlights; its output is
// realigned to the input so the German side always matches what was pasted,
// even when the response is partial or missing.
func (s *Service) FromText(ctx context.Context, text, level string) (StoryResult, error) {
	if err := s.available(); err != nil {
		return StoryResult{}, err
	}
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return StoryResult{}, fmt.Errorf("%w: text is required", common.ErrInvalidName)
	}
	level = models.NormalizeLevel(level)

	generated := s.ai.GenerateSubtitleStory(ctx, lines, level)

	segments := make([]models.Segment, len(lines))
	for i, line := range lines {
		var seg models.Segment
		if generated != nil && i < len(generated.Segments) {
			seg = generated.Segments[i]
		}
		seg.TextDE = line
		if seg.Type == "" {
			seg.Type = "narration"
		}
		segments[i] = seg
	}

	story := &models.Story{Level: level, Segments: segments}
	if generated != nil {
		story.TitleDE = generated.TitleDE
		story.TitleEN = generated.TitleEN
		story.Characters = generated.Characters
		story.Vocabulary = generated.Vocabulary
	}
	if story.TitleDE == "" {
		story.TitleDE = truncate(lines[0], 40)
	}
	if story.TitleEN == "" {
		story.TitleEN = story.TitleDE
	}

	id, err := storyID("text")
	if err != nil {
		return StoryResult{}, err
	}
	if err := s.save(ctx, id, story); err != nil {
		return StoryResult{}, err
	}
	s.upsertEntry(ctx, id, story)
	s.audio.GenerateStoryAudio(id, story.Segments)
	s.invalidate()
	return StoryResult{Deck: id, Story: story, Cached: false}, nil
}

// List returns the stories index, rebuilding it from the bucket when it is
// missing or empty.
func (s *Service) List(ctx context.Context) ([]index.StoryEntry, error) {
	if err := s.available(); err != nil {
		return nil, err
	}
	if v, ok := s.cache.Get(cacheKeyList, listCacheTTL); ok {
		return v.([]index.StoryEntry), nil
	}
	entries, err := s.idx.Stories(ctx, s.keys.StoriesIndex())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		entries, err = s.rebuild(ctx)
		if err != nil {
			return nil, err
		}
	}
	s.cache.Set(cacheKeyList, entries)
	return entries, nil
}

// Delete removes a story, its audio and its index row. File errors are
// counted, not fatal.
func (s *Service) Delete(ctx context.Context, name string) (DeleteResult, error) {
	if err := s.available(); err != nil {
		return DeleteResult{}, err
	}
	safe := names.Sanitize(name)
	if safe == "" {
		return DeleteResult{}, common.ErrInvalidName
	}

	res := DeleteResult{Deck: safe}
	infos, err := s.store.List(ctx, s.keys.StoryPrefix(safe))
	if err != nil {
		return DeleteResult{}, err
	}
	for _, info := range infos {
		if err := s.store.Delete(ctx, info.Key); err != nil {
			s.log.Warn(ctx, "story file delete failed", "key", info.Key, "error", err)
			res.Errors++
			continue
		}
		res.FilesDeleted++
	}
	if err := s.store.Delete(ctx, s.keys.LegacyStory(safe)); err != nil && !storage.IsNotFound(err) {
		res.Errors++
	}

	if err := s.idx.UpdateStories(ctx, s.keys.StoriesIndex(), func(entries []index.StoryEntry) []index.StoryEntry {
		kept := entries[:0]
		for _, e := range entries {
			if e.Deck != safe {
				kept = append(kept, e)
			}
		}
		return kept
	}); err != nil {
		s.log.Warn(ctx, "stories index removal failed", "story", safe, "error", err)
	}

	s.invalidate()
	return res, nil
}

// RebuildIndex rescans the bucket and replaces the stories index. Returns
// the number of stories indexed.
func (s *Service) RebuildIndex(ctx context.Context) (int, error) {
	if err := s.available(); err != nil {
		return 0, err
	}
	entries, err := s.rebuild(ctx)
	if err != nil {
		return 0, err
	}
	s.invalidate()
	return len(entries), nil
}

// rebuild lists every story document under stories/, reads the metadata of
// each and writes a fresh index. Both layouts are recognized; when a story
// exists in both, the per-story directory wins.
func (s *Service) rebuild(ctx context.Context) ([]index.StoryEntry, error) {
	infos, err := s.store.List(ctx, s.keys.StoriesPrefix())
	if err != nil {
		return nil, err
	}

	type candidate struct {
		key    string
		deck   string
		legacy bool
		stamp  time.Time
	}
	var candidates []candidate
	for _, info := range infos {
		if info.Key == s.keys.StoriesIndex() || strings.Contains(info.Key, "/audio/") {
			continue
		}
		rel := strings.TrimPrefix(info.Key, s.keys.StoriesPrefix())
		switch {
		case strings.HasSuffix(rel, "/story.json"):
			deck := strings.TrimSuffix(rel, "/story.json")
			if deck != "" && !strings.Contains(deck, "/") {
				candidates = append(candidates, candidate{key: info.Key, deck: deck, stamp: info.LastModified})
			}
		case strings.HasSuffix(rel, ".json") && !strings.Contains(rel, "/"):
			deck := strings.TrimSuffix(rel, ".json")
			candidates = append(candidates, candidate{key: info.Key, deck: deck, legacy: true, stamp: info.LastModified})
		}
	}

	// directory layout shadows the legacy flat file
	hasDir := make(map[string]bool)
	for _, c := range candidates {
		if !c.legacy {
			hasDir[c.deck] = true
		}
	}

	var mu sync.Mutex
	var entries []index.StoryEntry
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rebuildConcurrency)
	for _, c := range candidates {
		if c.legacy && hasDir[c.deck] {
			continue
		}
		c := c
		g.Go(func() error {
			data, err := s.store.Get(gctx, c.key)
			if err != nil {
				s.log.Warn(gctx, "story read failed during rebuild", "key", c.key, "error", err)
				return nil
			}
			var story models.Story
			if err := json.Unmarshal(data, &story); err != nil {
				s.log.Warn(gctx, "story not decodable during rebuild", "key", c.key, "error", err)
				return nil
			}
			level := story.Level
			if level == "" {
				level = deckStoryLevel
			}
			mu.Lock()
			entries = append(entries, index.StoryEntry{
				Key:          c.key,
				Deck:         c.deck,
				TitleDE:      story.TitleDE,
				TitleEN:      story.TitleEN,
				Level:        level,
				LastModified: c.stamp.UTC().Format(time.RFC3339),
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].LastModified > entries[j].LastModified })
	if err := s.idx.SetStories(ctx, s.keys.StoriesIndex(), entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func storyID(kind string) (string, error) {
	id, err := gonanoid.New(8)
	if err != nil {
		return "", err
	}
	return kind + "_" + id, nil
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
