package audio

import (
	"context"
	"strings"
	"unicode"

	"github.com/mjuhl/wortkiste/internal/models"
	"github.com/mjuhl/wortkiste/internal/storage"
)

// storySegment derives the key segment for a story audio blob. Same
// character class as word audio but with a different fallback.
func storySegment(text string) string {
	var b strings.Builder
	for _, r := range text {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), "_")
	if s == "" {
		return "audio"
	}
	return s
}

// StoryAudioKey returns the bucket key for one spoken story sentence.
func (m *Manager) StoryAudioKey(deck, text string) string {
	return m.keys.StoryAudio(deck, storySegment(text))
}

// EnsureStoryAudio returns the audio for a story sentence, generating and
// caching it when missing.
func (m *Manager) EnsureStoryAudio(ctx context.Context, deck, text string) ([]byte, error) {
	key := m.StoryAudioKey(deck, text)
	data, err := m.store.Get(ctx, key)
	if err == nil {
		return data, nil
	}
	if !storage.IsNotFound(err) {
		return nil, err
	}
	data, err = m.engine.Synthesize(ctx, text, "de", false)
	if err != nil {
		return nil, err
	}
	if err := m.store.Put(ctx, key, data, "audio/mpeg"); err != nil {
		return nil, err
	}
	return data, nil
}

// GenerateStoryAudio regenerates the full audio set for a story in the
// background: existing blobs under the story's audio prefix are dropped,
// then every sentence of every segment is synthesized.
func (m *Manager) GenerateStoryAudio(deck string, segments []models.Segment) {
	m.submit(func() {
		ctx := context.Background()
		m.deleteStoryAudio(ctx, deck)

		sentences := make(map[string]bool)
		for _, seg := range segments {
			text := strings.TrimSpace(seg.TextDE)
			if text == "" {
				continue
			}
			for _, s := range SplitSentences(text) {
				sentences[s] = true
			}
		}
		for text := range sentences {
			key := m.StoryAudioKey(deck, text)
			exists, err := m.store.Head(ctx, key)
			if err != nil || exists {
				continue
			}
			data, err := m.engine.Synthesize(ctx, text, "de", false)
			if err != nil {
				m.log.Warn(ctx, "story audio synthesis failed", "deck", deck, "error", err)
				continue
			}
			if err := m.store.Put(ctx, key, data, "audio/mpeg"); err != nil {
				m.log.Warn(ctx, "story audio upload failed", "key", key, "error", err)
			}
		}
	})
}

// DeleteStoryAudio removes every audio blob of a story.
func (m *Manager) deleteStoryAudio(ctx context.Context, deck string) {
	infos, err := m.store.List(ctx, m.keys.StoryAudioPrefix(deck))
	if err != nil {
		m.log.Warn(ctx, "story audio listing failed", "deck", deck, "error", err)
		return
	}
	for _, info := range infos {
		if err := m.store.Delete(ctx, info.Key); err != nil {
			m.log.Warn(ctx, "story audio delete failed", "key", info.Key, "error", err)
		}
	}
}

// SplitSentences breaks text into sentences after ".", "!" or "?" followed
// by whitespace.
func SplitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) {
				if s := strings.TrimSpace(cur.String()); s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
