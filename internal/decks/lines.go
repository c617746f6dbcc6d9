package decks

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/mjuhl/wortkiste/internal/common"
	"github.com/mjuhl/wortkiste/internal/models"
	"github.com/mjuhl/wortkiste/internal/names"
	"github.com/mjuhl/wortkiste/internal/storage"
)

// LinesResult is the payload of the line-generation endpoint.
type LinesResult struct {
	Deck   string        `json:"deck"`
	Count  int           `json:"count"`
	Items  []models.Line `json:"items"`
	Cached bool          `json:"cached"`
	Saved  bool          `json:"saved"`
}

var parenthetical = regexp.MustCompile(`\(.*?\)`)

// Lines returns example sentences for every card of a deck. A cached lines
// document is served unless refresh is set; otherwise the sentences are
// generated, cleaned against the deck's cards, persisted and their audio
// queued.
func (s *Service) Lines(ctx context.Context, deck string, limit int, refresh bool) (LinesResult, error) {
	if err := s.available(); err != nil {
		return LinesResult{}, err
	}
	safe := names.Sanitize(deck)
	if safe == "" {
		return LinesResult{}, common.ErrInvalidName
	}
	linesKey := s.keys.Lines(safe)

	if !refresh {
		if data, err := s.store.Get(ctx, linesKey); err == nil {
			var doc models.LinesDoc
			if json.Unmarshal(data, &doc) == nil {
				items := doc.Items
				if limit > 0 && limit < len(items) {
					items = items[:limit]
				}
				return LinesResult{Deck: deck, Count: len(items), Items: items, Cached: true}, nil
			}
		} else if !storage.IsNotFound(err) {
			return LinesResult{}, err
		}
	}

	cards := s.cardsSilent(ctx, safe)
	generated := s.ai.GenerateLines(ctx, cards)
	cleaned := cleanLines(cards, generated)

	saved := false
	payload, err := json.Marshal(models.LinesDoc{Deck: deck, Items: cleaned})
	if err == nil {
		if err := s.store.Put(ctx, linesKey, payload, "application/json"); err == nil {
			saved = true
		} else {
			s.log.Warn(ctx, "lines document save failed", "deck", safe, "error", err)
		}
	}

	var texts []string
	for _, item := range cleaned {
		if t := strings.TrimSpace(item.LineDE); t != "" {
			texts = append(texts, t)
		}
	}
	s.audio.GenerateWords(texts, "de")

	if limit > 0 && limit < len(cleaned) {
		cleaned = cleaned[:limit]
	}
	return LinesResult{Deck: deck, Count: len(cleaned), Items: cleaned, Cached: false, Saved: saved}, nil
}

// cleanLines aligns generated sentences back to the deck's cards, matching
// by the German word, and blanks out sentences the model got visibly wrong:
// bare-template openers, quote artifacts, or an untranslated infinitive.
func cleanLines(cards []models.Card, generated []models.Line) []models.Line {
	byDE := make(map[string]models.Line, len(generated))
	for _, item := range generated {
		k := strings.ToLower(strings.TrimSpace(item.DE))
		if k != "" {
			if _, ok := byDE[k]; !ok {
				byDE[k] = item
			}
		}
	}

	cleaned := make([]models.Line, 0, len(cards))
	for _, card := range cards {
		out := models.Line{DE: card.DE, EN: card.EN}
		chosen, ok := byDE[strings.ToLower(strings.TrimSpace(card.DE))]
		if !ok {
			cleaned = append(cleaned, out)
			continue
		}

		enClean := strings.TrimSpace(parenthetical.ReplaceAllString(card.EN, ""))
		if i := strings.Index(enClean, ":"); i >= 0 {
			enClean = strings.TrimSpace(enClean[:i])
		}
		isVerb := strings.HasPrefix(strings.ToLower(enClean), "to ")

		lineEN := strings.TrimSpace(chosen.LineEN)
		lineDE := strings.TrimSpace(chosen.LineDE)
		le := strings.ToLower(lineEN)
		badEN := lineEN == "" ||
			strings.HasPrefix(le, "this is") ||
			strings.HasPrefix(le, "that is") ||
			strings.HasPrefix(le, "i the") ||
			strings.HasPrefix(lineEN, `"`) ||
			(isVerb && strings.Contains(le, " to "))
		badDE := lineDE == "" || strings.HasPrefix(lineDE, `"`)

		if !badEN {
			out.LineEN = lineEN
		}
		if !badDE {
			out.LineDE = lineDE
		}
		cleaned = append(cleaned, out)
	}
	return cleaned
}
