// Package models holds the data shapes shared between the deck, story and
// audio services and the HTTP layer. Everything here mirrors the JSON stored
// in the bucket, so field tags are load-bearing.
package models

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"
)

// Card is one vocabulary pair from a deck CSV.
type Card struct {
	EN string `json:"en"`
	DE string `json:"de"`
}

// Line is a card together with its generated example sentence.
type Line struct {
	DE     string `json:"de"`
	EN     string `json:"en"`
	LineDE string `json:"line_de"`
	LineEN string `json:"line_en"`
}

// LinesDoc is the cached lines document at lines/{deck}.json.
type LinesDoc struct {
	Deck  string `json:"deck"`
	Items []Line `json:"items"`
}

// HighlightPair links a German word in a segment to its English counterpart
// for color-coded display.
type HighlightPair struct {
	DE    string `json:"de"`
	EN    string `json:"en"`
	Color int    `json:"color"`
}

// Segment is one narration or dialogue unit of a story. StartMS/EndMS carry
// subtitle timings when the story came from a subtitle file.
type Segment struct {
	Type           string          `json:"type"`
	Speaker        string          `json:"speaker"`
	TextDE         string          `json:"text_de"`
	TextEN         string          `json:"text_en"`
	HighlightPairs []HighlightPair `json:"highlight_pairs"`
	StartMS        *int            `json:"start_ms,omitempty"`
	EndMS          *int            `json:"end_ms,omitempty"`
}

// Story is the full story document at stories/{deck}/story.json.
type Story struct {
	TitleDE    string            `json:"title_de"`
	TitleEN    string            `json:"title_en"`
	Characters []string          `json:"characters"`
	Level      string            `json:"level,omitempty"`
	Vocabulary map[string]string `json:"vocabulary,omitempty"`
	Segments   []Segment         `json:"segments"`
}

// ParseCSV extracts cards from deck CSV content. Rows need at least two
// cells and both must be non-empty after trimming; everything else is
// skipped without error.
func ParseCSV(data []byte) []Card {
	var cards []Card
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(row) < 2 {
			continue
		}
		en := strings.TrimSpace(row[0])
		de := strings.TrimSpace(row[1])
		if en != "" && de != "" {
			cards = append(cards, Card{EN: en, DE: de})
		}
	}
	return cards
}

// GermanWords collects the distinct German column values of a deck CSV,
// in first-seen order. The English cell may be empty here; audio only needs
// the German side.
func GermanWords(data []byte) []string {
	var words []string
	seen := make(map[string]bool)
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(row) < 2 {
			continue
		}
		de := strings.TrimSpace(row[1])
		if de != "" && !seen[de] {
			seen[de] = true
			words = append(words, de)
		}
	}
	return words
}

// ValidLevels are the CEFR levels accepted for story generation.
var ValidLevels = map[string]bool{
	"A1": true, "A2": true, "B1": true, "B2": true, "C1": true, "C2": true,
}

// NormalizeLevel uppercases lvl and falls back to A2 when it is not a valid
// CEFR level.
func NormalizeLevel(lvl string) string {
	lvl = strings.ToUpper(strings.TrimSpace(lvl))
	if !ValidLevels[lvl] {
		return "A2"
	}
	return lvl
}
