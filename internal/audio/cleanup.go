package audio

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mjuhl/wortkiste/internal/index"
	"github.com/mjuhl/wortkiste/internal/models"
	"github.com/mjuhl/wortkiste/internal/names"
)

// CleanupReport summarizes one reconciliation sweep over the word-audio
// prefix.
type CleanupReport struct {
	OK         bool `json:"ok"`
	DryRun     bool `json:"dry_run"`
	TTSTotal   int  `json:"tts_total"`
	Kept       int  `json:"kept"`
	Deleted    int  `json:"deleted"`
	Errors     int  `json:"errors"`
	ValidTexts int  `json:"valid_texts"`
}

// Cleanup reconciles the stored word audio against the current set of valid
// source texts: every German word of every deck CSV plus every cached
// example sentence. Blobs whose key is not derivable from a valid text are
// deleted (or merely counted when dryRun). This is a deliberate full scan;
// there is no incremental variant.
func (m *Manager) Cleanup(ctx context.Context, idx *index.Store, dryRun bool) (CleanupReport, error) {
	report := CleanupReport{OK: true, DryRun: dryRun}

	entries, err := idx.Decks(ctx, m.keys.DeckIndex())
	if err != nil {
		return report, err
	}

	validTexts := make(map[string]bool)
	for _, entry := range entries {
		fileKey := entry.File
		if fileKey == "" {
			fileKey = m.keys.DeckCSV(names.Sanitize(entry.Name))
		}
		if data, err := m.store.Get(ctx, fileKey); err == nil {
			for _, word := range models.GermanWords(data) {
				validTexts[word] = true
			}
		}
		if data, err := m.store.Get(ctx, m.keys.Lines(entry.Name)); err == nil {
			var doc models.LinesDoc
			if json.Unmarshal(data, &doc) == nil {
				for _, item := range doc.Items {
					if t := strings.TrimSpace(item.LineDE); t != "" {
						validTexts[t] = true
					}
				}
			}
		}
	}
	report.ValidTexts = len(validTexts)

	validKeys := make(map[string]bool, len(validTexts))
	for text := range validTexts {
		validKeys[m.keys.TTS("de", names.TTSSegment(text))] = true
	}

	infos, err := m.store.List(ctx, m.keys.TTSPrefix("de"))
	if err != nil {
		return report, err
	}
	for _, info := range infos {
		if !strings.HasSuffix(info.Key, ".mp3") {
			continue
		}
		report.TTSTotal++
		if validKeys[info.Key] {
			report.Kept++
			continue
		}
		if dryRun {
			report.Deleted++
			continue
		}
		if err := m.store.Delete(ctx, info.Key); err != nil {
			report.Errors++
			continue
		}
		report.Deleted++
	}
	return report, nil
}
