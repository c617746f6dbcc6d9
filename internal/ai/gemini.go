// Package ai generates example sentences and stories with the Gemini API.
// Every call degrades to an empty result on failure; callers never treat a
// generation error as fatal for bulk operations.
package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/mjuhl/wortkiste/internal/common"
	"github.com/mjuhl/wortkiste/internal/logging"
	"github.com/mjuhl/wortkiste/internal/models"
)

const (
	defaultModel   = "gemini-2.5-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	linesTimeout = 30 * time.Second
	storyTimeout = 60 * time.Second

	// linesChunkSize bounds the vocabulary per request so responses stay
	// within the model's output budget.
	linesChunkSize = 30

	// storyWordCount is how many cards are sampled into a story prompt.
	storyWordCount = 12
)

var storyThemes = []string{
	"a hilarious misunderstanding at a café where someone orders completely the wrong thing",
	"a mini mystery where something goes missing and friends must find it",
	"an awkward first date with unexpected surprises",
	"a chaotic day where everything goes wrong but ends well",
	"a funny competition between friends or neighbors",
	"a surprise party with last-minute disasters",
	"a mix-up that leads to an unexpected adventure",
	"a bet between friends with silly consequences",
	"someone trying to impress someone else but failing hilariously",
	"a day trip that doesn't go as planned at all",
}

// Client calls the Gemini generateContent endpoint. A Client with an empty
// API key is valid and returns empty results from every method.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	log     logging.Logger
	rand    *rand.Rand
}

func NewClient(apiKey string, log logging.Logger) *Client {
	if log == nil {
		log = logging.Noop()
	}
	return &Client{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		http:    &http.Client{},
		log:     log,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// GenerateLines produces example sentences for the given cards, requesting
// them in chunks. Failed chunks are skipped; the result may cover only part
// of the input.
func (c *Client) GenerateLines(ctx context.Context, cards []models.Card) []models.Line {
	if !c.Enabled() {
		return nil
	}
	var all []models.Line
	for start := 0; start < len(cards); start += linesChunkSize {
		end := start + linesChunkSize
		if end > len(cards) {
			end = len(cards)
		}
		chunk, err := c.generateLinesChunk(ctx, cards[start:end])
		if err != nil {
			c.log.Warn(ctx, "lines chunk failed", "start", start, "error", err)
			continue
		}
		all = append(all, chunk...)
	}
	return all
}

func (c *Client) generateLinesChunk(ctx context.Context, cards []models.Card) ([]models.Line, error) {
	var vocab strings.Builder
	for _, card := range cards {
		fmt.Fprintf(&vocab, "- { \"de\": %q, \"en\": %q }\n", card.DE, card.EN)
	}
	prompt := fmt.Sprintf(`You are an expert German language teacher.

Generate PRACTICAL, REAL-LIFE example sentences for A1-B1 learners.

Output ONLY a JSON array with objects of fields: de,en,line_de,line_en.

Echo the input values for fields de and en exactly as provided.

Sentences 8-14 words; daily-life contexts; not literal translations; correct German grammar.

Vocabulary:
%s`, vocab.String())

	raw, err := c.generate(ctx, prompt, linesTimeout)
	if err != nil {
		return nil, err
	}
	var lines []models.Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("%w: decoding lines: %v", common.ErrExternalService, err)
	}
	return lines, nil
}

// GenerateStory writes a short narrative story built around a sample of the
// deck's vocabulary. Returns nil when generation fails.
func (c *Client) GenerateStory(ctx context.Context, cards []models.Card, deck string) *models.Story {
	if !c.Enabled() || len(cards) == 0 {
		return nil
	}
	sample := cards
	if len(sample) > storyWordCount {
		sample = make([]models.Card, len(cards))
		copy(sample, cards)
		c.rand.Shuffle(len(sample), func(i, j int) { sample[i], sample[j] = sample[j], sample[i] })
		sample = sample[:storyWordCount]
	}
	var vocab strings.Builder
	for _, card := range sample {
		fmt.Fprintf(&vocab, "- %s (%s)\n", card.DE, card.EN)
	}
	theme := storyThemes[c.rand.Intn(len(storyThemes))]

	prompt := fmt.Sprintf(`You are a comedy writer creating short, punchy stories for German learners.

Create a funny, memorable story using these vocabulary words:
%s
STORY THEME: %s

Use simple German (A1-B1). 8-12 segments, at least half dialogue. Start with
action or dialogue, introduce a clear problem early, escalate it, add one
twist, and end with a punchline or satisfying resolution.

Output ONLY a JSON object with fields: title_de, title_en,
characters (array of names), segments (array of objects with fields
type ("narration" or "dialogue"), speaker, text_de, text_en,
highlight_pairs (array of {de,en,color} with color 0-7)).

Each segment's highlight_pairs must contain 2-4 vocabulary words from the
input list exactly as they appear in text_de and text_en.`, vocab.String(), theme)

	return c.generateStory(ctx, prompt, deck)
}

// GenerateCustomStory writes a story about an arbitrary topic at the given
// CEFR level.
func (c *Client) GenerateCustomStory(ctx context.Context, topic, level string) *models.Story {
	if !c.Enabled() {
		return nil
	}
	prompt := fmt.Sprintf(`You are a comedy writer creating short, punchy stories for German learners.
The target CEFR level is %s; adjust vocabulary and grammar to match.

Create a funny, memorable story about: %s

8-12 segments, at least half dialogue. Start with action or dialogue,
introduce a clear problem early, escalate it, add one twist, and end with a
punchline or satisfying resolution.

Output ONLY a JSON object with fields: title_de, title_en,
characters (array of names), segments (array of objects with fields
type ("narration" or "dialogue"), speaker, text_de, text_en,
highlight_pairs (array of {de,en,color} with color 0-7, 2-4 pairs per
segment linking German words in text_de to their English counterparts)).`, level, topic)

	return c.generateStory(ctx, prompt, topic)
}

// GenerateSubtitleStory translates a list of German lines one-to-one into
// story segments at the given level. The caller realigns the result to the
// original lines, so a partial or empty response is acceptable.
func (c *Client) GenerateSubtitleStory(ctx context.Context, lines []string, level string) *models.Story {
	if !c.Enabled() || len(lines) == 0 {
		return nil
	}
	var input strings.Builder
	for _, line := range lines {
		input.WriteString("- ")
		input.WriteString(line)
		input.WriteByte('\n')
	}
	prompt := fmt.Sprintf(`You are a German teacher preparing subtitles for learners at CEFR level %s.

For each German line below, produce exactly one segment, in the same order.
Keep text_de identical to the input line and translate it into natural
English in text_en. Mark 0-3 useful vocabulary words per segment in
highlight_pairs ({de,en,color} with color 0-7).

Output ONLY a JSON object with fields: title_de, title_en, characters,
vocabulary (object mapping German words to English), segments (array of
objects with fields type, speaker, text_de, text_en, highlight_pairs).

Lines:
%s`, level, input.String())

	return c.generateStory(ctx, prompt, "subtitles")
}

func (c *Client) generateStory(ctx context.Context, prompt, subject string) *models.Story {
	raw, err := c.generate(ctx, prompt, storyTimeout)
	if err != nil {
		c.log.Warn(ctx, "story generation failed", "subject", subject, "error", err)
		return nil
	}
	var story models.Story
	if err := json.Unmarshal(raw, &story); err != nil {
		c.log.Warn(ctx, "story response not decodable", "subject", subject, "error", err)
		return nil
	}
	if len(story.Segments) == 0 {
		return nil
	}
	return &story
}

// geminiResponse is the slice of the generateContent response we consume.
type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					Data string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generate posts a prompt and returns the raw JSON payload the model
// produced.
func (c *Client) generate(ctx context.Context, prompt string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqBody, err := json.Marshal(map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]string{"response_mime_type": "application/json"},
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini request: %v", common.ErrExternalService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading gemini response: %v", common.ErrExternalService, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gemini status %d", common.ErrExternalService, resp.StatusCode)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decoding gemini response: %v", common.ErrExternalService, err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no candidates", common.ErrExternalService)
	}
	part := parsed.Candidates[0].Content.Parts[0]
	if part.Text != "" {
		return []byte(part.Text), nil
	}
	if part.InlineData != nil && part.InlineData.Data != "" {
		decoded, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding inline data: %v", common.ErrExternalService, err)
		}
		return decoded, nil
	}
	return nil, fmt.Errorf("%w: gemini returned empty part", common.ErrExternalService)
}
