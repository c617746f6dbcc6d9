// Package tts synthesizes speech via the Google Translate TTS endpoint.
package tts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mjuhl/wortkiste/internal/common"
)

// Engine converts text to MP3 audio. Implementations must treat identical
// (text, lang) input as producing equivalent audio, since results are cached
// in the bucket by a key derived from the text.
type Engine interface {
	Synthesize(ctx context.Context, text, lang string, slow bool) ([]byte, error)
}

// maxChunkLen is the longest text the translate endpoint accepts per call.
const maxChunkLen = 200

const defaultBaseURL = "https://translate.google.com/translate_tts"

// GoogleEngine speaks the undocumented translate_tts API. Long input is
// split at word boundaries into chunks the endpoint accepts and the MP3
// parts are concatenated.
type GoogleEngine struct {
	client  *http.Client
	baseURL string
}

var _ Engine = (*GoogleEngine)(nil)

func NewGoogleEngine() *GoogleEngine {
	return &GoogleEngine{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: defaultBaseURL,
	}
}

func (e *GoogleEngine) Synthesize(ctx context.Context, text, lang string, slow bool) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty text", common.ErrInvalidName)
	}
	if lang == "" {
		lang = "de"
	}

	var audio []byte
	for _, chunk := range splitChunks(text, maxChunkLen) {
		part, err := e.fetchChunk(ctx, chunk, lang, slow)
		if err != nil {
			return nil, err
		}
		audio = append(audio, part...)
	}
	return audio, nil
}

func (e *GoogleEngine) fetchChunk(ctx context.Context, text, lang string, slow bool) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("q", text)
	q.Set("tl", lang)
	if slow {
		q.Set("ttsspeed", "0.3")
	} else {
		q.Set("ttsspeed", "1")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; wortkiste/1.0)")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: tts request: %v", common.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: tts status %d", common.ErrExternalService, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading tts response: %v", common.ErrExternalService, err)
	}
	return body, nil
}

// splitChunks breaks text into pieces of at most max bytes, preferring word
// boundaries. A single word longer than max is split hard.
func splitChunks(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	var chunks []string
	words := strings.Fields(text)
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, w := range words {
		for len(w) > max {
			flush()
			chunks = append(chunks, w[:max])
			w = w[max:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(w) > max {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	flush()
	return chunks
}
