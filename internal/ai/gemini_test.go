package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjuhl/wortkiste/internal/models"
)

func geminiReply(t *testing.T, payload any) []byte {
	t.Helper()
	inner, err := json.Marshal(payload)
	require.NoError(t, err)
	outer := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": string(inner)}}}},
		},
	}
	b, err := json.Marshal(outer)
	require.NoError(t, err)
	return b
}

func TestClient_DisabledWithoutKey(t *testing.T) {
	c := NewClient("", nil)
	assert.False(t, c.Enabled())
	assert.Nil(t, c.GenerateLines(context.Background(), []models.Card{{EN: "dog", DE: "Hund"}}))
	assert.Nil(t, c.GenerateStory(context.Background(), []models.Card{{EN: "dog", DE: "Hund"}}, "animals"))
}

func TestClient_GenerateLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.Write(geminiReply(t, []models.Line{
			{DE: "Hund", EN: "dog", LineDE: "Der Hund schläft.", LineEN: "The dog is sleeping."},
		}))
	}))
	defer srv.Close()

	c := NewClient("test-key", nil)
	c.baseURL = srv.URL

	lines := c.GenerateLines(context.Background(), []models.Card{{EN: "dog", DE: "Hund"}})
	require.Len(t, lines, 1)
	assert.Equal(t, "Der Hund schläft.", lines[0].LineDE)
}

func TestClient_GenerateLinesChunksAndSkipsFailures(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write(geminiReply(t, []models.Line{{DE: "ok", EN: "ok"}}))
	}))
	defer srv.Close()

	c := NewClient("test-key", nil)
	c.baseURL = srv.URL

	cards := make([]models.Card, linesChunkSize+5)
	for i := range cards {
		cards[i] = models.Card{EN: fmt.Sprintf("w%d", i), DE: fmt.Sprintf("W%d", i)}
	}
	lines := c.GenerateLines(context.Background(), cards)
	// first chunk failed and was skipped, second chunk survived
	assert.Equal(t, 2, calls)
	assert.Len(t, lines, 1)
}

func TestClient_GenerateStory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(geminiReply(t, models.Story{
			TitleDE:  "Der große Hund",
			TitleEN:  "The Big Dog",
			Segments: []models.Segment{{Type: "narration", Speaker: "narrator", TextDE: "Es bellt."}},
		}))
	}))
	defer srv.Close()

	c := NewClient("test-key", nil)
	c.baseURL = srv.URL

	story := c.GenerateStory(context.Background(), []models.Card{{EN: "dog", DE: "Hund"}}, "animals")
	require.NotNil(t, story)
	assert.Equal(t, "Der große Hund", story.TitleDE)
	require.Len(t, story.Segments, 1)
}

func TestClient_GenerateStoryNilOnMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", nil)
	c.baseURL = srv.URL

	assert.Nil(t, c.GenerateStory(context.Background(), []models.Card{{EN: "dog", DE: "Hund"}}, "animals"))
}

func TestClient_GenerateInlineDataFallback(t *testing.T) {
	story := models.Story{TitleDE: "T", Segments: []models.Segment{{TextDE: "x"}}}
	inner, err := json.Marshal(story)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{
					{"inlineData": map[string]string{"data": base64.StdEncoding.EncodeToString(inner)}},
				}}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient("test-key", nil)
	c.baseURL = srv.URL

	got := c.GenerateCustomStory(context.Background(), "ein Hund", "A2")
	require.NotNil(t, got)
	assert.Equal(t, "T", got.TitleDE)
}
