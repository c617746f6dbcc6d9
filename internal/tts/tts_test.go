package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjuhl/wortkiste/internal/common"
)

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{name: "short passthrough", text: "Hallo Welt", max: 200, want: []string{"Hallo Welt"}},
		{name: "word boundary", text: "eins zwei drei", max: 9, want: []string{"eins zwei", "drei"}},
		{name: "oversized word", text: "Donaudampfschiff", max: 5, want: []string{"Donau", "dampf", "schif", "f"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, splitChunks(tc.text, tc.max))
		})
	}
}

func TestGoogleEngine_Synthesize(t *testing.T) {
	var gotTexts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTexts = append(gotTexts, r.URL.Query().Get("q"))
		assert.Equal(t, "de", r.URL.Query().Get("tl"))
		w.Write([]byte("mp3:" + r.URL.Query().Get("q") + ";"))
	}))
	defer srv.Close()

	e := NewGoogleEngine()
	e.baseURL = srv.URL

	audio, err := e.Synthesize(context.Background(), "Der Hund bellt.", "de", false)
	require.NoError(t, err)
	assert.Equal(t, "mp3:Der Hund bellt.;", string(audio))
	assert.Len(t, gotTexts, 1)
}

func TestGoogleEngine_SynthesizeConcatenatesChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[" + r.URL.Query().Get("q") + "]"))
	}))
	defer srv.Close()

	e := NewGoogleEngine()
	e.baseURL = srv.URL

	long := strings.Repeat("Wort ", 60) + "Ende"
	audio, err := e.Synthesize(context.Background(), long, "de", false)
	require.NoError(t, err)
	// every chunk arrives in order
	assert.True(t, strings.HasPrefix(string(audio), "[Wort"))
	assert.True(t, strings.HasSuffix(string(audio), "Ende]"))
}

func TestGoogleEngine_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := NewGoogleEngine()
	e.baseURL = srv.URL

	_, err := e.Synthesize(context.Background(), "Hallo", "de", false)
	assert.ErrorIs(t, err, common.ErrExternalService)
}

func TestGoogleEngine_EmptyText(t *testing.T) {
	e := NewGoogleEngine()
	_, err := e.Synthesize(context.Background(), "   ", "de", false)
	assert.Error(t, err)
}
