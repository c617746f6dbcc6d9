package audio

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjuhl/wortkiste/internal/index"
	"github.com/mjuhl/wortkiste/internal/models"
	"github.com/mjuhl/wortkiste/internal/storage"
)

// fakeEngine returns predictable audio and counts synthesis calls.
type fakeEngine struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeEngine) Synthesize(ctx context.Context, text, lang string, slow bool) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, text)
	return []byte("mp3:" + text), nil
}

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestManager() (*Manager, *storage.MemStore, *fakeEngine) {
	mem := storage.NewMemStore()
	engine := &fakeEngine{}
	m := NewManager(mem, storage.NewKeys("wk"), engine, nil)
	return m, mem, engine
}

func TestEnsureWord_Idempotent(t *testing.T) {
	m, mem, engine := newTestManager()
	defer m.Close()
	ctx := context.Background()

	m.EnsureWord(ctx, "Hund", "de")
	m.EnsureWord(ctx, "Hund", "de")

	assert.Equal(t, 1, engine.callCount())
	data, err := mem.Get(ctx, "wk/tts/de/Hund.mp3")
	require.NoError(t, err)
	assert.Equal(t, "mp3:Hund", string(data))
	assert.Equal(t, "audio/mpeg", mem.ContentType("wk/tts/de/Hund.mp3"))
}

func TestEnsureTTS_ServesCachedAudio(t *testing.T) {
	m, mem, engine := newTestManager()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, "wk/tts/de/Katze.mp3", []byte("cached"), "audio/mpeg"))

	key, data, err := m.EnsureTTS(ctx, "Katze", "de", false)
	require.NoError(t, err)
	assert.Equal(t, "wk/tts/de/Katze.mp3", key)
	assert.Equal(t, "cached", string(data))
	assert.Equal(t, 0, engine.callCount())
}

func TestGenerateWords_BackgroundPool(t *testing.T) {
	m, mem, _ := newTestManager()

	m.GenerateWords([]string{"eins", "zwei", "drei"}, "de")
	m.Close()

	keys := mem.Keys()
	assert.Contains(t, keys, "wk/tts/de/eins.mp3")
	assert.Contains(t, keys, "wk/tts/de/zwei.mp3")
	assert.Contains(t, keys, "wk/tts/de/drei.mp3")
}

func TestReplaceWords(t *testing.T) {
	m, mem, _ := newTestManager()
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, "wk/tts/de/alt.mp3", []byte("x"), "audio/mpeg"))

	m.ReplaceWords([]string{"alt"}, []string{"neu"}, "de")
	m.Close()

	keys := mem.Keys()
	assert.NotContains(t, keys, "wk/tts/de/alt.mp3")
	assert.Contains(t, keys, "wk/tts/de/neu.mp3")
}

func TestPreload(t *testing.T) {
	m, mem, engine := newTestManager()
	defer m.Close()
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, "wk/tts/de/Hund.mp3", []byte("x"), "audio/mpeg"))

	urls := m.Preload(ctx, []string{"Hund", "Katze", ""}, "de")
	assert.Equal(t, map[string]string{
		"Hund":  "/r2/get?key=wk/tts/de/Hund.mp3",
		"Katze": "/r2/get?key=wk/tts/de/Katze.mp3",
	}, urls)
	// only the missing blob was synthesized
	assert.Equal(t, 1, engine.callCount())
}

func TestGenerateStoryAudio(t *testing.T) {
	m, mem, _ := newTestManager()
	ctx := context.Background()

	// a stale blob from a previous generation run
	require.NoError(t, mem.Put(ctx, "wk/stories/animals/audio/stale.mp3", []byte("x"), "audio/mpeg"))

	m.GenerateStoryAudio("animals", []models.Segment{
		{TextDE: "Der Hund bellt. Die Katze schläft!"},
		{TextDE: ""},
	})
	m.Close()

	keys := mem.Keys()
	assert.NotContains(t, keys, "wk/stories/animals/audio/stale.mp3")
	assert.Contains(t, keys, "wk/stories/animals/audio/Der_Hund_bellt.mp3")
	assert.Contains(t, keys, "wk/stories/animals/audio/Die_Katze_schl_ft.mp3")
}

func TestEnsureStoryAudio(t *testing.T) {
	m, mem, engine := newTestManager()
	defer m.Close()
	ctx := context.Background()

	data, err := m.EnsureStoryAudio(ctx, "animals", "Der Hund bellt.")
	require.NoError(t, err)
	assert.Equal(t, "mp3:Der Hund bellt.", string(data))

	// second call served from the store
	_, err = m.EnsureStoryAudio(ctx, "animals", "Der Hund bellt.")
	require.NoError(t, err)
	assert.Equal(t, 1, engine.callCount())
	assert.Contains(t, mem.Keys(), "wk/stories/animals/audio/Der_Hund_bellt.mp3")
}

func TestSplitSentences(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Der Hund bellt. Die Katze schläft.", []string{"Der Hund bellt.", "Die Katze schläft."}},
		{"Was? Nein! Doch.", []string{"Was?", "Nein!", "Doch."}},
		{"Kein Satzende", []string{"Kein Satzende"}},
		{"Ca. 3.5 km weit.", []string{"Ca.", "3.5 km weit."}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, SplitSentences(tc.text), tc.text)
	}
}

func TestCleanup(t *testing.T) {
	m, mem, _ := newTestManager()
	defer m.Close()
	ctx := context.Background()
	keys := storage.NewKeys("wk")

	// one deck with two words, plus a cached lines doc
	require.NoError(t, mem.Put(ctx, keys.DeckCSV("animals"), []byte("dog,Hund\ncat,Katze\n"), "text/csv"))
	linesDoc, _ := json.Marshal(models.LinesDoc{Deck: "animals", Items: []models.Line{
		{DE: "Hund", EN: "dog", LineDE: "Der Hund bellt."},
	}})
	require.NoError(t, mem.Put(ctx, keys.Lines("animals"), linesDoc, "application/json"))

	idx := index.NewStore(mem)
	require.NoError(t, idx.SetDecks(ctx, keys.DeckIndex(), []index.DeckEntry{
		{Name: "animals", File: keys.DeckCSV("animals")},
	}))

	// valid audio plus two orphans
	for _, k := range []string{
		"wk/tts/de/Hund.mp3",
		"wk/tts/de/Katze.mp3",
		"wk/tts/de/Der_Hund_bellt.mp3",
		"wk/tts/de/verwaist.mp3",
		"wk/tts/de/uralt.mp3",
	} {
		require.NoError(t, mem.Put(ctx, k, []byte("x"), "audio/mpeg"))
	}

	report, err := m.Cleanup(ctx, idx, true)
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 5, report.TTSTotal)
	assert.Equal(t, 3, report.Kept)
	assert.Equal(t, 2, report.Deleted)
	// dry run leaves everything in place
	assert.Contains(t, mem.Keys(), "wk/tts/de/verwaist.mp3")

	report, err = m.Cleanup(ctx, idx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, 0, report.Errors)
	assert.NotContains(t, mem.Keys(), "wk/tts/de/verwaist.mp3")
	assert.NotContains(t, mem.Keys(), "wk/tts/de/uralt.mp3")
	assert.Contains(t, mem.Keys(), "wk/tts/de/Hund.mp3")
}
