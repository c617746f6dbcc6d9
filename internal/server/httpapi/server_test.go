package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mjuhl/wortkiste/internal/ai"
	"github.com/mjuhl/wortkiste/internal/audio"
	"github.com/mjuhl/wortkiste/internal/cache"
	"github.com/mjuhl/wortkiste/internal/decks"
	"github.com/mjuhl/wortkiste/internal/folders"
	"github.com/mjuhl/wortkiste/internal/index"
	"github.com/mjuhl/wortkiste/internal/logging"
	"github.com/mjuhl/wortkiste/internal/server/config"
	"github.com/mjuhl/wortkiste/internal/stories"
	"github.com/mjuhl/wortkiste/internal/storage"
)

type fakeEngine struct{}

func (fakeEngine) Synthesize(ctx context.Context, text, lang string, slow bool) ([]byte, error) {
	return []byte("mp3:" + text), nil
}

type fixture struct {
	handler http.Handler
	mem     *storage.MemStore
	mgr     *audio.Manager
	cfg     *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storage.NewMemStore()
	keys := storage.NewKeys("wk")
	idx := index.NewStore(mem)
	cch := cache.New()
	log := logging.Noop()

	mgr := audio.NewManager(mem, keys, fakeEngine{}, log)
	t.Cleanup(mgr.Close)

	// no API key: generation degrades, story endpoints answer 502
	gemini := ai.NewClient("", log)

	ds := decks.NewService(mem, keys, idx, cch, mgr, gemini, log)
	fs := folders.NewService(mem, keys, idx, cch, log)
	ss := stories.NewService(mem, keys, idx, cch, ds, gemini, mgr, log)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.R2Bucket = "wk"
	cfg.AdminSecret = "topsecret"

	srv := NewServer(cfg, log, mem, keys, idx, ds, fs, ss, mgr)
	return &fixture{handler: srv.Handler(), mem: mem, mgr: mgr, cfg: cfg}
}

func (f *fixture) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestDeckCreateAndList(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/deck/create", `{"name":"animals","data":"dog,Hund\ncat,Katze"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, true, created["ok"])
	assert.Equal(t, float64(2), created["rows"])
	assert.Equal(t, true, created["index_updated"])

	rec = f.do(t, http.MethodGet, "/decks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode(t, rec)
	assert.Len(t, listed["decks"], 1)

	rec = f.do(t, http.MethodGet, "/cards?deck=animals", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cards := decode(t, rec)
	assert.Equal(t, float64(2), cards["count"])
}

func TestCardsNotFound(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/cards?deck=nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec), "detail")
}

func TestDeckCreateRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/deck/create", `{"name":"","data":"a,b"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/deck/create", `{"name":"x","data":"no commas here"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/deck/create", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeckRenameConflict(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/deck/create", `{"name":"a","data":"x,y"}`).Code)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/deck/create", `{"name":"b","data":"x,y"}`).Code)

	rec := f.do(t, http.MethodPost, "/deck/rename", `{"old_name":"a","new_name":"b"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestTTS(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mem.Put(ctx, "wk/tts/de/Hallo.mp3", []byte("cached"), "audio/mpeg"))

	rec := f.do(t, http.MethodGet, "/tts?text=Hallo", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "cached", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/tts?text=", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	long := strings.Repeat("a", 501)
	rec = f.do(t, http.MethodGet, "/tts?text="+long, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestR2Get(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.mem.Put(ctx, "wk/tts/de/Hund.mp3", []byte("x"), "audio/mpeg"))

	rec := f.do(t, http.MethodGet, "/r2/get?key=wk/tts/de/Hund.mp3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "audio/mpeg", rec.Header().Get("Content-Type"))

	// keys outside the allowlist are refused, not 404ed
	rec = f.do(t, http.MethodGet, "/r2/get?key=wk/secrets/creds.txt", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/r2/get?key=wk/tts/../secrets/creds.txt", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/r2/get?key=wk/tts/de/fehlt.mp3", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestR2Health(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/r2/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "wk", body["bucket"])
}

func TestAdminFlow(t *testing.T) {
	f := newFixture(t)

	// no token
	rec := f.do(t, http.MethodPost, "/audio/cleanup?dry_run=1", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// wrong secret
	rec = f.do(t, http.MethodPost, "/auth/login", `{"secret":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/auth/login", `{"secret":"topsecret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	token, _ := decode(t, rec)["token"].(string)
	require.NotEmpty(t, token)

	rec = f.do(t, http.MethodPost, "/audio/cleanup?dry_run=1", "", "Authorization", "Bearer "+token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	report := decode(t, rec)
	assert.Equal(t, true, report["dry_run"])

	rec = f.do(t, http.MethodPost, "/decks/index/rebuild", "", "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)

	// garbage token
	rec = f.do(t, http.MethodPost, "/decks/index/rebuild", "", "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminLockedWithoutSecret(t *testing.T) {
	f := newFixture(t)
	f.cfg.AdminSecret = ""

	rec := f.do(t, http.MethodPost, "/auth/login", `{"secret":""}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/audio/cleanup", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFolderFlow(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/folder/create", `{"name":"Tiere"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/folders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["folders"], 1)

	rec = f.do(t, http.MethodDelete, "/folder/delete?name=Tiere", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStoryGenerate_WithoutAI(t *testing.T) {
	f := newFixture(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/deck/create", `{"name":"animals","data":"dog,Hund"}`).Code)

	// deck exists but the generator is disabled
	rec := f.do(t, http.MethodGet, "/story/generate?deck=animals", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = f.do(t, http.MethodGet, "/story/generate?deck=fehlt", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStoryAudio(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/story/audio?deck=animals&text=Der+Hund+bellt.", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mp3:Der Hund bellt.", rec.Body.String())

	rec = f.do(t, http.MethodGet, "/story/audio?deck=animals", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/r2/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = f.do(t, http.MethodGet, "/r2/health", "", "X-Request-Id", "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}
