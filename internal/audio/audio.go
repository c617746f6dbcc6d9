// Package audio manages the derived TTS artifacts in the bucket: per-word
// and per-sentence MP3 blobs keyed by their sanitized source text. All
// generation is idempotent (HEAD before synthesize) and regenerable, so the
// blobs are never authoritative state.
package audio

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/mjuhl/wortkiste/internal/logging"
	"github.com/mjuhl/wortkiste/internal/names"
	"github.com/mjuhl/wortkiste/internal/storage"
	"github.com/mjuhl/wortkiste/internal/tts"
)

const (
	// poolSize is the number of background generation workers.
	poolSize = 4

	// preloadConcurrency caps simultaneous in-flight TTS calls during a
	// deck preload.
	preloadConcurrency = 10
)

// Manager generates and caches TTS audio blobs.
type Manager struct {
	store  storage.ObjectStore
	keys   storage.Keys
	engine tts.Engine
	log    logging.Logger

	jobs chan func()
	wg   sync.WaitGroup
	once sync.Once
}

func NewManager(store storage.ObjectStore, keys storage.Keys, engine tts.Engine, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	m := &Manager{
		store:  store,
		keys:   keys,
		engine: engine,
		log:    log,
		jobs:   make(chan func(), 256),
	}
	for i := 0; i < poolSize; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for job := range m.jobs {
		job()
	}
}

// Close stops accepting background work and waits for in-flight jobs.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.jobs) })
	m.wg.Wait()
}

func (m *Manager) submit(job func()) {
	defer func() {
		// the pool may already be closed during shutdown; drop the job
		recover()
	}()
	select {
	case m.jobs <- job:
	default:
		go job()
	}
}

// EnsureWord makes sure the word's audio blob exists, synthesizing it when
// missing. Failures are soft: the word is simply skipped.
func (m *Manager) EnsureWord(ctx context.Context, word, lang string) {
	word = strings.TrimSpace(word)
	if word == "" {
		return
	}
	key := m.keys.TTS(lang, names.TTSSegment(word))
	exists, err := m.store.Head(ctx, key)
	if err != nil || exists {
		return
	}
	data, err := m.engine.Synthesize(ctx, word, lang, false)
	if err != nil {
		m.log.Warn(ctx, "tts synthesis failed", "word", word, "error", err)
		return
	}
	if err := m.store.Put(ctx, key, data, "audio/mpeg"); err != nil {
		m.log.Warn(ctx, "tts upload failed", "key", key, "error", err)
	}
}

// EnsureTTS returns the cached audio for text, generating and storing it
// first when missing. Unlike the bulk paths this surfaces errors, because
// it backs the single-item endpoint. The cache key ignores the slow flag.
func (m *Manager) EnsureTTS(ctx context.Context, text, lang string, slow bool) (string, []byte, error) {
	key, err := m.ensureKey(ctx, text, lang, slow)
	if err != nil {
		return "", nil, err
	}
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return "", nil, err
	}
	return key, data, nil
}

// ensureKey guarantees the audio blob for text exists and returns its key,
// without downloading existing audio.
func (m *Manager) ensureKey(ctx context.Context, text, lang string, slow bool) (string, error) {
	key := m.keys.TTS(lang, names.TTSSegment(text))
	exists, err := m.store.Head(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return key, nil
	}
	data, err := m.engine.Synthesize(ctx, text, lang, slow)
	if err != nil {
		return "", err
	}
	if err := m.store.Put(ctx, key, data, "audio/mpeg"); err != nil {
		return "", err
	}
	return key, nil
}

// GenerateWords queues background audio generation for a batch of words.
func (m *Manager) GenerateWords(words []string, lang string) {
	for _, w := range words {
		word := w
		m.submit(func() {
			m.EnsureWord(context.Background(), word, lang)
		})
	}
}

// ReplaceWords deletes audio for removed words and queues generation for
// added ones. Runs in the background pool.
func (m *Manager) ReplaceWords(toDelete, toGenerate []string, lang string) {
	m.submit(func() {
		ctx := context.Background()
		for _, w := range toDelete {
			key := m.keys.TTS(lang, names.TTSSegment(w))
			if err := m.store.Delete(ctx, key); err != nil {
				m.log.Warn(ctx, "stale audio delete failed", "key", key, "error", err)
			}
		}
	})
	m.GenerateWords(toGenerate, lang)
}

// DeleteWords removes the audio blobs for the given words, counting
// successes and failures.
func (m *Manager) DeleteWords(ctx context.Context, words []string, lang string) (deleted, errs int) {
	for _, w := range words {
		key := m.keys.TTS(lang, names.TTSSegment(w))
		if err := m.store.Delete(ctx, key); err != nil {
			errs++
			continue
		}
		deleted++
	}
	return deleted, errs
}

// Preload ensures audio exists for every text and returns a map from text to
// its serving URL. At most preloadConcurrency synthesis calls run at once.
func (m *Manager) Preload(ctx context.Context, texts []string, lang string) map[string]string {
	sem := semaphore.NewWeighted(preloadConcurrency)
	var mu sync.Mutex
	urls := make(map[string]string)
	var wg sync.WaitGroup

	for _, t := range texts {
		text := strings.TrimSpace(t)
		if text == "" {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			key, err := m.ensureKey(ctx, text, lang, false)
			if err != nil {
				return
			}
			mu.Lock()
			urls[text] = "/r2/get?key=" + key
			mu.Unlock()
		}()
	}
	wg.Wait()
	return urls
}
