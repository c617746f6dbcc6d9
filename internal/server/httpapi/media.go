package httpapi

import (
	"net/http"
	"strings"

	"github.com/mjuhl/wortkiste/internal/common"
)

// maxTTSChars bounds ad-hoc TTS input; longer texts belong to decks or
// stories, which chunk their own audio.
const maxTTSChars = 500

func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, common.ErrStoreUnavailable)
		return
	}
	q := r.URL.Query()
	text := strings.TrimSpace(q.Get("text"))
	if text == "" {
		writeBadRequest(w, "text is required")
		return
	}
	if len([]rune(text)) > maxTTSChars {
		writeBadRequest(w, "text too long")
		return
	}
	lang := q.Get("lang")
	if lang == "" {
		lang = "de"
	}
	slow := q.Get("slow") == "true" || q.Get("slow") == "1"

	key, data, err := s.audio.EnsureTTS(r.Context(), text, lang, slow)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("X-Audio-Key", key)
	_, _ = w.Write(data)
}

func (s *Server) handleAudioCleanup(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, common.ErrStoreUnavailable)
		return
	}
	dryRun := r.URL.Query().Get("dry_run") == "true" || r.URL.Query().Get("dry_run") == "1"
	report, err := s.audio.Cleanup(r.Context(), s.idx, dryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// allowedPrefixes are the only key prefixes the generic object endpoint
// serves, checked after stripping the bucket segment.
var allowedPrefixes = []string{"tts/", "csv/", "lines/", "stories/", "order/", "folders/", "pdf/"}

func allowedKey(key, bucket string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return false
	}
	rel := strings.TrimPrefix(key, bucket+"/")
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(rel, p) {
			return true
		}
	}
	return false
}

func contentTypeForKey(key string) string {
	switch {
	case strings.HasSuffix(key, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".csv"):
		return "text/csv"
	case strings.HasSuffix(key, ".pdf"):
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) handleR2Get(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, common.ErrStoreUnavailable)
		return
	}
	key := r.URL.Query().Get("key")
	if !allowedKey(key, s.keys.Bucket) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "key not allowed"})
		return
	}
	data, err := s.store.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeForKey(key))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	_, _ = w.Write(data)
}

func (s *Server) handleR2Health(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "configured": false})
		return
	}
	if _, err := s.store.Head(r.Context(), s.keys.DeckIndex()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok": false, "configured": true, "detail": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "configured": true, "bucket": s.keys.Bucket})
}
