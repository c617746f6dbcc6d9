package httpapi

import (
	"net/http"

	"github.com/mjuhl/wortkiste/internal/common"
	"github.com/mjuhl/wortkiste/internal/names"
)

func (s *Server) handleStoriesList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.stories.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stories": entries})
}

func (s *Server) handleStoryGenerate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	refresh := q.Get("refresh") == "true" || q.Get("refresh") == "1"
	res, err := s.stories.Generate(r.Context(), q.Get("deck"), refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStoryCustom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topic string `json:"topic"`
		Level string `json:"level"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.stories.GenerateCustom(r.Context(), req.Topic, req.Level)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStoryFromText(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text  string `json:"text"`
		Level string `json:"level"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.stories.FromText(r.Context(), req.Text, req.Level)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStoryDelete(w http.ResponseWriter, r *http.Request) {
	res, err := s.stories.Delete(r.Context(), r.URL.Query().Get("deck"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStoryAudio(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, common.ErrStoreUnavailable)
		return
	}
	q := r.URL.Query()
	deck := names.Sanitize(q.Get("deck"))
	text := q.Get("text")
	if deck == "" || text == "" {
		writeError(w, common.ErrInvalidName)
		return
	}
	data, err := s.audio.EnsureStoryAudio(r.Context(), deck, text)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write(data)
}

func (s *Server) handleStoriesRebuild(w http.ResponseWriter, r *http.Request) {
	n, err := s.stories.RebuildIndex(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "stories": n})
}
