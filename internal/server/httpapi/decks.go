package httpapi

import (
	"net/http"
	"strconv"
)

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	entries, err := s.decks.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decks": entries})
}

func (s *Server) handleCards(w http.ResponseWriter, r *http.Request) {
	deck := r.URL.Query().Get("deck")
	cards, err := s.decks.Cards(r.Context(), deck)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deck": deck, "count": len(cards), "cards": cards})
}

func (s *Server) handleDeckCSV(w http.ResponseWriter, r *http.Request) {
	name, file, content, err := s.decks.RawCSV(r.Context(), r.URL.Query().Get("deck"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "file": file, "content": content})
}

func (s *Server) handleDeckCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Data   string `json:"data"`
		Folder string `json:"folder"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.decks.Create(r.Context(), req.Name, req.Data, req.Folder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeckUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		Data string `json:"data"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.decks.Update(r.Context(), req.Name, req.Data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeckDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.decks.Delete(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeckRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldName string `json:"old_name"`
		NewName string `json:"new_name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.decks.Rename(r.Context(), req.OldName, req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDeckMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Folder string `json:"folder"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	folder, err := s.decks.Move(r.Context(), req.Name, req.Folder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deck": req.Name, "folder": folder})
}

func (s *Server) handleDeckIndexRebuild(w http.ResponseWriter, r *http.Request) {
	n, err := s.decks.RebuildIndex(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "decks": n})
}

func (s *Server) handlePreloadDeckAudio(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lang := q.Get("lang")
	if lang == "" {
		lang = "de"
	}
	urls, err := s.decks.PreloadAudio(r.Context(), q.Get("deck"), lang)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deck": q.Get("deck"), "count": len(urls), "urls": urls})
}

func (s *Server) handleDeckOrderGet(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	order, err := s.decks.Order(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scope": scope, "order": order})
}

func (s *Server) handleDeckOrderSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scope string   `json:"scope"`
		Order []string `json:"order"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	scope, order, err := s.decks.SetOrder(r.Context(), req.Scope, req.Order)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "scope": scope, "order": order})
}

func (s *Server) handleLines(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	refresh := q.Get("refresh") == "true" || q.Get("refresh") == "1"
	res, err := s.decks.Lines(r.Context(), q.Get("deck"), limit, refresh)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
