package httpapi

import "net/http"

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	list, err := s.folders.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": list})
}

func (s *Server) handleFolderCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	name, err := s.folders.Create(r.Context(), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": name})
}

func (s *Server) handleFolderRename(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldName string `json:"old_name"`
		NewName string `json:"new_name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	oldName, newName, err := s.folders.Rename(r.Context(), req.OldName, req.NewName)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "old_name": oldName, "new_name": newName})
}

func (s *Server) handleFolderDelete(w http.ResponseWriter, r *http.Request) {
	name, err := s.folders.Delete(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": name})
}

func (s *Server) handleFolderMove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Parent string `json:"parent"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	name, parent, err := s.folders.Move(r.Context(), req.Name, req.Parent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "name": name, "parent": parent})
}

func (s *Server) handleFolderOrderGet(w http.ResponseWriter, r *http.Request) {
	order, err := s.folders.Order(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": order})
}

func (s *Server) handleFolderOrderSet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Order []string `json:"order"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	order, err := s.folders.SetOrder(r.Context(), req.Order)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "order": order})
}
