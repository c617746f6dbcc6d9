package httpapi

import (
	"crypto/subtle"
	"net/http"

	"github.com/mjuhl/wortkiste/internal/common"
	"github.com/mjuhl/wortkiste/internal/server/auth"
)

// handleLogin exchanges the admin secret for a bearer token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if s.cfg.AdminSecret == "" ||
		subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.cfg.AdminSecret)) != 1 {
		writeError(w, common.ErrInvalidToken)
		return
	}

	token, err := auth.GenerateToken([]byte(s.cfg.AdminSecret), s.cfg.AdminTokenValidity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(s.cfg.AdminTokenValidity.Seconds()),
	})
}
