// Package httpapi exposes the REST surface of the application: deck and
// folder CRUD, ordering, TTS and story endpoints, object streaming, and the
// admin maintenance routes.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"github.com/mjuhl/wortkiste/internal/audio"
	"github.com/mjuhl/wortkiste/internal/decks"
	"github.com/mjuhl/wortkiste/internal/folders"
	"github.com/mjuhl/wortkiste/internal/index"
	"github.com/mjuhl/wortkiste/internal/logging"
	"github.com/mjuhl/wortkiste/internal/server/config"
	"github.com/mjuhl/wortkiste/internal/stories"
	"github.com/mjuhl/wortkiste/internal/storage"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg     *config.Config
	logger  logging.Logger
	store   storage.ObjectStore
	keys    storage.Keys
	idx     *index.Store
	decks   *decks.Service
	folders *folders.Service
	stories *stories.Service
	audio   *audio.Manager
}

func NewServer(cfg *config.Config, l logging.Logger, store storage.ObjectStore, keys storage.Keys, idx *index.Store, ds *decks.Service, fs *folders.Service, ss *stories.Service, am *audio.Manager) *Server {
	return &Server{
		cfg:     cfg,
		logger:  l.With("module", "http_server"),
		store:   store,
		keys:    keys,
		idx:     idx,
		decks:   ds,
		folders: fs,
		stories: ss,
		audio:   am,
	}
}

// Handler builds the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", s.handleLogin)

	mux.HandleFunc("GET /decks", s.handleListDecks)
	mux.HandleFunc("GET /cards", s.handleCards)
	mux.HandleFunc("GET /deck/csv", s.handleDeckCSV)
	mux.HandleFunc("POST /deck/create", s.handleDeckCreate)
	mux.HandleFunc("POST /deck/update", s.handleDeckUpdate)
	mux.HandleFunc("POST /deck/delete", s.handleDeckDelete)
	mux.HandleFunc("POST /deck/rename", s.handleDeckRename)
	mux.HandleFunc("POST /deck/move", s.handleDeckMove)
	mux.Handle("POST /decks/index/rebuild", s.adminOnly(s.handleDeckIndexRebuild))
	mux.HandleFunc("GET /preload_deck_audio", s.handlePreloadDeckAudio)
	mux.HandleFunc("GET /order/decks", s.handleDeckOrderGet)
	mux.HandleFunc("POST /order/decks", s.handleDeckOrderSet)

	mux.HandleFunc("GET /folders", s.handleListFolders)
	mux.HandleFunc("POST /folder/create", s.handleFolderCreate)
	mux.HandleFunc("POST /folder/rename", s.handleFolderRename)
	mux.HandleFunc("DELETE /folder/delete", s.handleFolderDelete)
	mux.HandleFunc("POST /folder/move", s.handleFolderMove)
	mux.HandleFunc("GET /order/folders", s.handleFolderOrderGet)
	mux.HandleFunc("POST /order/folders", s.handleFolderOrderSet)

	mux.HandleFunc("GET /tts", s.handleTTS)
	mux.HandleFunc("GET /lines/generate", s.handleLines)

	mux.HandleFunc("GET /stories/list", s.handleStoriesList)
	mux.HandleFunc("GET /story/generate", s.handleStoryGenerate)
	mux.HandleFunc("POST /story/generate/custom", s.handleStoryCustom)
	mux.HandleFunc("POST /story/from_text", s.handleStoryFromText)
	mux.HandleFunc("DELETE /story/delete", s.handleStoryDelete)
	mux.HandleFunc("GET /story/audio", s.handleStoryAudio)
	mux.Handle("POST /stories/rebuild-index", s.adminOnly(s.handleStoriesRebuild))

	mux.Handle("POST /audio/cleanup", s.adminOnly(s.handleAudioCleanup))

	mux.HandleFunc("GET /r2/get", s.handleR2Get)
	mux.HandleFunc("GET /r2/health", s.handleR2Health)

	c := cors.New(cors.Options{
		AllowedOrigins: splitOrigins(s.cfg.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	return s.withRequestID(s.withAccessLog(c.Handler(mux)))
}

func splitOrigins(origins string) []string {
	var out []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.cfg.Addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
