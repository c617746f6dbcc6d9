// Package server initializes and runs the main application server. It wires
// configuration, logging, the object-store client, the cache and the domain
// services together, handles OS signals and shuts down gracefully.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mjuhl/wortkiste/internal/ai"
	"github.com/mjuhl/wortkiste/internal/audio"
	"github.com/mjuhl/wortkiste/internal/cache"
	"github.com/mjuhl/wortkiste/internal/decks"
	"github.com/mjuhl/wortkiste/internal/folders"
	"github.com/mjuhl/wortkiste/internal/index"
	"github.com/mjuhl/wortkiste/internal/logging"
	"github.com/mjuhl/wortkiste/internal/server/config"
	"github.com/mjuhl/wortkiste/internal/server/httpapi"
	"github.com/mjuhl/wortkiste/internal/stories"
	"github.com/mjuhl/wortkiste/internal/storage"
	"github.com/mjuhl/wortkiste/internal/tts"
)

type App struct {
	config *config.Config
	logger logging.Logger
	server *httpapi.Server
	audio  *audio.Manager
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	ctx := context.Background()

	// the server starts without storage and answers 503 on data routes,
	// which keeps health and login reachable for diagnosis
	var store storage.ObjectStore
	if c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" && c.Endpoint() != "" {
		client, err := storage.NewClient(ctx, storage.Options{
			Endpoint:  c.Endpoint(),
			AccessKey: c.R2AccessKeyID,
			SecretKey: c.R2SecretAccessKey,
			Bucket:    c.R2Bucket,
			Region:    c.R2Region,
		})
		if err != nil {
			return nil, fmt.Errorf("storage init error: %w", err)
		}
		store = client
	} else {
		logger.Warn(ctx, "object storage not configured, data endpoints disabled")
	}

	keys := storage.NewKeys(c.R2Bucket)
	idx := index.NewStore(store)
	cch := cache.New()

	manager := audio.NewManager(store, keys, tts.NewGoogleEngine(), logger)
	gemini := ai.NewClient(c.GeminiAPIKey, logger)
	if !gemini.Enabled() {
		logger.Warn(ctx, "gemini api key not configured, generation endpoints degraded")
	}

	deckService := decks.NewService(store, keys, idx, cch, manager, gemini, logger)
	folderService := folders.NewService(store, keys, idx, cch, logger)
	storyService := stories.NewService(store, keys, idx, cch, deckService, gemini, manager, logger)

	srv := httpapi.NewServer(c, logger, store, keys, idx, deckService, folderService, storyService, manager)

	return &App{config: c, logger: logger, server: srv, audio: manager}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	// drain queued audio jobs before exiting
	app.audio.Close()
}
