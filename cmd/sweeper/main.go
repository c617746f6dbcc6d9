// Sweeper runs the audio cleanup sweep directly against the bucket: it
// compares the TTS blobs under tts/de/ with the words and example sentences
// the decks actually reference and deletes the orphans. Run with -dry-run
// first to see what would go.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/mjuhl/wortkiste/internal/audio"
	"github.com/mjuhl/wortkiste/internal/index"
	"github.com/mjuhl/wortkiste/internal/logging"
	"github.com/mjuhl/wortkiste/internal/server/config"
	"github.com/mjuhl/wortkiste/internal/storage"
	"github.com/mjuhl/wortkiste/internal/tts"
)

func getSecretKey(prompt string) (string, error) {
	fmt.Println(prompt)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	return string(secret), nil
}

func main() {

	dryRun := flag.Bool("dry-run", false, "report without deleting")
	flag.Parse()

	cfg := config.LoadConfig()

	// credentials may come from the environment; on a TTY we fall back to
	// prompting so the key never lands in shell history
	if cfg.R2SecretAccessKey == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err := getSecretKey("-Enter R2 secret access key")
		if err != nil {
			log.Fatalf("%v", err)
		}
		cfg.R2SecretAccessKey = secret
	}
	if cfg.R2AccessKeyID == "" || cfg.R2SecretAccessKey == "" || cfg.Endpoint() == "" {
		log.Fatal("object storage is not configured")
	}

	ctx := context.Background()
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	store, err := storage.NewClient(ctx, storage.Options{
		Endpoint:  cfg.Endpoint(),
		AccessKey: cfg.R2AccessKeyID,
		SecretKey: cfg.R2SecretAccessKey,
		Bucket:    cfg.R2Bucket,
		Region:    cfg.R2Region,
	})
	if err != nil {
		log.Fatalf("storage init error: %v", err)
	}

	keys := storage.NewKeys(cfg.R2Bucket)
	manager := audio.NewManager(store, keys, tts.NewGoogleEngine(), logger)
	defer manager.Close()

	report, err := manager.Cleanup(ctx, index.NewStore(store), *dryRun)
	if err != nil {
		log.Fatalf("cleanup error: %v", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println(string(out))

}
