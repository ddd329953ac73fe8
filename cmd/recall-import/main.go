// Command recall-import loads markdown notes from a directory into the
// memory store. Frontmatter supplies category and tags; the body becomes
// the memory content.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/agentrecall/recall/internal/config"
	"github.com/agentrecall/recall/internal/embedding"
	"github.com/agentrecall/recall/internal/engine"
	"github.com/agentrecall/recall/internal/importer"
	"github.com/agentrecall/recall/internal/storage"
	"github.com/agentrecall/recall/internal/storage/postgres"
	"github.com/agentrecall/recall/internal/storage/sqlite"
)

func main() {
	dir := flag.String("dir", "", "directory of markdown files to import (required)")
	flag.Parse()
	if *dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	if err := run(cfg, *dir); err != nil {
		log.Fatalf("recall-import: %v", err)
	}
}

func run(cfg *config.Config, dir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := embedding.NewOllamaEmbedder(embedding.OllamaConfig{
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
	})
	if err != nil {
		return fmt.Errorf("embedding provider: %w", err)
	}

	eng := engine.New(store, embedder, engine.WithHalfLife(cfg.Decay.HalfLifeDays))
	if err := eng.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	n, err := importer.ImportDir(ctx, eng, dir)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d memories from %s\n", n, dir)
	return nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.Open(cfg.Storage.PostgresDSN)
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return sqlite.Open(filepath.Join(cfg.Storage.DataPath, "recall.db"))
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}
