// Command recall-mcp serves the memory engine over the Model Context
// Protocol on stdin/stdout. All diagnostics go to stderr.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/agentrecall/recall/internal/api/mcp"
	"github.com/agentrecall/recall/internal/backup"
	"github.com/agentrecall/recall/internal/config"
	"github.com/agentrecall/recall/internal/embedding"
	"github.com/agentrecall/recall/internal/engine"
	"github.com/agentrecall/recall/internal/mirror"
	"github.com/agentrecall/recall/internal/storage"
	"github.com/agentrecall/recall/internal/storage/postgres"
	"github.com/agentrecall/recall/internal/storage/sqlite"
)

func main() {
	// Stdout carries JSON-RPC frames; logging must stay on stderr.
	log.SetOutput(os.Stderr)

	cfg := config.Load()
	if err := run(cfg); err != nil {
		log.Fatalf("recall-mcp: %v", err)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, dbPath, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Mirror.Path != "" {
		store = mirror.Wrap(store, cfg.Mirror.Path)
		log.Printf("recall-mcp: mirroring mutations to %s", cfg.Mirror.Path)
	}

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

	if cfg.Backup.Enabled && dbPath != "" {
		interval, err := time.ParseDuration(cfg.Backup.Interval)
		if err != nil {
			log.Printf("recall-mcp: invalid backup interval %q, using 24h", cfg.Backup.Interval)
			interval = 24 * time.Hour
		}
		svc, err := backup.NewService(backup.Config{
			DBPath:   dbPath,
			Dir:      cfg.Backup.Path,
			Interval: interval,
			Verify:   cfg.Backup.Verify,
			Retention: backup.RetentionPolicy{
				Hourly:  cfg.Backup.RetentionHourly,
				Daily:   cfg.Backup.RetentionDaily,
				Weekly:  cfg.Backup.RetentionWeekly,
				Monthly: cfg.Backup.RetentionMonthly,
			},
		})
		if err != nil {
			return fmt.Errorf("backup service: %w", err)
		}
		go svc.Run(ctx)
	}

	transport := mcp.NewStdioTransport(mcp.NewServer(eng), os.Stdin, os.Stdout)
	log.Printf("recall-mcp: serving (engine=%s, model=%s, half-life=%.0fd)",
		cfg.Storage.Engine, cfg.Embedding.Model, cfg.Decay.HalfLifeDays)

	if err := transport.Serve(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// openStore builds the configured storage backend. The returned path is the
// SQLite database file, or empty for backends that cannot be file-backed-up.
func openStore(cfg *config.Config) (storage.Store, string, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		store, err := postgres.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, "", fmt.Errorf("open postgres: %w", err)
		}
		return store, "", nil
	case "sqlite":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, "", fmt.Errorf("create data directory: %w", err)
		}
		dbPath := filepath.Join(cfg.Storage.DataPath, "recall.db")
		store, err := sqlite.Open(dbPath)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite: %w", err)
		}
		return store, dbPath, nil
	default:
		return nil, "", fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}
