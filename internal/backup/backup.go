// Package backup provides point-in-time SQLite backups with integrity
// verification and tiered retention pruning.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/agentrecall/recall/internal/storage"
)

// Config holds backup service settings.
type Config struct {
	DBPath    string          // SQLite database file to back up
	Dir       string          // backup destination directory
	Interval  time.Duration   // scheduled backup interval (default 24h)
	Verify    bool            // run integrity_check on each backup
	Retention RetentionPolicy // tiered retention (zero fields get defaults)
}

// Result describes a completed backup.
type Result struct {
	Path     string
	Size     int64
	Duration time.Duration
	Verified bool
}

// Service creates backups one-shot or on a ticker.
type Service struct {
	cfg Config
}

// NewService validates the configuration and prepares the backup directory.
func NewService(cfg Config) (*Service, error) {
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("backup: database path is required")
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("backup: backup directory is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	cfg.Retention.applyDefaults()

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create backup directory: %w", err)
	}
	return &Service{cfg: cfg}, nil
}

// BackupNow performs one backup: VACUUM INTO a timestamped file, optional
// verification, then retention pruning.
func (s *Service) BackupNow(ctx context.Context) (*Result, error) {
	start := time.Now()
	dest := filepath.Join(s.cfg.Dir, fmt.Sprintf("recall-%s.db", start.UTC().Format("20060102-150405")))

	if err := vacuumInto(ctx, s.cfg.DBPath, dest); err != nil {
		return nil, err
	}

	result := &Result{Path: dest, Duration: time.Since(start)}
	if info, err := os.Stat(dest); err == nil {
		result.Size = info.Size()
	}

	if s.cfg.Verify {
		if err := verifyBackup(ctx, dest); err != nil {
			// Remove the corrupt artifact so retention never counts it.
			_ = os.Remove(dest)
			return nil, fmt.Errorf("backup: verification failed: %w", err)
		}
		result.Verified = true
	}

	if err := applyRetention(s.cfg.Dir, s.cfg.Retention); err != nil {
		log.Printf("backup: retention pruning failed (non-fatal): %v", err)
	}
	return result, nil
}

// Run performs backups at the configured interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	log.Printf("backup: service started: interval=%v dir=%s", s.cfg.Interval, s.cfg.Dir)
	for {
		select {
		case <-ctx.Done():
			log.Printf("backup: service stopping: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			result, err := s.BackupNow(ctx)
			if err != nil {
				log.Printf("backup: scheduled backup failed: %v", err)
				continue
			}
			log.Printf("backup: completed: path=%s size=%d duration=%v verified=%v",
				result.Path, result.Size, result.Duration, result.Verified)
		}
	}
}

// vacuumInto creates a consistent point-in-time copy of the database.
// VACUUM INTO handles WAL mode correctly. The destination path cannot be
// bound as a parameter, so it is quote-escaped before being spliced in.
func vacuumInto(ctx context.Context, sourcePath, destPath string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", sourcePath))
	if err != nil {
		return fmt.Errorf("backup: open source database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("backup: ping source database: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", storage.EscapeLiteral(destPath))); err != nil {
		return fmt.Errorf("backup: vacuum into %s: %w", destPath, err)
	}
	return nil
}

// verifyBackup runs SQLite's integrity check against the backup file.
func verifyBackup(ctx context.Context, path string) error {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro", path))
	if err != nil {
		return fmt.Errorf("open backup: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check reported: %s", result)
	}
	return nil
}
