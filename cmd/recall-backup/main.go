// Command recall-backup creates a verified point-in-time backup of the
// SQLite memory database and prunes old backups per the retention policy.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/agentrecall/recall/internal/backup"
	"github.com/agentrecall/recall/internal/config"
)

func main() {
	cfg := config.Load()

	defaultDB := filepath.Join(cfg.Storage.DataPath, "recall.db")
	dbPath := flag.String("db", defaultDB, "SQLite database file to back up")
	dir := flag.String("dir", cfg.Backup.Path, "backup destination directory")
	verify := flag.Bool("verify", cfg.Backup.Verify, "run integrity check on the backup")
	flag.Parse()

	svc, err := backup.NewService(backup.Config{
		DBPath: *dbPath,
		Dir:    *dir,
		Verify: *verify,
		Retention: backup.RetentionPolicy{
			Hourly:  cfg.Backup.RetentionHourly,
			Daily:   cfg.Backup.RetentionDaily,
			Weekly:  cfg.Backup.RetentionWeekly,
			Monthly: cfg.Backup.RetentionMonthly,
		},
	})
	if err != nil {
		log.Fatalf("recall-backup: %v", err)
	}

	result, err := svc.BackupNow(context.Background())
	if err != nil {
		log.Fatalf("recall-backup: %v", err)
	}
	fmt.Fprintf(os.Stdout, "backup written: %s (%d bytes, verified=%v, took %v)\n",
		result.Path, result.Size, result.Verified, result.Duration)
}
