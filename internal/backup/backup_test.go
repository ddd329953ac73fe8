package backup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrecall/recall/internal/storage"
	"github.com/agentrecall/recall/internal/storage/sqlite"
)

func TestBackupNowProducesVerifiedCopy(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "recall.db")

	store, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	_, err = store.EnsureTable(context.Background(), storage.Row{
		ID:        "seed",
		Content:   "backed up memory",
		Category:  "fact",
		TagsJSON:  "[]",
		CreatedAt: "2025-06-01T12:00:00.000Z",
		UpdatedAt: "2025-06-01T12:00:00.000Z",
		Vector:    []float64{1, 2, 3},
	})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	svc, err := NewService(Config{
		DBPath: dbPath,
		Dir:    filepath.Join(dir, "backups"),
		Verify: true,
	})
	require.NoError(t, err)

	result, err := svc.BackupNow(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Greater(t, result.Size, int64(0))

	// The copy must be an openable database containing the row.
	copied, err := sqlite.Open(result.Path)
	require.NoError(t, err)
	defer copied.Close()

	row, err := copied.GetByID(context.Background(), "seed")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "backed up memory", row.Content)
}

func TestBackupNowMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	svc, err := NewService(Config{
		DBPath: filepath.Join(dir, "missing.db"),
		Dir:    filepath.Join(dir, "backups"),
	})
	require.NoError(t, err)

	_, err = svc.BackupNow(context.Background())
	assert.Error(t, err)
}
