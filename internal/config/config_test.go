package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "./data", cfg.Storage.DataPath)
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, "all-minilm", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 30.0, cfg.Decay.HalfLifeDays)
	assert.False(t, cfg.Backup.Enabled)
	assert.Equal(t, "24h", cfg.Backup.Interval)
	assert.Equal(t, 24, cfg.Backup.RetentionHourly)
	assert.Empty(t, cfg.Mirror.Path)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("RECALL_STORAGE_ENGINE", "postgres")
	t.Setenv("RECALL_POSTGRES_DSN", "postgres://localhost/recall")
	t.Setenv("RECALL_EMBEDDING_MODEL", "nomic-embed-text")
	t.Setenv("RECALL_EMBEDDING_DIMENSIONS", "768")
	t.Setenv("RECALL_DECAY_HALF_LIFE_DAYS", "7.5")
	t.Setenv("RECALL_BACKUP_ENABLED", "true")
	t.Setenv("RECALL_MIRROR_PATH", "/var/log/recall/mutations.jsonl")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, "postgres://localhost/recall", cfg.Storage.PostgresDSN)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.Equal(t, 7.5, cfg.Decay.HalfLifeDays)
	assert.True(t, cfg.Backup.Enabled)
	assert.Equal(t, "/var/log/recall/mutations.jsonl", cfg.Mirror.Path)
}

func TestUnparseableHalfLifeDisablesDecay(t *testing.T) {
	t.Setenv("RECALL_DECAY_HALF_LIFE_DAYS", "a fortnight")

	cfg := Load()
	assert.Equal(t, 0.0, cfg.Decay.HalfLifeDays,
		"an unparseable half-life disables decay instead of erroring")
}

func TestInvalidIntFallsBack(t *testing.T) {
	t.Setenv("RECALL_EMBEDDING_DIMENSIONS", "many")

	cfg := Load()
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
}
