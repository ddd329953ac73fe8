// Package config loads configuration from environment variables with the
// RECALL_ prefix and provides defaults for every option. The resulting Config
// is constructed once at startup and passed into the engine; nothing reads
// the environment after that.
package config

import (
	"os"
	"strconv"
)

// Config holds all settings for the recall system.
type Config struct {
	Storage   StorageConfig
	Embedding EmbeddingConfig
	Decay     DecayConfig
	Backup    BackupConfig
	Mirror    MirrorConfig
}

// StorageConfig selects and locates the storage backend.
type StorageConfig struct {
	Engine      string // "sqlite" (default) or "postgres"
	DataPath    string // directory for the SQLite database (default: ./data)
	PostgresDSN string // connection string when Engine is "postgres"
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	BaseURL    string // Ollama-compatible endpoint (default: http://localhost:11434)
	Model      string // embedding model name (default: all-minilm)
	Dimensions int    // vector dimension (default: 384)
}

// DecayConfig configures temporal decay rescoring.
type DecayConfig struct {
	// HalfLifeDays is the score half-life in days. Zero or negative disables
	// decay entirely. An unparseable RECALL_DECAY_HALF_LIFE_DAYS value also
	// disables decay rather than erroring.
	HalfLifeDays float64
}

// BackupConfig configures the scheduled backup service.
type BackupConfig struct {
	Enabled          bool
	Interval         string // duration string (default: 24h)
	Path             string // backup directory (default: ./backups)
	Verify           bool
	RetentionHourly  int
	RetentionDaily   int
	RetentionWeekly  int
	RetentionMonthly int
}

// MirrorConfig configures the write-behind mutation mirror.
type MirrorConfig struct {
	Path string // JSON-lines file; empty disables mirroring
}

// Load reads configuration from the environment.
func Load() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:      getEnv("RECALL_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("RECALL_DATA_PATH", "./data"),
			PostgresDSN: getEnv("RECALL_POSTGRES_DSN", ""),
		},
		Embedding: EmbeddingConfig{
			BaseURL:    getEnv("RECALL_EMBEDDING_URL", "http://localhost:11434"),
			Model:      getEnv("RECALL_EMBEDDING_MODEL", "all-minilm"),
			Dimensions: getEnvInt("RECALL_EMBEDDING_DIMENSIONS", 384),
		},
		Decay: DecayConfig{
			HalfLifeDays: getDecayHalfLife("RECALL_DECAY_HALF_LIFE_DAYS", 30),
		},
		Backup: BackupConfig{
			Enabled:          getEnvBool("RECALL_BACKUP_ENABLED", false),
			Interval:         getEnv("RECALL_BACKUP_INTERVAL", "24h"),
			Path:             getEnv("RECALL_BACKUP_PATH", "./backups"),
			Verify:           getEnvBool("RECALL_BACKUP_VERIFY", true),
			RetentionHourly:  getEnvInt("RECALL_BACKUP_RETENTION_HOURLY", 24),
			RetentionDaily:   getEnvInt("RECALL_BACKUP_RETENTION_DAILY", 7),
			RetentionWeekly:  getEnvInt("RECALL_BACKUP_RETENTION_WEEKLY", 4),
			RetentionMonthly: getEnvInt("RECALL_BACKUP_RETENTION_MONTHLY", 12),
		},
		Mirror: MirrorConfig{
			Path: getEnv("RECALL_MIRROR_PATH", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable, falling back to the
// default when unset or unparseable.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getEnvBool recognizes true/1/yes and false/0/no, case-insensitively.
func getEnvBool(key string, defaultValue bool) bool {
	switch os.Getenv(key) {
	case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
		return true
	case "false", "0", "no", "False", "FALSE", "No", "NO":
		return false
	}
	return defaultValue
}

// getDecayHalfLife treats an unparseable value as 0 (decay disabled), not as
// the default: a misconfigured half-life must silently disable decay rather
// than error or silently revert to 30 days.
func getDecayHalfLife(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return f
}
