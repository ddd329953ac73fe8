package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrecall/recall/internal/embedding/embedtest"
	"github.com/agentrecall/recall/internal/engine"
	"github.com/agentrecall/recall/internal/storage/sqlite"
	"github.com/agentrecall/recall/pkg/types"
)

func writeNote(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFileWithFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := writeNote(t, dir, "note.md", `---
category: decision
tags:
  - architecture
  - storage
---
We will use an embedded database for the first release.
`)

	note, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, types.CategoryDecision, note.Category)
	assert.Equal(t, []string{"architecture", "storage"}, note.Tags)
	assert.Equal(t, "We will use an embedded database for the first release.", note.Content)
}

func TestParseFileWithoutFrontmatter(t *testing.T) {
	dir := t.TempDir()
	path := writeNote(t, dir, "plain.md", "Just a plain note.\n")

	note, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, types.CategoryContext, note.Category)
	assert.Empty(t, note.Tags)
	assert.Equal(t, "Just a plain note.", note.Content)
}

func TestParseFileRejectsInvalidCategory(t *testing.T) {
	dir := t.TempDir()
	path := writeNote(t, dir, "bad.md", "---\ncategory: diary\n---\ncontent\n")

	_, err := ParseFile(path)
	assert.ErrorContains(t, err, "invalid category")
}

func TestParseFileRejectsEmptyBody(t *testing.T) {
	dir := t.TempDir()
	path := writeNote(t, dir, "empty.md", "---\ncategory: fact\n---\n\n")

	_, err := ParseFile(path)
	assert.ErrorContains(t, err, "empty content")
}

func TestImportDirStoresBatchAndSkipsBroken(t *testing.T) {
	dir := t.TempDir()
	writeNote(t, dir, "one.md", "---\ncategory: fact\ntags: [imported]\n---\nThe first imported fact.\n")
	writeNote(t, dir, "two.md", "---\ncategory: learning\n---\nThe second imported note.\n")
	writeNote(t, dir, "broken.md", "---\ncategory: diary\n---\nbad category\n")
	writeNote(t, dir, "ignored.txt", "not markdown")

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	eng := engine.New(store, embedtest.New(16))

	n, err := ImportDir(context.Background(), eng, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "broken and non-markdown files are skipped")

	stats, err := eng.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMemories)
	assert.Equal(t, 1, stats.ByCategory[types.CategoryFact])
	assert.Equal(t, 1, stats.ByCategory[types.CategoryLearning])
}

func TestImportDirEmpty(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	eng := engine.New(store, embedtest.New(16))

	n, err := ImportDir(context.Background(), eng, t.TempDir())
	require.NoError(t, err)
	assert.Zero(t, n)
}
