package sqlite

// tableSchema creates the memories table. It is executed lazily by
// EnsureTable on the first write, never at open time: reads against a store
// that has never been written to must see "no table" and return empty.
//
// 7 logical columns; tags is a JSON-encoded array (SQLite has no array type)
// and vector is a little-endian float64 BLOB whose length fixes the embedding
// dimension for the lifetime of the table.
const tableSchema = `
CREATE TABLE IF NOT EXISTS memories (
    id         TEXT PRIMARY KEY,
    content    TEXT NOT NULL,
    category   TEXT NOT NULL,
    tags       TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    vector     BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_category   ON memories(category);
`

// ftsSchema builds the full-text index over content. The porter tokenizer
// gives stemming, remove_diacritics 2 folds accented characters to ASCII, and
// FTS5's default detail level tracks token positions. Stop words are stripped
// during query sanitisation instead of at the tokenizer level, matching how
// free-form agent queries are cleaned before MATCH.
//
// The index is dropped and recreated on every (re)build so a stale or
// corrupt index from a previous run is always replaced.
const ftsSchema = `
DROP TRIGGER IF EXISTS memories_fts_ai;
DROP TRIGGER IF EXISTS memories_fts_ad;
DROP TRIGGER IF EXISTS memories_fts_au;
DROP TABLE IF EXISTS memories_fts;

CREATE VIRTUAL TABLE memories_fts USING fts5(
    content,
    content='memories',
    content_rowid='rowid',
    tokenize='porter unicode61 remove_diacritics 2'
);

CREATE TRIGGER memories_fts_ai AFTER INSERT ON memories BEGIN
    INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER memories_fts_ad AFTER DELETE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;

CREATE TRIGGER memories_fts_au AFTER UPDATE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
    INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;

INSERT INTO memories_fts(memories_fts) VALUES ('rebuild');
`
