package protocol

// SchemaDDL defines the SQLite schema for the glyph lexicon database.
// Tables: glyph_lexicon, glyph_lexicon_archived, glyph_usage_log, glyph_versions,
// feedback_log, conversation_turns, ingest_watermarks, glyph_fts (FTS5).
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Active lexicon. normalized_key is indexed but not UNIQUE: legacy imports may
-- carry duplicate groups until consolidation archives them.
CREATE TABLE IF NOT EXISTS glyph_lexicon (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    normalized_key TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    gate TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL DEFAULT '',
    response_template TEXT,
    keywords TEXT NOT NULL DEFAULT '[]',
    frequency INTEGER NOT NULL DEFAULT 0 CHECK (frequency >= 0),
    source TEXT NOT NULL DEFAULT '',
    activated_seq INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_glyph_lexicon_key ON glyph_lexicon(normalized_key);
CREATE INDEX IF NOT EXISTS idx_glyph_lexicon_gate ON glyph_lexicon(gate);

-- Reversible soft-delete: full snapshot of the active row plus archive metadata.
CREATE TABLE IF NOT EXISTS glyph_lexicon_archived (
    archived_id INTEGER PRIMARY KEY AUTOINCREMENT,
    glyph_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    normalized_key TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    gate TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL DEFAULT '',
    response_template TEXT,
    keywords TEXT NOT NULL DEFAULT '[]',
    frequency INTEGER NOT NULL DEFAULT 0,
    source TEXT NOT NULL DEFAULT '',
    activated_seq INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    archived_at TEXT NOT NULL,
    archive_reason TEXT NOT NULL,
    archived_seq INTEGER NOT NULL,
    run_id TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_glyph_archived_key ON glyph_lexicon_archived(normalized_key);

-- Append-only usage trail written whenever a glyph grounds a reply.
CREATE TABLE IF NOT EXISTS glyph_usage_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    glyph_id INTEGER NOT NULL,
    input_hash TEXT NOT NULL,
    conversation_id TEXT NOT NULL DEFAULT '',
    turn_index INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_glyph_usage_glyph ON glyph_usage_log(glyph_id);

-- Every store mutation appends one row; seq doubles as the logical clock used
-- for restore conflict detection.
CREATE TABLE IF NOT EXISTS glyph_versions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    glyph_id INTEGER NOT NULL,
    change TEXT NOT NULL,
    run_id TEXT NOT NULL DEFAULT '',
    snapshot TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_glyph_versions_glyph ON glyph_versions(glyph_id);

-- Append-only user reactions.
CREATE TABLE IF NOT EXISTS feedback_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL DEFAULT '',
    turn_index INTEGER,
    rating INTEGER,
    correction_text TEXT,
    created_at TEXT NOT NULL
);

-- Conversation log joined against feedback_log to build training pairs.
CREATE TABLE IF NOT EXISTS conversation_turns (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT NOT NULL,
    turn_index INTEGER NOT NULL,
    user_input TEXT NOT NULL,
    bot_output TEXT NOT NULL,
    glyph_id INTEGER,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_turns_conv ON conversation_turns(conversation_id, turn_index);

-- Per-(source, key) high-water mark of applied candidate occurrences.
CREATE TABLE IF NOT EXISTS ingest_watermarks (
    source_id TEXT NOT NULL,
    normalized_key TEXT NOT NULL,
    applied INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL,
    PRIMARY KEY (source_id, normalized_key)
);

-- FTS5 index over active glyph names and keywords for keywords_any search.
CREATE VIRTUAL TABLE IF NOT EXISTS glyph_fts USING fts5(
    name,
    keywords,
    content=glyph_lexicon,
    content_rowid=id
);

CREATE TRIGGER IF NOT EXISTS glyph_lexicon_ai AFTER INSERT ON glyph_lexicon BEGIN
    INSERT INTO glyph_fts(rowid, name, keywords) VALUES (new.id, new.name, new.keywords);
END;

CREATE TRIGGER IF NOT EXISTS glyph_lexicon_ad AFTER DELETE ON glyph_lexicon BEGIN
    INSERT INTO glyph_fts(glyph_fts, rowid, name, keywords) VALUES ('delete', old.id, old.name, old.keywords);
END;

CREATE TRIGGER IF NOT EXISTS glyph_lexicon_au AFTER UPDATE ON glyph_lexicon BEGIN
    INSERT INTO glyph_fts(glyph_fts, rowid, name, keywords) VALUES ('delete', old.id, old.name, old.keywords);
    INSERT INTO glyph_fts(rowid, name, keywords) VALUES (new.id, new.name, new.keywords);
END;
`

// Tables lists every table SchemaDDL creates, in creation order.
var Tables = []string{ //nolint:gochecknoglobals // static schema metadata
	"glyph_lexicon",
	"glyph_lexicon_archived",
	"glyph_usage_log",
	"glyph_versions",
	"feedback_log",
	"conversation_turns",
	"ingest_watermarks",
	"glyph_fts",
}
