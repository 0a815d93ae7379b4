package sqlite

const schema = `
-- Records table: the authoritative copy of every civic record's metadata.
-- Timestamps are stored as the same ISO-8601 strings the record headers
-- carry so reads round-trip byte for byte.
CREATE TABLE IF NOT EXISTS records (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    workflow_state TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    authors TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    source TEXT,
    commit_hash TEXT DEFAULT '',
    signature TEXT DEFAULT '',
    path TEXT DEFAULT '',
    geography TEXT,
    linked_records TEXT NOT NULL DEFAULT '[]',
    linked_geography_files TEXT NOT NULL DEFAULT '[]',
    attached_files TEXT NOT NULL DEFAULT '[]',
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_records_type ON records(type);
CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);
CREATE INDEX IF NOT EXISTS idx_records_type_status ON records(type, status);
CREATE INDEX IF NOT EXISTS idx_records_author ON records(author);
CREATE INDEX IF NOT EXISTS idx_records_updated_at ON records(updated_at);

-- Drafts table: pre-publication working copies. Same shape as records;
-- rows move to the records table when a draft is published.
CREATE TABLE IF NOT EXISTS record_drafts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL CHECK(length(title) <= 500),
    type TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    workflow_state TEXT NOT NULL DEFAULT '',
    content TEXT NOT NULL DEFAULT '',
    author TEXT NOT NULL DEFAULT '',
    authors TEXT NOT NULL DEFAULT '[]',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    source TEXT,
    commit_hash TEXT DEFAULT '',
    signature TEXT DEFAULT '',
    path TEXT DEFAULT '',
    geography TEXT,
    linked_records TEXT NOT NULL DEFAULT '[]',
    linked_geography_files TEXT NOT NULL DEFAULT '[]',
    attached_files TEXT NOT NULL DEFAULT '[]',
    metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_record_drafts_type ON record_drafts(type);
CREATE INDEX IF NOT EXISTS idx_record_drafts_updated_at ON record_drafts(updated_at);

-- Full-text search over records. External content table: the FTS index
-- stores no copy of the text, so the triggers below must keep it in sync
-- with every write to records.
CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
    title, content,
    content='records',
    content_rowid='rowid',
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS records_fts_after_insert AFTER INSERT ON records BEGIN
    INSERT INTO records_fts(rowid, title, content)
    VALUES (new.rowid, new.title, new.content);
END;

CREATE TRIGGER IF NOT EXISTS records_fts_after_delete AFTER DELETE ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, title, content)
    VALUES ('delete', old.rowid, old.title, old.content);
END;

CREATE TRIGGER IF NOT EXISTS records_fts_after_update AFTER UPDATE OF title, content ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, title, content)
    VALUES ('delete', old.rowid, old.title, old.content);
    INSERT INTO records_fts(rowid, title, content)
    VALUES (new.rowid, new.title, new.content);
END;
`
