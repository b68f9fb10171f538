package catalog

// Messages keep their recovery provenance; the FTS table indexes the text
// columns and is kept in sync by triggers.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    fingerprint TEXT UNIQUE NOT NULL,
    source_id TEXT NOT NULL,
    message_id TEXT,
    subject TEXT,
    sender TEXT,
    sender_name TEXT,
    recipients TEXT,
    folder TEXT,
    date DATETIME,
    tier TEXT NOT NULL,
    confidence TEXT NOT NULL,
    source_table TEXT,
    source_record INTEGER,
    source_page INTEGER,
    source_offset INTEGER,
    notes TEXT,
    body_preview TEXT,
    body_size INTEGER,
    indexed_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    subject,
    sender,
    sender_name,
    recipients,
    body_preview,
    content='messages',
    content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, subject, sender, sender_name, recipients, body_preview)
    VALUES (new.id, new.subject, new.sender, new.sender_name, new.recipients, new.body_preview);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, subject, sender, sender_name, recipients, body_preview)
    VALUES ('delete', old.id, old.subject, old.sender, old.sender_name, old.recipients, old.body_preview);
END;

CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date DESC);
CREATE INDEX IF NOT EXISTS idx_messages_folder ON messages(folder);
CREATE INDEX IF NOT EXISTS idx_messages_tier ON messages(tier, confidence);
`
