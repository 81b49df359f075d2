package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

-- One row per remote message, keyed by IMAP UID. UIDs are stable within
-- [Gmail]/All Mail, which is the only mailbox we fetch from.
CREATE TABLE IF NOT EXISTS emails (
	uid           INTEGER PRIMARY KEY,
	message_id    TEXT,
	sender_name   TEXT COLLATE NOCASE,
	sender_email  TEXT COLLATE NOCASE,
	sender_raw    TEXT NOT NULL DEFAULT '',
	recipient_raw TEXT NOT NULL DEFAULT '',
	subject       TEXT COLLATE NOCASE,
	date_raw      TEXT NOT NULL DEFAULT '',
	date_parsed   DATETIME,
	size_bytes    INTEGER NOT NULL DEFAULT 0,
	headers_raw   TEXT NOT NULL DEFAULT '',
	fetched_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_emails_sender_email ON emails(sender_email);
CREATE INDEX IF NOT EXISTS idx_emails_date_parsed ON emails(date_parsed);
CREATE INDEX IF NOT EXISTS idx_emails_size_bytes ON emails(size_bytes);
CREATE INDEX IF NOT EXISTS idx_emails_message_id ON emails(message_id);
CREATE INDEX IF NOT EXISTS idx_emails_sender_size ON emails(sender_email, size_bytes);

-- UIDs we have deleted remotely. Gmail keeps listing a UID for a while
-- after deletion (trash latency), so sync skips anything in here.
CREATE TABLE IF NOT EXISTS deleted_uids (
	uid        INTEGER PRIMARY KEY,
	deleted_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
-- Sync invocation history, shown by the stats command. The incremental
-- cursor is always recomputed from MAX(uid) over emails, never from here.
CREATE TABLE IF NOT EXISTS sync_runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	fetched     INTEGER NOT NULL DEFAULT 0,
	new_stored  INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	errored     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_runs_finished ON sync_runs(finished_at);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
-- UIDs whose fetch batches exhausted their retries. The next sync run
-- re-queues them below the incremental cursor; rows are cleared once the
-- UID is stored or disappears from the server.
CREATE TABLE IF NOT EXISTS pending_uids (
	uid             INTEGER PRIMARY KEY,
	first_failed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
