package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Prajwalprakash3722/imapCleanup/internal/model"
)

// SQLiteStore is the durable local mirror of message metadata.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertBatch inserts a batch of messages in a single transaction,
// ignoring UIDs that are already present. The first successful parse of a
// UID wins; re-submitting an overlapping batch cannot duplicate rows or
// overwrite existing fields. Returns the number of newly inserted rows.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, msgs []model.Message) (int, error) {
	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT INTO emails (
			uid, message_id, sender_name, sender_email,
			sender_raw, recipient_raw, subject,
			date_raw, date_parsed, size_bytes, headers_raw
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?
		)
		ON CONFLICT(uid) DO NOTHING`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, m := range msgs {
		var dateParsed interface{}
		if m.DateParsed != nil {
			dateParsed = m.DateParsed.UTC()
		}

		res, err := stmt.ExecContext(ctx,
			m.UID, m.MessageID, m.SenderName, m.SenderEmail,
			m.SenderRaw, m.RecipientRaw, m.Subject,
			m.DateRaw, dateParsed, m.SizeBytes, m.HeadersRaw,
		)
		if err != nil {
			return 0, fmt.Errorf("upserting uid %d: %w", m.UID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing batch: %w", err)
	}
	return inserted, nil
}

// MaxUID returns the highest locally stored UID and whether any row
// exists. It is the sync engine's incremental cursor.
func (s *SQLiteStore) MaxUID(ctx context.Context) (uint32, bool, error) {
	var maxUID sql.NullInt64
	err := s.db.GetContext(ctx, &maxUID, "SELECT MAX(uid) FROM emails")
	if err != nil {
		return 0, false, fmt.Errorf("querying max uid: %w", err)
	}
	if !maxUID.Valid {
		return 0, false, nil
	}
	return uint32(maxUID.Int64), true, nil
}

// Count returns the total number of stored messages.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM emails"); err != nil {
		return 0, fmt.Errorf("counting emails: %w", err)
	}
	return count, nil
}

// DeletedUIDs returns the set of UIDs previously deleted through the
// cleanup engine, so sync does not re-fetch tombstones Gmail still lists.
func (s *SQLiteStore) DeletedUIDs(ctx context.Context) (map[uint32]struct{}, error) {
	var uids []uint32
	if err := s.db.SelectContext(ctx, &uids, "SELECT uid FROM deleted_uids"); err != nil {
		return nil, fmt.Errorf("querying deleted uids: %w", err)
	}

	set := make(map[uint32]struct{}, len(uids))
	for _, uid := range uids {
		set[uid] = struct{}{}
	}
	return set, nil
}

// PendingUIDs returns the set of UIDs whose fetch batches previously
// exhausted their retries, so the next sync run can re-queue them.
func (s *SQLiteStore) PendingUIDs(ctx context.Context) (map[uint32]struct{}, error) {
	var uids []uint32
	if err := s.db.SelectContext(ctx, &uids, "SELECT uid FROM pending_uids"); err != nil {
		return nil, fmt.Errorf("querying pending uids: %w", err)
	}

	set := make(map[uint32]struct{}, len(uids))
	for _, uid := range uids {
		set[uid] = struct{}{}
	}
	return set, nil
}

// AddPendingUIDs records UIDs for retry on the next sync run.
func (s *SQLiteStore) AddPendingUIDs(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, "INSERT OR IGNORE INTO pending_uids (uid) VALUES (?)")
	if err != nil {
		return fmt.Errorf("preparing pending statement: %w", err)
	}
	defer stmt.Close()

	for _, uid := range uids {
		if _, err := stmt.ExecContext(ctx, uid); err != nil {
			return fmt.Errorf("queueing uid %d: %w", uid, err)
		}
	}

	return tx.Commit()
}

// RemovePendingUIDs drops UIDs from the retry queue, after they were
// stored or stopped being listed remotely.
func (s *SQLiteStore) RemovePendingUIDs(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("DELETE FROM pending_uids WHERE uid IN (?)", uids)
	if err != nil {
		return fmt.Errorf("building pending delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("clearing pending uids: %w", err)
	}
	return nil
}

// MarkDeleted records remotely deleted UIDs as tombstones and removes
// their local rows, atomically.
func (s *SQLiteStore) MarkDeleted(ctx context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, "INSERT OR IGNORE INTO deleted_uids (uid) VALUES (?)")
	if err != nil {
		return fmt.Errorf("preparing tombstone statement: %w", err)
	}
	defer stmt.Close()

	for _, uid := range uids {
		if _, err := stmt.ExecContext(ctx, uid); err != nil {
			return fmt.Errorf("tombstoning uid %d: %w", uid, err)
		}
	}

	query, args, err := sqlx.In("DELETE FROM emails WHERE uid IN (?)", uids)
	if err != nil {
		return fmt.Errorf("building delete query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("deleting local rows: %w", err)
	}

	return tx.Commit()
}

// likeEscape makes a user-supplied substring safe for a LIKE pattern.
func likeEscape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// matchClause builds the WHERE clause for case-insensitive substring
// matching of any pattern against sender address or display name.
func matchClause(patterns []string) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	for _, p := range patterns {
		like := "%" + likeEscape(p) + "%"
		conditions = append(conditions, `(sender_email LIKE ? ESCAPE '\' OR sender_name LIKE ? ESCAPE '\')`)
		args = append(args, like, like)
	}
	return "(" + strings.Join(conditions, " OR ") + ")", args
}

// MatchSenders groups messages matching any pattern by sender, with
// per-sender counts and total sizes, largest group first.
func (s *SQLiteStore) MatchSenders(ctx context.Context, patterns []string) ([]model.SenderGroup, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	clause, args := matchClause(patterns)
	query := `
		SELECT
			sender_email,
			COUNT(*) AS count,
			COALESCE(SUM(size_bytes), 0) AS total_size
		FROM emails
		WHERE ` + clause + `
		GROUP BY sender_email
		ORDER BY count DESC`

	var groups []model.SenderGroup
	if err := s.db.SelectContext(ctx, &groups, query, args...); err != nil {
		return nil, fmt.Errorf("matching senders: %w", err)
	}
	return groups, nil
}

// MatchUIDs returns the UIDs of all messages matching any pattern,
// newest first.
func (s *SQLiteStore) MatchUIDs(ctx context.Context, patterns []string) ([]uint32, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	clause, args := matchClause(patterns)
	query := `
		SELECT uid FROM emails
		WHERE ` + clause + `
		ORDER BY date_parsed DESC, uid DESC`

	var uids []uint32
	if err := s.db.SelectContext(ctx, &uids, query, args...); err != nil {
		return nil, fmt.Errorf("matching uids: %w", err)
	}
	return uids, nil
}

// MatchSample returns up to limit matching messages for preview, newest
// first.
func (s *SQLiteStore) MatchSample(ctx context.Context, patterns []string, limit int) ([]model.Message, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	clause, args := matchClause(patterns)
	query := `
		SELECT uid, COALESCE(message_id, '') AS message_id,
			COALESCE(sender_name, '') AS sender_name,
			COALESCE(sender_email, '') AS sender_email,
			sender_raw, recipient_raw,
			COALESCE(subject, '') AS subject,
			date_raw, date_parsed, size_bytes, headers_raw, fetched_at
		FROM emails
		WHERE ` + clause + `
		ORDER BY date_parsed DESC, uid DESC
		LIMIT ?`
	args = append(args, limit)

	var msgs []model.Message
	if err := s.db.SelectContext(ctx, &msgs, query, args...); err != nil {
		return nil, fmt.Errorf("sampling matches: %w", err)
	}
	return msgs, nil
}

// RecordSyncRun appends one row of sync history.
func (s *SQLiteStore) RecordSyncRun(ctx context.Context, run model.SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, mode, started_at, finished_at, fetched, new_stored, skipped, errored)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Fetched, run.NewStored, run.Skipped, run.Errored,
	)
	if err != nil {
		return fmt.Errorf("recording sync run: %w", err)
	}
	return nil
}

// LastSyncRun returns the most recently finished sync run, or nil when
// no sync has completed yet.
func (s *SQLiteStore) LastSyncRun(ctx context.Context) (*model.SyncRun, error) {
	var run model.SyncRun
	err := s.db.GetContext(ctx, &run, `
		SELECT id, mode, started_at, finished_at, fetched, new_stored, skipped, errored
		FROM sync_runs
		ORDER BY finished_at DESC
		LIMIT 1`,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last sync run: %w", err)
	}
	run.Duration = run.FinishedAt.Sub(run.StartedAt)
	return &run, nil
}
