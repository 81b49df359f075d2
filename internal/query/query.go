// Package query is the read-only analytics surface over the local store.
// Every statement here goes through the store's read-only executor, the
// same guard that vets user-supplied SQL.
package query

import (
	"context"
	"database/sql"

	"github.com/Prajwalprakash3722/imapCleanup/internal/model"
	"github.com/Prajwalprakash3722/imapCleanup/internal/store"
)

// Surface exposes the canned analytics queries and ad-hoc SQL.
type Surface struct {
	store *store.SQLiteStore
}

// New creates a query surface over an open store.
func New(st *store.SQLiteStore) *Surface {
	return &Surface{store: st}
}

// Stats is the overview shown by the stats command.
type Stats struct {
	Count     int            `db:"count"`
	TotalSize int64          `db:"total_size"`
	Oldest    sql.NullString `db:"oldest"`
	Newest    sql.NullString `db:"newest"`

	LastRun *model.SyncRun `db:"-"`
}

// Stats returns mailbox totals and the most recent sync run.
func (s *Surface) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	err := s.store.GetReadOnly(ctx, &st, `
		SELECT
			COUNT(*) AS count,
			COALESCE(SUM(size_bytes), 0) AS total_size,
			MIN(date_parsed) AS oldest,
			MAX(date_parsed) AS newest
		FROM emails`,
	)
	if err != nil {
		return nil, err
	}

	run, err := s.store.LastSyncRun(ctx)
	if err != nil {
		return nil, err
	}
	st.LastRun = run

	return &st, nil
}

// SenderRow is one line of a per-sender aggregate.
type SenderRow struct {
	SenderEmail string  `db:"sender_email"`
	Count       int     `db:"count"`
	SizeMB      float64 `db:"size_mb"`
}

// TopSendersByCount returns the senders with the most messages.
func (s *Surface) TopSendersByCount(ctx context.Context, limit int) ([]SenderRow, error) {
	var rows []SenderRow
	err := s.store.SelectReadOnly(ctx, &rows, `
		SELECT
			sender_email,
			COUNT(*) AS count,
			SUM(size_bytes) / 1024.0 / 1024.0 AS size_mb
		FROM emails
		WHERE sender_email != ''
		GROUP BY sender_email
		ORDER BY count DESC
		LIMIT ?`, limit,
	)
	return rows, err
}

// TopSendersBySize returns the senders using the most storage.
func (s *Surface) TopSendersBySize(ctx context.Context, limit int) ([]SenderRow, error) {
	var rows []SenderRow
	err := s.store.SelectReadOnly(ctx, &rows, `
		SELECT
			sender_email,
			COUNT(*) AS count,
			SUM(size_bytes) / 1024.0 / 1024.0 AS size_mb
		FROM emails
		WHERE sender_email != ''
		GROUP BY sender_email
		ORDER BY size_mb DESC
		LIMIT ?`, limit,
	)
	return rows, err
}

// Newsletters returns senders that look like automated mailers, by the
// usual address heuristics.
func (s *Surface) Newsletters(ctx context.Context, limit int) ([]SenderRow, error) {
	var rows []SenderRow
	err := s.store.SelectReadOnly(ctx, &rows, `
		SELECT
			sender_email,
			COUNT(*) AS count,
			SUM(size_bytes) / 1024.0 / 1024.0 AS size_mb
		FROM emails
		WHERE
			sender_email LIKE '%noreply%'
			OR sender_email LIKE '%no-reply%'
			OR sender_email LIKE '%newsletter%'
			OR sender_email LIKE '%notifications%'
			OR sender_email LIKE '%updates%'
			OR sender_email LIKE '%mailer%'
			OR sender_email LIKE 'mail@%'
			OR sender_email LIKE 'info@%'
			OR sender_email LIKE 'news@%'
		GROUP BY sender_email
		ORDER BY count DESC
		LIMIT ?`, limit,
	)
	return rows, err
}

// Exec runs user-supplied SQL through the read-only guard.
func (s *Surface) Exec(ctx context.Context, query string) (*store.ResultSet, error) {
	return s.store.ExecuteReadOnly(ctx, query)
}
