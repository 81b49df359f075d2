package model

import "time"

// Message is the locally mirrored metadata for a single remote message.
// One row per IMAP UID in the selected mailbox; rows are written once by
// the sync engine and never mutated afterwards.
type Message struct {
	// UID is the IMAP UID within [Gmail]/All Mail. It is the local
	// primary key: stable per mailbox, monotonically non-decreasing as
	// new mail arrives, but not necessarily contiguous.
	UID uint32 `db:"uid"`

	// MessageID is the RFC 5322 Message-ID header. May be empty, and
	// may be duplicated across distinct UIDs (Gmail shows the same
	// message under several labels); that is a data-quality signal for
	// the query surface, not something the engine deduplicates.
	MessageID string `db:"message_id"`

	// SenderName is the display name parsed from the From header.
	SenderName string `db:"sender_name"`

	// SenderEmail is the address parsed from the From header,
	// lowercased. Empty when parsing fails.
	SenderEmail string `db:"sender_email"`

	// SenderRaw is the full decoded From header as-is.
	SenderRaw string `db:"sender_raw"`

	// RecipientRaw is the full decoded To header as-is.
	RecipientRaw string `db:"recipient_raw"`

	// Subject is the decoded subject line. May be empty.
	Subject string `db:"subject"`

	// DateRaw is the unparsed Date header text.
	DateRaw string `db:"date_raw"`

	// DateParsed is the best-effort UTC timestamp for the Date header.
	// Nil when the header is absent or unparseable; callers must
	// tolerate null dates everywhere.
	DateParsed *time.Time `db:"date_parsed"`

	// SizeBytes is the remote-reported RFC822.SIZE.
	SizeBytes int64 `db:"size_bytes"`

	// HeadersRaw is the full raw header block, retained for debugging
	// and re-parsing.
	HeadersRaw string `db:"headers_raw"`

	// FetchedAt is the local ingestion timestamp, set once at first
	// insert.
	FetchedAt time.Time `db:"fetched_at"`
}

// SenderGroup is one row of a cleanup selection, grouped by sender.
type SenderGroup struct {
	SenderEmail string `db:"sender_email"`
	Count       int    `db:"count"`
	TotalSize   int64  `db:"total_size"`
}

// SyncRun is one completed invocation of the sync engine, recorded for
// the stats command. It is history only; the incremental cursor is always
// recomputed from MAX(uid) over the emails table.
type SyncRun struct {
	ID         string        `db:"id"`
	Mode       string        `db:"mode"`
	StartedAt  time.Time     `db:"started_at"`
	FinishedAt time.Time     `db:"finished_at"`
	Fetched    int           `db:"fetched"`
	NewStored  int           `db:"new_stored"`
	Skipped    int           `db:"skipped"`
	Errored    int           `db:"errored"`
	Duration   time.Duration `db:"-"`
}
