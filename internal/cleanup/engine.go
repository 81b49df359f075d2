package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Prajwalprakash3722/imapCleanup/internal/mailbox"
	"github.com/Prajwalprakash3722/imapCleanup/internal/model"
	"github.com/Prajwalprakash3722/imapCleanup/internal/rate"
)

// ConfirmationError means the caller did not echo the expected
// confirmation phrase; nothing was deleted.
type ConfirmationError struct {
	Expected string
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("confirmation failed: type %q to confirm", e.Expected)
}

// IsConfirmationError reports whether err is a ConfirmationError.
func IsConfirmationError(err error) bool {
	var ce *ConfirmationError
	return errors.As(err, &ce)
}

// PartialDeleteError means some batches were rejected by the server.
// Successful batches are already deleted remotely and tombstoned locally.
type PartialDeleteError struct {
	Failed []uint32
}

func (e *PartialDeleteError) Error() string {
	return fmt.Sprintf("%d messages could not be deleted", len(e.Failed))
}

// Selection is the result of pattern matching, grouped by sender.
type Selection struct {
	Patterns   []string
	Groups     []model.SenderGroup
	UIDs       []uint32
	TotalCount int
	TotalSize  int64
}

// Store is the slice of the local store the cleanup engine needs.
type Store interface {
	MatchSenders(ctx context.Context, patterns []string) ([]model.SenderGroup, error)
	MatchUIDs(ctx context.Context, patterns []string) ([]uint32, error)
	MatchSample(ctx context.Context, patterns []string, limit int) ([]model.Message, error)
	MarkDeleted(ctx context.Context, uids []uint32) error
}

// Options tunes the cleanup engine. Zero values get safe defaults.
type Options struct {
	// BatchSize is the number of UIDs per STORE+EXPUNGE. Smaller is
	// safer and slower.
	BatchSize int

	Limiter rate.Limiter
	Logger  *slog.Logger
}

// Engine selects messages by sender pattern and deletes them remotely.
type Engine struct {
	store   Store
	session mailbox.Session
	opts    Options
}

// NewEngine builds a cleanup engine. The session may be nil for
// match-only use; Delete requires one.
func NewEngine(st Store, session mailbox.Session, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.None{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{store: st, session: session, opts: opts}
}

// Match finds all locally stored messages whose sender address or display
// name contains any of the patterns, case-insensitively.
func (e *Engine) Match(ctx context.Context, patterns []string) (*Selection, error) {
	groups, err := e.store.MatchSenders(ctx, patterns)
	if err != nil {
		return nil, err
	}
	uids, err := e.store.MatchUIDs(ctx, patterns)
	if err != nil {
		return nil, err
	}

	sel := &Selection{Patterns: patterns, Groups: groups, UIDs: uids, TotalCount: len(uids)}
	for _, g := range groups {
		sel.TotalSize += g.TotalSize
	}
	return sel, nil
}

// Sample returns up to limit matching messages for preview.
func (e *Engine) Sample(ctx context.Context, patterns []string, limit int) ([]model.Message, error) {
	return e.store.MatchSample(ctx, patterns, limit)
}

// ConfirmationPhrase is what the user must echo to delete exactly count
// messages. Binding the literal count prevents replaying a confirmation
// against a selection that has since changed.
func ConfirmationPhrase(count int) string {
	return fmt.Sprintf("DELETE %d", count)
}

// Report lists which UIDs a Delete call removed and which the server
// rejected.
type Report struct {
	Deleted []uint32
	Failed  []uint32
}

// Delete removes the given UIDs from the remote mailbox in batches,
// tombstoning each successful batch locally. Unless bypass is set, the
// confirm phrase must match ConfirmationPhrase(len(uids)) exactly.
//
// A batch the server rejects is recorded and the remaining batches still
// run; the returned Report always says exactly what happened.
func (e *Engine) Delete(ctx context.Context, uids []uint32, confirm string, bypass bool) (*Report, error) {
	report := &Report{}
	if len(uids) == 0 {
		return report, nil
	}

	if !bypass {
		expected := ConfirmationPhrase(len(uids))
		if confirm != expected {
			return report, &ConfirmationError{Expected: expected}
		}
	}

	if e.session == nil {
		return report, fmt.Errorf("no mailbox session: deletion requires a remote connection")
	}

	for i := 0; i < len(uids); i += e.opts.BatchSize {
		end := i + e.opts.BatchSize
		if end > len(uids) {
			end = len(uids)
		}
		batch := uids[i:end]

		if err := e.opts.Limiter.Wait(ctx); err != nil {
			report.Failed = append(report.Failed, uids[i:]...)
			return report, err
		}

		if err := e.deleteBatch(ctx, batch); err != nil {
			if mailbox.IsAuthError(err) {
				report.Failed = append(report.Failed, uids[i:]...)
				return report, err
			}
			report.Failed = append(report.Failed, batch...)
			e.opts.Logger.Warn("delete batch rejected",
				"first_uid", batch[0],
				"size", len(batch),
				"error", err,
			)
			continue
		}

		// Remote deletion succeeded; drop the rows locally and
		// tombstone so sync does not re-fetch them.
		if err := e.store.MarkDeleted(ctx, batch); err != nil {
			report.Failed = append(report.Failed, uids[end:]...)
			report.Deleted = append(report.Deleted, batch...)
			return report, fmt.Errorf("recording deletions: %w", err)
		}
		report.Deleted = append(report.Deleted, batch...)
	}

	if len(report.Failed) > 0 {
		return report, &PartialDeleteError{Failed: report.Failed}
	}
	return report, nil
}

func (e *Engine) deleteBatch(ctx context.Context, batch []uint32) error {
	if err := e.session.MarkDeleted(ctx, batch); err != nil {
		return err
	}
	return e.session.Expunge(ctx)
}
