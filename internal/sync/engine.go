package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Prajwalprakash3722/imapCleanup/internal/mailbox"
	"github.com/Prajwalprakash3722/imapCleanup/internal/model"
	"github.com/Prajwalprakash3722/imapCleanup/internal/rate"
)

// Mode selects how much of the remote mailbox a run covers.
type Mode string

const (
	// ModeIncremental fetches only UIDs above the local MAX(uid).
	ModeIncremental Mode = "incremental"

	// ModeFull re-walks every remote UID. Idempotent upserts make this
	// safe over an already-populated store.
	ModeFull Mode = "full"
)

// Report summarizes one sync run. Errored UIDs are kept individually so
// a manual retry pass is possible.
type Report struct {
	RunID string
	Mode  Mode

	// Fetched is the number of messages parsed from successful batches.
	Fetched int

	// NewStored and AlreadyExisted split Fetched by whether the upsert
	// actually inserted a row.
	NewStored      int
	AlreadyExisted int

	// Skipped counts UIDs the server listed but did not return,
	// typically deleted by another client mid-run.
	Skipped int

	// ErroredUIDs are the members of batches whose retries were
	// exhausted.
	ErroredUIDs []uint32

	Duration time.Duration
}

// Errored is the number of UIDs in failed batches.
func (r *Report) Errored() int { return len(r.ErroredUIDs) }

// Store is the slice of the local store the engine needs.
type Store interface {
	MaxUID(ctx context.Context) (uint32, bool, error)
	DeletedUIDs(ctx context.Context) (map[uint32]struct{}, error)
	PendingUIDs(ctx context.Context) (map[uint32]struct{}, error)
	AddPendingUIDs(ctx context.Context, uids []uint32) error
	RemovePendingUIDs(ctx context.Context, uids []uint32) error
	UpsertBatch(ctx context.Context, msgs []model.Message) (int, error)
	RecordSyncRun(ctx context.Context, run model.SyncRun) error
}

// Options tunes a sync engine. Zero values get sensible defaults.
type Options struct {
	// BatchSize is the number of UIDs per FETCH. Gmail disconnects
	// sessions that ask for too much at once; low hundreds is safe.
	BatchSize int

	Retry   RetryPolicy
	Limiter rate.Limiter
	Logger  *slog.Logger

	// sleep is overridden in tests to avoid wall-clock backoff.
	sleep sleepFunc
}

// Engine reconciles the remote mailbox into the local store.
type Engine struct {
	store   Store
	session mailbox.Session
	opts    Options
}

// NewEngine builds a sync engine over an open session and store.
func NewEngine(st Store, session mailbox.Session, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.Limiter == nil {
		opts.Limiter = rate.None{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.sleep == nil {
		opts.sleep = sleepContext
	}
	return &Engine{store: st, session: session, opts: opts}
}

// Run executes one sync pass. It returns a report even alongside an
// error, so the caller can see how far the run got; committed batches
// stay committed and the next incremental run resumes from the new
// MAX(uid).
func (e *Engine) Run(ctx context.Context, mode Mode) (*Report, error) {
	start := time.Now()
	report := &Report{RunID: uuid.NewString(), Mode: mode}
	log := e.opts.Logger

	var lowerBound uint32
	if mode == ModeIncremental {
		maxUID, ok, err := e.store.MaxUID(ctx)
		if err != nil {
			return report, fmt.Errorf("reading sync cursor: %w", err)
		}
		if !ok {
			// Nothing local yet: an incremental run over an empty
			// store is a full run.
			log.Info("empty local store, running full sync")
		} else {
			lowerBound = maxUID
		}
	}

	var remote []uint32
	err := retryDo(ctx, e.opts.Retry, e.opts.sleep, func() error {
		uids, err := e.session.ListUIDs(ctx)
		if err != nil {
			return err
		}
		remote = uids
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("listing remote UIDs: %w", err)
	}

	tombstones, err := e.store.DeletedUIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("reading tombstones: %w", err)
	}

	pending, err := e.store.PendingUIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("reading retry queue: %w", err)
	}

	// Pending UIDs sit below the cursor (their batch failed but later
	// batches committed), so they are re-queued explicitly.
	working := make([]uint32, 0, len(remote))
	for _, uid := range remote {
		_, retry := pending[uid]
		if uid <= lowerBound && !retry {
			continue
		}
		if _, dead := tombstones[uid]; dead {
			continue
		}
		working = append(working, uid)
		delete(pending, uid)
	}

	// Whatever is left in pending is no longer listed remotely.
	if len(pending) > 0 {
		gone := make([]uint32, 0, len(pending))
		for uid := range pending {
			gone = append(gone, uid)
		}
		if err := e.store.RemovePendingUIDs(ctx, gone); err != nil {
			log.Warn("clearing stale retry queue entries failed", "error", err)
		}
	}

	log.Info("sync starting",
		"mode", string(mode),
		"remote", len(remote),
		"to_fetch", len(working),
		"cursor", lowerBound,
	)

	for i := 0; i < len(working); i += e.opts.BatchSize {
		end := i + e.opts.BatchSize
		if end > len(working) {
			end = len(working)
		}
		batch := working[i:end]

		if err := e.opts.Limiter.Wait(ctx); err != nil {
			return e.finish(ctx, report, start), err
		}

		var fetched map[uint32]mailbox.RawMessage
		err := retryDo(ctx, e.opts.Retry, e.opts.sleep, func() error {
			m, ferr := e.session.FetchHeaders(ctx, batch)
			if ferr != nil {
				return ferr
			}
			fetched = m
			return nil
		})
		if err != nil {
			if mailbox.IsAuthError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return e.finish(ctx, report, start), err
			}
			// Batch exhausted its retries: record its UIDs, queue them
			// for the next run, and keep going with the rest of the
			// mailbox.
			report.ErroredUIDs = append(report.ErroredUIDs, batch...)
			if qerr := e.store.AddPendingUIDs(ctx, batch); qerr != nil {
				log.Warn("queueing errored batch for retry failed", "error", qerr)
			}
			log.Warn("batch failed after retries",
				"first_uid", batch[0],
				"size", len(batch),
				"error", err,
			)
			continue
		}

		msgs := make([]model.Message, 0, len(batch))
		for _, uid := range batch {
			raw, ok := fetched[uid]
			if !ok {
				// Listed but gone: deleted by another client
				// between SEARCH and FETCH.
				report.Skipped++
				continue
			}
			msgs = append(msgs, ParseMessage(uid, raw.Header, raw.Size))
		}
		report.Fetched += len(msgs)

		inserted, err := e.store.UpsertBatch(ctx, msgs)
		if err != nil {
			// Local storage failure is fatal; previously committed
			// batches survive.
			return e.finish(ctx, report, start), fmt.Errorf("storing batch: %w", err)
		}
		report.NewStored += inserted
		report.AlreadyExisted += len(msgs) - inserted

		if err := e.store.RemovePendingUIDs(ctx, batch); err != nil {
			log.Warn("clearing retry queue entries failed", "error", err)
		}

		log.Debug("batch committed",
			"first_uid", batch[0],
			"fetched", len(msgs),
			"new", inserted,
		)
	}

	return e.finish(ctx, report, start), nil
}

// finish stamps the duration and records the run in the history table.
func (e *Engine) finish(ctx context.Context, report *Report, start time.Time) *Report {
	report.Duration = time.Since(start)

	run := model.SyncRun{
		ID:         report.RunID,
		Mode:       string(report.Mode),
		StartedAt:  start,
		FinishedAt: start.Add(report.Duration),
		Fetched:    report.Fetched,
		NewStored:  report.NewStored,
		Skipped:    report.Skipped,
		Errored:    report.Errored(),
	}
	// History only; losing a row here must not fail the sync.
	if err := e.store.RecordSyncRun(context.WithoutCancel(ctx), run); err != nil {
		e.opts.Logger.Warn("recording sync run failed", "error", err)
	}

	return report
}
