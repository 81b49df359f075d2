package query

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Prajwalprakash3722/imapCleanup/internal/model"
	"github.com/Prajwalprakash3722/imapCleanup/internal/store"
)

func newTestSurface(t *testing.T) (*Surface, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s), s
}

func seed(t *testing.T, s *store.SQLiteStore, sender string, startUID uint32, count int, size int64) {
	t.Helper()
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	var batch []model.Message
	for i := 0; i < count; i++ {
		batch = append(batch, model.Message{
			UID:         startUID + uint32(i),
			SenderEmail: sender,
			Subject:     "hello",
			DateParsed:  &date,
			SizeBytes:   size,
		})
	}
	if _, err := s.UpsertBatch(context.Background(), batch); err != nil {
		t.Fatalf("seeding: %v", err)
	}
}

func TestStats(t *testing.T) {
	surface, s := newTestSurface(t)
	ctx := context.Background()

	stats, err := surface.Stats(ctx)
	if err != nil {
		t.Fatalf("stats on empty store: %v", err)
	}
	if stats.Count != 0 || stats.Oldest.Valid {
		t.Fatalf("empty stats = %+v", stats)
	}
	if stats.LastRun != nil {
		t.Fatalf("last run = %+v, want nil", stats.LastRun)
	}

	seed(t, s, "a@example.com", 1, 3, 1000)
	if err := s.RecordSyncRun(ctx, model.SyncRun{
		ID:         "run-1",
		Mode:       "full",
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		Fetched:    3,
		NewStored:  3,
	}); err != nil {
		t.Fatalf("recording run: %v", err)
	}

	stats, err = surface.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Count != 3 || stats.TotalSize != 3000 {
		t.Fatalf("count/size = %d/%d, want 3/3000", stats.Count, stats.TotalSize)
	}
	if !stats.Oldest.Valid || !stats.Newest.Valid {
		t.Fatal("date range must be populated")
	}
	if stats.LastRun == nil || stats.LastRun.ID != "run-1" {
		t.Fatalf("last run = %+v, want run-1", stats.LastRun)
	}
}

func TestTopSenders(t *testing.T) {
	surface, s := newTestSurface(t)
	ctx := context.Background()

	// Many small messages from one sender, few large from another.
	seed(t, s, "chatty@example.com", 1, 10, 1000)
	seed(t, s, "heavy@example.com", 100, 2, 20_000_000)

	byCount, err := surface.TopSendersByCount(ctx, 5)
	if err != nil {
		t.Fatalf("by count: %v", err)
	}
	if len(byCount) != 2 || byCount[0].SenderEmail != "chatty@example.com" || byCount[0].Count != 10 {
		t.Fatalf("by count = %+v, want chatty first", byCount)
	}

	bySize, err := surface.TopSendersBySize(ctx, 5)
	if err != nil {
		t.Fatalf("by size: %v", err)
	}
	if len(bySize) != 2 || bySize[0].SenderEmail != "heavy@example.com" {
		t.Fatalf("by size = %+v, want heavy first", bySize)
	}
	if bySize[0].SizeMB < 38 || bySize[0].SizeMB > 39 {
		t.Fatalf("size mb = %f, want about 38.1", bySize[0].SizeMB)
	}

	limited, err := surface.TopSendersByCount(ctx, 1)
	if err != nil {
		t.Fatalf("limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limit ignored: %d rows", len(limited))
	}
}

func TestNewsletters(t *testing.T) {
	surface, s := newTestSurface(t)
	ctx := context.Background()

	seed(t, s, "noreply@shop.example", 1, 4, 1000)
	seed(t, s, "news@paper.example", 10, 2, 1000)
	seed(t, s, "friend@example.com", 20, 6, 1000)

	rows, err := surface.Newsletters(ctx, 10)
	if err != nil {
		t.Fatalf("newsletters: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %+v, want the two automated senders", rows)
	}
	for _, row := range rows {
		if row.SenderEmail == "friend@example.com" {
			t.Fatal("personal sender classified as newsletter")
		}
	}
}

func TestExec(t *testing.T) {
	surface, s := newTestSurface(t)
	ctx := context.Background()
	seed(t, s, "a@example.com", 1, 2, 500)

	rs, err := surface.Exec(ctx, "SELECT COUNT(*) AS n FROM emails")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if len(rs.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rs.Rows))
	}

	if _, err := surface.Exec(ctx, "UPDATE emails SET subject = 'x'"); err == nil {
		t.Fatal("write statement must be rejected")
	}
}
