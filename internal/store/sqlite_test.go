package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Prajwalprakash3722/imapCleanup/internal/model"
)

// newTestStore creates a store backed by a temp file with all migrations
// applied, closed automatically when the test completes.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

func testMessage(uid uint32, senderEmail string) model.Message {
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return model.Message{
		UID:         uid,
		MessageID:   "msg-id",
		SenderName:  "Sender",
		SenderEmail: senderEmail,
		SenderRaw:   "Sender <" + senderEmail + ">",
		Subject:     "hello",
		DateRaw:     "Fri, 1 Mar 2024 12:00:00 +0000",
		DateParsed:  &date,
		SizeBytes:   1024,
		HeadersRaw:  "From: Sender <" + senderEmail + ">\r\n\r\n",
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrate.db")

	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("closing: %v", err)
	}

	// Re-opening must re-run migrations without error or data loss.
	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer s2.Close()

	var version int
	if err := s2.db.Get(&version, "SELECT MAX(version) FROM schema_version"); err != nil {
		t.Fatalf("reading schema version: %v", err)
	}
	if want := migrations[len(migrations)-1].version; version != want {
		t.Fatalf("schema version = %d, want %d", version, want)
	}
}

func TestUpsertBatchIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []model.Message{
		testMessage(1, "a@example.com"),
		testMessage(2, "b@example.com"),
	}

	inserted, err := s.UpsertBatch(ctx, batch)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("inserted = %d, want 2", inserted)
	}

	// Re-submitting the same batch must not duplicate or overwrite.
	mutated := []model.Message{testMessage(1, "a@example.com"), testMessage(2, "b@example.com")}
	mutated[0].Subject = "changed"
	inserted, err = s.UpsertBatch(ctx, mutated)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("re-insert inserted = %d, want 0", inserted)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	var subject string
	if err := s.db.Get(&subject, "SELECT subject FROM emails WHERE uid = 1"); err != nil {
		t.Fatalf("reading subject: %v", err)
	}
	if subject != "hello" {
		t.Fatalf("subject = %q, want original %q", subject, "hello")
	}
}

func TestUpsertBatchNullDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := testMessage(7, "broken@example.com")
	m.DateParsed = nil
	m.DateRaw = "not a date"

	if _, err := s.UpsertBatch(ctx, []model.Message{m}); err != nil {
		t.Fatalf("upsert with nil date: %v", err)
	}

	rs, err := s.ExecuteReadOnly(ctx, "SELECT uid, date_parsed FROM emails WHERE uid = 7")
	if err != nil {
		t.Fatalf("querying: %v", err)
	}
	if len(rs.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rs.Rows))
	}
	if rs.Rows[0][1] != nil {
		t.Fatalf("date_parsed = %v, want NULL", rs.Rows[0][1])
	}
}

func TestMaxUID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.MaxUID(ctx)
	if err != nil {
		t.Fatalf("max uid on empty store: %v", err)
	}
	if ok {
		t.Fatal("expected no max uid on empty store")
	}

	if _, err := s.UpsertBatch(ctx, []model.Message{
		testMessage(5, "a@example.com"),
		testMessage(42, "b@example.com"),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	maxUID, ok, err := s.MaxUID(ctx)
	if err != nil {
		t.Fatalf("max uid: %v", err)
	}
	if !ok || maxUID != 42 {
		t.Fatalf("max uid = %d ok=%v, want 42 true", maxUID, ok)
	}
}

func TestMarkDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertBatch(ctx, []model.Message{
		testMessage(1, "a@example.com"),
		testMessage(2, "b@example.com"),
		testMessage(3, "c@example.com"),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.MarkDeleted(ctx, []uint32{1, 3}); err != nil {
		t.Fatalf("mark deleted: %v", err)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}

	dead, err := s.DeletedUIDs(ctx)
	if err != nil {
		t.Fatalf("deleted uids: %v", err)
	}
	if len(dead) != 2 {
		t.Fatalf("tombstones = %d, want 2", len(dead))
	}
	if _, ok := dead[1]; !ok {
		t.Fatal("uid 1 not tombstoned")
	}
	if _, ok := dead[2]; ok {
		t.Fatal("uid 2 should not be tombstoned")
	}
}

func TestPendingUIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	queued, err := s.PendingUIDs(ctx)
	if err != nil {
		t.Fatalf("pending on empty store: %v", err)
	}
	if len(queued) != 0 {
		t.Fatalf("queued = %d, want 0", len(queued))
	}

	if err := s.AddPendingUIDs(ctx, []uint32{4, 5, 6}); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Re-queueing an overlapping batch must not fail or duplicate.
	if err := s.AddPendingUIDs(ctx, []uint32{5, 6, 7}); err != nil {
		t.Fatalf("re-add: %v", err)
	}

	queued, err = s.PendingUIDs(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(queued) != 4 {
		t.Fatalf("queued = %d, want 4", len(queued))
	}

	if err := s.RemovePendingUIDs(ctx, []uint32{4, 5, 6}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	queued, _ = s.PendingUIDs(ctx)
	if len(queued) != 1 {
		t.Fatalf("queued = %d, want 1", len(queued))
	}
	if _, ok := queued[7]; !ok {
		t.Fatal("uid 7 must remain queued")
	}
}

func TestMatchSenders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var batch []model.Message
	for uid := uint32(1); uid <= 3; uid++ {
		batch = append(batch, testMessage(uid, "noreply@swiggy.in"))
	}
	for uid := uint32(4); uid <= 8; uid++ {
		batch = append(batch, testMessage(uid, "other@example.com"))
	}
	if _, err := s.UpsertBatch(ctx, batch); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	groups, err := s.MatchSenders(ctx, []string{"swiggy"})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(groups))
	}
	if groups[0].SenderEmail != "noreply@swiggy.in" || groups[0].Count != 3 {
		t.Fatalf("group = %+v, want noreply@swiggy.in count 3", groups[0])
	}
	if groups[0].TotalSize != 3*1024 {
		t.Fatalf("total size = %d, want %d", groups[0].TotalSize, 3*1024)
	}

	// Matching is case-insensitive over address and display name.
	groups, err = s.MatchSenders(ctx, []string{"SWIGGY"})
	if err != nil {
		t.Fatalf("match upper: %v", err)
	}
	if len(groups) != 1 || groups[0].Count != 3 {
		t.Fatalf("case-insensitive match failed: %+v", groups)
	}

	uids, err := s.MatchUIDs(ctx, []string{"swiggy"})
	if err != nil {
		t.Fatalf("match uids: %v", err)
	}
	if len(uids) != 3 {
		t.Fatalf("uids = %v, want 3 entries", uids)
	}
}

func TestMatchSendersEscapesLikeWildcards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertBatch(ctx, []model.Message{
		testMessage(1, "percent@example.com"),
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// A literal % must not act as a wildcard.
	groups, err := s.MatchSenders(ctx, []string{"%"})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(groups) != 0 {
		t.Fatalf("wildcard leaked: matched %d groups", len(groups))
	}
}

func TestSyncRunHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.LastSyncRun(ctx)
	if err != nil {
		t.Fatalf("last run on empty store: %v", err)
	}
	if run != nil {
		t.Fatalf("expected no run, got %+v", run)
	}

	started := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := s.RecordSyncRun(ctx, model.SyncRun{
		ID:         "run-1",
		Mode:       "incremental",
		StartedAt:  started,
		FinishedAt: started.Add(30 * time.Second),
		Fetched:    100,
		NewStored:  90,
		Skipped:    2,
		Errored:    8,
	}); err != nil {
		t.Fatalf("record run: %v", err)
	}

	run, err = s.LastSyncRun(ctx)
	if err != nil {
		t.Fatalf("last run: %v", err)
	}
	if run == nil || run.ID != "run-1" || run.Fetched != 100 {
		t.Fatalf("run = %+v, want run-1 with 100 fetched", run)
	}
	if run.Duration != 30*time.Second {
		t.Fatalf("duration = %v, want 30s", run.Duration)
	}
}
