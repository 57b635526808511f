package queue

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ordo-todo/ordo-core/internal/record"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "queue_test.db")
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if _, err := conn.Exec(`
		CREATE TABLE sync_queue (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			operation TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt_at INTEGER,
			last_error TEXT,
			status TEXT NOT NULL DEFAULT 'pending'
		)`); err != nil {
		t.Fatalf("Failed to create sync_queue: %v", err)
	}
	return conn
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	return New(openTestDB(t), nil)
}

func mustEnqueue(t *testing.T, q *Queue, id string, op record.Operation, payload string) {
	t.Helper()
	if err := q.Enqueue(context.Background(), record.TypeTask, id, op, []byte(payload)); err != nil {
		t.Fatalf("Enqueue(%s, %s) failed: %v", id, op, err)
	}
}

func entriesFor(t *testing.T, q *Queue, id string) []Entry {
	t.Helper()
	entries, err := q.EntriesForEntity(context.Background(), record.TypeTask, id)
	if err != nil {
		t.Fatalf("EntriesForEntity failed: %v", err)
	}
	return entries
}

func TestEnqueue_CreateUpdateUpdateCoalesces(t *testing.T) {
	q := newTestQueue(t)

	mustEnqueue(t, q, "t1", record.OpCreate, `{"title":"v1"}`)
	mustEnqueue(t, q, "t1", record.OpUpdate, `{"title":"v2"}`)
	mustEnqueue(t, q, "t1", record.OpUpdate, `{"title":"v3"}`)

	entries := entriesFor(t, q, "t1")
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Operation != record.OpCreate {
		t.Errorf("Expected operation create, got %s", entries[0].Operation)
	}
	if string(entries[0].Payload) != `{"title":"v3"}` {
		t.Errorf("Expected last update's payload, got %s", entries[0].Payload)
	}
}

func TestEnqueue_CreateDeleteCancels(t *testing.T) {
	q := newTestQueue(t)

	mustEnqueue(t, q, "t1", record.OpCreate, `{"title":"v1"}`)
	mustEnqueue(t, q, "t1", record.OpDelete, `{"title":"v1"}`)

	if entries := entriesFor(t, q, "t1"); len(entries) != 0 {
		t.Fatalf("Expected 0 entries after create+delete, got %d", len(entries))
	}
}

func TestEnqueue_UpdateDeleteBecomesDelete(t *testing.T) {
	q := newTestQueue(t)

	mustEnqueue(t, q, "t1", record.OpUpdate, `{"title":"v1"}`)
	mustEnqueue(t, q, "t1", record.OpDelete, `{"title":"v1","is_deleted":true}`)

	entries := entriesFor(t, q, "t1")
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Operation != record.OpDelete {
		t.Errorf("Expected operation delete, got %s", entries[0].Operation)
	}
}

func TestEnqueue_ProcessingEntriesNotCoalesced(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	mustEnqueue(t, q, "t1", record.OpCreate, `{"title":"v1"}`)
	batch, err := q.NextBatch(ctx, 0, 10)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if err := q.MarkProcessing(ctx, batch[0].ID); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	// An edit landing mid-push gets its own entry.
	mustEnqueue(t, q, "t1", record.OpUpdate, `{"title":"v2"}`)

	entries := entriesFor(t, q, "t1")
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries (processing + pending), got %d", len(entries))
	}
}

func TestEnqueue_DeleteAfterSyncedCreate(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	// Create pushed and completed: nothing pending remains.
	mustEnqueue(t, q, "t1", record.OpCreate, `{"title":"v1"}`)
	batch, _ := q.NextBatch(ctx, 0, 10)
	if err := q.Complete(ctx, batch[0].ID); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	// A later delete must reach the server, not cancel out.
	mustEnqueue(t, q, "t1", record.OpDelete, `{"is_deleted":true}`)

	entries := entriesFor(t, q, "t1")
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	if entries[0].Operation != record.OpDelete {
		t.Errorf("Expected operation delete, got %s", entries[0].Operation)
	}
}

func TestNextBatch_FIFOAndLimit(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	mustEnqueue(t, q, "a", record.OpCreate, `{}`)
	mustEnqueue(t, q, "b", record.OpCreate, `{}`)
	mustEnqueue(t, q, "c", record.OpCreate, `{}`)

	batch, err := q.NextBatch(ctx, 0, 2)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(batch))
	}
	if batch[0].EntityID != "a" || batch[1].EntityID != "b" {
		t.Errorf("Expected FIFO order a, b; got %s, %s", batch[0].EntityID, batch[1].EntityID)
	}
}

func TestNextBatch_AfterIDExcludesEarlierEntries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	mustEnqueue(t, q, "a", record.OpCreate, `{}`)
	mustEnqueue(t, q, "b", record.OpCreate, `{}`)
	mustEnqueue(t, q, "c", record.OpCreate, `{}`)

	first, err := q.NextBatch(ctx, 0, 2)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}

	// Entries up to the cursor stay out of the next batch even while still
	// pending, so a drain loop cannot revisit a failed entry mid-cycle.
	rest, err := q.NextBatch(ctx, first[len(first)-1].ID, 10)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(rest) != 1 || rest[0].EntityID != "c" {
		t.Fatalf("Expected only entry c past the cursor, got %d entries", len(rest))
	}
}

func TestFail_RetryUntilCap(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	mustEnqueue(t, q, "t1", record.OpCreate, `{}`)
	batch, _ := q.NextBatch(ctx, 0, 1)
	id := batch[0].ID

	for i := 1; i <= 5; i++ {
		if err := q.MarkProcessing(ctx, id); err != nil {
			t.Fatalf("MarkProcessing failed: %v", err)
		}
		parked, err := q.Fail(ctx, id, "http 500", 5)
		if err != nil {
			t.Fatalf("Fail #%d failed: %v", i, err)
		}
		if i < 5 && parked {
			t.Errorf("Attempt %d should not park the entry", i)
		}
		if i == 5 && !parked {
			t.Error("Attempt 5 should park the entry as failed")
		}
	}

	// Failed entries are excluded from the next drain batch.
	batch, err := q.NextBatch(ctx, 0, 10)
	if err != nil {
		t.Fatalf("NextBatch failed: %v", err)
	}
	if len(batch) != 0 {
		t.Errorf("Expected empty batch, got %d entries", len(batch))
	}

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Failed != 1 || stats.Pending != 0 {
		t.Errorf("Expected failed=1 pending=0, got failed=%d pending=%d", stats.Failed, stats.Pending)
	}

	entries := entriesFor(t, q, "t1")
	if entries[0].Attempts != 5 {
		t.Errorf("Expected 5 attempts, got %d", entries[0].Attempts)
	}
	if entries[0].LastError != "http 500" {
		t.Errorf("Expected recorded error, got %q", entries[0].LastError)
	}
	if entries[0].LastAttemptAt == nil {
		t.Error("Expected last_attempt_at stamped")
	}
}

func TestResetFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	mustEnqueue(t, q, "t1", record.OpCreate, `{}`)
	batch, _ := q.NextBatch(ctx, 0, 1)
	if _, err := q.Fail(ctx, batch[0].ID, "boom", 1); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	n, err := q.ResetFailed(ctx)
	if err != nil {
		t.Fatalf("ResetFailed failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 reset, got %d", n)
	}

	batch, _ = q.NextBatch(ctx, 0, 10)
	if len(batch) != 1 {
		t.Fatalf("Expected entry back in drain batch, got %d", len(batch))
	}
	if batch[0].Attempts != 0 {
		t.Errorf("Expected attempts reset to 0, got %d", batch[0].Attempts)
	}
}

func TestStats(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	mustEnqueue(t, q, "a", record.OpCreate, `{}`)
	mustEnqueue(t, q, "b", record.OpCreate, `{}`)

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Pending != 2 || stats.Processing != 0 || stats.Failed != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
