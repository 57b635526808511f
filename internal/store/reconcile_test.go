package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ordo-todo/ordo-core/internal/record"
)

func remoteTask(t *testing.T, id, workspaceID, title string, updatedAt int64) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":           id,
		"workspace_id": workspaceID,
		"title":        title,
		"status":       "pending",
		"priority":     "medium",
		"created_at":   updatedAt,
		"updated_at":   updatedAt,
	})
	if err != nil {
		t.Fatalf("Failed to build remote record: %v", err)
	}
	return raw
}

func TestReconcile_InsertsMissing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)

	res, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{
		remoteTask(t, "r1", w.ID, "From server", 1000),
	})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}
	if res.Applied != 1 || res.Conflicts != 0 {
		t.Fatalf("Expected 1 applied, got %+v", res)
	}

	got, err := s.GetTask(ctx, "r1")
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if !got.IsSynced || got.SyncStatus != record.SyncSynced {
		t.Errorf("Pulled record must be marked synced, got %+v", got.Envelope)
	}
	if got.ServerUpdatedAt == nil || *got.ServerUpdatedAt != 1000 {
		t.Error("Expected serverUpdatedAt stamped from remote updatedAt")
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	rec := remoteTask(t, "r1", w.ID, "From server", 1000)

	if _, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{rec}); err != nil {
		t.Fatalf("First reconcile failed: %v", err)
	}
	first, _ := s.GetTask(ctx, "r1")

	if _, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{rec}); err != nil {
		t.Fatalf("Second reconcile failed: %v", err)
	}
	second, _ := s.GetTask(ctx, "r1")

	if first.SyncStatus != second.SyncStatus || first.Title != second.Title ||
		first.LocalUpdatedAt != second.LocalUpdatedAt {
		t.Errorf("Reapplying an unchanged record must be a no-op: %+v vs %+v", first, second)
	}
}

func TestReconcile_OverwritesOlderLocal(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	task := createTestTask(t, s, w.ID, "Local title")

	remote := remoteTask(t, task.ID, w.ID, "Remote title", task.LocalUpdatedAt+5000)
	res, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{remote})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("Expected overwrite, got %+v", res)
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.Title != "Remote title" {
		t.Errorf("Expected remote fields applied, got %q", got.Title)
	}
	if !got.IsSynced || got.SyncStatus != record.SyncSynced {
		t.Error("Overwritten row must be marked synced")
	}
}

func TestReconcile_ConflictPreservesLocal(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	task := createTestTask(t, s, w.ID, "Local wins")

	// Remote copy is older than the unsynced local edit.
	remote := remoteTask(t, task.ID, w.ID, "Stale remote", task.LocalUpdatedAt-5000)
	res, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{remote})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}
	if res.Conflicts != 1 || res.Applied != 0 {
		t.Fatalf("Expected 1 conflict, got %+v", res)
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.Title != "Local wins" {
		t.Errorf("Conflict must not overwrite local fields, got %q", got.Title)
	}
	if got.SyncStatus != record.SyncConflict {
		t.Errorf("Expected conflict status, got %s", got.SyncStatus)
	}
}

func TestReconcile_RemoteTombstoneDeletes(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)

	rec := remoteTask(t, "r1", w.ID, "Doomed", 1000)
	if _, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{rec}); err != nil {
		t.Fatalf("Insert reconcile failed: %v", err)
	}

	tombstone, _ := json.Marshal(map[string]any{
		"id":         "r1",
		"updated_at": int64(2000),
		"is_deleted": true,
	})
	res, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{tombstone})
	if err != nil {
		t.Fatalf("Tombstone reconcile failed: %v", err)
	}
	if res.Deleted != 1 {
		t.Fatalf("Expected 1 deleted, got %+v", res)
	}
	if _, err := s.getTaskAny(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected row removed, got %v", err)
	}
}

func TestReconcile_PreservesTagAssignments(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	task := createTestTask(t, s, w.ID, "Tagged")
	tag, err := s.CreateTag(ctx, record.TagFields{WorkspaceID: w.ID, Name: "urgent"})
	if err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	if err := s.AttachTag(ctx, task.ID, tag.ID); err != nil {
		t.Fatalf("AttachTag failed: %v", err)
	}
	if err := s.MarkSynced(ctx, record.TypeTask, task.ID, task.LocalUpdatedAt, task.LocalUpdatedAt); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	// A pulled update without a tags field must update the row in place;
	// rewriting it would cascade through task_tags.
	remote := remoteTask(t, task.ID, w.ID, "Tagged v2", task.LocalUpdatedAt+5000)
	res, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{remote})
	if err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}
	if res.Applied != 1 {
		t.Fatalf("Expected overwrite, got %+v", res)
	}

	got, _ := s.GetTask(ctx, task.ID)
	if got.Title != "Tagged v2" {
		t.Errorf("Expected remote fields applied, got %q", got.Title)
	}
	tags, err := s.GetTagsForTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTagsForTask failed: %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("Tag assignment lost after reconcile: got %d tags, want 1", len(tags))
	}
}

func TestReconcile_AppliesRemoteTagAssignments(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	tag, err := s.CreateTag(ctx, record.TagFields{WorkspaceID: w.ID, Name: "urgent"})
	if err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}

	withTags := func(updatedAt int64, tags any) json.RawMessage {
		m := map[string]any{
			"id":           "r1",
			"workspace_id": w.ID,
			"title":        "From server",
			"status":       "pending",
			"priority":     "medium",
			"created_at":   updatedAt,
			"updated_at":   updatedAt,
		}
		if tags != nil {
			m["tags"] = tags
		}
		raw, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("Failed to build remote record: %v", err)
		}
		return raw
	}

	// Assignments naming locally unknown tags are skipped, not an error.
	rec := withTags(1000, []string{tag.ID, "no-such-tag"})
	if _, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{rec}); err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}
	tags, err := s.GetTagsForTask(ctx, "r1")
	if err != nil {
		t.Fatalf("GetTagsForTask failed: %v", err)
	}
	if len(tags) != 1 || tags[0].ID != tag.ID {
		t.Fatalf("Expected the known tag assigned, got %+v", tags)
	}

	// A newer record without a tags field leaves assignments alone.
	if _, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{withTags(2000, nil)}); err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}
	tags, _ = s.GetTagsForTask(ctx, "r1")
	if len(tags) != 1 {
		t.Fatalf("Absent tags field must not touch assignments, got %d", len(tags))
	}

	// An explicit empty list clears them.
	if _, err := s.ReconcileBatch(ctx, record.TypeTask, []json.RawMessage{withTags(3000, []string{})}); err != nil {
		t.Fatalf("ReconcileBatch failed: %v", err)
	}
	tags, _ = s.GetTagsForTask(ctx, "r1")
	if len(tags) != 0 {
		t.Errorf("Expected assignments cleared, got %d", len(tags))
	}
}

func TestMarkSynced_GuardsNewerEdits(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	task := createTestTask(t, s, w.ID, "In flight")

	// Acknowledge the snapshot that was pushed.
	if err := s.MarkSynced(ctx, record.TypeTask, task.ID, 9999, task.LocalUpdatedAt); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}
	got, _ := s.GetTask(ctx, task.ID)
	if !got.IsSynced {
		t.Fatal("Expected row synced after acknowledgement")
	}

	// Simulate an edit newer than the pushed snapshot, then a late ack.
	title := "Edited during push"
	edited, err := s.UpdateTask(ctx, task.ID, record.TaskPatch{Title: &title})
	if err != nil {
		t.Fatalf("UpdateTask failed: %v", err)
	}
	if err := s.MarkSynced(ctx, record.TypeTask, task.ID, 10000, edited.LocalUpdatedAt-1); err != nil {
		t.Fatalf("MarkSynced failed: %v", err)
	}

	got, _ = s.GetTask(ctx, task.ID)
	if got.IsSynced {
		t.Error("Late acknowledgement must not mark a newer edit synced")
	}
}

func TestPurgeTombstone(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	w := createTestWorkspace(t, s)
	task := createTestTask(t, s, w.ID, "Bye")

	if err := s.DeleteTask(ctx, task.ID, true); err != nil {
		t.Fatalf("DeleteTask failed: %v", err)
	}
	if err := s.PurgeTombstone(ctx, record.TypeTask, task.ID); err != nil {
		t.Fatalf("PurgeTombstone failed: %v", err)
	}
	if _, err := s.getTaskAny(ctx, task.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected tombstone purged, got %v", err)
	}

	// Purging a live row is a no-op.
	live := createTestTask(t, s, w.ID, "Alive")
	if err := s.PurgeTombstone(ctx, record.TypeTask, live.ID); err != nil {
		t.Fatalf("PurgeTombstone failed: %v", err)
	}
	if _, err := s.GetTask(ctx, live.ID); err != nil {
		t.Errorf("Live row must survive purge: %v", err)
	}
}
