package api

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/ordo-todo/ordo-core/internal/record"
)

func TestToWire_Task(t *testing.T) {
	task := record.Task{
		Envelope: record.Envelope{
			ID:             "t1",
			CreatedAt:      1700000000000,
			UpdatedAt:      1700000001000,
			LocalUpdatedAt: 1700000002000,
			IsSynced:       false,
			SyncStatus:     record.SyncPending,
		},
		WorkspaceID: "ws-1",
		Title:       "Write report",
		Status:      record.TaskPending,
		Priority:    record.PriorityHigh,
		Position:    3,
		Tags:        []string{"tag-1"},
	}
	local, err := json.Marshal(task)
	if err != nil {
		t.Fatalf("Failed to marshal task: %v", err)
	}

	wire, err := ToWire(record.TypeTask, local)
	if err != nil {
		t.Fatalf("ToWire failed: %v", err)
	}

	var out map[string]any
	if err := json.Unmarshal(wire, &out); err != nil {
		t.Fatalf("Failed to decode wire record: %v", err)
	}

	if out["id"] != "t1" || out["workspaceId"] != "ws-1" || out["title"] != "Write report" {
		t.Errorf("Unexpected wire fields: %v", out)
	}
	if out["createdAt"] != "2023-11-14T22:13:20Z" {
		t.Errorf("Expected ISO createdAt, got %v", out["createdAt"])
	}
	for _, key := range []string{"local_updated_at", "localUpdatedAt", "server_updated_at", "is_synced", "isSynced", "sync_status", "syncStatus"} {
		if _, ok := out[key]; ok {
			t.Errorf("Bookkeeping field %s must not cross the wire", key)
		}
	}
	if _, ok := out["isDeleted"]; ok {
		t.Error("isDeleted is pull-only and must not be pushed")
	}
	if _, ok := out["dueDate"]; ok {
		t.Error("Absent optional fields must be skipped, got dueDate")
	}
	tags, ok := out["tags"].([]any)
	if !ok || len(tags) != 1 || tags[0] != "tag-1" {
		t.Errorf("Expected tag assignments on the wire, got %v", out["tags"])
	}
}

func TestFromWire_Task(t *testing.T) {
	wire := json.RawMessage(`{
		"id": "t1",
		"workspaceId": "ws-1",
		"title": "Write report",
		"status": "in_progress",
		"priority": "urgent",
		"dueDate": "2023-11-14T22:13:20Z",
		"createdAt": "2023-11-14T22:13:20Z",
		"updatedAt": "2023-11-14T22:13:21Z",
		"isDeleted": false,
		"tags": ["tag-1", "tag-2"],
		"assignee": "someone-else"
	}`)

	local, err := FromWire(record.TypeTask, wire)
	if err != nil {
		t.Fatalf("FromWire failed: %v", err)
	}

	var task record.Task
	if err := json.Unmarshal(local, &task); err != nil {
		t.Fatalf("Failed to decode local record: %v", err)
	}
	if task.ID != "t1" || task.WorkspaceID != "ws-1" || task.Status != record.TaskInProgress {
		t.Errorf("Unexpected local fields: %+v", task)
	}
	if task.DueDate == nil || *task.DueDate != 1700000000000 {
		t.Errorf("Expected due_date as epoch millis, got %v", task.DueDate)
	}
	if task.UpdatedAt != 1700000001000 {
		t.Errorf("Expected updated_at 1700000001000, got %d", task.UpdatedAt)
	}
	if len(task.Tags) != 2 || task.Tags[0] != "tag-1" {
		t.Errorf("Expected tag assignments translated, got %v", task.Tags)
	}

	var raw map[string]any
	json.Unmarshal(local, &raw)
	if _, ok := raw["assignee"]; ok {
		t.Error("Unmapped wire keys must be ignored")
	}
}

func TestRoundTrip_Session(t *testing.T) {
	completed := int64(1700000005000)
	taskID := "t1"
	sess := record.PomodoroSession{
		Envelope: record.Envelope{
			ID:        "s1",
			CreatedAt: 1700000000000,
			UpdatedAt: 1700000001000,
		},
		WorkspaceID:    "ws-1",
		TaskID:         &taskID,
		Type:           record.SessionFocus,
		Duration:       1500,
		StartedAt:      1700000000000,
		CompletedAt:    &completed,
		WasInterrupted: false,
		Notes:          "Deep work",
	}
	local, _ := json.Marshal(sess)

	wire, err := ToWire(record.TypeSession, local)
	if err != nil {
		t.Fatalf("ToWire failed: %v", err)
	}
	back, err := FromWire(record.TypeSession, wire)
	if err != nil {
		t.Fatalf("FromWire failed: %v", err)
	}

	var got record.PomodoroSession
	if err := json.Unmarshal(back, &got); err != nil {
		t.Fatalf("Failed to decode round-tripped session: %v", err)
	}
	if got.ID != sess.ID || got.Duration != sess.Duration || got.Notes != sess.Notes ||
		got.StartedAt != sess.StartedAt || got.Type != sess.Type {
		t.Errorf("Round trip changed fields: %+v vs %+v", got, sess)
	}
	if got.CompletedAt == nil || *got.CompletedAt != completed {
		t.Errorf("Round trip lost completed_at: %v", got.CompletedAt)
	}
	if got.TaskID == nil || *got.TaskID != taskID {
		t.Errorf("Round trip lost task_id: %v", got.TaskID)
	}
}

func TestToWire_BadTimestamp(t *testing.T) {
	local := json.RawMessage(`{"id": "t1", "created_at": "not-millis"}`)
	if _, err := ToWire(record.TypeTask, local); err == nil {
		t.Fatal("Expected error for non-numeric timestamp")
	}
}

func TestMappingFor_UnknownType(t *testing.T) {
	if _, err := MappingFor(record.EntityType("bogus")); err == nil {
		t.Fatal("Expected error for unknown entity type")
	}
}

// TestMappingCoversStructTags checks that every syncable JSON field on the
// record structs has a mapping entry, so a new struct field cannot silently
// stop syncing.
func TestMappingCoversStructTags(t *testing.T) {
	structs := map[record.EntityType]any{
		record.TypeWorkspace: record.Workspace{},
		record.TypeProject:   record.Project{},
		record.TypeTask:      record.Task{},
		record.TypeTag:       record.Tag{},
		record.TypeSubtask:   record.Subtask{},
		record.TypeComment:   record.Comment{},
		record.TypeSession:   record.PomodoroSession{},
	}

	for et, v := range structs {
		mapping, err := MappingFor(et)
		if err != nil {
			t.Fatalf("MappingFor(%s) failed: %v", et, err)
		}
		known := make(map[string]bool, len(mapping))
		for _, f := range mapping {
			known[f.Local] = true
		}
		for _, tag := range jsonTags(reflect.TypeOf(v)) {
			if !known[tag] {
				t.Errorf("%s: struct field %q has no mapping entry", et, tag)
			}
		}
	}
}

func jsonTags(rt reflect.Type) []string {
	var tags []string
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if f.Anonymous {
			tags = append(tags, jsonTags(f.Type)...)
			continue
		}
		tag := strings.Split(f.Tag.Get("json"), ",")[0]
		if tag != "" && tag != "-" {
			tags = append(tags, tag)
		}
	}
	return tags
}
