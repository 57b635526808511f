package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ordo-todo/ordo-core/internal/api"
	"github.com/ordo-todo/ordo-core/internal/engine"
	"github.com/ordo-todo/ordo-core/internal/queue"
	"github.com/ordo-todo/ordo-core/internal/record"
	"github.com/ordo-todo/ordo-core/internal/store"
)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ordo_test.db")
	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	q := queue.New(st.RawDB(), nil)
	st.SetQueue(q)

	// No token is set, so the engine never reaches out.
	client := api.NewClient("http://localhost:1", "", time.Second, nil)
	eng, err := engine.New(st, q, client, nil, engine.Options{}, nil)
	if err != nil {
		t.Fatalf("Failed to build engine: %v", err)
	}

	srv := NewServer(st, eng, &Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	eng.SetPublisher(srv)
	return srv, st
}

func call(t *testing.T, s *Server, id int64, method string, params any) Response {
	t.Helper()
	var raw json.RawMessage
	if params != nil {
		var err error
		raw, err = json.Marshal(params)
		if err != nil {
			t.Fatalf("Failed to marshal params: %v", err)
		}
	}
	return s.dispatch(context.Background(), Request{ID: id, Method: method, Params: raw})
}

func TestDispatch_WorkspaceLifecycle(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, 1, "db:workspace:create", record.WorkspaceFields{Name: "Personal"})
	if !resp.OK || resp.ID != 1 {
		t.Fatalf("Create failed: %+v", resp)
	}
	var w record.Workspace
	if err := json.Unmarshal(resp.Result, &w); err != nil {
		t.Fatalf("Failed to decode workspace: %v", err)
	}
	if w.ID == "" || w.Name != "Personal" {
		t.Errorf("Unexpected workspace: %+v", w)
	}

	resp = call(t, s, 2, "db:workspace:get", map[string]string{"id": w.ID})
	if !resp.OK {
		t.Fatalf("Get failed: %+v", resp)
	}

	resp = call(t, s, 3, "db:workspace:update", map[string]any{
		"id": w.ID, "patch": map[string]string{"name": "Renamed"},
	})
	if !resp.OK {
		t.Fatalf("Update failed: %+v", resp)
	}
	json.Unmarshal(resp.Result, &w)
	if w.Name != "Renamed" {
		t.Errorf("Expected renamed workspace, got %q", w.Name)
	}

	resp = call(t, s, 4, "db:workspace:delete", map[string]string{"id": w.ID})
	if !resp.OK {
		t.Fatalf("Delete failed: %+v", resp)
	}

	// Soft-deleted records answer with a null result, not an error.
	resp = call(t, s, 5, "db:workspace:get", map[string]string{"id": w.ID})
	if !resp.OK || resp.Result != nil {
		t.Errorf("Expected null result for missing record, got %+v", resp)
	}
}

func TestDispatch_TaskTags(t *testing.T) {
	s, st := newTestServer(t)
	ctx := context.Background()

	w, err := st.CreateWorkspace(ctx, record.WorkspaceFields{Name: "Test"})
	if err != nil {
		t.Fatalf("CreateWorkspace failed: %v", err)
	}
	task, err := st.CreateTask(ctx, record.TaskFields{WorkspaceID: w.ID, Title: "Tagged"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	resp := call(t, s, 1, "db:tag:create", record.TagFields{WorkspaceID: w.ID, Name: "urgent"})
	if !resp.OK {
		t.Fatalf("Tag create failed: %+v", resp)
	}
	var tag record.Tag
	json.Unmarshal(resp.Result, &tag)

	resp = call(t, s, 2, "db:task:attachTag", map[string]string{"task_id": task.ID, "tag_id": tag.ID})
	if !resp.OK {
		t.Fatalf("Attach failed: %+v", resp)
	}

	resp = call(t, s, 3, "db:task:getTags", map[string]string{"id": task.ID})
	if !resp.OK {
		t.Fatalf("getTags failed: %+v", resp)
	}
	var tags []record.Tag
	json.Unmarshal(resp.Result, &tags)
	if len(tags) != 1 || tags[0].Name != "urgent" {
		t.Errorf("Expected one attached tag, got %+v", tags)
	}
}

func TestDispatch_Errors(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, 1, "db:nothing:bogus", nil)
	if resp.OK || resp.Error == "" {
		t.Errorf("Expected error for unknown method, got %+v", resp)
	}

	resp = s.dispatch(context.Background(), Request{
		ID: 2, Method: "db:task:create", Params: json.RawMessage(`{not json`),
	})
	if resp.OK {
		t.Errorf("Expected error for malformed params, got %+v", resp)
	}

	resp = call(t, s, 3, "db:task:create", record.TaskFields{Title: "No workspace"})
	if resp.OK {
		t.Errorf("Expected validation error, got %+v", resp)
	}
}

func TestDispatch_SyncState(t *testing.T) {
	s, _ := newTestServer(t)

	resp := call(t, s, 1, "sync:getState", nil)
	if !resp.OK {
		t.Fatalf("getState failed: %+v", resp)
	}
	var state engine.State
	if err := json.Unmarshal(resp.Result, &state); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if state.Status != engine.StatusIdle {
		t.Errorf("Expected idle engine, got %+v", state)
	}
}

func TestWebSocket_RequestResponse(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { s.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+s.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// First frame is the unsolicited sync state event.
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Failed to decode event: %v", err)
	}
	if ev.Event != "sync:state-changed" {
		t.Errorf("Expected sync:state-changed greeting, got %q", ev.Event)
	}

	req, _ := json.Marshal(Request{ID: 7, Method: "db:workspace:list"})
	if err := conn.Write(ctx, websocket.MessageText, req); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.ID != 7 || !resp.OK {
		t.Errorf("Unexpected response: %+v", resp)
	}
}
