package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ordo-todo/ordo-core/internal/record"
)

func newTestClient(t *testing.T, handler http.Handler, minVersion string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, minVersion, 5*time.Second, nil)
	c.SetToken("test-token")
	return c
}

func TestCreate_SendsWireFormatAndReturnsStamp(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"id": "t1", "updatedAt": "2023-11-14T22:13:20Z"}`))
	}), "")

	local := json.RawMessage(`{"id": "t1", "workspace_id": "ws-1", "title": "Hi", "created_at": 1700000000000, "updated_at": 1700000000000, "local_updated_at": 1700000000000, "is_synced": false, "sync_status": "pending"}`)
	stamp, err := c.Create(context.Background(), record.TypeTask, local)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if stamp != 1700000000000 {
		t.Errorf("Expected server stamp 1700000000000, got %d", stamp)
	}
	if gotPath != "/tasks" {
		t.Errorf("Expected POST /tasks, got %s", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Expected bearer token header, got %q", gotAuth)
	}
	if gotBody["workspaceId"] != "ws-1" {
		t.Errorf("Expected camelCase body, got %v", gotBody)
	}
	if _, ok := gotBody["sync_status"]; ok {
		t.Error("Bookkeeping fields must not be sent")
	}
}

func TestCreate_MissingStampFallsBackToNow(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "t1"}`))
	}), "")

	before := record.NowMillis()
	stamp, err := c.Create(context.Background(), record.TypeTask, json.RawMessage(`{"id": "t1"}`))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if stamp < before || stamp > record.NowMillis() {
		t.Errorf("Expected local-time fallback, got %d", stamp)
	}
}

func TestDelete_NotFoundIsSuccess(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}), "")

	if err := c.Delete(context.Background(), record.TypeTask, "t1"); err != nil {
		t.Fatalf("Expected 404 to count as success, got %v", err)
	}
}

func TestDelete_ServerErrorSurfaces(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}), "")

	err := c.Delete(context.Background(), record.TypeTask, "t1")
	apiErr, ok := err.(*Error)
	if !ok || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("Expected api error with status 500, got %v", err)
	}
}

func TestPull_QueryAndTranslation(t *testing.T) {
	var gotSince string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSince = r.URL.Query().Get("updatedSince")
		w.Write([]byte(`[{"id": "t1", "workspaceId": "ws-1", "title": "Pulled", "updatedAt": "2023-11-14T22:13:20Z"}]`))
	}), "")

	recs, err := c.Pull(context.Background(), record.TypeTask, 1700000000000)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if gotSince != "2023-11-14T22:13:20Z" {
		t.Errorf("Expected updatedSince query param, got %q", gotSince)
	}
	if len(recs) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(recs))
	}

	var task record.Task
	if err := json.Unmarshal(recs[0], &task); err != nil {
		t.Fatalf("Failed to decode pulled record: %v", err)
	}
	if task.ID != "t1" || task.WorkspaceID != "ws-1" || task.UpdatedAt != 1700000000000 {
		t.Errorf("Unexpected translated record: %+v", task)
	}
}

func TestPull_ZeroSinceOmitsQuery(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[]`))
	}), "")

	if _, err := c.Pull(context.Background(), record.TypeTask, 0); err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if gotQuery != "" {
		t.Errorf("Expected no query params for initial pull, got %q", gotQuery)
	}
}

func TestHealth_VersionGate(t *testing.T) {
	tests := []struct {
		name       string
		version    string
		minVersion string
		wantErr    bool
	}{
		{"newer passes", "2.1.0", "2.0.0", false},
		{"equal passes", "2.0.0", "2.0.0", false},
		{"older rejected", "1.9.0", "2.0.0", true},
		{"no gate configured", "0.1.0", "", false},
		{"unparseable skips gate", "latest", "2.0.0", false},
		{"missing version skips gate", "", "2.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.version == "" {
					w.Write([]byte(`{"status": "ok"}`))
					return
				}
				json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": tt.version})
			}), tt.minVersion)

			err := c.Health(context.Background())
			if tt.wantErr && err == nil {
				t.Error("Expected version gate error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Expected health check to pass: %v", err)
			}
		})
	}
}

func TestError_TruncatesLongBody(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &Error{StatusCode: 400, Body: string(long)}
	if len(err.Error()) > 250 {
		t.Errorf("Expected truncated message, got %d chars", len(err.Error()))
	}
}
