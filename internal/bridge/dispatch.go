package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ordo-todo/ordo-core/internal/record"
	"github.com/ordo-todo/ordo-core/internal/store"
)

type idParams struct {
	ID   string `json:"id"`
	Soft *bool  `json:"soft,omitempty"`
}

type parentParams struct {
	ID string `json:"id"`
}

func ok(id int64, v any) Response {
	if v == nil {
		return Response{ID: id, OK: true}
	}
	result, err := json.Marshal(v)
	if err != nil {
		return Response{ID: id, Error: fmt.Sprintf("failed to encode result: %v", err)}
	}
	return Response{ID: id, OK: true, Result: result}
}

func fail(id int64, err error) Response {
	return Response{ID: id, Error: err.Error()}
}

// dispatch routes one request frame. db:* methods hit the store, sync:*
// methods hit the engine; anything else is rejected.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	v, err := s.handle(ctx, req.Method, req.Params)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Missing records answer with a null result, not an error.
			return ok(req.ID, nil)
		}
		return fail(req.ID, err)
	}
	return ok(req.ID, v)
}

func (s *Server) handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {

	// Workspaces
	case "db:workspace:create":
		var f record.WorkspaceFields
		if err := json.Unmarshal(params, &f); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.CreateWorkspace(ctx, f)
	case "db:workspace:get":
		var p idParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetWorkspace(ctx, p.ID)
	case "db:workspace:list":
		return s.store.ListWorkspaces(ctx)
	case "db:workspace:update":
		var p struct {
			ID    string                `json:"id"`
			Patch record.WorkspacePatch `json:"patch"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.UpdateWorkspace(ctx, p.ID, p.Patch)
	case "db:workspace:delete":
		return s.doDelete(ctx, params, s.store.DeleteWorkspace)

	// Projects
	case "db:project:create":
		var f record.ProjectFields
		if err := json.Unmarshal(params, &f); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.CreateProject(ctx, f)
	case "db:project:get":
		var p idParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetProject(ctx, p.ID)
	case "db:project:getByWorkspace":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetProjectsByWorkspace(ctx, p.ID)
	case "db:project:update":
		var p struct {
			ID    string              `json:"id"`
			Patch record.ProjectPatch `json:"patch"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.UpdateProject(ctx, p.ID, p.Patch)
	case "db:project:delete":
		return s.doDelete(ctx, params, s.store.DeleteProject)

	// Tasks
	case "db:task:create":
		var f record.TaskFields
		if err := json.Unmarshal(params, &f); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.CreateTask(ctx, f)
	case "db:task:get":
		var p idParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetTask(ctx, p.ID)
	case "db:task:getByWorkspace":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetTasksByWorkspace(ctx, p.ID)
	case "db:task:getByProject":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetTasksByProject(ctx, p.ID)
	case "db:task:getByParent":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetTasksByParent(ctx, p.ID)
	case "db:task:getByStatus":
		var p struct {
			WorkspaceID string            `json:"workspace_id"`
			Status      record.TaskStatus `json:"status"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetTasksByStatus(ctx, p.WorkspaceID, p.Status)
	case "db:task:update":
		var p struct {
			ID    string           `json:"id"`
			Patch record.TaskPatch `json:"patch"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.UpdateTask(ctx, p.ID, p.Patch)
	case "db:task:delete":
		return s.doDelete(ctx, params, s.store.DeleteTask)
	case "db:task:reorder":
		var p struct {
			IDs []string `json:"ids"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return nil, s.store.ReorderTasks(ctx, p.IDs)
	case "db:task:attachTag":
		var p struct {
			TaskID string `json:"task_id"`
			TagID  string `json:"tag_id"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return nil, s.store.AttachTag(ctx, p.TaskID, p.TagID)
	case "db:task:detachTag":
		var p struct {
			TaskID string `json:"task_id"`
			TagID  string `json:"tag_id"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return nil, s.store.DetachTag(ctx, p.TaskID, p.TagID)
	case "db:task:getTags":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetTagsForTask(ctx, p.ID)

	// Tags
	case "db:tag:create":
		var f record.TagFields
		if err := json.Unmarshal(params, &f); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.CreateTag(ctx, f)
	case "db:tag:get":
		var p idParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetTag(ctx, p.ID)
	case "db:tag:getByWorkspace":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetTagsByWorkspace(ctx, p.ID)
	case "db:tag:update":
		var p struct {
			ID    string          `json:"id"`
			Patch record.TagPatch `json:"patch"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.UpdateTag(ctx, p.ID, p.Patch)
	case "db:tag:delete":
		return s.doDelete(ctx, params, s.store.DeleteTag)

	// Subtasks
	case "db:subtask:create":
		var f record.SubtaskFields
		if err := json.Unmarshal(params, &f); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.CreateSubtask(ctx, f)
	case "db:subtask:get":
		var p idParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetSubtask(ctx, p.ID)
	case "db:subtask:getByTask":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetSubtasksByTask(ctx, p.ID)
	case "db:subtask:update":
		var p struct {
			ID    string              `json:"id"`
			Patch record.SubtaskPatch `json:"patch"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.UpdateSubtask(ctx, p.ID, p.Patch)
	case "db:subtask:delete":
		return s.doDelete(ctx, params, s.store.DeleteSubtask)

	// Comments
	case "db:comment:create":
		var f record.CommentFields
		if err := json.Unmarshal(params, &f); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.CreateComment(ctx, f)
	case "db:comment:get":
		var p idParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetComment(ctx, p.ID)
	case "db:comment:getByTask":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetCommentsByTask(ctx, p.ID)
	case "db:comment:update":
		var p struct {
			ID    string              `json:"id"`
			Patch record.CommentPatch `json:"patch"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.UpdateComment(ctx, p.ID, p.Patch)
	case "db:comment:delete":
		return s.doDelete(ctx, params, s.store.DeleteComment)

	// Pomodoro sessions
	case "db:session:create":
		var f record.SessionFields
		if err := json.Unmarshal(params, &f); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.CreateSession(ctx, f)
	case "db:session:get":
		var p idParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetSession(ctx, p.ID)
	case "db:session:getByWorkspace":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetSessionsByWorkspace(ctx, p.ID)
	case "db:session:getByTask":
		var p parentParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.GetSessionsByTask(ctx, p.ID)
	case "db:session:update":
		var p struct {
			ID    string              `json:"id"`
			Patch record.SessionPatch `json:"patch"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.UpdateSession(ctx, p.ID, p.Patch)
	case "db:session:complete":
		var p struct {
			ID          string `json:"id"`
			Interrupted bool   `json:"interrupted"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		return s.store.CompleteSession(ctx, p.ID, p.Interrupted)
	case "db:session:delete":
		return s.doDelete(ctx, params, s.store.DeleteSession)

	// Sync engine
	case "sync:setAuthToken":
		var p struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		s.engine.SetAuthToken(p.Token)
		return nil, nil
	case "sync:setOnlineStatus":
		var p struct {
			IsOnline bool `json:"isOnline"`
		}
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		s.engine.SetOnlineStatus(p.IsOnline)
		return nil, nil
	case "sync:startAuto":
		s.engine.StartAuto()
		return nil, nil
	case "sync:stopAuto":
		s.engine.StopAuto()
		return nil, nil
	case "sync:getState":
		return s.engine.State(), nil
	case "sync:force":
		return s.engine.Force(ctx), nil
	case "sync:getQueueStats":
		return s.engine.QueueStats(ctx)
	case "sync:resetFailed":
		n, err := s.engine.ResetFailed(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]int{"reset": n}, nil

	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

// doDelete decodes shared delete params and runs the given store delete.
// Soft defaults to true: hard deletes are an explicit opt-in.
func (s *Server) doDelete(ctx context.Context, params json.RawMessage, del func(context.Context, string, bool) error) (any, error) {
	var p idParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	soft := true
	if p.Soft != nil {
		soft = *p.Soft
	}
	if err := del(ctx, p.ID, soft); err != nil {
		return nil, err
	}
	return map[string]bool{"success": true}, nil
}
