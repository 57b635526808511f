package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ordo-todo/ordo-core/internal/record"
)

const taskCols = `id, workspace_id, project_id, parent_task_id, title, description,
	status, priority, due_date, estimated_pomodoros, completed_pomodoros,
	position, completed_at,
	created_at, updated_at, local_updated_at, server_updated_at,
	is_synced, sync_status, is_deleted`

func scanTask(row rowScanner) (*record.Task, error) {
	var t record.Task
	var projectID, parentTaskID sql.NullString
	var dueDate, completedAt, serverUpdatedAt sql.NullInt64
	var isSynced, isDeleted int
	var syncStatus string

	err := row.Scan(
		&t.ID, &t.WorkspaceID, &projectID, &parentTaskID, &t.Title, &t.Description,
		&t.Status, &t.Priority, &dueDate, &t.EstimatedPomodoros, &t.CompletedPomodoros,
		&t.Position, &completedAt,
		&t.CreatedAt, &t.UpdatedAt, &t.LocalUpdatedAt, &serverUpdatedAt,
		&isSynced, &syncStatus, &isDeleted,
	)
	if err != nil {
		return nil, err
	}

	t.ProjectID = strPtr(projectID)
	t.ParentTaskID = strPtr(parentTaskID)
	t.DueDate = i64Ptr(dueDate)
	t.CompletedAt = i64Ptr(completedAt)
	t.ServerUpdatedAt = i64Ptr(serverUpdatedAt)
	t.IsSynced = isSynced != 0
	t.SyncStatus = record.SyncStatus(syncStatus)
	t.IsDeleted = isDeleted != 0
	return &t, nil
}

// enqueueTask snapshots a task together with its current tag assignments
// and hands it to the sync queue. When the assignment read fails the
// snapshot goes out with nil tags so the remote list is left untouched.
func (s *Store) enqueueTask(ctx context.Context, op record.Operation, t *record.Task) {
	tags, err := s.taskTagIDs(ctx, t.ID)
	if err != nil {
		s.logger.Printf("Warning: %v", err)
		tags = nil
	}
	t.Tags = tags
	s.snapshotAndEnqueue(ctx, record.TypeTask, t.ID, op, t)
}

func scanTasks(rows *sql.Rows) ([]*record.Task, error) {
	var tasks []*record.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// CreateTask inserts a new task with a fresh envelope and enqueues a create
// mutation. Status defaults to pending and priority to medium when empty.
func (s *Store) CreateTask(ctx context.Context, f record.TaskFields) (*record.Task, error) {
	t := &record.Task{
		Envelope:           record.NewEnvelope(),
		WorkspaceID:        f.WorkspaceID,
		ProjectID:          f.ProjectID,
		ParentTaskID:       f.ParentTaskID,
		Title:              f.Title,
		Description:        f.Description,
		Status:             f.Status,
		Priority:           f.Priority,
		DueDate:            f.DueDate,
		EstimatedPomodoros: f.EstimatedPomodoros,
		Position:           f.Position,
	}
	if t.Status == "" {
		t.Status = record.TaskPending
	}
	if t.Priority == "" {
		t.Priority = record.PriorityMedium
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO tasks (`+taskCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.WorkspaceID, nullStr(t.ProjectID), nullStr(t.ParentTaskID), t.Title, t.Description,
		string(t.Status), string(t.Priority), nullI64(t.DueDate), t.EstimatedPomodoros, t.CompletedPomodoros,
		t.Position, nullI64(t.CompletedAt),
		t.CreatedAt, t.UpdatedAt, t.LocalUpdatedAt, nullI64(t.ServerUpdatedAt),
		boolToInt(t.IsSynced), string(t.SyncStatus), boolToInt(t.IsDeleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	s.enqueueTask(ctx, record.OpCreate, t)
	return t, nil
}

// GetTask returns a live task by id. Tombstones are reported as ErrNotFound.
func (s *Store) GetTask(ctx context.Context, id string) (*record.Task, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE id = ? AND is_deleted = 0`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// getTaskAny reads a task regardless of its tombstone flag. Used by
// reconciliation and by deletes that need the final snapshot.
func (s *Store) getTaskAny(ctx context.Context, id string) (*record.Task, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// UpdateTask applies a partial update to a live task, stamps the envelope
// and enqueues an update mutation carrying the full resulting record.
// An empty patch is a no-op read.
func (s *Store) UpdateTask(ctx context.Context, id string, patch record.TaskPatch) (*record.Task, error) {
	if patch.IsEmpty() {
		return s.GetTask(ctx, id)
	}

	var sets []string
	var args []any

	if patch.ProjectID != nil {
		sets = append(sets, "project_id = ?")
		args = append(args, *patch.ProjectID)
	}
	if patch.ParentTaskID != nil {
		sets = append(sets, "parent_task_id = ?")
		args = append(args, *patch.ParentTaskID)
	}
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, string(*patch.Priority))
	}
	if patch.DueDate != nil {
		sets = append(sets, "due_date = ?")
		args = append(args, *patch.DueDate)
	}
	if patch.EstimatedPomodoros != nil {
		sets = append(sets, "estimated_pomodoros = ?")
		args = append(args, *patch.EstimatedPomodoros)
	}
	if patch.CompletedPomodoros != nil {
		sets = append(sets, "completed_pomodoros = ?")
		args = append(args, *patch.CompletedPomodoros)
	}
	if patch.Position != nil {
		sets = append(sets, "position = ?")
		args = append(args, *patch.Position)
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *patch.CompletedAt)
	}

	now := record.NowMillis()
	sets = append(sets,
		"updated_at = ?", "local_updated_at = ?",
		"is_synced = 0", "sync_status = ?")
	args = append(args, now, now, string(record.SyncPending), id)

	res, err := s.conn.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_deleted = 0`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	t, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	s.enqueueTask(ctx, record.OpUpdate, t)
	return t, nil
}

// DeleteTask soft-deletes a task (tombstone) or, when soft is false,
// physically removes the row. Either way a delete mutation is enqueued;
// the coalescer cancels it against a still-pending create.
func (s *Store) DeleteTask(ctx context.Context, id string, soft bool) error {
	t, err := s.getTaskAny(ctx, id)
	if err != nil {
		return err
	}

	if soft {
		now := record.NowMillis()
		if _, err := s.conn.ExecContext(ctx, `
			UPDATE tasks
			SET is_deleted = 1, sync_status = ?, is_synced = 0, local_updated_at = ?
			WHERE id = ?`,
			string(record.SyncDeleted), now, id,
		); err != nil {
			return fmt.Errorf("failed to soft-delete task %s: %w", id, err)
		}
		t.MarkDeleted()
	} else {
		if _, err := s.conn.ExecContext(ctx,
			`DELETE FROM tasks WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to delete task %s: %w", id, err)
		}
	}

	s.enqueueTask(ctx, record.OpDelete, t)
	return nil
}

// GetTasksByWorkspace returns live tasks in a workspace ordered by position.
func (s *Store) GetTasksByWorkspace(ctx context.Context, workspaceID string) ([]*record.Task, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+taskCols+` FROM tasks
		WHERE workspace_id = ? AND is_deleted = 0
		ORDER BY position ASC, created_at ASC`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks by workspace: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetTasksByProject returns live tasks in a project ordered by position.
func (s *Store) GetTasksByProject(ctx context.Context, projectID string) ([]*record.Task, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+taskCols+` FROM tasks
		WHERE project_id = ? AND is_deleted = 0
		ORDER BY position ASC, created_at ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks by project: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetTasksByParent returns live sub-tasks of a parent task.
func (s *Store) GetTasksByParent(ctx context.Context, parentTaskID string) ([]*record.Task, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+taskCols+` FROM tasks
		WHERE parent_task_id = ? AND is_deleted = 0
		ORDER BY position ASC, created_at ASC`,
		parentTaskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks by parent: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetTasksByStatus returns live workspace tasks with the given status.
func (s *Store) GetTasksByStatus(ctx context.Context, workspaceID string, status record.TaskStatus) ([]*record.Task, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+taskCols+` FROM tasks
		WHERE workspace_id = ? AND status = ? AND is_deleted = 0
		ORDER BY position ASC, created_at ASC`,
		workspaceID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks by status: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetUnsyncedTasks returns all tasks not yet acknowledged by the remote,
// including tombstones awaiting delete confirmation.
func (s *Store) GetUnsyncedTasks(ctx context.Context) ([]*record.Task, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+taskCols+` FROM tasks
		WHERE is_synced = 0
		ORDER BY local_updated_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsynced tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ReorderTasks rewrites positions to match the given id order inside one
// transaction, stamping each moved row's envelope, then enqueues an update
// per task so the new ordering syncs.
func (s *Store) ReorderTasks(ctx context.Context, ids []string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := record.NowMillis()
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks
			SET position = ?, updated_at = ?, local_updated_at = ?,
			    is_synced = 0, sync_status = ?
			WHERE id = ? AND is_deleted = 0`,
			i, now, now, string(record.SyncPending), id,
		); err != nil {
			return fmt.Errorf("failed to reposition task %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reorder: %w", err)
	}

	for _, id := range ids {
		t, err := s.GetTask(ctx, id)
		if err != nil {
			continue
		}
		s.enqueueTask(ctx, record.OpUpdate, t)
	}
	return nil
}
