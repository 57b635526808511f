package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ordo-todo/ordo-core/internal/record"
)

const subtaskCols = `id, task_id, title, is_completed, position,
	created_at, updated_at, local_updated_at, server_updated_at,
	is_synced, sync_status, is_deleted`

func scanSubtask(row rowScanner) (*record.Subtask, error) {
	var st record.Subtask
	var serverUpdatedAt sql.NullInt64
	var isCompleted, isSynced, isDeleted int
	var syncStatus string

	err := row.Scan(
		&st.ID, &st.TaskID, &st.Title, &isCompleted, &st.Position,
		&st.CreatedAt, &st.UpdatedAt, &st.LocalUpdatedAt, &serverUpdatedAt,
		&isSynced, &syncStatus, &isDeleted,
	)
	if err != nil {
		return nil, err
	}

	st.IsCompleted = isCompleted != 0
	st.ServerUpdatedAt = i64Ptr(serverUpdatedAt)
	st.IsSynced = isSynced != 0
	st.SyncStatus = record.SyncStatus(syncStatus)
	st.IsDeleted = isDeleted != 0
	return &st, nil
}

// CreateSubtask inserts a new subtask and enqueues a create mutation.
func (s *Store) CreateSubtask(ctx context.Context, f record.SubtaskFields) (*record.Subtask, error) {
	st := &record.Subtask{
		Envelope: record.NewEnvelope(),
		TaskID:   f.TaskID,
		Title:    f.Title,
		Position: f.Position,
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid subtask: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO subtasks (`+subtaskCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.TaskID, st.Title, boolToInt(st.IsCompleted), st.Position,
		st.CreatedAt, st.UpdatedAt, st.LocalUpdatedAt, nullI64(st.ServerUpdatedAt),
		boolToInt(st.IsSynced), string(st.SyncStatus), boolToInt(st.IsDeleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert subtask: %w", err)
	}

	s.snapshotAndEnqueue(ctx, record.TypeSubtask, st.ID, record.OpCreate, st)
	return st, nil
}

// GetSubtask returns a live subtask by id.
func (s *Store) GetSubtask(ctx context.Context, id string) (*record.Subtask, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+subtaskCols+` FROM subtasks WHERE id = ? AND is_deleted = 0`, id)
	st, err := scanSubtask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subtask %s: %w", id, err)
	}
	return st, nil
}

func (s *Store) getSubtaskAny(ctx context.Context, id string) (*record.Subtask, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+subtaskCols+` FROM subtasks WHERE id = ?`, id)
	st, err := scanSubtask(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subtask %s: %w", id, err)
	}
	return st, nil
}

// GetSubtasksByTask returns live subtasks of a task ordered by position.
func (s *Store) GetSubtasksByTask(ctx context.Context, taskID string) ([]*record.Subtask, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+subtaskCols+` FROM subtasks
		WHERE task_id = ? AND is_deleted = 0
		ORDER BY position ASC, created_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtasks: %w", err)
	}
	defer rows.Close()

	var subtasks []*record.Subtask
	for rows.Next() {
		st, err := scanSubtask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subtask: %w", err)
		}
		subtasks = append(subtasks, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subtasks: %w", err)
	}
	return subtasks, nil
}

// UpdateSubtask applies a partial update. An empty patch is a no-op read.
func (s *Store) UpdateSubtask(ctx context.Context, id string, patch record.SubtaskPatch) (*record.Subtask, error) {
	if patch.IsEmpty() {
		return s.GetSubtask(ctx, id)
	}

	var sets []string
	var args []any

	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.IsCompleted != nil {
		sets = append(sets, "is_completed = ?")
		args = append(args, boolToInt(*patch.IsCompleted))
	}
	if patch.Position != nil {
		sets = append(sets, "position = ?")
		args = append(args, *patch.Position)
	}

	now := record.NowMillis()
	sets = append(sets,
		"updated_at = ?", "local_updated_at = ?",
		"is_synced = 0", "sync_status = ?")
	args = append(args, now, now, string(record.SyncPending), id)

	res, err := s.conn.ExecContext(ctx,
		`UPDATE subtasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_deleted = 0`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update subtask %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	st, err := s.GetSubtask(ctx, id)
	if err != nil {
		return nil, err
	}
	s.snapshotAndEnqueue(ctx, record.TypeSubtask, id, record.OpUpdate, st)
	return st, nil
}

// DeleteSubtask soft-deletes (or hard-deletes) a subtask and enqueues the
// delete mutation.
func (s *Store) DeleteSubtask(ctx context.Context, id string, soft bool) error {
	st, err := s.getSubtaskAny(ctx, id)
	if err != nil {
		return err
	}

	if soft {
		now := record.NowMillis()
		if _, err := s.conn.ExecContext(ctx, `
			UPDATE subtasks
			SET is_deleted = 1, sync_status = ?, is_synced = 0, local_updated_at = ?
			WHERE id = ?`,
			string(record.SyncDeleted), now, id,
		); err != nil {
			return fmt.Errorf("failed to soft-delete subtask %s: %w", id, err)
		}
		st.MarkDeleted()
	} else {
		if _, err := s.conn.ExecContext(ctx,
			`DELETE FROM subtasks WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to delete subtask %s: %w", id, err)
		}
	}

	s.snapshotAndEnqueue(ctx, record.TypeSubtask, id, record.OpDelete, st)
	return nil
}
