package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ordo-todo/ordo-core/internal/record"
)

const sessionCols = `id, workspace_id, task_id, type, duration, started_at,
	completed_at, was_interrupted, notes,
	created_at, updated_at, local_updated_at, server_updated_at,
	is_synced, sync_status, is_deleted`

func scanSession(row rowScanner) (*record.PomodoroSession, error) {
	var ps record.PomodoroSession
	var taskID sql.NullString
	var completedAt, serverUpdatedAt sql.NullInt64
	var wasInterrupted, isSynced, isDeleted int
	var syncStatus string

	err := row.Scan(
		&ps.ID, &ps.WorkspaceID, &taskID, &ps.Type, &ps.Duration, &ps.StartedAt,
		&completedAt, &wasInterrupted, &ps.Notes,
		&ps.CreatedAt, &ps.UpdatedAt, &ps.LocalUpdatedAt, &serverUpdatedAt,
		&isSynced, &syncStatus, &isDeleted,
	)
	if err != nil {
		return nil, err
	}

	ps.TaskID = strPtr(taskID)
	ps.CompletedAt = i64Ptr(completedAt)
	ps.WasInterrupted = wasInterrupted != 0
	ps.ServerUpdatedAt = i64Ptr(serverUpdatedAt)
	ps.IsSynced = isSynced != 0
	ps.SyncStatus = record.SyncStatus(syncStatus)
	ps.IsDeleted = isDeleted != 0
	return &ps, nil
}

// CreateSession records the start of a pomodoro session and enqueues a
// create mutation.
func (s *Store) CreateSession(ctx context.Context, f record.SessionFields) (*record.PomodoroSession, error) {
	ps := &record.PomodoroSession{
		Envelope:    record.NewEnvelope(),
		WorkspaceID: f.WorkspaceID,
		TaskID:      f.TaskID,
		Type:        f.Type,
		Duration:    f.Duration,
		StartedAt:   f.StartedAt,
		Notes:       f.Notes,
	}
	if ps.StartedAt == 0 {
		ps.StartedAt = ps.CreatedAt
	}
	if err := ps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO pomodoro_sessions (`+sessionCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ps.ID, ps.WorkspaceID, nullStr(ps.TaskID), string(ps.Type), ps.Duration, ps.StartedAt,
		nullI64(ps.CompletedAt), boolToInt(ps.WasInterrupted), ps.Notes,
		ps.CreatedAt, ps.UpdatedAt, ps.LocalUpdatedAt, nullI64(ps.ServerUpdatedAt),
		boolToInt(ps.IsSynced), string(ps.SyncStatus), boolToInt(ps.IsDeleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}

	s.snapshotAndEnqueue(ctx, record.TypeSession, ps.ID, record.OpCreate, ps)
	return ps, nil
}

// GetSession returns a live session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*record.PomodoroSession, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM pomodoro_sessions WHERE id = ? AND is_deleted = 0`, id)
	ps, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return ps, nil
}

func (s *Store) getSessionAny(ctx context.Context, id string) (*record.PomodoroSession, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM pomodoro_sessions WHERE id = ?`, id)
	ps, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return ps, nil
}

// GetSessionsByWorkspace returns live sessions in a workspace, newest first.
func (s *Store) GetSessionsByWorkspace(ctx context.Context, workspaceID string) ([]*record.PomodoroSession, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM pomodoro_sessions
		WHERE workspace_id = ? AND is_deleted = 0
		ORDER BY started_at DESC`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// GetSessionsByTask returns live sessions linked to a task, newest first.
func (s *Store) GetSessionsByTask(ctx context.Context, taskID string) ([]*record.PomodoroSession, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+sessionCols+` FROM pomodoro_sessions
		WHERE task_id = ? AND is_deleted = 0
		ORDER BY started_at DESC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions by task: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows *sql.Rows) ([]*record.PomodoroSession, error) {
	var sessions []*record.PomodoroSession
	for rows.Next() {
		ps, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}

// UpdateSession applies a partial update. An empty patch is a no-op read.
func (s *Store) UpdateSession(ctx context.Context, id string, patch record.SessionPatch) (*record.PomodoroSession, error) {
	if patch.IsEmpty() {
		return s.GetSession(ctx, id)
	}

	var sets []string
	var args []any

	if patch.Duration != nil {
		sets = append(sets, "duration = ?")
		args = append(args, *patch.Duration)
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *patch.CompletedAt)
	}
	if patch.WasInterrupted != nil {
		sets = append(sets, "was_interrupted = ?")
		args = append(args, boolToInt(*patch.WasInterrupted))
	}
	if patch.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *patch.Notes)
	}

	now := record.NowMillis()
	sets = append(sets,
		"updated_at = ?", "local_updated_at = ?",
		"is_synced = 0", "sync_status = ?")
	args = append(args, now, now, string(record.SyncPending), id)

	res, err := s.conn.ExecContext(ctx,
		`UPDATE pomodoro_sessions SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_deleted = 0`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update session %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	ps, err := s.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	s.snapshotAndEnqueue(ctx, record.TypeSession, id, record.OpUpdate, ps)
	return ps, nil
}

// CompleteSession closes out a running session: stamps completed_at, records
// whether the timer was cut short, and bumps the linked task's completed
// pomodoro count for uninterrupted focus sessions.
func (s *Store) CompleteSession(ctx context.Context, id string, interrupted bool) (*record.PomodoroSession, error) {
	now := record.NowMillis()
	ps, err := s.UpdateSession(ctx, id, record.SessionPatch{
		CompletedAt:    &now,
		WasInterrupted: &interrupted,
	})
	if err != nil {
		return nil, err
	}

	if ps.Type == record.SessionFocus && !interrupted && ps.TaskID != nil {
		t, err := s.GetTask(ctx, *ps.TaskID)
		if err == nil {
			done := t.CompletedPomodoros + 1
			if _, err := s.UpdateTask(ctx, t.ID, record.TaskPatch{
				CompletedPomodoros: &done,
			}); err != nil {
				s.logger.Printf("Failed to bump pomodoro count for task %s: %v", t.ID, err)
			}
		}
	}
	return ps, nil
}

// DeleteSession soft-deletes (or hard-deletes) a session and enqueues the
// delete mutation.
func (s *Store) DeleteSession(ctx context.Context, id string, soft bool) error {
	ps, err := s.getSessionAny(ctx, id)
	if err != nil {
		return err
	}

	if soft {
		now := record.NowMillis()
		if _, err := s.conn.ExecContext(ctx, `
			UPDATE pomodoro_sessions
			SET is_deleted = 1, sync_status = ?, is_synced = 0, local_updated_at = ?
			WHERE id = ?`,
			string(record.SyncDeleted), now, id,
		); err != nil {
			return fmt.Errorf("failed to soft-delete session %s: %w", id, err)
		}
		ps.MarkDeleted()
	} else {
		if _, err := s.conn.ExecContext(ctx,
			`DELETE FROM pomodoro_sessions WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to delete session %s: %w", id, err)
		}
	}

	s.snapshotAndEnqueue(ctx, record.TypeSession, id, record.OpDelete, ps)
	return nil
}
