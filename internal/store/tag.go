package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ordo-todo/ordo-core/internal/record"
)

const tagCols = `id, workspace_id, name, color,
	created_at, updated_at, local_updated_at, server_updated_at,
	is_synced, sync_status, is_deleted`

func scanTag(row rowScanner) (*record.Tag, error) {
	var t record.Tag
	var serverUpdatedAt sql.NullInt64
	var isSynced, isDeleted int
	var syncStatus string

	err := row.Scan(
		&t.ID, &t.WorkspaceID, &t.Name, &t.Color,
		&t.CreatedAt, &t.UpdatedAt, &t.LocalUpdatedAt, &serverUpdatedAt,
		&isSynced, &syncStatus, &isDeleted,
	)
	if err != nil {
		return nil, err
	}

	t.ServerUpdatedAt = i64Ptr(serverUpdatedAt)
	t.IsSynced = isSynced != 0
	t.SyncStatus = record.SyncStatus(syncStatus)
	t.IsDeleted = isDeleted != 0
	return &t, nil
}

// CreateTag inserts a new tag and enqueues a create mutation.
func (s *Store) CreateTag(ctx context.Context, f record.TagFields) (*record.Tag, error) {
	t := &record.Tag{
		Envelope:    record.NewEnvelope(),
		WorkspaceID: f.WorkspaceID,
		Name:        f.Name,
		Color:       f.Color,
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tag: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO tags (`+tagCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.WorkspaceID, t.Name, t.Color,
		t.CreatedAt, t.UpdatedAt, t.LocalUpdatedAt, nullI64(t.ServerUpdatedAt),
		boolToInt(t.IsSynced), string(t.SyncStatus), boolToInt(t.IsDeleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert tag: %w", err)
	}

	s.snapshotAndEnqueue(ctx, record.TypeTag, t.ID, record.OpCreate, t)
	return t, nil
}

// GetTag returns a live tag by id.
func (s *Store) GetTag(ctx context.Context, id string) (*record.Tag, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+tagCols+` FROM tags WHERE id = ? AND is_deleted = 0`, id)
	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag %s: %w", id, err)
	}
	return t, nil
}

func (s *Store) getTagAny(ctx context.Context, id string) (*record.Tag, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+tagCols+` FROM tags WHERE id = ?`, id)
	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag %s: %w", id, err)
	}
	return t, nil
}

// GetTagsByWorkspace returns live tags in a workspace ordered by name.
func (s *Store) GetTagsByWorkspace(ctx context.Context, workspaceID string) ([]*record.Tag, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+tagCols+` FROM tags
		WHERE workspace_id = ? AND is_deleted = 0
		ORDER BY name ASC`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()
	return collectTags(rows)
}

// GetTagsForTask returns live tags attached to a task via the join table.
func (s *Store) GetTagsForTask(ctx context.Context, taskID string) ([]*record.Tag, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT t.id, t.workspace_id, t.name, t.color,
		       t.created_at, t.updated_at, t.local_updated_at, t.server_updated_at,
		       t.is_synced, t.sync_status, t.is_deleted
		FROM tags t
		JOIN task_tags tt ON tt.tag_id = t.id
		WHERE tt.task_id = ? AND t.is_deleted = 0
		ORDER BY t.name ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query task tags: %w", err)
	}
	defer rows.Close()
	return collectTags(rows)
}

func collectTags(rows *sql.Rows) ([]*record.Tag, error) {
	var tags []*record.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

// UpdateTag applies a partial update. An empty patch is a no-op read.
func (s *Store) UpdateTag(ctx context.Context, id string, patch record.TagPatch) (*record.Tag, error) {
	if patch.IsEmpty() {
		return s.GetTag(ctx, id)
	}

	var sets []string
	var args []any

	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}

	now := record.NowMillis()
	sets = append(sets,
		"updated_at = ?", "local_updated_at = ?",
		"is_synced = 0", "sync_status = ?")
	args = append(args, now, now, string(record.SyncPending), id)

	res, err := s.conn.ExecContext(ctx,
		`UPDATE tags SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_deleted = 0`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update tag %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	t, err := s.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}
	s.snapshotAndEnqueue(ctx, record.TypeTag, id, record.OpUpdate, t)
	return t, nil
}

// DeleteTag soft-deletes (or hard-deletes) a tag and enqueues the delete
// mutation. A hard delete cascades its task_tags rows.
func (s *Store) DeleteTag(ctx context.Context, id string, soft bool) error {
	t, err := s.getTagAny(ctx, id)
	if err != nil {
		return err
	}

	if soft {
		now := record.NowMillis()
		if _, err := s.conn.ExecContext(ctx, `
			UPDATE tags
			SET is_deleted = 1, sync_status = ?, is_synced = 0, local_updated_at = ?
			WHERE id = ?`,
			string(record.SyncDeleted), now, id,
		); err != nil {
			return fmt.Errorf("failed to soft-delete tag %s: %w", id, err)
		}
		t.MarkDeleted()
	} else {
		if _, err := s.conn.ExecContext(ctx,
			`DELETE FROM tags WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to delete tag %s: %w", id, err)
		}
	}

	s.snapshotAndEnqueue(ctx, record.TypeTag, id, record.OpDelete, t)
	return nil
}

// AttachTag links a tag to a task. Attaching an already-attached tag is a
// no-op. The owning task is re-enqueued so the assignment syncs with it.
func (s *Store) AttachTag(ctx context.Context, taskID, tagID string) error {
	if _, err := s.conn.ExecContext(ctx, `
		INSERT INTO task_tags (task_id, tag_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(task_id, tag_id) DO NOTHING`,
		taskID, tagID, record.NowMillis(),
	); err != nil {
		return fmt.Errorf("failed to attach tag %s to task %s: %w", tagID, taskID, err)
	}
	return s.enqueueTaskSnapshot(ctx, taskID)
}

// DetachTag unlinks a tag from a task. Detaching an absent link is a no-op.
func (s *Store) DetachTag(ctx context.Context, taskID, tagID string) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM task_tags WHERE task_id = ? AND tag_id = ?`,
		taskID, tagID,
	); err != nil {
		return fmt.Errorf("failed to detach tag %s from task %s: %w", tagID, taskID, err)
	}
	return s.enqueueTaskSnapshot(ctx, taskID)
}

func (s *Store) enqueueTaskSnapshot(ctx context.Context, taskID string) error {
	t, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	s.enqueueTask(ctx, record.OpUpdate, t)
	return nil
}

// taskTagIDs returns the ids of tags assigned to a task. Never nil: a task
// snapshot always carries the full assignment list, so detaching the last
// tag pushes an explicit empty list rather than omitting the field.
func (s *Store) taskTagIDs(ctx context.Context, taskID string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT tag_id FROM task_tags WHERE task_id = ? ORDER BY tag_id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tag assignments for task %s: %w", taskID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan tag assignment: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tag assignments: %w", err)
	}
	return ids, nil
}
