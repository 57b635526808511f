package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ordo-todo/ordo-core/internal/record"
)

const commentCols = `id, task_id, author_id, content,
	created_at, updated_at, local_updated_at, server_updated_at,
	is_synced, sync_status, is_deleted`

func scanComment(row rowScanner) (*record.Comment, error) {
	var c record.Comment
	var serverUpdatedAt sql.NullInt64
	var isSynced, isDeleted int
	var syncStatus string

	err := row.Scan(
		&c.ID, &c.TaskID, &c.AuthorID, &c.Content,
		&c.CreatedAt, &c.UpdatedAt, &c.LocalUpdatedAt, &serverUpdatedAt,
		&isSynced, &syncStatus, &isDeleted,
	)
	if err != nil {
		return nil, err
	}

	c.ServerUpdatedAt = i64Ptr(serverUpdatedAt)
	c.IsSynced = isSynced != 0
	c.SyncStatus = record.SyncStatus(syncStatus)
	c.IsDeleted = isDeleted != 0
	return &c, nil
}

// CreateComment inserts a new comment and enqueues a create mutation.
func (s *Store) CreateComment(ctx context.Context, f record.CommentFields) (*record.Comment, error) {
	c := &record.Comment{
		Envelope: record.NewEnvelope(),
		TaskID:   f.TaskID,
		AuthorID: f.AuthorID,
		Content:  f.Content,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid comment: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO comments (`+commentCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, c.AuthorID, c.Content,
		c.CreatedAt, c.UpdatedAt, c.LocalUpdatedAt, nullI64(c.ServerUpdatedAt),
		boolToInt(c.IsSynced), string(c.SyncStatus), boolToInt(c.IsDeleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert comment: %w", err)
	}

	s.snapshotAndEnqueue(ctx, record.TypeComment, c.ID, record.OpCreate, c)
	return c, nil
}

// GetComment returns a live comment by id.
func (s *Store) GetComment(ctx context.Context, id string) (*record.Comment, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+commentCols+` FROM comments WHERE id = ? AND is_deleted = 0`, id)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment %s: %w", id, err)
	}
	return c, nil
}

func (s *Store) getCommentAny(ctx context.Context, id string) (*record.Comment, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+commentCols+` FROM comments WHERE id = ?`, id)
	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get comment %s: %w", id, err)
	}
	return c, nil
}

// GetCommentsByTask returns live comments on a task, oldest first.
func (s *Store) GetCommentsByTask(ctx context.Context, taskID string) ([]*record.Comment, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+commentCols+` FROM comments
		WHERE task_id = ? AND is_deleted = 0
		ORDER BY created_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []*record.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating comments: %w", err)
	}
	return comments, nil
}

// UpdateComment applies a partial update. An empty patch is a no-op read.
func (s *Store) UpdateComment(ctx context.Context, id string, patch record.CommentPatch) (*record.Comment, error) {
	if patch.IsEmpty() {
		return s.GetComment(ctx, id)
	}

	now := record.NowMillis()
	res, err := s.conn.ExecContext(ctx, `
		UPDATE comments
		SET content = ?, updated_at = ?, local_updated_at = ?,
		    is_synced = 0, sync_status = ?
		WHERE id = ? AND is_deleted = 0`,
		*patch.Content, now, now, string(record.SyncPending), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update comment %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	c, err := s.GetComment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.snapshotAndEnqueue(ctx, record.TypeComment, id, record.OpUpdate, c)
	return c, nil
}

// DeleteComment soft-deletes (or hard-deletes) a comment and enqueues the
// delete mutation.
func (s *Store) DeleteComment(ctx context.Context, id string, soft bool) error {
	c, err := s.getCommentAny(ctx, id)
	if err != nil {
		return err
	}

	if soft {
		now := record.NowMillis()
		if _, err := s.conn.ExecContext(ctx, `
			UPDATE comments
			SET is_deleted = 1, sync_status = ?, is_synced = 0, local_updated_at = ?
			WHERE id = ?`,
			string(record.SyncDeleted), now, id,
		); err != nil {
			return fmt.Errorf("failed to soft-delete comment %s: %w", id, err)
		}
		c.MarkDeleted()
	} else {
		if _, err := s.conn.ExecContext(ctx,
			`DELETE FROM comments WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to delete comment %s: %w", id, err)
		}
	}

	s.snapshotAndEnqueue(ctx, record.TypeComment, id, record.OpDelete, c)
	return nil
}
