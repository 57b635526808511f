package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ordo-todo/ordo-core/internal/record"
)

const workspaceCols = `id, name, description, color, icon, owner_id,
	created_at, updated_at, local_updated_at, server_updated_at,
	is_synced, sync_status, is_deleted`

func scanWorkspace(row rowScanner) (*record.Workspace, error) {
	var w record.Workspace
	var serverUpdatedAt sql.NullInt64
	var isSynced, isDeleted int
	var syncStatus string

	err := row.Scan(
		&w.ID, &w.Name, &w.Description, &w.Color, &w.Icon, &w.OwnerID,
		&w.CreatedAt, &w.UpdatedAt, &w.LocalUpdatedAt, &serverUpdatedAt,
		&isSynced, &syncStatus, &isDeleted,
	)
	if err != nil {
		return nil, err
	}

	w.ServerUpdatedAt = i64Ptr(serverUpdatedAt)
	w.IsSynced = isSynced != 0
	w.SyncStatus = record.SyncStatus(syncStatus)
	w.IsDeleted = isDeleted != 0
	return &w, nil
}

// CreateWorkspace inserts a new workspace and enqueues a create mutation.
func (s *Store) CreateWorkspace(ctx context.Context, f record.WorkspaceFields) (*record.Workspace, error) {
	w := &record.Workspace{
		Envelope:    record.NewEnvelope(),
		Name:        f.Name,
		Description: f.Description,
		Color:       f.Color,
		Icon:        f.Icon,
		OwnerID:     f.OwnerID,
	}
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workspace: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO workspaces (`+workspaceCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.Name, w.Description, w.Color, w.Icon, w.OwnerID,
		w.CreatedAt, w.UpdatedAt, w.LocalUpdatedAt, nullI64(w.ServerUpdatedAt),
		boolToInt(w.IsSynced), string(w.SyncStatus), boolToInt(w.IsDeleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert workspace: %w", err)
	}

	s.snapshotAndEnqueue(ctx, record.TypeWorkspace, w.ID, record.OpCreate, w)
	return w, nil
}

// GetWorkspace returns a live workspace by id.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*record.Workspace, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+workspaceCols+` FROM workspaces WHERE id = ? AND is_deleted = 0`, id)
	w, err := scanWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace %s: %w", id, err)
	}
	return w, nil
}

func (s *Store) getWorkspaceAny(ctx context.Context, id string) (*record.Workspace, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+workspaceCols+` FROM workspaces WHERE id = ?`, id)
	w, err := scanWorkspace(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace %s: %w", id, err)
	}
	return w, nil
}

// ListWorkspaces returns all live workspaces ordered by creation time.
func (s *Store) ListWorkspaces(ctx context.Context) ([]*record.Workspace, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+workspaceCols+` FROM workspaces
		WHERE is_deleted = 0
		ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*record.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workspaces: %w", err)
	}
	return workspaces, nil
}

// UpdateWorkspace applies a partial update. An empty patch is a no-op read.
func (s *Store) UpdateWorkspace(ctx context.Context, id string, patch record.WorkspacePatch) (*record.Workspace, error) {
	if patch.IsEmpty() {
		return s.GetWorkspace(ctx, id)
	}

	var sets []string
	var args []any

	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *patch.Description)
	}
	if patch.Color != nil {
		sets = append(sets, "color = ?")
		args = append(args, *patch.Color)
	}
	if patch.Icon != nil {
		sets = append(sets, "icon = ?")
		args = append(args, *patch.Icon)
	}

	now := record.NowMillis()
	sets = append(sets,
		"updated_at = ?", "local_updated_at = ?",
		"is_synced = 0", "sync_status = ?")
	args = append(args, now, now, string(record.SyncPending), id)

	res, err := s.conn.ExecContext(ctx,
		`UPDATE workspaces SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_deleted = 0`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update workspace %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	w, err := s.GetWorkspace(ctx, id)
	if err != nil {
		return nil, err
	}
	s.snapshotAndEnqueue(ctx, record.TypeWorkspace, id, record.OpUpdate, w)
	return w, nil
}

// DeleteWorkspace soft-deletes (or hard-deletes) a workspace and enqueues
// the delete mutation.
func (s *Store) DeleteWorkspace(ctx context.Context, id string, soft bool) error {
	w, err := s.getWorkspaceAny(ctx, id)
	if err != nil {
		return err
	}

	if soft {
		now := record.NowMillis()
		if _, err := s.conn.ExecContext(ctx, `
			UPDATE workspaces
			SET is_deleted = 1, sync_status = ?, is_synced = 0, local_updated_at = ?
			WHERE id = ?`,
			string(record.SyncDeleted), now, id,
		); err != nil {
			return fmt.Errorf("failed to soft-delete workspace %s: %w", id, err)
		}
		w.MarkDeleted()
	} else {
		if _, err := s.conn.ExecContext(ctx,
			`DELETE FROM workspaces WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to delete workspace %s: %w", id, err)
		}
	}

	s.snapshotAndEnqueue(ctx, record.TypeWorkspace, id, record.OpDelete, w)
	return nil
}
