package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ordo-todo/ordo-core/internal/record"
)

const projectCols = `id, workspace_id, name, description, color, status,
	start_date, end_date,
	created_at, updated_at, local_updated_at, server_updated_at,
	is_synced, sync_status, is_deleted`

func scanProject(row rowScanner) (*record.Project, error) {
	var p record.Project
	var startDate, endDate, serverUpdatedAt sql.NullInt64
	var isSynced, isDeleted int
	var syncStatus string

	err := row.Scan(
		&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.Color, &p.Status,
		&startDate, &endDate,
		&p.CreatedAt, &p.UpdatedAt, &p.LocalUpdatedAt, &serverUpdatedAt,
		&isSynced, &syncStatus, &isDeleted,
	)
	if err != nil {
		return nil, err
	}

	p.StartDate = i64Ptr(startDate)
	p.EndDate = i64Ptr(endDate)
	p.ServerUpdatedAt = i64Ptr(serverUpdatedAt)
	p.IsSynced = isSynced != 0
	p.SyncStatus = record.SyncStatus(syncStatus)
	p.IsDeleted = isDeleted != 0
	return &p, nil
}

// CreateProject inserts a new project and enqueues a create mutation.
func (s *Store) CreateProject(ctx context.Context, f record.ProjectFields) (*record.Project, error) {
	p := &record.Project{
		Envelope:    record.NewEnvelope(),
		WorkspaceID: f.WorkspaceID,
		Name:        f.Name,
		Description: f.Description,
		Color:       f.Color,
		Status:      f.Status,
		StartDate:   f.StartDate,
		EndDate:     f.EndDate,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid project: %w", err)
	}

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO projects (`+projectCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.WorkspaceID, p.Name, p.Description, p.Color, p.Status,
		nullI64(p.StartDate), nullI64(p.EndDate),
		p.CreatedAt, p.UpdatedAt, p.LocalUpdatedAt, nullI64(p.ServerUpdatedAt),
		boolToInt(p.IsSynced), string(p.SyncStatus), boolToInt(p.IsDeleted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert project: %w", err)
	}

	s.snapshotAndEnqueue(ctx, record.TypeProject, p.ID, record.OpCreate, p)
	return p, nil
}

// GetProject returns a live project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*record.Project, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = ? AND is_deleted = 0`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	return p, nil
}

func (s *Store) getProjectAny(ctx context.Context, id string) (*record.Project, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT `+projectCols+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	return p, nil
}

// GetProjectsByWorkspace returns live projects in a workspace.
func (s *Store) GetProjectsByWorkspace(ctx context.Context, workspaceID string) ([]*record.Project, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+projectCols+` FROM projects
		WHERE workspace_id = ? AND is_deleted = 0
		ORDER BY created_at ASC`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var projects []*record.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating projects: %w", err)
	}
	return projects, nil
}

// UpdateProject applies a partial update. An empty patch is a no-op read.
func (s *Store) UpdateProject(ctx context.Context, id string, patch record.ProjectPatch) (*record.Project, error) {
	if patch.IsEmpty() {
		return s.GetProject(ctx, id)
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
	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	if patch.StartDate != nil {
		sets = append(sets, "start_date = ?")
		args = append(args, *patch.StartDate)
	}
	if patch.EndDate != nil {
		sets = append(sets, "end_date = ?")
		args = append(args, *patch.EndDate)
	}

	now := record.NowMillis()
	sets = append(sets,
		"updated_at = ?", "local_updated_at = ?",
		"is_synced = 0", "sync_status = ?")
	args = append(args, now, now, string(record.SyncPending), id)

	res, err := s.conn.ExecContext(ctx,
		`UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE id = ? AND is_deleted = 0`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update project %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	s.snapshotAndEnqueue(ctx, record.TypeProject, id, record.OpUpdate, p)
	return p, nil
}

// DeleteProject soft-deletes (or hard-deletes) a project and enqueues the
// delete mutation.
func (s *Store) DeleteProject(ctx context.Context, id string, soft bool) error {
	p, err := s.getProjectAny(ctx, id)
	if err != nil {
		return err
	}

	if soft {
		now := record.NowMillis()
		if _, err := s.conn.ExecContext(ctx, `
			UPDATE projects
			SET is_deleted = 1, sync_status = ?, is_synced = 0, local_updated_at = ?
			WHERE id = ?`,
			string(record.SyncDeleted), now, id,
		); err != nil {
			return fmt.Errorf("failed to soft-delete project %s: %w", id, err)
		}
		p.MarkDeleted()
	} else {
		if _, err := s.conn.ExecContext(ctx,
			`DELETE FROM projects WHERE id = ?`, id,
		); err != nil {
			return fmt.Errorf("failed to delete project %s: %w", id, err)
		}
	}

	s.snapshotAndEnqueue(ctx, record.TypeProject, id, record.OpDelete, p)
	return nil
}
