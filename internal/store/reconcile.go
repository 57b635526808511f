package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ordo-todo/ordo-core/internal/record"
)

// tables maps entity types to their local table names.
var tables = map[record.EntityType]string{
	record.TypeWorkspace: "workspaces",
	record.TypeProject:   "projects",
	record.TypeTask:      "tasks",
	record.TypeTag:       "tags",
	record.TypeSubtask:   "subtasks",
	record.TypeComment:   "comments",
	record.TypeSession:   "pomodoro_sessions",
}

func tableFor(et record.EntityType) (string, error) {
	t, ok := tables[et]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", et)
	}
	return t, nil
}

// ReconcileResult summarizes one pulled batch.
type ReconcileResult struct {
	Applied   int
	Conflicts int
	Deleted   int
}

// remoteProbe is the envelope subset reconciliation needs before deciding
// whether to decode the full record.
type remoteProbe struct {
	ID        string `json:"id"`
	UpdatedAt int64  `json:"updated_at"`
	IsDeleted bool   `json:"is_deleted"`
}

// ReconcileBatch merges one entity type's pulled records into the local
// store, all inside a single transaction. Records arrive already translated
// to local field names and epoch-millis timestamps.
//
// Per record: a missing local row is inserted and marked synced. A local row
// with unsynced edits newer than the remote timestamp is flagged conflict
// and left untouched so no local work is lost. Anything else is overwritten
// with the remote state and marked synced. Remote tombstones remove the
// local row outright.
func (s *Store) ReconcileBatch(ctx context.Context, et record.EntityType, recs []json.RawMessage) (ReconcileResult, error) {
	var res ReconcileResult
	table, err := tableFor(et)
	if err != nil {
		return res, err
	}
	if len(recs) == 0 {
		return res, nil
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin reconcile transaction: %w", err)
	}
	defer tx.Rollback()

	for _, raw := range recs {
		var probe remoteProbe
		if err := json.Unmarshal(raw, &probe); err != nil {
			return res, fmt.Errorf("failed to decode remote %s record: %w", et, err)
		}
		if probe.ID == "" {
			return res, fmt.Errorf("remote %s record missing id", et)
		}

		var localUpdated int64
		var isSynced int
		err := tx.QueryRowContext(ctx,
			`SELECT local_updated_at, is_synced FROM `+table+` WHERE id = ?`,
			probe.ID,
		).Scan(&localUpdated, &isSynced)
		exists := err == nil
		if err != nil && err != sql.ErrNoRows {
			return res, fmt.Errorf("failed to probe local %s %s: %w", et, probe.ID, err)
		}

		// Unsynced local edits newer than the remote copy win locally;
		// flag the row so the app can surface the conflict.
		if exists && isSynced == 0 && localUpdated > probe.UpdatedAt {
			if _, err := tx.ExecContext(ctx,
				`UPDATE `+table+` SET sync_status = ? WHERE id = ?`,
				string(record.SyncConflict), probe.ID,
			); err != nil {
				return res, fmt.Errorf("failed to flag conflict on %s %s: %w", et, probe.ID, err)
			}
			res.Conflicts++
			continue
		}

		if probe.IsDeleted {
			if exists {
				if _, err := tx.ExecContext(ctx,
					`DELETE FROM `+table+` WHERE id = ?`, probe.ID,
				); err != nil {
					return res, fmt.Errorf("failed to apply remote delete of %s %s: %w", et, probe.ID, err)
				}
				res.Deleted++
			}
			continue
		}

		if err := upsertRemote(ctx, tx, et, raw, probe.UpdatedAt); err != nil {
			return res, fmt.Errorf("failed to apply remote %s %s: %w", et, probe.ID, err)
		}
		res.Applied++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit reconcile batch: %w", err)
	}
	return res, nil
}

// upsertClause builds an ON CONFLICT(id) DO UPDATE SET list assigning every
// column except id from excluded. INSERT OR REPLACE is off limits here:
// with foreign keys on, REPLACE deletes the existing row before inserting,
// which cascades into task_tags and wipes tag assignments.
func upsertClause(cols string) string {
	var sets []string
	for _, col := range strings.Split(cols, ",") {
		col = strings.TrimSpace(col)
		if col == "" || col == "id" {
			continue
		}
		sets = append(sets, col+" = excluded."+col)
	}
	return ` ON CONFLICT(id) DO UPDATE SET ` + strings.Join(sets, ", ")
}

// upsertRemote writes one remote record over the local row (or inserts it).
// The envelope is stamped as synced: local_updated_at and server_updated_at
// both take the remote timestamp so the row does not look locally edited.
func upsertRemote(ctx context.Context, tx *sql.Tx, et record.EntityType, raw json.RawMessage, remoteUpdated int64) error {
	stamp := func(e *record.Envelope) {
		e.UpdatedAt = remoteUpdated
		e.LocalUpdatedAt = remoteUpdated
		e.ServerUpdatedAt = &remoteUpdated
		e.IsSynced = true
		e.SyncStatus = record.SyncSynced
		e.IsDeleted = false
		if e.CreatedAt == 0 {
			e.CreatedAt = remoteUpdated
		}
	}

	switch et {
	case record.TypeWorkspace:
		var w record.Workspace
		if err := json.Unmarshal(raw, &w); err != nil {
			return err
		}
		stamp(&w.Envelope)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workspaces (`+workspaceCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+upsertClause(workspaceCols),
			w.ID, w.Name, w.Description, w.Color, w.Icon, w.OwnerID,
			w.CreatedAt, w.UpdatedAt, w.LocalUpdatedAt, nullI64(w.ServerUpdatedAt),
			boolToInt(w.IsSynced), string(w.SyncStatus), boolToInt(w.IsDeleted),
		)
		return err

	case record.TypeProject:
		var p record.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		stamp(&p.Envelope)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (`+projectCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+upsertClause(projectCols),
			p.ID, p.WorkspaceID, p.Name, p.Description, p.Color, p.Status,
			nullI64(p.StartDate), nullI64(p.EndDate),
			p.CreatedAt, p.UpdatedAt, p.LocalUpdatedAt, nullI64(p.ServerUpdatedAt),
			boolToInt(p.IsSynced), string(p.SyncStatus), boolToInt(p.IsDeleted),
		)
		return err

	case record.TypeTask:
		var t record.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		if t.Status == "" {
			t.Status = record.TaskPending
		}
		if t.Priority == "" {
			t.Priority = record.PriorityMedium
		}
		stamp(&t.Envelope)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tasks (`+taskCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+upsertClause(taskCols),
			t.ID, t.WorkspaceID, nullStr(t.ProjectID), nullStr(t.ParentTaskID), t.Title, t.Description,
			string(t.Status), string(t.Priority), nullI64(t.DueDate), t.EstimatedPomodoros, t.CompletedPomodoros,
			t.Position, nullI64(t.CompletedAt),
			t.CreatedAt, t.UpdatedAt, t.LocalUpdatedAt, nullI64(t.ServerUpdatedAt),
			boolToInt(t.IsSynced), string(t.SyncStatus), boolToInt(t.IsDeleted),
		); err != nil {
			return err
		}
		if t.Tags == nil {
			return nil
		}
		return replaceTaskTags(ctx, tx, t.ID, t.Tags, remoteUpdated)

	case record.TypeTag:
		var t record.Tag
		if err := json.Unmarshal(raw, &t); err != nil {
			return err
		}
		stamp(&t.Envelope)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO tags (`+tagCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+upsertClause(tagCols),
			t.ID, t.WorkspaceID, t.Name, t.Color,
			t.CreatedAt, t.UpdatedAt, t.LocalUpdatedAt, nullI64(t.ServerUpdatedAt),
			boolToInt(t.IsSynced), string(t.SyncStatus), boolToInt(t.IsDeleted),
		)
		return err

	case record.TypeSubtask:
		var st record.Subtask
		if err := json.Unmarshal(raw, &st); err != nil {
			return err
		}
		stamp(&st.Envelope)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subtasks (`+subtaskCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+upsertClause(subtaskCols),
			st.ID, st.TaskID, st.Title, boolToInt(st.IsCompleted), st.Position,
			st.CreatedAt, st.UpdatedAt, st.LocalUpdatedAt, nullI64(st.ServerUpdatedAt),
			boolToInt(st.IsSynced), string(st.SyncStatus), boolToInt(st.IsDeleted),
		)
		return err

	case record.TypeComment:
		var c record.Comment
		if err := json.Unmarshal(raw, &c); err != nil {
			return err
		}
		stamp(&c.Envelope)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO comments (`+commentCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+upsertClause(commentCols),
			c.ID, c.TaskID, c.AuthorID, c.Content,
			c.CreatedAt, c.UpdatedAt, c.LocalUpdatedAt, nullI64(c.ServerUpdatedAt),
			boolToInt(c.IsSynced), string(c.SyncStatus), boolToInt(c.IsDeleted),
		)
		return err

	case record.TypeSession:
		var ps record.PomodoroSession
		if err := json.Unmarshal(raw, &ps); err != nil {
			return err
		}
		stamp(&ps.Envelope)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pomodoro_sessions (`+sessionCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`+upsertClause(sessionCols),
			ps.ID, ps.WorkspaceID, nullStr(ps.TaskID), string(ps.Type), ps.Duration, ps.StartedAt,
			nullI64(ps.CompletedAt), boolToInt(ps.WasInterrupted), ps.Notes,
			ps.CreatedAt, ps.UpdatedAt, ps.LocalUpdatedAt, nullI64(ps.ServerUpdatedAt),
			boolToInt(ps.IsSynced), string(ps.SyncStatus), boolToInt(ps.IsDeleted),
		)
		return err

	default:
		return fmt.Errorf("unknown entity type %q", et)
	}
}

// replaceTaskTags rewrites a task's tag assignments from a pulled record.
// Assignments naming tags not present locally are skipped via the guarded
// insert instead of tripping the tags foreign key; they land once the tag
// itself has been pulled and the task is pulled again.
func replaceTaskTags(ctx context.Context, tx *sql.Tx, taskID string, tagIDs []string, now int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM task_tags WHERE task_id = ?`, taskID,
	); err != nil {
		return fmt.Errorf("failed to clear tag assignments: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO task_tags (task_id, tag_id, created_at)
			SELECT ?, id, ? FROM tags WHERE id = ?`,
			taskID, now, tagID,
		); err != nil {
			return fmt.Errorf("failed to assign tag %s: %w", tagID, err)
		}
	}
	return nil
}

// MarkSynced records a remote acknowledgement for a pushed record. The
// snapshotLocalUpdated guard keeps the row pending when it was edited again
// while the push was in flight.
func (s *Store) MarkSynced(ctx context.Context, et record.EntityType, id string, serverUpdated, snapshotLocalUpdated int64) error {
	table, err := tableFor(et)
	if err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx, `
		UPDATE `+table+`
		SET is_synced = 1, sync_status = ?, server_updated_at = ?
		WHERE id = ? AND local_updated_at <= ?`,
		string(record.SyncSynced), serverUpdated, id, snapshotLocalUpdated,
	); err != nil {
		return fmt.Errorf("failed to mark %s %s synced: %w", et, id, err)
	}
	return nil
}

// PurgeTombstone removes a soft-deleted row after the remote confirmed the
// delete. A no-op when the row was already removed or revived.
func (s *Store) PurgeTombstone(ctx context.Context, et record.EntityType, id string) error {
	table, err := tableFor(et)
	if err != nil {
		return err
	}
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id = ? AND is_deleted = 1`, id,
	); err != nil {
		return fmt.Errorf("failed to purge %s %s: %w", et, id, err)
	}
	return nil
}

// UnsyncedCounts returns the number of unsynced rows per entity type,
// tombstones included.
func (s *Store) UnsyncedCounts(ctx context.Context) (map[record.EntityType]int, error) {
	counts := make(map[record.EntityType]int, len(record.EntityTypes))
	for _, et := range record.EntityTypes {
		table, err := tableFor(et)
		if err != nil {
			return nil, err
		}
		var n int
		if err := s.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM `+table+` WHERE is_synced = 0`,
		).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count unsynced %s rows: %w", et, err)
		}
		counts[et] = n
	}
	return counts, nil
}
