package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// schemaVersion is the current target schema version, persisted in
// sync_metadata under the schema_version key.
const schemaVersion = 2

// Metadata keys used by the store and the sync engine.
const (
	MetaSchemaVersion = "schema_version"
	MetaLastSyncTime  = "last_sync_time"
)

// initSchema creates all tables and indexes. Every statement is idempotent
// (CREATE ... IF NOT EXISTS), so this is safe to run on every startup.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	-- Bookkeeping
	CREATE TABLE IF NOT EXISTS sync_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_queue (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		operation TEXT NOT NULL,  -- create, update, delete
		payload TEXT NOT NULL,    -- full-record JSON snapshot
		created_at INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_attempt_at INTEGER,
		last_error TEXT,
		status TEXT NOT NULL DEFAULT 'pending'  -- pending, processing, failed, completed
	);

	-- Domain tables. Every syncable table carries the sync envelope columns:
	-- created_at/updated_at/local_updated_at (epoch millis),
	-- server_updated_at (epoch millis, null until acknowledged),
	-- is_synced, sync_status, is_deleted.
	CREATE TABLE IF NOT EXISTS workspaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		icon TEXT NOT NULL DEFAULT '',
		owner_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		local_updated_at INTEGER NOT NULL,
		server_updated_at INTEGER,
		is_synced INTEGER NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		color TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT '',
		start_date INTEGER,
		end_date INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		local_updated_at INTEGER NOT NULL,
		server_updated_at INTEGER,
		is_synced INTEGER NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (workspace_id) REFERENCES workspaces(id)
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		project_id TEXT,
		parent_task_id TEXT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',     -- pending, in_progress, completed
		priority TEXT NOT NULL DEFAULT 'medium',    -- low, medium, high, urgent
		due_date INTEGER,
		estimated_pomodoros INTEGER NOT NULL DEFAULT 0,
		completed_pomodoros INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0,
		completed_at INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		local_updated_at INTEGER NOT NULL,
		server_updated_at INTEGER,
		is_synced INTEGER NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (workspace_id) REFERENCES workspaces(id),
		FOREIGN KEY (project_id) REFERENCES projects(id),
		FOREIGN KEY (parent_task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		local_updated_at INTEGER NOT NULL,
		server_updated_at INTEGER,
		is_synced INTEGER NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (workspace_id) REFERENCES workspaces(id)
	);

	CREATE TABLE IF NOT EXISTS task_tags (
		task_id TEXT NOT NULL,
		tag_id TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (task_id, tag_id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS subtasks (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		title TEXT NOT NULL,
		is_completed INTEGER NOT NULL DEFAULT 0,
		position INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		local_updated_at INTEGER NOT NULL,
		server_updated_at INTEGER,
		is_synced INTEGER NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL,
		author_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		local_updated_at INTEGER NOT NULL,
		server_updated_at INTEGER,
		is_synced INTEGER NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	CREATE TABLE IF NOT EXISTS pomodoro_sessions (
		id TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		task_id TEXT,
		type TEXT NOT NULL,  -- focus, short_break, long_break
		duration INTEGER NOT NULL DEFAULT 0,
		started_at INTEGER NOT NULL,
		completed_at INTEGER,
		was_interrupted INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		local_updated_at INTEGER NOT NULL,
		server_updated_at INTEGER,
		is_synced INTEGER NOT NULL DEFAULT 0,
		sync_status TEXT NOT NULL DEFAULT 'pending',
		is_deleted INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (workspace_id) REFERENCES workspaces(id),
		FOREIGN KEY (task_id) REFERENCES tasks(id)
	);

	-- Indexes for common lookups
	CREATE INDEX IF NOT EXISTS idx_projects_workspace ON projects(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_workspace ON tasks(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_task_id);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_sync_status ON tasks(sync_status);
	CREATE INDEX IF NOT EXISTS idx_tasks_deleted ON tasks(is_deleted);
	CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed_at);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date);
	CREATE INDEX IF NOT EXISTS idx_tags_workspace ON tags(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_subtasks_task ON subtasks(task_id);
	CREATE INDEX IF NOT EXISTS idx_comments_task ON comments(task_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_workspace ON pomodoro_sessions(workspace_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_task ON pomodoro_sessions(task_id);
	CREATE INDEX IF NOT EXISTS idx_queue_status ON sync_queue(status);
	CREATE INDEX IF NOT EXISTS idx_queue_entity ON sync_queue(entity_type, entity_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// migrations maps a from-version to the statements upgrading to the next
// version. Fresh databases get the full current schema from initSchema and
// skip straight to schemaVersion, so every addition here must also appear
// in the initSchema blob. Steps only run for stores created by an older
// release; each must still be safe to re-run after a crash mid-migration.
var migrations = map[int][]string{
	1: {
		`CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(due_date)`,
	},
}

// migrate compares the stored schema version to the current target and
// applies the missing steps inside one transaction per step. A no-op when
// already current.
func (s *Store) migrate(ctx context.Context) error {
	stored, err := s.GetMeta(ctx, MetaSchemaVersion)
	if err != nil {
		return err
	}

	version := 0
	if stored != "" {
		version, err = strconv.Atoi(stored)
		if err != nil {
			return fmt.Errorf("invalid stored schema version %q: %w", stored, err)
		}
	}

	if version == 0 {
		// Fresh database: initSchema already created everything at the
		// current version.
		return s.SetMeta(ctx, MetaSchemaVersion, strconv.Itoa(schemaVersion))
	}

	for v := version; v < schemaVersion; v++ {
		steps, ok := migrations[v]
		if !ok {
			return fmt.Errorf("no migration path from schema version %d", v)
		}
		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration transaction: %w", err)
		}
		for _, stmt := range steps {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d -> %d failed: %w", v, v+1, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_metadata (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			MetaSchemaVersion, strconv.Itoa(v+1),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to persist schema version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d -> %d: %w", v, v+1, err)
		}
		s.logger.Printf("Migrated schema %d -> %d", v, v+1)
	}

	return nil
}

// GetMeta returns the value stored under key, or "" when absent.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM sync_metadata WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read metadata %q: %w", key, err)
	}
	return value, nil
}

// SetMeta upserts a metadata key.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	if _, err := s.conn.ExecContext(ctx, `
		INSERT INTO sync_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("failed to write metadata %q: %w", key, err)
	}
	return nil
}
