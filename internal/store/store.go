// Package store implements the local-first SQLite store for the Ordo core.
//
// A single database file holds every domain entity (workspaces, projects,
// tasks, tags, subtasks, comments, pomodoro sessions) plus two bookkeeping
// tables: sync_metadata (key/value, including the schema version and last
// sync time) and sync_queue (pending mutations, managed by internal/queue).
//
// The store is the only writer of domain tables. Every local mutation stamps
// the record's sync envelope and enqueues a coalesced mutation; remote
// acknowledgements and pulled records flow back in through the reconcile
// methods, which the sync engine calls.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/ordo-todo/ordo-core/internal/queue"
	"github.com/ordo-todo/ordo-core/internal/record"
)

// Sentinel errors returned by repository reads and writes.
var (
	// ErrNotFound is returned when no live row matches the given id.
	// Soft-deleted rows are reported as not found by all public getters.
	ErrNotFound = errors.New("record not found")
)

// Store wraps the SQLite connection with repository and reconcile methods.
type Store struct {
	conn   *sql.DB
	path   string
	queue  *queue.Queue
	logger *log.Logger
}

// Open creates (if absent) and opens the database file at path, enabling
// WAL journaling, NORMAL synchronous mode and foreign-key enforcement, and
// runs the idempotent schema initialization and migrations.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:   conn,
		path:   path,
		logger: log.New(os.Stderr, "[store] ", log.LstdFlags),
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := s.conn.Exec(pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	if err := s.migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// SetQueue attaches the sync queue used for mutation bookkeeping. Without a
// queue attached, repository writes still succeed but nothing is enqueued
// (used by tests that exercise storage alone).
func (s *Store) SetQueue(q *queue.Queue) {
	s.queue = q
}

// SetLogger replaces the default stderr logger.
func (s *Store) SetLogger(logger *log.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// RawDB returns the underlying sql.DB connection, for wiring the queue and
// for tests.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection. Safe to call twice.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// enqueue records a mutation in the sync queue. Enqueue failures are logged
// but never roll back the data write: the queue is a best-effort durability
// aid, not the source of truth.
func (s *Store) enqueue(ctx context.Context, et record.EntityType, entityID string, op record.Operation, payload []byte) {
	if s.queue == nil {
		return
	}
	if err := s.queue.Enqueue(ctx, et, entityID, op, payload); err != nil {
		s.logger.Printf("Warning: failed to enqueue %s %s %s: %v", op, et, entityID, err)
	}
}
