package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ordo-todo/ordo-core/internal/record"
)

// Entry statuses. Completed entries are removed from the table on push
// success, so only pending, processing and failed rows persist.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusFailed     = "failed"
	StatusCompleted  = "completed"
)

// Entry is one queued mutation: a tagged union of (entity type, operation)
// with a full-record JSON snapshot as payload.
type Entry struct {
	ID            int64             `json:"id"`
	EntityType    record.EntityType `json:"entity_type"`
	EntityID      string            `json:"entity_id"`
	Operation     record.Operation  `json:"operation"`
	Payload       json.RawMessage   `json:"payload"`
	CreatedAt     int64             `json:"created_at"`
	Attempts      int               `json:"attempts"`
	LastAttemptAt *int64            `json:"last_attempt_at,omitempty"`
	LastError     string            `json:"last_error,omitempty"`
	Status        string            `json:"status"`
}

// Stats summarizes queue state for the sync state event and the CLI.
type Stats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
}

// Queue persists pending mutations in the sync_queue table of the local
// store. It shares the store's database handle; the table is created by the
// store's schema initialization.
type Queue struct {
	conn   *sql.DB
	logger *log.Logger
}

// New creates a Queue on an already-opened database connection.
// If logger is nil, a default logger writing to stderr is used.
func New(conn *sql.DB, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stderr, "[queue] ", log.LstdFlags)
	}
	return &Queue{conn: conn, logger: logger}
}

// Enqueue records a mutation, coalescing it into the latest pending entry
// for the same entity when one exists. The whole decision runs in one
// transaction so concurrent writers cannot produce duplicate pending rows.
func (q *Queue) Enqueue(ctx context.Context, et record.EntityType, entityID string, op record.Operation, payload []byte) error {
	tx, err := q.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prevID int64
	var prevOp record.Operation
	err = tx.QueryRowContext(ctx, `
		SELECT id, operation FROM sync_queue
		WHERE entity_type = ? AND entity_id = ? AND status = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		string(et), entityID, StatusPending,
	).Scan(&prevID, &prevOp)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sync_queue (entity_type, entity_id, operation, payload, created_at, status)
			VALUES (?, ?, ?, ?, ?, ?)`,
			string(et), entityID, string(op), string(payload), record.NowMillis(), StatusPending,
		); err != nil {
			return fmt.Errorf("failed to insert queue entry: %w", err)
		}

	case err != nil:
		return fmt.Errorf("failed to query pending entry: %w", err)

	default:
		switch Coalesce(prevOp, op) {
		case ActionMergePayload:
			if _, err := tx.ExecContext(ctx,
				`UPDATE sync_queue SET payload = ? WHERE id = ?`,
				string(payload), prevID,
			); err != nil {
				return fmt.Errorf("failed to merge queue payload: %w", err)
			}
		case ActionDrop:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM sync_queue WHERE id = ?`, prevID,
			); err != nil {
				return fmt.Errorf("failed to drop queue entry: %w", err)
			}
		case ActionReplace:
			if _, err := tx.ExecContext(ctx,
				`UPDATE sync_queue SET operation = ?, payload = ? WHERE id = ?`,
				string(op), string(payload), prevID,
			); err != nil {
				return fmt.Errorf("failed to replace queue entry: %w", err)
			}
		case ActionAppend:
			// Unreachable with a prior pending entry; kept for exhaustiveness.
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sync_queue (entity_type, entity_id, operation, payload, created_at, status)
				VALUES (?, ?, ?, ?, ?, ?)`,
				string(et), entityID, string(op), string(payload), record.NowMillis(), StatusPending,
			); err != nil {
				return fmt.Errorf("failed to insert queue entry: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit queue transaction: %w", err)
	}
	return nil
}

// NextBatch returns up to limit pending entries with id greater than afterID,
// in creation-time (FIFO) order. Failed entries are excluded until reset.
// Drain loops pass the last id they saw so an entry that failed back to
// pending is not picked up again until the next cycle.
func (q *Queue) NextBatch(ctx context.Context, afterID int64, limit int) ([]Entry, error) {
	rows, err := q.conn.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, operation, payload,
		       created_at, attempts, last_attempt_at, last_error, status
		FROM sync_queue
		WHERE status = ? AND id > ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		StatusPending, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// List returns up to limit entries of any status in FIFO order.
func (q *Queue) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := q.conn.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, operation, payload,
		       created_at, attempts, last_attempt_at, last_error, status
		FROM sync_queue
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// MarkProcessing claims an entry before the push attempt.
func (q *Queue) MarkProcessing(ctx context.Context, id int64) error {
	if _, err := q.conn.ExecContext(ctx,
		`UPDATE sync_queue SET status = ? WHERE id = ?`, StatusProcessing, id,
	); err != nil {
		return fmt.Errorf("failed to mark entry %d processing: %w", id, err)
	}
	return nil
}

// Complete removes a successfully pushed entry.
func (q *Queue) Complete(ctx context.Context, id int64) error {
	if _, err := q.conn.ExecContext(ctx,
		`DELETE FROM sync_queue WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("failed to complete entry %d: %w", id, err)
	}
	return nil
}

// Fail records a push failure: increments the attempt count, stores the
// error and returns the entry to pending, unless attempts have reached
// maxAttempts, in which case the entry is marked failed and excluded from
// future automatic retries. Returns true when the entry transitioned to
// failed.
func (q *Queue) Fail(ctx context.Context, id int64, pushErr string, maxAttempts int) (bool, error) {
	tx, err := q.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts int
	if err := tx.QueryRowContext(ctx,
		`SELECT attempts FROM sync_queue WHERE id = ?`, id,
	).Scan(&attempts); err != nil {
		return false, fmt.Errorf("failed to read attempts for entry %d: %w", id, err)
	}

	attempts++
	status := StatusPending
	if attempts >= maxAttempts {
		status = StatusFailed
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sync_queue
		SET attempts = ?, last_attempt_at = ?, last_error = ?, status = ?
		WHERE id = ?`,
		attempts, record.NowMillis(), pushErr, status, id,
	); err != nil {
		return false, fmt.Errorf("failed to record failure for entry %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit failure transaction: %w", err)
	}
	return status == StatusFailed, nil
}

// ResetFailed re-arms all failed entries for another round of automatic
// retries. Returns the number of entries reset.
func (q *Queue) ResetFailed(ctx context.Context) (int, error) {
	res, err := q.conn.ExecContext(ctx, `
		UPDATE sync_queue
		SET status = ?, attempts = 0, last_error = NULL
		WHERE status = ?`,
		StatusPending, StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset entries: %w", err)
	}
	return int(n), nil
}

// Stats returns pending/processing/failed counts.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	rows, err := q.conn.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sync_queue GROUP BY status`,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to query queue stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("failed to scan queue stats: %w", err)
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("error iterating queue stats: %w", err)
	}
	return stats, nil
}

// EntriesForEntity returns all queue rows for one entity, newest last.
// Used by tests and the queue inspection CLI.
func (q *Queue) EntriesForEntity(ctx context.Context, et record.EntityType, entityID string) ([]Entry, error) {
	rows, err := q.conn.QueryContext(ctx, `
		SELECT id, entity_type, entity_id, operation, payload,
		       created_at, attempts, last_attempt_at, last_error, status
		FROM sync_queue
		WHERE entity_type = ? AND entity_id = ?
		ORDER BY created_at ASC, id ASC`,
		string(et), entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var e Entry
		var et, op, payload string
		var lastAttempt sql.NullInt64
		var lastError sql.NullString
		if err := rows.Scan(
			&e.ID, &et, &e.EntityID, &op, &payload,
			&e.CreatedAt, &e.Attempts, &lastAttempt, &lastError, &e.Status,
		); err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		e.EntityType = record.EntityType(et)
		e.Operation = record.Operation(op)
		e.Payload = json.RawMessage(payload)
		if lastAttempt.Valid {
			v := lastAttempt.Int64
			e.LastAttemptAt = &v
		}
		if lastError.Valid {
			e.LastError = lastError.String
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating queue entries: %w", err)
	}
	return entries, nil
}
