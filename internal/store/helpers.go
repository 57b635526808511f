package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/ordo-todo/ordo-core/internal/record"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullI64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func i64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullStr(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func strPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// snapshotAndEnqueue marshals the record and hands it to the sync queue.
// Marshal failures are logged, not propagated: the data write already
// succeeded and the queue is best-effort.
func (s *Store) snapshotAndEnqueue(ctx context.Context, et record.EntityType, entityID string, op record.Operation, rec any) {
	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Printf("Warning: failed to snapshot %s %s: %v", et, entityID, err)
		return
	}
	s.enqueue(ctx, et, entityID, op, payload)
}
