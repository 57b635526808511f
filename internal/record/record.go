// Package record defines the syncable domain entities for the Ordo core.
//
// Every syncable record carries a sync envelope: bookkeeping fields that
// track whether the row has been acknowledged by the remote API and whether
// it is a soft-deleted tombstone. Timestamps are epoch milliseconds in local
// storage; the API layer translates them to ISO-8601 on the wire.
package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SyncStatus tracks a record's position in the sync lifecycle.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSynced   SyncStatus = "synced"
	SyncConflict SyncStatus = "conflict"
	SyncDeleted  SyncStatus = "deleted"
)

// Operation is a queued mutation kind.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// EntityType identifies a syncable entity kind.
type EntityType string

const (
	TypeWorkspace EntityType = "workspace"
	TypeProject   EntityType = "project"
	TypeTask      EntityType = "task"
	TypeTag       EntityType = "tag"
	TypeSubtask   EntityType = "subtask"
	TypeComment   EntityType = "comment"
	TypeSession   EntityType = "pomodoro_session"
)

// EntityTypes lists all syncable entity types in pull order: parents before
// children so foreign keys resolve when applying remote batches.
var EntityTypes = []EntityType{
	TypeWorkspace,
	TypeProject,
	TypeTag,
	TypeTask,
	TypeSubtask,
	TypeComment,
	TypeSession,
}

// collections maps entity types to their remote REST collection paths.
var collections = map[EntityType]string{
	TypeWorkspace: "workspaces",
	TypeProject:   "projects",
	TypeTask:      "tasks",
	TypeTag:       "tags",
	TypeSubtask:   "subtasks",
	TypeComment:   "comments",
	TypeSession:   "pomodoro-sessions",
}

// Collection returns the remote collection path for the entity type.
func (e EntityType) Collection() (string, error) {
	c, ok := collections[e]
	if !ok {
		return "", fmt.Errorf("unknown entity type %q", e)
	}
	return c, nil
}

// Valid reports whether the entity type is registered.
func (e EntityType) Valid() bool {
	_, ok := collections[e]
	return ok
}

// Envelope is the sync bookkeeping shared by every syncable record.
//
// LocalUpdatedAt is bumped on every local mutation. ServerUpdatedAt is set
// only from a confirmed remote response. IsDeleted marks a tombstone: the
// row stays in the store until the delete is acknowledged remotely.
type Envelope struct {
	ID              string     `json:"id"`
	CreatedAt       int64      `json:"created_at"`
	UpdatedAt       int64      `json:"updated_at"`
	LocalUpdatedAt  int64      `json:"local_updated_at"`
	ServerUpdatedAt *int64     `json:"server_updated_at,omitempty"`
	IsSynced        bool       `json:"is_synced"`
	SyncStatus      SyncStatus `json:"sync_status"`
	IsDeleted       bool       `json:"is_deleted"`
}

// NewEnvelope returns an envelope for a freshly created local record:
// client-generated UUID, all timestamps set to now, pending and unsynced.
func NewEnvelope() Envelope {
	now := NowMillis()
	return Envelope{
		ID:             uuid.NewString(),
		CreatedAt:      now,
		UpdatedAt:      now,
		LocalUpdatedAt: now,
		IsSynced:       false,
		SyncStatus:     SyncPending,
	}
}

// TouchLocal stamps a local mutation: bumps UpdatedAt and LocalUpdatedAt and
// resets the record to unsynced/pending.
func (e *Envelope) TouchLocal() {
	now := NowMillis()
	e.UpdatedAt = now
	e.LocalUpdatedAt = now
	e.IsSynced = false
	e.SyncStatus = SyncPending
}

// MarkDeleted turns the envelope into a tombstone.
func (e *Envelope) MarkDeleted() {
	e.LocalUpdatedAt = NowMillis()
	e.IsSynced = false
	e.SyncStatus = SyncDeleted
	e.IsDeleted = true
}

// MarkSynced records a confirmed remote acknowledgement.
func (e *Envelope) MarkSynced(serverUpdatedAt int64) {
	e.ServerUpdatedAt = &serverUpdatedAt
	e.IsSynced = true
	e.SyncStatus = SyncSynced
}

// NowMillis returns the current time as epoch milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
