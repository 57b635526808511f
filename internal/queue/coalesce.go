// Package queue implements the durable sync queue: an ordered list of
// pending mutations awaiting push to the remote API, with coalescing so that
// repeated edits to the same unsynced entity never produce redundant entries.
package queue

import "github.com/ordo-todo/ordo-core/internal/record"

// Action is the outcome of coalescing a new operation against the latest
// pending entry for the same (entity type, entity id).
type Action int

const (
	// ActionAppend inserts a brand-new queue entry (no prior pending entry).
	ActionAppend Action = iota

	// ActionMergePayload keeps the prior entry and its operation but swaps
	// in the new payload (create+update, update+update).
	ActionMergePayload

	// ActionDrop removes the prior entry and enqueues nothing: a create
	// followed by a delete never needs to reach the server.
	ActionDrop

	// ActionReplace rewrites the prior entry with the new operation and
	// payload (update+delete, and any other late transition).
	ActionReplace
)

// Coalesce decides what to do with a new operation given the operation of
// the most recent pending entry for the same entity. Only entries with
// status pending are candidates; processing and failed entries are never
// coalesced into.
//
//	prev=create new=update -> merge payload, stays a create
//	prev=create new=delete -> drop (the entity never existed remotely)
//	prev=update new=update -> merge payload
//	prev=update new=delete -> replace with delete
//
// Any other combination replaces the prior entry outright, preserving the
// at-most-one-pending-entry invariant with the newest operation winning.
func Coalesce(prev, next record.Operation) Action {
	switch {
	case prev == record.OpCreate && next == record.OpUpdate:
		return ActionMergePayload
	case prev == record.OpCreate && next == record.OpDelete:
		return ActionDrop
	case prev == record.OpUpdate && next == record.OpUpdate:
		return ActionMergePayload
	case prev == record.OpUpdate && next == record.OpDelete:
		return ActionReplace
	default:
		return ActionReplace
	}
}
