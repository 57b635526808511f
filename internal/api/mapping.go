// Package api is the HTTP client for the remote Ordo API.
//
// Local storage and the wire format disagree on field naming: local records
// use snake_case keys with epoch-millis timestamps, the API uses camelCase
// keys with ISO-8601 date strings. Translation is driven by explicit
// per-entity mapping tables rather than a generic case transform, so the
// set of translated fields is fixed and testable.
package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ordo-todo/ordo-core/internal/record"
)

// Field maps one local JSON key to its wire counterpart.
//
// IsTime marks epoch-millis fields rendered as ISO-8601 on the wire.
// PullOnly fields are accepted from the remote but never sent to it.
// A field with an empty Wire name is local bookkeeping and never crosses
// the wire in either direction.
type Field struct {
	Local    string
	Wire     string
	IsTime   bool
	PullOnly bool
}

// envelopeFields is the translation shared by every syncable entity.
// local_updated_at, server_updated_at, is_synced and sync_status are
// bookkeeping and never leave the process.
var envelopeFields = []Field{
	{Local: "id", Wire: "id"},
	{Local: "created_at", Wire: "createdAt", IsTime: true},
	{Local: "updated_at", Wire: "updatedAt", IsTime: true},
	{Local: "local_updated_at"},
	{Local: "server_updated_at"},
	{Local: "is_synced"},
	{Local: "sync_status"},
	{Local: "is_deleted", Wire: "isDeleted", PullOnly: true},
}

var entityFields = map[record.EntityType][]Field{
	record.TypeWorkspace: {
		{Local: "name", Wire: "name"},
		{Local: "description", Wire: "description"},
		{Local: "color", Wire: "color"},
		{Local: "icon", Wire: "icon"},
		{Local: "owner_id", Wire: "ownerId"},
	},
	record.TypeProject: {
		{Local: "workspace_id", Wire: "workspaceId"},
		{Local: "name", Wire: "name"},
		{Local: "description", Wire: "description"},
		{Local: "color", Wire: "color"},
		{Local: "status", Wire: "status"},
		{Local: "start_date", Wire: "startDate", IsTime: true},
		{Local: "end_date", Wire: "endDate", IsTime: true},
	},
	record.TypeTask: {
		{Local: "workspace_id", Wire: "workspaceId"},
		{Local: "project_id", Wire: "projectId"},
		{Local: "parent_task_id", Wire: "parentTaskId"},
		{Local: "title", Wire: "title"},
		{Local: "description", Wire: "description"},
		{Local: "status", Wire: "status"},
		{Local: "priority", Wire: "priority"},
		{Local: "due_date", Wire: "dueDate", IsTime: true},
		{Local: "estimated_pomodoros", Wire: "estimatedPomodoros"},
		{Local: "completed_pomodoros", Wire: "completedPomodoros"},
		{Local: "position", Wire: "position"},
		{Local: "completed_at", Wire: "completedAt", IsTime: true},
		{Local: "tags", Wire: "tags"},
	},
	record.TypeTag: {
		{Local: "workspace_id", Wire: "workspaceId"},
		{Local: "name", Wire: "name"},
		{Local: "color", Wire: "color"},
	},
	record.TypeSubtask: {
		{Local: "task_id", Wire: "taskId"},
		{Local: "title", Wire: "title"},
		{Local: "is_completed", Wire: "isCompleted"},
		{Local: "position", Wire: "position"},
	},
	record.TypeComment: {
		{Local: "task_id", Wire: "taskId"},
		{Local: "author_id", Wire: "authorId"},
		{Local: "content", Wire: "content"},
	},
	record.TypeSession: {
		{Local: "workspace_id", Wire: "workspaceId"},
		{Local: "task_id", Wire: "taskId"},
		{Local: "type", Wire: "type"},
		{Local: "duration", Wire: "duration"},
		{Local: "started_at", Wire: "startedAt", IsTime: true},
		{Local: "completed_at", Wire: "completedAt", IsTime: true},
		{Local: "was_interrupted", Wire: "wasInterrupted"},
		{Local: "notes", Wire: "notes"},
	},
}

// MappingFor returns the full translation table (envelope plus entity
// fields) for the given entity type.
func MappingFor(et record.EntityType) ([]Field, error) {
	fields, ok := entityFields[et]
	if !ok {
		return nil, fmt.Errorf("no field mapping for entity type %q", et)
	}
	out := make([]Field, 0, len(envelopeFields)+len(fields))
	out = append(out, envelopeFields...)
	out = append(out, fields...)
	return out, nil
}

// ToWire translates a local-format JSON record into the wire format.
// Bookkeeping and pull-only fields are dropped; absent fields are skipped.
func ToWire(et record.EntityType, local json.RawMessage) (json.RawMessage, error) {
	mapping, err := MappingFor(et)
	if err != nil {
		return nil, err
	}

	var in map[string]any
	if err := json.Unmarshal(local, &in); err != nil {
		return nil, fmt.Errorf("failed to decode local %s record: %w", et, err)
	}

	out := make(map[string]any, len(mapping))
	for _, f := range mapping {
		if f.Wire == "" || f.PullOnly {
			continue
		}
		v, ok := in[f.Local]
		if !ok || v == nil {
			continue
		}
		if f.IsTime {
			iso, err := millisToISO(v)
			if err != nil {
				return nil, fmt.Errorf("field %s of %s: %w", f.Local, et, err)
			}
			out[f.Wire] = iso
			continue
		}
		out[f.Wire] = v
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode wire %s record: %w", et, err)
	}
	return encoded, nil
}

// FromWire translates a wire-format JSON record into the local format.
// Wire keys outside the mapping table are ignored.
func FromWire(et record.EntityType, wire json.RawMessage) (json.RawMessage, error) {
	mapping, err := MappingFor(et)
	if err != nil {
		return nil, err
	}

	var in map[string]any
	if err := json.Unmarshal(wire, &in); err != nil {
		return nil, fmt.Errorf("failed to decode wire %s record: %w", et, err)
	}

	out := make(map[string]any, len(mapping))
	for _, f := range mapping {
		if f.Wire == "" {
			continue
		}
		v, ok := in[f.Wire]
		if !ok || v == nil {
			continue
		}
		if f.IsTime {
			millis, err := isoToMillis(v)
			if err != nil {
				return nil, fmt.Errorf("field %s of %s: %w", f.Wire, et, err)
			}
			out[f.Local] = millis
			continue
		}
		out[f.Local] = v
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode local %s record: %w", et, err)
	}
	return encoded, nil
}

func millisToISO(v any) (string, error) {
	n, ok := v.(float64)
	if !ok {
		return "", fmt.Errorf("expected epoch millis, got %T", v)
	}
	return time.UnixMilli(int64(n)).UTC().Format(time.RFC3339Nano), nil
}

func isoToMillis(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("expected ISO-8601 string, got %T", v)
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("invalid ISO-8601 timestamp %q: %w", s, err)
	}
	return t.UnixMilli(), nil
}
