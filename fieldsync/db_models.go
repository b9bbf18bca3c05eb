// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"encoding/json"
	"time"
)

// Database entity models for the tracker schema tables.

// EntityRecord represents a row in tracker.entities: one trackable object
// (camera, lens, audio kit, lighting fixture).
//
// EntityKey is the immutable internal key, the sole stable reference for
// relationships and version bookkeeping. Label is the mutable, non-unique
// display label. Revision is the whole-row optimistic lock, orthogonal to the
// per-field version clock carried in FieldVersions.
type EntityRecord struct {
	EntityKey     string          `db:"entity_key"`     // UUID as string, immutable
	ProductionID  string          `db:"production_id"`  // Production scope; entities never move between productions
	EntityType    string          `db:"entity_type"`    // Registered entity type name
	Label         string          `db:"label"`          // Display label (denormalized copy of attrs.label)
	Attrs         json.RawMessage `db:"attrs"`          // Flat domain attribute map
	FieldVersions json.RawMessage `db:"field_versions"` // Per-field version clock
	Revision      int64           `db:"revision"`       // Whole-row revision, starts at 1
	Deleted       bool            `db:"deleted"`        // Soft-delete flag
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
	UpdatedBy     string          `db:"updated_by"` // Last modifying user ID
}

// Event represents a row in tracker.entity_events: one immutable audit record
// of an accepted mutation. Events are never updated or deleted; ListSince over
// them is the catch-up primitive for reconnecting clients.
type Event struct {
	EventID      int64           `db:"event_id" json:"event_id"`
	ProductionID string          `db:"production_id" json:"production_id"`
	EntityType   string          `db:"entity_type" json:"entity_type"`
	Op           string          `db:"op" json:"op"` // CREATE, UPDATE, DELETE
	EntityKey    string          `db:"entity_key" json:"entity_key"`
	Snapshot     json.RawMessage `db:"snapshot" json:"snapshot,omitempty"` // Full post-mutation snapshot
	Diff         json.RawMessage `db:"diff" json:"diff,omitempty"`         // {field:{from,to}}, DiffCreated, or null
	UserID       string          `db:"user_id" json:"user_id"`
	UserName     string          `db:"user_name" json:"user_name"`
	Revision     int64           `db:"revision" json:"revision"` // Record revision at mutation time
	Timestamp    time.Time       `db:"ts" json:"ts"`             // Server timestamp
}
