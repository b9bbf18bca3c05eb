// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"encoding/json"
	"time"
)

// REST/JSON models for the HTTP API and the service entry points.

// CreateRequest proposes a new entity. Attrs is the flat attribute map; the
// display label may be set either through Label or as attrs.label.
type CreateRequest struct {
	ProductionID  string          `json:"production_id"`
	EntityType    string          `json:"entity_type"`
	Label         string          `json:"label,omitempty"`
	Attrs         json.RawMessage `json:"attrs"`
	UserID        string          `json:"-"` // From auth, not request body
	UserName      string          `json:"-"`
	OriginSession string          `json:"origin_session,omitempty"` // Excluded from the resulting broadcast
}

// UpdateRequest proposes a field-level update carrying the client's
// last-known field versions as its premise.
type UpdateRequest struct {
	ProductionID  string          `json:"production_id"`
	EntityType    string          `json:"entity_type"`
	EntityKey     string          `json:"entity_key"`
	FieldVersions json.RawMessage `json:"field_versions"` // Client's last-known versions
	Data          json.RawMessage `json:"data"`           // Proposed attribute changes
	UserID        string          `json:"-"`
	UserName      string          `json:"-"`
	OriginSession string          `json:"origin_session,omitempty"`
}

// DeleteRequest proposes a soft delete.
type DeleteRequest struct {
	ProductionID  string `json:"production_id"`
	EntityType    string `json:"entity_type"`
	EntityKey     string `json:"entity_key"`
	UserID        string `json:"-"`
	UserName      string `json:"-"`
	OriginSession string `json:"origin_session,omitempty"`
}

// UpdateResult is returned to the submitting client. When HasConflicts is
// true the accepted subset was still applied; Conflicts lists each stale
// field with both values so the caller can surface a targeted message.
type UpdateResult struct {
	HasConflicts   bool            `json:"hasConflicts"`
	Conflicts      []Conflict      `json:"conflicts,omitempty"`
	EntityKey      string          `json:"entity_key"`
	MergedData     json.RawMessage `json:"mergedData"`
	MergedVersions FieldVersions   `json:"mergedVersions"`
	Revision       int64           `json:"revision"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CreateResult describes a freshly created entity.
type CreateResult struct {
	EntityKey     string          `json:"entity_key"`
	Label         string          `json:"label"`
	Attrs         json.RawMessage `json:"attrs"`
	FieldVersions FieldVersions   `json:"fieldVersions"`
	Revision      int64           `json:"revision"`
	CreatedAt     time.Time       `json:"created_at"`
}

// DeleteResult echoes the deleted key and final revision.
type DeleteResult struct {
	EntityKey string `json:"entity_key"`
	Revision  int64  `json:"revision"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusResponse represents service status response
type StatusResponse struct {
	Status      string   `json:"status"`
	AppName     string   `json:"app_name"`
	EntityTypes []string `json:"entity_types"`
}
