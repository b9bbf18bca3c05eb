// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"bytes"
	"encoding/json"
	"time"
)

// FieldVersion is the revision clock entry for a single versioned field.
type FieldVersion struct {
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FieldVersions maps versioned field names to their revision clock entries.
// Only fields declared in the entity type's versioned-field set appear here;
// the display label is excluded by construction.
type FieldVersions map[string]FieldVersion

// InitializeFieldVersions returns the version clock for a freshly created
// entity: every declared field at version 1, stamped now. The display label
// field is filtered out even if a caller passes it in.
func InitializeFieldVersions(versionedFields []string) FieldVersions {
	now := time.Now().UTC()
	versions := make(FieldVersions, len(versionedFields))
	for _, field := range versionedFields {
		if field == LabelField {
			continue
		}
		versions[field] = FieldVersion{Version: 1, UpdatedAt: now}
	}
	return versions
}

// VersionOf returns the current version of a field, or 0 if the field has no
// entry. The zero default means a first write to a never-versioned field
// always wins without a special-case branch.
func (v FieldVersions) VersionOf(field string) int64 {
	return v[field].Version
}

// Clone returns a shallow copy. A nil receiver clones to an empty map so the
// result is always safe to mutate.
func (v FieldVersions) Clone() FieldVersions {
	out := make(FieldVersions, len(v))
	for field, entry := range v {
		out[field] = entry
	}
	return out
}

// Bump returns a new map equal to the input except the named field is at
// version+1 (or 1 if absent), stamped now. Pure; never mutates the receiver.
func (v FieldVersions) Bump(field string) FieldVersions {
	out := v.Clone()
	out[field] = FieldVersion{Version: v.VersionOf(field) + 1, UpdatedAt: time.Now().UTC()}
	return out
}

// IsWellFormedVersions structurally validates a field versions blob supplied
// by a client or read back from a legacy record. It rejects null, arrays and
// non-objects, and any entry whose version is not an integer or whose
// updatedAt is not a parseable timestamp string.
func IsWellFormedVersions(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &entries); err != nil {
		return false
	}

	for _, entryRaw := range entries {
		var entry map[string]json.RawMessage
		if err := json.Unmarshal(entryRaw, &entry); err != nil || entry == nil {
			return false
		}

		verRaw, ok := entry["version"]
		if !ok {
			return false
		}
		// Unmarshal into json.Number accepts quoted numerics like "2";
		// only a bare number token is a valid version.
		verToken := bytes.TrimSpace(verRaw)
		if len(verToken) == 0 || verToken[0] == '"' {
			return false
		}
		var num json.Number
		if err := json.Unmarshal(verToken, &num); err != nil {
			return false
		}
		if _, err := num.Int64(); err != nil {
			return false
		}

		tsRaw, ok := entry["updatedAt"]
		if !ok {
			return false
		}
		var ts string
		if err := json.Unmarshal(tsRaw, &ts); err != nil {
			return false
		}
		if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
			return false
		}
	}

	return true
}

// ParseFieldVersions decodes a field versions blob after structural
// validation. Empty input is treated as an empty clock (every field at
// version 0), which is the correct premise for a client that has never read
// the entity.
func ParseFieldVersions(raw json.RawMessage) (FieldVersions, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return FieldVersions{}, nil
	}
	if !IsWellFormedVersions(trimmed) {
		return nil, ErrMalformedVersions
	}
	var versions FieldVersions
	if err := json.Unmarshal(trimmed, &versions); err != nil {
		return nil, ErrMalformedVersions
	}
	if versions == nil {
		versions = FieldVersions{}
	}
	return versions, nil
}
