// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import "errors"

// Error sentinels for boundary and storage failures.
//
// Field-level conflicts (stale writes) are deliberately NOT errors: they are
// the normal outcome of concurrent editing and are reported through
// MergeResult.Conflicts so the caller can surface a targeted "someone else
// changed X" message per field.
var (
	// ErrMalformedVersions means a client (or legacy record) supplied a field
	// versions blob that fails structural validation. Rejected at the boundary,
	// before any merge is attempted.
	ErrMalformedVersions = errors.New("malformed_versions")

	// ErrBadPayload means the submitted attribute payload is not a JSON object
	// or violates payload rules (reserved keys, size limit).
	ErrBadPayload = errors.New("bad_payload")

	// ErrUnregisteredEntityType means the entity type was not registered in the
	// service config. Versioned-field sets are configuration, not discovery.
	ErrUnregisteredEntityType = errors.New("unregistered_entity_type")

	// ErrEntityNotFound means no live entity exists for the production scope
	// and internal key.
	ErrEntityNotFound = errors.New("entity_not_found")

	// ErrRevisionMismatch means the whole-row revision guard rejected a write
	// because another transaction committed between read and write. The caller
	// retries with fresh state instead of silently losing the update.
	ErrRevisionMismatch = errors.New("revision_mismatch")
)
