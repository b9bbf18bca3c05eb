// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import "github.com/google/uuid"

// Every entity carries two identifiers. The internal key is system-assigned
// at creation, immutable, and globally unique: it is the sole basis for
// relationships between entities and for conflict bookkeeping. The display
// label (the "label" attribute) is user-assigned, mutable, and not required
// to be unique; it exists purely for the UI. Anything that wants label
// uniqueness must enforce it as a separate business rule (see
// EntityStore.LabelInUse), never through the version machinery.

// NewInternalKey generates the immutable internal key for a new entity.
func NewInternalKey() string {
	return uuid.New().String()
}

// isValidInternalKey reports whether a caller-supplied key parses as a UUID.
func isValidInternalKey(key string) bool {
	_, err := uuid.Parse(key)
	return err == nil
}
