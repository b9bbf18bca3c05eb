// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// Operation constants for entity mutations
const (
	OpCreate = "CREATE"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// LabelField is the attribute key that holds the user-facing display label.
// The label is cosmetic and mutable; it is never part of any entity type's
// versioned-field set, so renaming an entity cannot conflict with (or be
// blocked by) concurrent edits to other attributes.
const LabelField = "label"

// Invalid reason constants
const (
	ReasonBadPayload             = "bad_payload"
	ReasonMalformedVersions      = "malformed_versions"
	ReasonUnregisteredEntityType = "unregistered_entity_type"
	ReasonNotFound               = "not_found"
	ReasonInternalError          = "internal_error"
)

// Hub message type constants. Entity mutation events are typed per entity
// type at broadcast time ("camera:updated" etc.), see Hub.eventType.
const (
	MsgPresenceList = "presence:list"

	suffixCreated = "created"
	suffixUpdated = "updated"
	suffixDeleted = "deleted"
)
