// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reserved attribute keys. These live in dedicated columns and may not be
// smuggled in through the attribute map.
var reservedAttrKeys = []string{"entity_key", "revision", "field_versions", "deleted"}

// isValidEntityTypeName checks if an entity type name matches ^[a-z0-9_]+$
func isValidEntityTypeName(name string) bool {
	if len(name) == 0 {
		return false
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_') {
			return false
		}
	}
	return true
}

// isValidProductionID checks if a production scope identifier matches
// ^[A-Za-z0-9_-]+$
func isValidProductionID(id string) bool {
	if len(id) == 0 {
		return false
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

// validateAttrs checks a client-submitted attribute payload at the trust
// boundary: must be a JSON object, within the size limit, without reserved
// keys. Returns the decoded map (json.Number preserved) on success.
func (s *SyncService) validateAttrs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: attribute payload required", ErrBadPayload)
	}
	if s.config.MaxPayloadBytes > 0 && len(raw) > s.config.MaxPayloadBytes {
		return nil, fmt.Errorf("%w: payload too large: %d > %d", ErrBadPayload, len(raw), s.config.MaxPayloadBytes)
	}

	attrs, err := DecodeSnapshot(raw)
	if err != nil {
		return nil, err
	}

	for _, key := range reservedAttrKeys {
		if _, ok := attrs[key]; ok {
			return nil, fmt.Errorf("%w: payload may not contain %s", ErrBadPayload, key)
		}
	}
	if label, ok := attrs[LabelField]; ok {
		if _, isString := label.(string); !isString {
			return nil, fmt.Errorf("%w: label must be a string", ErrBadPayload)
		}
	}

	return attrs, nil
}

// versionedFieldsFor resolves the versioned-field set of a registered entity
// type. Entity types are configuration supplied by the caller, not discovered
// dynamically.
func (s *SyncService) versionedFieldsFor(entityType string) ([]string, error) {
	normalized := strings.ToLower(strings.TrimSpace(entityType))
	fields, ok := s.versionedFields[normalized]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredEntityType, entityType)
	}
	return fields, nil
}
