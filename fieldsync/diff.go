// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DiffCreated is the sentinel diff recorded for newly created entities, in
// place of a field-by-field diff.
var DiffCreated = json.RawMessage(`{"__created__":true}`)

// FieldChange is one entry of a computed diff.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// DecodeSnapshot parses an entity snapshot preserving numeric precision:
// numbers decode as json.Number so large integer values (timestamps beyond
// 2^53) survive the round trip exactly.
func DecodeSnapshot(raw json.RawMessage) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: decode snapshot: %v", ErrBadPayload, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: snapshot must be a JSON object", ErrBadPayload)
	}
	return m, nil
}

// ComputeDiff compares two entity snapshots by serialized value and returns
// the per-field changes as {field: {from, to}}. A missing old snapshot yields
// the DiffCreated sentinel; identical snapshots yield nil.
func ComputeDiff(oldSnapshot, newSnapshot json.RawMessage) (json.RawMessage, error) {
	if isJSONNull(oldSnapshot) {
		return DiffCreated, nil
	}

	oldMap, err := DecodeSnapshot(oldSnapshot)
	if err != nil {
		return nil, err
	}
	newMap, err := DecodeSnapshot(newSnapshot)
	if err != nil {
		return nil, err
	}

	changes := make(map[string]FieldChange)
	for key, oldVal := range oldMap {
		newVal, ok := newMap[key]
		if !ok || canonicalValue(oldVal) != canonicalValue(newVal) {
			changes[key] = FieldChange{From: oldVal, To: newVal}
		}
	}
	for key, newVal := range newMap {
		if _, ok := oldMap[key]; !ok {
			changes[key] = FieldChange{From: nil, To: newVal}
		}
	}

	if len(changes) == 0 {
		return nil, nil
	}
	return json.Marshal(changes)
}

// canonicalValue serializes a decoded JSON value for comparison. json.Number
// marshals back to its exact source text, so integer timestamps above the
// float64-safe range compare correctly.
func canonicalValue(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("!%v", v)
	}
	return string(b)
}

func isJSONNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
