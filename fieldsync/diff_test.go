// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"encoding/json"
	"testing"
)

func TestComputeDiff_CreatedSentinel(t *testing.T) {
	for _, old := range []json.RawMessage{nil, json.RawMessage(``), json.RawMessage(`null`)} {
		diff, err := ComputeDiff(old, json.RawMessage(`{"status":"available"}`))
		if err != nil {
			t.Fatalf("ComputeDiff: %v", err)
		}
		if string(diff) != string(DiffCreated) {
			t.Errorf("Expected created sentinel for old=%q, got %s", old, diff)
		}
	}
}

func TestComputeDiff_NoChangesYieldsNil(t *testing.T) {
	snapshot := json.RawMessage(`{"status":"available","count":3}`)
	diff, err := ComputeDiff(snapshot, json.RawMessage(`{"count":3,"status":"available"}`))
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	if diff != nil {
		t.Errorf("Expected nil diff for identical snapshots, got %s", diff)
	}
}

func TestComputeDiff_ChangedAddedRemoved(t *testing.T) {
	oldSnap := json.RawMessage(`{"status":"available","location":"stage 3","notes":"ok"}`)
	newSnap := json.RawMessage(`{"status":"checked_out","location":"stage 3","assigned_to":"dana"}`)

	diff, err := ComputeDiff(oldSnap, newSnap)
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}

	var changes map[string]FieldChange
	if err := json.Unmarshal(diff, &changes); err != nil {
		t.Fatalf("decode diff: %v", err)
	}

	if len(changes) != 3 {
		t.Fatalf("Expected 3 changes, got %d: %v", len(changes), changes)
	}
	if c := changes["status"]; c.From != "available" || c.To != "checked_out" {
		t.Errorf("status change wrong: %+v", c)
	}
	if c := changes["notes"]; c.From != "ok" || c.To != nil {
		t.Errorf("removed field change wrong: %+v", c)
	}
	if c := changes["assigned_to"]; c.From != nil || c.To != "dana" {
		t.Errorf("added field change wrong: %+v", c)
	}
	if _, ok := changes["location"]; ok {
		t.Error("Unchanged field must not appear in the diff")
	}
}

func TestComputeDiff_LargeIntegersComparedExactly(t *testing.T) {
	// Adjacent integers above 2^53 collapse to the same float64. The diff
	// path must keep them distinct.
	oldSnap := json.RawMessage(`{"scan_id":9007199254740993}`)
	newSnap := json.RawMessage(`{"scan_id":9007199254740992}`)

	diff, err := ComputeDiff(oldSnap, newSnap)
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	if diff == nil {
		t.Fatal("Expected adjacent large integers to be detected as a change")
	}

	var changes map[string]json.RawMessage
	if err := json.Unmarshal(diff, &changes); err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if string(changes["scan_id"]) != `{"from":9007199254740993,"to":9007199254740992}` {
		t.Errorf("Large integers lost precision: %s", changes["scan_id"])
	}
}

func TestComputeDiff_EqualLargeIntegersAreNotAChange(t *testing.T) {
	snap := json.RawMessage(`{"scan_id":9007199254740993}`)
	diff, err := ComputeDiff(snap, json.RawMessage(`{"scan_id":9007199254740993}`))
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	if diff != nil {
		t.Errorf("Equal large integers must not diff, got %s", diff)
	}
}

func TestComputeDiff_NestedValuesComparedByStructure(t *testing.T) {
	oldSnap := json.RawMessage(`{"kit":{"mics":2,"cables":["xlr","xlr"]}}`)
	sameSnap := json.RawMessage(`{"kit":{"cables":["xlr","xlr"],"mics":2}}`)
	changedSnap := json.RawMessage(`{"kit":{"mics":3,"cables":["xlr","xlr"]}}`)

	diff, err := ComputeDiff(oldSnap, sameSnap)
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	if diff != nil {
		t.Errorf("Key order must not matter, got %s", diff)
	}

	diff, err = ComputeDiff(oldSnap, changedSnap)
	if err != nil {
		t.Fatalf("ComputeDiff: %v", err)
	}
	if diff == nil {
		t.Error("Nested value change must be detected")
	}
}

func TestDecodeSnapshot_PreservesNumbers(t *testing.T) {
	m, err := DecodeSnapshot(json.RawMessage(`{"scan_id":9007199254740993,"count":2}`))
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	num, ok := m["scan_id"].(json.Number)
	if !ok {
		t.Fatalf("Expected json.Number, got %T", m["scan_id"])
	}
	if num.String() != "9007199254740993" {
		t.Errorf("Number text lost: %s", num)
	}
}

func TestDecodeSnapshot_RejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`null`, `[]`, `"snap"`, `42`} {
		if _, err := DecodeSnapshot(json.RawMessage(raw)); err == nil {
			t.Errorf("Expected %s to be rejected", raw)
		}
	}
}
