// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"testing"
	"time"
)

func fv(version int64) FieldVersion {
	return FieldVersion{Version: version, UpdatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)}
}

func TestDetectConflicts_StaleFieldConflicts(t *testing.T) {
	// Client read "name" at version 1; another user has since written it,
	// bringing the server to version 2.
	clientVersions := FieldVersions{"name": fv(1)}
	serverVersions := FieldVersions{"name": fv(2)}
	clientData := map[string]any{"name": "Beta"}
	serverData := map[string]any{"name": "Alpha"}

	conflicts := DetectConflicts(clientVersions, serverVersions, clientData, serverData, []string{"name"})

	if len(conflicts) != 1 {
		t.Fatalf("Expected 1 conflict, got %d", len(conflicts))
	}
	c := conflicts[0]
	if c.Field != "name" {
		t.Errorf("Expected conflict on name, got %s", c.Field)
	}
	if c.ClientVersion != 1 || c.ServerVersion != 2 {
		t.Errorf("Expected versions 1 vs 2, got %d vs %d", c.ClientVersion, c.ServerVersion)
	}
	if c.ClientValue != "Beta" || c.ServerValue != "Alpha" {
		t.Errorf("Expected values Beta vs Alpha, got %v vs %v", c.ClientValue, c.ServerValue)
	}
}

func TestDetectConflicts_EqualVersionsAreNotConflicts(t *testing.T) {
	clientVersions := FieldVersions{"status": fv(3)}
	serverVersions := FieldVersions{"status": fv(3)}
	clientData := map[string]any{"status": "checked_out"}
	serverData := map[string]any{"status": "available"}

	conflicts := DetectConflicts(clientVersions, serverVersions, clientData, serverData, []string{"status"})
	if len(conflicts) != 0 {
		t.Fatalf("Equal versions must not conflict, got %v", conflicts)
	}
}

func TestDetectConflicts_OnlySubmittedFieldsAreCompared(t *testing.T) {
	// Server's "location" is ahead of the client's, but the client never
	// submitted it; no conflict may be reported.
	clientVersions := FieldVersions{"status": fv(2), "location": fv(1)}
	serverVersions := FieldVersions{"status": fv(2), "location": fv(5)}
	clientData := map[string]any{"status": "in_repair"}
	serverData := map[string]any{"status": "available", "location": "stage 3"}

	conflicts := DetectConflicts(clientVersions, serverVersions, clientData, serverData, []string{"status", "location"})
	if len(conflicts) != 0 {
		t.Fatalf("Untouched fields must not conflict, got %v", conflicts)
	}
}

func TestDetectConflicts_AbsentVersionsDefaultToZero(t *testing.T) {
	// A client that never read the entity carries no clock at all. Every
	// submitted field is at client version 0 and loses to any server write.
	clientVersions := FieldVersions{}
	serverVersions := FieldVersions{"status": fv(1)}
	clientData := map[string]any{"status": "lost"}
	serverData := map[string]any{"status": "available"}

	conflicts := DetectConflicts(clientVersions, serverVersions, clientData, serverData, []string{"status"})
	if len(conflicts) != 1 {
		t.Fatalf("Expected 1 conflict for 0 vs 1, got %d", len(conflicts))
	}
	if conflicts[0].ClientVersion != 0 || conflicts[0].ServerVersion != 1 {
		t.Errorf("Expected 0 vs 1, got %d vs %d", conflicts[0].ClientVersion, conflicts[0].ServerVersion)
	}

	// The reverse: a field the server has never versioned accepts any write.
	conflicts = DetectConflicts(FieldVersions{}, FieldVersions{}, clientData, serverData, []string{"status"})
	if len(conflicts) != 0 {
		t.Fatalf("0 vs 0 must not conflict, got %v", conflicts)
	}
}

func TestDetectConflicts_NonVersionedFieldsAreNeverCompared(t *testing.T) {
	// "id" is outside the versioned set, so it bypasses detection entirely
	// even when stale-looking versions exist for it.
	clientVersions := FieldVersions{"id": fv(1)}
	serverVersions := FieldVersions{"id": fv(9)}
	clientData := map[string]any{"id": "override"}
	serverData := map[string]any{"id": "original"}

	conflicts := DetectConflicts(clientVersions, serverVersions, clientData, serverData, []string{"status"})
	if len(conflicts) != 0 {
		t.Fatalf("Non-versioned field must bypass detection, got %v", conflicts)
	}
}

func TestDetectConflicts_LabelIsExcluded(t *testing.T) {
	// The display label is not in any versioned set; concurrent renames are
	// last-write-wins by design.
	clientData := map[string]any{LabelField: "Cam A (rental)"}
	serverData := map[string]any{LabelField: "Cam A"}

	conflicts := DetectConflicts(FieldVersions{}, FieldVersions{}, clientData, serverData, []string{"status", "assigned_to"})
	if len(conflicts) != 0 {
		t.Fatalf("Label edits must never conflict, got %v", conflicts)
	}
}

func TestMerge_AppliesAcceptedAndKeepsConflicting(t *testing.T) {
	clientVersions := FieldVersions{"status": fv(2), "assigned_to": fv(1)}
	serverVersions := FieldVersions{"status": fv(2), "assigned_to": fv(3)}
	clientData := map[string]any{"status": "checked_out", "assigned_to": "dana"}
	serverData := map[string]any{"status": "available", "assigned_to": "sam", "location": "truck 1"}

	result := Merge(clientVersions, serverVersions, clientData, serverData, []string{"status", "assigned_to"})

	if !result.HasConflicts {
		t.Fatal("Expected a conflict on assigned_to")
	}
	if len(result.Conflicts) != 1 || result.Conflicts[0].Field != "assigned_to" {
		t.Fatalf("Expected conflict only on assigned_to, got %v", result.Conflicts)
	}

	// Accepted field applied and bumped.
	if result.MergedData["status"] != "checked_out" {
		t.Errorf("Expected accepted status applied, got %v", result.MergedData["status"])
	}
	if result.MergedVersions.VersionOf("status") != 3 {
		t.Errorf("Expected status bumped to 3, got %d", result.MergedVersions.VersionOf("status"))
	}

	// Conflicting field keeps the server's value and version.
	if result.MergedData["assigned_to"] != "sam" {
		t.Errorf("Expected server value kept, got %v", result.MergedData["assigned_to"])
	}
	if result.MergedVersions.VersionOf("assigned_to") != 3 {
		t.Errorf("Expected server version kept at 3, got %d", result.MergedVersions.VersionOf("assigned_to"))
	}

	// Untouched server fields survive the merge.
	if result.MergedData["location"] != "truck 1" {
		t.Errorf("Expected untouched server field kept, got %v", result.MergedData["location"])
	}
}

func TestMerge_ValueEqualWriteStillBumps(t *testing.T) {
	// Writing the same value again is an accepted write: the version advances
	// so later staleness checks see it.
	versions := FieldVersions{"status": fv(2)}
	data := map[string]any{"status": "available"}

	result := Merge(versions, versions, data, data, []string{"status"})
	if result.HasConflicts {
		t.Fatalf("Expected no conflicts, got %v", result.Conflicts)
	}
	if result.MergedVersions.VersionOf("status") != 3 {
		t.Errorf("Expected version bump on value-equal write, got %d", result.MergedVersions.VersionOf("status"))
	}
}

func TestMerge_NonVersionedFieldsApplyWithoutBump(t *testing.T) {
	result := Merge(FieldVersions{}, FieldVersions{}, map[string]any{"notes_color": "red"}, map[string]any{}, []string{"status"})

	if result.HasConflicts {
		t.Fatalf("Expected no conflicts, got %v", result.Conflicts)
	}
	if result.MergedData["notes_color"] != "red" {
		t.Errorf("Expected non-versioned field applied, got %v", result.MergedData["notes_color"])
	}
	if _, ok := result.MergedVersions["notes_color"]; ok {
		t.Error("Non-versioned field must not enter the version clock")
	}
}

func TestMerge_DoesNotMutateInputs(t *testing.T) {
	clientVersions := FieldVersions{"status": fv(1)}
	serverVersions := FieldVersions{"status": fv(1)}
	clientData := map[string]any{"status": "checked_out"}
	serverData := map[string]any{"status": "available"}

	Merge(clientVersions, serverVersions, clientData, serverData, []string{"status"})

	if serverData["status"] != "available" {
		t.Error("Merge mutated serverData")
	}
	if serverVersions.VersionOf("status") != 1 {
		t.Error("Merge mutated serverVersions")
	}
	if clientData["status"] != "checked_out" {
		t.Error("Merge mutated clientData")
	}
}
