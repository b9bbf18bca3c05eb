// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestInitializeFieldVersions(t *testing.T) {
	versions := InitializeFieldVersions([]string{"status", "assigned_to", "location"})

	if len(versions) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(versions))
	}
	for _, field := range []string{"status", "assigned_to", "location"} {
		entry, ok := versions[field]
		if !ok {
			t.Errorf("Expected entry for %s", field)
			continue
		}
		if entry.Version != 1 {
			t.Errorf("Expected %s at version 1, got %d", field, entry.Version)
		}
		if entry.UpdatedAt.IsZero() {
			t.Errorf("Expected %s to carry a timestamp", field)
		}
	}
}

func TestInitializeFieldVersions_FiltersLabel(t *testing.T) {
	versions := InitializeFieldVersions([]string{"status", LabelField})

	if _, ok := versions[LabelField]; ok {
		t.Error("Display label must never get a version clock entry")
	}
	if len(versions) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(versions))
	}
}

func TestFieldVersions_VersionOf_AbsentDefaultsToZero(t *testing.T) {
	versions := FieldVersions{"status": {Version: 3, UpdatedAt: time.Now()}}

	if got := versions.VersionOf("status"); got != 3 {
		t.Errorf("Expected version 3, got %d", got)
	}
	if got := versions.VersionOf("never_seen"); got != 0 {
		t.Errorf("Expected absent field to default to 0, got %d", got)
	}

	var nilVersions FieldVersions
	if got := nilVersions.VersionOf("status"); got != 0 {
		t.Errorf("Expected nil map to default to 0, got %d", got)
	}
}

func TestFieldVersions_Bump_IsPure(t *testing.T) {
	original := FieldVersions{"status": {Version: 2, UpdatedAt: time.Now().Add(-time.Hour)}}

	bumped := original.Bump("status")
	if bumped.VersionOf("status") != 3 {
		t.Errorf("Expected bump to 3, got %d", bumped.VersionOf("status"))
	}
	if original.VersionOf("status") != 2 {
		t.Errorf("Bump mutated its receiver: %d", original.VersionOf("status"))
	}

	// Bumping an absent field starts it at 1.
	fresh := original.Bump("location")
	if fresh.VersionOf("location") != 1 {
		t.Errorf("Expected absent field to bump to 1, got %d", fresh.VersionOf("location"))
	}
}

func TestIsWellFormedVersions(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want bool
	}{
		{"empty object", `{}`, true},
		{"valid entry", `{"status":{"version":2,"updatedAt":"2026-08-01T10:00:00Z"}}`, true},
		{"fractional seconds", `{"status":{"version":1,"updatedAt":"2026-08-01T10:00:00.123456Z"}}`, true},
		{"null", `null`, false},
		{"array", `[]`, false},
		{"string", `"versions"`, false},
		{"missing version", `{"status":{"updatedAt":"2026-08-01T10:00:00Z"}}`, false},
		{"float version", `{"status":{"version":1.5,"updatedAt":"2026-08-01T10:00:00Z"}}`, false},
		{"string version", `{"status":{"version":"2","updatedAt":"2026-08-01T10:00:00Z"}}`, false},
		{"quoted float version", `{"status":{"version":"1.5","updatedAt":"2026-08-01T10:00:00Z"}}`, false},
		{"boolean version", `{"status":{"version":true,"updatedAt":"2026-08-01T10:00:00Z"}}`, false},
		{"missing updatedAt", `{"status":{"version":2}}`, false},
		{"numeric updatedAt", `{"status":{"version":2,"updatedAt":1722506400}}`, false},
		{"garbage timestamp", `{"status":{"version":2,"updatedAt":"yesterday"}}`, false},
		{"entry not an object", `{"status":7}`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsWellFormedVersions(json.RawMessage(tc.raw)); got != tc.want {
				t.Errorf("IsWellFormedVersions(%s) = %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestParseFieldVersions_EmptyMeansEmptyClock(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage(``), json.RawMessage(`  `)} {
		versions, err := ParseFieldVersions(raw)
		if err != nil {
			t.Fatalf("Expected empty input to parse, got %v", err)
		}
		if len(versions) != 0 {
			t.Errorf("Expected empty clock, got %v", versions)
		}
		// The empty clock must behave as version 0 everywhere.
		if versions.VersionOf("status") != 0 {
			t.Errorf("Expected version 0 from empty clock")
		}
	}
}

func TestParseFieldVersions_MalformedIsRejected(t *testing.T) {
	for _, raw := range []string{`null`, `[]`, `{"status":{"version":"x","updatedAt":"2026-08-01T10:00:00Z"}}`} {
		_, err := ParseFieldVersions(json.RawMessage(raw))
		if !errors.Is(err, ErrMalformedVersions) {
			t.Errorf("ParseFieldVersions(%s): expected ErrMalformedVersions, got %v", raw, err)
		}
	}
}

func TestParseFieldVersions_RoundTrip(t *testing.T) {
	original := FieldVersions{
		"status":      {Version: 4, UpdatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)},
		"assigned_to": {Version: 1, UpdatedAt: time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC)},
	}
	raw, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	parsed, err := ParseFieldVersions(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.VersionOf("status") != 4 || parsed.VersionOf("assigned_to") != 1 {
		t.Errorf("Round trip lost versions: %v", parsed)
	}
}
