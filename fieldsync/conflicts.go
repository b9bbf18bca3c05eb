// Copyright 2026 VideoDept Authors
// SPDX-License-Identifier: Apache-2.0

package fieldsync

// Conflict describes one field whose client-submitted version is older than
// the field's current server version. Transient: returned once to the caller
// that triggered the comparison, never persisted.
type Conflict struct {
	Field         string `json:"field"`
	ClientVersion int64  `json:"clientVersion"`
	ServerVersion int64  `json:"serverVersion"`
	ClientValue   any    `json:"clientValue"`
	ServerValue   any    `json:"serverValue"`
}

// MergeResult is the outcome of merging a proposed update against current
// server state. Conflicting fields keep the server's value and version;
// everything else from the client is applied with versioned fields bumped.
type MergeResult struct {
	HasConflicts   bool           `json:"hasConflicts"`
	Conflicts      []Conflict     `json:"conflicts,omitempty"`
	MergedData     map[string]any `json:"mergedData"`
	MergedVersions FieldVersions  `json:"mergedVersions"`
}

// DetectConflicts compares the client's recorded field versions against the
// server's, field by field, for every versioned field present in clientData.
// Absent versions default to 0 on either side. Equal versions are NOT a
// conflict: that is the common case of a field untouched since the client's
// last read. Fields outside the versioned set (the display label among them)
// are never compared.
func DetectConflicts(
	clientVersions, serverVersions FieldVersions,
	clientData, serverData map[string]any,
	versionedFields []string,
) []Conflict {
	var conflicts []Conflict
	for _, field := range versionedFields {
		clientValue, present := clientData[field]
		if !present {
			continue
		}
		clientVer := clientVersions.VersionOf(field)
		serverVer := serverVersions.VersionOf(field)
		if clientVer < serverVer {
			conflicts = append(conflicts, Conflict{
				Field:         field,
				ClientVersion: clientVer,
				ServerVersion: serverVer,
				ClientValue:   clientValue,
				ServerValue:   serverData[field],
			})
		}
	}
	return conflicts
}

// Merge runs conflict detection and produces the merged entity state.
// mergedData starts from serverData and mergedVersions from serverVersions;
// each non-conflicting client field is applied, bumping its version when it
// belongs to the versioned set. Conflicting fields are dropped from the
// merged result and reported so the caller can inform the user or retry.
// Pure: neither input map is mutated.
func Merge(
	clientVersions, serverVersions FieldVersions,
	clientData, serverData map[string]any,
	versionedFields []string,
) *MergeResult {
	conflicts := DetectConflicts(clientVersions, serverVersions, clientData, serverData, versionedFields)

	conflicting := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		conflicting[c.Field] = true
	}
	versioned := make(map[string]bool, len(versionedFields))
	for _, field := range versionedFields {
		versioned[field] = true
	}

	mergedData := make(map[string]any, len(serverData)+len(clientData))
	for key, val := range serverData {
		mergedData[key] = val
	}
	mergedVersions := serverVersions.Clone()

	for key, val := range clientData {
		if conflicting[key] {
			continue
		}
		mergedData[key] = val
		if versioned[key] {
			mergedVersions = mergedVersions.Bump(key)
		}
	}

	return &MergeResult{
		HasConflicts:   len(conflicts) > 0,
		Conflicts:      conflicts,
		MergedData:     mergedData,
		MergedVersions: mergedVersions,
	}
}
