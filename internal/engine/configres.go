package engine

import "encoding/json"

// ResolveConfigs merges a project's config entries for one environment.
//
// Precedence is scope-based, not time-based: GLOBAL entries (nil environment
// id) seed the result, then entries scoped to the requested environment
// overwrite them unconditionally, key by key. Entries scoped to other
// environments are ignored. Values are opaque JSON and pass through
// unvalidated.
func ResolveConfigs(entries []ConfigEntry, environmentID int64) map[string]json.RawMessage {
	resolved := make(map[string]json.RawMessage)

	for _, entry := range entries {
		if entry.EnvironmentID == nil {
			resolved[entry.Key] = entry.Value
		}
	}

	for _, entry := range entries {
		if entry.EnvironmentID != nil && *entry.EnvironmentID == environmentID {
			resolved[entry.Key] = entry.Value
		}
	}

	return resolved
}
