package engine

import (
	"encoding/json"
	"sort"
)

// FlagStatus is the lifecycle state of a flag. Status gates which flags are
// servable to SDK clients; it is not an evaluation input by itself.
type FlagStatus string

const (
	StatusDraft     FlagStatus = "draft"
	StatusActive    FlagStatus = "active"
	StatusPublished FlagStatus = "published"
)

// KnownStatus reports whether s is one of the recognized lifecycle states.
func KnownStatus(s FlagStatus) bool {
	switch s {
	case StatusDraft, StatusActive, StatusPublished:
		return true
	default:
		return false
	}
}

// Flag is a project-scoped, multi-variant toggle.
type Flag struct {
	ID        int64      `json:"id"`
	ProjectID int64      `json:"project_id"`
	Key       string     `json:"key"`
	On        bool       `json:"on"`
	// DefaultVariant names the variant served when the flag is off or no rule
	// matches. Empty means "no variant".
	DefaultVariant string     `json:"default_variant"`
	Status         FlagStatus `json:"status"`
}

// Variant is one named, payload-bearing outcome of a flag.
type Variant struct {
	ID      int64           `json:"id"`
	FlagID  int64           `json:"flag_id"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// Rule is an environment-scoped, prioritized predicate plus a weighted
// distribution over variant labels.
//
// Both JSON documents are kept raw here on purpose: a malformed predicate or
// distribution must degrade only the rule it belongs to, at evaluation time,
// so parsing is deferred to the evaluator instead of failing the snapshot
// load for the whole project.
type Rule struct {
	ID            int64           `json:"id"`
	FlagID        int64           `json:"flag_id"`
	EnvironmentID int64           `json:"environment_id"`
	Priority      int             `json:"priority"`
	Predicate     json.RawMessage `json:"predicate"`
	Distribution  json.RawMessage `json:"distribution"`
}

// ConfigEntry is a project-scoped key/value pair. A nil EnvironmentID marks a
// GLOBAL entry; a non-nil one scopes the entry to a single environment and
// overrides the global entry with the same key.
type ConfigEntry struct {
	ID            int64           `json:"id"`
	ProjectID     int64           `json:"project_id"`
	Key           string          `json:"key"`
	EnvironmentID *int64          `json:"environment_id"`
	Value         json.RawMessage `json:"value"`
}

// Snapshot is an immutable, point-in-time view of everything one evaluation
// needs for a project. The storage layer guarantees consistency (a single
// transaction per load); the engine only ever reads it.
type Snapshot struct {
	ProjectID int64         `json:"project_id"`
	Flags     []Flag        `json:"flags"`
	Variants  []Variant     `json:"variants"`
	Rules     []Rule        `json:"rules"`
	Configs   []ConfigEntry `json:"configs"`
}

// RulesOf returns the rules belonging to a flag, in storage order.
// Ordering for evaluation is the resolver's job, not the snapshot's.
func (s *Snapshot) RulesOf(flagID int64) []Rule {
	var out []Rule
	for _, r := range s.Rules {
		if r.FlagID == flagID {
			out = append(out, r)
		}
	}
	return out
}

// VariantOf looks up a variant of a flag by name. Referential integrity is
// checked here at evaluation time because variants can be deleted
// independently of the rules and defaults that name them.
func (s *Snapshot) VariantOf(flagID int64, name string) (Variant, bool) {
	for _, v := range s.Variants {
		if v.FlagID == flagID && v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// SortedFlags returns the snapshot's flags ordered by key, giving SDK
// responses a stable, storage-independent order.
func (s *Snapshot) SortedFlags() []Flag {
	flags := make([]Flag, len(s.Flags))
	copy(flags, s.Flags)
	sort.Slice(flags, func(i, j int) bool { return flags[i].Key < flags[j].Key })
	return flags
}
