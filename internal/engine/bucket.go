package engine

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"
)

// bucketSpace is the size of the hash range. The 32-bit hash is normalized by
// this constant into [0, 1) before walking the cumulative distribution.
const bucketSpace = 1 << 32

// Assign deterministically maps a subject to one label of a weighted
// distribution.
//
// The same (seedKey, subject, distribution) triple always yields the same
// label, across processes and restarts: the bucket point is derived from a
// Murmur3 hash of "seedKey/subject", never from random state or counters.
// seedKey is conventionally the flag key, so a user's assignments for
// different flags are statistically independent while staying sticky per flag.
//
// Weights are relative, not percentages: they are normalized by their sum.
// Negative weights are clamped to zero; a total weight of zero is a
// configuration error reported to the caller.
func Assign(seedKey, subject string, distribution map[string]int64) (string, error) {
	if len(distribution) == 0 {
		return "", fmt.Errorf("distribution is empty")
	}

	// Walk labels in sorted order so the cumulative ranges are stable
	// regardless of map iteration order.
	labels := make([]string, 0, len(distribution))
	for label := range distribution {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	var total int64
	weights := make(map[string]int64, len(distribution))
	for _, label := range labels {
		w := distribution[label]
		if w < 0 {
			w = 0
		}
		weights[label] = w
		total += w
	}
	if total <= 0 {
		return "", fmt.Errorf("distribution total weight is zero")
	}

	point := bucketPoint(seedKey, subject)

	cumulative := 0.0
	last := ""
	for _, label := range labels {
		w := weights[label]
		if w == 0 {
			continue
		}
		last = label
		cumulative += float64(w) / float64(total)
		if point < cumulative {
			return label, nil
		}
	}

	// Floating point residue can leave the point a hair past the final upper
	// bound; the last positively weighted label owns the remainder.
	return last, nil
}

// ParseDistribution decodes a stored weight document into usable weights.
//
// Distributions live in the database as JSON and can decay there
// independently of the write-path validation. A value that is not numeric is
// coerced to a zero weight instead of failing, and its label is returned so
// the caller can report the defect; only a document that is not a JSON object
// at all is an error. Fractional weights are truncated.
func ParseDistribution(raw json.RawMessage) (map[string]int64, []string, error) {
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("distribution is empty")
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil, nil, fmt.Errorf("distribution is not a JSON object: %w", err)
	}

	weights := make(map[string]int64, len(values))
	var coerced []string
	for label, v := range values {
		n, ok := v.(float64)
		if !ok {
			weights[label] = 0
			coerced = append(coerced, label)
			continue
		}
		weights[label] = int64(n)
	}
	sort.Strings(coerced)
	return weights, coerced, nil
}

// bucketPoint hashes the composite key into [0, 1).
func bucketPoint(seedKey, subject string) float64 {
	h := murmur3.Sum32([]byte(seedKey + "/" + subject))
	return float64(h) / float64(bucketSpace)
}

// Identity derives the stable bucketing subject for a user.
//
// Preference order: the "user_id" attribute, then a canonical rendering of
// whatever attributes are present. The second form keeps anonymous users
// deterministic across repeated calls with the same attribute set.
// The boolean is false only when no attributes exist at all, in which case the
// caller must skip bucketing and fall back to the flag's default variant.
func Identity(attrs Attributes) (string, bool) {
	if v, ok := attrs["user_id"]; ok && !v.IsNull() {
		return v.canonical(), true
	}

	if len(attrs) == 0 {
		return "", false
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + attrs[k].canonical()
	}
	return strings.Join(parts, "&"), true
}
