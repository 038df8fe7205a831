package engine

import (
	"encoding/json"
	"fmt"
)

// Supported predicate operators. Anything else stored in a rule is treated as
// a configuration defect, never as a reason to fail the request.
const (
	OpEqual        = "=="
	OpNotEqual     = "!="
	OpIn           = "in"
	OpNotIn        = "not_in"
	OpContains     = "contains"
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
)

// Predicate is a single structured condition over user attributes.
// The shape mirrors the JSONB 'predicate' column of the rules table:
// {"attr": "country", "op": "==", "value": "TR"}.
type Predicate struct {
	Attr  string `json:"attr"`
	Op    string `json:"op"`
	Value Value  `json:"value"`
}

// ParsePredicate decodes and structurally validates a stored predicate.
// It rejects unknown operators and missing fields so the caller can report a
// defect; it never inspects user data.
func ParsePredicate(raw json.RawMessage) (Predicate, error) {
	if len(raw) == 0 {
		return Predicate{}, fmt.Errorf("predicate is empty")
	}

	var p Predicate
	if err := json.Unmarshal(raw, &p); err != nil {
		return Predicate{}, fmt.Errorf("predicate is not a valid object: %w", err)
	}

	if p.Attr == "" {
		return Predicate{}, fmt.Errorf("predicate is missing 'attr'")
	}
	if !knownOp(p.Op) {
		return Predicate{}, fmt.Errorf("unsupported predicate op %q", p.Op)
	}
	return p, nil
}

// knownOp reports whether op is part of the supported operator set.
func knownOp(op string) bool {
	switch op {
	case OpEqual, OpNotEqual, OpIn, OpNotIn, OpContains,
		OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return true
	default:
		return false
	}
}

// Matches evaluates the predicate against the user attributes.
//
// The matcher is fail-closed: a missing attribute never matches, regardless of
// the operator. This deliberately includes "!=" and "not_in": a rule about an
// attribute the user did not supply says nothing about that user.
// Type mismatches on numeric operators evaluate to false rather than erroring,
// so one badly typed value can never take down a whole evaluation batch.
func (p Predicate) Matches(attrs Attributes) bool {
	left, ok := attrs[p.Attr]
	if !ok {
		return false
	}

	switch p.Op {
	case OpEqual:
		return left.Equal(p.Value)

	case OpNotEqual:
		return !left.Equal(p.Value)

	case OpIn:
		// The right-hand side must be a sequence; membership of the attribute.
		if p.Value.Kind() != KindArray {
			return false
		}
		return p.Value.Contains(left)

	case OpNotIn:
		if p.Value.Kind() != KindArray {
			return false
		}
		return !p.Value.Contains(left)

	case OpContains:
		// The attribute is the sequence/string side here.
		return left.Contains(p.Value)

	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		l, lok := left.AsNumber()
		r, rok := p.Value.AsNumber()
		if !lok || !rok {
			return false
		}
		switch p.Op {
		case OpLess:
			return l < r
		case OpLessEqual:
			return l <= r
		case OpGreater:
			return l > r
		default:
			return l >= r
		}

	default:
		// ParsePredicate rejects unknown ops; this is a safety net.
		return false
	}
}
