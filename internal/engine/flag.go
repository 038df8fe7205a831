package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Evaluation reasons reported per flag. The rule-match reason carries the id
// of the winning rule as "rule_match:<rule_id>".
const (
	ReasonFlagOff     = "flag_off"
	ReasonNoRuleMatch = "no_rule_match"
	reasonRuleMatch   = "rule_match:%d"
)

// FlagResult is the outcome of evaluating one flag for one user.
// Variant is nil when no variant applies; Payload is nil when the named
// variant carries none or no longer exists.
type FlagResult struct {
	Key     string          `json:"key"`
	On      bool            `json:"on"`
	Variant *string         `json:"variant"`
	Payload json.RawMessage `json:"payload"`
	Reason  string          `json:"reason"`
}

// Servable reports whether a flag may be exposed to SDK clients at all.
// Draft flags are gated out before the on/off branch unless the serve-draft
// policy is enabled.
func (e *Evaluator) Servable(f Flag) bool {
	switch f.Status {
	case StatusActive, StatusPublished:
		return true
	case StatusDraft:
		return e.serveDraft
	default:
		return false
	}
}

// EvaluateFlag produces the final variant decision for one flag.
//
// The state machine:
//  1. flag off            -> default variant, "flag_off"
//  2. rule matched        -> bucketed label,  "rule_match:<id>"
//  3. no rule matched     -> default variant, "no_rule_match"
//
// Stored-data defects on the winning rule (undecodable or zero-weight
// distribution) and an identity-less user both degrade to the default variant
// instead of failing. A bucketed label that names a deleted variant is still
// reported as the variant; only its payload becomes null.
func (e *Evaluator) EvaluateFlag(ctx context.Context, snap *Snapshot, f Flag, environmentID int64, attrs Attributes) FlagResult {
	if !f.On {
		return e.defaultResult(ctx, snap, f, ReasonFlagOff)
	}

	rule := e.ResolveRule(ctx, f, snap.RulesOf(f.ID), environmentID, attrs)
	if rule == nil {
		return e.defaultResult(ctx, snap, f, ReasonNoRuleMatch)
	}

	subject, ok := Identity(attrs)
	if !ok {
		// No identifying fields at all: bucketing would not be deterministic,
		// so the user gets the default variant.
		e.logger.DebugContext(ctx, "no bucketing identity, serving default",
			slog.String("flag_key", f.Key))
		return e.defaultResult(ctx, snap, f, ReasonNoRuleMatch)
	}

	weights, coerced, err := ParseDistribution(rule.Distribution)
	if err != nil {
		e.defects.ReportDefect(ctx, Defect{
			ProjectID: f.ProjectID,
			FlagKey:   f.Key,
			RuleID:    rule.ID,
			Kind:      DefectMalformedDistribution,
			Detail:    err.Error(),
		})
		return e.defaultResult(ctx, snap, f, ReasonNoRuleMatch)
	}
	for _, badLabel := range coerced {
		e.defects.ReportDefect(ctx, Defect{
			ProjectID: f.ProjectID,
			FlagKey:   f.Key,
			RuleID:    rule.ID,
			Kind:      DefectMalformedDistribution,
			Detail:    fmt.Sprintf("weight of label %q is not numeric, treated as zero", badLabel),
		})
	}

	label, err := Assign(f.Key, subject, weights)
	if err != nil {
		e.defects.ReportDefect(ctx, Defect{
			ProjectID: f.ProjectID,
			FlagKey:   f.Key,
			RuleID:    rule.ID,
			Kind:      DefectZeroWeightDistribution,
			Detail:    err.Error(),
		})
		return e.defaultResult(ctx, snap, f, ReasonNoRuleMatch)
	}

	result := FlagResult{
		Key:     f.Key,
		On:      f.On,
		Variant: &label,
		Reason:  fmt.Sprintf(reasonRuleMatch, rule.ID),
	}

	if v, found := snap.VariantOf(f.ID, label); found {
		result.Payload = v.Payload
	} else {
		// Dangling reference tolerance: the label survives, the payload does not.
		e.defects.ReportDefect(ctx, Defect{
			ProjectID: f.ProjectID,
			FlagKey:   f.Key,
			RuleID:    rule.ID,
			Kind:      DefectDanglingVariant,
			Detail:    fmt.Sprintf("distribution label %q does not name an existing variant", label),
		})
	}
	return result
}

// defaultResult builds the fall-back result for a flag. A dangling default
// variant degrades to "no variant" and is reported as a defect.
func (e *Evaluator) defaultResult(ctx context.Context, snap *Snapshot, f Flag, reason string) FlagResult {
	result := FlagResult{
		Key:    f.Key,
		On:     f.On,
		Reason: reason,
	}

	if f.DefaultVariant == "" {
		return result
	}

	v, found := snap.VariantOf(f.ID, f.DefaultVariant)
	if !found {
		e.defects.ReportDefect(ctx, Defect{
			ProjectID: f.ProjectID,
			FlagKey:   f.Key,
			Kind:      DefectDanglingDefault,
			Detail:    fmt.Sprintf("default variant %q does not name an existing variant", f.DefaultVariant),
		})
		return result
	}

	name := f.DefaultVariant
	result.Variant = &name
	result.Payload = v.Payload
	return result
}
