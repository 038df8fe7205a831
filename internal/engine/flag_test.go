package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// darkModeSnapshot builds the canonical scenario: flag "enable_dark_mode",
// on, default "off", one prod rule targeting country == TR with a 30/70
// dark/off split.
func darkModeSnapshot() *Snapshot {
	return &Snapshot{
		ProjectID: 1,
		Flags: []Flag{
			{ID: 1, ProjectID: 1, Key: "enable_dark_mode", On: true, DefaultVariant: "off", Status: StatusActive},
		},
		Variants: []Variant{
			{ID: 1, FlagID: 1, Name: "dark", Payload: json.RawMessage(`{"theme":"midnight"}`)},
			{ID: 2, FlagID: 1, Name: "off", Payload: json.RawMessage(`{}`)},
		},
		Rules: []Rule{
			{
				ID:            1,
				FlagID:        1,
				EnvironmentID: testEnvProd,
				Priority:      1,
				Predicate:     predJSON("country", "==", "TR"),
				Distribution:  json.RawMessage(`{"dark":30,"off":70}`),
			},
		},
	}
}

func TestEvaluator_EvaluateFlag(t *testing.T) {
	t.Parallel()

	eval := NewEvaluator(nil, nil)

	t.Run("Should serve the default with flag_off when the master switch is off", func(t *testing.T) {
		t.Parallel()

		snap := darkModeSnapshot()
		snap.Flags[0].On = false

		// Rules are present and would match; the off switch short-circuits them.
		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd,
			Attributes{"user_id": String("u-1001"), "country": String("TR")})

		assert.Equal(t, ReasonFlagOff, got.Reason)
		require.NotNil(t, got.Variant)
		assert.Equal(t, "off", *got.Variant)
		assert.False(t, got.On)
	})

	t.Run("Should bucket a matching user deterministically into the distribution", func(t *testing.T) {
		t.Parallel()

		snap := darkModeSnapshot()
		attrs := Attributes{"user_id": String("u-1001"), "country": String("TR")}

		first := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, attrs)

		require.NotNil(t, first.Variant)
		assert.Contains(t, []string{"dark", "off"}, *first.Variant)
		assert.Equal(t, "rule_match:1", first.Reason)

		for range 100 {
			again := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, attrs)
			require.Equal(t, *first.Variant, *again.Variant)
		}
	})

	t.Run("Should serve the default with no_rule_match when the predicate fails", func(t *testing.T) {
		t.Parallel()

		snap := darkModeSnapshot()

		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd,
			Attributes{"user_id": String("u-2"), "country": String("US")})

		assert.Equal(t, ReasonNoRuleMatch, got.Reason)
		require.NotNil(t, got.Variant)
		assert.Equal(t, "off", *got.Variant)
	})

	t.Run("Should serve the default when the rule is scoped to another environment", func(t *testing.T) {
		t.Parallel()

		snap := darkModeSnapshot()

		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvDev,
			Attributes{"user_id": String("u-1001"), "country": String("TR")})

		assert.Equal(t, ReasonNoRuleMatch, got.Reason)
	})

	t.Run("Should serve the default when the user has no identity at all", func(t *testing.T) {
		t.Parallel()

		snap := darkModeSnapshot()
		// The rule must match without attributes for this path, so target
		// everything via a rule that matches the empty user.
		snap.Rules[0].Predicate = predJSON("country", "==", "TR")

		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, Attributes{})

		// No attributes means the predicate fails closed anyway; degrade path.
		assert.Equal(t, ReasonNoRuleMatch, got.Reason)
	})
}

func TestEvaluator_EvaluateFlag_Defects(t *testing.T) {
	t.Parallel()

	trUser := Attributes{"user_id": String("u-1001"), "country": String("TR")}

	t.Run("Should degrade to the default on a zero-weight distribution", func(t *testing.T) {
		t.Parallel()

		var logBuffer bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logBuffer, nil))
		eval := NewEvaluator(logger, NewLogReporter(logger))

		snap := darkModeSnapshot()
		snap.Rules[0].Distribution = json.RawMessage(`{"dark":0,"off":0}`)

		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, trUser)

		assert.Equal(t, ReasonNoRuleMatch, got.Reason)
		require.NotNil(t, got.Variant)
		assert.Equal(t, "off", *got.Variant)
		assert.Contains(t, logBuffer.String(), DefectZeroWeightDistribution)
	})

	t.Run("Should coerce a non-numeric weight to zero and keep serving", func(t *testing.T) {
		t.Parallel()

		var logBuffer bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logBuffer, nil))
		eval := NewEvaluator(logger, NewLogReporter(logger))

		snap := darkModeSnapshot()
		// A decayed document: "dark" lost its numeric weight in storage. The
		// rule must still serve over the remaining weight instead of erroring.
		snap.Rules[0].Distribution = json.RawMessage(`{"dark":"abc","off":70}`)

		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, trUser)

		require.NotNil(t, got.Variant)
		assert.Equal(t, "off", *got.Variant)
		assert.True(t, strings.HasPrefix(got.Reason, "rule_match:"))
		assert.Contains(t, logBuffer.String(), DefectMalformedDistribution)
		assert.Contains(t, logBuffer.String(), "dark")
	})

	t.Run("Should degrade to the default when the distribution is not an object", func(t *testing.T) {
		t.Parallel()

		var logBuffer bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logBuffer, nil))
		eval := NewEvaluator(logger, NewLogReporter(logger))

		snap := darkModeSnapshot()
		snap.Rules[0].Distribution = json.RawMessage(`[1,2]`)

		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, trUser)

		assert.Equal(t, ReasonNoRuleMatch, got.Reason)
		require.NotNil(t, got.Variant)
		assert.Equal(t, "off", *got.Variant)
		assert.Contains(t, logBuffer.String(), DefectMalformedDistribution)
	})

	t.Run("Should keep a dangling distribution label but null its payload", func(t *testing.T) {
		t.Parallel()

		var logBuffer bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logBuffer, nil))
		eval := NewEvaluator(logger, NewLogReporter(logger))

		snap := darkModeSnapshot()
		// Route everyone to a label whose variant was deleted.
		snap.Rules[0].Distribution = json.RawMessage(`{"legacy":100}`)

		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, trUser)

		require.NotNil(t, got.Variant)
		assert.Equal(t, "legacy", *got.Variant)
		assert.Nil(t, got.Payload)
		assert.True(t, strings.HasPrefix(got.Reason, "rule_match:"))
		assert.Contains(t, logBuffer.String(), DefectDanglingVariant)
	})

	t.Run("Should fall back to no variant on a dangling default", func(t *testing.T) {
		t.Parallel()

		var logBuffer bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logBuffer, nil))
		eval := NewEvaluator(logger, NewLogReporter(logger))

		snap := darkModeSnapshot()
		snap.Flags[0].On = false
		snap.Flags[0].DefaultVariant = "deleted-variant"

		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, trUser)

		assert.Nil(t, got.Variant)
		assert.Nil(t, got.Payload)
		assert.Contains(t, logBuffer.String(), DefectDanglingDefault)
	})

	t.Run("Should return no variant when the default is unset and the flag is off", func(t *testing.T) {
		t.Parallel()

		eval := NewEvaluator(nil, nil)
		snap := darkModeSnapshot()
		snap.Flags[0].On = false
		snap.Flags[0].DefaultVariant = ""

		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, trUser)

		assert.Nil(t, got.Variant)
		assert.Equal(t, ReasonFlagOff, got.Reason)
	})
}

func TestEvaluator_EvaluateFlag_WeightProportionality(t *testing.T) {
	t.Parallel()

	// End-to-end version of the bucketing proportionality property: over many
	// distinct users the 30/70 split must hold within tolerance.
	eval := NewEvaluator(nil, nil)
	snap := darkModeSnapshot()

	sample := 10000
	darkCount := 0
	for i := range sample {
		attrs := Attributes{
			"user_id": String(fmt.Sprintf("user-%d", i)),
			"country": String("TR"),
		}
		got := eval.EvaluateFlag(context.Background(), snap, snap.Flags[0], testEnvProd, attrs)
		require.NotNil(t, got.Variant)
		if *got.Variant == "dark" {
			darkCount++
		}
	}

	observed := float64(darkCount) / float64(sample)
	assert.InDelta(t, 0.30, observed, 0.03)
}

func TestEvaluator_Servable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     FlagStatus
		serveDraft bool
		want       bool
	}{
		{name: "Should serve active flags", status: StatusActive, want: true},
		{name: "Should serve published flags", status: StatusPublished, want: true},
		{name: "Should gate out draft flags by default", status: StatusDraft, want: false},
		{name: "Should serve draft flags when the policy allows it", status: StatusDraft, serveDraft: true, want: true},
		{name: "Should never serve an unknown status", status: FlagStatus("archived"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			eval := NewEvaluator(nil, nil, WithServeDraftFlags(tt.serveDraft))

			got := eval.Servable(Flag{Key: "any", Status: tt.status})

			assert.Equal(t, tt.want, got)
		})
	}
}
