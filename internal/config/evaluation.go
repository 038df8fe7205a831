package config

// EvaluationConfig contains policy settings for the evaluation engine.
type EvaluationConfig struct {
	// ServeDraftFlags lets draft flags reach SDK responses. Off everywhere
	// except throwaway environments.
	ServeDraftFlags bool `envconfig:"SERVE_DRAFT_FLAGS" default:"false"`
}
