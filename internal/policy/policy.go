// Package policy loads the declarative strike-rule table and scoring
// rubric once at startup, the same load-once-parse-serve-from-memory shape
// the teacher's ai service uses for its prompt templates
// (internal/prompts.NewPromptManager), adapted here from prompt text to
// policy data.
package policy

import (
	_ "embed"

	"gopkg.in/yaml.v3"

	"peerprep/interview/internal/apperrors"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// StrikeRule is one row of the declarative table in spec.md §4.4. The
// Anti-Cheat Engine looks up the row for each accepted event's type via
// Table.RuleFor; it never dispatches on event type in code.
type StrikeRule struct {
	EventType             string   `yaml:"eventType"`
	Severity              string   `yaml:"severity"`
	ImmediateAction       string   `yaml:"immediateAction"`
	PauseCountdownSeconds int      `yaml:"pauseCountdownSeconds"`
	RepeatThreshold       int      `yaml:"repeatThreshold"`
	ThresholdAction       string   `yaml:"thresholdAction"`
	RescindedBy           []string `yaml:"rescindedBy"`
}

// Rubric is the scoring weight table parsed from the policy document. The
// AI Proxy's summary paths (deterministic fallback and provider) do not
// read it.
type Rubric struct {
	SubScoreWeights         map[string]float64 `yaml:"subScoreWeights"`
	PassThreshold           int                `yaml:"passThreshold"`
	WarningStrikeMinorCount int                `yaml:"warningStrikeMinorCount"`
	WarningStrikeMajorCount int                `yaml:"warningStrikeMajorCount"`
}

// Table is the parsed policy document, served read-only from memory for
// the life of the process.
type Table struct {
	StrikeRules []StrikeRule `yaml:"strikeRules"`
	Rubric      Rubric       `yaml:"rubric"`

	byType map[string]StrikeRule
}

// Load parses the embedded default policy document. A future operator
// override path (reading from a configured file path instead) would plug
// in here without touching callers.
func Load() (*Table, error) {
	return parse(defaultPolicyYAML)
}

// Parse builds a Table from an arbitrary YAML document, the same document
// shape as policy.yaml. Exported for tests in other packages that need a
// policy table with different thresholds or countdowns than the embedded
// default (e.g. a shortened pause countdown to exercise auto-end without
// sleeping for the real 10s).
func Parse(raw []byte) (*Table, error) {
	return parse(raw)
}

func parse(raw []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to parse policy document", err)
	}
	t.byType = make(map[string]StrikeRule, len(t.StrikeRules))
	for _, rule := range t.StrikeRules {
		t.byType[rule.EventType] = rule
	}
	return &t, nil
}

// RuleFor looks up the strike rule for an event type. ok is false for event
// types with no policy entry (the engine treats those as advisory-only,
// recorded but never actioned).
func (t *Table) RuleFor(eventType string) (StrikeRule, bool) {
	rule, ok := t.byType[eventType]
	return rule, ok
}
