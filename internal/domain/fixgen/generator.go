// Package fixgen implements the fix generator: it combines a
// PatternMatch and its applicable FixTemplate(s) into concrete
// FixSuggestions with captures substituted and risk/confidence computed.
package fixgen

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/scottlz0310/ci-helper/internal/domain/autofix"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

// Thresholds configures auto_applicable evaluation.
type Thresholds struct {
	RiskTolerance   model.RiskLevel
	ConfidenceFloor float64
}

// DefaultThresholds marks a low-risk, high-confidence suggestion
// auto-applicable out of the box.
var DefaultThresholds = Thresholds{RiskTolerance: model.RiskMedium, ConfidenceFloor: 0.7}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Generator produces FixSuggestions from PatternMatches and templates.
type Generator struct {
	policy     *autofix.Policy
	thresholds Thresholds
}

// New returns a Generator enforcing policy and thresholds.
func New(policy *autofix.Policy, thresholds Thresholds) *Generator {
	return &Generator{policy: policy, thresholds: thresholds}
}

// Generate returns zero or more FixSuggestions for match, ranked by
// (confidence desc, template success_rate desc, risk asc, template id asc).
func (g *Generator) Generate(match model.PatternMatch, templates []*model.FixTemplate) []model.FixSuggestion {
	var out []model.FixSuggestion
	for _, t := range templates {
		steps, err := instantiate(t.Steps, match.Captures)
		if err != nil {
			// Missing capture: template is skipped, not fatal.
			continue
		}
		confidence := match.Confidence * t.SuccessRate
		autoApplicable := g.autoApplicable(t.Risk, confidence, steps)
		out = append(out, model.FixSuggestion{
			ID:             fmt.Sprintf("%s/%s", t.ID, match.Pattern.ID),
			Title:          t.Name,
			Description:    t.Description,
			Match:          &match,
			Template:       t,
			Steps:          steps,
			Risk:           t.Risk,
			EstimatedTime:  t.EstimatedTime,
			Confidence:     confidence,
			AutoApplicable: autoApplicable,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Template.SuccessRate != b.Template.SuccessRate {
			return a.Template.SuccessRate > b.Template.SuccessRate
		}
		if a.Risk.Rank() != b.Risk.Rank() {
			return a.Risk.Rank() < b.Risk.Rank()
		}
		return a.Template.ID < b.Template.ID
	})
	return out
}

// autoApplicable: risk ≤ tolerance AND confidence ≥
// floor AND every step validated against the allow-list/path policy.
func (g *Generator) autoApplicable(risk model.RiskLevel, confidence float64, steps []model.FixStep) bool {
	if risk.Rank() > g.thresholds.RiskTolerance.Rank() {
		return false
	}
	if confidence < g.thresholds.ConfidenceFloor {
		return false
	}
	if g.policy == nil {
		return true
	}
	for _, s := range steps {
		switch s.Kind {
		case model.StepCommand:
			if !g.policy.CommandAllowed(s.Argv) {
				return false
			}
		case model.StepFileEdit, model.StepFileCreate, model.StepFileDelete:
			if _, err := g.policy.NormalizePath(s.TargetPath); err != nil {
				return false
			}
		}
	}
	return true
}

// instantiate substitutes {name} placeholders in every step's payload and
// argv entries with match captures. A referenced capture that is absent
// fails the whole template instantiation.
func instantiate(steps []model.FixStep, captures map[string]string) ([]model.FixStep, error) {
	out := make([]model.FixStep, 0, len(steps))
	for _, s := range steps {
		cs := s
		payload, err := substitute(s.Payload, captures)
		if err != nil {
			return nil, err
		}
		cs.Payload = payload
		if len(s.Argv) > 0 {
			argv := make([]string, len(s.Argv))
			for i, a := range s.Argv {
				sub, err := substitute(a, captures)
				if err != nil {
					return nil, err
				}
				argv[i] = sub
			}
			cs.Argv = argv
		}
		out = append(out, cs)
	}
	return out, nil
}

func substitute(s string, captures map[string]string) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		v, ok := captures[name]
		if !ok {
			missing = name
			return m
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("fixgen: missing capture %q referenced by template", missing)
	}
	return out, nil
}
