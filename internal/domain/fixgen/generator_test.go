package fixgen

import (
	"math"
	"testing"

	"github.com/scottlz0310/ci-helper/internal/domain/autofix"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

func TestGeneratePythonModuleNotFoundScenario(t *testing.T) {
	pattern := &model.Pattern{ID: "python_module_not_found", BaseConfidence: 0.88}
	match := model.PatternMatch{Pattern: pattern, Confidence: 0.85, Captures: map[string]string{"module": "requests"}}
	tmpl := &model.FixTemplate{
		ID:          "pip_install_missing_module",
		Name:        "pip install missing module",
		SuccessRate: 0.9,
		Risk:        model.RiskLow,
		Steps: []model.FixStep{
			{Kind: model.StepCommand, Argv: []string{"pip", "install", "{module}"}},
			{Kind: model.StepCommand, Argv: []string{"pytest", "-q"}},
		},
	}
	g := New(autofix.NewPolicy(t.TempDir()), DefaultThresholds)
	suggestions := g.Generate(match, []*model.FixTemplate{tmpl})
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	s := suggestions[0]
	if s.Steps[0].Argv[2] != "requests" {
		t.Fatalf("expected capture substituted, got %v", s.Steps[0].Argv)
	}
	want := match.Confidence * tmpl.SuccessRate // 0.85 × 0.9 = 0.765
	if math.Abs(s.Confidence-want) > 1e-9 {
		t.Fatalf("expected confidence %f (match confidence × template success rate), got %f", want, s.Confidence)
	}
	if !s.AutoApplicable {
		t.Fatalf("expected auto_applicable=true for low-risk high-confidence suggestion")
	}
}

func TestGenerateSkipsTemplateWithMissingCapture(t *testing.T) {
	pattern := &model.Pattern{ID: "x"}
	match := model.PatternMatch{Pattern: pattern, Confidence: 0.9, Captures: map[string]string{}}
	tmpl := &model.FixTemplate{ID: "t1", SuccessRate: 0.9, Risk: model.RiskLow, Steps: []model.FixStep{
		{Kind: model.StepCommand, Argv: []string{"pip", "install", "{module}"}},
	}}
	g := New(autofix.NewPolicy(t.TempDir()), DefaultThresholds)
	suggestions := g.Generate(match, []*model.FixTemplate{tmpl})
	if len(suggestions) != 0 {
		t.Fatalf("expected template with missing capture to be skipped, got %d", len(suggestions))
	}
}

func TestGenerateDeniesAutoApplicableForDisallowedCommand(t *testing.T) {
	pattern := &model.Pattern{ID: "x"}
	match := model.PatternMatch{Pattern: pattern, Confidence: 0.95, Captures: map[string]string{}}
	tmpl := &model.FixTemplate{ID: "t1", SuccessRate: 0.95, Risk: model.RiskLow, Steps: []model.FixStep{
		{Kind: model.StepCommand, Argv: []string{"curl", "http://example.com"}},
	}}
	g := New(autofix.NewPolicy(t.TempDir()), DefaultThresholds)
	suggestions := g.Generate(match, []*model.FixTemplate{tmpl})
	if len(suggestions) != 1 {
		t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
	}
	if suggestions[0].AutoApplicable {
		t.Fatalf("expected auto_applicable=false for disallowed command")
	}
}
