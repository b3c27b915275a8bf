package patternmatch

import (
	"context"
	"testing"
	"time"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

func newPattern(id string, regexes, keywords []string, base, successRate float64) *model.Pattern {
	p := &model.Pattern{
		ID:               id,
		RegexSource:      regexes,
		RequiredKeywords: keywords,
		BaseConfidence:   base,
		SuccessRate:      successRate,
		OccurrenceCount:  10,
		Enabled:          true,
	}
	_, _ = p.Compiled()
	return p
}

func resultWithMessage(msg string) *model.ExecutionResult {
	return &model.ExecutionResult{
		Workflows: []model.WorkflowResult{{
			Jobs: []model.JobResult{{
				Steps: []model.StepResult{{
					Failures: []model.Failure{{Kind: model.FailurePermission, Message: msg}},
				}},
			}},
		}},
	}
}

func TestMatchDockerPermissionScenario(t *testing.T) {
	p := newPattern("docker_permission_denied",
		[]string{"permission denied while trying to connect to the Docker daemon socket"},
		[]string{"docker", "permission denied"}, 0.95, 0.85)
	result := resultWithMessage("permission denied while trying to connect to the Docker daemon socket")

	m := New(nil)
	matches := m.Match(context.Background(), []*model.Pattern{p}, result, Options{})
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Confidence < 0.85 {
		t.Fatalf("expected confidence >= 0.85, got %f", matches[0].Confidence)
	}
}

func TestMatchEmptyPatternStoreReturnsEmptyNoError(t *testing.T) {
	m := New(nil)
	result := resultWithMessage("anything")
	matches := m.Match(context.Background(), nil, result, Options{})
	if len(matches) != 0 {
		t.Fatalf("expected no matches, got %d", len(matches))
	}
}

func TestMatchOrderingIsTotalOrder(t *testing.T) {
	p1 := newPattern("b_pattern", []string{"boom"}, nil, 0.9, 0.9)
	p2 := newPattern("a_pattern", []string{"boom"}, nil, 0.9, 0.9)
	result := resultWithMessage("boom happened")
	m := New(nil)
	matches := m.Match(context.Background(), []*model.Pattern{p1, p2}, result, Options{})
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Pattern.ID != "a_pattern" {
		t.Fatalf("expected tie-break by id ascending, got order %s, %s", matches[0].Pattern.ID, matches[1].Pattern.ID)
	}
}

func TestMatchRespectsThreshold(t *testing.T) {
	p := newPattern("weak", []string{"boom"}, nil, 0.2, 0.1)
	result := resultWithMessage("boom happened")
	m := New(nil)
	matches := m.Match(context.Background(), []*model.Pattern{p}, result, Options{Threshold: 0.6})
	if len(matches) != 0 {
		t.Fatalf("expected low-confidence pattern to be filtered by threshold, got %d matches", len(matches))
	}
}

func TestMatchCancellationStopsPromptly(t *testing.T) {
	p := newPattern("x", []string{"boom"}, nil, 0.9, 0.9)
	result := resultWithMessage("boom happened")
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	m := New(nil)
	// Should not panic or hang even though the context is already expired.
	_ = m.Match(ctx, []*model.Pattern{p}, result, Options{})
}
