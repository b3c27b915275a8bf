package learning

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

type fakeFeedbackSource struct {
	byPattern map[string][]model.UserFeedback
}

func (f *fakeFeedbackSource) ByPattern() (map[string][]model.UserFeedback, error) {
	return f.byPattern, nil
}

type fakeStore struct {
	patterns map[string]*model.Pattern
	upserted []*model.Pattern
}

func (f *fakeStore) UpdateStats(id string, mutate func(p *model.Pattern)) error {
	p, ok := f.patterns[id]
	if !ok {
		p = &model.Pattern{ID: id}
		f.patterns[id] = p
	}
	mutate(p)
	return nil
}

func (f *fakeStore) UpsertLearned(p *model.Pattern) error {
	f.upserted = append(f.upserted, p)
	return nil
}

func TestUpdateStatsFromFeedbackAppliesEWMAOncePerEntry(t *testing.T) {
	store := &fakeStore{patterns: map[string]*model.Pattern{
		"docker_permission_denied": {ID: "docker_permission_denied", SuccessRate: 0.5},
	}}
	fb := &fakeFeedbackSource{byPattern: map[string][]model.UserFeedback{
		"docker_permission_denied": {
			{ID: "fb1", PatternID: "docker_permission_denied", Success: true, Timestamp: time.Now()},
		},
	}}
	dir := t.TempDir()
	e := New(store, fb, filepath.Join(dir, "applied.json"), filepath.Join(dir, "pending.json"), 0.2, nil)

	n, err := e.UpdateStatsFromFeedback()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 applied feedback entry, got %d", n)
	}
	got := store.patterns["docker_permission_denied"].SuccessRate
	want := 0.2*1.0 + 0.8*0.5
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected success_rate %v, got %v", want, got)
	}

	// Re-running must not double-apply the same feedback id.
	n2, err := e.UpdateStatsFromFeedback()
	if err != nil {
		t.Fatal(err)
	}
	if n2 != 0 {
		t.Fatalf("expected second run to apply 0 new entries, got %d", n2)
	}
	if store.patterns["docker_permission_denied"].SuccessRate != got {
		t.Fatal("expected success_rate unchanged on idempotent re-run")
	}
}

func TestDiscoverCandidatesGroupsSimilarUnknownFailures(t *testing.T) {
	store := &fakeStore{patterns: map[string]*model.Pattern{}}
	fb := &fakeFeedbackSource{byPattern: map[string][]model.UserFeedback{}}
	dir := t.TempDir()
	e := New(store, fb, filepath.Join(dir, "applied.json"), filepath.Join(dir, "pending.json"), 0.2, nil)

	// Kinds mirror what the extractor's signal scan really assigns to
	// these lines; discovery groups whatever reached the unknown-failure
	// log, regardless of kind.
	failures := []model.Failure{
		{Kind: model.FailureNetwork, Message: "connection refused to host alpha.internal port 443", Fingerprint: "fp1"},
		{Kind: model.FailureNetwork, Message: "connection refused to host beta.internal port 443", Fingerprint: "fp2"},
		{Kind: model.FailureNetwork, Message: "connection refused to host gamma.internal port 443", Fingerprint: "fp3"},
	}

	candidates, err := e.DiscoverCandidates(failures, 3, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 discovered candidate, got %d", len(candidates))
	}
	if candidates[0].GroupSize != 3 {
		t.Fatalf("expected group size 3, got %d", candidates[0].GroupSize)
	}
	if candidates[0].Pattern.Category != model.CategoryUnknown {
		t.Fatalf("expected category unknown, got %s", candidates[0].Pattern.Category)
	}
	if candidates[0].Pattern.Enabled {
		t.Fatal("expected candidate to start disabled, pending operator review")
	}

	pending, err := e.PendingCandidates()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected candidate persisted to pending list, got %d", len(pending))
	}
}

func TestPromoteCandidateMovesPendingToEnabledLearnedPattern(t *testing.T) {
	store := &fakeStore{patterns: map[string]*model.Pattern{}}
	fb := &fakeFeedbackSource{byPattern: map[string][]model.UserFeedback{}}
	dir := t.TempDir()
	e := New(store, fb, filepath.Join(dir, "applied.json"), filepath.Join(dir, "pending.json"), 0.2, nil)

	failures := []model.Failure{
		{Kind: model.FailureUnknown, Message: "unexpected token at offset 12 in config", Fingerprint: "fp1"},
		{Kind: model.FailureUnknown, Message: "unexpected token at offset 44 in config", Fingerprint: "fp2"},
	}
	candidates, err := e.DiscoverCandidates(failures, 2, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}

	if err := e.PromoteCandidate(candidates[0].ID); err != nil {
		t.Fatal(err)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected promotion to upsert one learned pattern, got %d", len(store.upserted))
	}
	if !store.upserted[0].Enabled {
		t.Fatal("expected promoted pattern to be enabled")
	}

	pending, err := e.PendingCandidates()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected pending list empty after promotion, got %d", len(pending))
	}
}

func TestDiscoverCandidatesGeneralizesDigitRuns(t *testing.T) {
	store := &fakeStore{patterns: map[string]*model.Pattern{}}
	fb := &fakeFeedbackSource{byPattern: map[string][]model.UserFeedback{}}
	dir := t.TempDir()
	e := New(store, fb, filepath.Join(dir, "applied.json"), filepath.Join(dir, "pending.json"), 0.2, nil)

	// The generic error signal classifies this line as kind=error, not
	// kind=unknown; it still reaches discovery via the unknown-failure log.
	var failures []model.Failure
	for i := 0; i < 5; i++ {
		failures = append(failures, model.Failure{
			Kind:        model.FailureError,
			Message:     "CustomLib[ERROR]: widget not found in registry-42",
			Fingerprint: "fp-widget",
		})
	}

	candidates, err := e.DiscoverCandidates(failures, 3, 0.7)
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	cand := candidates[0]
	if cand.Pattern.OccurrenceCount != 5 {
		t.Fatalf("expected occurrence_count 5, got %d", cand.Pattern.OccurrenceCount)
	}
	if cand.Pattern.Source != model.SourceLearned {
		t.Fatalf("expected source learned, got %s", cand.Pattern.Source)
	}
	re := cand.Pattern.RegexSource[0]
	want := `CustomLib\[ERROR\]: widget not found in registry-\d+`
	if re != want {
		t.Fatalf("expected regex %q, got %q", want, re)
	}
	if len(store.upserted) != 0 {
		t.Fatal("candidate must not enter the pattern store before promotion")
	}
}
