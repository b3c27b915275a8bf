package patternstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

func TestLoadIncludesBuiltinDockerPattern(t *testing.T) {
	s := New("", "", nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	p, ok := snap.ByID("docker_permission_denied")
	if !ok {
		t.Fatal("expected builtin docker_permission_denied pattern to load")
	}
	if !p.Enabled {
		t.Fatal("expected builtin pattern enabled by default")
	}
}

func TestUserPatternOverridesBuiltinByID(t *testing.T) {
	dir := t.TempDir()
	overlay := `{"patterns":[{"id":"docker_permission_denied","name":"user override","category":"permission","regexes":["permission denied"],"required_keywords":[],"base_confidence":0.99,"success_rate":0.5,"occurrence_count":1,"source":"user","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z","enabled":true}]}`
	if err := os.WriteFile(filepath.Join(dir, "overlay.json"), []byte(overlay), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(dir, "", nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	p, _ := s.Snapshot().ByID("docker_permission_denied")
	if p.Name != "user override" {
		t.Fatalf("expected user pattern to win id collision, got name=%q", p.Name)
	}
}

func TestUpsertLearnedRequiresOccurrenceCount(t *testing.T) {
	dir := t.TempDir()
	s := New("", filepath.Join(dir, "learned.json"), nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	p := &model.Pattern{ID: "candidate_x", RegexSource: []string{"x"}, OccurrenceCount: 0}
	if err := s.UpsertLearned(p); err == nil {
		t.Fatal("expected error for zero occurrence count")
	}
}

func TestUpsertLearnedPersistsAndBumpsVersion(t *testing.T) {
	dir := t.TempDir()
	learnedPath := filepath.Join(dir, "learned.json")
	s := New("", learnedPath, nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	before := s.Version()
	p := &model.Pattern{ID: "candidate_y", RegexSource: []string{"widget not found"}, OccurrenceCount: 5, Category: model.CategoryUnknown, BaseConfidence: 0.5}
	if err := s.UpsertLearned(p); err != nil {
		t.Fatal(err)
	}
	if s.Version() <= before {
		t.Fatal("expected version to bump after write")
	}
	if _, err := os.Stat(learnedPath); err != nil {
		t.Fatalf("expected learned file to be persisted: %v", err)
	}
}

func TestCorruptUserFileIsSkippedNotFatal(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(dir, "", nil)
	if err := s.Load(); err != nil {
		t.Fatalf("corrupt user file must not fail overall load: %v", err)
	}
	if _, ok := s.Snapshot().ByID("docker_permission_denied"); !ok {
		t.Fatal("expected builtin patterns still present after skipping corrupt user file")
	}
}

func TestUnknownKeysSurviveRoundTrip(t *testing.T) {
	doc := []byte(`{
  "patterns": [
    {
      "id": "custom_x",
      "name": "Custom",
      "category": "network",
      "regexes": ["widget timeout"],
      "required_keywords": [],
      "context_requirements": [],
      "base_confidence": 0.7,
      "success_rate": 0.5,
      "occurrence_count": 3,
      "source": "user",
      "created_at": "2024-01-01T00:00:00Z",
      "updated_at": "2024-01-01T00:00:00Z",
      "enabled": true,
      "x_vendor_note": "kept verbatim",
      "x_priority": 7
    }
  ]
}`)
	patterns, err := parse(doc, model.SourceUser)
	if err != nil {
		t.Fatal(err)
	}
	if len(patterns) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(patterns))
	}
	p := patterns[0]
	if p.Unknown["x_vendor_note"] != "kept verbatim" {
		t.Fatalf("unknown string key lost: %v", p.Unknown)
	}

	raw := toRaw(p)
	b, err := raw.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	if !strings.Contains(out, `"x_vendor_note":"kept verbatim"`) {
		t.Fatalf("unknown key missing from re-marshaled JSON: %s", out)
	}
	if !strings.Contains(out, `"x_priority":7`) {
		t.Fatalf("unknown numeric key missing from re-marshaled JSON: %s", out)
	}

	// A second decode → encode cycle must not change the document.
	var rp2 rawPattern
	if err := rp2.UnmarshalJSON(b); err != nil {
		t.Fatal(err)
	}
	b2, err := rp2.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b2) != out {
		t.Fatalf("round trip not stable:\n%s\n%s", out, string(b2))
	}
}
