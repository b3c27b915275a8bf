package templatestore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scottlz0310/ci-helper/internal/domain/autofix"
)

func allIDs(ids ...string) func() map[string]bool {
	return func() map[string]bool {
		m := map[string]bool{}
		for _, id := range ids {
			m[id] = true
		}
		return m
	}
}

func TestLoadIncludesBuiltinDockerTemplate(t *testing.T) {
	root := t.TempDir()
	s := New("", autofix.NewPolicy(root), allIDs("docker_permission_denied", "python_module_not_found", "node_module_not_found", "npm_eacces", "python_syntax_error"), nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	tmpl, ok := s.ByID("docker_privileged_actrc")
	if !ok {
		t.Fatal("expected builtin docker template to load")
	}
	if tmpl.Steps[0].TargetPath != ".actrc" {
		t.Fatalf("unexpected target path: %s", tmpl.Steps[0].TargetPath)
	}
}

func TestTemplateRejectedForUnknownPatternID(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	bad := `{"templates":[{"id":"bogus","name":"x","applicable_pattern_ids":["nonexistent_pattern"],"steps":[{"type":"command","argv":["pytest"]}],"risk":"low"}]}`
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(dir, autofix.NewPolicy(root), allIDs("docker_permission_denied"), nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.ByID("bogus"); ok {
		t.Fatal("expected template referencing unknown pattern id to be rejected")
	}
}

func TestTemplateRejectedForDisallowedCommand(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	bad := `{"templates":[{"id":"curl_template","name":"x","applicable_pattern_ids":[],"steps":[{"type":"command","argv":["curl","http://example.com"]}],"risk":"low"}]}`
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(dir, autofix.NewPolicy(root), allIDs(), nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.ByID("curl_template"); ok {
		t.Fatal("expected template with disallowed command to be rejected")
	}
}

func TestTemplateRejectedForPathEscapingRoot(t *testing.T) {
	root := t.TempDir()
	dir := t.TempDir()
	bad := `{"templates":[{"id":"escape_template","name":"x","applicable_pattern_ids":[],"steps":[{"type":"file_edit","target_path":"../../etc/passwd","edit_mode":"append","payload":"x"}]}]}`
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(dir, autofix.NewPolicy(root), allIDs(), nil)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.ByID("escape_template"); ok {
		t.Fatal("expected template with path escaping root to be rejected")
	}
}
