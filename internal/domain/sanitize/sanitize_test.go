package sanitize

import "testing"

func TestSanitizeMasksGitHubToken(t *testing.T) {
	s := New()
	in := "Authorization failed using ghp_abcdefghijklmnopqrst1234 during checkout"
	out := s.Sanitize(in)
	if out == in {
		t.Fatalf("expected token to be masked, got unchanged text")
	}
	if containsRaw(out, "ghp_abcdefghijklmnopqrst1234") {
		t.Fatalf("raw token leaked into output: %s", out)
	}
}

func TestSanitizeIsIdempotent(t *testing.T) {
	s := New()
	in := "api_key: sk-aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa and password=supersecretvalue"
	once := s.Sanitize(in)
	twice := s.Sanitize(once)
	if once != twice {
		t.Fatalf("sanitize not idempotent:\n once=%q\n twice=%q", once, twice)
	}
}

func TestSanitizePreservesSurroundingText(t *testing.T) {
	s := New()
	in := "step 3 failed: bearer abcdef123456.ghijkl during request"
	out := s.Sanitize(in)
	if !containsRaw(out, "step 3 failed:") || !containsRaw(out, "during request") {
		t.Fatalf("surrounding text was altered: %s", out)
	}
}

func TestNewWithExtraRejectsBadPattern(t *testing.T) {
	_, errs := NewWithExtra(map[string]string{"bad": "("})
	if len(errs) != 1 {
		t.Fatalf("expected exactly one rejection error, got %d", len(errs))
	}
}

func containsRaw(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
