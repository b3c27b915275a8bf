package tokencount

import "testing"

func TestCountIsMonotonicInLength(t *testing.T) {
	c := New()
	short, err := c.Count("error", FamilyGPT)
	if err != nil {
		t.Fatal(err)
	}
	long, err := c.Count("error: something went wrong during the build step", FamilyGPT)
	if err != nil {
		t.Fatal(err)
	}
	if !(long > short) {
		t.Fatalf("expected longer text to count more tokens: short=%d long=%d", short, long)
	}
}

func TestCountIsDeterministic(t *testing.T) {
	c := New()
	a, _ := c.Count("the quick brown fox", FamilyClaude)
	b, _ := c.Count("the quick brown fox", FamilyClaude)
	if a != b {
		t.Fatalf("expected deterministic count, got %d and %d", a, b)
	}
}

func TestCountUnknownFamilyErrors(t *testing.T) {
	c := New()
	if _, err := c.Count("text", Family("nonexistent")); err == nil {
		t.Fatal("expected error for unknown family")
	}
}
