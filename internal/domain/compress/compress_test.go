package compress

import (
	"strings"
	"testing"

	"github.com/scottlz0310/ci-helper/internal/domain/tokencount"
)

func TestCompressPreservesErrorLines(t *testing.T) {
	c := New(tokencount.New())
	log := strings.Repeat("info: doing nothing of note\n", 200) + "error: build failed at step 3\n" + strings.Repeat("info: more noise\n", 200)
	res, err := c.Compress(log, 50, tokencount.FamilyGPT)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "error: build failed at step 3") {
		t.Fatalf("error line was elided:\n%s", res.Text)
	}
}

func TestCompressUnderBudgetIsIdempotent(t *testing.T) {
	c := New(tokencount.New())
	log := "line one\nline two\nerror: oops\nline four"
	once, err := c.Compress(log, 10000, tokencount.FamilyGPT)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := c.Compress(once.Text, 10000, tokencount.FamilyGPT)
	if err != nil {
		t.Fatal(err)
	}
	if once.Text != twice.Text {
		t.Fatalf("compression not idempotent under budget:\nonce=%q\ntwice=%q", once.Text, twice.Text)
	}
}

func TestCompressDedupesRepeatedLines(t *testing.T) {
	c := New(tokencount.New())
	log := strings.Repeat("retrying connection\n", 10) + "error: gave up"
	res, err := c.Compress(log, 10000, tokencount.FamilyGPT)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(res.Text, "repeated") {
		t.Fatalf("expected a repeated-run marker, got:\n%s", res.Text)
	}
}

func TestCompressOverTinyBudgetReturnsTruncated(t *testing.T) {
	c := New(tokencount.New())
	log := strings.Repeat("error: failure detail line with lots of content padding here\n", 500)
	res, err := c.Compress(log, 5, tokencount.FamilyGPT)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Truncated {
		t.Fatalf("expected truncated=true when error regions exceed budget")
	}
}
