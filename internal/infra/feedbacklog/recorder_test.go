package feedbacklog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

func TestRecordThenReadAllRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	r, err := New(path, 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	fb := model.UserFeedback{PatternID: "docker_permission_denied", Rating: 5, Success: true, Comment: "worked"}
	if err := r.Record(fb); err != nil {
		t.Fatal(err)
	}

	all, err := r.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(all))
	}
	if all[0].PatternID != "docker_permission_denied" || all[0].Rating != 5 || !all[0].Success {
		t.Fatalf("unexpected entry: %+v", all[0])
	}
	if all[0].ID == "" {
		t.Fatal("expected an auto-assigned id")
	}
	if all[0].Timestamp.IsZero() {
		t.Fatal("expected an auto-assigned timestamp")
	}
}

func TestByPatternGroupsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	r, err := New(path, 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_ = r.Record(model.UserFeedback{PatternID: "a", Success: true})
	_ = r.Record(model.UserFeedback{PatternID: "a", Success: false})
	_ = r.Record(model.UserFeedback{PatternID: "b", Success: true})

	grouped, err := r.ByPattern()
	if err != nil {
		t.Fatal(err)
	}
	if len(grouped["a"]) != 2 {
		t.Fatalf("expected 2 entries for pattern a, got %d", len(grouped["a"]))
	}
	if len(grouped["b"]) != 1 {
		t.Fatalf("expected 1 entry for pattern b, got %d", len(grouped["b"]))
	}
}

func TestRecordAppendsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.jsonl")
	r1, err := New(path, 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	_ = r1.Record(model.UserFeedback{PatternID: "a"})
	r1.Close()

	r2, err := New(path, 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer r2.Close()
	_ = r2.Record(model.UserFeedback{PatternID: "b"})

	all, err := r2.ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 entries across reopen, got %d", len(all))
	}
}
