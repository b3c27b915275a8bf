package extract

import (
	"strings"
	"testing"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

func TestExtractDockerPermissionDenied(t *testing.T) {
	log := "##[group]Run docker run\n" +
		"permission denied while trying to connect to the Docker daemon socket\n" +
		"##[error]Process completed with exit code 1.\n"

	e := New()
	result := e.Extract(log, "ci")

	failures := result.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected exactly one failure, got %d: %+v", len(failures), failures)
	}
	f := failures[0]
	if f.Kind != model.FailurePermission {
		t.Fatalf("expected permission kind, got %s", f.Kind)
	}
	if !strings.Contains(f.Message, "permission denied") {
		t.Fatalf("unexpected message: %s", f.Message)
	}
}

func TestExtractPythonModuleNotFound(t *testing.T) {
	log := "##[group]Run pytest\n" +
		"ModuleNotFoundError: No module named 'requests'\n" +
		"##[error]Process completed with exit code 1.\n"

	e := New()
	result := e.Extract(log, "ci")
	failures := result.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected one failure, got %d", len(failures))
	}
	if failures[0].Kind != model.FailureDependency {
		t.Fatalf("expected dependency kind, got %s", failures[0].Kind)
	}
}

func TestExtractUnknownOnNoSignal(t *testing.T) {
	log := "##[group]Run something\n" +
		"some unrecognized output\n" +
		"return code: 1\n"

	e := New()
	result := e.Extract(log, "ci")
	failures := result.Failures()
	if len(failures) != 1 || failures[0].Kind != model.FailureUnknown {
		t.Fatalf("expected single unknown failure, got %+v", failures)
	}
}

func TestExtractCollapsesRepeatedFailures(t *testing.T) {
	log := "##[group]Run build\n" +
		strings.Repeat("error: connection refused to 10.0.0.1\n", 4) +
		"return code: 1\n"
	e := New()
	result := e.Extract(log, "ci")
	failures := result.Failures()
	if len(failures) != 1 {
		t.Fatalf("expected collapsed single failure, got %d", len(failures))
	}
	if failures[0].Occurrences != 4 {
		t.Fatalf("expected occurrences=4, got %d", failures[0].Occurrences)
	}
}

func TestFingerprintNormalizesDigitsAndPaths(t *testing.T) {
	a := model.Failure{Kind: model.FailureError, Message: "error at /home/user1/app/file.go line 42"}
	b := model.Failure{Kind: model.FailureError, Message: "error at /home/user2/app/file.go line 99"}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected equal fingerprints after normalization")
	}
}

func TestSuccessIsConjunctionOfChildren(t *testing.T) {
	log := "##[group]Run ok step\n" +
		"everything fine\n" +
		"return code: 0\n" +
		"##[group]Run bad step\n" +
		"error: boom\n" +
		"return code: 1\n"
	e := New()
	result := e.Extract(log, "ci")
	if result.Success {
		t.Fatalf("expected overall failure when one step failed")
	}
}
