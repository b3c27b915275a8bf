package presenter

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottlz0310/ci-helper/internal/application/dto"
)

func sampleReport() *dto.AnalysisReport {
	return &dto.AnalysisReport{
		Workflow: "ci",
		Success:  false,
		Failures: []dto.FailureSummary{
			{Kind: "permission", Message: "permission denied while trying to connect to the Docker daemon socket", Occurrences: 1},
		},
		Matches: []dto.MatchSummary{
			{PatternID: "docker_permission_denied", Category: "permission", Confidence: 0.9},
		},
		Suggestions: []dto.SuggestionSummary{
			{
				ID: "docker_actrc/docker_permission_denied", Title: "Run act with --privileged",
				Risk: "low", Confidence: 0.85, AutoApplicable: true,
				Steps: []dto.StepSummary{
					{Type: "file_edit", TargetPath: ".actrc", EditMode: "append", Payload: "--privileged\n"},
				},
			},
		},
	}
}

func TestCLIAnalysisPresenter_FailureReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIAnalysisPresenter(&buf)

	require.NoError(t, p.PresentAnalysis(sampleReport()))

	out := buf.String()
	assert.Contains(t, out, "1 failure(s)")
	assert.Contains(t, out, "docker_permission_denied")
	assert.Contains(t, out, "[auto-applicable]")
	assert.Contains(t, out, ".actrc")
}

func TestCLIAnalysisPresenter_SuccessReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIAnalysisPresenter(&buf)

	require.NoError(t, p.PresentAnalysis(&dto.AnalysisReport{Workflow: "ci", Success: true}))
	assert.Contains(t, buf.String(), "succeeded")
}

func TestCLIAnalysisPresenter_FixResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewCLIAnalysisPresenter(&buf)

	require.NoError(t, p.PresentFixResult(&dto.FixReport{
		SuggestionID: "s1", Success: false, SnapshotID: "01J",
		RollbackAvailable: true, Error: "verification failed",
	}))
	out := buf.String()
	assert.Contains(t, out, "verification failed")
	assert.Contains(t, out, "Rolled back to snapshot 01J")
}

func TestJSONPresenter_RoundTrips(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONPresenter(&buf)

	require.NoError(t, p.PresentAnalysis(sampleReport()))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "analysis", decoded["type"])
}

func TestJSONPresenter_Error(t *testing.T) {
	var buf bytes.Buffer
	p := NewJSONPresenter(&buf)

	require.NoError(t, p.PresentError(errors.New("boom")))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "error", decoded["type"])
	assert.Equal(t, "boom", decoded["error"])
}
