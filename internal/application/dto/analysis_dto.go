// Package dto carries the flattened, serialization-friendly shapes the
// presenters render. The application layer converts domain values into
// these; adapters never see domain types directly.
package dto

import (
	"time"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

// FailureSummary is one failure flattened for presentation.
type FailureSummary struct {
	Kind        string `json:"kind"`
	Message     string `json:"message"`
	FilePath    string `json:"file_path,omitempty"`
	LineNumber  int    `json:"line_number,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Occurrences int    `json:"occurrences"`
}

// MatchSummary is one pattern match flattened for presentation.
type MatchSummary struct {
	PatternID      string            `json:"pattern_id"`
	PatternName    string            `json:"pattern_name"`
	Category       string            `json:"category"`
	Confidence     float64           `json:"confidence"`
	MatchStrength  float64           `json:"match_strength"`
	Captures       map[string]string `json:"captures,omitempty"`
	ContextSnippet string            `json:"context_snippet,omitempty"`
}

// StepSummary is one concretized fix step flattened for presentation.
type StepSummary struct {
	Type       string   `json:"type"`
	TargetPath string   `json:"target_path,omitempty"`
	EditMode   string   `json:"edit_mode,omitempty"`
	Payload    string   `json:"payload,omitempty"`
	Argv       []string `json:"argv,omitempty"`
}

// SuggestionSummary is one fix suggestion flattened for presentation.
type SuggestionSummary struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description,omitempty"`
	PatternID      string        `json:"pattern_id"`
	Risk           string        `json:"risk"`
	EstimatedTime  string        `json:"estimated_time,omitempty"`
	Confidence     float64       `json:"confidence"`
	AutoApplicable bool          `json:"auto_applicable"`
	Steps          []StepSummary `json:"steps"`
}

// AnalysisReport is the complete output of one analysis request.
type AnalysisReport struct {
	Workflow             string              `json:"workflow"`
	Success              bool                `json:"success"`
	Truncated            bool                `json:"truncated"`
	FromCache            bool                `json:"from_cache"`
	Duration             time.Duration       `json:"duration_ns"`
	Failures             []FailureSummary    `json:"failures"`
	Matches              []MatchSummary      `json:"matches"`
	Suggestions          []SuggestionSummary `json:"suggestions"`
	PatternStoreVersion  uint64              `json:"pattern_store_version"`
	TemplateStoreVersion uint64              `json:"template_store_version"`
}

// FixReport is the outcome of one auto-fix attempt.
type FixReport struct {
	SuggestionID       string `json:"suggestion_id"`
	Success            bool   `json:"success"`
	SnapshotID         string `json:"snapshot_id"`
	AppliedSteps       int    `json:"applied_steps"`
	VerificationPassed bool   `json:"verification_passed"`
	RollbackAvailable  bool   `json:"rollback_available"`
	Error              string `json:"error,omitempty"`
}

// NewAnalysisReport flattens a domain AnalysisResult.
func NewAnalysisReport(res *model.AnalysisResult, workflow string, patternVersion, templateVersion uint64) *AnalysisReport {
	rep := &AnalysisReport{
		Workflow:             workflow,
		Truncated:            res.Truncated,
		FromCache:            res.FromCache,
		PatternStoreVersion:  patternVersion,
		TemplateStoreVersion: templateVersion,
	}
	if res.Execution != nil {
		rep.Success = res.Execution.Success
		rep.Duration = res.Execution.Duration
		for _, f := range res.Execution.Failures() {
			rep.Failures = append(rep.Failures, FailureSummary{
				Kind:        string(f.Kind),
				Message:     f.Message,
				FilePath:    f.FilePath,
				LineNumber:  f.LineNumber,
				Fingerprint: f.Fingerprint,
				Occurrences: f.Occurrences,
			})
		}
	}
	for _, m := range res.Matches {
		ms := MatchSummary{
			Confidence:     m.Confidence,
			MatchStrength:  m.MatchStrength,
			Captures:       m.Captures,
			ContextSnippet: m.ContextSnippet,
		}
		if m.Pattern != nil {
			ms.PatternID = m.Pattern.ID
			ms.PatternName = m.Pattern.Name
			ms.Category = string(m.Pattern.Category)
		}
		rep.Matches = append(rep.Matches, ms)
	}
	for _, s := range res.Suggestions {
		ss := SuggestionSummary{
			ID:             s.ID,
			Title:          s.Title,
			Description:    s.Description,
			Risk:           string(s.Risk),
			EstimatedTime:  s.EstimatedTime,
			Confidence:     s.Confidence,
			AutoApplicable: s.AutoApplicable,
		}
		if s.Match != nil && s.Match.Pattern != nil {
			ss.PatternID = s.Match.Pattern.ID
		}
		for _, st := range s.Steps {
			ss.Steps = append(ss.Steps, StepSummary{
				Type:       string(st.Kind),
				TargetPath: st.TargetPath,
				EditMode:   string(st.EditMode),
				Payload:    st.Payload,
				Argv:       st.Argv,
			})
		}
		rep.Suggestions = append(rep.Suggestions, ss)
	}
	return rep
}

// NewFixReport flattens a domain FixResult.
func NewFixReport(suggestionID string, res *model.FixResult) *FixReport {
	rep := &FixReport{
		SuggestionID:       suggestionID,
		Success:            res.Success,
		SnapshotID:         res.SnapshotID,
		AppliedSteps:       len(res.AppliedSteps),
		VerificationPassed: res.VerificationPassed,
		RollbackAvailable:  res.RollbackAvailable,
	}
	if res.Error != nil {
		rep.Error = res.Error.Error()
	}
	return rep
}
