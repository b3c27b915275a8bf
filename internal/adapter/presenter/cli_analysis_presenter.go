package presenter

import (
	"fmt"
	"io"
	"strings"

	"github.com/scottlz0310/ci-helper/internal/application/dto"
	"github.com/scottlz0310/ci-helper/internal/application/port/output"
)

// CLIAnalysisPresenter implements output.Presenter for human-readable
// terminal output.
type CLIAnalysisPresenter struct {
	output io.Writer
}

// NewCLIAnalysisPresenter creates a new CLI presenter.
func NewCLIAnalysisPresenter(out io.Writer) output.Presenter {
	return &CLIAnalysisPresenter{output: out}
}

// PresentAnalysis renders one completed analysis report.
func (p *CLIAnalysisPresenter) PresentAnalysis(report *dto.AnalysisReport) error {
	if report.Success {
		fmt.Fprintf(p.output, "✓ Workflow %q succeeded, nothing to analyze\n", report.Workflow)
		return nil
	}
	fmt.Fprintf(p.output, "✗ Workflow %q failed: %d failure(s)\n", report.Workflow, len(report.Failures))
	if report.FromCache {
		fmt.Fprintln(p.output, "  (result served from cache)")
	}
	if report.Truncated {
		fmt.Fprintln(p.output, "  (log was truncated to fit the token budget)")
	}

	for i, f := range report.Failures {
		loc := ""
		if f.FilePath != "" {
			loc = fmt.Sprintf(" (%s:%d)", f.FilePath, f.LineNumber)
		}
		count := ""
		if f.Occurrences > 1 {
			count = fmt.Sprintf(" ×%d", f.Occurrences)
		}
		fmt.Fprintf(p.output, "\nFailure %d [%s]%s%s\n  %s\n", i+1, f.Kind, loc, count, firstLine(f.Message))
	}

	if len(report.Matches) == 0 {
		fmt.Fprintln(p.output, "\nNo known pattern matched. The failures were recorded for learning.")
		return nil
	}

	fmt.Fprintf(p.output, "\nRecognized patterns:\n")
	for _, m := range report.Matches {
		fmt.Fprintf(p.output, "  %-32s %-12s confidence %.2f\n", m.PatternID, m.Category, m.Confidence)
	}

	if len(report.Suggestions) > 0 {
		fmt.Fprintf(p.output, "\nSuggested fixes:\n")
		for i, s := range report.Suggestions {
			auto := ""
			if s.AutoApplicable {
				auto = " [auto-applicable]"
			}
			fmt.Fprintf(p.output, "  %d. %s (risk %s, confidence %.2f)%s\n", i+1, s.Title, s.Risk, s.Confidence, auto)
			for _, st := range s.Steps {
				fmt.Fprintf(p.output, "       - %s\n", describeStep(st))
			}
		}
	}
	return nil
}

// PresentFixResult renders the outcome of an auto-fix attempt.
func (p *CLIAnalysisPresenter) PresentFixResult(result *dto.FixReport) error {
	if result.Success {
		fmt.Fprintf(p.output, "✓ Fix %s applied and verified (%d step(s), snapshot %s)\n",
			result.SuggestionID, result.AppliedSteps, result.SnapshotID)
		return nil
	}
	fmt.Fprintf(p.output, "✗ Fix %s failed: %s\n", result.SuggestionID, result.Error)
	if result.RollbackAvailable {
		fmt.Fprintf(p.output, "  Rolled back to snapshot %s\n", result.SnapshotID)
	} else if result.SnapshotID != "" {
		fmt.Fprintf(p.output, "  ATTENTION: rollback failed, restore manually from snapshot %s\n", result.SnapshotID)
	}
	return nil
}

// PresentError renders a terminal failure.
func (p *CLIAnalysisPresenter) PresentError(err error) error {
	fmt.Fprintf(p.output, "✗ Error: %v\n", err)
	return err
}

func describeStep(st dto.StepSummary) string {
	switch st.Type {
	case "command":
		return "run: " + strings.Join(st.Argv, " ")
	case "file_delete":
		return "delete " + st.TargetPath
	case "file_create":
		return "create " + st.TargetPath
	default:
		return fmt.Sprintf("%s %s (%s)", st.Type, st.TargetPath, st.EditMode)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
