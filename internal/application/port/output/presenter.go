package output

import "github.com/scottlz0310/ci-helper/internal/application/dto"

// Presenter renders analysis output for a particular surface (terminal
// text, JSON). The application layer calls it; it never calls back.
type Presenter interface {
	// PresentAnalysis renders one completed analysis report.
	PresentAnalysis(report *dto.AnalysisReport) error

	// PresentFixResult renders the outcome of an auto-fix attempt.
	PresentFixResult(result *dto.FixReport) error

	// PresentError renders a terminal failure.
	PresentError(err error) error
}
