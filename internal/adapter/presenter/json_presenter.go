package presenter

import (
	"encoding/json"
	"io"

	"github.com/scottlz0310/ci-helper/internal/application/dto"
	"github.com/scottlz0310/ci-helper/internal/application/port/output"
)

// JSONPresenter implements output.Presenter for programmatic consumption.
// Every record is one JSON document on the writer.
type JSONPresenter struct {
	output io.Writer
}

// NewJSONPresenter creates a new JSON presenter.
func NewJSONPresenter(out io.Writer) output.Presenter {
	return &JSONPresenter{output: out}
}

// PresentAnalysis presents an analysis report as JSON.
func (p *JSONPresenter) PresentAnalysis(report *dto.AnalysisReport) error {
	return p.encode(map[string]interface{}{
		"type":     "analysis",
		"analysis": report,
	})
}

// PresentFixResult presents a fix outcome as JSON.
func (p *JSONPresenter) PresentFixResult(result *dto.FixReport) error {
	return p.encode(map[string]interface{}{
		"type": "fix_result",
		"fix":  result,
	})
}

// PresentError presents an error as JSON.
func (p *JSONPresenter) PresentError(err error) error {
	return p.encode(map[string]interface{}{
		"type":  "error",
		"error": err.Error(),
	})
}

func (p *JSONPresenter) encode(v interface{}) error {
	enc := json.NewEncoder(p.output)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
