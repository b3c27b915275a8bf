package output

import "context"

// Runner is the boundary to the external workflow execution engine. The
// analysis engine never invokes workflows itself; a wrapper outside the
// core implements this interface and hands the captured log back.
type Runner interface {
	Run(ctx context.Context, selector WorkflowSelector) (*RunOutput, error)
}

// WorkflowSelector names which workflow (and optionally job) to execute.
type WorkflowSelector struct {
	Workflow string
	Job      string
}

// RunOutput is the raw material one run produces for analysis.
type RunOutput struct {
	ExitCode int
	LogBytes []byte
	Metadata RunMetadata
}

// RunMetadata carries whatever structure the runner could observe. Step
// boundaries are best-effort. The extractor does not read them; it always
// parses step boundaries out of the log text.
type RunMetadata struct {
	WorkflowName   string
	JobNames       []string
	StepBoundaries []StepBoundary
}

// StepBoundary is a half-open byte range of one step's output within LogBytes.
type StepBoundary struct {
	Job   string
	Step  string
	Start int
	End   int
}
