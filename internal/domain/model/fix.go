package model

// RiskLevel classifies how invasive a fix is.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Rank returns a numeric ordering for deterministic tie-breaks (low < medium < high).
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 3
	}
}

// FixStepKind discriminates the step types a template may declare.
type FixStepKind string

const (
	StepFileEdit   FixStepKind = "file_edit"
	StepFileCreate FixStepKind = "file_create"
	StepFileDelete FixStepKind = "file_delete"
	StepCommand    FixStepKind = "command"
)

// EditMode selects how a file_edit step modifies its target.
type EditMode string

const (
	EditAppend          EditMode = "append"
	EditPrepend         EditMode = "prepend"
	EditReplace         EditMode = "replace"
	EditRegexSubstitute EditMode = "regex_substitute"
)

// FixStep is one atomic action inside a FixTemplate/FixSuggestion.
type FixStep struct {
	Kind FixStepKind

	// file_edit / file_create / file_delete
	TargetPath string
	EditMode   EditMode
	Payload    string // may carry {capture} placeholders before concretization

	// command
	Argv       []string
	TimeoutSec int

	// optional, evaluated post-apply
	ValidationPredicate string
}

// FixTemplate is a recipe of steps that implements a fix for one or more patterns.
type FixTemplate struct {
	ID                   string
	Name                 string
	Description          string
	ApplicablePatternIDs []string
	Steps                []FixStep
	Risk                 RiskLevel
	EstimatedTime        string
	SuccessRate          float64
	Prerequisites        []string
	ValidationSteps      []string
	Unknown              map[string]any
}

// FixSuggestion is a FixTemplate instantiated against one PatternMatch with
// captures already substituted.
type FixSuggestion struct {
	ID             string
	Title          string
	Description    string
	Match          *PatternMatch
	Template       *FixTemplate
	Steps          []FixStep
	Risk           RiskLevel
	EstimatedTime  string
	Confidence     float64
	AutoApplicable bool
}

// FixResult is the outcome of an Auto Fixer run.
type FixResult struct {
	Success            bool
	AppliedSteps       []FixStep
	SnapshotID         string
	Error              error
	VerificationPassed bool
	RollbackAvailable  bool
}
