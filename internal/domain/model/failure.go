package model

// FailureKind classifies what went wrong in a failed step.
type FailureKind string

const (
	FailureAssertion  FailureKind = "assertion"
	FailureError      FailureKind = "error"
	FailureTimeout    FailureKind = "timeout"
	FailureSyntax     FailureKind = "syntax"
	FailureDependency FailureKind = "dependency"
	FailurePermission FailureKind = "permission"
	FailureNetwork    FailureKind = "network"
	FailureUnknown    FailureKind = "unknown"
)

// Failure is one detected failure signal inside a step's log.
type Failure struct {
	Kind          FailureKind
	Message       string
	FilePath      string
	LineNumber    int // 0 means absent
	ContextBefore []string
	ContextAfter  []string
	StackTrace    []string
	Fingerprint   string
	Occurrences   int // >1 when similar failures were collapsed
}

// CombinedText is the text the pattern matcher's regex/keyword phases run
// against: the message plus the stack trace, newline-joined.
func (f *Failure) CombinedText() string {
	if len(f.StackTrace) == 0 {
		return f.Message
	}
	out := f.Message
	for _, l := range f.StackTrace {
		out += "\n" + l
	}
	return out
}
