package cli

import (
	"errors"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
)

// Exit codes returned by the analysis engine when invoked as a callable.
const (
	ExitOK              = 0 // analysis produced
	ExitAnalysisFailure = 1 // analysis failure with diagnostics
	ExitConfigError     = 2 // configuration error
	ExitCancelled       = 3 // cancellation
	ExitFixRolledBack   = 4 // auto-fix failure, rollback succeeded
	ExitRollbackFailed  = 5 // auto-fix failure, rollback failed
)

// autoFixError marks an auto-fix failure so the exit code can distinguish
// a clean rollback (4) from a failed one (5).
type autoFixError struct {
	rollbackOK bool
	cause      error
}

func (e *autoFixError) Error() string {
	if e.rollbackOK {
		return "auto-fix failed, changes rolled back: " + e.cause.Error()
	}
	return "auto-fix failed and rollback failed: " + e.cause.Error()
}

func (e *autoFixError) Unwrap() error { return e.cause }

// ExitCode maps an error to the engine's exit code via its kind tag.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var fe *autoFixError
	if errors.As(err, &fe) {
		if fe.rollbackOK {
			return ExitFixRolledBack
		}
		return ExitRollbackFailed
	}
	switch {
	case ciherr.IsConfig(err) || ciherr.IsValidation(err):
		return ExitConfigError
	case ciherr.IsCancelled(err):
		return ExitCancelled
	case ciherr.IsRollback(err):
		return ExitRollbackFailed
	default:
		return ExitAnalysisFailure
	}
}
