package model

import "time"

// StepResult is the leaf of the execution tree: one step inside a job.
type StepResult struct {
	Name     string
	Success  bool
	Duration time.Duration
	Failures []Failure
}

// JobResult is an ordered sequence of steps. Its Success flag is the
// conjunction of its steps' success flags.
type JobResult struct {
	Name    string
	Success bool
	Steps   []StepResult
}

// WorkflowResult is an ordered sequence of jobs. Its Success flag is the
// conjunction of its jobs' success flags.
type WorkflowResult struct {
	Name    string
	Success bool
	Jobs    []JobResult
}

// ExecutionResult is the structured outcome of one workflow run.
type ExecutionResult struct {
	Workflows []WorkflowResult
	Success   bool
	Duration  time.Duration
	LogText   string
}

// Recompute derives the Success flags bottom-up and the aggregate Success
// flag, per the invariant success = ∀ workflows.success.
func (r *ExecutionResult) Recompute() {
	allOK := true
	for wi := range r.Workflows {
		w := &r.Workflows[wi]
		wOK := true
		for ji := range w.Jobs {
			j := &w.Jobs[ji]
			jOK := true
			for si := range j.Steps {
				s := &j.Steps[si]
				if !s.Success {
					jOK = false
				}
			}
			j.Success = jOK
			if !jOK {
				wOK = false
			}
		}
		w.Success = wOK
		if !wOK {
			allOK = false
		}
	}
	r.Success = allOK
}

// Failures flattens every Failure across the whole execution tree, in
// deterministic workflow/job/step order.
func (r *ExecutionResult) Failures() []Failure {
	var out []Failure
	for _, w := range r.Workflows {
		for _, j := range w.Jobs {
			for _, s := range j.Steps {
				out = append(out, s.Failures...)
			}
		}
	}
	return out
}
