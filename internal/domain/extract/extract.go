// Package extract implements the failure extractor: it parses a
// sanitized (and optionally compressed) log blob into a structured
// model.ExecutionResult, demultiplexing interleaved parallel-worker
// output, attaching context windows, and fingerprinting each failure.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

// DefaultContextLines is the default context window kept before/after a signal.
const DefaultContextLines = 5

// unknownTailLines is the length of the synthetic unknown-failure context
// window when a step fails with no detected signal.
const unknownTailLines = 20

// Extractor turns log text into a model.ExecutionResult.
type Extractor struct {
	ContextLines int
}

// New returns an Extractor using DefaultContextLines.
func New() *Extractor {
	return &Extractor{ContextLines: DefaultContextLines}
}

// Extract parses logText (origin: workflowName) into an ExecutionResult.
// Parsing is best-effort: malformed sections never fail extraction, they
// become unknown failures carrying the raw chunk as context.
func (e *Extractor) Extract(logText, workflowName string) *model.ExecutionResult {
	lines := strings.Split(logText, "\n")
	streams := demux(lines)

	result := &model.ExecutionResult{LogText: logText}
	wf := model.WorkflowResult{Name: workflowName}

	for workerID, streamLines := range streams {
		jobName := workerID
		steps := splitSteps(streamLines)
		job := model.JobResult{Name: jobName}
		for _, st := range steps {
			job.Steps = append(job.Steps, e.extractStep(st))
		}
		wf.Jobs = append(wf.Jobs, job)
	}

	result.Workflows = append(result.Workflows, wf)
	result.Recompute()
	return result
}

// stepChunk is one demultiplexed step: its header name, exit code (-1 if
// unknown), and body lines.
type stepChunk struct {
	name     string
	exitCode int
	lines    []string
}

// demux splits interleaved lines by worker prefix marker. If no line
// carries a prefix the whole log is a single stream keyed "default".
func demux(lines []string) map[string][]string {
	out := map[string][]string{}
	any := false
	for _, l := range lines {
		if m := workerPrefixRe.FindStringSubmatch(l); m != nil {
			key := "worker-" + m[2]
			out[key] = append(out[key], m[3])
			any = true
			continue
		}
		if any {
			// A line with no prefix after prefixed lines appeared still
			// belongs to the ambient stream.
			out["default"] = append(out["default"], l)
			continue
		}
	}
	if !any {
		out["default"] = lines
	}
	return out
}

// splitSteps breaks one stream into step chunks using header/return-code markers.
func splitSteps(lines []string) []stepChunk {
	var steps []stepChunk
	cur := stepChunk{name: "step", exitCode: -1}
	started := false
	for _, l := range lines {
		if m := stepHeaderRe.FindStringSubmatch(l); m != nil {
			if started {
				steps = append(steps, cur)
			}
			cur = stepChunk{name: strings.TrimSpace(m[1]), exitCode: -1}
			started = true
			continue
		}
		if m := returnCodeRe.FindStringSubmatch(l); m != nil {
			code := firstNonEmpty(m[1], m[2])
			if n, err := strconv.Atoi(code); err == nil {
				cur.exitCode = n
			}
			cur.lines = append(cur.lines, l)
			continue
		}
		cur.lines = append(cur.lines, l)
	}
	if started || len(cur.lines) > 0 {
		steps = append(steps, cur)
	}
	if len(steps) == 0 {
		steps = append(steps, stepChunk{name: "step", exitCode: -1, lines: lines})
	}
	return steps
}

func firstNonEmpty(s ...string) string {
	for _, v := range s {
		if v != "" {
			return v
		}
	}
	return ""
}

// extractStep scans one step's lines for failure signals and builds a StepResult.
func (e *Extractor) extractStep(st stepChunk) model.StepResult {
	sr := model.StepResult{Name: st.name}

	var failures []model.Failure
	matchedLineIdx := map[int]bool{}

	for i, line := range st.lines {
		if returnCodeRe.MatchString(line) {
			// Runner metadata footer, not itself a failure signal.
			continue
		}
		sig := matchSignal(line)
		if sig == nil {
			continue
		}
		f := model.Failure{
			Kind:    kindFor(sig.kind),
			Message: strings.TrimSpace(line),
		}
		if sig.fileRe != nil {
			if fm := sig.fileRe.FindStringSubmatch(line); fm != nil {
				f.FilePath = fm[1]
				if n, err := strconv.Atoi(fm[2]); err == nil {
					f.LineNumber = n
				}
			}
		}
		f.ContextBefore = contextWindow(st.lines, i, -e.ContextLines)
		f.ContextAfter = contextWindow(st.lines, i, e.ContextLines)
		f.Fingerprint = Fingerprint(f)
		failures = append(failures, f)
		matchedLineIdx[i] = true
	}

	failures = collapseSimilar(failures)

	stepFailed := st.exitCode > 0 || len(failures) > 0
	if stepFailed && len(failures) == 0 {
		// No detected signal but non-zero exit: synthesize one unknown
		// failure carrying the last unknownTailLines lines.
		tail := tailLines(st.lines, unknownTailLines)
		f := model.Failure{
			Kind:         model.FailureUnknown,
			Message:      "step exited with non-zero status and no recognized failure signal",
			ContextAfter: tail,
		}
		f.Fingerprint = Fingerprint(f)
		failures = append(failures, f)
	}

	sr.Success = !stepFailed
	sr.Failures = failures
	return sr
}

func matchSignal(line string) *signal {
	for i := range builtinSignals {
		if builtinSignals[i].re.MatchString(line) {
			return &builtinSignals[i]
		}
	}
	return nil
}

func kindFor(k kindFn) model.FailureKind {
	switch k {
	case kindAssertion:
		return model.FailureAssertion
	case kindTimeout:
		return model.FailureTimeout
	case kindSyntax:
		return model.FailureSyntax
	case kindDependency:
		return model.FailureDependency
	case kindPermission:
		return model.FailurePermission
	case kindNetwork:
		return model.FailureNetwork
	default:
		return model.FailureError
	}
}

func contextWindow(lines []string, idx, delta int) []string {
	if delta == 0 {
		return nil
	}
	if delta < 0 {
		start := idx + delta
		if start < 0 {
			start = 0
		}
		if start >= idx {
			return nil
		}
		return append([]string{}, lines[start:idx]...)
	}
	end := idx + 1 + delta
	if end > len(lines) {
		end = len(lines)
	}
	if idx+1 >= end {
		return nil
	}
	return append([]string{}, lines[idx+1:end]...)
}

func tailLines(lines []string, n int) []string {
	if len(lines) <= n {
		return append([]string{}, lines...)
	}
	return append([]string{}, lines[len(lines)-n:]...)
}

// collapseSimilar: "a step with many similar failures
// collapses them with an occurrence counter." Failures sharing a
// fingerprint collapse into the first occurrence.
func collapseSimilar(failures []model.Failure) []model.Failure {
	seen := map[string]int{} // fingerprint -> index in out
	var out []model.Failure
	for _, f := range failures {
		if idx, ok := seen[f.Fingerprint]; ok {
			out[idx].Occurrences++
			continue
		}
		f.Occurrences = 1
		seen[f.Fingerprint] = len(out)
		out = append(out, f)
	}
	return out
}

var (
	digitsRe  = regexp.MustCompile(`\d+`)
	pidRe     = regexp.MustCompile(`(?i)\bpid[:=]?\s*\d+\b`)
	tsRe      = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`)
	abspathRe = regexp.MustCompile(`(^|[\s(])(/[^\s:]+|[A-Za-z]:\\[^\s:]+)`)
)

// Fingerprint computes the deterministic identity hash for a failure:
// normalized message + kind + file-path-suffix + pattern-of-line-number
// Normalization strips digits, absolute paths, timestamps and PIDs
// so that equivalent failures across runs collapse to the same key.
func Fingerprint(f model.Failure) string {
	msg := f.Message
	msg = tsRe.ReplaceAllString(msg, "<ts>")
	msg = pidRe.ReplaceAllString(msg, "pid=<n>")
	msg = abspathRe.ReplaceAllString(msg, "$1<path>")
	msg = digitsRe.ReplaceAllString(msg, "<n>")
	msg = strings.TrimSpace(msg)

	fileSuffix := ""
	if f.FilePath != "" {
		parts := strings.Split(strings.ReplaceAll(f.FilePath, "\\", "/"), "/")
		if n := len(parts); n > 0 {
			fileSuffix = parts[n-1]
		}
	}
	lineClass := "noline"
	if f.LineNumber > 0 {
		lineClass = "line"
	}

	key := fmt.Sprintf("%s|%s|%s|%s", string(f.Kind), msg, fileSuffix, lineClass)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// tokenShingles returns the set of 3-word shingles of s, used by
// JaccardSimilarity for textual similarity.
func tokenShingles(s string) map[string]bool {
	tokens := strings.Fields(s)
	shingles := map[string]bool{}
	const k = 3
	if len(tokens) < k {
		if len(tokens) > 0 {
			shingles[strings.Join(tokens, " ")] = true
		}
		return shingles
	}
	for i := 0; i+k <= len(tokens); i++ {
		shingles[strings.Join(tokens[i:i+k], " ")] = true
	}
	return shingles
}

// JaccardSimilarity returns the Jaccard index of the shingle sets of a, b.
func JaccardSimilarity(a, b string) float64 {
	sa, sb := tokenShingles(a), tokenShingles(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for k := range sa {
		if sb[k] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
