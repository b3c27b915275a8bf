// Package compress implements the log compressor: it reduces a log
// blob to a target token budget while always preserving every
// failure-signal line.
package compress

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/scottlz0310/ci-helper/internal/domain/tokencount"
)

// priority orders regions for greedy retention: error > warning > info.
type priority int

const (
	priorityInfo priority = iota
	priorityWarning
	priorityError
)

// signalRegexes flag lines that must never be elided.
var signalRegexes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\berror\b`),
	regexp.MustCompile(`(?i)\bfail(ed|ure)?\b`),
	regexp.MustCompile(`(?i)\bexception\b`),
	regexp.MustCompile(`(?i)\btraceback\b`),
	regexp.MustCompile(`(?i)\bpanic:`),
	regexp.MustCompile(`(?i)\bassert`),
	regexp.MustCompile(`(?i)\btimed?[\s-]?out\b`),
	regexp.MustCompile(`(?i)\bpermission denied\b`),
	regexp.MustCompile(`(?i)\bnot found\b`),
}

var warningRegex = regexp.MustCompile(`(?i)\bwarn(ing)?\b`)

// contextLines is the context window kept around a signal line.
const contextLines = 5

// Result is the compressor's output.
type Result struct {
	Text      string
	Tokens    uint32
	Truncated bool
}

// region is a contiguous run of lines assigned one priority.
type region struct {
	lines    []string
	prio     priority
	hasError bool // contains at least one signal line; never elided
}

// Compressor reduces log text to a token budget.
type Compressor struct {
	counter *tokencount.Counter
}

// New returns a Compressor backed by the given token counter.
func New(counter *tokencount.Counter) *Compressor {
	return &Compressor{counter: counter}
}

// Compress reduces text to at most budget tokens for family, preserving
// every failure-signal line. If the error regions alone exceed budget, the
// result is truncated and Result.Truncated is true.
func (c *Compressor) Compress(text string, budget uint32, family tokencount.Family) (Result, error) {
	if budget == 0 {
		return Result{}, fmt.Errorf("compress: budget must be > 0")
	}
	lines := splitLines(text)
	lines = dedupeRuns(lines)
	regions := classifyRegions(lines)

	// Greedily keep regions in original order, highest priority first
	// when we must drop, but never reorder while still under budget.
	kept := make([]bool, len(regions))
	order := rankByPriorityThenPosition(regions)

	current := joinRegions(regions, kept)
	tokens, err := c.counter.Count(current, family)
	if err != nil {
		return Result{}, err
	}

	for _, idx := range order {
		if kept[idx] {
			continue
		}
		candidate := withRegion(regions, kept, idx)
		candidateText := joinRegions(regions, candidate)
		candidateTokens, err := c.counter.Count(candidateText, family)
		if err != nil {
			return Result{}, err
		}
		if candidateTokens <= budget || regions[idx].hasError {
			kept = candidate
			current = candidateText
			tokens = candidateTokens
			continue
		}
		// Region would overflow and carries no must-keep signal: elide it
		// with a marker instead of including it whole.
		kept[idx] = false
	}

	if tokens <= budget {
		return finalize(regions, kept, budget, c.counter, family)
	}

	// Even with non-error regions elided we're over budget: truncate
	// error regions from the middle, keeping head and tail.
	return truncateErrorRegions(regions, budget, c.counter, family)
}

func finalize(regions []region, kept []bool, budget uint32, counter *tokencount.Counter, family tokencount.Family) (Result, error) {
	var b strings.Builder
	for i, r := range regions {
		if kept[i] {
			b.WriteString(strings.Join(r.lines, "\n"))
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "[… %d lines omitted …]\n", len(r.lines))
		}
	}
	text := strings.TrimRight(b.String(), "\n")
	tokens, err := counter.Count(text, family)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: text, Tokens: tokens, Truncated: tokens > budget}, nil
}

// truncateErrorRegions is the fallback: even the must-keep
// error regions exceed budget, so every region is rendered but error
// regions are truncated from the middle (head+tail kept) to fit.
func truncateErrorRegions(regions []region, budget uint32, counter *tokencount.Counter, family tokencount.Family) (Result, error) {
	var parts []string
	for _, r := range regions {
		if r.hasError {
			parts = append(parts, strings.Join(r.lines, "\n"))
		} else {
			parts = append(parts, fmt.Sprintf("[… %d lines omitted …]", len(r.lines)))
		}
	}
	text := strings.Join(parts, "\n")
	tokens, err := counter.Count(text, family)
	if err != nil {
		return Result{}, err
	}
	if tokens <= budget {
		return Result{Text: text, Tokens: tokens, Truncated: false}, nil
	}

	// Binary-search-free middle truncation: shrink proportionally to the
	// overage, keeping head and tail of the combined error text.
	target := int(float64(len(text)) * float64(budget) / float64(tokens))
	if target < 0 {
		target = 0
	}
	if target >= len(text) {
		target = len(text) - 1
	}
	head := target / 2
	tail := target - head
	cutMarker := "\n[… cut …]\n"
	truncated := text
	if len(text) > target && target > len(cutMarker) {
		truncated = text[:head] + cutMarker + text[len(text)-tail:]
	}
	tokens, err = counter.Count(truncated, family)
	if err != nil {
		return Result{}, err
	}
	return Result{Text: truncated, Tokens: tokens, Truncated: true}, nil
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// dedupeRuns collapses a run of k identical
// consecutive lines into the line plus a "[repeated k×]" marker.
func dedupeRuns(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}
	out := make([]string, 0, len(lines))
	i := 0
	for i < len(lines) {
		j := i + 1
		for j < len(lines) && lines[j] == lines[i] {
			j++
		}
		run := j - i
		out = append(out, lines[i])
		if run > 1 {
			out = append(out, fmt.Sprintf("[repeated %d×]", run))
		}
		i = j
	}
	return out
}

// classifyRegions groups contiguous
// lines of the same priority, expanding error lines by contextLines on
// each side.
func classifyRegions(lines []string) []region {
	if len(lines) == 0 {
		return nil
	}
	prios := make([]priority, len(lines))
	for i, l := range lines {
		prios[i] = classifyLine(l)
	}
	// Expand error priority into surrounding context lines.
	expanded := append([]priority{}, prios...)
	for i, p := range prios {
		if p != priorityError {
			continue
		}
		for d := 1; d <= contextLines; d++ {
			if i-d >= 0 && expanded[i-d] < priorityError {
				expanded[i-d] = priorityError
			}
			if i+d < len(expanded) && expanded[i+d] < priorityError {
				expanded[i+d] = priorityError
			}
		}
	}

	var regions []region
	i := 0
	for i < len(lines) {
		j := i + 1
		for j < len(lines) && expanded[j] == expanded[i] {
			j++
		}
		r := region{lines: lines[i:j], prio: expanded[i]}
		for _, l := range lines[i:j] {
			if classifyLine(l) == priorityError {
				r.hasError = true
				break
			}
		}
		regions = append(regions, r)
		i = j
	}
	return regions
}

func classifyLine(l string) priority {
	for _, re := range signalRegexes {
		if re.MatchString(l) {
			return priorityError
		}
	}
	if warningRegex.MatchString(l) {
		return priorityWarning
	}
	return priorityInfo
}

// rankByPriorityThenPosition returns region indices ordered so that higher
// priority regions, and earlier regions within a priority, are considered
// for retention first.
func rankByPriorityThenPosition(regions []region) []int {
	idx := make([]int, len(regions))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := regions[idx[a]], regions[idx[b]]
		if ra.hasError != rb.hasError {
			return ra.hasError
		}
		return ra.prio > rb.prio
	})
	return idx
}

func joinRegions(regions []region, kept []bool) string {
	var b strings.Builder
	for i, r := range regions {
		if !kept[i] {
			continue
		}
		b.WriteString(strings.Join(r.lines, "\n"))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func withRegion(regions []region, kept []bool, idx int) []bool {
	out := append([]bool{}, kept...)
	out[idx] = true
	return out
}
