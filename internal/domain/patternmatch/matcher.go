// Package patternmatch implements the pattern matcher: it matches an
// ExecutionResult's failures against the pattern index and returns a
// deterministically ranked sequence of PatternMatch values.
package patternmatch

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/scottlz0310/ci-helper/internal/domain/model"
)

// ContextGate evaluates a pattern's context requirements against the
// project root and log text. Implementations live in the caller
// (file_exists needs a filesystem; log_contains/not_contains need the raw log).
type ContextGate interface {
	Holds(req model.ContextRequirement, logText string) bool
}

// DefaultGate implements file_exists via the OS filesystem and
// log_contains/not_contains via substring search.
type DefaultGate struct {
	FileExists func(path string) bool
}

func (g DefaultGate) Holds(req model.ContextRequirement, logText string) bool {
	switch req.Kind {
	case model.ReqFileExists:
		if g.FileExists == nil {
			return true
		}
		return g.FileExists(req.Value)
	case model.ReqLogContains:
		return strings.Contains(logText, req.Value)
	case model.ReqNotContains:
		return !strings.Contains(logText, req.Value)
	default:
		return true
	}
}

// Options configures a matcher run.
type Options struct {
	Category   model.PatternCategory // "" = no filter
	Threshold  float64               // θ, default 0.6
	MaxWorkers int                   // <= 0 selects 4 workers
}

// Matcher matches failures against an enabled pattern pool. It never
// mutates the pattern store.
type Matcher struct {
	gate ContextGate
}

// New returns a Matcher using gate for context requirement evaluation.
func New(gate ContextGate) *Matcher {
	if gate == nil {
		gate = DefaultGate{}
	}
	return &Matcher{gate: gate}
}

// candidate is an unsorted (pattern, failure) match before ranking.
type candidate struct {
	failureIdx int
	match      model.PatternMatch
}

// Match matches result's failures against patterns (already enabled+filtered
// by caller's category, via store snapshot) and returns matches ordered by
// the deterministic tie-break chain. ctx cancellation aborts after the current pattern.
func (m *Matcher) Match(ctx context.Context, patterns []*model.Pattern, result *model.ExecutionResult, opts Options) []model.PatternMatch {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = 0.6
	}
	failures := result.Failures()
	if len(failures) == 0 || len(patterns) == 0 {
		return nil
	}

	workers := opts.MaxWorkers
	if workers <= 0 {
		workers = 4
	}

	type job struct{ pattern *model.Pattern }
	jobs := make(chan job, len(patterns))
	for _, p := range patterns {
		if opts.Category != "" && p.Category != opts.Category {
			continue
		}
		jobs <- job{pattern: p}
	}
	close(jobs)

	resultsCh := make(chan []candidate, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var local []candidate
			for j := range jobs {
				select {
				case <-ctx.Done():
					resultsCh <- local
					return
				default:
				}
				for fi, f := range failures {
					if !contextGatesHold(m.gate, j.pattern, result.LogText) {
						break
					}
					mm, ok := matchOne(j.pattern, f, threshold)
					if ok {
						mm.FailureIndex = fi
						local = append(local, candidate{failureIdx: fi, match: mm})
					}
				}
			}
			resultsCh <- local
		}()
	}
	wg.Wait()
	close(resultsCh)

	// Merge is sequential and deterministic regardless of worker interleaving.
	best := map[[2]string]model.PatternMatch{} // key: pattern.id + failure index
	for local := range resultsCh {
		for _, c := range local {
			key := [2]string{c.match.Pattern.ID, itoa(c.failureIdx)}
			if existing, ok := best[key]; !ok || c.match.Confidence > existing.Confidence {
				best[key] = c.match
			}
		}
	}

	out := make([]model.PatternMatch, 0, len(best))
	for _, v := range best {
		out = append(out, v)
	}
	sortMatches(out)
	return out
}

func contextGatesHold(gate ContextGate, p *model.Pattern, logText string) bool {
	for _, req := range p.ContextRequirements {
		if !gate.Holds(req, logText) {
			return false
		}
	}
	return true
}

// matchOne runs the regex/keyword/confidence pipeline for
// one (pattern, failure) pair.
func matchOne(p *model.Pattern, f model.Failure, threshold float64) (model.PatternMatch, bool) {
	if !p.Enabled {
		return model.PatternMatch{}, false
	}
	regexes, err := p.Compiled()
	if err != nil {
		return model.PatternMatch{}, false
	}
	text := f.CombinedText()

	var spans []model.MatchSpan
	captures := map[string]string{}
	var matchedRegexes []string
	var matchedTexts []string
	regexHits := 0
	for i, re := range regexes {
		loc := re.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		regexHits++
		spans = append(spans, model.MatchSpan{Start: loc[0], End: loc[1]})
		matchedRegexes = append(matchedRegexes, p.RegexSource[i])
		matchedTexts = append(matchedTexts, text[loc[0]:loc[1]])
		names := re.SubexpNames()
		for gi, name := range names {
			if name == "" || loc[2*gi] < 0 {
				continue
			}
			captures[name] = text[loc[2*gi]:loc[2*gi+1]]
		}
	}

	keywordHits := 0
	var matchedKeywords []string
	lower := strings.ToLower(text)
	for _, kw := range p.RequiredKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			keywordHits++
			matchedKeywords = append(matchedKeywords, kw)
		}
	}
	requiredKeywordHits := ceilHalf(len(p.RequiredKeywords))
	if len(p.RequiredKeywords) > 0 && keywordHits < requiredKeywordHits {
		return model.PatternMatch{}, false
	}
	if len(regexes) > 0 && regexHits == 0 {
		return model.PatternMatch{}, false
	}

	captureSlots := 0
	for _, re := range regexes {
		for _, n := range re.SubexpNames() {
			if n != "" {
				captureSlots++
			}
		}
	}

	regexRatio := ratioOrOne(regexHits, len(regexes))
	keywordRatio := ratioOrOne(keywordHits, len(p.RequiredKeywords))
	captureRatio := ratioOrOne(len(captures), captureSlots)

	strength := 0.6*regexRatio + 0.3*keywordRatio + 0.1*captureRatio
	strength = lengthAndCaptureShape(strength, matchedTexts, captures)
	strength = clamp01(strength)

	confidence := clamp01(p.BaseConfidence * (0.5 + 0.5*strength) * (0.5 + 0.5*p.SuccessRate))
	if confidence < threshold {
		return model.PatternMatch{}, false
	}

	return model.PatternMatch{
		Pattern:        p,
		FailureIndex:   0, // set by caller via candidate.failureIdx
		Spans:          spans,
		Captures:       captures,
		ContextSnippet: snippet(f),
		MatchStrength:  strength,
		Confidence:     confidence,
		Evidence:       model.Evidence{MatchedRegexes: matchedRegexes, MatchedKeywords: matchedKeywords},
	}, true
}

// lengthAndCaptureShape shapes match strength by hit quality: a long
// matched substring or a filled capture nudges strength up; a very short
// hit nudges it down. This feeds the strength blend's `s` input, it does
// not replace the confidence formula. Lengths are of the text the regex
// actually matched, not of the regex itself.
func lengthAndCaptureShape(strength float64, matchedTexts []string, captures map[string]string) float64 {
	for _, m := range matchedTexts {
		switch {
		case len(m) > 20:
			strength += 0.02
		case len(m) < 5:
			strength -= 0.02
		}
	}
	if len(captures) > 0 {
		strength += 0.02
	}
	return strength
}

func ratioOrOne(hits, total int) float64 {
	if total == 0 {
		return 1.0
	}
	return float64(hits) / float64(total)
}

func ceilHalf(n int) int {
	return int(math.Ceil(float64(n) / 2.0))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func snippet(f model.Failure) string {
	var b strings.Builder
	for _, l := range f.ContextBefore {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString(f.Message)
	for _, l := range f.ContextAfter {
		b.WriteString("\n")
		b.WriteString(l)
	}
	return b.String()
}

// sortMatches applies the total order: confidence desc, success_rate
// desc, occurrence_count desc, pattern id asc, failure index asc. The
// final key makes the order total when one pattern matches several
// failures identically.
func sortMatches(matches []model.PatternMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Pattern.SuccessRate != b.Pattern.SuccessRate {
			return a.Pattern.SuccessRate > b.Pattern.SuccessRate
		}
		if a.Pattern.OccurrenceCount != b.Pattern.OccurrenceCount {
			return a.Pattern.OccurrenceCount > b.Pattern.OccurrenceCount
		}
		if a.Pattern.ID != b.Pattern.ID {
			return a.Pattern.ID < b.Pattern.ID
		}
		return a.FailureIndex < b.FailureIndex
	})
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
