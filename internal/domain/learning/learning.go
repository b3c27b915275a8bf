// Package learning implements the learning engine: offline
// aggregation of feedback into pattern statistics, and discovery of
// candidate patterns from recurring unknown failures: read a durable
// log, fold it into store state, persist once.
package learning

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
	"github.com/scottlz0310/ci-helper/internal/infra/fsx"
	"github.com/scottlz0310/ci-helper/internal/infra/patternstore"
)

// FeedbackSource is the narrow view of the feedback recorder the engine needs.
type FeedbackSource interface {
	ByPattern() (map[string][]model.UserFeedback, error)
}

// PatternUpdater is the narrow view of the pattern store the engine writes through.
type PatternUpdater interface {
	UpdateStats(id string, mutate func(p *model.Pattern)) error
	UpsertLearned(p *model.Pattern) error
}

// Engine runs against a feedback source and a pattern store,
// with its own applied-feedback ledger and candidate-pattern pending list.
type Engine struct {
	store       PatternUpdater
	feedback    FeedbackSource
	decay       float64
	appliedPath string
	pendingPath string
	log         *logrus.Entry
}

// New returns an Engine with EWMA decay alpha (default 0.2 when <= 0).
func New(store PatternUpdater, feedback FeedbackSource, appliedPath, pendingPath string, alpha float64, log *logrus.Logger) *Engine {
	if alpha <= 0 {
		alpha = 0.2
	}
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		store:       store,
		feedback:    feedback,
		decay:       alpha,
		appliedPath: appliedPath,
		pendingPath: pendingPath,
		log:         log.WithField("component", "learning_engine"),
	}
}

// appliedKey is the (pattern_id, feedback_id) pair the
// idempotency invariant is tracked by.
type appliedKey struct {
	PatternID  string `json:"pattern_id"`
	FeedbackID string `json:"feedback_id"`
}

func (k appliedKey) String() string { return k.PatternID + "\x00" + k.FeedbackID }

// UpdateStatsFromFeedback folds every not-yet-applied feedback entry into
// its pattern's running success_rate via EWMA, and bumps occurrence_count.
// Each (pattern, feedback) pair is applied at most once.
func (e *Engine) UpdateStatsFromFeedback() (int, error) {
	applied, err := e.loadApplied()
	if err != nil {
		return 0, err
	}

	byPattern, err := e.feedback.ByPattern()
	if err != nil {
		return 0, err
	}

	applyCount := 0
	for patternID, entries := range byPattern {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })
		for _, fb := range entries {
			key := appliedKey{PatternID: patternID, FeedbackID: fb.ID}
			if applied[key.String()] {
				continue
			}
			outcome := 0.0
			if fb.Success {
				outcome = 1.0
			}
			err := e.store.UpdateStats(patternID, func(p *model.Pattern) {
				p.SuccessRate = e.decay*outcome + (1-e.decay)*p.SuccessRate
				p.OccurrenceCount++
			})
			if err != nil {
				e.log.WithError(err).WithField("pattern_id", patternID).Warn("failed to apply feedback to pattern stats")
				continue
			}
			applied[key.String()] = true
			applyCount++
		}
	}

	if applyCount > 0 {
		if err := e.persistApplied(applied); err != nil {
			return applyCount, err
		}
	}
	return applyCount, nil
}

func (e *Engine) loadApplied() (map[string]bool, error) {
	out := map[string]bool{}
	if e.appliedPath == "" {
		return out, nil
	}
	data, err := os.ReadFile(e.appliedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to read applied-feedback ledger", err)
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		e.log.WithError(err).Warn("applied-feedback ledger is corrupt, starting fresh")
		return out, nil
	}
	for _, k := range keys {
		out[k] = true
	}
	return out, nil
}

func (e *Engine) persistApplied(applied map[string]bool) error {
	if e.appliedPath == "" {
		return nil
	}
	keys := make([]string, 0, len(applied))
	for k := range applied {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to marshal applied-feedback ledger", err)
	}
	if err := fsx.AtomicWrite(e.appliedPath, b, 0o644); err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to persist applied-feedback ledger", err)
	}
	return nil
}

// Candidate is a discovered-but-unpromoted learned pattern, keyed by its
// own id distinct from the eventual Pattern.ID (assigned at promotion).
type Candidate struct {
	ID             string         `json:"id"`
	Pattern        *model.Pattern `json:"pattern"`
	GroupSize      int            `json:"group_size"`
	SampleMessages []string       `json:"sample_messages"`
	DiscoveredAt   time.Time      `json:"discovered_at"`
}

// DiscoverCandidates groups unknown failures by fingerprint and by
// Jaccard shingle similarity, and synthesizes a candidate Pattern for
// every group whose size reaches minOccurrences. Discovered candidates
// are appended to the pending list and returned.
func (e *Engine) DiscoverCandidates(failures []model.Failure, minOccurrences int, similarity float64) ([]Candidate, error) {
	groups := groupBySimilarity(failures, similarity)

	pending, err := e.loadPending()
	if err != nil {
		return nil, err
	}

	var fresh []Candidate
	for _, g := range groups {
		if len(g) < minOccurrences {
			continue
		}
		cand := synthesizeCandidate(g)
		pending = append(pending, cand)
		fresh = append(fresh, cand)
	}
	if len(fresh) > 0 {
		if err := e.persistPending(pending); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// PendingCandidates returns every candidate awaiting operator review.
func (e *Engine) PendingCandidates() ([]Candidate, error) {
	return e.loadPending()
}

// PromoteCandidate moves a pending candidate into the pattern store as an
// enabled learned pattern, and removes it from the pending list.
func (e *Engine) PromoteCandidate(id string) error {
	pending, err := e.loadPending()
	if err != nil {
		return err
	}
	idx := -1
	for i, c := range pending {
		if c.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return ciherr.New(ciherr.KindValidation, fmt.Sprintf("candidate %q not found in pending list", id))
	}
	cand := pending[idx]
	cand.Pattern.Enabled = true
	cand.Pattern.CreatedAt = time.Now().UTC()
	cand.Pattern.UpdatedAt = cand.Pattern.CreatedAt
	if err := e.store.UpsertLearned(cand.Pattern); err != nil {
		return err
	}
	pending = append(pending[:idx], pending[idx+1:]...)
	return e.persistPending(pending)
}

func (e *Engine) loadPending() ([]Candidate, error) {
	if e.pendingPath == "" {
		return nil, nil
	}
	data, err := os.ReadFile(e.pendingPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to read pending candidate list", err)
	}
	var out []Candidate
	if err := json.Unmarshal(data, &out); err != nil {
		e.log.WithError(err).Warn("pending candidate list is corrupt, starting fresh")
		return nil, nil
	}
	return out, nil
}

func (e *Engine) persistPending(pending []Candidate) error {
	if e.pendingPath == "" {
		return nil
	}
	b, err := json.MarshalIndent(pending, "", "  ")
	if err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to marshal pending candidate list", err)
	}
	if err := fsx.AtomicWrite(e.pendingPath, b, 0o644); err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to persist pending candidate list", err)
	}
	return nil
}

// groupBySimilarity clusters failures first by exact fingerprint, then
// merges fingerprint groups whose representative messages are Jaccard
// shingle-similar at or above sigma. Every failure handed in counts:
// the unknown-failure log only ever receives pattern-unmatched failures,
// whatever kind the extractor's signal scan assigned them, so no further
// kind filtering happens here.
func groupBySimilarity(failures []model.Failure, sigma float64) [][]model.Failure {
	byFingerprint := map[string][]model.Failure{}
	var order []string
	for _, f := range failures {
		if _, ok := byFingerprint[f.Fingerprint]; !ok {
			order = append(order, f.Fingerprint)
		}
		byFingerprint[f.Fingerprint] = append(byFingerprint[f.Fingerprint], f)
	}

	var groups [][]model.Failure
	merged := make([]bool, len(order))
	for i, fp := range order {
		if merged[i] {
			continue
		}
		group := append([]model.Failure{}, byFingerprint[fp]...)
		for j := i + 1; j < len(order); j++ {
			if merged[j] {
				continue
			}
			if jaccardShingles(group[0].Message, byFingerprint[order[j]][0].Message) >= sigma {
				group = append(group, byFingerprint[order[j]]...)
				merged[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

func jaccardShingles(a, b string) float64 {
	sa, sb := shingles(a), shingles(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter, union := 0, map[string]bool{}
	for s := range sa {
		union[s] = true
		if sb[s] {
			inter++
		}
	}
	for s := range sb {
		union[s] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(inter) / float64(len(union))
}

func shingles(text string) map[string]bool {
	toks := tokenize(text)
	out := map[string]bool{}
	const k = 2
	if len(toks) < k {
		for _, t := range toks {
			out[t] = true
		}
		return out
	}
	for i := 0; i+k <= len(toks); i++ {
		out[strings.Join(toks[i:i+k], " ")] = true
	}
	return out
}

var tokenRe = regexp.MustCompile(`[A-Za-z][A-Za-z0-9_]{2,}`)

func tokenize(text string) []string {
	matches := tokenRe.FindAllString(strings.ToLower(text), -1)
	return matches
}

func synthesizeCandidate(group []model.Failure) Candidate {
	messages := make([]string, 0, len(group))
	for _, f := range group {
		messages = append(messages, f.Message)
	}
	frame := longestCommonSubstring(messages)
	if len(strings.TrimSpace(frame)) < 4 {
		frame = messages[0]
	}
	keywords := topKeywords(messages, 5)

	sample := messages
	if len(sample) > 3 {
		sample = sample[:3]
	}

	return Candidate{
		ID: uuid.NewString(),
		Pattern: &model.Pattern{
			ID:               "learned_" + uuid.NewString(),
			Name:             "discovered: " + truncate(frame, 48),
			Category:         model.CategoryUnknown,
			RegexSource:      []string{generalizeFrame(frame)},
			RequiredKeywords: keywords,
			BaseConfidence:   0.5,
			SuccessRate:      0,
			OccurrenceCount:  len(group),
			Source:           model.SourceLearned,
			Enabled:          false,
		},
		GroupSize:      len(group),
		SampleMessages: sample,
		DiscoveredAt:   time.Now().UTC(),
	}
}

var digitRunRe = regexp.MustCompile(`\d+`)

// generalizeFrame turns a literal message frame into a recognizer regex:
// meta characters are escaped, then digit runs are widened to \d+ so
// counters, ports, and ids do not pin the pattern to one occurrence.
func generalizeFrame(frame string) string {
	quoted := regexp.QuoteMeta(frame)
	return digitRunRe.ReplaceAllString(quoted, `\d+`)
}

// longestCommonSubstring finds the longest substring common to every
// message in the set, by repeatedly narrowing against each successive
// message's longest-common-substring with the running frame.
func longestCommonSubstring(messages []string) string {
	if len(messages) == 0 {
		return ""
	}
	frame := messages[0]
	for _, m := range messages[1:] {
		frame = lcsPair(frame, m)
		if frame == "" {
			break
		}
	}
	return frame
}

func lcsPair(a, b string) string {
	if a == "" || b == "" {
		return ""
	}
	best, bestLen := "", 0
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
				if dp[i][j] > bestLen {
					bestLen = dp[i][j]
					best = a[i-bestLen : i]
				}
			}
		}
	}
	return best
}

func topKeywords(messages []string, k int) []string {
	freq := map[string]int{}
	for _, m := range messages {
		for _, t := range tokenize(m) {
			freq[t]++
		}
	}
	type pair struct {
		token string
		count int
	}
	pairs := make([]pair, 0, len(freq))
	for t, c := range freq {
		pairs = append(pairs, pair{t, c})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].token < pairs[j].token
	})
	if len(pairs) > k {
		pairs = pairs[:k]
	}
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.token)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ensure patternstore.Store satisfies PatternUpdater at compile time.
var _ PatternUpdater = (*patternstore.Store)(nil)
