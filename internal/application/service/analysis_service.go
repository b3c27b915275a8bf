package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	appconfig "github.com/scottlz0310/ci-helper/internal/app/config"
	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
	"github.com/scottlz0310/ci-helper/internal/domain/compress"
	"github.com/scottlz0310/ci-helper/internal/domain/extract"
	"github.com/scottlz0310/ci-helper/internal/domain/fixgen"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
	"github.com/scottlz0310/ci-helper/internal/domain/patternmatch"
	"github.com/scottlz0310/ci-helper/internal/domain/sanitize"
	"github.com/scottlz0310/ci-helper/internal/domain/tokencount"
	"github.com/scottlz0310/ci-helper/internal/infra/cachestore"
	"github.com/scottlz0310/ci-helper/internal/infra/patternstore"
	"github.com/scottlz0310/ci-helper/internal/infra/templatestore"
	"github.com/scottlz0310/ci-helper/internal/infra/unknownlog"
)

// DefaultRequestTimeout bounds one analysis request's wall-clock time.
const DefaultRequestTimeout = 300 * time.Second

// AnalysisService runs one analysis request end to end: sanitize,
// compress, extract, match, generate. Requests are stateless with respect
// to each other; the stores are shared read-mostly and the cache
// short-circuits repeated fingerprints.
type AnalysisService struct {
	cfg       appconfig.Config
	sanitizer *sanitize.Sanitizer
	counter   *tokencount.Counter
	comp      *compress.Compressor
	extractor *extract.Extractor
	matcher   *patternmatch.Matcher
	patterns  *patternstore.Store
	templates *templatestore.Store
	generator *fixgen.Generator
	cache     *cachestore.Cache // nil disables caching
	unknown   *unknownlog.Recorder
	log       *logrus.Entry
}

// WithUnknownLog attaches the unknown-failure recorder: failures no
// pattern matched are appended there for later candidate discovery
// Returns the service for call chaining at wiring time.
func (s *AnalysisService) WithUnknownLog(rec *unknownlog.Recorder) *AnalysisService {
	s.unknown = rec
	return s
}

// NewAnalysisService wires the pipeline. cache may be nil to disable the
// response cache (e.g. in tests).
func NewAnalysisService(
	cfg appconfig.Config,
	sanitizer *sanitize.Sanitizer,
	patterns *patternstore.Store,
	templates *templatestore.Store,
	generator *fixgen.Generator,
	cache *cachestore.Cache,
	log *logrus.Logger,
) *AnalysisService {
	counter := tokencount.New()
	if log == nil {
		log = logrus.New()
	}
	root := cfg.ProjectRoot()
	gate := patternmatch.DefaultGate{
		FileExists: func(path string) bool {
			_, err := os.Stat(filepath.Join(root, path))
			return err == nil
		},
	}
	return &AnalysisService{
		cfg:       cfg,
		sanitizer: sanitizer,
		counter:   counter,
		comp:      compress.New(counter),
		extractor: extract.New(),
		matcher:   patternmatch.New(gate),
		patterns:  patterns,
		templates: templates,
		generator: generator,
		cache:     cache,
		log:       log.WithField("component", "analysis_service"),
	}
}

// Analyze processes one raw log into an AnalysisResult. workflowName is
// the origin descriptor's workflow name, used when the log itself does
// not carry one.
func (s *AnalysisService) Analyze(ctx context.Context, rawLog, workflowName string) (*model.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultRequestTimeout)
	defer cancel()

	sanitized := s.sanitizer.Sanitize(rawLog)

	family := tokencount.Family(s.cfg.ModelFamily())
	budget := s.cfg.DefaultTokenBudget()
	compressed, err := s.comp.Compress(sanitized, budget, family)
	if err != nil {
		return nil, ciherr.Wrap(ciherr.KindConfig, "log compression failed", err).
			WithRemediation("check model_family and default_token_budget in config.yml")
	}

	exec := s.extractor.Extract(compressed.Text, workflowName)

	patSnap := s.patterns.Snapshot()
	key := s.cacheKey(exec, patSnap.Version(), s.templates.Version())
	if cached, ok := s.cacheGet(key); ok {
		cached.FromCache = true
		s.log.WithField("key", key).Debug("analysis served from cache")
		return cached, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, ctxError(err)
	}

	enabled := patSnap.AllEnabled("")
	matches := s.matcher.Match(ctx, enabled, exec, patternmatch.Options{
		Threshold: s.cfg.ConfidenceThreshold(),
	})
	if err := ctx.Err(); err != nil {
		return nil, ctxError(err)
	}

	var suggestions []model.FixSuggestion
	for _, m := range matches {
		if m.Pattern == nil {
			continue
		}
		suggestions = append(suggestions, s.generator.Generate(m, s.templates.ByPatternID(m.Pattern.ID))...)
	}
	sortSuggestions(suggestions)

	result := &model.AnalysisResult{
		Execution:   exec,
		Matches:     matches,
		Suggestions: suggestions,
		Truncated:   compressed.Truncated,
	}
	s.recordUnmatched(exec, matches)
	s.cachePut(key, result)
	s.log.WithFields(logrus.Fields{
		"failures":    len(exec.Failures()),
		"matches":     len(matches),
		"suggestions": len(suggestions),
	}).Info("analysis complete")
	return result, nil
}

// recordUnmatched appends every failure no pattern matched to the
// unknown-failure log, keyed by one run id per analysis.
func (s *AnalysisService) recordUnmatched(exec *model.ExecutionResult, matches []model.PatternMatch) {
	if s.unknown == nil {
		return
	}
	matched := map[int]bool{}
	for _, m := range matches {
		matched[m.FailureIndex] = true
	}
	var unmatched []model.Failure
	for i, f := range exec.Failures() {
		if !matched[i] {
			unmatched = append(unmatched, f)
		}
	}
	if len(unmatched) == 0 {
		return
	}
	if err := s.unknown.Record("", unmatched); err != nil {
		s.log.WithError(err).Warn("failed to record unmatched failures")
	}
}

// PatternVersion exposes the pattern store version for report metadata.
func (s *AnalysisService) PatternVersion() uint64 { return s.patterns.Version() }

// TemplateVersion exposes the template store version for report metadata.
func (s *AnalysisService) TemplateVersion() uint64 { return s.templates.Version() }

// cacheKey builds Fingerprint ⊕ pattern-store-version ⊕
// template-store-version. The execution fingerprint is a
// hash over the per-failure fingerprints in tree order.
func (s *AnalysisService) cacheKey(exec *model.ExecutionResult, patternVersion, templateVersion uint64) string {
	h := sha256.New()
	for _, f := range exec.Failures() {
		h.Write([]byte(f.Fingerprint))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s:p%d:t%d", hex.EncodeToString(h.Sum(nil)), patternVersion, templateVersion)
}

func (s *AnalysisService) cacheGet(key string) (*model.AnalysisResult, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(key)
	if err != nil || !ok {
		return nil, false
	}
	var res model.AnalysisResult
	if err := json.Unmarshal(data, &res); err != nil {
		// Corrupt entry: treated as a miss; the store already
		// deleted it on read error, a decode error deletes here.
		_ = s.cache.Invalidate(key)
		return nil, false
	}
	return &res, true
}

func (s *AnalysisService) cachePut(key string, res *model.AnalysisResult) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		s.log.WithError(err).Warn("failed to serialize analysis for caching")
		return
	}
	if err := s.cache.Put(key, data, int64(len(data))); err != nil {
		s.log.WithError(err).Warn("failed to cache analysis")
	}
}

// sortSuggestions applies the suggestion ranking across suggestions from every
// match: confidence desc, template success rate desc, risk asc, id asc.
func sortSuggestions(sugs []model.FixSuggestion) {
	sort.SliceStable(sugs, func(i, j int) bool {
		a, b := sugs[i], sugs[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		ar, br := templateRate(a), templateRate(b)
		if ar != br {
			return ar > br
		}
		if a.Risk.Rank() != b.Risk.Rank() {
			return a.Risk.Rank() < b.Risk.Rank()
		}
		return a.ID < b.ID
	})
}

func templateRate(s model.FixSuggestion) float64 {
	if s.Template == nil {
		return 0
	}
	return s.Template.SuccessRate
}

func ctxError(err error) error {
	if err == context.DeadlineExceeded {
		return ciherr.Wrap(ciherr.KindTimeout, "analysis request exceeded its wall-clock timeout", err)
	}
	return ciherr.Wrap(ciherr.KindCancelled, "analysis request was cancelled", err)
}
