package cli

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	appconfig "github.com/scottlz0310/ci-helper/internal/app/config"
	"github.com/scottlz0310/ci-helper/internal/application/service"
	"github.com/scottlz0310/ci-helper/internal/domain/autofix"
	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
	"github.com/scottlz0310/ci-helper/internal/domain/fixgen"
	"github.com/scottlz0310/ci-helper/internal/domain/learning"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
	"github.com/scottlz0310/ci-helper/internal/domain/sanitize"
	"github.com/scottlz0310/ci-helper/internal/infra/cachestore"
	"github.com/scottlz0310/ci-helper/internal/infra/feedbacklog"
	"github.com/scottlz0310/ci-helper/internal/infra/fsx"
	"github.com/scottlz0310/ci-helper/internal/infra/patternstore"
	"github.com/scottlz0310/ci-helper/internal/infra/snapshotstore"
	"github.com/scottlz0310/ci-helper/internal/infra/templatestore"
	"github.com/scottlz0310/ci-helper/internal/infra/unknownlog"
)

// container wires the stores and services once per process, after
// configuration is loaded. Commands hold it through their closure;
// nothing is registered via package-level side effects.
type container struct {
	cfg appconfig.Config
	log *logrus.Logger

	patterns  *patternstore.Store
	templates *templatestore.Store
	policy    *autofix.Policy
	snapshots *snapshotstore.Manager
	cache     *cachestore.Cache
	feedback  *feedbacklog.Recorder
	unknown   *unknownlog.Recorder

	analysis *service.AnalysisService
	fix      *service.FixService
	learning *learning.Engine
}

func newContainer(cfg appconfig.Config, log *logrus.Logger) (*container, error) {
	c := &container{cfg: cfg, log: log}

	c.patterns = patternstore.New(cfg.UserPatternDir(), cfg.LearnedPatternPath(), log)
	if err := c.patterns.Load(); err != nil {
		return nil, err
	}

	c.policy = autofix.NewPolicy(cfg.ProjectRoot())
	for _, cmd := range cfg.ExtraAllowedCommands() {
		c.policy.AllowList[cmd] = true
	}

	c.templates = templatestore.New(cfg.UserTemplateDir(), c.policy, func() map[string]bool {
		return c.patterns.Snapshot().IDs()
	}, log)
	if err := c.templates.Load(); err != nil {
		return nil, err
	}

	fs := afero.NewOsFs()
	c.snapshots = snapshotstore.New(fs, cfg.CacheRoot())

	if err := os.MkdirAll(cfg.CacheRoot(), 0o700); err != nil {
		return nil, ciherr.Wrap(ciherr.KindIO, "failed to create cache root", err).
			WithRemediation("check cache_root in config.yml")
	}

	cache, err := cachestore.Open(filepath.Join(cfg.CacheRoot(), "analysis.db"), cfg.CacheMaxBytes(), cfg.CacheTTL())
	if err != nil {
		// The cache is an optimization: start degraded rather than fail.
		log.WithError(err).Warn("response cache unavailable, continuing without it")
	} else {
		c.cache = cache
	}

	c.feedback, err = feedbacklog.New(filepath.Join(cfg.CacheRoot(), "feedback.jsonl"),
		cfg.FeedbackFsyncEvery(), cfg.FeedbackFsyncPeriod())
	if err != nil {
		return nil, err
	}

	c.unknown, err = unknownlog.New(filepath.Join(cfg.CacheRoot(), "unknown.jsonl"))
	if err != nil {
		return nil, err
	}

	generator := fixgen.New(c.policy, fixgen.Thresholds{
		RiskTolerance:   model.RiskLevel(cfg.RiskTolerance()),
		ConfidenceFloor: cfg.AutoFixConfidenceThreshold(),
	})
	c.analysis = service.NewAnalysisService(cfg, sanitize.New(), c.patterns, c.templates, generator, c.cache, log).
		WithUnknownLog(c.unknown)

	lock := fsx.NewProjectLock(cfg.ProjectRoot())
	fixer := autofix.New(fs, c.snapshots, c.policy, lock)
	c.fix = service.NewFixService(fixer, c.snapshots, nil, log)

	c.learning = learning.New(c.patterns, c.feedback,
		filepath.Join(cfg.CacheRoot(), "applied.json"),
		filepath.Join(cfg.CacheRoot(), "pending.json"),
		cfg.LearningDecayAlpha(), log)

	return c, nil
}

// Close releases every handle the container owns.
func (c *container) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
	if c.feedback != nil {
		c.feedback.Close()
	}
	if c.unknown != nil {
		c.unknown.Close()
	}
}
