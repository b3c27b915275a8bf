package config

import "time"

// Config provides read-only access to application configuration. This
// interface abstracts the configuration source (YAML, ENV, defaults) so
// the domain and service layers never depend on infrastructure details.
type Config interface {
	// Paths
	ProjectRoot() string // root the policy/snapshot/auto-fixer paths are anchored to
	CacheRoot() string   // .ci-helper/cache equivalent: snapshots, response cache, learning ledgers
	UserPatternDir() string
	LearnedPatternPath() string
	UserTemplateDir() string

	// Matching / generation thresholds
	ConfidenceThreshold() float64 // theta, default 0.6
	RiskTolerance() string        // low|medium|high ceiling for auto_applicable
	AutoFixConfidenceThreshold() float64

	// Token/compression defaults
	ModelFamily() string
	DefaultTokenBudget() uint32
	ContextLines() int

	// Snapshot GC
	SnapshotRetention() time.Duration
	SnapshotMaxCount() int

	// Feedback durability
	FeedbackFsyncEvery() int
	FeedbackFsyncPeriod() time.Duration

	// Learning engine
	LearningDecayAlpha() float64
	LearningMinOccurrences() int
	LearningSimilarity() float64

	// Response cache
	CacheMaxBytes() int64
	CacheTTL() time.Duration

	// Policy overrides
	ExtraAllowedCommands() []string

	// Logging
	LogLevel() string

	// Metadata
	ConfigSource() string
	SettingPath() string
}

// AppConfig is the concrete implementation of Config, populated by
// internal/infra/config after merging defaults, a YAML file, and
// environment-variable overrides.
type AppConfig struct {
	projectRoot        string
	cacheRoot          string
	userPatternDir     string
	learnedPatternPath string
	userTemplateDir    string

	confidenceThreshold        float64
	riskTolerance              string
	autoFixConfidenceThreshold float64

	modelFamily        string
	defaultTokenBudget uint32
	contextLines       int

	snapshotRetention time.Duration
	snapshotMaxCount  int

	feedbackFsyncEvery  int
	feedbackFsyncPeriod time.Duration

	learningDecayAlpha     float64
	learningMinOccurrences int
	learningSimilarity     float64

	cacheMaxBytes int64
	cacheTTL      time.Duration

	extraAllowedCommands []string

	logLevel string

	configSource string
	settingPath  string
}

func (c *AppConfig) ProjectRoot() string        { return c.projectRoot }
func (c *AppConfig) CacheRoot() string          { return c.cacheRoot }
func (c *AppConfig) UserPatternDir() string     { return c.userPatternDir }
func (c *AppConfig) LearnedPatternPath() string { return c.learnedPatternPath }
func (c *AppConfig) UserTemplateDir() string    { return c.userTemplateDir }

func (c *AppConfig) ConfidenceThreshold() float64        { return c.confidenceThreshold }
func (c *AppConfig) RiskTolerance() string               { return c.riskTolerance }
func (c *AppConfig) AutoFixConfidenceThreshold() float64 { return c.autoFixConfidenceThreshold }

func (c *AppConfig) ModelFamily() string        { return c.modelFamily }
func (c *AppConfig) DefaultTokenBudget() uint32 { return c.defaultTokenBudget }
func (c *AppConfig) ContextLines() int          { return c.contextLines }

func (c *AppConfig) SnapshotRetention() time.Duration { return c.snapshotRetention }
func (c *AppConfig) SnapshotMaxCount() int            { return c.snapshotMaxCount }

func (c *AppConfig) FeedbackFsyncEvery() int            { return c.feedbackFsyncEvery }
func (c *AppConfig) FeedbackFsyncPeriod() time.Duration { return c.feedbackFsyncPeriod }

func (c *AppConfig) LearningDecayAlpha() float64 { return c.learningDecayAlpha }
func (c *AppConfig) LearningMinOccurrences() int { return c.learningMinOccurrences }
func (c *AppConfig) LearningSimilarity() float64 { return c.learningSimilarity }

func (c *AppConfig) CacheMaxBytes() int64    { return c.cacheMaxBytes }
func (c *AppConfig) CacheTTL() time.Duration { return c.cacheTTL }

func (c *AppConfig) ExtraAllowedCommands() []string { return c.extraAllowedCommands }

func (c *AppConfig) LogLevel() string { return c.logLevel }

func (c *AppConfig) ConfigSource() string { return c.configSource }
func (c *AppConfig) SettingPath() string  { return c.settingPath }

// Params bundles every field NewAppConfig needs; infra/config builds one
// of these after merging defaults, YAML, and ENV.
type Params struct {
	ProjectRoot, CacheRoot, UserPatternDir, LearnedPatternPath, UserTemplateDir string

	ConfidenceThreshold, AutoFixConfidenceThreshold float64
	RiskTolerance                                   string

	ModelFamily        string
	DefaultTokenBudget uint32
	ContextLines       int

	SnapshotRetention time.Duration
	SnapshotMaxCount  int

	FeedbackFsyncEvery  int
	FeedbackFsyncPeriod time.Duration

	LearningDecayAlpha     float64
	LearningMinOccurrences int
	LearningSimilarity     float64

	CacheMaxBytes int64
	CacheTTL      time.Duration

	ExtraAllowedCommands []string

	LogLevel string

	ConfigSource, SettingPath string
}

// NewAppConfig builds an AppConfig from p. Called by the infrastructure
// layer after loading and merging configuration sources.
func NewAppConfig(p Params) *AppConfig {
	return &AppConfig{
		projectRoot:                p.ProjectRoot,
		cacheRoot:                  p.CacheRoot,
		userPatternDir:             p.UserPatternDir,
		learnedPatternPath:         p.LearnedPatternPath,
		userTemplateDir:            p.UserTemplateDir,
		confidenceThreshold:        p.ConfidenceThreshold,
		riskTolerance:              p.RiskTolerance,
		autoFixConfidenceThreshold: p.AutoFixConfidenceThreshold,
		modelFamily:                p.ModelFamily,
		defaultTokenBudget:         p.DefaultTokenBudget,
		contextLines:               p.ContextLines,
		snapshotRetention:          p.SnapshotRetention,
		snapshotMaxCount:           p.SnapshotMaxCount,
		feedbackFsyncEvery:         p.FeedbackFsyncEvery,
		feedbackFsyncPeriod:        p.FeedbackFsyncPeriod,
		learningDecayAlpha:         p.LearningDecayAlpha,
		learningMinOccurrences:     p.LearningMinOccurrences,
		learningSimilarity:         p.LearningSimilarity,
		cacheMaxBytes:              p.CacheMaxBytes,
		cacheTTL:                   p.CacheTTL,
		extraAllowedCommands:       p.ExtraAllowedCommands,
		logLevel:                   p.LogLevel,
		configSource:               p.ConfigSource,
		settingPath:                p.SettingPath,
	}
}
