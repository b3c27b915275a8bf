// Package config loads AppConfig from defaults, an optional YAML file,
// and environment-variable overrides, in that precedence order — the
// YAML file + ENV layering with pointer fields for optional keys,
// ported to YAML via gopkg.in/yaml.v3 per the project's config format.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	appconfig "github.com/scottlz0310/ci-helper/internal/app/config"
)

// RawSettings mirrors config.yml. Pointer fields distinguish "absent"
// from "explicitly zero" so defaults only fill genuinely unset keys.
type RawSettings struct {
	ProjectRoot        *string `yaml:"project_root"`
	CacheRoot          *string `yaml:"cache_root"`
	UserPatternDir     *string `yaml:"user_pattern_dir"`
	LearnedPatternPath *string `yaml:"learned_pattern_path"`
	UserTemplateDir    *string `yaml:"user_template_dir"`

	ConfidenceThreshold        *float64 `yaml:"confidence_threshold"`
	RiskTolerance              *string  `yaml:"risk_tolerance"`
	AutoFixConfidenceThreshold *float64 `yaml:"auto_fix_confidence_threshold"`

	ModelFamily        *string `yaml:"model_family"`
	DefaultTokenBudget *int    `yaml:"default_token_budget"`
	ContextLines       *int    `yaml:"context_lines"`

	SnapshotRetentionHours *int `yaml:"snapshot_retention_hours"`
	SnapshotMaxCount       *int `yaml:"snapshot_max_count"`

	FeedbackFsyncEvery        *int `yaml:"feedback_fsync_every"`
	FeedbackFsyncPeriodSecond *int `yaml:"feedback_fsync_period_seconds"`

	LearningDecayAlpha     *float64 `yaml:"learning_decay_alpha"`
	LearningMinOccurrences *int     `yaml:"learning_min_occurrences"`
	LearningSimilarity     *float64 `yaml:"learning_similarity"`

	CacheMaxBytes *int64 `yaml:"cache_max_bytes"`
	CacheTTLHours *int   `yaml:"cache_ttl_hours"`

	ExtraAllowedCommands []string `yaml:"extra_allowed_commands"`

	LogLevel *string `yaml:"log_level"`
}

// envOverrides are applied after file load, keyed by the RawSettings
// field they set; an env var is only consulted if present (non-empty).
func applyEnvOverrides(s *RawSettings) {
	if v := os.Getenv("CIHELPER_PROJECT_ROOT"); v != "" {
		s.ProjectRoot = &v
	}
	if v := os.Getenv("CIHELPER_CACHE_ROOT"); v != "" {
		s.CacheRoot = &v
	}
	if v := os.Getenv("CIHELPER_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.ConfidenceThreshold = &f
		}
	}
	if v := os.Getenv("CIHELPER_RISK_TOLERANCE"); v != "" {
		s.RiskTolerance = &v
	}
	if v := os.Getenv("CIHELPER_AUTO_FIX_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.AutoFixConfidenceThreshold = &f
		}
	}
	if v := os.Getenv("CIHELPER_MODEL_FAMILY"); v != "" {
		s.ModelFamily = &v
	}
	if v := os.Getenv("CIHELPER_LOG_LEVEL"); v != "" {
		s.LogLevel = &v
	}
	if v := os.Getenv("CIHELPER_EXTRA_ALLOWED_COMMANDS"); v != "" {
		s.ExtraAllowedCommands = strings.Split(v, ",")
	}
}

func applyDefaults(s *RawSettings) {
	strDefault := func(p **string, v string) {
		if *p == nil {
			*p = &v
		}
	}
	intDefault := func(p **int, v int) {
		if *p == nil {
			*p = &v
		}
	}
	floatDefault := func(p **float64, v float64) {
		if *p == nil {
			*p = &v
		}
	}

	strDefault(&s.ProjectRoot, ".")
	strDefault(&s.CacheRoot, ".ci-helper/cache")
	strDefault(&s.UserPatternDir, ".ci-helper/patterns")
	strDefault(&s.LearnedPatternPath, ".ci-helper/cache/learned_patterns.json")
	strDefault(&s.UserTemplateDir, ".ci-helper/templates")

	floatDefault(&s.ConfidenceThreshold, 0.6)
	strDefault(&s.RiskTolerance, "medium")
	floatDefault(&s.AutoFixConfidenceThreshold, 0.7)

	strDefault(&s.ModelFamily, "gpt")
	intDefault(&s.DefaultTokenBudget, 4000)
	intDefault(&s.ContextLines, 5)

	intDefault(&s.SnapshotRetentionHours, 24*7)
	intDefault(&s.SnapshotMaxCount, 20)

	intDefault(&s.FeedbackFsyncEvery, 20)
	intDefault(&s.FeedbackFsyncPeriodSecond, 5)

	floatDefault(&s.LearningDecayAlpha, 0.2)
	intDefault(&s.LearningMinOccurrences, 3)
	floatDefault(&s.LearningSimilarity, 0.5)

	if s.CacheMaxBytes == nil {
		v := int64(100 * 1024 * 1024)
		s.CacheMaxBytes = &v
	}
	intDefault(&s.CacheTTLHours, 24)

	strDefault(&s.LogLevel, "info")
}

// Load reads baseDir/config.yml if present, applies ENV overrides, then
// fills remaining defaults, and returns an AppConfig. Precedence:
// defaults < file < environment.
func Load(baseDir string) (*appconfig.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	yamlPath := filepath.Join(baseDir, "config.yml")
	if data, err := os.ReadFile(yamlPath); err == nil {
		if err := yaml.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", yamlPath, err)
		}
		configSource = "yaml"
		settingPath = yamlPath
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", yamlPath, err)
	}

	applyEnvOverrides(settings)
	if settingPath == "" && envTouched(settings) {
		configSource = "env"
	}
	applyDefaults(settings)

	return appconfig.NewAppConfig(appconfig.Params{
		ProjectRoot:                *settings.ProjectRoot,
		CacheRoot:                  *settings.CacheRoot,
		UserPatternDir:             *settings.UserPatternDir,
		LearnedPatternPath:         *settings.LearnedPatternPath,
		UserTemplateDir:            *settings.UserTemplateDir,
		ConfidenceThreshold:        *settings.ConfidenceThreshold,
		RiskTolerance:              *settings.RiskTolerance,
		AutoFixConfidenceThreshold: *settings.AutoFixConfidenceThreshold,
		ModelFamily:                *settings.ModelFamily,
		DefaultTokenBudget:         uint32(*settings.DefaultTokenBudget),
		ContextLines:               *settings.ContextLines,
		SnapshotRetention:          time.Duration(*settings.SnapshotRetentionHours) * time.Hour,
		SnapshotMaxCount:           *settings.SnapshotMaxCount,
		FeedbackFsyncEvery:         *settings.FeedbackFsyncEvery,
		FeedbackFsyncPeriod:        time.Duration(*settings.FeedbackFsyncPeriodSecond) * time.Second,
		LearningDecayAlpha:         *settings.LearningDecayAlpha,
		LearningMinOccurrences:     *settings.LearningMinOccurrences,
		LearningSimilarity:         *settings.LearningSimilarity,
		CacheMaxBytes:              *settings.CacheMaxBytes,
		CacheTTL:                   time.Duration(*settings.CacheTTLHours) * time.Hour,
		ExtraAllowedCommands:       settings.ExtraAllowedCommands,
		LogLevel:                   *settings.LogLevel,
		ConfigSource:               configSource,
		SettingPath:                settingPath,
	}), nil
}

func envTouched(s *RawSettings) bool {
	return s.ProjectRoot != nil || s.CacheRoot != nil || s.ConfidenceThreshold != nil ||
		s.RiskTolerance != nil || s.AutoFixConfidenceThreshold != nil || s.ModelFamily != nil ||
		s.LogLevel != nil || len(s.ExtraAllowedCommands) > 0
}
