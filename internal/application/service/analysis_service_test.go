package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/scottlz0310/ci-helper/internal/app/config"
	"github.com/scottlz0310/ci-helper/internal/domain/autofix"
	"github.com/scottlz0310/ci-helper/internal/domain/fixgen"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
	"github.com/scottlz0310/ci-helper/internal/domain/sanitize"
	"github.com/scottlz0310/ci-helper/internal/infra/cachestore"
	"github.com/scottlz0310/ci-helper/internal/infra/patternstore"
	"github.com/scottlz0310/ci-helper/internal/infra/templatestore"
)

func testConfig(t *testing.T, root string) appconfig.Config {
	t.Helper()
	return appconfig.NewAppConfig(appconfig.Params{
		ProjectRoot:                root,
		CacheRoot:                  filepath.Join(root, ".ci-helper", "cache"),
		ConfidenceThreshold:        0.6,
		RiskTolerance:              "medium",
		AutoFixConfidenceThreshold: 0.7,
		ModelFamily:                "claude",
		DefaultTokenBudget:         8000,
		ContextLines:               5,
		SnapshotRetention:          7 * 24 * time.Hour,
		SnapshotMaxCount:           50,
		CacheMaxBytes:              1 << 20,
		CacheTTL:                   24 * time.Hour,
	})
}

func newTestService(t *testing.T, cache *cachestore.Cache) (*AnalysisService, *patternstore.Store) {
	t.Helper()
	root := t.TempDir()
	cfg := testConfig(t, root)

	patterns := patternstore.New("", filepath.Join(root, "learned.json"), nil)
	require.NoError(t, patterns.Load())

	policy := autofix.NewPolicy(root)
	templates := templatestore.New("", policy, func() map[string]bool {
		return patterns.Snapshot().IDs()
	}, nil)
	require.NoError(t, templates.Load())

	generator := fixgen.New(policy, fixgen.DefaultThresholds)
	svc := NewAnalysisService(cfg, sanitize.New(), patterns, templates, generator, cache, nil)
	return svc, patterns
}

const dockerLog = `##[group]Run docker build .
docker build .
##[endgroup]
permission denied while trying to connect to the Docker daemon socket at unix:///var/run/docker.sock
##[error]Process completed with exit code 1.
`

func TestAnalyze_DockerPermissionScenario(t *testing.T) {
	svc, _ := newTestService(t, nil)

	res, err := svc.Analyze(context.Background(), dockerLog, "ci")
	require.NoError(t, err)
	require.NotNil(t, res.Execution)
	assert.False(t, res.Execution.Success)

	var match *model.PatternMatch
	for i := range res.Matches {
		if res.Matches[i].Pattern.ID == "docker_permission_denied" {
			match = &res.Matches[i]
			break
		}
	}
	require.NotNil(t, match, "docker_permission_denied should match")
	assert.GreaterOrEqual(t, match.Confidence, 0.85)

	require.NotEmpty(t, res.Suggestions)
	first := res.Suggestions[0]
	require.NotEmpty(t, first.Steps)
	step := first.Steps[0]
	assert.Equal(t, model.StepFileEdit, step.Kind)
	assert.Equal(t, ".actrc", step.TargetPath)
	assert.Equal(t, model.EditAppend, step.EditMode)
	assert.Equal(t, "--privileged\n", step.Payload)
	assert.True(t, first.AutoApplicable)
}

func TestAnalyze_PythonModuleNotFoundScenario(t *testing.T) {
	svc, _ := newTestService(t, nil)

	log := "##[group]Run pytest\npytest\n##[endgroup]\n" +
		"ModuleNotFoundError: No module named 'requests'\n" +
		"##[error]Process completed with exit code 1.\n"

	res, err := svc.Analyze(context.Background(), log, "ci")
	require.NoError(t, err)

	var match *model.PatternMatch
	for i := range res.Matches {
		if res.Matches[i].Pattern.ID == "python_module_not_found" {
			match = &res.Matches[i]
			break
		}
	}
	require.NotNil(t, match)
	assert.GreaterOrEqual(t, match.Confidence, 0.80)
	assert.Equal(t, "requests", match.Captures["module"])

	require.NotEmpty(t, res.Suggestions)
	var cmds [][]string
	for _, s := range res.Suggestions[0].Steps {
		if s.Kind == model.StepCommand {
			cmds = append(cmds, s.Argv)
		}
	}
	require.Len(t, cmds, 2)
	assert.Equal(t, []string{"pip", "install", "requests"}, cmds[0])
	assert.Equal(t, []string{"pytest", "-q"}, cmds[1])
}

func TestAnalyze_CacheMissesAcrossVersionBump(t *testing.T) {
	cachePath := filepath.Join(t.TempDir(), "cache.db")
	cache, err := cachestore.Open(cachePath, 1<<20, time.Hour)
	require.NoError(t, err)
	defer cache.Close()

	svc, patterns := newTestService(t, cache)

	r1, err := svc.Analyze(context.Background(), dockerLog, "ci")
	require.NoError(t, err)
	assert.False(t, r1.FromCache)

	r2, err := svc.Analyze(context.Background(), dockerLog, "ci")
	require.NoError(t, err)
	assert.True(t, r2.FromCache)

	// Bump the pattern store version: the same log must miss and re-analyze.
	require.NoError(t, patterns.UpsertLearned(&model.Pattern{
		ID: "learned_widget", Name: "widget", Category: model.CategoryUnknown,
		RegexSource: []string{`widget not found`}, BaseConfidence: 0.5,
		OccurrenceCount: 5, Source: model.SourceLearned, Enabled: true,
	}))

	r3, err := svc.Analyze(context.Background(), dockerLog, "ci")
	require.NoError(t, err)
	assert.False(t, r3.FromCache)
}

func TestAnalyze_EmptyLogYieldsSuccess(t *testing.T) {
	svc, _ := newTestService(t, nil)

	res, err := svc.Analyze(context.Background(), "all good\n", "ci")
	require.NoError(t, err)
	require.NotNil(t, res.Execution)
	assert.True(t, res.Execution.Success)
	assert.Empty(t, res.Matches)
	assert.Empty(t, res.Suggestions)
}
