// Package templatestore implements the fix template store: it mirrors
// patternstore's load/validate/index/persist shape for FixTemplates, with
// the additional validation that every file step's target path
// normalizes inside the project root and every command step's argv[0] is
// on the allow-list.
package templatestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/scottlz0310/ci-helper/internal/domain/autofix"
	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
	"github.com/scottlz0310/ci-helper/internal/embedpatterns"
	"github.com/sirupsen/logrus"
)

type templateFile struct {
	Templates []rawTemplate `json:"templates"`
}

type rawTemplate struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Description          string    `json:"description"`
	ApplicablePatternIDs []string  `json:"applicable_pattern_ids"`
	Steps                []rawStep `json:"steps"`
	Risk                 string    `json:"risk"`
	EstimatedTime        string    `json:"estimated_time"`
	SuccessRate          float64   `json:"success_rate"`
	Prerequisites        []string  `json:"prerequisites"`
	ValidationSteps      []string  `json:"validation_steps"`
}

type rawStep struct {
	Type                string   `json:"type"`
	TargetPath          string   `json:"target_path,omitempty"`
	EditMode            string   `json:"edit_mode,omitempty"`
	Payload             string   `json:"payload,omitempty"`
	Argv                []string `json:"argv,omitempty"`
	TimeoutSec          int      `json:"timeout_sec,omitempty"`
	ValidationPredicate string   `json:"validation_predicate,omitempty"`
}

// Store is the versioned fix template database.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*model.FixTemplate
	byPattern map[string][]*model.FixTemplate
	version   uint64
	log       *logrus.Entry

	userDir    string
	policy     *autofix.Policy
	patternIDs func() map[string]bool // validates ApplicablePatternIDs exist
}

// New constructs an empty Store. Load must be called before use.
// patternIDs returns the current set of valid pattern ids, consulted at
// load time so a template referencing an unknown pattern id is rejected.
func New(userDir string, policy *autofix.Policy, patternIDs func() map[string]bool, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{
		templates:  map[string]*model.FixTemplate{},
		byPattern:  map[string][]*model.FixTemplate{},
		userDir:    userDir,
		policy:     policy,
		patternIDs: patternIDs,
		log:        log.WithField("component", "template_store"),
	}
}

// Load reads builtin and user templates, validating each. A
// template failing validation is rejected with a diagnostic naming the
// offending step index; it is skipped, not fatal to the load.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := embedpatterns.BuiltinTemplates()
	if err != nil {
		return ciherr.Wrap(ciherr.KindConfig, "failed to read embedded builtin templates", err)
	}
	merged := map[string]*model.FixTemplate{}
	validIDs := map[string]bool{}
	if s.patternIDs != nil {
		validIDs = s.patternIDs()
	}

	builtin := s.parseAndValidate(data, validIDs)
	for _, t := range builtin {
		merged[t.ID] = t
	}

	if s.userDir != "" {
		entries, _ := os.ReadDir(s.userDir)
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			path := filepath.Join(s.userDir, e.Name())
			b, err := os.ReadFile(path)
			if err != nil {
				s.log.WithError(err).WithField("file", path).Warn("skipping unreadable user template file")
				continue
			}
			for _, t := range s.parseAndValidate(b, validIDs) {
				merged[t.ID] = t
			}
		}
	}

	s.templates = merged
	s.rebuildIndexLocked()
	s.version++
	return nil
}

func (s *Store) parseAndValidate(data []byte, validPatternIDs map[string]bool) []*model.FixTemplate {
	var doc templateFile
	if err := json.Unmarshal(data, &doc); err != nil {
		s.log.WithError(err).Warn("skipping corrupt template file")
		return nil
	}
	var out []*model.FixTemplate
	for _, rt := range doc.Templates {
		t, err := s.validate(rt, validPatternIDs)
		if err != nil {
			s.log.WithError(err).WithField("template_id", rt.ID).Warn("rejecting invalid template")
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Store) validate(rt rawTemplate, validPatternIDs map[string]bool) (*model.FixTemplate, error) {
	if rt.ID == "" {
		return nil, fmt.Errorf("template missing id")
	}
	if len(validPatternIDs) > 0 {
		for _, pid := range rt.ApplicablePatternIDs {
			if !validPatternIDs[pid] {
				return nil, fmt.Errorf("template %q references unknown pattern id %q", rt.ID, pid)
			}
		}
	}
	steps := make([]model.FixStep, 0, len(rt.Steps))
	for i, rs := range rt.Steps {
		step, err := s.validateStep(rs)
		if err != nil {
			return nil, fmt.Errorf("template %q step %d: %w", rt.ID, i, err)
		}
		steps = append(steps, step)
	}
	return &model.FixTemplate{
		ID:                   rt.ID,
		Name:                 rt.Name,
		Description:          rt.Description,
		ApplicablePatternIDs: rt.ApplicablePatternIDs,
		Steps:                steps,
		Risk:                 model.RiskLevel(rt.Risk),
		EstimatedTime:        rt.EstimatedTime,
		SuccessRate:          rt.SuccessRate,
		Prerequisites:        rt.Prerequisites,
		ValidationSteps:      rt.ValidationSteps,
	}, nil
}

func (s *Store) validateStep(rs rawStep) (model.FixStep, error) {
	kind := model.FixStepKind(rs.Type)
	step := model.FixStep{
		Kind:                kind,
		TargetPath:          rs.TargetPath,
		EditMode:            model.EditMode(rs.EditMode),
		Payload:             rs.Payload,
		Argv:                rs.Argv,
		TimeoutSec:          rs.TimeoutSec,
		ValidationPredicate: rs.ValidationPredicate,
	}
	switch kind {
	case model.StepFileEdit, model.StepFileCreate, model.StepFileDelete:
		if step.TargetPath == "" {
			return step, fmt.Errorf("file step missing target_path")
		}
		if s.policy != nil {
			if _, err := s.policy.NormalizePath(step.TargetPath); err != nil {
				return step, err
			}
		}
	case model.StepCommand:
		if len(step.Argv) == 0 {
			return step, fmt.Errorf("command step missing argv")
		}
		if s.policy != nil && !s.policy.CommandAllowed(step.Argv) {
			return step, fmt.Errorf("command %q is not on the allow-list", step.Argv[0])
		}
	default:
		return step, fmt.Errorf("unknown step type %q", rs.Type)
	}
	return step, nil
}

func (s *Store) rebuildIndexLocked() {
	s.byPattern = map[string][]*model.FixTemplate{}
	for _, t := range s.templates {
		for _, pid := range t.ApplicablePatternIDs {
			s.byPattern[pid] = append(s.byPattern[pid], t)
		}
	}
}

// Version returns the current store version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// ByPatternID returns the templates applicable to pattern id.
func (s *Store) ByPatternID(id string) []*model.FixTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*model.FixTemplate{}, s.byPattern[id]...)
}

// ByID returns the template with the given id, if any.
func (s *Store) ByID(id string) (*model.FixTemplate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	return t, ok
}
