// Package patternstore implements the pattern store: it loads builtin
// patterns from an embedded resource, user patterns from a user
// directory, and learned patterns from a store file; validates, indexes,
// and persists them; and exposes a versioned snapshot view to readers.
package patternstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/scottlz0310/ci-helper/internal/domain/ciherr"
	"github.com/scottlz0310/ci-helper/internal/domain/model"
	"github.com/scottlz0310/ci-helper/internal/embedpatterns"
	"github.com/scottlz0310/ci-helper/internal/infra/fsx"
	"github.com/sirupsen/logrus"
)

// patternFile mirrors the on-disk JSON document.
type patternFile struct {
	Patterns []rawPattern `json:"patterns"`
}

// rawPattern captures every known field plus an Unknown bag for
// forward-compatible round-tripping: unknown keys are preserved on write.
type rawPattern struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	Category            string          `json:"category"`
	Regexes             []string        `json:"regexes"`
	RequiredKeywords    []string        `json:"required_keywords"`
	ContextRequirements []rawContextReq `json:"context_requirements"`
	BaseConfidence      float64         `json:"base_confidence"`
	SuccessRate         float64         `json:"success_rate"`
	OccurrenceCount     int             `json:"occurrence_count"`
	Source              string          `json:"source"`
	CreatedAt           string          `json:"created_at"`
	UpdatedAt           string          `json:"updated_at"`
	Enabled             bool            `json:"enabled"`
	Extra               map[string]any  `json:"-"`
}

type rawContextReq struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// knownPatternKeys lists every JSON key rawPattern decodes explicitly;
// anything else lands in Extra for round-trip preservation.
var knownPatternKeys = map[string]bool{
	"id": true, "name": true, "category": true, "regexes": true,
	"required_keywords": true, "context_requirements": true,
	"base_confidence": true, "success_rate": true, "occurrence_count": true,
	"source": true, "created_at": true, "updated_at": true, "enabled": true,
}

// UnmarshalJSON decodes known fields via the struct tags and stashes any
// unrecognized top-level key in Extra.
func (rp *rawPattern) UnmarshalJSON(data []byte) error {
	type known rawPattern
	var k known
	if err := json.Unmarshal(data, &k); err != nil {
		return err
	}
	*rp = rawPattern(k)

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	extra := map[string]any{}
	for key, raw := range generic {
		if knownPatternKeys[key] {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			extra[key] = v
		}
	}
	if len(extra) > 0 {
		rp.Extra = extra
	}
	return nil
}

// MarshalJSON emits known fields plus any preserved Extra keys.
func (rp rawPattern) MarshalJSON() ([]byte, error) {
	type known rawPattern
	b, err := json.Marshal(known(rp))
	if err != nil {
		return nil, err
	}
	if len(rp.Extra) == 0 {
		return b, nil
	}
	var merged map[string]json.RawMessage
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range rp.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		merged[k] = raw
	}
	return json.Marshal(merged)
}

const isoLayout = time.RFC3339

// Store is the versioned, readers-writer protected pattern database.
type Store struct {
	mu       sync.RWMutex
	patterns map[string]*model.Pattern
	byCat    map[model.PatternCategory][]*model.Pattern
	version  uint64
	log      *logrus.Entry

	userDir     string
	learnedPath string
}

// Snapshot is an immutable view of the store for the lifetime of one request.
type Snapshot struct {
	patterns map[string]*model.Pattern
	byCat    map[model.PatternCategory][]*model.Pattern
	version  uint64
}

// New constructs an empty Store. Load must be called before use.
func New(userDir, learnedPath string, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	return &Store{
		patterns:    map[string]*model.Pattern{},
		byCat:       map[model.PatternCategory][]*model.Pattern{},
		userDir:     userDir,
		learnedPath: learnedPath,
		log:         log.WithField("component", "pattern_store"),
	}
}

// Load reads builtin, user, and learned patterns in precedence order
// user > learned > builtin (later loads win id collisions) and builds the
// category index. A corrupt user or learned file is logged and skipped;
// the store still starts with builtin patterns.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	builtin, err := loadEmbedded()
	if err != nil {
		return ciherr.Wrap(ciherr.KindConfig, "failed to parse embedded builtin patterns", err)
	}
	merged := map[string]*model.Pattern{}
	for _, p := range builtin {
		merged[p.ID] = p
	}

	if s.learnedPath != "" {
		if learned, err := loadFile(s.learnedPath, model.SourceLearned); err == nil {
			for _, p := range learned {
				merged[p.ID] = p
			}
		} else if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("skipping corrupt learned pattern file")
		}
	}

	if s.userDir != "" {
		entries, _ := os.ReadDir(s.userDir)
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			path := filepath.Join(s.userDir, e.Name())
			userPatterns, err := loadFile(path, model.SourceUser)
			if err != nil {
				s.log.WithError(err).WithField("file", path).Warn("skipping corrupt user pattern file")
				continue
			}
			for _, p := range userPatterns {
				merged[p.ID] = p
			}
		}
	}

	for _, p := range merged {
		if _, err := p.Compiled(); err != nil {
			p.Enabled = false
			p.DisabledReason = fmt.Sprintf("regex compile failed: %v", err)
			s.log.WithField("pattern_id", p.ID).WithError(err).Warn("quarantined pattern")
		}
	}

	s.patterns = merged
	s.rebuildIndexLocked()
	s.version++
	return nil
}

func (s *Store) rebuildIndexLocked() {
	s.byCat = map[model.PatternCategory][]*model.Pattern{}
	for _, p := range s.patterns {
		s.byCat[p.Category] = append(s.byCat[p.Category], p)
	}
}

// Snapshot returns an immutable view for the lifetime of one request.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{patterns: s.patterns, byCat: s.byCat, version: s.version}
}

// Version returns the current monotonically increasing store version.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// AllEnabled returns enabled patterns, optionally filtered by category.
func (snap Snapshot) AllEnabled(category model.PatternCategory) []*model.Pattern {
	var pool []*model.Pattern
	if category == "" {
		for _, p := range snap.patterns {
			pool = append(pool, p)
		}
	} else {
		pool = snap.byCat[category]
	}
	var out []*model.Pattern
	for _, p := range pool {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// ByID returns the pattern with the given id, if any.
func (snap Snapshot) ByID(id string) (*model.Pattern, bool) {
	p, ok := snap.patterns[id]
	return p, ok
}

// Version returns the store version this snapshot was taken at.
func (snap Snapshot) Version() uint64 { return snap.version }

// IDs returns every pattern id in the snapshot, enabled or not. The
// template store consults this at load time.
func (snap Snapshot) IDs() map[string]bool {
	out := make(map[string]bool, len(snap.patterns))
	for id := range snap.patterns {
		out[id] = true
	}
	return out
}

// UpsertLearned adds or replaces a learned pattern and persists the
// learned-pattern file. A failed write leaves in-memory state unchanged
// so a failed write leaves in-memory state unchanged.
func (s *Store) UpsertLearned(p *model.Pattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Source = model.SourceLearned
	if p.OccurrenceCount <= 0 {
		return ciherr.New(ciherr.KindValidation, "learned pattern must carry a nonzero occurrence count at creation time")
	}
	if _, err := p.Compiled(); err != nil {
		return ciherr.Wrap(ciherr.KindValidation, "learned pattern regex does not compile", err)
	}

	trial := cloneMap(s.patterns)
	trial[p.ID] = p
	if err := s.persistLearnedLocked(trial); err != nil {
		return err
	}
	s.patterns = trial
	s.rebuildIndexLocked()
	s.version++
	return nil
}

// UpdateStats applies one feedback outcome to a pattern's running success
// rate via the Learning Engine's EWMA (performed by the caller); this
// method only persists the already-updated pattern and bumps the version.
func (s *Store) UpdateStats(id string, mutate func(p *model.Pattern)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.patterns[id]
	if !ok {
		return ciherr.New(ciherr.KindValidation, fmt.Sprintf("pattern %q not found", id))
	}
	updated := p.Clone()
	mutate(updated)
	updated.UpdatedAt = time.Now().UTC()

	trial := cloneMap(s.patterns)
	trial[id] = updated
	if updated.Source == model.SourceLearned {
		if err := s.persistLearnedLocked(trial); err != nil {
			return err
		}
	}
	s.patterns = trial
	s.rebuildIndexLocked()
	s.version++
	return nil
}

func cloneMap(m map[string]*model.Pattern) map[string]*model.Pattern {
	out := make(map[string]*model.Pattern, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) persistLearnedLocked(all map[string]*model.Pattern) error {
	if s.learnedPath == "" {
		return nil
	}
	var doc patternFile
	for _, p := range all {
		if p.Source != model.SourceLearned {
			continue
		}
		doc.Patterns = append(doc.Patterns, toRaw(p))
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to marshal learned patterns", err)
	}
	if err := fsx.AtomicWrite(s.learnedPath, b, 0o644); err != nil {
		return ciherr.Wrap(ciherr.KindIO, "failed to persist learned patterns", err)
	}
	return nil
}

func loadEmbedded() ([]*model.Pattern, error) {
	data, err := embedpatterns.Builtin()
	if err != nil {
		return nil, err
	}
	return parse(data, model.SourceBuiltin)
}

func loadFile(path string, source model.PatternSource) ([]*model.Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data, source)
}

func parse(data []byte, source model.PatternSource) ([]*model.Pattern, error) {
	var doc patternFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make([]*model.Pattern, 0, len(doc.Patterns))
	for _, rp := range doc.Patterns {
		p, err := fromRaw(rp, source)
		if err != nil {
			// A single malformed pattern is skipped, not fatal to the file.
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func fromRaw(rp rawPattern, source model.PatternSource) (*model.Pattern, error) {
	if rp.ID == "" {
		return nil, fmt.Errorf("pattern missing id")
	}
	for _, re := range rp.Regexes {
		if _, err := regexp.Compile(re); err != nil {
			return nil, fmt.Errorf("pattern %q regex %q: %w", rp.ID, re, err)
		}
	}
	created, _ := time.Parse(isoLayout, rp.CreatedAt)
	updated, _ := time.Parse(isoLayout, rp.UpdatedAt)
	reqs := make([]model.ContextRequirement, 0, len(rp.ContextRequirements))
	for _, r := range rp.ContextRequirements {
		reqs = append(reqs, model.ContextRequirement{Kind: model.ContextRequirementKind(r.Kind), Value: r.Value})
	}
	p := &model.Pattern{
		ID:                  rp.ID,
		Name:                rp.Name,
		Category:            model.PatternCategory(rp.Category),
		RegexSource:         rp.Regexes,
		RequiredKeywords:    rp.RequiredKeywords,
		ContextRequirements: reqs,
		BaseConfidence:      rp.BaseConfidence,
		SuccessRate:         rp.SuccessRate,
		OccurrenceCount:     rp.OccurrenceCount,
		Source:              source,
		CreatedAt:           created,
		UpdatedAt:           updated,
		Enabled:             rp.Enabled,
		Unknown:             rp.Extra,
	}
	if _, err := p.Compiled(); err != nil {
		return nil, err
	}
	return p, nil
}

func toRaw(p *model.Pattern) rawPattern {
	reqs := make([]rawContextReq, 0, len(p.ContextRequirements))
	for _, r := range p.ContextRequirements {
		reqs = append(reqs, rawContextReq{Kind: string(r.Kind), Value: r.Value})
	}
	return rawPattern{
		ID:                  p.ID,
		Name:                p.Name,
		Category:            string(p.Category),
		Regexes:             p.RegexSource,
		RequiredKeywords:    p.RequiredKeywords,
		ContextRequirements: reqs,
		BaseConfidence:      p.BaseConfidence,
		SuccessRate:         p.SuccessRate,
		OccurrenceCount:     p.OccurrenceCount,
		Source:              string(p.Source),
		CreatedAt:           p.CreatedAt.UTC().Format(isoLayout),
		UpdatedAt:           p.UpdatedAt.UTC().Format(isoLayout),
		Enabled:             p.Enabled,
		Extra:               p.Unknown,
	}
}
