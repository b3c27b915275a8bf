package model

import (
	"regexp"
	"sync"
	"time"
)

// PatternCategory groups patterns for indexed retrieval and filtering.
type PatternCategory string

const (
	CategoryDependency PatternCategory = "dependency"
	CategoryPermission PatternCategory = "permission"
	CategoryNetwork    PatternCategory = "network"
	CategorySyntax     PatternCategory = "syntax"
	CategoryTimeout    PatternCategory = "timeout"
	CategoryAssertion  PatternCategory = "assertion"
	CategoryUnknown    PatternCategory = "unknown"
)

// PatternSource records where a Pattern came from, used to resolve id
// collisions (user > learned > builtin).
type PatternSource string

const (
	SourceBuiltin PatternSource = "builtin"
	SourceUser    PatternSource = "user"
	SourceLearned PatternSource = "learned"
)

// ContextRequirementKind enumerates the gate kinds a Pattern may declare.
type ContextRequirementKind string

const (
	ReqFileExists  ContextRequirementKind = "file_exists"
	ReqLogContains ContextRequirementKind = "log_contains"
	ReqNotContains ContextRequirementKind = "not_contains"
)

// ContextRequirement is one context gate a Pattern requires to hold before
// it is matched at all.
type ContextRequirement struct {
	Kind  ContextRequirementKind
	Value string
}

// Pattern is a named recognizer: regexes, required keywords, context
// gates, and running confidence statistics.
type Pattern struct {
	ID                  string
	Name                string
	Category            PatternCategory
	RegexSource         []string // raw source, persisted verbatim for round-trip safety
	compiled            []*regexp.Regexp
	compileMu           sync.Mutex // guards the lazy compile of compiled
	RequiredKeywords    []string
	ContextRequirements []ContextRequirement
	BaseConfidence      float64
	SuccessRate         float64
	OccurrenceCount     int
	Source              PatternSource
	CreatedAt           time.Time
	UpdatedAt           time.Time
	Enabled             bool
	DisabledReason      string
	// Unknown holds fields the loader did not recognize, preserved
	// verbatim so that load→save round-trips byte-identically.
	Unknown map[string]any
}

// Compiled returns the pattern's pre-compiled regexes, compiling lazily
// under the per-pattern mutex if not yet compiled. Store snapshots alias
// the same *Pattern across concurrent requests, so the compile-and-cache
// must be serialized.
func (p *Pattern) Compiled() ([]*regexp.Regexp, error) {
	p.compileMu.Lock()
	defer p.compileMu.Unlock()
	if p.compiled != nil && len(p.compiled) == len(p.RegexSource) {
		return p.compiled, nil
	}
	out := make([]*regexp.Regexp, 0, len(p.RegexSource))
	for _, src := range p.RegexSource {
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	p.compiled = out
	return out, nil
}

// Clone returns a copy of the pattern safe to mutate independently of the
// original. The compiled-regex cache and its mutex are not carried over;
// the copy recompiles lazily on first use.
func (p *Pattern) Clone() *Pattern {
	return &Pattern{
		ID:                  p.ID,
		Name:                p.Name,
		Category:            p.Category,
		RegexSource:         append([]string(nil), p.RegexSource...),
		RequiredKeywords:    append([]string(nil), p.RequiredKeywords...),
		ContextRequirements: append([]ContextRequirement(nil), p.ContextRequirements...),
		BaseConfidence:      p.BaseConfidence,
		SuccessRate:         p.SuccessRate,
		OccurrenceCount:     p.OccurrenceCount,
		Source:              p.Source,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
		Enabled:             p.Enabled,
		DisabledReason:      p.DisabledReason,
		Unknown:             p.Unknown,
	}
}

// Evidence records which regexes and keywords contributed to a match.
type Evidence struct {
	MatchedRegexes  []string
	MatchedKeywords []string
}

// MatchSpan is a byte-offset range within the matched log text.
type MatchSpan struct {
	Start int
	End   int
}

// PatternMatch is one pattern matched against one failure.
type PatternMatch struct {
	Pattern        *Pattern
	FailureIndex   int
	Spans          []MatchSpan
	Captures       map[string]string
	ContextSnippet string
	MatchStrength  float64
	Confidence     float64
	Evidence       Evidence
}
