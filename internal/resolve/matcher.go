package resolve

import (
	"github.com/rotisserie/eris"
)

// DefaultMinScore is the lowest fuzzy score accepted as a match.
const DefaultMinScore = 0.5

// ErrIndexNotBuilt is returned when a Matcher is used without a reference index.
var ErrIndexNotBuilt = eris.New("resolve: reference index not built")

// Stage identifies which step of the cascade produced a result.
type Stage string

const (
	StageNone              Stage = "none"
	StageExactRaw          Stage = "exact_raw"
	StageExactNoSuffix     Stage = "exact_no_legal_suffix"
	StageExactNoTrailing   Stage = "exact_no_trailing_generic"
	StageFuzzyTokenOverlap Stage = "fuzzy_token_overlap"
)

// MatchResult is the outcome of matching one developer name.
// Entry is nil when nothing cleared the cascade.
type MatchResult struct {
	Entry *ReferenceEntry
	Score float64
	Stage Stage
}

// Matched reports whether the result carries a reference entry.
func (r MatchResult) Matched() bool { return r.Entry != nil }

// CountryCode returns the matched ISO2 code, or "" when unmatched.
func (r MatchResult) CountryCode() string {
	if r.Entry == nil {
		return ""
	}
	return r.Entry.CountryCode
}

// strategy is one step of the cascade. ok=false falls through to the next step.
type strategy struct {
	stage Stage
	match func(name string) (MatchResult, bool)
}

// Matcher resolves developer names against an Index. It holds no mutable
// state and is safe for concurrent use.
type Matcher struct {
	idx        *Index
	minScore   float64
	strategies []strategy
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithMinScore sets the fuzzy confidence threshold.
func WithMinScore(score float64) Option {
	return func(m *Matcher) { m.minScore = score }
}

// NewMatcher returns a Matcher over idx.
func NewMatcher(idx *Index, opts ...Option) (*Matcher, error) {
	if idx == nil {
		return nil, ErrIndexNotBuilt
	}
	m := &Matcher{idx: idx, minScore: DefaultMinScore}
	for _, opt := range opts {
		opt(m)
	}
	m.strategies = []strategy{
		{stage: StageExactRaw, match: m.exact(Raw, StageExactRaw)},
		{stage: StageExactNoSuffix, match: m.exact(NoLegalSuffix, StageExactNoSuffix)},
		{stage: StageExactNoTrailing, match: m.exact(NoTrailingGeneric, StageExactNoTrailing)},
		{stage: StageFuzzyTokenOverlap, match: m.fuzzy(NoTrailingGeneric)},
	}
	return m, nil
}

// MinScore returns the configured fuzzy threshold.
func (m *Matcher) MinScore() float64 { return m.minScore }

// Index returns the reference index the matcher reads from.
func (m *Matcher) Index() *Index { return m.idx }

// Match runs the cascade for name. An unmatched name is not an error.
func (m *Matcher) Match(name string) (MatchResult, error) {
	if m == nil || m.idx == nil {
		return MatchResult{}, ErrIndexNotBuilt
	}
	for _, s := range m.strategies {
		if res, ok := s.match(name); ok {
			return res, nil
		}
	}
	return MatchResult{Stage: StageNone}, nil
}

// Resolve returns the ISO2 code for name. ok is false when no entry matched.
func (m *Matcher) Resolve(name string) (iso2 string, ok bool, err error) {
	res, err := m.Match(name)
	if err != nil {
		return "", false, err
	}
	return res.CountryCode(), res.Matched(), nil
}

func (m *Matcher) exact(v Variant, stage Stage) func(string) (MatchResult, bool) {
	ri := m.idx.Variant(v)
	n := m.idx.Normalizer()
	return func(name string) (MatchResult, bool) {
		norm := n.Normalize(name, v)
		if norm == "" {
			return MatchResult{}, false
		}
		e, ok := ri.Lookup(norm)
		if !ok {
			return MatchResult{}, false
		}
		return MatchResult{Entry: e, Score: 1, Stage: stage}, true
	}
}

// fuzzy scores the query against every entry of the variant index and keeps
// the first entry with the strictly highest score.
func (m *Matcher) fuzzy(v Variant) func(string) (MatchResult, bool) {
	ri := m.idx.Variant(v)
	n := m.idx.Normalizer()
	return func(name string) (MatchResult, bool) {
		query := Tokens(n.Normalize(name, v))
		if len(query) == 0 {
			return MatchResult{}, false
		}

		var (
			best      *ReferenceEntry
			bestScore float64
		)
		for _, row := range ri.rows {
			if s := Score(query, row.tokens); s > bestScore {
				best, bestScore = row.entry, s
			}
		}
		if best == nil || bestScore < m.minScore {
			return MatchResult{}, false
		}
		return MatchResult{Entry: best, Score: bestScore, Stage: StageFuzzyTokenOverlap}, true
	}
}
