package resolve

import "strings"

// TokenSet is a set of whitespace-separated tokens of a normalized name.
type TokenSet map[string]struct{}

// Tokens splits an already-normalized name into a TokenSet. Repeated tokens count once.
func Tokens(normalized string) TokenSet {
	fields := strings.Fields(normalized)
	set := make(TokenSet, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// Has reports whether tok is in the set.
func (s TokenSet) Has(tok string) bool {
	_, ok := s[tok]
	return ok
}

// Intersect returns the number of tokens present in both sets.
func (s TokenSet) Intersect(other TokenSet) int {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	hits := 0
	for tok := range small {
		if large.Has(tok) {
			hits++
		}
	}
	return hits
}

// Score returns |a ∩ b| / max(|a|, |b|). Two empty sets score 0.
func Score(a, b TokenSet) float64 {
	denom := max(len(a), len(b))
	if denom == 0 {
		return 0
	}
	return float64(a.Intersect(b)) / float64(denom)
}
