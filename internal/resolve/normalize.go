// Package resolve maps free-text developer names to ISO 3166-1 alpha-2
// country codes using a reference dataset of known business names.
package resolve

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Variant selects how aggressively a name is normalized. Variants are
// ordered: each one applies every rule of the previous one.
type Variant int

const (
	// Raw lowercases, strips accents and punctuation and collapses spaces.
	Raw Variant = iota
	// NoLegalSuffix additionally removes legal-entity tokens anywhere in the name.
	NoLegalSuffix
	// NoTrailingGeneric additionally removes generic words from the end of the name.
	NoTrailingGeneric
)

// Variants lists every variant in cascade order.
var Variants = []Variant{Raw, NoLegalSuffix, NoTrailingGeneric}

func (v Variant) String() string {
	switch v {
	case Raw:
		return "raw"
	case NoLegalSuffix:
		return "no_legal_suffix"
	case NoTrailingGeneric:
		return "no_trailing_generic"
	default:
		return "unknown"
	}
}

// DefaultLegalSuffixes lists corporate-form tokens that carry no geographic signal.
var DefaultLegalSuffixes = []string{
	"inc", "llc", "ltd", "limited",
	"corp", "corporation", "co", "company",
	"gmbh", "sa", "plc", "pte", "pty",
	"interactive",
}

// DefaultGenericTrailing lists naming-convention words stripped from the end of a name.
var DefaultGenericTrailing = []string{
	"game", "games", "gaming",
	"studio", "studios",
	"entertainment", "software",
}

var (
	parenGroupRe = regexp.MustCompile(`\([^()]*\)`)
	punctuation  = strings.NewReplacer(
		",", " ",
		"-", " ",
		"–", " ",
		"—", " ",
		".", " ",
		"(", " ",
		")", " ",
		"/", " ",
	)
)

// Normalizer holds the token sets used by the suffix-stripping variants.
// A Normalizer is immutable after construction.
type Normalizer struct {
	legal   map[string]struct{}
	generic map[string]struct{}
}

// NewNormalizer returns a Normalizer using the default token sets plus any extras.
// Extra tokens are folded with the Raw rules before being added.
func NewNormalizer(extraLegal, extraGeneric []string) *Normalizer {
	n := &Normalizer{
		legal:   make(map[string]struct{}, len(DefaultLegalSuffixes)+len(extraLegal)),
		generic: make(map[string]struct{}, len(DefaultGenericTrailing)+len(extraGeneric)),
	}
	addTokens(n.legal, DefaultLegalSuffixes)
	addTokens(n.legal, extraLegal)
	addTokens(n.generic, DefaultGenericTrailing)
	addTokens(n.generic, extraGeneric)
	return n
}

// addTokens adds words that fold to a single token; anything else can never
// equal a whole token and is ignored.
func addTokens(set map[string]struct{}, words []string) {
	for _, w := range words {
		if tok := fold(w); tok != "" && !strings.Contains(tok, " ") {
			set[tok] = struct{}{}
		}
	}
}

var defaultNormalizer = NewNormalizer(nil, nil)

// Normalize normalizes name under variant using the default token sets.
func Normalize(name string, variant Variant) string {
	return defaultNormalizer.Normalize(name, variant)
}

// Normalize standardizes a business name for matching:
//  1. Lowercase
//  2. Strip diacritics (NFD, drop combining marks)
//  3. Delete parenthesized groups, turn remaining punctuation into spaces
//  4. Collapse whitespace
//  5. NoLegalSuffix: drop legal-entity tokens wherever they occur
//  6. NoTrailingGeneric: drop generic tokens from the end until none is left
func (n *Normalizer) Normalize(name string, variant Variant) string {
	tokens := strings.Fields(fold(name))
	if variant >= NoLegalSuffix {
		tokens = n.stripLegal(tokens)
	}
	if variant >= NoTrailingGeneric {
		tokens = n.stripTrailingGeneric(tokens)
	}
	return strings.Join(tokens, " ")
}

func (n *Normalizer) stripLegal(tokens []string) []string {
	kept := tokens[:0:0]
	for _, tok := range tokens {
		if _, ok := n.legal[tok]; ok {
			continue
		}
		kept = append(kept, tok)
	}
	return kept
}

func (n *Normalizer) stripTrailingGeneric(tokens []string) []string {
	for len(tokens) > 0 {
		if _, ok := n.generic[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return tokens
}

// fold applies steps 1-4 and returns a single-spaced, trimmed string.
func fold(s string) string {
	s = strings.ToLower(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	for {
		stripped := parenGroupRe.ReplaceAllString(s, " ")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = punctuation.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
