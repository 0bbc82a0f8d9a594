package resolve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_Empty(t *testing.T) {
	for _, v := range Variants {
		assert.Equal(t, "", Normalize("", v))
		assert.Equal(t, "", Normalize("   ", v))
	}
}

func TestNormalize_Lowercase(t *testing.T) {
	assert.Equal(t, "valve corporation", Normalize("Valve Corporation", Raw))
}

func TestNormalize_StripsDiacritics(t *testing.T) {
	assert.Equal(t, "koln", Normalize("Köln", Raw))
	assert.Equal(t, "ubisoft montreal", Normalize("Ubisoft Montréal", Raw))
	assert.Equal(t, "seni cerny", Normalize("Šeñí Černý", Raw))
}

func TestNormalize_PunctuationToSpace(t *testing.T) {
	assert.Equal(t, "valve corp", Normalize("valve corp.", Raw))
	assert.Equal(t, "id software llc", Normalize("id Software, LLC", Raw))
	assert.Equal(t, "grinding gear games", Normalize("Grinding-Gear—Games", Raw))
	assert.Equal(t, "a b c", Normalize("a/b–c", Raw))
}

func TestNormalize_DeletesParenthesizedGroups(t *testing.T) {
	assert.Equal(t, "acme", Normalize("Acme (Europe)", Raw))
	assert.Equal(t, "acme studio", Normalize("Acme (Europe) Studio (Mac)", Raw))
	assert.Equal(t, "acme", Normalize("Acme ((nested))", Raw))
}

func TestNormalize_UnbalancedParens(t *testing.T) {
	assert.Equal(t, "acme europe", Normalize("Acme (Europe", Raw))
	assert.Equal(t, "acme europe", Normalize("Acme Europe)", Raw))
}

func TestNormalize_CollapseSpaces(t *testing.T) {
	assert.Equal(t, "cd projekt red", Normalize("  CD   Projekt\tRed  ", Raw))
}

func TestNormalize_RawKeepsSuffixes(t *testing.T) {
	assert.Equal(t, "valve corporation", Normalize("Valve Corporation", Raw))
	assert.Equal(t, "bungie inc", Normalize("Bungie, Inc.", Raw))
}

func TestNormalize_NoLegalSuffix(t *testing.T) {
	assert.Equal(t, "valve", Normalize("Valve Corporation", NoLegalSuffix))
	assert.Equal(t, "bungie", Normalize("Bungie, Inc.", NoLegalSuffix))
	assert.Equal(t, "paradox", Normalize("Paradox Interactive", NoLegalSuffix))
	assert.Equal(t, "daedalic entertainment", Normalize("Daedalic Entertainment GmbH", NoLegalSuffix))
}

func TestNormalize_NoLegalSuffix_AnyPosition(t *testing.T) {
	assert.Equal(t, "foo bar", Normalize("Foo Inc Bar", NoLegalSuffix))
	assert.Equal(t, "", Normalize("LLC", NoLegalSuffix))
}

func TestNormalize_NoLegalSuffix_WholeTokenOnly(t *testing.T) {
	assert.Equal(t, "incognito cosmos", Normalize("Incognito Cosmos", NoLegalSuffix))
	assert.Equal(t, "saber", Normalize("Saber", NoLegalSuffix))
}

func TestNormalize_NoTrailingGeneric(t *testing.T) {
	assert.Equal(t, "valve", Normalize("Valve Studios", NoTrailingGeneric))
	assert.Equal(t, "daedalic", Normalize("Daedalic Entertainment GmbH", NoTrailingGeneric))
	assert.Equal(t, "red hook", Normalize("Red Hook Studios Games", NoTrailingGeneric))
}

func TestNormalize_NoTrailingGeneric_KeepsInnerTokens(t *testing.T) {
	assert.Equal(t, "studio wildcard", Normalize("Studio Wildcard", NoTrailingGeneric))
	assert.Equal(t, "games workshop group", Normalize("Games Workshop Group", NoTrailingGeneric))
}

func TestNormalize_NoTrailingGeneric_AfterLegalSuffix(t *testing.T) {
	assert.Equal(t, "paradox", Normalize("Paradox Inc Games", NoTrailingGeneric))
	assert.Equal(t, "paradox", Normalize("Paradox Games Inc", NoTrailingGeneric))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"Valve Corporation",
		"  CD   Projekt  RED  ",
		"Acme (Europe) Ltd.",
		"Ubisoft Montréal / Québec",
		"Games Studio Software",
		"Šeñí Černý, s.a.",
		"((()))",
		"Foo—Bar–Baz - Inc.",
		"İstanbul Oyun",
	}
	for _, in := range inputs {
		for _, v := range Variants {
			once := Normalize(in, v)
			assert.Equal(t, once, Normalize(once, v), "input %q variant %s", in, v)
		}
	}
}

func TestNormalize_NoStraySpaces(t *testing.T) {
	inputs := []string{" a ", "a  b", "\ta\nb\t", "a , b", "(x) y (z)", " Inc Games "}
	for _, in := range inputs {
		for _, v := range Variants {
			out := Normalize(in, v)
			assert.Equal(t, strings.TrimSpace(out), out)
			assert.NotContains(t, out, "  ")
		}
	}
}

func TestNormalizer_ExtraTokens(t *testing.T) {
	n := NewNormalizer([]string{"AB", "SRL", "S.p.A."}, []string{"Productions"})
	assert.Equal(t, "mojang", n.Normalize("Mojang AB", NoLegalSuffix))
	assert.Equal(t, "milestone", n.Normalize("Milestone SRL", NoLegalSuffix))
	// Multi-token extras are ignored.
	assert.Equal(t, "kunos s p a", n.Normalize("Kunos S.p.A.", NoLegalSuffix))
	assert.Equal(t, "frictional", n.Normalize("Frictional Productions", NoTrailingGeneric))

	// Default normalizer is unaffected.
	assert.Equal(t, "mojang ab", Normalize("Mojang AB", NoLegalSuffix))
}

func TestVariant_String(t *testing.T) {
	assert.Equal(t, "raw", Raw.String())
	assert.Equal(t, "no_legal_suffix", NoLegalSuffix.String())
	assert.Equal(t, "no_trailing_generic", NoTrailingGeneric.String())
	assert.Equal(t, "unknown", Variant(42).String())
}
