package resolve

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/devmap/devmap/internal/fetcher"
)

// ErrReferenceUnavailable is returned when the reference dataset cannot be read at all.
var ErrReferenceUnavailable = eris.New("resolve: reference dataset unavailable")

// ReferenceEntry is one row of the reference dataset.
type ReferenceEntry struct {
	RawName     string `json:"raw_name" yaml:"raw_name"`
	CountryCode string `json:"country_code" yaml:"country_code"`
}

type indexedEntry struct {
	entry  *ReferenceEntry
	norm   string
	tokens TokenSet
}

// ReferenceIndex holds every reference entry normalized under a single variant.
type ReferenceIndex struct {
	variant Variant
	rows    []indexedEntry
	exact   map[string]int
}

// Variant returns the normalization variant the index was built with.
func (ri *ReferenceIndex) Variant() Variant { return ri.variant }

// Len returns the number of entries in the index.
func (ri *ReferenceIndex) Len() int { return len(ri.rows) }

// Lookup returns the first entry, in dataset order, whose normalized name equals norm.
func (ri *ReferenceIndex) Lookup(norm string) (*ReferenceEntry, bool) {
	i, ok := ri.exact[norm]
	if !ok {
		return nil, false
	}
	return ri.rows[i].entry, true
}

// Index is the immutable set of per-variant reference indexes built from one dataset.
type Index struct {
	normalizer *Normalizer
	entries    []ReferenceEntry
	variants   [NoTrailingGeneric + 1]*ReferenceIndex
	skipped    int
}

// BuildIndex normalizes entries under every variant. A nil normalizer uses the defaults.
// Entries are copied; the caller's slice is not retained.
func BuildIndex(entries []ReferenceEntry, n *Normalizer) *Index {
	if n == nil {
		n = defaultNormalizer
	}
	idx := &Index{
		normalizer: n,
		entries:    append([]ReferenceEntry(nil), entries...),
	}
	for _, v := range Variants {
		ri := &ReferenceIndex{
			variant: v,
			rows:    make([]indexedEntry, 0, len(idx.entries)),
			exact:   make(map[string]int, len(idx.entries)),
		}
		for i := range idx.entries {
			e := &idx.entries[i]
			norm := n.Normalize(e.RawName, v)
			if norm != "" {
				if _, dup := ri.exact[norm]; !dup {
					ri.exact[norm] = len(ri.rows)
				}
			}
			ri.rows = append(ri.rows, indexedEntry{entry: e, norm: norm, tokens: Tokens(norm)})
		}
		idx.variants[v] = ri
	}
	return idx
}

// Len returns the number of reference entries.
func (idx *Index) Len() int { return len(idx.entries) }

// Skipped returns the number of dataset rows dropped as malformed while loading.
func (idx *Index) Skipped() int { return idx.skipped }

// Entries returns a copy of the reference entries in dataset order.
func (idx *Index) Entries() []ReferenceEntry {
	return append([]ReferenceEntry(nil), idx.entries...)
}

// Variant returns the index for v, or nil for an unknown variant.
func (idx *Index) Variant(v Variant) *ReferenceIndex {
	if v < 0 || int(v) >= len(idx.variants) {
		return nil
	}
	return idx.variants[v]
}

// Normalizer returns the normalizer the index was built with.
func (idx *Index) Normalizer() *Normalizer { return idx.normalizer }

// LoadOptions configures reference dataset parsing.
type LoadOptions struct {
	HasHeader  bool
	Normalizer *Normalizer
}

// LoadIndexFile reads the reference dataset at path and builds an Index.
func LoadIndexFile(ctx context.Context, path string, opts LoadOptions) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(ErrReferenceUnavailable, "open %s: %v", path, err)
	}
	defer f.Close() //nolint:errcheck

	return LoadIndex(ctx, f, opts)
}

// LoadIndex parses comma-separated rows of (business name, ISO2) from r.
// Rows with a missing column or an empty name or code are skipped.
func LoadIndex(ctx context.Context, r io.Reader, opts LoadOptions) (*Index, error) {
	n := opts.Normalizer
	if n == nil {
		n = defaultNormalizer
	}

	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		HasHeader:     opts.HasHeader,
		LazyQuotes:    true,
		TrimSpace:     true,
		SkipMalformed: true,
	})

	var (
		entries []ReferenceEntry
		skipped int
	)
	for row := range rowCh {
		e, ok := parseRow(row, n)
		if !ok {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(ErrReferenceUnavailable, "read rows: %v", err)
	}

	idx := BuildIndex(entries, n)
	idx.skipped = skipped

	zap.L().Info("reference index built",
		zap.Int("entries", idx.Len()),
		zap.Int("skipped", skipped),
	)
	return idx, nil
}

func parseRow(row []string, n *Normalizer) (ReferenceEntry, bool) {
	if len(row) < 2 {
		return ReferenceEntry{}, false
	}
	name := strings.TrimSpace(row[0])
	code := strings.TrimSpace(row[1])
	if name == "" || code == "" {
		return ReferenceEntry{}, false
	}
	if n.Normalize(name, Raw) == "" {
		return ReferenceEntry{}, false
	}
	return ReferenceEntry{RawName: name, CountryCode: code}, true
}
