package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devmap/devmap/internal/resolve"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check that every reference entry resolves to its own country",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("audit"); err != nil {
			return err
		}

		idx, m, err := initMatcher(cmd.Context())
		if err != nil {
			return err
		}

		report, err := auditMatcher(m)
		if err != nil {
			return err
		}
		report.Skipped = idx.Skipped()

		writeAudit(cmd.OutOrStdout(), report)
		if len(report.Failures) > 0 {
			return eris.Errorf("audit: %d of %d entries do not resolve to their own country",
				len(report.Failures), report.Entries)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)
}

// auditFailure is a reference entry whose name resolves elsewhere.
type auditFailure struct {
	Entry resolve.ReferenceEntry
	Got   resolve.MatchResult
}

type auditReport struct {
	Entries  int
	Skipped  int
	Stages   map[resolve.Stage]int
	Failures []auditFailure
}

// auditMatcher resolves every indexed entry by its raw name.
func auditMatcher(m *resolve.Matcher) (*auditReport, error) {
	entries := m.Index().Entries()
	r := &auditReport{
		Entries: len(entries),
		Stages:  map[resolve.Stage]int{},
	}

	for _, e := range entries {
		res, err := m.Match(e.RawName)
		if err != nil {
			return nil, eris.Wrapf(err, "audit: match %q", e.RawName)
		}
		r.Stages[res.Stage]++
		if res.CountryCode() != e.CountryCode {
			r.Failures = append(r.Failures, auditFailure{Entry: e, Got: res})
		}
	}

	zap.L().Info("audit complete",
		zap.Int("entries", r.Entries),
		zap.Int("failures", len(r.Failures)),
	)
	return r, nil
}

func writeAudit(out io.Writer, r *auditReport) {
	fmt.Fprintf(out, "entries: %d\nskipped rows: %d\nself-match failures: %d\n",
		r.Entries, r.Skipped, len(r.Failures))
	if len(r.Failures) == 0 {
		return
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tWANT\tGOT\tMATCHED")
	for _, f := range r.Failures {
		got, matched := "-", "-"
		if f.Got.Matched() {
			got = f.Got.CountryCode()
			matched = f.Got.Entry.RawName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Entry.RawName, f.Entry.CountryCode, got, matched)
	}
	_ = tw.Flush()
}
