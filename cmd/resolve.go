package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/devmap/devmap/internal/library"
)

var resolveExplain bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <developer name>...",
	Short: "Resolve developer names to ISO2 country codes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("resolve"); err != nil {
			return err
		}

		_, m, err := initMatcher(cmd.Context())
		if err != nil {
			return err
		}

		return writeResolutions(cmd.OutOrStdout(), m, args, resolveExplain)
	},
}

func init() {
	resolveCmd.Flags().BoolVar(&resolveExplain, "explain", false, "include the match stage, score and matched entry")
	rootCmd.AddCommand(resolveCmd)
}

// writeResolutions prints one tab-separated line per name. Unmatched names
// print "-" as their code.
func writeResolutions(out io.Writer, r library.Resolver, names []string, explain bool) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, name := range names {
		res, err := r.Match(name)
		if err != nil {
			return eris.Wrapf(err, "resolve %q", name)
		}

		code := res.CountryCode()
		if code == "" {
			code = "-"
		}
		if !explain {
			fmt.Fprintf(tw, "%s\t%s\n", name, code)
			continue
		}

		matched := "-"
		if res.Matched() {
			matched = res.Entry.RawName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", name, code, res.Stage, res.Score, matched)
	}
	return tw.Flush()
}
