package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/devmap/devmap/internal/library"
)

var libraryOutput string

var libraryCmd = &cobra.Command{
	Use:   "library <steamid|vanity|profile url>",
	Short: "Count a player's games by developer country",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := strings.ToLower(libraryOutput)
		if format != "table" && format != "json" && format != "yaml" {
			return eris.Errorf("unsupported output format %q (table, json, yaml)", libraryOutput)
		}

		env, err := initEnv(cmd.Context(), "library")
		if err != nil {
			return err
		}
		defer env.Close()

		steamID, err := env.Steam.ResolvePlayer(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		report, err := env.Library.Locate(cmd.Context(), steamID)
		if err != nil {
			return err
		}

		return writeReport(cmd.OutOrStdout(), report, format)
	},
}

func init() {
	libraryCmd.Flags().StringVarP(&libraryOutput, "output", "o", "table", "output format: table, json or yaml")
	rootCmd.AddCommand(libraryCmd)
}

func writeReport(out io.Writer, r *library.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "encode report")
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return eris.Wrap(err, "encode report")
		}
		if err := enc.Close(); err != nil {
			return eris.Wrap(err, "encode report")
		}
		return nil
	}

	fmt.Fprintf(out, "steamid %s: %d games, %d located in %d countries\n",
		r.SteamID, r.GameCount, located(r), len(r.Countries))

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ISO2\tGAMES")
	for _, c := range r.Countries {
		fmt.Fprintf(tw, "%s\t%d\n", c.CountryCode, c.Count)
	}
	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "write report")
	}

	if len(r.Unresolved) > 0 {
		fmt.Fprintf(out, "unresolved developers: %s\n", strings.Join(r.Unresolved, ", "))
	}
	if len(r.Unavailable) > 0 {
		fmt.Fprintf(out, "apps without store details: %d\n", len(r.Unavailable))
	}
	return nil
}

func located(r *library.Report) int {
	n := 0
	for _, c := range r.Countries {
		n += c.Count
	}
	return n
}
