package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devmap/devmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "devmap",
	Short: "Map the games in a Steam library to their developers' countries",
	Long:  "Resolves game developer names to ISO 3166-1 alpha-2 country codes against a reference dataset, and serves the lookups and a cached Steam proxy over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
