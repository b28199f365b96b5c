package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Load catalog items and pages from a YAML seed file",
	Long: `Loads a YAML seed file into the configured backends. Catalog kinds in
the file replace the stored ones; pages are written as whole documents.

Without an argument the storage.seed path from the config is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfg.Storage.Seed
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return errors.New("no seed file given")
		}

		b, err := openBackends(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		return applySeed(cmd.Context(), b, path, logger)
	},
}
