// Command studio serves the page studios and manages their storage.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gabrielmiguelok/pagestudio/internal/config"
	"github.com/gabrielmiguelok/pagestudio/pkg/logging"
)

var version = "0.1.0"

var (
	// Global flags
	configPath string
	devMode    bool
	logLevel   string

	cfg    *config.Config
	logger logging.Logger = logging.NopLogger{}
)

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Page Studio - live editor for storefront pages",
	Long: `Page Studio serves live editors for the storefront home and offers pages.

Editors work on a local draft; nothing reaches the store until Save.
Pages and the catalog can live in memory, SQLite, PostgreSQL or behind
another studio's HTTP API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		base := config.Default()
		if devMode {
			base = config.Development()
		}
		loaded, err := config.Load(configPath, base)
		if err != nil {
			return err
		}
		if logLevel != "" {
			loaded.Log.Level = logLevel
			if err := loaded.Validate(); err != nil {
				return err
			}
		}
		cfg = loaded

		l := logging.NewSlogLogger(append(cfg.LoggerOptions(), logging.WithOutput(cmd.ErrOrStderr()))...)
		logging.SetDefault(l)
		logger = l
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "studio v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Start from the development preset")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
