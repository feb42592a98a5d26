// marketsift extracts structured marketplace listings from heterogeneous
// sources: official APIs, scraped pages, CSV exports, confirmation emails,
// browser captures, and model-based extraction as the last resort.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "marketsift"
	version = "v0.3.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Multi-channel marketplace listing extraction",
		Version: version,
		Long: `marketsift unifies heterogeneous listing data sources behind one contract.

Sources are organized into channels (official_api, scraping, data_export,
email_parsing, browser_extension, llm_extraction, ...) grouped into trust
tiers. Extraction walks the fallback chain in tier order, or queries every
source in parallel and merges the results with tier precedence.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			setLogLevel(level)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to marketsift.yaml (default: built-in config)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	rootCmd.AddCommand(newExtractCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.AddCommand(newSourcesCmd())
	rootCmd.AddCommand(newHealthCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, staying at info")
		return
	}
	zerolog.SetGlobalLevel(parsed)
}
