package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/marketsift/marketsift/internal/orchestrator"
	"github.com/marketsift/marketsift/internal/sources"
)

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract <marketplace> <identifier>",
		Short: "Extract one listing via the fallback chain",
		Long: `Walks the marketplace's fallback chain in tier order and prints the first
acceptable listing with its provenance and the full attempt audit.`,
		Args: cobra.ExactArgs(2),
		RunE: runExtract,
	}
	addExtractFlags(cmd)
	cmd.Flags().Bool("no-fallback", false, "Stop after the first attempted source")
	return cmd
}

func newMergeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merge <marketplace> <identifier>",
		Short: "Query all sources in parallel and merge",
		Long: `Runs every filtered adapter concurrently, resolves field conflicts by tier
precedence, and prints the merged listing with the per-source breakdown.`,
		Args: cobra.ExactArgs(2),
		RunE: runMerge,
	}
	addExtractFlags(cmd)
	return cmd
}

func addExtractFlags(cmd *cobra.Command) {
	cmd.Flags().String("content-file", "", "Read source content (HTML, CSV, email) from a file; - for stdin")
	cmd.Flags().Duration("timeout", 30*time.Second, "Total extraction budget")
	cmd.Flags().Float64("min-confidence", 0.5, "Minimum acceptable listing confidence")
	cmd.Flags().StringSlice("channels", nil, "Only try these channels")
	cmd.Flags().StringSlice("exclude-channels", nil, "Never try these channels")
	cmd.Flags().IntSlice("tiers", nil, "Only try these tiers (1-4)")
}

// buildOptions assembles orchestrator options from the shared extract flags.
func buildOptions(fs *pflag.FlagSet) (orchestrator.Options, error) {
	timeout, _ := fs.GetDuration("timeout")
	minConfidence, _ := fs.GetFloat64("min-confidence")
	tiers, _ := fs.GetIntSlice("tiers")

	opts := orchestrator.Options{
		Timeout:            timeout,
		RequiredConfidence: minConfidence,
		PreferredTiers:     tiers,
	}

	include, err := channelFlag(fs, "channels")
	if err != nil {
		return opts, err
	}
	opts.IncludeChannels = include

	exclude, err := channelFlag(fs, "exclude-channels")
	if err != nil {
		return opts, err
	}
	opts.ExcludeChannels = exclude

	if noFallback, ferr := fs.GetBool("no-fallback"); ferr == nil && noFallback {
		opts.DisableFallback = true
	}

	if path, _ := fs.GetString("content-file"); path != "" {
		content, rerr := readContent(path)
		if rerr != nil {
			return opts, rerr
		}
		opts.Content = content
	}
	return opts, nil
}

func channelFlag(fs *pflag.FlagSet, name string) ([]sources.Channel, error) {
	raw, _ := fs.GetStringSlice(name)
	channels := make([]sources.Channel, 0, len(raw))
	for _, r := range raw {
		c, ok := sources.ParseChannel(r)
		if !ok {
			return nil, fmt.Errorf("unknown channel %q in --%s", r, name)
		}
		channels = append(channels, c)
	}
	return channels, nil
}

func readContent(path string) (string, error) {
	if path == "-" {
		raw, err := os.ReadFile("/dev/stdin")
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(raw), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read content file: %w", err)
	}
	return string(raw), nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	marketplace, err := parseMarketplaceArg(args[0])
	if err != nil {
		return err
	}
	opts, err := buildOptions(cmd.Flags())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	orch := buildOrchestrator(cfg, nil)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout+time.Second)
	defer cancel()

	res, err := orch.GetData(ctx, marketplace, args[1], opts)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runMerge(cmd *cobra.Command, args []string) error {
	marketplace, err := parseMarketplaceArg(args[0])
	if err != nil {
		return err
	}
	opts, err := buildOptions(cmd.Flags())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	orch := buildOrchestrator(cfg, nil)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout+time.Second)
	defer cancel()

	res, err := orch.GetFromAllSources(ctx, marketplace, args[1], opts)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
