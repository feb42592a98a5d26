package main

import (
	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources <marketplace>",
		Short: "List registered adapters and the effective fallback chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			marketplace, err := parseMarketplaceArg(args[0])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			orch := buildOrchestrator(cfg, nil)

			return printJSON(map[string]any{
				"marketplace":   marketplace,
				"fallbackChain": orch.GetFallbackChain(marketplace),
				"adapters":      orch.GetAvailableAdapters(cmd.Context(), marketplace),
			})
		},
	}
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Print the health report for every registered adapter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			orch := buildOrchestrator(cfg, nil)
			return printJSON(orch.GetHealthReport())
		},
	}
}
