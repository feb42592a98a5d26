package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marketsift/marketsift/internal/adapters/apijson"
	"github.com/marketsift/marketsift/internal/adapters/browserext"
	"github.com/marketsift/marketsift/internal/adapters/csvexport"
	"github.com/marketsift/marketsift/internal/adapters/emailparse"
	"github.com/marketsift/marketsift/internal/adapters/llmextract"
	"github.com/marketsift/marketsift/internal/adapters/scrape"
	"github.com/marketsift/marketsift/internal/config"
	"github.com/marketsift/marketsift/internal/fetch"
	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/metrics"
	"github.com/marketsift/marketsift/internal/orchestrator"
	"github.com/marketsift/marketsift/internal/sources"
)

// loadConfig resolves the --config flag, falling back to the built-in
// defaults when no file is given.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildOrchestrator registers one adapter per configured (marketplace,
// channel) pair. Adapters configured but disabled are registered and then
// disabled, so they show up in listings and can be enabled at runtime.
func buildOrchestrator(cfg *config.Config, m *metrics.Registry) *orchestrator.Orchestrator {
	orch := orchestrator.New(m)
	fetcher := fetch.New(fetch.Config{
		UserAgent:    cfg.Fetch.UserAgent,
		Timeout:      cfg.Fetch.Timeout(),
		PerHostRPS:   cfg.Fetch.PerHostRPS,
		PerHostBurst: cfg.Fetch.PerHostBurst,
	})

	for name, mc := range cfg.Marketplaces {
		marketplace, ok := listing.ParseMarketplace(name)
		if !ok {
			continue // Validate already refused these; belt and braces
		}
		for channelName, ac := range mc.Adapters {
			channel, ok := sources.ParseChannel(channelName)
			if !ok {
				continue
			}
			adapter := buildAdapter(marketplace, channel, ac, fetcher)
			if adapter == nil {
				log.Warn().
					Str("marketplace", name).
					Str("channel", channelName).
					Msg("No built-in adapter for channel, skipping")
				continue
			}
			orch.RegisterAdapter(marketplace, adapter)
			if !ac.Enabled {
				orch.DisableAdapter(marketplace, channel)
			}
		}
		if len(mc.Chain) > 0 {
			chain := make([]sources.Channel, 0, len(mc.Chain))
			for _, ch := range mc.Chain {
				if c, ok := sources.ParseChannel(ch); ok {
					chain = append(chain, c)
				}
			}
			orch.SetFallbackChain(marketplace, chain)
		}
	}
	return orch
}

func buildAdapter(marketplace listing.Marketplace, channel sources.Channel, ac config.AdapterConfig, fetcher *fetch.Client) sources.Adapter {
	switch channel {
	case sources.ChannelOfficialAPI:
		return apijson.New(apijson.Config{
			Marketplace: marketplace,
			APIKey:      os.Getenv(ac.APIKeyEnv),
			BaseURL:     ac.BaseURL,
			Fetcher:     fetcher,
		})
	case sources.ChannelScraping:
		return scrape.New(scrape.Config{Marketplace: marketplace, Fetcher: fetcher})
	case sources.ChannelDataExport:
		return csvexport.New(csvexport.Config{Marketplace: marketplace})
	case sources.ChannelEmailParsing:
		return emailparse.New(emailparse.Config{Marketplace: marketplace})
	case sources.ChannelBrowserExtension:
		return browserext.New(browserext.Config{Marketplace: marketplace, BridgeURL: ac.BridgeURL})
	case sources.ChannelLLMExtraction:
		client := llmextract.NewHTTPClient(ac.BridgeURL, ac.Model, ac.Timeout())
		return llmextract.New(llmextract.Config{Marketplace: marketplace, Client: client})
	}
	// financial_api, cookie_import and ocr_extraction are valid registry
	// channels but ship no built-in adapter.
	return nil
}

// parseMarketplaceArg converts a positional argument, refusing unknowns.
func parseMarketplaceArg(arg string) (listing.Marketplace, error) {
	m, ok := listing.ParseMarketplace(arg)
	if !ok {
		return "", fmt.Errorf("unknown marketplace %q (want ebay|amazon|walmart|etsy|custom)", arg)
	}
	return m, nil
}
