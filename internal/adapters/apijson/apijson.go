// Package apijson extracts listings from a marketplace's official item API.
// Payloads are JSON item documents, either passed in directly or fetched
// from the configured endpoint with the caller's API key.
package apijson

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/marketsift/marketsift/internal/fetch"
	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

const adapterVersion = "1.4.0"

// Config wires the adapter to one marketplace's item endpoint.
type Config struct {
	Marketplace listing.Marketplace
	APIKey      string
	// BaseURL is the item endpoint; the item id is appended as ?item_id=.
	BaseURL string
	// Fetcher pulls payloads when the caller passes no content. nil disables
	// fetching; the adapter then works only on provided content.
	Fetcher *fetch.Client
}

// Adapter is the tier-1 official_api source.
type Adapter struct {
	sources.Base

	apiKey  string
	baseURL string
	fetcher *fetch.Client
	hosts   []string
}

var itemIDPattern = regexp.MustCompile(`^[A-Za-z0-9|_-]{6,64}$`)

// New builds the adapter for a marketplace.
func New(cfg Config) *Adapter {
	return &Adapter{
		Base: sources.NewBase(sources.Info{
			Channel:     sources.ChannelOfficialAPI,
			Marketplace: cfg.Marketplace,
			Name:        string(cfg.Marketplace) + "-api",
			Version:     adapterVersion,
		}),
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		fetcher: cfg.Fetcher,
		hosts:   marketplaceHosts(cfg.Marketplace),
	}
}

func marketplaceHosts(m listing.Marketplace) []string {
	switch m {
	case listing.MarketplaceEbay:
		return []string{"ebay.com", "ebay.co.uk", "ebay.de"}
	case listing.MarketplaceAmazon:
		return []string{"amazon.com", "amazon.co.uk", "amazon.de"}
	case listing.MarketplaceWalmart:
		return []string{"walmart.com"}
	case listing.MarketplaceEtsy:
		return []string{"etsy.com"}
	}
	return nil
}

// CanHandle accepts marketplace URLs and bare item ids.
func (a *Adapter) CanHandle(identifier string) bool {
	if identifier == "" {
		return false
	}
	if u, err := url.Parse(identifier); err == nil && u.Host != "" {
		host := strings.TrimPrefix(u.Hostname(), "www.")
		for _, h := range a.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return true
			}
		}
		return false
	}
	return itemIDPattern.MatchString(identifier)
}

// IsAvailable reports whether the API credential is loaded.
func (a *Adapter) IsAvailable(context.Context) bool {
	return a.apiKey != ""
}

// Health reports the rolling extraction outcomes.
func (a *Adapter) Health() sources.HealthSnapshot {
	return a.Snapshot(a.apiKey != "")
}

// ExtractWithProvenance decodes an item payload into a normalized listing.
func (a *Adapter) ExtractWithProvenance(ctx context.Context, content, identifier string, opts sources.ExtractOptions) (ext *sources.Extraction, err error) {
	defer func() { a.RecordOutcome(ext, err) }()

	raw := []byte(content)
	hash := ""
	if len(raw) == 0 {
		if a.fetcher == nil {
			return nil, errors.New("no content provided and fetching is disabled")
		}
		fetched, ferr := a.fetcher.Fetch(ctx, a.itemURL(identifier))
		if ferr != nil {
			return nil, fmt.Errorf("item api: %w", ferr)
		}
		raw = fetched.Body
		hash = fetched.Hash
	} else {
		hash = sources.HashContent(raw)
	}

	var payload itemPayload
	if uerr := json.Unmarshal(raw, &payload); uerr != nil {
		return nil, fmt.Errorf("decode item payload: %w", uerr)
	}
	if payload.Title == "" {
		return nil, nil
	}

	l, perr := payload.toListing(a.Marketplace(), identifier)
	if perr != nil {
		return nil, perr
	}
	l.ExtractionMethod = string(sources.ChannelOfficialAPI)
	l.ExtractorVersion = a.Version()

	prov := a.NewProvenance(payload.confidence(), sources.FreshnessRealtime, hash)
	prov.UserConsented = true
	prov.TermsCompliant = true
	if payload.ItemID != "" {
		prov.Metadata = map[string]any{"itemId": payload.ItemID}
	}
	l.Confidence = prov.Confidence

	return &sources.Extraction{Listing: *l, Provenance: prov}, nil
}

// itemURL builds the endpoint request for an identifier, passing URLs
// through untouched.
func (a *Adapter) itemURL(identifier string) string {
	if strings.HasPrefix(identifier, "http://") || strings.HasPrefix(identifier, "https://") {
		return identifier
	}
	return a.baseURL + "?item_id=" + url.QueryEscape(identifier) + "&api_key=" + url.QueryEscape(a.apiKey)
}
