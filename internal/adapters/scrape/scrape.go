// Package scrape extracts listings from public marketplace pages. It reads
// schema.org Product JSON-LD when the page ships it and falls back to
// OpenGraph meta tags, which is as far as tier-3 confidence goes.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/marketsift/marketsift/internal/fetch"
	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

const adapterVersion = "2.1.0"

// Config wires the adapter to one marketplace.
type Config struct {
	Marketplace listing.Marketplace
	// Fetcher pulls pages when the caller passes no content. nil disables
	// fetching.
	Fetcher *fetch.Client
}

// Adapter is the tier-3 scraping source.
type Adapter struct {
	sources.Base

	fetcher *fetch.Client
	hosts   []string
	idPath  *regexp.Regexp
}

// itemPathPatterns pull the stable listing id out of marketplace URLs.
var itemPathPatterns = map[listing.Marketplace]*regexp.Regexp{
	listing.MarketplaceEbay:    regexp.MustCompile(`/itm/(?:[^/]+/)?(\d{9,15})`),
	listing.MarketplaceAmazon:  regexp.MustCompile(`/(?:dp|gp/product)/([A-Z0-9]{10})`),
	listing.MarketplaceWalmart: regexp.MustCompile(`/ip/(?:[^/]+/)?(\d+)`),
	listing.MarketplaceEtsy:    regexp.MustCompile(`/listing/(\d+)`),
}

var marketplaceHostSuffixes = map[listing.Marketplace][]string{
	listing.MarketplaceEbay:    {"ebay.com", "ebay.co.uk", "ebay.de"},
	listing.MarketplaceAmazon:  {"amazon.com", "amazon.co.uk", "amazon.de"},
	listing.MarketplaceWalmart: {"walmart.com"},
	listing.MarketplaceEtsy:    {"etsy.com"},
}

// New builds the adapter for a marketplace.
func New(cfg Config) *Adapter {
	return &Adapter{
		Base: sources.NewBase(sources.Info{
			Channel:     sources.ChannelScraping,
			Marketplace: cfg.Marketplace,
			Name:        string(cfg.Marketplace) + "-scraper",
			Version:     adapterVersion,
		}),
		fetcher: cfg.Fetcher,
		hosts:   marketplaceHostSuffixes[cfg.Marketplace],
		idPath:  itemPathPatterns[cfg.Marketplace],
	}
}

// CanHandle accepts listing URLs on the marketplace's domains.
func (a *Adapter) CanHandle(identifier string) bool {
	u, err := url.Parse(identifier)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	for _, h := range a.hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// IsAvailable: scraping needs no credential, only a way to obtain pages.
func (a *Adapter) IsAvailable(context.Context) bool {
	return true
}

// Health reports the rolling extraction outcomes.
func (a *Adapter) Health() sources.HealthSnapshot {
	return a.Snapshot(true)
}

// ExtractWithProvenance parses a listing page into a normalized listing.
// content may carry the page HTML; otherwise the identifier URL is fetched.
func (a *Adapter) ExtractWithProvenance(ctx context.Context, content, identifier string, opts sources.ExtractOptions) (ext *sources.Extraction, err error) {
	defer func() { a.RecordOutcome(ext, err) }()

	html := content
	hash := ""
	pageURL := identifier
	if html == "" {
		if a.fetcher == nil {
			return nil, errors.New("no content provided and fetching is disabled")
		}
		fetched, ferr := a.fetcher.Fetch(ctx, identifier)
		if ferr != nil {
			return nil, fmt.Errorf("page fetch: %w", ferr)
		}
		html = string(fetched.Body)
		hash = fetched.Hash
		pageURL = fetched.FinalURL
	} else {
		hash = sources.HashContent([]byte(html))
	}

	page := parsePage(html)
	if page.title == "" {
		return nil, nil
	}

	l := &listing.Listing{
		ID:               a.listingID(pageURL),
		Marketplace:      a.Marketplace(),
		URL:              pageURL,
		Title:            page.title,
		Price:            page.price,
		Condition:        page.condition,
		Availability:     page.availability,
		Images:           page.images,
		ExtractedAt:      time.Now().UTC(),
		ExtractionMethod: string(sources.ChannelScraping),
		ExtractorVersion: a.Version(),
	}
	if page.sellerName != "" {
		l.Seller = &listing.Seller{Name: page.sellerName}
	}
	if page.sku != "" {
		l.ItemNumber = page.sku
	}

	prov := a.NewProvenance(page.confidence(), sources.FreshnessRecent, hash)
	prov.UserConsented = true
	prov.TermsCompliant = true
	l.Confidence = prov.Confidence

	return &sources.Extraction{Listing: *l, Provenance: prov}, nil
}

// listingID derives a stable id from the page URL, falling back to a content
// hash of the URL itself for unrecognized paths.
func (a *Adapter) listingID(pageURL string) string {
	if a.idPath != nil {
		if m := a.idPath.FindStringSubmatch(pageURL); len(m) == 2 {
			return m[1]
		}
	}
	return "url:" + sources.HashContent([]byte(pageURL))[:16]
}
