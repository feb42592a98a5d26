// Package browserext extracts listings from payloads captured by the
// marketsift browser extension. The extension serializes what the user is
// looking at and relays it through a local bridge; the adapter trusts the
// capture but not the capturer's parsing, which is what keeps it at tier 2.
package browserext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

const (
	adapterVersion = "1.2.0"

	// availabilityProbeTimeout bounds the bridge ping so an absent bridge
	// never eats into the extraction budget.
	availabilityProbeTimeout = 500 * time.Millisecond
)

// Config wires the adapter to one marketplace and, optionally, the local
// bridge the extension posts captures to.
type Config struct {
	Marketplace listing.Marketplace
	// BridgeURL is the base URL of the local capture bridge. Empty means
	// captures arrive inline as content and availability is not probed.
	BridgeURL string
	// HTTPClient overrides the probe client, mainly for tests.
	HTTPClient *http.Client
}

// Adapter is the tier-2 browser_extension source.
type Adapter struct {
	sources.Base

	bridgeURL string
	client    *http.Client
}

// New builds the adapter for a marketplace.
func New(cfg Config) *Adapter {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: availabilityProbeTimeout}
	}
	return &Adapter{
		Base: sources.NewBase(sources.Info{
			Channel:            sources.ChannelBrowserExtension,
			Marketplace:        cfg.Marketplace,
			Name:               string(cfg.Marketplace) + "-extension",
			Version:            adapterVersion,
			RequiresUserAction: true,
		}),
		bridgeURL: strings.TrimRight(cfg.BridgeURL, "/"),
		client:    client,
	}
}

// capture is the extension's wire format: the page the user had open plus
// the fields its content script pulled out.
type capture struct {
	URL        string    `json:"url"`
	CapturedAt time.Time `json:"capturedAt"`
	Listing    struct {
		ID           string   `json:"id"`
		Title        string   `json:"title"`
		Price        *money   `json:"price"`
		ShippingCost *money   `json:"shippingCost"`
		Condition    string   `json:"condition"`
		Availability string   `json:"availability"`
		ItemNumber   string   `json:"itemNumber"`
		Images       []string `json:"images"`
		Quantity     *int     `json:"quantity"`
		Seller       *struct {
			ID       string   `json:"id"`
			Name     string   `json:"name"`
			Rating   *float64 `json:"rating"`
			Verified *bool    `json:"verified"`
		} `json:"seller"`
	} `json:"listing"`
}

type money struct {
	Amount   json.Number `json:"amount"`
	Currency string      `json:"currency"`
}

// CanHandle accepts capture payloads; identifiers alone carry no capture.
func (a *Adapter) CanHandle(identifier string) bool {
	trimmed := strings.TrimSpace(identifier)
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "http")
}

// IsAvailable pings the bridge when one is configured. Inline captures need
// no bridge, so a bridgeless adapter is always ready.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	if a.bridgeURL == "" {
		return true
	}
	probeCtx, cancel := context.WithTimeout(ctx, availabilityProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, a.bridgeURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Health reports the rolling extraction outcomes.
func (a *Adapter) Health() sources.HealthSnapshot {
	snap := a.Snapshot(a.IsAvailable(context.Background()))
	if a.bridgeURL != "" && !snap.Available {
		snap.StatusMessage = "capture bridge unreachable"
	}
	return snap
}

// ExtractWithProvenance decodes a capture payload into a normalized listing.
// content carries the capture JSON; when empty, the identifier is fetched
// from the bridge's capture store by URL.
func (a *Adapter) ExtractWithProvenance(ctx context.Context, content, identifier string, opts sources.ExtractOptions) (ext *sources.Extraction, err error) {
	defer func() { a.RecordOutcome(ext, err) }()

	raw := []byte(content)
	if len(raw) == 0 {
		raw, err = a.fetchCapture(ctx, identifier)
		if err != nil {
			return nil, err
		}
		if raw == nil {
			return nil, nil
		}
	}

	var c capture
	if uerr := json.Unmarshal(raw, &c); uerr != nil {
		return nil, fmt.Errorf("decode capture: %w", uerr)
	}
	if c.Listing.Title == "" {
		return nil, nil
	}

	l := a.toListing(&c, identifier)
	prov := a.NewProvenance(captureConfidence(&c), sources.FreshnessRecent, sources.HashContent(raw))
	prov.UserConsented = true
	prov.TermsCompliant = true
	if !c.CapturedAt.IsZero() {
		prov.Metadata = map[string]any{"capturedAt": c.CapturedAt.UTC().Format(time.RFC3339)}
	}
	l.Confidence = prov.Confidence

	return &sources.Extraction{Listing: *l, Provenance: prov}, nil
}

// fetchCapture asks the bridge for the most recent capture of a URL. A 404
// means the user never captured that page, which is a miss, not an error.
func (a *Adapter) fetchCapture(ctx context.Context, identifier string) ([]byte, error) {
	if a.bridgeURL == "" {
		return nil, errors.New("capture content is required without a bridge")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.bridgeURL+"/captures?url="+url.QueryEscape(strings.TrimSpace(identifier)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("capture bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("capture bridge: status %d", resp.StatusCode)
	}

	const maxCapture = 1 << 20
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxCapture))
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	return raw, nil
}

// toMoney converts the capture's loose number-or-string amount. Unparseable
// amounts drop the price rather than failing the capture.
func (m *money) toMoney() *listing.Money {
	if m == nil || m.Amount == "" {
		return nil
	}
	amount, err := decimal.NewFromString(m.Amount.String())
	if err != nil || amount.IsNegative() {
		return nil
	}
	currency := strings.ToUpper(strings.TrimSpace(m.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &listing.Money{Amount: amount, Currency: currency}
}

func (a *Adapter) toListing(c *capture, identifier string) *listing.Listing {
	pageURL := c.URL
	if pageURL == "" {
		pageURL = identifier
	}
	id := c.Listing.ID
	if id == "" {
		id = c.Listing.ItemNumber
	}
	if id == "" {
		id = "capture:" + sources.HashContent([]byte(pageURL))[:16]
	}

	l := &listing.Listing{
		ID:               id,
		Marketplace:      a.Marketplace(),
		URL:              pageURL,
		Title:            c.Listing.Title,
		ItemNumber:       c.Listing.ItemNumber,
		Images:           c.Listing.Images,
		ExtractedAt:      time.Now().UTC(),
		ExtractionMethod: string(sources.ChannelBrowserExtension),
		ExtractorVersion: a.Version(),
	}
	l.Price = c.Listing.Price.toMoney()
	l.ShippingCost = c.Listing.ShippingCost.toMoney()
	if cond, ok := listing.ParseCondition(c.Listing.Condition); ok {
		l.Condition = cond
	}
	if avail, ok := listing.ParseAvailability(c.Listing.Availability); ok {
		l.Availability = avail
	}
	if c.Listing.Quantity != nil && *c.Listing.Quantity >= 0 {
		q := *c.Listing.Quantity
		l.QuantityAvailable = &q
	}
	if s := c.Listing.Seller; s != nil && (s.Name != "" || s.ID != "") {
		l.Seller = &listing.Seller{ID: s.ID, Name: s.Name, Rating: s.Rating, Verified: s.Verified}
	}
	return l
}

// captureConfidence starts mid-range and credits the structured fields the
// content script managed to isolate.
func captureConfidence(c *capture) float64 {
	confidence := 0.84
	if c.Listing.Price != nil {
		confidence += 0.04
	}
	if c.Listing.Condition != "" {
		confidence += 0.02
	}
	if c.Listing.ItemNumber != "" || c.Listing.ID != "" {
		confidence += 0.03
	}
	return confidence
}
