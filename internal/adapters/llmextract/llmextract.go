// Package llmextract is the last-resort extraction channel: page text is
// handed to a language model with instructions to return structured listing
// JSON. Tier 4 — the model fabricates fields often enough that its output is
// never trusted over any other channel.
package llmextract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

const (
	adapterVersion = "0.9.0"

	// maxPromptChars bounds how much page text goes into one completion.
	maxPromptChars = 6000
)

// Client is the completion backend. Implementations wrap whatever model
// endpoint the deployment runs; tests use a canned fake.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Ready(ctx context.Context) bool
}

// Config wires the adapter to one marketplace and its model backend.
type Config struct {
	Marketplace listing.Marketplace
	Client      Client
}

// Adapter is the tier-4 llm_extraction source.
type Adapter struct {
	sources.Base

	client Client
}

// New builds the adapter for a marketplace.
func New(cfg Config) *Adapter {
	return &Adapter{
		Base: sources.NewBase(sources.Info{
			Channel:     sources.ChannelLLMExtraction,
			Marketplace: cfg.Marketplace,
			Name:        string(cfg.Marketplace) + "-llm",
			Version:     adapterVersion,
		}),
		client: cfg.Client,
	}
}

// CanHandle accepts anything with text to work on; the model is the parser.
func (a *Adapter) CanHandle(identifier string) bool {
	return strings.TrimSpace(identifier) != ""
}

// IsAvailable reports whether the model backend is reachable.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	return a.client != nil && a.client.Ready(ctx)
}

// Health reports the rolling extraction outcomes.
func (a *Adapter) Health() sources.HealthSnapshot {
	available := a.client != nil && a.client.Ready(context.Background())
	snap := a.Snapshot(available)
	if !available {
		snap.StatusMessage = "model backend unreachable"
	}
	return snap
}

// reply is the JSON shape the prompt instructs the model to emit.
type reply struct {
	Title        string      `json:"title"`
	Price        json.Number `json:"price"`
	Currency     string      `json:"currency"`
	Condition    string      `json:"condition"`
	Availability string      `json:"availability"`
	ItemNumber   string      `json:"itemNumber"`
	SellerName   string      `json:"sellerName"`
	Confidence   float64     `json:"confidence"`
}

const promptTemplate = `Extract the marketplace listing from the page text below.
Reply with a single JSON object and nothing else, using exactly these keys:
title, price, currency, condition, availability, itemNumber, sellerName, confidence.
condition must be one of: new, used_like_new, used_very_good, used_good, used_acceptable, refurbished, unknown.
availability must be one of: in_stock, sold, out_of_stock, unavailable, unknown.
confidence is your own 0-1 estimate. Use null for anything the text does not state.

PAGE TEXT:
%s`

// ExtractWithProvenance asks the model to structure the page text. content
// must carry the text; this channel never fetches on its own.
func (a *Adapter) ExtractWithProvenance(ctx context.Context, content, identifier string, opts sources.ExtractOptions) (ext *sources.Extraction, err error) {
	defer func() { a.RecordOutcome(ext, err) }()

	if a.client == nil {
		return nil, errors.New("no model backend configured")
	}
	text := strings.TrimSpace(content)
	if text == "" {
		return nil, errors.New("page text is required")
	}
	if len(text) > maxPromptChars {
		text = text[:maxPromptChars]
	}

	raw, cerr := a.client.Complete(ctx, fmt.Sprintf(promptTemplate, text))
	if cerr != nil {
		return nil, fmt.Errorf("model completion: %w", cerr)
	}

	var r reply
	if uerr := json.Unmarshal(extractJSON(raw), &r); uerr != nil {
		return nil, fmt.Errorf("model reply is not the requested JSON: %w", uerr)
	}
	if r.Title == "" {
		return nil, nil
	}

	id := r.ItemNumber
	if id == "" {
		id = "llm:" + sources.HashContent([]byte(identifier+r.Title))[:16]
	}

	l := &listing.Listing{
		ID:               id,
		Marketplace:      a.Marketplace(),
		URL:              identifier,
		Title:            r.Title,
		ItemNumber:       r.ItemNumber,
		ExtractedAt:      time.Now().UTC(),
		ExtractionMethod: string(sources.ChannelLLMExtraction),
		ExtractorVersion: a.Version(),
	}
	if r.Price != "" {
		if amount, aerr := decimal.NewFromString(r.Price.String()); aerr == nil && !amount.IsNegative() {
			currency := strings.ToUpper(strings.TrimSpace(r.Currency))
			if currency == "" {
				currency = "USD"
			}
			l.Price = &listing.Money{Amount: amount, Currency: currency}
		}
	}
	if cond, ok := listing.ParseCondition(r.Condition); ok {
		l.Condition = cond
	}
	if avail, ok := listing.ParseAvailability(r.Availability); ok {
		l.Availability = avail
	}
	if r.SellerName != "" {
		l.Seller = &listing.Seller{Name: r.SellerName}
	}

	// The model's self-estimate is a starting point, never more: clamping
	// into the tier-4 range keeps an overconfident model at or below 0.80.
	prov := a.NewProvenance(r.Confidence, sources.FreshnessRecent, sources.HashContent([]byte(content)))
	prov.TermsCompliant = true
	prov.Metadata = map[string]any{"selfReportedConfidence": r.Confidence}
	l.Confidence = prov.Confidence

	return &sources.Extraction{Listing: *l, Provenance: prov}, nil
}

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// extractJSON tolerates the two ways models wrap replies: code fences and
// prose around a JSON object.
func extractJSON(raw string) []byte {
	raw = strings.TrimSpace(raw)
	if m := fencedJSON.FindStringSubmatch(raw); len(m) == 2 {
		return []byte(m[1])
	}
	if start := strings.IndexByte(raw, '{'); start >= 0 {
		if end := strings.LastIndexByte(raw, '}'); end > start {
			return []byte(raw[start : end+1])
		}
	}
	return []byte(raw)
}
