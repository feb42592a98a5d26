package orchestrator

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

// fakeAdapter is a scriptable adapter for orchestrator tests. Behavior is
// driven by the extract function and the available flag; calls counts how
// many times extraction actually ran.
type fakeAdapter struct {
	sources.Base

	available bool
	delay     time.Duration
	calls     int32
	extract   func(ctx context.Context, content, identifier string, opts sources.ExtractOptions) (*sources.Extraction, error)
	healthFn  func() sources.HealthSnapshot
}

func newFake(channel sources.Channel, name string) *fakeAdapter {
	return newFakeVersion(channel, name, "1.0.0")
}

func newFakeVersion(channel sources.Channel, name, version string) *fakeAdapter {
	return &fakeAdapter{
		Base: sources.NewBase(sources.Info{
			Channel:     channel,
			Marketplace: listing.MarketplaceEbay,
			Name:        name,
			Version:     version,
		}),
		available: true,
	}
}

func (f *fakeAdapter) CanHandle(string) bool { return true }

func (f *fakeAdapter) IsAvailable(context.Context) bool { return f.available }

func (f *fakeAdapter) Health() sources.HealthSnapshot {
	if f.healthFn != nil {
		return f.healthFn()
	}
	return f.Snapshot(f.available)
}

func (f *fakeAdapter) ExtractWithProvenance(ctx context.Context, content, identifier string, opts sources.ExtractOptions) (*sources.Extraction, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.extract == nil {
		return nil, nil
	}
	return f.extract(ctx, content, identifier, opts)
}

func (f *fakeAdapter) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

// returning scripts the fake to always yield the given extraction.
func (f *fakeAdapter) returning(ext *sources.Extraction) *fakeAdapter {
	f.extract = func(context.Context, string, string, sources.ExtractOptions) (*sources.Extraction, error) {
		return ext, nil
	}
	return f
}

// failing scripts the fake to always return err.
func (f *fakeAdapter) failing(err error) *fakeAdapter {
	f.extract = func(context.Context, string, string, sources.ExtractOptions) (*sources.Extraction, error) {
		return nil, err
	}
	return f
}

// panicking scripts the fake to panic with msg.
func (f *fakeAdapter) panicking(msg string) *fakeAdapter {
	f.extract = func(context.Context, string, string, sources.ExtractOptions) (*sources.Extraction, error) {
		panic(msg)
	}
	return f
}

// extraction builds a minimal valid listing carrying the fake's identity,
// with matching listing and provenance confidence.
func (f *fakeAdapter) extraction(title string, confidence float64) *sources.Extraction {
	now := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	return &sources.Extraction{
		Listing: listing.Listing{
			ID:               "itm-1",
			Marketplace:      listing.MarketplaceEbay,
			URL:              "https://www.ebay.com/itm/1",
			Title:            title,
			ExtractedAt:      now,
			ExtractionMethod: string(f.Channel()),
			Confidence:       confidence,
			ExtractorVersion: f.Version(),
		},
		Provenance: sources.Provenance{
			Channel:        f.Channel(),
			Tier:           f.Tier(),
			Confidence:     confidence,
			Freshness:      sources.FreshnessRealtime,
			SourceID:       f.SourceID(),
			ExtractedAt:    now,
			UserConsented:  true,
			TermsCompliant: true,
		},
	}
}

func withPrice(ext *sources.Extraction, amount, currency string) *sources.Extraction {
	ext.Price = &listing.Money{Amount: decimal.RequireFromString(amount), Currency: currency}
	return ext
}

func withCondition(ext *sources.Extraction, c listing.Condition) *sources.Extraction {
	ext.Condition = c
	return ext
}

func withSoldDate(ext *sources.Extraction, t time.Time) *sources.Extraction {
	ext.SoldDate = &t
	return ext
}
