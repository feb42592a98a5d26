package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

func TestHealthReportIsolatesPanickingAdapter(t *testing.T) {
	o := New(nil)
	healthy := newFake(sources.ChannelOfficialAPI, "api")
	healthy.RecordSuccess()
	broken := newFake(sources.ChannelScraping, "scraper")
	broken.healthFn = func() sources.HealthSnapshot { panic("bridge gone") }
	o.RegisterAdapter(listing.MarketplaceEbay, healthy)
	o.RegisterAdapter(listing.MarketplaceEbay, broken)

	report := o.GetHealthReport()

	require.Contains(t, report, listing.MarketplaceEbay)
	byChannel := report[listing.MarketplaceEbay]
	require.Len(t, byChannel, 2)

	good := byChannel[sources.ChannelOfficialAPI]
	assert.True(t, good.Available)
	assert.Equal(t, 0.0, good.RecentFailureRate)
	assert.Equal(t, 1.0, good.EstimatedReliability)
	assert.NotNil(t, good.LastSuccessfulExtraction)

	bad := byChannel[sources.ChannelScraping]
	assert.False(t, bad.Available)
	assert.Equal(t, 1.0, bad.RecentFailureRate)
	assert.Equal(t, 0.0, bad.EstimatedReliability)
	assert.Equal(t, "Health check failed: bridge gone", bad.StatusMessage)
}

func TestHealthReportSpansMarketplaces(t *testing.T) {
	o := New(nil)
	o.RegisterAdapter(listing.MarketplaceEbay, newFake(sources.ChannelScraping, "ebay-scraper"))
	amazonFake := &fakeAdapter{
		Base: sources.NewBase(sources.Info{
			Channel:     sources.ChannelScraping,
			Marketplace: listing.MarketplaceAmazon,
			Name:        "amazon-scraper",
			Version:     "1.0.0",
		}),
		available: true,
	}
	o.RegisterAdapter(listing.MarketplaceAmazon, amazonFake)

	report := o.GetHealthReport()
	assert.Len(t, report, 2)
	assert.Contains(t, report[listing.MarketplaceEbay], sources.ChannelScraping)
	assert.Contains(t, report[listing.MarketplaceAmazon], sources.ChannelScraping)
}

func TestHealthReportIncludesDisabledAdapters(t *testing.T) {
	o := New(nil)
	f := newFake(sources.ChannelScraping, "scraper")
	o.RegisterAdapter(listing.MarketplaceEbay, f)
	o.DisableAdapter(listing.MarketplaceEbay, sources.ChannelScraping)

	report := o.GetHealthReport()
	assert.Contains(t, report[listing.MarketplaceEbay], sources.ChannelScraping)
}

func TestHealthReportCachesSnapshotsOnRecords(t *testing.T) {
	o := New(nil)
	f := newFake(sources.ChannelScraping, "scraper")
	f.RecordFailure()
	o.RegisterAdapter(listing.MarketplaceEbay, f)

	o.mu.RLock()
	rec := o.adapters[listing.MarketplaceEbay][sources.ChannelScraping]
	o.mu.RUnlock()
	assert.Nil(t, rec.lastHealth)

	report := o.GetHealthReport()

	o.mu.RLock()
	cached := rec.lastHealth
	checkedAt := rec.lastHealthCheck
	o.mu.RUnlock()

	require.NotNil(t, cached)
	assert.Equal(t, report[listing.MarketplaceEbay][sources.ChannelScraping], *cached)
	assert.False(t, checkedAt.IsZero())
}

func TestHealthReportEmptyRegistry(t *testing.T) {
	o := New(nil)
	assert.Empty(t, o.GetHealthReport())
}
