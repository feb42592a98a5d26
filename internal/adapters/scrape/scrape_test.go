package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsift/marketsift/internal/fetch"
	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

const productPage = `<!DOCTYPE html>
<html>
<head>
<title>LEGO 6080 | eBay</title>
<meta property="og:title" content="LEGO Castle 6080 King's Castle" />
<meta property="og:image" content="https://i.ebayimg.com/og.jpg" />
<script type="application/ld+json">
{
  "@context": "https://schema.org",
  "@type": "Product",
  "name": "LEGO Castle 6080 King's Castle (1984)",
  "sku": "6080",
  "image": ["https://i.ebayimg.com/1.jpg", "https://i.ebayimg.com/2.jpg"],
  "offers": {
    "@type": "Offer",
    "price": "249.99",
    "priceCurrency": "USD",
    "availability": "https://schema.org/InStock",
    "itemCondition": "https://schema.org/UsedCondition",
    "seller": {"@type": "Organization", "name": "brickdealer"}
  }
}
</script>
</head>
<body>listing body</body>
</html>`

const metaOnlyPage = `<html><head>
<title>Vintage Lamp - Etsy</title>
<meta property="og:title" content="Vintage Brass Lamp">
<meta property="product:price:amount" content="75.00">
<meta property="product:price:currency" content="EUR">
<meta property="og:image" content="https://img.etsystatic.com/lamp.jpg">
</head><body></body></html>`

func newTestAdapter() *Adapter {
	return New(Config{Marketplace: listing.MarketplaceEbay})
}

func TestExtractFromJSONLD(t *testing.T) {
	a := newTestAdapter()

	ext, err := a.ExtractWithProvenance(context.Background(), productPage,
		"https://www.ebay.com/itm/265123456789", sources.ExtractOptions{})
	require.NoError(t, err)
	require.NotNil(t, ext)

	assert.Equal(t, "265123456789", ext.ID)
	assert.Equal(t, "LEGO Castle 6080 King's Castle (1984)", ext.Title)
	require.NotNil(t, ext.Price)
	assert.True(t, ext.Price.Amount.Equal(decimal.RequireFromString("249.99")))
	assert.Equal(t, "USD", ext.Price.Currency)
	assert.Equal(t, listing.AvailabilityInStock, ext.Availability)
	assert.Equal(t, listing.ConditionUsedGood, ext.Condition)
	assert.Equal(t, []string{"https://i.ebayimg.com/1.jpg", "https://i.ebayimg.com/2.jpg"}, ext.Images)
	require.NotNil(t, ext.Seller)
	assert.Equal(t, "brickdealer", ext.Seller.Name)
	assert.Equal(t, "6080", ext.ItemNumber)

	assert.Equal(t, sources.ChannelScraping, ext.Provenance.Channel)
	assert.Equal(t, 3, ext.Provenance.Tier)
	// JSON-LD with price, images and availability scores the full band.
	assert.InDelta(t, 0.85, ext.Confidence, 1e-9)
	assert.Equal(t, sources.HashContent([]byte(productPage)), ext.Provenance.RawDataHash)
}

func TestExtractFallsBackToMetaTags(t *testing.T) {
	a := New(Config{Marketplace: listing.MarketplaceEtsy})

	ext, err := a.ExtractWithProvenance(context.Background(), metaOnlyPage,
		"https://www.etsy.com/listing/987654321/vintage-lamp", sources.ExtractOptions{})
	require.NoError(t, err)
	require.NotNil(t, ext)

	assert.Equal(t, "987654321", ext.ID)
	assert.Equal(t, "Vintage Brass Lamp", ext.Title)
	require.NotNil(t, ext.Price)
	assert.True(t, ext.Price.Amount.Equal(decimal.RequireFromString("75.00")))
	assert.Equal(t, "EUR", ext.Price.Currency)
	assert.Equal(t, []string{"https://img.etsystatic.com/lamp.jpg"}, ext.Images)

	// Meta-only parses sit lower in the band than JSON-LD ones.
	assert.Less(t, ext.Confidence, 0.85)
	assert.GreaterOrEqual(t, ext.Confidence, 0.70)
}

func TestExtractReturnsNilOnUnparseablePage(t *testing.T) {
	a := newTestAdapter()

	ext, err := a.ExtractWithProvenance(context.Background(), `<html><body>nothing here</body></html>`,
		"https://www.ebay.com/itm/1", sources.ExtractOptions{})
	require.NoError(t, err)
	assert.Nil(t, ext)
}

func TestExtractFetchesPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(productPage))
	}))
	defer srv.Close()

	a := New(Config{
		Marketplace: listing.MarketplaceEbay,
		Fetcher:     fetch.New(fetch.Config{PerHostRPS: 100, PerHostBurst: 100}),
	})

	ext, err := a.ExtractWithProvenance(context.Background(), "", srv.URL+"/itm/265123456789", sources.ExtractOptions{})
	require.NoError(t, err)
	require.NotNil(t, ext)
	assert.Equal(t, "265123456789", ext.ID)
	assert.NotEmpty(t, ext.Provenance.RawDataHash)
}

func TestExtractNoContentNoFetcher(t *testing.T) {
	a := newTestAdapter()

	ext, err := a.ExtractWithProvenance(context.Background(), "", "https://www.ebay.com/itm/1", sources.ExtractOptions{})
	assert.Error(t, err)
	assert.Nil(t, ext)
}

func TestListingIDFallsBackToURLHash(t *testing.T) {
	a := newTestAdapter()

	id := a.listingID("https://www.ebay.com/some/odd/path")
	assert.True(t, len(id) > 4)
	assert.Contains(t, id, "url:")
	assert.Equal(t, id, a.listingID("https://www.ebay.com/some/odd/path"), "fallback id must be stable")
}

func TestCanHandleHosts(t *testing.T) {
	a := newTestAdapter()

	assert.True(t, a.CanHandle("https://www.ebay.com/itm/1"))
	assert.True(t, a.CanHandle("https://ebay.de/itm/2"))
	assert.False(t, a.CanHandle("https://walmart.com/ip/3"))
	assert.False(t, a.CanHandle("not a url"))
}

func TestFindProductInGraph(t *testing.T) {
	block := `{"@context": "https://schema.org", "@graph": [
		{"@type": "BreadcrumbList"},
		{"@type": "Product", "name": "Graph Product"}
	]}`
	product, ok := findProduct(block)
	require.True(t, ok)
	assert.Equal(t, "Graph Product", product["name"])

	_, ok = findProduct(`{"@type": "WebPage"}`)
	assert.False(t, ok)

	_, ok = findProduct(`{invalid json`)
	assert.False(t, ok)
}

func TestSchemaTokenMapping(t *testing.T) {
	assert.Equal(t, listing.AvailabilityInStock, schemaAvailability("http://schema.org/InStock"))
	assert.Equal(t, listing.AvailabilitySold, schemaAvailability("SoldOut"))
	assert.Equal(t, listing.AvailabilityUnknown, schemaAvailability("https://schema.org/MadeToOrder"))
	assert.Equal(t, listing.ConditionNew, schemaCondition("https://schema.org/NewCondition"))
	assert.Equal(t, listing.Condition(""), schemaCondition(""))
}
