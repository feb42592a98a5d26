package llmextract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

// fakeClient scripts one completion per test.
type fakeClient struct {
	reply string
	err   error
	ready bool

	lastPrompt string
}

func (f *fakeClient) Complete(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.reply, f.err
}

func (f *fakeClient) Ready(context.Context) bool { return f.ready }

func TestExtractFromModelReply(t *testing.T) {
	client := &fakeClient{
		ready: true,
		reply: `{"title": "Vintage Omega Seamaster", "price": "450.00", "currency": "usd",
			"condition": "used_good", "availability": "in_stock",
			"itemNumber": "295552341988", "sellerName": "watchdealer99", "confidence": 0.7}`,
	}
	a := New(Config{Marketplace: listing.MarketplaceEbay, Client: client})

	ext, err := a.ExtractWithProvenance(context.Background(), "Omega Seamaster for sale, $450, used", "https://www.ebay.com/itm/295552341988", sources.ExtractOptions{})
	require.NoError(t, err)
	require.NotNil(t, ext)

	assert.Equal(t, "Vintage Omega Seamaster", ext.Title)
	assert.Equal(t, "295552341988", ext.ID)
	require.NotNil(t, ext.Price)
	assert.Equal(t, "450", ext.Price.Amount.String())
	assert.Equal(t, "USD", ext.Price.Currency)
	assert.Equal(t, listing.ConditionUsedGood, ext.Condition)
	assert.Equal(t, "watchdealer99", ext.Seller.Name)

	assert.Equal(t, sources.ChannelLLMExtraction, ext.Provenance.Channel)
	assert.Equal(t, 4, ext.Provenance.Tier)
	assert.InDelta(t, 0.7, ext.Confidence, 0.001)
	assert.Contains(t, client.lastPrompt, "Omega Seamaster for sale")
}

func TestOverconfidentModelIsClampedToTierCeiling(t *testing.T) {
	client := &fakeClient{ready: true, reply: `{"title": "X", "confidence": 0.99}`}
	a := New(Config{Marketplace: listing.MarketplaceEbay, Client: client})

	ext, err := a.ExtractWithProvenance(context.Background(), "text", "u", sources.ExtractOptions{})
	require.NoError(t, err)
	require.NotNil(t, ext)
	assert.InDelta(t, 0.80, ext.Confidence, 0.001)
	assert.Equal(t, 0.99, ext.Provenance.Metadata["selfReportedConfidence"])
}

func TestFencedReplyIsUnwrapped(t *testing.T) {
	client := &fakeClient{ready: true, reply: "Here you go:\n```json\n{\"title\": \"Y\", \"confidence\": 0.6}\n```"}
	a := New(Config{Marketplace: listing.MarketplaceEbay, Client: client})

	ext, err := a.ExtractWithProvenance(context.Background(), "text", "u", sources.ExtractOptions{})
	require.NoError(t, err)
	require.NotNil(t, ext)
	assert.Equal(t, "Y", ext.Title)
}

func TestGarbageReplyErrors(t *testing.T) {
	client := &fakeClient{ready: true, reply: "I could not find a listing, sorry!"}
	a := New(Config{Marketplace: listing.MarketplaceEbay, Client: client})

	ext, err := a.ExtractWithProvenance(context.Background(), "text", "u", sources.ExtractOptions{})
	require.Error(t, err)
	assert.Nil(t, ext)
}

func TestEmptyTitleIsAMiss(t *testing.T) {
	client := &fakeClient{ready: true, reply: `{"title": "", "confidence": 0.9}`}
	a := New(Config{Marketplace: listing.MarketplaceEbay, Client: client})

	ext, err := a.ExtractWithProvenance(context.Background(), "text", "u", sources.ExtractOptions{})
	require.NoError(t, err)
	assert.Nil(t, ext)
}

func TestCompletionErrorSurfaces(t *testing.T) {
	client := &fakeClient{ready: true, err: errors.New("model overloaded")}
	a := New(Config{Marketplace: listing.MarketplaceEbay, Client: client})

	ext, err := a.ExtractWithProvenance(context.Background(), "text", "u", sources.ExtractOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
	assert.Nil(t, ext)
	assert.InDelta(t, 1.0, a.Health().RecentFailureRate, 0.001)
}

func TestAvailabilityFollowsBackend(t *testing.T) {
	client := &fakeClient{ready: false}
	a := New(Config{Marketplace: listing.MarketplaceEbay, Client: client})
	assert.False(t, a.IsAvailable(context.Background()))
	assert.Equal(t, "model backend unreachable", a.Health().StatusMessage)

	client.ready = true
	assert.True(t, a.IsAvailable(context.Background()))
}

func TestHTTPClientRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/healthz":
			w.WriteHeader(http.StatusOK)
		case "/complete":
			if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
				w.WriteHeader(http.StatusUnsupportedMediaType)
				return
			}
			w.Write([]byte(`{"text": "{\"title\": \"Z\", \"confidence\": 0.65}"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "extractor-small", 0)
	assert.True(t, c.Ready(context.Background()))

	text, err := c.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Contains(t, text, `"title"`)
}
