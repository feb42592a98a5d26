package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/metrics"
	"github.com/marketsift/marketsift/internal/orchestrator"
	"github.com/marketsift/marketsift/internal/sources"
)

// stubAdapter serves canned extractions for handler tests.
type stubAdapter struct {
	sources.Base
	ext *sources.Extraction
	err error
}

func newStub(channel sources.Channel, title string, confidence float64) *stubAdapter {
	s := &stubAdapter{
		Base: sources.NewBase(sources.Info{
			Channel:     channel,
			Marketplace: listing.MarketplaceEbay,
			Name:        "stub-" + string(channel),
			Version:     "1.0.0",
		}),
	}
	if title != "" {
		s.ext = &sources.Extraction{
			Listing: listing.Listing{
				ID:               "itm-1",
				Marketplace:      listing.MarketplaceEbay,
				URL:              "https://www.ebay.com/itm/1",
				Title:            title,
				ExtractedAt:      time.Now().UTC(),
				ExtractionMethod: string(channel),
				Confidence:       confidence,
				ExtractorVersion: "1.0.0",
			},
			Provenance: sources.Provenance{
				Channel:     channel,
				Tier:        sources.TierFor(channel),
				Confidence:  confidence,
				Freshness:   sources.FreshnessRecent,
				SourceID:    "stub-" + string(channel) + "@1.0.0",
				ExtractedAt: time.Now().UTC(),
			},
		}
	}
	return s
}

func (s *stubAdapter) CanHandle(string) bool            { return true }
func (s *stubAdapter) IsAvailable(context.Context) bool { return true }
func (s *stubAdapter) Health() sources.HealthSnapshot   { return s.Snapshot(true) }

func (s *stubAdapter) ExtractWithProvenance(context.Context, string, string, sources.ExtractOptions) (*sources.Extraction, error) {
	return s.ext, s.err
}

func newTestServer(t *testing.T, adapters ...sources.Adapter) *Server {
	t.Helper()
	orch := orchestrator.New(nil)
	for _, a := range adapters {
		orch.RegisterAdapter(listing.MarketplaceEbay, a)
	}
	srv := &Server{
		router:  mux.NewRouter(),
		config:  DefaultServerConfig(),
		orch:    orch,
		metrics: metrics.New(),
	}
	srv.setupRoutes()
	return srv
}

func postJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestExtractEndpoint(t *testing.T) {
	srv := newTestServer(t, newStub(sources.ChannelScraping, "Vintage Omega Seamaster", 0.8))

	rec := postJSON(t, srv, "/extract", `{"marketplace": "ebay", "identifier": "https://www.ebay.com/itm/1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var res orchestrator.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Data)
	assert.Equal(t, "Vintage Omega Seamaster", res.Data.Title)
	assert.False(t, res.FallbackUsed)
	require.Len(t, res.AttemptedSources, 1)
	assert.True(t, res.AttemptedSources[0].Success)
}

func TestExtractRejectsUnknownMarketplace(t *testing.T) {
	srv := newTestServer(t)

	rec := postJSON(t, srv, "/extract", `{"marketplace": "bonanza", "identifier": "u"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var er errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &er))
	assert.Contains(t, er.Error, "unknown marketplace")
}

func TestExtractRejectsMissingIdentifier(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv, "/extract", `{"marketplace": "ebay"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractRejectsUnknownChannelFilter(t *testing.T) {
	srv := newTestServer(t)
	rec := postJSON(t, srv, "/extract",
		`{"marketplace": "ebay", "identifier": "u", "options": {"includeChannels": ["telepathy"]}}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "telepathy")
}

func TestExtractAllEndpoint(t *testing.T) {
	srv := newTestServer(t,
		newStub(sources.ChannelOfficialAPI, "A", 0.95),
		newStub(sources.ChannelScraping, "B", 0.8),
	)

	rec := postJSON(t, srv, "/extract/all", `{"marketplace": "ebay", "identifier": "u"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res orchestrator.MultiSourceResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.MergedData)
	assert.Equal(t, "A", res.MergedData.Title)
	assert.Len(t, res.Sources, 2)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "title", res.Conflicts[0].Field)
	assert.Equal(t, "highest_tier", res.Conflicts[0].ResolutionMethod)
}

func TestExtractStreamEndpoint(t *testing.T) {
	srv := newTestServer(t, newStub(sources.ChannelScraping, "X", 0.8))

	rec := postJSON(t, srv, "/extract/stream",
		`{"marketplace": "ebay", "identifiers": ["https://www.ebay.com/itm/1", "https://www.ebay.com/itm/2"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(rec.Body)
	var lines []streamLine
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			continue
		}
		var line streamLine
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "https://www.ebay.com/itm/1", lines[0].Identifier)
	assert.Equal(t, "X", lines[0].Result.Data.Title)
	assert.Equal(t, "https://www.ebay.com/itm/2", lines[1].Identifier)
}

func TestAdaptersEndpoint(t *testing.T) {
	srv := newTestServer(t, newStub(sources.ChannelScraping, "X", 0.8))

	req := httptest.NewRequest(http.MethodGet, "/adapters/ebay", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Marketplace string                       `json:"marketplace"`
		Adapters    []orchestrator.AdapterStatus `json:"adapters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ebay", body.Marketplace)
	require.Len(t, body.Adapters, 1)
	assert.Equal(t, sources.ChannelScraping, body.Adapters[0].Channel)
	assert.True(t, body.Adapters[0].Available)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, newStub(sources.ChannelScraping, "X", 0.8))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"scraping"`)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, newStub(sources.ChannelScraping, "X", 0.8))
	postJSON(t, srv, "/extract", `{"marketplace": "ebay", "identifier": "u"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketsift_http_requests_total")
}

func TestNotFoundRoute(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
