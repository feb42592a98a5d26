package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveAttemptCountsOutcomes(t *testing.T) {
	r := New()

	r.ObserveAttempt("ebay", "official_api", true, 120*time.Millisecond)
	r.ObserveAttempt("ebay", "official_api", true, 80*time.Millisecond)
	r.ObserveAttempt("ebay", "scraping", false, 2*time.Second)

	ok := r.ExtractAttempts.WithLabelValues("ebay", "official_api", "success")
	failed := r.ExtractAttempts.WithLabelValues("ebay", "scraping", "failure")
	assert.Equal(t, 2.0, testutil.ToFloat64(ok))
	assert.Equal(t, 1.0, testutil.ToFloat64(failed))
}

func TestObserveCallRecordsFallbacks(t *testing.T) {
	r := New()

	r.ObserveCall("ebay", 3, true)
	r.ObserveCall("ebay", 1, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.FallbacksUsed.WithLabelValues("ebay")))
}

func TestNilRegistryIsNoOp(t *testing.T) {
	var r *Registry

	r.ObserveAttempt("ebay", "scraping", true, time.Second)
	r.ObserveCall("ebay", 1, false)
	r.ObserveMerge("ebay", 2, []string{"price"})
	r.SetAdapterReliability("ebay", "scraping", 0.8)
	r.RecordCacheHit("extract")
	r.RecordCacheMiss("extract")
	r.ObserveRequest("/health", "GET", "200", time.Millisecond)
	assert.NotNil(t, r.Handler())
	assert.Nil(t, r.Gatherer())
}

func TestHandlerServesExposition(t *testing.T) {
	r := New()
	r.RecordCacheHit("extract")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "marketsift_cache_hits_total"))
}
