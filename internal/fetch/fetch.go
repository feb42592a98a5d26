// Package fetch is the shared HTTP acquisition stack for adapters that pull
// their own source material: per-host token-bucket rate limiting, per-host
// circuit breaking, and content hashing for provenance.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout      = 15 * time.Second
	defaultPerHostRPS   = 2.0
	defaultPerHostBurst = 4
	defaultMaxBodyBytes = 4 << 20 // 4 MiB
	defaultUserAgent    = "marketsift/1.0"
)

// Config tunes the client. Zero values fall back to conservative defaults.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	PerHostRPS   float64
	PerHostBurst int
	MaxBodyBytes int64
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.PerHostRPS <= 0 {
		c.PerHostRPS = defaultPerHostRPS
	}
	if c.PerHostBurst <= 0 {
		c.PerHostBurst = defaultPerHostBurst
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

// Content is one fetched document plus the traceability fields adapters
// stamp into provenance.
type Content struct {
	Body       []byte
	Hash       string // hex SHA-256 of Body
	StatusCode int
	FinalURL   string
	MediaType  string
	FetchedAt  time.Time
}

// Client fetches documents with per-host rate limits and circuit breakers.
// Hosts that keep failing are cut off before they burn the extraction
// budget of every request in the chain.
type Client struct {
	cfg  Config
	http *http.Client

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	breakers map[string]*gobreaker.CircuitBreaker
}

// New builds a client. The zero Config is usable.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:      cfg,
		http:     &http.Client{Timeout: cfg.Timeout},
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Fetch GETs rawURL, honoring the host's rate limit and breaker state. A
// response at or above 400 is an error; 5xx responses and transport failures
// also count against the host's breaker.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Content, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()

	if err := c.limiter(host).Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", host, err)
	}

	out, err := c.breaker(host).Execute(func() (any, error) {
		return c.get(ctx, rawURL)
	})
	if err != nil {
		return nil, err
	}

	content := out.(*Content)
	if content.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", rawURL, content.StatusCode)
	}
	return content, nil
}

// get performs the request. Only transport failures and 5xx statuses return
// an error so client-side misses (404s) never trip the breaker.
func (c *Client) get(ctx context.Context, rawURL string) (*Content, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("fetch %s: upstream status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	sum := sha256.Sum256(body)
	mediaType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}

	log.Debug().
		Str("url", rawURL).
		Int("status", resp.StatusCode).
		Int("bytes", len(body)).
		Msg("Fetched document")

	return &Content{
		Body:       body,
		Hash:       hex.EncodeToString(sum[:]),
		StatusCode: resp.StatusCode,
		FinalURL:   resp.Request.URL.String(),
		MediaType:  mediaType,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// limiter returns or creates the token bucket for a host.
func (c *Client) limiter(host string) *rate.Limiter {
	c.mu.RLock()
	lim, exists := c.limiters[host]
	c.mu.RUnlock()
	if exists {
		return lim
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring the write lock.
	if lim, exists := c.limiters[host]; exists {
		return lim
	}
	lim = rate.NewLimiter(rate.Limit(c.cfg.PerHostRPS), c.cfg.PerHostBurst)
	c.limiters[host] = lim
	return lim
}

// breaker returns or creates the circuit breaker for a host. Trips on 3
// consecutive failures, or a failure rate above 5% once 20 requests have
// been observed.
func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.RLock()
	br, exists := c.breakers[host]
	c.mu.RUnlock()
	if exists {
		return br
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if br, exists := c.breakers[host]; exists {
		return br
	}

	settings := gobreaker.Settings{
		Name:     "fetch:" + host,
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Fetch breaker state change")
		},
	}
	br = gobreaker.NewCircuitBreaker(settings)
	c.breakers[host] = br
	return br
}
