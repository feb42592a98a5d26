package orchestrator

import (
	"time"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

const (
	// DefaultTimeout is the total budget for one GetData or GetFromAllSources
	// call when the caller does not set one.
	DefaultTimeout = 30 * time.Second

	// DefaultRequiredConfidence is the acceptance floor applied when the
	// caller does not set one.
	DefaultRequiredConfidence = 0.5

	// attemptFloor is the minimum deadline any single attempt receives, even
	// when the remaining total budget is smaller.
	attemptFloor = time.Second
)

// Options steers a single orchestrator call. The zero value means: every
// tier, every channel, fallback allowed, 0.5 confidence floor, 30s budget.
type Options struct {
	// PreferredTiers restricts attempts to adapters in these tiers. Empty
	// means all tiers.
	PreferredTiers []int

	// RequiredConfidence is the minimum listing confidence to accept. Zero
	// means the 0.5 default; a negative value accepts anything.
	RequiredConfidence float64

	// DisableFallback stops GetData after the first attempt regardless of
	// its outcome.
	DisableFallback bool

	// Timeout is the total budget for the call.
	Timeout time.Duration

	// IncludeChannels, when non-empty, keeps only adapters on the listed
	// channels. ExcludeChannels drops adapters on the listed channels and is
	// applied after the include filter.
	IncludeChannels []sources.Channel
	ExcludeChannels []sources.Channel

	// Content is optional pre-fetched source material (an HTML document, a
	// CSV export, a raw email). When set, adapters parse it instead of
	// fetching the identifier themselves.
	Content string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RequiredConfidence == 0 {
		o.RequiredConfidence = DefaultRequiredConfidence
	}
	return o
}

// allowsTier applies the PreferredTiers filter.
func (o Options) allowsTier(tier int) bool {
	if len(o.PreferredTiers) == 0 {
		return true
	}
	for _, t := range o.PreferredTiers {
		if t == tier {
			return true
		}
	}
	return false
}

// allowsChannel applies the include and exclude channel filters.
func (o Options) allowsChannel(c sources.Channel) bool {
	if len(o.IncludeChannels) > 0 {
		found := false
		for _, in := range o.IncludeChannels {
			if in == c {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, ex := range o.ExcludeChannels {
		if ex == c {
			return false
		}
	}
	return true
}

// AttemptRecord is one entry in the ordered audit trail of a GetData call.
type AttemptRecord struct {
	Channel    sources.Channel `json:"channel"`
	Tier       int             `json:"tier"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	DurationMS int64           `json:"durationMs"`
}

// Result is the outcome of a single-source-with-fallback call. Data is nil
// when no adapter produced an acceptable listing; the audit explains why.
type Result struct {
	Data             *sources.Extraction `json:"data"`
	AttemptedSources []AttemptRecord     `json:"attemptedSources"`
	FallbackUsed     bool                `json:"fallbackUsed"`
	TotalDurationMS  int64               `json:"totalDurationMs"`
}

// SourceResult pairs one successful source's listing with its provenance.
type SourceResult struct {
	Provenance sources.Provenance `json:"provenance"`
	Listing    *listing.Listing   `json:"listing"`
}

// MultiSourceResult is the outcome of a parallel gather across all filtered
// adapters. Sources is sorted by tier ascending, ties in launch order.
type MultiSourceResult struct {
	MergedData *sources.Extraction     `json:"mergedData"`
	Sources    []SourceResult          `json:"sources"`
	Conflicts  []sources.FieldConflict `json:"conflicts"`
}

// AdapterStatus is one row of GetAvailableAdapters.
type AdapterStatus struct {
	Channel   sources.Channel `json:"channel"`
	Tier      int             `json:"tier"`
	Available bool            `json:"available"`
}
