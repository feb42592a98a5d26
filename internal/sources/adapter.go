package sources

import (
	"context"
	"fmt"
	"time"

	"github.com/marketsift/marketsift/internal/listing"
)

// ExtractOptions carries per-attempt knobs from the orchestrator down to an
// adapter.
type ExtractOptions struct {
	// Timeout is the deadline for this single attempt. The orchestrator also
	// enforces it through the context; adapters that shell out or poll should
	// honor it directly.
	Timeout time.Duration

	// RequiredConfidence is the minimum confidence the caller will accept.
	// Adapters may use it to skip expensive enrichment that cannot reach the
	// bar; the orchestrator enforces it regardless.
	RequiredConfidence float64
}

// Adapter is the contract every acquisition channel implements. Identity
// methods are static per instance; extraction and health methods may be
// called concurrently.
type Adapter interface {
	// Channel and Tier place the adapter in the trust hierarchy. Tier is
	// fixed by the channel and never varies per adapter.
	Channel() Channel
	Tier() int
	ConfidenceRange() ConfidenceRange
	RequiresUserAction() bool
	Marketplace() listing.Marketplace
	Name() string
	Version() string

	// CanHandle reports whether the identifier looks like something this
	// adapter can extract, without performing any I/O.
	CanHandle(identifier string) bool

	// ExtractWithProvenance turns raw content into a normalized listing with
	// a provenance record. content may be empty, in which case the adapter
	// fetches or interprets identifier itself. A nil extraction with a nil
	// error is treated by callers as "nothing extracted".
	ExtractWithProvenance(ctx context.Context, content, identifier string, opts ExtractOptions) (*Extraction, error)

	// Validate checks a listing against the adapter's own expectations on
	// top of the shared model validation.
	Validate(l *listing.Listing) listing.ValidationResult

	// IsAvailable reports whether the adapter can currently serve requests
	// (credentials present, upstream reachable, budget not exhausted).
	IsAvailable(ctx context.Context) bool

	// Health summarizes recent extraction outcomes.
	Health() HealthSnapshot
}

// Info is the static identity of an adapter.
type Info struct {
	Channel            Channel
	Marketplace        listing.Marketplace
	Name               string
	Version            string
	RequiresUserAction bool
}

// Base carries the identity attributes and the rolling health log shared by
// all adapters. Concrete adapters embed it and implement CanHandle,
// ExtractWithProvenance, Validate and IsAvailable themselves.
type Base struct {
	info   Info
	health *HealthLog
}

// NewBase builds the shared adapter core.
func NewBase(info Info) Base {
	return Base{info: info, health: NewHealthLog()}
}

func (b *Base) Channel() Channel                 { return b.info.Channel }
func (b *Base) Tier() int                        { return TierFor(b.info.Channel) }
func (b *Base) ConfidenceRange() ConfidenceRange { return ConfidenceRangeFor(b.info.Channel) }
func (b *Base) RequiresUserAction() bool         { return b.info.RequiresUserAction }
func (b *Base) Marketplace() listing.Marketplace { return b.info.Marketplace }
func (b *Base) Name() string                     { return b.info.Name }
func (b *Base) Version() string                  { return b.info.Version }

// SourceID is the stable identifier stamped into provenance records:
// "<name>@<version>".
func (b *Base) SourceID() string {
	return fmt.Sprintf("%s@%s", b.info.Name, b.info.Version)
}

// RecordSuccess and RecordFailure feed the rolling health log. Adapters call
// them from ExtractWithProvenance; the orchestrator does not record on their
// behalf.
func (b *Base) RecordSuccess() { b.health.Record(true) }
func (b *Base) RecordFailure() { b.health.Record(false) }

// RecordOutcome classifies an extraction's return values into the health
// log. Deferred with named returns, it covers every exit path of an
// adapter's ExtractWithProvenance.
func (b *Base) RecordOutcome(ext *Extraction, err error) {
	b.health.Record(err == nil && ext != nil)
}

// HealthLog exposes the underlying log for tests.
func (b *Base) HealthLog() *HealthLog { return b.health }

// Snapshot assembles the default health view: reliability starts at the
// channel's confidence ceiling and degrades with the recent failure rate.
func (b *Base) Snapshot(available bool) HealthSnapshot {
	rate := b.health.FailureRate()
	snap := HealthSnapshot{
		Available:            available,
		RecentFailureRate:    rate,
		EstimatedReliability: b.ConfidenceRange().Max * (1 - rate),
	}
	if !available {
		snap.EstimatedReliability = 0
	}
	if last, ok := b.health.LastSuccess(); ok {
		t := last
		snap.LastSuccessfulExtraction = &t
	}
	return snap
}

// Validate applies the shared model validation. Adapters with stricter
// channel-specific expectations override this.
func (b *Base) Validate(l *listing.Listing) listing.ValidationResult {
	return listing.Validate(l)
}

// NewProvenance stamps a provenance record for this adapter. Confidence is
// clamped into the channel's range.
func (b *Base) NewProvenance(confidence float64, freshness Freshness, rawHash string) Provenance {
	return Provenance{
		Channel:     b.Channel(),
		Tier:        b.Tier(),
		Confidence:  b.ConfidenceRange().Clamp(confidence),
		Freshness:   freshness,
		SourceID:    b.SourceID(),
		ExtractedAt: time.Now().UTC(),
		RawDataHash: rawHash,
	}
}
