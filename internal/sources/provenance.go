package sources

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/marketsift/marketsift/internal/listing"
)

// Freshness describes how current the extracted data is relative to the
// marketplace.
type Freshness string

const (
	FreshnessRealtime   Freshness = "realtime"
	FreshnessRecent     Freshness = "recent"
	FreshnessHistorical Freshness = "historical"
)

// ParseFreshness maps an external string onto the closed freshness set.
func ParseFreshness(s string) (Freshness, bool) {
	switch f := Freshness(s); f {
	case FreshnessRealtime, FreshnessRecent, FreshnessHistorical:
		return f, true
	}
	return "", false
}

// Provenance records where a piece of listing data came from and how much it
// can be trusted. It travels with the listing through every merge so the
// origin is never lost. Field names are part of the wire contract.
type Provenance struct {
	Channel        Channel        `json:"channel"`
	Tier           int            `json:"tier"`
	Confidence     float64        `json:"confidence"`
	Freshness      Freshness      `json:"freshness"`
	SourceID       string         `json:"sourceId"`
	ExtractedAt    time.Time      `json:"extractedAt"`
	RawDataHash    string         `json:"rawDataHash,omitempty"`
	UserConsented  bool           `json:"userConsented"`
	TermsCompliant bool           `json:"termsCompliant"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Extraction is a normalized listing together with the provenance of the
// source that produced it. Multi-source merges additionally carry the
// provenance of every correlated source and any field conflicts observed.
type Extraction struct {
	listing.Listing

	Provenance        Provenance      `json:"provenance"`
	CorrelatedSources []Provenance    `json:"correlatedSources,omitempty"`
	ConflictingData   []FieldConflict `json:"conflictingData,omitempty"`
}

// Clone deep-copies the extraction so merges never mutate adapter results.
func (e *Extraction) Clone() *Extraction {
	if e == nil {
		return nil
	}
	out := &Extraction{
		Listing:    *e.Listing.Clone(),
		Provenance: e.Provenance.Clone(),
	}
	if e.CorrelatedSources != nil {
		out.CorrelatedSources = make([]Provenance, len(e.CorrelatedSources))
		for i, p := range e.CorrelatedSources {
			out.CorrelatedSources[i] = p.Clone()
		}
	}
	if e.ConflictingData != nil {
		out.ConflictingData = make([]FieldConflict, len(e.ConflictingData))
		copy(out.ConflictingData, e.ConflictingData)
	}
	return out
}

// Clone copies the provenance including its metadata map.
func (p Provenance) Clone() Provenance {
	out := p
	if p.Metadata != nil {
		out.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// FieldConflict records a disagreement between two or more sources over a
// single listing field, along with how it was resolved.
type FieldConflict struct {
	Field            string          `json:"field"`
	Values           []ConflictValue `json:"values"`
	ResolutionMethod string          `json:"resolutionMethod"`
	ResolvedValue    any             `json:"resolvedValue,omitempty"`
}

// ConflictValue is one source's vote in a field conflict.
type ConflictValue struct {
	Channel  Channel `json:"channel"`
	Tier     int     `json:"tier"`
	SourceID string  `json:"sourceId"`
	Value    any     `json:"value"`
}

// HashContent returns the hex SHA-256 of raw source material, used to fill
// Provenance.RawDataHash so extractions stay traceable to their input.
func HashContent(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
