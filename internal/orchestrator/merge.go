package orchestrator

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

const (
	// resolutionHighestTier is the only resolution method currently applied:
	// the lowest tier number (most trusted source) wins.
	resolutionHighestTier = "highest_tier"

	// Each concurring source past the first adds 3 points of confidence, up
	// to 10 points total. The boost applies even when fields conflicted; the
	// conflict audit is the separate signal for disagreement.
	agreementBoostPerSource = 0.03
	maxAgreementBoost       = 0.10
)

// conflictFields are the listing fields checked for cross-source
// disagreement, in the order conflicts are reported.
var conflictFields = [...]string{"title", "price", "condition", "availability", "soldDate"}

// GetFromAllSources runs every filtered adapter in parallel, merges the
// successful results with tier precedence, and reports field conflicts.
// Failures are isolated per source; a marketplace where every source fails
// yields a nil MergedData and empty Sources, not an error.
func (o *Orchestrator) GetFromAllSources(ctx context.Context, marketplace listing.Marketplace, identifier string, opts Options) (*MultiSourceResult, error) {
	if marketplace == "" {
		return nil, ErrNoMarketplace
	}
	if identifier == "" {
		return nil, ErrNoIdentifier
	}
	opts = opts.withDefaults()

	adapters := o.filteredAdapters(marketplace, opts)

	res := &MultiSourceResult{
		Sources:   []SourceResult{},
		Conflicts: []sources.FieldConflict{},
	}
	if len(adapters) == 0 {
		return res, nil
	}

	gatherCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	extractOpts := sources.ExtractOptions{
		Timeout:            opts.Timeout,
		RequiredConfidence: opts.RequiredConfidence,
	}

	// One slot per adapter; each goroutine writes only its own index, so no
	// shared accumulator is needed.
	results := make([]*sources.Extraction, len(adapters))
	var wg sync.WaitGroup
	for i, adapter := range adapters {
		wg.Add(1)
		go func(i int, adapter sources.Adapter) {
			defer wg.Done()
			started := time.Now()

			if !adapter.IsAvailable(gatherCtx) {
				o.metrics.ObserveAttempt(string(marketplace), string(adapter.Channel()), false, time.Since(started))
				return
			}
			extraction, err := safeExtract(gatherCtx, adapter, opts.Content, identifier, extractOpts)
			ok := err == nil && extraction != nil
			o.metrics.ObserveAttempt(string(marketplace), string(adapter.Channel()), ok, time.Since(started))
			if err != nil {
				log.Debug().
					Str("marketplace", string(marketplace)).
					Str("channel", string(adapter.Channel())).
					Err(err).
					Msg("Source failed during gather")
				return
			}
			results[i] = extraction
		}(i, adapter)
	}
	wg.Wait()

	gathered := make([]*sources.Extraction, 0, len(adapters))
	for _, ext := range results {
		if ext != nil {
			gathered = append(gathered, ext)
		}
	}
	if len(gathered) == 0 {
		return res, nil
	}

	// Tier ascending; the stable sort keeps launch order for ties.
	sort.SliceStable(gathered, func(i, j int) bool {
		return gathered[i].Provenance.Tier < gathered[j].Provenance.Tier
	})

	for _, ext := range gathered {
		res.Sources = append(res.Sources, SourceResult{
			Provenance: ext.Provenance,
			Listing:    &ext.Listing,
		})
	}

	primary := gathered[0]
	merged := primary.Clone()
	if len(gathered) > 1 {
		merged.CorrelatedSources = make([]sources.Provenance, 0, len(gathered))
		for _, ext := range gathered {
			merged.CorrelatedSources = append(merged.CorrelatedSources, ext.Provenance.Clone())
		}
	}

	res.Conflicts = resolveConflicts(merged, gathered)
	if len(res.Conflicts) > 0 {
		merged.ConflictingData = res.Conflicts
	}

	boost := float64(len(gathered)-1) * agreementBoostPerSource
	if boost > maxAgreementBoost {
		boost = maxAgreementBoost
	}
	merged.Confidence = math.Min(1.0, primary.Provenance.Confidence+boost)

	res.MergedData = merged

	conflictNames := make([]string, len(res.Conflicts))
	for i, c := range res.Conflicts {
		conflictNames[i] = c.Field
	}
	o.metrics.ObserveMerge(string(marketplace), len(gathered), conflictNames)

	log.Debug().
		Str("marketplace", string(marketplace)).
		Int("sources", len(gathered)).
		Int("conflicts", len(res.Conflicts)).
		Str("primary_channel", string(primary.Provenance.Channel)).
		Float64("merged_confidence", merged.Confidence).
		Msg("Multi-source merge completed")

	return res, nil
}

// resolveConflicts walks the fixed conflict field set, finds fields where at
// least two sources disagree, writes the most-trusted source's value into
// merged, and returns the audit. gathered must already be sorted by tier
// ascending with launch-order ties, so the first source holding a field is
// its winner.
func resolveConflicts(merged *sources.Extraction, gathered []*sources.Extraction) []sources.FieldConflict {
	conflicts := []sources.FieldConflict{}

	for _, field := range conflictFields {
		type vote struct {
			prov sources.Provenance
			key  string
			val  any
		}
		votes := make([]vote, 0, len(gathered))
		distinct := make(map[string]struct{})

		for _, ext := range gathered {
			key, val, present := listingField(&ext.Listing, field)
			if !present {
				continue
			}
			votes = append(votes, vote{prov: ext.Provenance, key: key, val: val})
			distinct[key] = struct{}{}
		}
		if len(distinct) < 2 {
			continue
		}

		values := make([]sources.ConflictValue, 0, len(votes))
		for _, v := range votes {
			values = append(values, sources.ConflictValue{
				Channel:  v.prov.Channel,
				Tier:     v.prov.Tier,
				SourceID: v.prov.SourceID,
				Value:    v.val,
			})
		}

		winner := votes[0]
		setListingField(&merged.Listing, field, winner.val)
		conflicts = append(conflicts, sources.FieldConflict{
			Field:            field,
			Values:           values,
			ResolutionMethod: resolutionHighestTier,
			ResolvedValue:    winner.val,
		})
	}
	return conflicts
}

// listingField reads one conflict-checked field. key is a canonical string
// for distinctness comparison; val is the typed value carried into the
// conflict audit. Empty and nil fields are absent, not votes.
func listingField(l *listing.Listing, field string) (key string, val any, present bool) {
	switch field {
	case "title":
		if l.Title == "" {
			return "", nil, false
		}
		return l.Title, l.Title, true
	case "price":
		if l.Price == nil {
			return "", nil, false
		}
		return moneyKey(*l.Price), *l.Price, true
	case "condition":
		if l.Condition == "" {
			return "", nil, false
		}
		return string(l.Condition), l.Condition, true
	case "availability":
		if l.Availability == "" {
			return "", nil, false
		}
		return string(l.Availability), l.Availability, true
	case "soldDate":
		if l.SoldDate == nil {
			return "", nil, false
		}
		return l.SoldDate.UTC().Format(time.RFC3339Nano), *l.SoldDate, true
	}
	return "", nil, false
}

// moneyKey canonicalizes an amount so 100 and 100.00 compare equal.
func moneyKey(m listing.Money) string {
	return m.Amount.Rat().RatString() + " " + m.Currency
}

func setListingField(l *listing.Listing, field string, val any) {
	switch field {
	case "title":
		l.Title = val.(string)
	case "price":
		m := val.(listing.Money)
		l.Price = &m
	case "condition":
		l.Condition = val.(listing.Condition)
	case "availability":
		l.Availability = val.(listing.Availability)
	case "soldDate":
		t := val.(time.Time)
		l.SoldDate = &t
	}
}
