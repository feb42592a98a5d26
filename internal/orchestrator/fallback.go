package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

// Invalid-argument errors. These are the only conditions GetData and
// GetFromAllSources surface as errors; every data-plane failure lands in the
// attempt audit instead.
var (
	ErrNoMarketplace = errors.New("marketplace is required")
	ErrNoIdentifier  = errors.New("identifier is required")
)

// Audit messages for attempts that never produced data. Callers match on
// these strings, so they are part of the contract.
const (
	errAdapterUnavailable = "Adapter not available"
	errNullExtraction     = "Extraction returned null"
)

// GetData tries the marketplace's fallback chain in order and returns the
// first acceptable listing, together with an ordered audit of every attempt.
// A nil Data with a nil error means no source delivered; the audit says why.
func (o *Orchestrator) GetData(ctx context.Context, marketplace listing.Marketplace, identifier string, opts Options) (*Result, error) {
	if marketplace == "" {
		return nil, ErrNoMarketplace
	}
	if identifier == "" {
		return nil, ErrNoIdentifier
	}
	opts = opts.withDefaults()

	start := time.Now()
	adapters := o.filteredAdapters(marketplace, opts)

	res := &Result{AttemptedSources: []AttemptRecord{}}
	if len(adapters) == 0 {
		log.Debug().
			Str("marketplace", string(marketplace)).
			Msg("No adapters left after filtering")
		res.TotalDurationMS = time.Since(start).Milliseconds()
		return res, nil
	}

	firstTier := adapters[0].Tier()

	for _, adapter := range adapters {
		elapsed := time.Since(start)
		if elapsed >= opts.Timeout || ctx.Err() != nil {
			log.Warn().
				Str("marketplace", string(marketplace)).
				Dur("elapsed", elapsed).
				Dur("timeout", opts.Timeout).
				Int("attempted", len(res.AttemptedSources)).
				Msg("Extraction budget exhausted before chain completed")
			break
		}
		if adapter.Tier() > firstTier {
			res.FallbackUsed = true
		}

		outcome := o.attempt(ctx, adapter, identifier, opts, opts.Timeout-elapsed)
		res.AttemptedSources = append(res.AttemptedSources, outcome.record)
		o.metrics.ObserveAttempt(string(marketplace), string(adapter.Channel()),
			outcome.record.Success, time.Duration(outcome.record.DurationMS)*time.Millisecond)

		if outcome.record.Success {
			res.Data = outcome.extraction
			log.Debug().
				Str("marketplace", string(marketplace)).
				Str("channel", string(adapter.Channel())).
				Float64("confidence", outcome.extraction.Confidence).
				Bool("fallback_used", res.FallbackUsed).
				Msg("Extraction accepted")
			break
		}
		if opts.DisableFallback {
			break
		}
	}

	res.TotalDurationMS = time.Since(start).Milliseconds()
	o.metrics.ObserveCall(string(marketplace), len(res.AttemptedSources), res.FallbackUsed)
	return res, nil
}

type attemptOutcome struct {
	record     AttemptRecord
	extraction *sources.Extraction
}

// attempt runs a single adapter under a bounded deadline and classifies the
// outcome into an audit record. remaining is the unspent total budget; the
// attempt always gets at least attemptFloor so a nearly-exhausted budget
// cannot starve the final try into an instant timeout.
func (o *Orchestrator) attempt(ctx context.Context, adapter sources.Adapter, identifier string, opts Options, remaining time.Duration) attemptOutcome {
	record := AttemptRecord{Channel: adapter.Channel(), Tier: adapter.Tier()}

	deadline := remaining
	if deadline < attemptFloor {
		deadline = attemptFloor
	}
	attemptCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	started := time.Now()

	if !adapter.IsAvailable(attemptCtx) {
		record.Error = errAdapterUnavailable
		record.DurationMS = time.Since(started).Milliseconds()
		return attemptOutcome{record: record}
	}

	extraction, err := safeExtract(attemptCtx, adapter, opts.Content, identifier, sources.ExtractOptions{
		Timeout:            deadline,
		RequiredConfidence: opts.RequiredConfidence,
	})
	record.DurationMS = time.Since(started).Milliseconds()

	switch {
	case err != nil:
		record.Error = attemptError(err, deadline)
		log.Debug().
			Str("channel", string(adapter.Channel())).
			Str("error", record.Error).
			Msg("Extraction attempt failed")
	case extraction == nil:
		record.Error = errNullExtraction
	case extraction.Confidence < opts.RequiredConfidence:
		record.Error = fmt.Sprintf("Confidence %.2f below threshold %.2f",
			extraction.Confidence, opts.RequiredConfidence)
	default:
		record.Success = true
		return attemptOutcome{record: record, extraction: extraction}
	}
	return attemptOutcome{record: record}
}

// attemptError normalizes deadline overruns into a stable audit message and
// passes every other failure through verbatim.
func attemptError(err error, deadline time.Duration) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Sprintf("Extraction timed out after %s", deadline)
	}
	return err.Error()
}

// safeExtract shields the orchestrator from adapter panics: a panicking
// adapter becomes a failed attempt, never a crashed request.
func safeExtract(ctx context.Context, adapter sources.Adapter, content, identifier string, opts sources.ExtractOptions) (extraction *sources.Extraction, err error) {
	defer func() {
		if r := recover(); r != nil {
			extraction = nil
			err = fmt.Errorf("adapter panicked: %v", r)
			log.Error().
				Str("channel", string(adapter.Channel())).
				Interface("panic", r).
				Msg("Adapter panic recovered")
		}
	}()
	return adapter.ExtractWithProvenance(ctx, content, identifier, opts)
}
