package orchestrator

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

// RegisterAdapter inserts an adapter under (marketplace, adapter.Channel()).
// Registering over an existing entry replaces it; the replacement is logged
// with both versions so silent downgrades are visible in production.
func (o *Orchestrator) RegisterAdapter(marketplace listing.Marketplace, adapter sources.Adapter) {
	if adapter == nil {
		log.Error().Str("marketplace", string(marketplace)).Msg("Refusing to register nil adapter")
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	byChannel, ok := o.adapters[marketplace]
	if !ok {
		byChannel = make(map[sources.Channel]*adapterRecord)
		o.adapters[marketplace] = byChannel
	}

	if old, exists := byChannel[adapter.Channel()]; exists {
		log.Warn().
			Str("marketplace", string(marketplace)).
			Str("channel", string(adapter.Channel())).
			Str("old_version", old.adapter.Version()).
			Str("new_version", adapter.Version()).
			Msg("Replacing registered adapter")
	}

	byChannel[adapter.Channel()] = &adapterRecord{adapter: adapter, enabled: true}

	log.Debug().
		Str("marketplace", string(marketplace)).
		Str("channel", string(adapter.Channel())).
		Str("source_id", adapter.Name()+"@"+adapter.Version()).
		Int("tier", adapter.Tier()).
		Msg("Adapter registered")
}

// UnregisterAdapter removes the adapter for (marketplace, channel). Removing
// an unknown pair is a no-op.
func (o *Orchestrator) UnregisterAdapter(marketplace listing.Marketplace, channel sources.Channel) {
	o.mu.Lock()
	defer o.mu.Unlock()

	byChannel, ok := o.adapters[marketplace]
	if !ok {
		return
	}
	if _, exists := byChannel[channel]; !exists {
		return
	}
	delete(byChannel, channel)
	if len(byChannel) == 0 {
		delete(o.adapters, marketplace)
	}

	log.Debug().
		Str("marketplace", string(marketplace)).
		Str("channel", string(channel)).
		Msg("Adapter unregistered")
}

// EnableAdapter re-admits a disabled adapter to request routing.
func (o *Orchestrator) EnableAdapter(marketplace listing.Marketplace, channel sources.Channel) {
	o.setEnabled(marketplace, channel, true)
}

// DisableAdapter keeps the adapter registered but drops it from every chain
// and marks it unavailable in listings.
func (o *Orchestrator) DisableAdapter(marketplace listing.Marketplace, channel sources.Channel) {
	o.setEnabled(marketplace, channel, false)
}

func (o *Orchestrator) setEnabled(marketplace listing.Marketplace, channel sources.Channel, enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, ok := o.adapters[marketplace][channel]
	if !ok {
		return
	}
	rec.enabled = enabled

	log.Debug().
		Str("marketplace", string(marketplace)).
		Str("channel", string(channel)).
		Bool("enabled", enabled).
		Msg("Adapter flag updated")
}

// SetFallbackChain pins an explicit channel order for a marketplace. An
// empty chain clears the override, restoring the default tier ordering.
func (o *Orchestrator) SetFallbackChain(marketplace listing.Marketplace, chain []sources.Channel) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(chain) == 0 {
		delete(o.chains, marketplace)
		log.Debug().Str("marketplace", string(marketplace)).Msg("Fallback chain override cleared")
		return
	}

	copied := make([]sources.Channel, len(chain))
	copy(copied, chain)
	o.chains[marketplace] = copied

	log.Debug().
		Str("marketplace", string(marketplace)).
		Interface("chain", copied).
		Msg("Fallback chain override set")
}

// GetFallbackChain resolves the effective channel order for a marketplace:
// the override filtered to registered and enabled adapters, or the default
// ordering when no override is set.
func (o *Orchestrator) GetFallbackChain(marketplace listing.Marketplace) []sources.Channel {
	entries := o.orderedAdapters(marketplace)
	out := make([]sources.Channel, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.adapter.Channel())
	}
	return out
}

// GetAvailableAdapters lists every registered adapter for a marketplace with
// its current availability. Disabled adapters are reported unavailable
// without being probed.
func (o *Orchestrator) GetAvailableAdapters(ctx context.Context, marketplace listing.Marketplace) []AdapterStatus {
	o.mu.RLock()
	type probe struct {
		adapter sources.Adapter
		enabled bool
	}
	probes := make([]probe, 0, len(o.adapters[marketplace]))
	for _, rec := range o.adapters[marketplace] {
		probes = append(probes, probe{adapter: rec.adapter, enabled: rec.enabled})
	}
	o.mu.RUnlock()

	statuses := make([]AdapterStatus, 0, len(probes))
	for _, p := range probes {
		status := AdapterStatus{
			Channel: p.adapter.Channel(),
			Tier:    p.adapter.Tier(),
		}
		if p.enabled {
			status.Available = p.adapter.IsAvailable(ctx)
		}
		statuses = append(statuses, status)
	}

	sort.SliceStable(statuses, func(i, j int) bool {
		if statuses[i].Tier != statuses[j].Tier {
			return statuses[i].Tier < statuses[j].Tier
		}
		return statuses[i].Channel < statuses[j].Channel
	})
	return statuses
}

// chainEntry is a point-in-time view of one enabled adapter, captured under
// the read lock so ordering never calls into adapters while locked.
type chainEntry struct {
	adapter     sources.Adapter
	reliability float64
}

// orderedAdapters resolves the fallback chain for a marketplace per the
// registry rules: an explicit override keeps its exact order filtered to
// registered and enabled adapters; otherwise adapters are sorted by tier
// ascending, then estimated reliability descending. Reliability comes from
// the last cached health snapshot, or the channel's confidence ceiling when
// the adapter has never been checked.
func (o *Orchestrator) orderedAdapters(marketplace listing.Marketplace) []chainEntry {
	o.mu.RLock()

	byChannel := o.adapters[marketplace]
	override := o.chains[marketplace]

	if len(override) > 0 {
		entries := make([]chainEntry, 0, len(override))
		for _, channel := range override {
			rec, ok := byChannel[channel]
			if !ok || !rec.enabled {
				continue
			}
			entries = append(entries, chainEntry{adapter: rec.adapter, reliability: recordReliability(rec)})
		}
		o.mu.RUnlock()
		return entries
	}

	entries := make([]chainEntry, 0, len(byChannel))
	for _, rec := range byChannel {
		if !rec.enabled {
			continue
		}
		entries = append(entries, chainEntry{adapter: rec.adapter, reliability: recordReliability(rec)})
	}
	o.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		ti, tj := entries[i].adapter.Tier(), entries[j].adapter.Tier()
		if ti != tj {
			return ti < tj
		}
		if entries[i].reliability != entries[j].reliability {
			return entries[i].reliability > entries[j].reliability
		}
		return entries[i].adapter.Channel() < entries[j].adapter.Channel()
	})
	return entries
}

func recordReliability(rec *adapterRecord) float64 {
	if rec.lastHealth != nil {
		return rec.lastHealth.EstimatedReliability
	}
	return rec.adapter.ConfidenceRange().Max
}

// filteredAdapters applies the per-request tier and channel filters to the
// resolved chain.
func (o *Orchestrator) filteredAdapters(marketplace listing.Marketplace, opts Options) []sources.Adapter {
	entries := o.orderedAdapters(marketplace)
	out := make([]sources.Adapter, 0, len(entries))
	for _, e := range entries {
		if !opts.allowsTier(e.adapter.Tier()) {
			continue
		}
		if !opts.allowsChannel(e.adapter.Channel()) {
			continue
		}
		out = append(out, e.adapter)
	}
	return out
}
