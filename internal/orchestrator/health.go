package orchestrator

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/sources"
)

// HealthReport maps marketplace to channel to the adapter's latest snapshot.
type HealthReport map[listing.Marketplace]map[sources.Channel]sources.HealthSnapshot

// GetHealthReport polls every registered adapter, including disabled ones. A
// panicking health check is replaced by a synthetic unhealthy snapshot so one
// broken adapter never hides the rest of the fleet. Snapshots are cached on
// the registry records and feed the default fallback ordering.
func (o *Orchestrator) GetHealthReport() HealthReport {
	type probe struct {
		marketplace listing.Marketplace
		channel     sources.Channel
		adapter     sources.Adapter
	}

	o.mu.RLock()
	probes := make([]probe, 0)
	for marketplace, byChannel := range o.adapters {
		for channel, rec := range byChannel {
			probes = append(probes, probe{marketplace: marketplace, channel: channel, adapter: rec.adapter})
		}
	}
	o.mu.RUnlock()

	report := make(HealthReport)
	for _, p := range probes {
		snap := safeHealth(p.adapter)
		if report[p.marketplace] == nil {
			report[p.marketplace] = make(map[sources.Channel]sources.HealthSnapshot)
		}
		report[p.marketplace][p.channel] = snap
		o.metrics.SetAdapterReliability(string(p.marketplace), string(p.channel), snap.EstimatedReliability)
	}

	now := time.Now()
	o.mu.Lock()
	for marketplace, byChannel := range report {
		for channel, snap := range byChannel {
			rec, ok := o.adapters[marketplace][channel]
			if !ok {
				continue
			}
			cached := snap
			rec.lastHealth = &cached
			rec.lastHealthCheck = now
		}
	}
	o.mu.Unlock()

	return report
}

// safeHealth converts a panicking health check into the standard unhealthy
// snapshot.
func safeHealth(adapter sources.Adapter) (snap sources.HealthSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			snap = sources.HealthSnapshot{
				Available:            false,
				RecentFailureRate:    1.0,
				EstimatedReliability: 0,
				StatusMessage:        fmt.Sprintf("Health check failed: %v", r),
			}
			log.Error().
				Str("channel", string(adapter.Channel())).
				Interface("panic", r).
				Msg("Health check panic recovered")
		}
	}()
	return adapter.Health()
}
