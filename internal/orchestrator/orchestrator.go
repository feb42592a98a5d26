// Package orchestrator unifies heterogeneous listing-data sources behind one
// contract: a registry of adapters per marketplace and channel, a
// single-source-with-fallback engine, a concurrent multi-source merger with
// tier-precedence conflict resolution, and a health reporter.
package orchestrator

import (
	"sync"
	"time"

	"github.com/marketsift/marketsift/internal/listing"
	"github.com/marketsift/marketsift/internal/metrics"
	"github.com/marketsift/marketsift/internal/sources"
)

// adapterRecord is one registered adapter plus its registry-side state.
type adapterRecord struct {
	adapter         sources.Adapter
	enabled         bool
	lastHealth      *sources.HealthSnapshot
	lastHealthCheck time.Time
}

// Orchestrator owns the adapter table and the fallback-chain overrides. All
// methods are safe for concurrent use; extraction and health calls run
// outside the table lock.
type Orchestrator struct {
	mu       sync.RWMutex
	adapters map[listing.Marketplace]map[sources.Channel]*adapterRecord
	chains   map[listing.Marketplace][]sources.Channel

	metrics *metrics.Registry
}

// New builds an empty orchestrator. metrics may be nil to disable
// instrumentation.
func New(m *metrics.Registry) *Orchestrator {
	return &Orchestrator{
		adapters: make(map[listing.Marketplace]map[sources.Channel]*adapterRecord),
		chains:   make(map[listing.Marketplace][]sources.Channel),
		metrics:  m,
	}
}
