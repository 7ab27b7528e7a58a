// Package tokenusage tracks provider token consumption: a process-wide
// singleton keyed by provider id, plus per-call local accumulators that the
// attack loop folds into its final result envelope.
package tokenusage

import (
	"sync"
	"time"

	"github.com/perplext/redteam-core/src/provider/core"
)

// providerStats tracks running totals for one provider id, plus the time of
// the last request and the start of the current hour-long window; no rate is
// computed from them.
type providerStats struct {
	mu              sync.Mutex
	usage           core.TokenUsage
	lastRequestTime time.Time
	windowStart     time.Time
}

func (s *providerStats) add(delta core.TokenUsage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if s.windowStart.IsZero() || now.Sub(s.windowStart) > time.Hour {
		s.windowStart = now
	}
	s.usage.Add(delta)
	s.lastRequestTime = now
}

func (s *providerStats) snapshot() core.TokenUsage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Aggregator is the process-wide singleton tracking usage per provider id.
type Aggregator struct {
	mu        sync.RWMutex
	providers map[string]*providerStats
}

var global = newAggregator()

func newAggregator() *Aggregator {
	return &Aggregator{providers: make(map[string]*providerStats)}
}

// Global returns the process-wide token usage aggregator.
func Global() *Aggregator { return global }

// Reset clears all tracked provider usage. Intended for use only by tests and
// between fully-quiesced evaluation runs, never while an attack is in flight.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.providers = make(map[string]*providerStats)
}

func (a *Aggregator) statsFor(providerID string) *providerStats {
	a.mu.RLock()
	s, ok := a.providers[providerID]
	a.mu.RUnlock()
	if ok {
		return s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.providers[providerID]; ok {
		return s
	}
	s = &providerStats{}
	a.providers[providerID] = s
	return s
}

// Record folds delta into the process-wide per-provider totals. Missing
// subfields in delta default to zero; NumRequests is forced to at least 1 so
// that a call with no reported byte counts still counts as a request.
func (a *Aggregator) Record(providerID string, delta core.TokenUsage) {
	if delta.NumRequests == 0 {
		delta.NumRequests = 1
	}
	a.statsFor(providerID).add(delta)
}

// ProviderUsage returns the cumulative usage recorded for one provider id.
func (a *Aggregator) ProviderUsage(providerID string) core.TokenUsage {
	return a.statsFor(providerID).snapshot()
}

// Accumulator is a per-call local running total, owned exclusively by one
// attack loop invocation. The final result envelope carries only this local
// total, never the process-wide aggregate.
type Accumulator struct {
	providerID string
	total      core.TokenUsage
}

// NewAccumulator creates a local accumulator for one attack loop call,
// scoped to the given default provider id for Global recording.
func NewAccumulator(providerID string) *Accumulator {
	return &Accumulator{providerID: providerID}
}

// Add folds delta into both the local total and the process-wide Global
// aggregator, defaulting missing subfields to zero and forcing at least one
// counted request.
func (a *Accumulator) Add(delta core.TokenUsage) {
	if delta.NumRequests == 0 {
		delta.NumRequests = 1
	}
	a.total.Add(delta)
	Global().Record(a.providerID, delta)
}

// Total returns the accumulated local totals for this call.
func (a *Accumulator) Total() core.TokenUsage {
	return a.total
}
