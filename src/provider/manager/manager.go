// Package manager implements the provider manager singleton: resolution of
// a logical role (target/attacker/scorer) to a concrete core.Provider.
package manager

import (
	"fmt"
	"sync"

	"github.com/perplext/redteam-core/src/provider/core"
)

// Manager resolves a role to a concrete provider, consulting, in order: (1)
// an explicitly configured provider for the call, (2) the process-wide
// default-provider registry. It has no environment-derived fallback: when
// neither yields a provider, Resolve returns an error. When a call
// requests jsonOnly or preferSmallModel the manager bypasses the registered
// default and forces whichever registered provider advertises JSON-mode
// support (falling back to the default if none does).
type Manager struct {
	mutex     sync.RWMutex
	defaults  map[core.Role]core.Provider
	byID      map[string]core.Provider
	jsonCapID string
}

var global = New()

// Global returns the process-wide provider manager singleton.
func Global() *Manager { return global }

// New creates an empty provider manager.
func New() *Manager {
	return &Manager{
		defaults: make(map[core.Role]core.Provider),
		byID:     make(map[string]core.Provider),
	}
}

// RegisterDefault sets the default provider used for a role absent an
// explicit per-call override.
func (m *Manager) RegisterDefault(role core.Role, p core.Provider) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.defaults[role] = p
	m.byID[p.ID()] = p
	if p.SupportsJSONMode() && m.jsonCapID == "" {
		m.jsonCapID = p.ID()
	}
}

// RegisterJSONCapable designates p as the small/JSON-capable provider forced
// whenever a call requests jsonOnly or preferSmallModel.
func (m *Manager) RegisterJSONCapable(p core.Provider) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.byID[p.ID()] = p
	m.jsonCapID = p.ID()
}

// Resolve picks the provider to use for role, given an optional explicit
// override and the call options. explicit, if non-nil, always wins unless
// it fails to satisfy a requested jsonOnly/preferSmallModel constraint.
func (m *Manager) Resolve(role core.Role, explicit core.Provider, opts core.CallOptions) (core.Provider, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	needsJSON := opts.JSONOnly || opts.PreferSmallModel

	if explicit != nil {
		if !needsJSON || explicit.SupportsJSONMode() {
			return explicit, nil
		}
	}

	if needsJSON && m.jsonCapID != "" {
		return m.byID[m.jsonCapID], nil
	}

	if p, ok := m.defaults[role]; ok {
		return p, nil
	}

	return nil, fmt.Errorf("provider manager: no provider registered for role %q", role)
}

// Reset clears all registrations. Intended for use only by tests and between
// fully-quiesced evaluation runs, never while an attack is in flight.
func (m *Manager) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.defaults = make(map[core.Role]core.Provider)
	m.byID = make(map[string]core.Provider)
	m.jsonCapID = ""
}
