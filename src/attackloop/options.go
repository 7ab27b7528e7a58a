package attackloop

import (
	"fmt"

	"github.com/perplext/redteam-core/src/strategy"
)

// Options carries the recognized configuration for one attack loop call,
// per §6.5 of the specification this package implements. MaxTurns and
// MaxBacktracks are pointers so an explicit 0 (a valid boundary value, see
// the spec's "maxTurns=0" edge case) can be distinguished from "unset".
type Options struct {
	InjectVar            string
	MaxTurns             *int
	MaxBacktracks        *int
	Stateful             bool
	ContinueAfterSuccess bool
	PerTurnLayers        []strategy.PerTurnLayer

	PluginID        string
	Goal            string
	Purpose         string
	Modifiers       map[string]string
	GraderExamples  string
	GradingGuidance string
	TraceContext    string
}

// DefaultMaxTurns and DefaultMaxBacktracks are applied by Normalize when the
// caller leaves the corresponding option unset.
const (
	DefaultMaxTurns      = 10
	DefaultMaxBacktracks = 10
)

func intPtr(v int) *int { return &v }

// Normalize applies defaults and validates required fields, returning a
// configuration-error (per §7) for anything that must fail synchronously at
// construction rather than mid-loop.
func (o Options) Normalize() (Options, error) {
	if o.InjectVar == "" {
		return o, fmt.Errorf("configuration error: injectVar is required")
	}
	if o.MaxTurns == nil {
		o.MaxTurns = intPtr(DefaultMaxTurns)
	}
	if o.MaxBacktracks == nil {
		o.MaxBacktracks = intPtr(DefaultMaxBacktracks)
	}
	return o, nil
}

func (o Options) maxTurns() int      { return *o.MaxTurns }
func (o Options) maxBacktracks() int { return *o.MaxBacktracks }
