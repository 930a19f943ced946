package strategies

// Variant catalogue. Every entry runs on the same engine; only capabilities differ.

import (
	"fmt"
	"sort"
	"strings"

	"session-backtest/services/engine"
)

const (
	Canonical             = "canonical"
	OriginalAll           = "original-all"
	NoBreakEvenEarliest   = "no-be-earliest-zone"
	NoBreakEvenAny        = "no-be-any"
	BreakEvenEarliestOnly = "be-earliest-zone-only"
)

var catalogue = []engine.Variant{
	{ID: 0, Name: Canonical, BreakEven: engine.BreakEvenAll},
	{ID: 1, Name: OriginalAll, BreakEven: engine.BreakEvenAll, WaiveNoCloseRules: true},
	{ID: 2, Name: NoBreakEvenEarliest, BreakEven: engine.BreakEvenExceptEarliestZone},
	{ID: 3, Name: NoBreakEvenAny, BreakEven: engine.BreakEvenNone},
	{ID: 4, Name: BreakEvenEarliestOnly, BreakEven: engine.BreakEvenEarliestZoneOnly},
}

// All returns a copy of the catalogue in ID order.
func All() []engine.Variant {
	out := make([]engine.Variant, len(catalogue))
	copy(out, catalogue)
	return out
}

// Names returns the variant names in ID order.
func Names() []string {
	names := make([]string, len(catalogue))
	for i, v := range catalogue {
		names[i] = v.Name
	}
	return names
}

// Lookup resolves names in order; "all" expands to the catalogue.
func Lookup(names ...string) ([]engine.Variant, error) {
	var out []engine.Variant
	seen := map[string]bool{}
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if name == "all" {
			for _, v := range catalogue {
				if !seen[v.Name] {
					seen[v.Name] = true
					out = append(out, v)
				}
			}
			continue
		}
		v, ok := find(name)
		if !ok {
			known := Names()
			sort.Strings(known)
			return nil, fmt.Errorf("unknown variant %q (known: %s)", raw, strings.Join(known, ", "))
		}
		if !seen[v.Name] {
			seen[v.Name] = true
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no variants selected")
	}
	return out, nil
}

func find(name string) (engine.Variant, bool) {
	for _, v := range catalogue {
		if v.Name == name {
			return v, true
		}
	}
	return engine.Variant{}, false
}

// Tune applies run-wide capability switches to every variant.
type Tune struct {
	Escalation      bool
	TrackUsedLevels bool
	PartialLock     bool
}

// Apply returns copies of vs with the enabled switches turned on.
func (t Tune) Apply(vs []engine.Variant) []engine.Variant {
	out := make([]engine.Variant, len(vs))
	for i, v := range vs {
		v.Escalation = v.Escalation || t.Escalation
		v.TrackUsedLevels = v.TrackUsedLevels || t.TrackUsedLevels
		v.PartialLock = v.PartialLock || t.PartialLock
		out[i] = v
	}
	return out
}
