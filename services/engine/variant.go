package engine

// Variant capabilities consulted by the entry and exit rules

// BreakEvenPolicy selects which trades the break-even exit applies to.
type BreakEvenPolicy int

const (
	BreakEvenAll BreakEvenPolicy = iota
	BreakEvenNone
	BreakEvenEarliestZoneOnly
	BreakEvenExceptEarliestZone
)

func (p BreakEvenPolicy) String() string {
	switch p {
	case BreakEvenNone:
		return "none"
	case BreakEvenEarliestZoneOnly:
		return "earliest-zone-only"
	case BreakEvenExceptEarliestZone:
		return "except-earliest-zone"
	default:
		return "all"
	}
}

// Variant is a named set of capabilities layered on the shared rules.
type Variant struct {
	ID   int
	Name string
	// Escalation admits distances within tolerance of a rung above the zone base.
	Escalation bool
	// TrackUsedLevels blocks a ladder level once it has been traded that day.
	TrackUsedLevels bool
	// WaiveNoCloseRules applies break-even and time decay even to exempt zones.
	WaiveNoCloseRules bool
	BreakEven         BreakEvenPolicy
	PartialLock       bool
}

// Canonical is the reference behavior: no escalation, no level tracking,
// break-even everywhere and the no-close exemption honoured.
func Canonical() Variant { return Variant{Name: "canonical"} }

func isEarliestZone(session SessionID, zone int) bool {
	return session == SessionOne && zone == 1
}

func (v Variant) breakEvenApplies(t *Trade) bool {
	switch v.BreakEven {
	case BreakEvenNone:
		return false
	case BreakEvenEarliestZoneOnly:
		return isEarliestZone(t.Session, t.Zone)
	case BreakEvenExceptEarliestZone:
		return !isEarliestZone(t.Session, t.Zone)
	default:
		return true
	}
}
