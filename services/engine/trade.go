package engine

import (
	"fmt"
	"math"
	"time"
)

// Direction of a trade.
type Direction int

const (
	Long Direction = iota + 1
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "BUY"
	case Short:
		return "SELL"
	default:
		return "FLAT"
	}
}

// ExitReason names the rule that closed a trade.
type ExitReason string

const (
	ExitForcedClose     ExitReason = "ForcedClose"
	ExitGSL             ExitReason = "GSL"
	ExitSweep           ExitReason = "Sweep"
	ExitOutsideSessions ExitReason = "OutsideSessions"
	ExitPartialClose    ExitReason = "PartialClose"
	ExitBreakEven       ExitReason = "BreakEven"
	ExitTimeClose       ExitReason = "TimeClose"
	ExitEndOfBacktest   ExitReason = "EndOfBacktest"
)

// Trade is an open position. Owned by exactly one session of one engine.
type Trade struct {
	Direction    Direction
	Entry        float64
	Session      SessionID
	Zone         int
	ForcedClose  time.Time
	OpenedAt     time.Time
	Target       float64
	OpenDistance float64
	NoCloseRules bool
	// running extremes, in points of the trade's favor / against it
	MaxFavorable float64
	MaxAdverse   float64
	ExtremeAt    time.Time
}

// PnL returns the result of exiting at price.
func (t *Trade) PnL(price float64) float64 {
	if t.Direction == Long {
		return price - t.Entry
	}
	return t.Entry - price
}

// observe updates the running extremes; any new extreme moves ExtremeAt.
func (t *Trade) observe(price float64, now time.Time) {
	fav := t.PnL(price)
	if fav > t.MaxFavorable {
		t.MaxFavorable = fav
		t.ExtremeAt = now
	}
	if adv := -fav; adv > t.MaxAdverse {
		t.MaxAdverse = adv
		t.ExtremeAt = now
	}
}

func (t *Trade) close(price float64, now time.Time, reason ExitReason, variant string) ClosedTradeRecord {
	return ClosedTradeRecord{
		Variant:      variant,
		Session:      t.Session,
		Zone:         t.Zone,
		Direction:    t.Direction,
		Target:       t.Target,
		OpenDistance: t.OpenDistance,
		NoCloseRules: t.NoCloseRules,
		EntryTime:    t.OpenedAt,
		EntryPrice:   t.Entry,
		ExitTime:     now,
		ExitPrice:    price,
		Reason:       reason,
		PnL:          roundPoints(t.PnL(price)),
		MaxFavorable: roundPoints(t.MaxFavorable),
		MaxAdverse:   roundPoints(t.MaxAdverse),
	}
}

// roundPoints trims float noise to 1/1000 of a point.
func roundPoints(v float64) float64 { return math.Round(v*1000) / 1000 }

func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Direction) UnmarshalText(b []byte) error {
	parsed, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection accepts BUY or SELL.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "BUY":
		return Long, nil
	case "SELL":
		return Short, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}
