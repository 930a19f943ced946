package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var london = time.FixedZone("BST", 3600)

// ts returns a wall time in June 2024; June 3rd is a Monday.
func ts(day, hour, minute int) time.Time {
	return time.Date(2024, time.June, day, hour, minute, 0, 0, london)
}

type driver struct {
	t      *testing.T
	eng    *Engine
	events *EventLog
}

func newDriver(t *testing.T, p Params, v Variant) *driver {
	t.Helper()
	events := &EventLog{}
	eng, err := New(p, v, WithEventLog(events))
	require.NoError(t, err)
	return &driver{t: t, eng: eng, events: events}
}

func (d *driver) at(day, hour, minute int, price float64) *driver {
	d.eng.Step(PriceSample{Time: ts(day, hour, minute), Price: price})
	return d
}

func (d *driver) trade(id SessionID) *Trade {
	return d.eng.session(id).trade
}

func (d *driver) records() []ClosedTradeRecord { return d.eng.Ledger().Records() }
