package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closeReason(t *testing.T, d *driver) ClosedTradeRecord {
	t.Helper()
	recs := d.records()
	require.Len(t, recs, 1)
	return recs[0]
}

func TestForcedCloseWinsOverEverything(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 8, 0, 100).at(3, 8, 16, 145).at(3, 9, 31, 200)
	rec := closeReason(t, d)
	assert.Equal(t, ExitForcedClose, rec.Reason)
	assert.Equal(t, -55.0, rec.PnL)
}

func TestSweepCloseBeforeOutsideSessions(t *testing.T) {
	p := DefaultParams()
	p.StopDistance = 500
	d := newDriver(t, p, Canonical())
	d.at(3, 8, 0, 100).at(3, 8, 16, 145).at(3, 8, 30, 279)
	rec := closeReason(t, d)
	assert.Equal(t, ExitSweep, rec.Reason)
}

func TestOutsideSessionsClosesAfterSessionEnd(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 8, 0, 100).at(3, 10, 50, 55)
	require.NotNil(t, d.trade(SessionOne))
	assert.Equal(t, 4, d.trade(SessionOne).Zone)

	d.at(3, 11, 0, 56).at(3, 11, 10, 55.5).at(3, 12, 30, 60)
	rec := closeReason(t, d)
	assert.Equal(t, ExitOutsideSessions, rec.Reason)
	assert.Equal(t, Long, rec.Direction)
	assert.Equal(t, 5.0, rec.PnL)
}

func TestTimeCloseLowestBand(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 14, 30, 100).at(3, 14, 50, 145).at(3, 14, 52, 140)
	d.at(3, 15, 7, 141)
	assert.Empty(t, d.records(), "15 minutes since the extreme")
	d.at(3, 15, 8, 141)
	rec := closeReason(t, d)
	assert.Equal(t, ExitTimeClose, rec.Reason)
	assert.Equal(t, 4.0, rec.PnL)
	assert.Equal(t, 5.0, rec.MaxFavorable)
}

func TestTimeCloseHigherBand(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 14, 30, 100).at(3, 15, 20, 171)
	tr := d.trade(SessionTwo)
	require.NotNil(t, tr)
	assert.Equal(t, 70.0, tr.Target)
	assert.Equal(t, 2, tr.Zone)

	d.at(3, 15, 36, 171).at(3, 15, 50, 171)
	assert.Empty(t, d.records(), "higher band ignores the 16 minute rule")
	d.at(3, 15, 51, 171)
	assert.Equal(t, ExitTimeClose, closeReason(t, d).Reason)
}

func TestNoCloseRulesExemption(t *testing.T) {
	walk := func(d *driver) {
		d.at(3, 8, 0, 100).at(3, 8, 16, 145).at(3, 8, 20, 160).at(3, 8, 25, 145.5).at(3, 8, 50, 146)
	}

	honoured := newDriver(t, DefaultParams(), Canonical())
	walk(honoured)
	assert.Empty(t, honoured.records(), "earliest zone rides to forced close")

	v := Canonical()
	v.WaiveNoCloseRules = true
	waived := newDriver(t, DefaultParams(), v)
	walk(waived)
	assert.Equal(t, ExitBreakEven, closeReason(t, waived).Reason)
}

func TestBreakEvenPolicies(t *testing.T) {
	cases := []struct {
		policy  BreakEvenPolicy
		session SessionID
		want    bool
	}{
		{BreakEvenAll, SessionTwo, true},
		{BreakEvenNone, SessionTwo, false},
		{BreakEvenEarliestZoneOnly, SessionTwo, false},
		{BreakEvenExceptEarliestZone, SessionTwo, true},
		{BreakEvenAll, SessionOne, true},
		{BreakEvenEarliestZoneOnly, SessionOne, true},
		{BreakEvenExceptEarliestZone, SessionOne, false},
	}
	for _, tc := range cases {
		t.Run(tc.policy.String()+"/"+tc.session.String(), func(t *testing.T) {
			v := Variant{Name: "t", BreakEven: tc.policy, WaiveNoCloseRules: true}
			d := newDriver(t, DefaultParams(), v)
			if tc.session == SessionOne {
				d.at(3, 8, 0, 100).at(3, 8, 16, 145).at(3, 8, 20, 160).at(3, 8, 25, 145.5)
			} else {
				d.at(3, 14, 30, 100).at(3, 14, 50, 145).at(3, 14, 55, 160).at(3, 15, 0, 145.5)
			}
			recs := d.records()
			if tc.want {
				require.Len(t, recs, 1)
				assert.Equal(t, ExitBreakEven, recs[0].Reason)
			} else {
				assert.Empty(t, recs)
			}
		})
	}
}

func TestPartialLock(t *testing.T) {
	v := Canonical()
	v.PartialLock = true
	d := newDriver(t, DefaultParams(), v)
	d.at(3, 14, 30, 100).at(3, 14, 50, 145).at(3, 14, 52, 112)
	d.at(3, 15, 7, 120)
	assert.Empty(t, d.records())
	d.at(3, 15, 8, 121)
	rec := closeReason(t, d)
	assert.Equal(t, ExitPartialClose, rec.Reason)
	assert.Equal(t, 113.0, rec.ExitPrice)
	assert.Equal(t, 32.0, rec.PnL)

	plain := newDriver(t, DefaultParams(), Canonical())
	plain.at(3, 14, 30, 100).at(3, 14, 50, 145).at(3, 14, 52, 112).at(3, 15, 8, 121)
	assert.Equal(t, ExitTimeClose, closeReason(t, plain).Reason)
}

func TestLevelReuseBlocking(t *testing.T) {
	day := func(d *driver) {
		d.at(3, 14, 30, 100).at(3, 14, 50, 145).at(3, 14, 51, 105)
		require.Len(t, d.records(), 1)
		d.at(3, 15, 50, 146)
	}

	tracking := Canonical()
	tracking.TrackUsedLevels = true
	d := newDriver(t, DefaultParams(), tracking)
	day(d)
	assert.Equal(t, 1, d.eng.Opened())

	free := newDriver(t, DefaultParams(), Canonical())
	day(free)
	assert.Equal(t, 2, free.eng.Opened())
}
