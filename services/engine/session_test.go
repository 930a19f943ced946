package engine

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionTrackerOpenHighLow(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 7, 59, 90)
	s1 := d.eng.session(SessionOne)
	assert.False(t, s1.active)

	d.at(3, 8, 0, 100).at(3, 8, 5, 120).at(3, 8, 6, 95)
	assert.True(t, s1.active)
	assert.Equal(t, 100.0, s1.open)
	assert.Equal(t, 120.0, s1.high)
	assert.Equal(t, 95.0, s1.low)

	d.at(3, 12, 30, 99)
	assert.False(t, s1.active)
	assert.Zero(t, s1.open)
	assert.Len(t, d.events.Filter(EventSessionEnd), 1)
}

func nightParams() Params {
	p := DefaultParams()
	p.Calendar.Sessions[1].Window = Window{Start: At(22, 0), End: At(2, 0)}
	p.Calendar.Sessions[1].Zones = []Zone{
		zone(1, At(22, 30), At(23, 30), At(0, 45), 45),
		zone(2, At(0, 10), At(1, 0), At(1, 30), 45),
	}
	p.Gates = p.Gates[:1]
	return p
}

func TestWrappedSessionSpansMidnight(t *testing.T) {
	d := newDriver(t, nightParams(), Canonical())
	d.at(3, 23, 0, 100)
	s2 := d.eng.session(SessionTwo)
	require.True(t, s2.active)

	d.at(4, 0, 30, 130)
	assert.True(t, s2.active)
	assert.Equal(t, 100.0, s2.open, "open survives midnight")
	assert.Equal(t, 130.0, s2.high)
	assert.Len(t, d.events.Filter(EventSessionStart), 1)

	d.at(4, 2, 0, 120)
	assert.False(t, s2.active)
	assert.Len(t, d.events.Filter(EventSessionEnd), 1)
}

func TestWrappedSessionStaysBlockedPastMidnight(t *testing.T) {
	d := newDriver(t, nightParams(), Canonical())
	d.at(3, 22, 0, 100).at(3, 22, 5, 200).at(3, 22, 31, 146)
	s2 := d.eng.session(SessionTwo)
	require.False(t, s2.allowed, "54 point pull-back cancels the night")

	d.at(4, 0, 15, 160)
	assert.False(t, s2.active)
	assert.Nil(t, d.trade(SessionTwo))

	// the next night starts a fresh session-day
	d.at(4, 22, 0, 200)
	assert.True(t, s2.allowed)
	assert.True(t, s2.active)
}

func TestWrappedSessionForcedCloseIsNextDate(t *testing.T) {
	d := newDriver(t, nightParams(), Canonical())
	d.at(3, 22, 0, 100).at(3, 23, 0, 146)
	tr := d.trade(SessionTwo)
	require.NotNil(t, tr)
	assert.Equal(t, ts(4, 0, 45), tr.ForcedClose)

	d.at(3, 23, 1, 146)
	require.NotNil(t, d.trade(SessionTwo), "not closed before its forced close")

	d.at(4, 0, 45, 140)
	recs := d.records()
	require.Len(t, recs, 1)
	assert.Equal(t, ExitForcedClose, recs[0].Reason)
}

func TestCalendarDayResolvesZonesOfWrappedSession(t *testing.T) {
	day := nightParams().Calendar.Day(ts(3, 12, 0))
	late, ok := day.Zone(SessionTwo, 1)
	require.True(t, ok)
	assert.Equal(t, ts(3, 22, 30), late.Start)
	assert.Equal(t, ts(4, 0, 45), late.ForcedClose)

	early, ok := day.Zone(SessionTwo, 2)
	require.True(t, ok)
	assert.Equal(t, ts(4, 0, 10), early.Start)
	assert.Equal(t, ts(4, 1, 30), early.ForcedClose)

	_, ok = day.Zone(SessionTwo, 9)
	assert.False(t, ok)
}

func TestOvernightGateBlocksSessionOne(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 17, 16, 100)
	d.at(4, 8, 0, 300).at(4, 8, 16, 345)
	assert.Nil(t, d.trade(SessionOne))
	blocked := d.events.Filter(EventSessionBlocked)
	require.Len(t, blocked, 1)
	assert.Equal(t, SessionOne, blocked[0].Session)
	assert.Equal(t, "volatility", blocked[0].Details["reason"])

	// session two is unaffected
	d.at(4, 14, 30, 300).at(4, 14, 50, 345)
	assert.NotNil(t, d.trade(SessionTwo))
}

func TestOvernightGateBelowThreshold(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 17, 16, 100)
	d.at(4, 8, 0, 299.5).at(4, 8, 16, 344.5)
	assert.NotNil(t, d.trade(SessionOne))
}

func TestGateReferenceIsOneShot(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 12, 0, 100).at(3, 14, 30, 200)
	require.Len(t, d.events.Filter(EventSessionBlocked), 0)

	// no fresh reference on day 4: a large move at the check passes
	d.at(4, 14, 30, 600).at(4, 14, 50, 645)
	assert.NotNil(t, d.trade(SessionTwo))

	d2 := newDriver(t, DefaultParams(), Canonical())
	d2.at(3, 12, 0, 100).at(3, 14, 30, 250).at(3, 14, 50, 295)
	assert.Nil(t, d2.trade(SessionTwo))
}

func TestWindowContainsHalfOpenAndWrap(t *testing.T) {
	w := Window{Start: At(8, 16), End: At(9, 5)}
	assert.False(t, w.Contains(ts(3, 8, 15)))
	assert.True(t, w.Contains(ts(3, 8, 16)))
	assert.True(t, w.Contains(ts(3, 9, 4)))
	assert.False(t, w.Contains(ts(3, 9, 5)))

	night := Window{Start: At(22, 0), End: At(1, 15)}
	assert.True(t, night.Contains(ts(3, 23, 30)))
	assert.True(t, night.Contains(ts(4, 0, 10)))
	assert.False(t, night.Contains(ts(4, 1, 15)))
	assert.False(t, night.Contains(ts(4, 12, 0)))
}

func TestCalendarDayAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	cal := DefaultParams().Calendar

	for _, date := range []time.Time{
		time.Date(2024, time.March, 31, 0, 0, 0, 0, loc),
		time.Date(2024, time.October, 27, 0, 0, 0, 0, loc),
	} {
		day := cal.Day(date)
		assert.True(t, day.Weekend)
		require.Len(t, day.Sessions, 2)
		s1 := day.Sessions[0]
		assert.Equal(t, 8, s1.Start.Hour())
		assert.Equal(t, 12, s1.End.Hour())
		assert.Equal(t, 30, s1.End.Minute())
		require.Len(t, s1.Zones, 4)
		assert.Equal(t, 9, s1.Zones[0].ForcedClose.Hour())
		assert.Equal(t, 31, s1.Zones[0].ForcedClose.Minute())
	}

	spring := time.Date(2024, time.March, 31, 0, 0, 0, 0, loc)
	skipped := At(1, 30).On(spring)
	assert.False(t, skipped.IsZero())
	assert.Equal(t, spring.Day(), skipped.Day())
}

func TestCalendarDayWrappedWindowEndsNextDate(t *testing.T) {
	cal := Calendar{Sessions: []SessionSpec{{ID: SessionOne, Window: Window{Start: At(22, 0), End: At(1, 0)}}}}
	day := cal.Day(ts(3, 12, 0))
	s := day.Sessions[0]
	assert.Equal(t, ts(3, 22, 0), s.Start)
	assert.Equal(t, ts(4, 1, 0), s.End)
	assert.False(t, day.Weekend)
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("08:16")
	require.NoError(t, err)
	assert.Equal(t, At(8, 16), got)
	assert.Equal(t, "08:16", got.String())

	_, err = ParseTimeOfDay("8h16")
	assert.Error(t, err)
}
