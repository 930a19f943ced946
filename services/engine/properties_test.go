package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// randomWalk builds minute bars over weekdays with a fixed seed.
func randomWalk(seed int64, days int) SliceSource {
	rng := rand.New(rand.NewSource(seed))
	var bars []Bar
	price := 18000.0
	start := time.Date(2024, time.June, 3, 7, 0, 0, 0, london)
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for m := 0; m < 11*60; m++ {
			open := price
			step := rng.NormFloat64() * 6
			if rng.Intn(50) == 0 {
				step *= 8
			}
			price += step
			hi := max(open, price) + rng.Float64()*4
			lo := min(open, price) - rng.Float64()*4
			bars = append(bars, Bar{Time: day.Add(time.Duration(m) * time.Minute), Open: open, High: hi, Low: lo, Close: price})
		}
	}
	return bars
}

func allVariants() []Variant {
	return []Variant{
		Canonical(),
		{Name: "escalated", Escalation: true, TrackUsedLevels: true},
		{Name: "waived", WaiveNoCloseRules: true, BreakEven: BreakEvenNone, PartialLock: true},
		{Name: "earliest", Escalation: true, BreakEven: BreakEvenEarliestZoneOnly},
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	src := randomWalk(7, 20)
	for _, v := range allVariants() {
		for _, path := range []IntrabarPath{PathOpen, PathLowHigh, PathOpenExtremumOtherClose} {
			first, err := Run(context.Background(), src, DefaultParams(), v, path)
			require.NoError(t, err)
			second, err := Run(context.Background(), src, DefaultParams(), v, path)
			require.NoError(t, err)
			assert.Equal(t, first.Records, second.Records, "%s/%s", v.Name, path)
		}
	}
}

func TestEveryOpenedTradeIsClosedOnce(t *testing.T) {
	src := randomWalk(11, 30)
	for _, v := range allVariants() {
		res, err := Run(context.Background(), src, DefaultParams(), v, PathLowHigh)
		require.NoError(t, err)
		assert.Equal(t, res.Opened, len(res.Records), v.Name)
		assert.NotZero(t, res.Opened, "walk should trigger entries for %s", v.Name)
	}
}

func TestAtMostOneOpenTradePerSession(t *testing.T) {
	events := &EventLog{}
	_, err := Run(context.Background(), randomWalk(3, 30), DefaultParams(), allVariants()[1], PathOpenExtremumOtherClose, WithEventLog(events))
	require.NoError(t, err)

	open := map[SessionID]bool{}
	for _, ev := range events.Events {
		switch ev.Type {
		case EventTradeOpen:
			require.False(t, open[ev.Session], "second open for %s at %s", ev.Session, ev.Ts)
			open[ev.Session] = true
		case EventTradeClose:
			require.True(t, open[ev.Session])
			open[ev.Session] = false
		}
	}
}

func TestBlockedSessionNeverReopensSameDay(t *testing.T) {
	events := &EventLog{}
	_, err := Run(context.Background(), randomWalk(5, 40), DefaultParams(), Canonical(), PathLowHigh, WithEventLog(events))
	require.NoError(t, err)

	type key struct {
		s   SessionID
		day string
	}
	blocked := map[key]bool{}
	sawBlock := false
	for _, ev := range events.Events {
		k := key{ev.Session, ev.Ts.Format("2006-01-02")}
		switch ev.Type {
		case EventSessionBlocked:
			blocked[k] = true
			sawBlock = true
		case EventTradeOpen:
			assert.False(t, blocked[k], "trade opened in blocked %s on %s", ev.Session, k.day)
		}
	}
	assert.True(t, sawBlock, "walk should trip at least one cancellation")
}

func TestCancellationAtThresholdBlocksIdleSession(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	// 50 from open, exactly 46 off the high.
	d.at(3, 8, 0, 100).at(3, 8, 10, 196).at(3, 8, 20, 150)
	require.Len(t, d.events.Filter(EventSessionBlocked), 1)
	assert.Nil(t, d.trade(SessionOne))

	// would qualify with a fresh session, but the day is blocked
	d.at(3, 9, 35, 146)
	assert.Zero(t, d.eng.Opened())

	// next day is clean
	d.at(4, 8, 0, 100).at(4, 8, 16, 145)
	assert.NotNil(t, d.trade(SessionOne))
}

func TestCancellationNeverClosesOpenTrade(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 8, 0, 100).at(3, 8, 16, 145)
	require.NotNil(t, d.trade(SessionOne))

	d.at(3, 8, 20, 184).at(3, 8, 25, 138).at(3, 8, 30, 150)
	assert.NotNil(t, d.trade(SessionOne))
	assert.Empty(t, d.events.Filter(EventSessionBlocked))
	assert.Empty(t, d.records())
}

func TestEndOfStreamClosesAtLastPrice(t *testing.T) {
	d := newDriver(t, DefaultParams(), Canonical())
	d.at(3, 8, 0, 100).at(3, 8, 16, 145).at(3, 8, 17, 140)
	recs := d.eng.Finish()
	require.Len(t, recs, 1)
	assert.Equal(t, ExitEndOfBacktest, recs[0].Reason)
	assert.Equal(t, 140.0, recs[0].ExitPrice)
	assert.Equal(t, 5.0, recs[0].PnL)

	d.at(3, 8, 18, 100)
	assert.Len(t, d.eng.Finish(), 1, "finished engine ignores samples")
}

func TestVariantsDoNotShareState(t *testing.T) {
	src := randomWalk(9, 10)
	alone, err := Run(context.Background(), src, DefaultParams(), Canonical(), PathLowHigh)
	require.NoError(t, err)

	a, err := New(DefaultParams(), Canonical())
	require.NoError(t, err)
	b, err := New(DefaultParams(), Variant{Name: "other", Escalation: true, TrackUsedLevels: true})
	require.NoError(t, err)
	for _, bar := range src {
		a.StepBar(bar, PathLowHigh)
		b.StepBar(bar, PathLowHigh)
	}
	assert.Equal(t, alone.Records, a.Finish())
}
