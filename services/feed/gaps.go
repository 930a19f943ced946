package feed

// Gap detection, minute gap filling and weekend removal

import (
	"time"

	"session-backtest/services/engine"
)

// Gap is a run of Missing absent bars following After.
type Gap struct {
	After   time.Time
	Missing int
}

// DetectGaps reports every spacing wider than step in sorted bars.
func DetectGaps(bars []engine.Bar, step time.Duration) []Gap {
	var gaps []Gap
	for i := 1; i < len(bars); i++ {
		d := bars[i].Time.Sub(bars[i-1].Time)
		if d > step {
			gaps = append(gaps, Gap{After: bars[i-1].Time, Missing: int(d/step) - 1})
		}
	}
	return gaps
}

// FillGaps inserts a bar for every missing step, copying the previous bar's
// prices with zero volume. Returns the filled series and the number inserted.
func FillGaps(bars []engine.Bar, step time.Duration) ([]engine.Bar, int) {
	if len(bars) < 2 {
		return bars, 0
	}
	out := make([]engine.Bar, 0, len(bars))
	filled := 0
	out = append(out, bars[0])
	for i := 1; i < len(bars); i++ {
		prev := out[len(out)-1]
		loc := bars[i].Time.Location()
		for t := prev.Time.Add(step); t.Before(bars[i].Time); t = t.Add(step) {
			out = append(out, engine.Bar{Time: t.In(loc), Open: prev.Open, High: prev.High, Low: prev.Low, Close: prev.Close})
			filled++
		}
		out = append(out, bars[i])
	}
	return out, filled
}

// DropWeekends removes bars stamped on a Saturday or Sunday in their own location.
func DropWeekends(bars []engine.Bar) []engine.Bar {
	out := bars[:0:0]
	for _, b := range bars {
		if wd := b.Time.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		out = append(out, b)
	}
	return out
}

// SplitByYear groups sorted bars by calendar year in their own location.
func SplitByYear(bars []engine.Bar) map[int][]engine.Bar {
	out := map[int][]engine.Bar{}
	for _, b := range bars {
		y := b.Time.Year()
		out[y] = append(out[y], b)
	}
	return out
}
