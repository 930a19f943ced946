package engine

import (
	"math"
	"time"
)

// Gate compares the price at Check against the one stored at Reference and
// blocks Session for the day when the move reaches Threshold.
type Gate struct {
	Session   SessionID
	Reference TimeOfDay
	Check     TimeOfDay
	Threshold float64
}

// PartialLock closes a lowest-band trade at entry +/- Lock once its peak
// favorable excursion sits in [MinPeak, MaxPeak] and After has elapsed.
type PartialLock struct {
	MinPeak float64
	MaxPeak float64
	Lock    float64
	After   time.Duration
}

// Params is the full rule-set of one backtest. Validate before use.
type Params struct {
	Calendar          Calendar
	Ladder            Ladder
	Tolerance         float64
	StopDistance      float64
	SweepDistance     float64
	Retracement       RetracementTable
	Gates             []Gate
	BreakEvenAdverse  float64
	BreakEvenBand     float64
	TimeCloseLowBand  time.Duration
	TimeCloseHighBand time.Duration
	PartialLock       PartialLock
}

func zone(id int, start, end, forced TimeOfDay, base float64) Zone {
	return Zone{ID: id, Window: Window{Start: start, End: end}, ForcedClose: forced, BaseDistance: base}
}

// DefaultParams returns the DAX two-session setup in Europe/London wall time.
func DefaultParams() Params {
	earliest := zone(1, At(8, 16), At(9, 5), At(9, 31), 45)
	earliest.NoCloseRules = true
	return Params{
		Calendar: Calendar{Sessions: []SessionSpec{
			{
				ID:     SessionOne,
				Window: Window{Start: At(8, 0), End: At(12, 30)},
				Zones: []Zone{
					earliest,
					zone(2, At(9, 30), At(9, 45), At(10, 6), 45),
					zone(3, At(10, 15), At(10, 45), At(12, 31), 70),
					zone(4, At(10, 45), At(11, 45), At(12, 31), 45),
				},
			},
			{
				ID:     SessionTwo,
				Window: Window{Start: At(14, 30), End: At(17, 16)},
				Zones: []Zone{
					zone(1, At(14, 46), At(15, 6), At(17, 16), 45),
					zone(2, At(15, 15), At(15, 45), At(17, 16), 70),
					zone(3, At(15, 45), At(16, 48), At(17, 16), 45),
				},
			},
		}},
		Ladder:        Ladder{45, 70, 100, 130},
		Tolerance:     9,
		StopDistance:  40,
		SweepDistance: 179,
		Retracement: RetracementTable{
			{Min: 15, Max: 30, Action: ExtraDistance(18)},
			{Min: 30, Max: 36, Action: SkipLevels(1)},
			{Min: 36, Max: 46, Action: SkipLevels(2)},
			{Min: 46, Max: math.Inf(1), Action: CancelSession()},
		},
		Gates: []Gate{
			{Session: SessionOne, Reference: At(17, 16), Check: At(8, 0), Threshold: 200},
			{Session: SessionTwo, Reference: At(12, 0), Check: At(14, 30), Threshold: 150},
		},
		BreakEvenAdverse:  15,
		BreakEvenBand:     1,
		TimeCloseLowBand:  16 * time.Minute,
		TimeCloseHighBand: 31 * time.Minute,
		PartialLock:       PartialLock{MinPeak: 32, MaxPeak: 35, Lock: 32, After: 16 * time.Minute},
	}
}
