package report

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"session-backtest/services/engine"
)

// HardCloseLevels are the what-if take-profit levels, in points.
var HardCloseLevels = []int{50, 60, 70, 80, 90, 100}

// HardClose returns level if the trade's peak reached it, else the actual result.
func HardClose(r engine.ClosedTradeRecord, level int) float64 {
	if r.MaxFavorable >= float64(level) {
		return float64(level)
	}
	return r.PnL
}

func hcKey(level int) string { return fmt.Sprintf("hc_%d", level) }

// Bucket aggregates closed trades.
type Bucket struct {
	Count       int                        `json:"count"`
	Wins        int                        `json:"wins"`
	Losses      int                        `json:"losses"`
	Net         decimal.Decimal            `json:"net"`
	GrossProfit decimal.Decimal            `json:"gross_profit"`
	GrossLoss   decimal.Decimal            `json:"gross_loss"`
	HardClose   map[string]decimal.Decimal `json:"hard_close"`
	SumDrawdown decimal.Decimal            `json:"sum_drawdown"`
	MaxDrawdown decimal.Decimal            `json:"max_drawdown"`
	SumPeak     decimal.Decimal            `json:"sum_peak"`
	MaxPeak     decimal.Decimal            `json:"max_peak"`
	pnls        []float64
}

// Add folds r into the bucket.
func (b *Bucket) Add(r engine.ClosedTradeRecord) {
	pnl := decimal.NewFromFloat(r.PnL)
	b.Count++
	b.Net = b.Net.Add(pnl)
	if r.Win() {
		b.Wins++
		b.GrossProfit = b.GrossProfit.Add(pnl)
	} else {
		b.Losses++
		b.GrossLoss = b.GrossLoss.Add(pnl.Abs())
	}
	if b.HardClose == nil {
		b.HardClose = map[string]decimal.Decimal{}
	}
	for _, lvl := range HardCloseLevels {
		k := hcKey(lvl)
		b.HardClose[k] = b.HardClose[k].Add(decimal.NewFromFloat(HardClose(r, lvl)))
	}
	dd := decimal.NewFromFloat(r.MaxAdverse)
	b.SumDrawdown = b.SumDrawdown.Add(dd)
	if dd.GreaterThan(b.MaxDrawdown) {
		b.MaxDrawdown = dd
	}
	peak := decimal.NewFromFloat(r.MaxFavorable)
	b.SumPeak = b.SumPeak.Add(peak)
	if peak.GreaterThan(b.MaxPeak) {
		b.MaxPeak = peak
	}
	b.pnls = append(b.pnls, r.PnL)
}

// WinRate is in percent.
func (b Bucket) WinRate() decimal.Decimal {
	if b.Count == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(b.Wins)).Div(decimal.NewFromInt(int64(b.Count))).Mul(decimal.NewFromInt(100)).Round(2)
}

func (b Bucket) Average() decimal.Decimal {
	if b.Count == 0 {
		return decimal.Zero
	}
	return b.Net.Div(decimal.NewFromInt(int64(b.Count))).Round(2)
}

// ProfitFactor is zero when there are no losses.
func (b Bucket) ProfitFactor() decimal.Decimal {
	if !b.GrossLoss.GreaterThan(decimal.Zero) {
		return decimal.Zero
	}
	return b.GrossProfit.Div(b.GrossLoss).Round(2)
}

func (b Bucket) Median() float64 { return median(b.pnls) }

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

type PeriodRow struct {
	Year   int    `json:"year"`
	Month  int    `json:"month,omitempty"`
	Bucket Bucket `json:"bucket"`
}

// MajorRow groups trades of one year by session, zone or target band.
type MajorRow struct {
	Year   int     `json:"year"`
	Group  string  `json:"group"`
	Count  int     `json:"count"`
	Net    float64 `json:"net"`
	Median float64 `json:"median"`
}

// Summary is the full report of one variant.
type Summary struct {
	Variant       string                    `json:"variant"`
	Total         Bucket                    `json:"total"`
	Yearly        []PeriodRow               `json:"yearly"`
	Monthly       []PeriodRow               `json:"monthly"`
	Major         []MajorRow                `json:"major"`
	Reasons       map[engine.ExitReason]int `json:"reasons"`
	OpenDistances map[string]int            `json:"open_distances"`
}

// DistanceBand names the target band a trade resolved to.
func DistanceBand(target float64) string {
	switch {
	case target < 45:
		return "below_45"
	case target < 70:
		return "45_69"
	case target < 100:
		return "70_99"
	case target < 130:
		return "100_129"
	default:
		return "130_plus"
	}
}

var majorOrder = []string{
	"session1", "session2", "zone1", "zone2", "zone3", "zone4",
	"dist45_69", "dist70_99", "dist100_129", "dist130_plus",
}

// Summarize aggregates by exit time; periods are the exit's calendar year and month.
func Summarize(variant string, recs []engine.ClosedTradeRecord) Summary {
	s := Summary{
		Variant:       variant,
		Reasons:       map[engine.ExitReason]int{},
		OpenDistances: map[string]int{},
	}
	type ym struct{ y, m int }
	monthly := map[ym]*Bucket{}
	yearly := map[int]*Bucket{}
	major := map[int]map[string][]float64{}

	for _, r := range recs {
		s.Total.Add(r)
		y, m := r.ExitTime.Year(), int(r.ExitTime.Month())
		if monthly[ym{y, m}] == nil {
			monthly[ym{y, m}] = &Bucket{}
		}
		monthly[ym{y, m}].Add(r)
		if yearly[y] == nil {
			yearly[y] = &Bucket{}
		}
		yearly[y].Add(r)

		s.Reasons[r.Reason]++
		s.OpenDistances[decimal.NewFromFloat(r.Target).String()]++

		if major[y] == nil {
			major[y] = map[string][]float64{}
		}
		g := major[y]
		g[fmt.Sprintf("session%d", int(r.Session))] = append(g[fmt.Sprintf("session%d", int(r.Session))], r.PnL)
		if r.Zone >= 1 && r.Zone <= 4 {
			g[fmt.Sprintf("zone%d", r.Zone)] = append(g[fmt.Sprintf("zone%d", r.Zone)], r.PnL)
		}
		if band := DistanceBand(r.Target); band != "below_45" {
			g["dist"+band] = append(g["dist"+band], r.PnL)
		}
	}

	for k, b := range monthly {
		s.Monthly = append(s.Monthly, PeriodRow{Year: k.y, Month: k.m, Bucket: *b})
	}
	sort.Slice(s.Monthly, func(i, j int) bool {
		if s.Monthly[i].Year != s.Monthly[j].Year {
			return s.Monthly[i].Year < s.Monthly[j].Year
		}
		return s.Monthly[i].Month < s.Monthly[j].Month
	})
	years := make([]int, 0, len(yearly))
	for y := range yearly {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		s.Yearly = append(s.Yearly, PeriodRow{Year: y, Bucket: *yearly[y]})
		for _, name := range majorOrder {
			pnls := major[y][name]
			if len(pnls) == 0 {
				continue
			}
			net := 0.0
			for _, p := range pnls {
				net += p
			}
			s.Major = append(s.Major, MajorRow{Year: y, Group: name, Count: len(pnls), Net: roundTo(net, 1), Median: roundTo(median(pnls), 1)})
		}
	}
	return s
}

func roundTo(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
