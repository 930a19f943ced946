package feed

// Seeded synthetic minute bars in the CSV layout Read accepts.

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand"
	"time"

	"session-backtest/services/engine"
)

// GenerateOptions controls Generate.
type GenerateOptions struct {
	Start      time.Time
	Days       int
	Seed       int64
	StartPrice float64
	// Volatility is the per-minute standard deviation in points.
	Volatility float64
}

// Generate produces weekday minute bars. Identical options give identical bars.
func Generate(opts GenerateOptions) []engine.Bar {
	if opts.StartPrice <= 0 {
		opts.StartPrice = 18000
	}
	if opts.Volatility <= 0 {
		opts.Volatility = 4
	}
	rng := rand.New(rand.NewSource(opts.Seed))
	y, m, d := opts.Start.Date()
	first := time.Date(y, m, d, 0, 0, 0, 0, opts.Start.Location())
	price := opts.StartPrice
	var bars []engine.Bar
	for day := 0; day < opts.Days; day++ {
		date := first.AddDate(0, 0, day)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for minute := 0; minute < 24*60; minute++ {
			open := price
			move := rng.NormFloat64() * opts.Volatility
			if rng.Intn(120) == 0 {
				move *= 6
			}
			price = math.Max(1, price+move)
			wick := math.Abs(rng.NormFloat64()) * opts.Volatility / 2
			bars = append(bars, engine.Bar{
				Time:   date.Add(time.Duration(minute) * time.Minute),
				Open:   round1(open),
				High:   round1(math.Max(open, price) + wick),
				Low:    round1(math.Min(open, price) - wick),
				Close:  round1(price),
				Volume: int64(50 + rng.Intn(400)),
			})
		}
	}
	return bars
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

// WriteCSV writes bars as dd/mm/yyyy;HH:MM:SS;o;h;l;c;v in their own location.
func WriteCSV(w io.Writer, bars []engine.Bar) error {
	bw := bufio.NewWriter(w)
	for _, b := range bars {
		if _, err := fmt.Fprintf(bw, "%s;%.1f;%.1f;%.1f;%.1f;%d\n",
			b.Time.Format("02/01/2006;15:04:05"), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}
	return bw.Flush()
}
