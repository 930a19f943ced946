package hst

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"session-backtest/services/engine"
	"session-backtest/services/feed"
)

// Profile is a broker naming convention for the exported symbol.
type Profile struct {
	Name   string
	Symbol string
	Prefix string
}

var Profiles = map[string]Profile{
	"ig-demo": {Name: "IG-DEMO", Symbol: "GER30(£)", Prefix: "GER30_DEMO"},
	"ig-live": {Name: "IG-LIVE", Symbol: "GER30", Prefix: "GER30_LIVE"},
}

// ProfileNames returns the known profiles, sorted.
func ProfileNames() []string {
	names := make([]string, 0, len(Profiles))
	for k := range Profiles {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ConvertOptions controls Convert.
type ConvertOptions struct {
	OutDir       string
	Profiles     []string
	SymbolSuffix string
	Copyright    string
	Digits       int
	Spread       int32
	Combine      bool
	KeepWeekends bool
	// Now stamps the header creation time.
	Now func() time.Time
}

// Output describes one written HST and CSV pair.
type Output struct {
	Profile string
	Years   []int
	HST     string
	CSV     string
	Bars    int
}

// Convert fills minute gaps, optionally drops weekends and writes one HST and
// one CSV per profile and year (or per profile when combining years).
func Convert(bars []engine.Bar, opts ConvertOptions, log *zap.Logger) ([]Output, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Profiles) == 0 {
		opts.Profiles = ProfileNames()
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to convert")
	}
	if gaps := feed.DetectGaps(bars, time.Minute); len(gaps) > 0 {
		widest := gaps[0]
		for _, g := range gaps[1:] {
			if g.Missing > widest.Missing {
				widest = g
			}
		}
		log.Info("minute gaps detected",
			zap.Int("gaps", len(gaps)),
			zap.Time("widest_after", widest.After),
			zap.Int("widest_missing", widest.Missing),
		)
	}
	series, filled := feed.FillGaps(bars, time.Minute)
	if filled > 0 {
		log.Info("filled missing minutes", zap.Int("count", filled))
	}
	if !opts.KeepWeekends {
		before := len(series)
		series = feed.DropWeekends(series)
		log.Debug("removed weekends", zap.Int("before", before), zap.Int("after", len(series)))
	}

	groups := map[string][]engine.Bar{}
	var keys []string
	if opts.Combine {
		keys = []string{"combined"}
		groups["combined"] = series
	} else {
		byYear := feed.SplitByYear(series)
		years := make([]int, 0, len(byYear))
		for y := range byYear {
			years = append(years, y)
		}
		sort.Ints(years)
		for _, y := range years {
			k := strconv.Itoa(y)
			keys = append(keys, k)
			groups[k] = byYear[y]
		}
	}

	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	var outs []Output
	for _, name := range opts.Profiles {
		prof, ok := Profiles[name]
		if !ok {
			return outs, fmt.Errorf("unknown profile %q (known: %v)", name, ProfileNames())
		}
		symbol := prof.Symbol + opts.SymbolSuffix
		for _, k := range keys {
			group := groups[k]
			if len(group) == 0 {
				continue
			}
			base := filepath.Join(opts.OutDir, fmt.Sprintf("%s%s_M1_%s", prof.Prefix, opts.SymbolSuffix, k))
			h := Header{Copyright: opts.Copyright, Symbol: symbol, Period: 1, Digits: int32(opts.Digits), Created: opts.Now()}
			if err := writeHSTFile(base+".hst", h, opts.Spread, group); err != nil {
				return outs, err
			}
			if err := writeCSVFile(base+".csv", group, opts.Digits); err != nil {
				return outs, err
			}
			out := Output{Profile: prof.Name, HST: base + ".hst", CSV: base + ".csv", Bars: len(group), Years: yearsOf(group)}
			log.Info("wrote mt4 history", zap.String("profile", prof.Name), zap.String("hst", out.HST), zap.Int("bars", out.Bars))
			outs = append(outs, out)
		}
	}
	return outs, nil
}

func yearsOf(bars []engine.Bar) []int {
	var ys []int
	for _, b := range bars {
		if y := b.Time.Year(); len(ys) == 0 || ys[len(ys)-1] != y {
			ys = append(ys, y)
		}
	}
	return ys
}

func writeHSTFile(path string, h Header, spread int32, bars []engine.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	w, err := NewWriter(f, h, spread)
	if err != nil {
		return err
	}
	for _, b := range bars {
		if err := w.Write(b); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Close()
}

func writeCSVFile(path string, bars []engine.Bar, digits int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteCSV(f, bars, digits); err != nil {
		return err
	}
	return f.Close()
}

// WriteCSV writes the <DATE>,<TIME>,<OPEN>,<HIGH>,<LOW>,<CLOSE>,<VOLUME> layout.
func WriteCSV(w io.Writer, bars []engine.Bar, digits int) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write([]string{"<DATE>", "<TIME>", "<OPEN>", "<HIGH>", "<LOW>", "<CLOSE>", "<VOLUME>"}); err != nil {
		return err
	}
	px := func(v float64) string { return strconv.FormatFloat(v, 'f', digits, 64) }
	for _, b := range bars {
		row := []string{
			b.Time.Format("2006.01.02"),
			b.Time.Format("15:04:05"),
			px(b.Open), px(b.High), px(b.Low), px(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	return bw.Flush()
}
