package feed

// Semicolon-separated minute bars: dd/mm/yyyy;HH:MM:SS;open;high;low;close[;volume]

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"session-backtest/services/engine"
)

const rowLayout = "02/01/2006 15:04:05"

// Options controls localization and filtering of loaded bars.
type Options struct {
	// Source is the zone the file's wall times are written in.
	Source *time.Location
	// Target is the zone bars are delivered in.
	Target *time.Location
	// Years keeps only bars whose target-zone year is listed. Empty keeps all.
	Years YearSet
}

// Stats counts what happened to the rows of a file.
type Stats struct {
	Rows      int `json:"rows"`
	Kept      int `json:"kept"`
	Malformed int `json:"malformed"`
	Filtered  int `json:"filtered"`
}

// RawBar is a parsed row before localization.
type RawBar struct {
	Wall   time.Time // wall clock fields, location UTC
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// ParseRow parses one data row.
func ParseRow(rec []string) (RawBar, error) {
	if len(rec) < 6 {
		return RawBar{}, fmt.Errorf("want at least 6 fields, got %d", len(rec))
	}
	for i := range rec {
		rec[i] = strings.TrimSpace(strings.Trim(rec[i], "\""))
	}
	wall, err := time.Parse(rowLayout, strings.TrimPrefix(rec[0], "\ufeff")+" "+rec[1])
	if err != nil {
		return RawBar{}, fmt.Errorf("timestamp: %w", err)
	}
	var px [4]float64
	for i := range px {
		v, err := strconv.ParseFloat(rec[2+i], 64)
		if err != nil {
			return RawBar{}, fmt.Errorf("field %d: %w", 2+i, err)
		}
		px[i] = v
	}
	var vol int64
	if len(rec) > 6 && rec[6] != "" {
		f, err := strconv.ParseFloat(rec[6], 64)
		if err != nil {
			return RawBar{}, fmt.Errorf("volume: %w", err)
		}
		vol = int64(f)
	}
	rb := RawBar{Wall: wall, Open: px[0], High: px[1], Low: px[2], Close: px[3], Volume: vol}
	if err := rb.validate(); err != nil {
		return RawBar{}, err
	}
	return rb, nil
}

// validate enforces OHLC invariants.
func (b RawBar) validate() error {
	switch {
	case b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0:
		return errors.New("non-positive price")
	case b.Low > b.High:
		return errors.New("low above high")
	case b.Low > min(b.Open, b.Close) || b.High < max(b.Open, b.Close):
		return errors.New("open/close outside high-low range")
	}
	return nil
}

// Localize interprets wall as a wall time in loc. Wall times skipped by a DST
// transition move forward to the transition; repeated ones take the first occurrence.
func Localize(wall time.Time, loc *time.Location) time.Time {
	y, mo, d := wall.Date()
	h, mi, s := wall.Clock()
	t := time.Date(y, mo, d, h, mi, s, 0, loc)
	got := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	want := time.Date(y, mo, d, h, mi, s, 0, time.UTC)
	if !got.Equal(want) {
		start, end := t.ZoneBounds()
		if got.After(want) {
			return start
		}
		return end
	}
	_, off := t.Zone()
	start, _ := t.ZoneBounds()
	if !start.IsZero() {
		_, prevOff := start.Add(-time.Second).Zone()
		if prevOff > off {
			earlier := t.Add(-time.Duration(prevOff-off) * time.Second)
			if earlier.Before(start) {
				return earlier
			}
		}
	}
	return t
}

// Read parses every row of r; malformed rows are skipped and counted.
func Read(r io.Reader, opts Options) ([]engine.Bar, Stats, error) {
	src, dst := opts.Source, opts.Target
	if src == nil {
		src = time.UTC
	}
	if dst == nil {
		dst = src
	}
	cr := csv.NewReader(decodeUTF16(r))
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	var stats Stats
	bars := make([]engine.Bar, 0, 1_000)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		stats.Rows++
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				stats.Malformed++
				continue
			}
			return nil, stats, fmt.Errorf("read csv: %w", err)
		}
		rb, err := ParseRow(rec)
		if err != nil {
			stats.Malformed++
			continue
		}
		ts := Localize(rb.Wall, src).In(dst)
		if !opts.Years.Contains(ts.Year()) {
			stats.Filtered++
			continue
		}
		bars = append(bars, engine.Bar{Time: ts, Open: rb.Open, High: rb.High, Low: rb.Low, Close: rb.Close, Volume: rb.Volume})
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	stats.Kept = len(bars)
	return bars, stats, nil
}

// decodeUTF16 transcodes UTF-16 input that starts with a byte order mark.
func decodeUTF16(r io.Reader) io.Reader {
	br := bufio.NewReaderSize(r, 64*1024)
	b, _ := br.Peek(2)
	if len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		return transform.NewReader(br, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	}
	return br
}

// Load reads the file at path with Read.
func Load(path string, opts Options) ([]engine.Bar, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	return Read(f, opts)
}

// CSVSource loads the file once and serves it to every Open.
type CSVSource struct {
	Path    string
	Options Options
	Logger  *zap.Logger

	once  sync.Once
	bars  engine.SliceSource
	stats Stats
	err   error
}

// NewCSVSource returns a source that reads path on first use.
func NewCSVSource(path string, opts Options, logger *zap.Logger) *CSVSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVSource{Path: path, Options: opts, Logger: logger}
}

func (s *CSVSource) load() {
	start := time.Now()
	bars, stats, err := Load(s.Path, s.Options)
	s.bars, s.stats, s.err = bars, stats, err
	if err != nil {
		return
	}
	s.Logger.Info("loaded csv",
		zap.String("path", s.Path),
		zap.Int("rows", stats.Rows),
		zap.Int("kept", stats.Kept),
		zap.Int("malformed", stats.Malformed),
		zap.Int("filtered", stats.Filtered),
		zap.Duration("elapsed", time.Since(start)),
	)
}

func (s *CSVSource) Open(ctx context.Context) (engine.BarIterator, error) {
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}
	return s.bars.Open(ctx)
}

// Bars returns the loaded bars.
func (s *CSVSource) Bars() ([]engine.Bar, error) {
	s.once.Do(s.load)
	return s.bars, s.err
}

func (s *CSVSource) Stats() Stats {
	s.once.Do(s.load)
	return s.stats
}
