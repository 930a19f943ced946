package engine

import (
	"context"
	"fmt"
	"time"
)

// Bar is a localized OHLCV bar.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// PriceSample is one price observation fed to the engine.
type PriceSample struct {
	Time  time.Time
	Price float64
}

// IntrabarPath defines which prices of a bar reach the engine, in order.
type IntrabarPath int

const (
	// PathOpen feeds one sample at the open.
	PathOpen IntrabarPath = iota
	// PathLowHigh feeds the low then the high.
	PathLowHigh
	// PathOpenExtremumOtherClose is the synthetic open -> nearer extremum -> other -> close path.
	PathOpenExtremumOtherClose
)

func (p IntrabarPath) String() string {
	switch p {
	case PathLowHigh:
		return "low-high"
	case PathOpenExtremumOtherClose:
		return "path"
	default:
		return "open"
	}
}

// ParseIntrabarPath accepts open, low-high or path; empty means open.
func ParseIntrabarPath(s string) (IntrabarPath, error) {
	switch s {
	case "", "open":
		return PathOpen, nil
	case "low-high":
		return PathLowHigh, nil
	case "path":
		return PathOpenExtremumOtherClose, nil
	}
	return 0, fmt.Errorf("unknown intrabar path %q (want open, low-high or path)", s)
}

// Samples expands bar into the price samples the engine sees, all stamped with bar.Time.
func (p IntrabarPath) Samples(bar Bar) []PriceSample {
	var prices []float64
	switch p {
	case PathLowHigh:
		prices = []float64{bar.Low, bar.High}
	case PathOpenExtremumOtherClose:
		prices = BuildSyntheticPath(bar)
	default:
		prices = []float64{bar.Open}
	}
	out := make([]PriceSample, len(prices))
	for i, px := range prices {
		out[i] = PriceSample{Time: bar.Time, Price: px}
	}
	return out
}

// BuildSyntheticPath returns ordered price touches for a bar: open -> nearer extremum -> other extremum -> close
func BuildSyntheticPath(bar Bar) []float64 {
	path := []float64{bar.Open}
	if abs(bar.Open-bar.Low) < abs(bar.High-bar.Open) {
		path = append(path, bar.Low, bar.High)
	} else {
		path = append(path, bar.High, bar.Low)
	}
	return append(path, bar.Close)
}

// BarIterator walks a bar sequence in chronological order.
type BarIterator interface {
	Next() bool
	Bar() Bar
	Err() error
	Close() error
}

// BarSource is restartable: every Open starts from the first bar.
type BarSource interface {
	Open(ctx context.Context) (BarIterator, error)
}

// SliceSource serves bars held in memory.
type SliceSource []Bar

func (s SliceSource) Open(context.Context) (BarIterator, error) {
	return &sliceIterator{bars: s, pos: -1}, nil
}

type sliceIterator struct {
	bars SliceSource
	pos  int
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.bars) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Bar() Bar     { return it.bars[it.pos] }
func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
