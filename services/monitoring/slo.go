package monitoring

// Throughput SLOs

import (
	"fmt"
	"time"
)

// BenchmarkResult measures one variant run.
type BenchmarkResult struct {
	Name       string
	Duration   time.Duration
	Bars       int
	BarsPerSec float64
}

func NewBenchmarkResult(name string, bars int, d time.Duration) BenchmarkResult {
	r := BenchmarkResult{Name: name, Duration: d, Bars: bars}
	if d > 0 {
		r.BarsPerSec = float64(bars) / d.Seconds()
	}
	return r
}

// SLOConfig zero values disable the corresponding check.
type SLOConfig struct {
	MaxDuration   time.Duration
	MinBarsPerSec float64
}

// Check returns one message per result breaking a threshold.
func (c SLOConfig) Check(results []BenchmarkResult) []string {
	var violations []string
	for _, r := range results {
		if c.MaxDuration > 0 && r.Duration > c.MaxDuration {
			violations = append(violations, fmt.Sprintf("%s took %s (max %s)", r.Name, r.Duration, c.MaxDuration))
		}
		if c.MinBarsPerSec > 0 && r.Bars > 0 && r.BarsPerSec < c.MinBarsPerSec {
			violations = append(violations, fmt.Sprintf("%s below minimum bars/sec: %.0f < %.0f", r.Name, r.BarsPerSec, c.MinBarsPerSec))
		}
	}
	return violations
}
