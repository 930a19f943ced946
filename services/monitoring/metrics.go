// Package monitoring exposes run and trade metrics in Prometheus format.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"session-backtest/services/engine"
)

// Metrics holds every collector on a private registry so parallel test runs
// and embedded servers never collide on the global one.
type Metrics struct {
	Registry *prometheus.Registry

	BarsProcessed    *prometheus.CounterVec
	SamplesProcessed *prometheus.CounterVec
	TradesClosed     *prometheus.CounterVec
	TradePnL         *prometheus.HistogramVec
	RunDuration      *prometheus.HistogramVec
	BarsPerSecond    *prometheus.GaugeVec
	ActiveRuns       prometheus.Gauge
	RunsFailed       prometheus.Counter
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		BarsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionbt_bars_processed_total",
				Help: "Bars fed to the engine",
			},
			[]string{"variant"},
		),
		SamplesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionbt_samples_processed_total",
				Help: "Intrabar price samples fed to the engine",
			},
			[]string{"variant"},
		),
		TradesClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionbt_trades_closed_total",
				Help: "Closed trades split by variant and exit reason",
			},
			[]string{"variant", "reason"},
		),
		TradePnL: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sessionbt_trade_pnl_points",
				Help:    "Per-trade result in index points",
				Buckets: []float64{-100, -40, -20, -10, -1, 0, 1, 10, 20, 40, 70, 100, 150},
			},
			[]string{"variant"},
		),
		RunDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sessionbt_run_duration_seconds",
				Help:    "Wall time of one variant run",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"variant"},
		),
		BarsPerSecond: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sessionbt_bars_per_second",
				Help: "Throughput of the latest run of a variant",
			},
			[]string{"variant"},
		),
		ActiveRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessionbt_active_runs",
				Help: "Variant runs in progress",
			},
		),
		RunsFailed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessionbt_runs_failed_total",
				Help: "Variant runs that returned an error",
			},
		),
	}
	m.Registry.MustRegister(
		m.BarsProcessed,
		m.SamplesProcessed,
		m.TradesClosed,
		m.TradePnL,
		m.RunDuration,
		m.BarsPerSecond,
		m.ActiveRuns,
		m.RunsFailed,
	)
	return m
}

func (m *Metrics) RunStarted() { m.ActiveRuns.Inc() }

// RunFinished records a completed run; a non-nil err only counts the failure.
func (m *Metrics) RunFinished(variant string, bars, samples int, elapsed time.Duration, recs []engine.ClosedTradeRecord, err error) {
	m.ActiveRuns.Dec()
	if err != nil {
		m.RunsFailed.Inc()
		return
	}
	m.BarsProcessed.WithLabelValues(variant).Add(float64(bars))
	m.SamplesProcessed.WithLabelValues(variant).Add(float64(samples))
	m.RunDuration.WithLabelValues(variant).Observe(elapsed.Seconds())
	if elapsed > 0 {
		m.BarsPerSecond.WithLabelValues(variant).Set(float64(bars) / elapsed.Seconds())
	}
	for _, r := range recs {
		m.TradesClosed.WithLabelValues(variant, string(r.Reason)).Inc()
		m.TradePnL.WithLabelValues(variant).Observe(r.PnL)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// WriteToTextfile dumps the registry for the node_exporter textfile collector.
func (m *Metrics) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
