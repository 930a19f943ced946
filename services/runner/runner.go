// Package runner fans one bar source out to isolated per-variant engine runs.
package runner

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"session-backtest/services/engine"
	"session-backtest/services/monitoring"
)

// Options configures a Runner. Params must already be validated.
type Options struct {
	Params engine.Params
	Path   engine.IntrabarPath
	// Parallel bounds concurrent variant runs; 0 uses GOMAXPROCS.
	Parallel   int
	ConfigHash string
	// Events keeps each variant's session, gate and trade events.
	Events  bool
	Logger  *zap.Logger
	Metrics *monitoring.Metrics
	SLO     monitoring.SLOConfig
}

// Runner executes variant runs over a shared bar source.
type Runner struct {
	opts Options
	log  *zap.Logger
}

// New returns a runner with defaults applied to opts.
func New(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Parallel <= 0 {
		opts.Parallel = runtime.GOMAXPROCS(0)
	}
	return &Runner{opts: opts, log: opts.Logger}
}

// Job is one planned variant run.
type Job struct {
	Index   int
	Variant engine.Variant
}

// Plan assigns each variant its output slot.
func Plan(variants []engine.Variant) []Job {
	jobs := make([]Job, len(variants))
	for i, v := range variants {
		jobs[i] = Job{Index: i, Variant: v}
	}
	return jobs
}

// RunResult is the outcome of one variant run.
type RunResult struct {
	Variant       engine.Variant             `json:"variant"`
	Records       []engine.ClosedTradeRecord `json:"-"`
	Events        *engine.EventLog           `json:"-"`
	Bars          int                        `json:"bars"`
	Samples       int                        `json:"samples"`
	Opened        int                        `json:"opened"`
	Elapsed       time.Duration              `json:"elapsed"`
	BarsPerSecond float64                    `json:"bars_per_second"`
}

// Manifest identifies one invocation of Run.
type Manifest struct {
	RunID         string        `json:"run_id"`
	ConfigHash    string        `json:"config_hash"`
	Intrabar      string        `json:"intrabar"`
	Variants      []string      `json:"variants"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
	Elapsed       time.Duration `json:"elapsed"`
	SLOViolations []string      `json:"slo_violations,omitempty"`
}

// Run executes every variant against src and returns results in variant order.
// The first failing run cancels the rest.
func (r *Runner) Run(ctx context.Context, src engine.BarSource, variants []engine.Variant) (Manifest, []RunResult, error) {
	if len(variants) == 0 {
		return Manifest{}, nil, fmt.Errorf("no variants to run")
	}
	man := Manifest{
		RunID:      uuid.NewString(),
		ConfigHash: r.opts.ConfigHash,
		Intrabar:   r.opts.Path.String(),
		StartedAt:  time.Now().UTC(),
	}
	for _, v := range variants {
		man.Variants = append(man.Variants, v.Name)
	}
	log := r.log.With(zap.String("run_id", man.RunID))
	log.Info("run started",
		zap.Strings("variants", man.Variants),
		zap.String("intrabar", man.Intrabar),
		zap.Int("parallel", r.opts.Parallel),
	)

	results := make([]RunResult, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallel)
	for _, job := range Plan(variants) {
		g.Go(func() error {
			res, err := r.runOne(gctx, src, job.Variant, log)
			if err != nil {
				return fmt.Errorf("variant %s: %w", job.Variant.Name, err)
			}
			results[job.Index] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("run failed", zap.Error(err))
		return man, nil, err
	}

	man.FinishedAt = time.Now().UTC()
	man.Elapsed = man.FinishedAt.Sub(man.StartedAt)
	bench := make([]monitoring.BenchmarkResult, len(results))
	for i, res := range results {
		bench[i] = monitoring.NewBenchmarkResult(res.Variant.Name, res.Bars, res.Elapsed)
	}
	man.SLOViolations = r.opts.SLO.Check(bench)
	for _, v := range man.SLOViolations {
		log.Warn("slo violation", zap.String("detail", v))
	}
	log.Info("run finished", zap.Duration("elapsed", man.Elapsed))
	return man, results, nil
}

func (r *Runner) runOne(ctx context.Context, src engine.BarSource, v engine.Variant, log *zap.Logger) (RunResult, error) {
	if m := r.opts.Metrics; m != nil {
		m.RunStarted()
	}
	opts := []engine.Option{engine.WithLogger(log)}
	var events *engine.EventLog
	if r.opts.Events {
		events = &engine.EventLog{}
		opts = append(opts, engine.WithEventLog(events))
	}
	start := time.Now()
	res, err := engine.Run(ctx, src, r.opts.Params, v, r.opts.Path, opts...)
	elapsed := time.Since(start)
	if m := r.opts.Metrics; m != nil {
		m.RunFinished(v.Name, res.Bars, res.Samples, elapsed, res.Records, err)
	}
	if err != nil {
		return RunResult{}, err
	}
	out := RunResult{
		Variant: v,
		Records: res.Records,
		Events:  events,
		Bars:    res.Bars,
		Samples: res.Samples,
		Opened:  res.Opened,
		Elapsed: elapsed,
	}
	if elapsed > 0 {
		out.BarsPerSecond = float64(res.Bars) / elapsed.Seconds()
	}
	log.Info("variant finished",
		zap.String("variant", v.Name),
		zap.Int("bars", res.Bars),
		zap.Int("trades", len(res.Records)),
		zap.Duration("elapsed", elapsed),
		zap.Float64("bars_per_sec", out.BarsPerSecond),
	)
	if events != nil {
		log.Info("variant events",
			zap.String("variant", v.Name),
			zap.Int("events", len(events.Events)),
			zap.Int("sessions_blocked", len(events.Filter(engine.EventSessionBlocked))),
		)
	}
	return out, nil
}

// VariantEvents is the event log of one variant.
type VariantEvents struct {
	Variant string         `json:"variant"`
	Events  []engine.Event `json:"events"`
}

// Events collects the event logs of results in order; runs without a log are skipped.
func Events(results []RunResult) []VariantEvents {
	var out []VariantEvents
	for _, r := range results {
		if r.Events == nil {
			continue
		}
		out = append(out, VariantEvents{Variant: r.Variant.Name, Events: r.Events.Events})
	}
	return out
}

// Records concatenates the ledgers of results in order.
func Records(results []RunResult) []engine.ClosedTradeRecord {
	var out []engine.ClosedTradeRecord
	for _, r := range results {
		out = append(out, r.Records...)
	}
	return out
}
