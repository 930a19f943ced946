package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"session-backtest/services/arrowpipeline"
	"session-backtest/services/clickhouse"
	"session-backtest/services/config"
	"session-backtest/services/engine"
	"session-backtest/services/feed"
	"session-backtest/services/monitoring"
	"session-backtest/services/report"
	"session-backtest/services/runner"
)

type runFlags struct {
	csv             string
	years           string
	variants        []string
	intrabar        string
	escalation      bool
	trackUsedLevels bool
	partialLock     bool
	out             string
	arrow           bool
	parallel        int
	sourceTZ        string
	targetTZ        string
	fromClickHouse  bool
	storeTrades     bool
	from            string
	to              string
	metricsFile     string
	minBarsPerSec   float64
	events          bool
}

func newRunCmd(g *globalFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one or more variants over a bar source and write reports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBacktest(cmd, g, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.csv, "csv", "", "Semicolon CSV of 1m bars")
	fl.StringVar(&f.years, "years", "", "Year filter, e.g. 2020-2022,2024")
	fl.StringSliceVar(&f.variants, "variants", nil, "Variants to run, or all")
	fl.StringVar(&f.intrabar, "intrabar", "", "Intrabar path: open, low-high or path")
	fl.BoolVar(&f.escalation, "escalation", false, "Allow entries at rungs above the zone base")
	fl.BoolVar(&f.trackUsedLevels, "track-used-levels", false, "Open at most one trade per level per session and day")
	fl.BoolVar(&f.partialLock, "partial-lock", false, "Enable the lowest-band partial lock exit")
	fl.StringVar(&f.out, "out", "", "Output directory")
	fl.BoolVar(&f.arrow, "arrow", false, "Also write trades.arrow")
	fl.IntVar(&f.parallel, "parallel", 0, "Concurrent variant runs (0 = GOMAXPROCS)")
	fl.StringVar(&f.sourceTZ, "source-tz", "", "Time zone of the CSV wall times")
	fl.StringVar(&f.targetTZ, "target-tz", "", "Time zone the sessions are defined in")
	fl.BoolVar(&f.fromClickHouse, "from-clickhouse", false, "Read bars from ClickHouse instead of CSV")
	fl.BoolVar(&f.storeTrades, "store-trades", false, "Insert closed trades into ClickHouse")
	fl.StringVar(&f.from, "from", "", "ClickHouse range start (YYYY-MM-DD, target zone)")
	fl.StringVar(&f.to, "to", "", "ClickHouse range end, exclusive (YYYY-MM-DD, target zone)")
	fl.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	fl.Float64Var(&f.minBarsPerSec, "min-bars-per-sec", 0, "Warn when a variant runs slower than this")
	fl.BoolVar(&f.events, "events", false, "Write session, gate and trade events to events.json")
	return cmd
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("csv") {
		cfg.Feed.Path = f.csv
	}
	if fl.Changed("years") {
		cfg.Feed.Years = f.years
	}
	if fl.Changed("variants") {
		cfg.Run.Variants = f.variants
	}
	if fl.Changed("intrabar") {
		cfg.Run.Intrabar = f.intrabar
	}
	if fl.Changed("escalation") {
		cfg.Run.Escalation = f.escalation
	}
	if fl.Changed("track-used-levels") {
		cfg.Run.TrackUsedLevels = f.trackUsedLevels
	}
	if fl.Changed("partial-lock") {
		cfg.Run.PartialLock = f.partialLock
	}
	if fl.Changed("out") {
		cfg.Output.Dir = f.out
	}
	if fl.Changed("arrow") {
		cfg.Output.Arrow = f.arrow
	}
	if fl.Changed("parallel") {
		cfg.Run.Parallel = f.parallel
	}
	if fl.Changed("source-tz") {
		cfg.Feed.SourceTZ = f.sourceTZ
	}
	if fl.Changed("target-tz") {
		cfg.Feed.TargetTZ = f.targetTZ
	}
}

func runBacktest(cmd *cobra.Command, g *globalFlags, f *runFlags) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	f.apply(cmd, &cfg)
	resolved, err := cfg.Resolve()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if !f.fromClickHouse && cfg.Feed.Path == "" {
		return fmt.Errorf("--csv (or feed.path) is required unless --from-clickhouse is set")
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	log, err := g.logger(filepath.Join(cfg.Output.Dir, "run.log"))
	if err != nil {
		return err
	}
	defer log.Sync()

	opts := resolved.Feed
	ctx := cmd.Context()

	var (
		src   engine.BarSource
		store *clickhouse.Store
	)
	if f.fromClickHouse || f.storeTrades {
		store, err = clickhouse.Open(ctx, clickhouse.Config{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
		}, log)
		if err != nil {
			return err
		}
		defer store.Close()
	}
	if f.fromClickHouse {
		from, to, err := parseRange(f.from, f.to, opts.Target)
		if err != nil {
			return err
		}
		src = store.Source(cfg.ClickHouse.Symbol, from, to, opts.Target)
	} else {
		src = feed.NewCSVSource(cfg.Feed.Path, opts, log)
	}

	metrics := monitoring.New()
	r := runner.New(runner.Options{
		Params:     resolved.Params,
		Path:       resolved.Path,
		Parallel:   cfg.Run.Parallel,
		ConfigHash: cfg.Hash(),
		Events:     f.events,
		Logger:     log,
		Metrics:    metrics,
		SLO:        monitoring.SLOConfig{MinBarsPerSec: f.minBarsPerSec},
	})
	man, results, err := r.Run(ctx, src, resolved.Variants)
	if err != nil {
		return err
	}

	records := runner.Records(results)
	sums := make([]report.Summary, len(results))
	for i, res := range results {
		sums[i] = report.Summarize(res.Variant.Name, res.Records)
	}
	files, err := report.WriteAll(cfg.Output.Dir, records, sums)
	if err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(cfg.Output.Dir, "manifest.json"), struct {
		Manifest runner.Manifest    `json:"manifest"`
		Results  []runner.RunResult `json:"results"`
		Snapshot config.Snapshot    `json:"config"`
	}{man, results, cfg.Snapshot(version, man.StartedAt)}); err != nil {
		return err
	}
	if f.events {
		if err := writeJSON(filepath.Join(cfg.Output.Dir, "events.json"), runner.Events(results)); err != nil {
			return err
		}
	}
	if cfg.Output.Arrow {
		if err := writeArrow(filepath.Join(cfg.Output.Dir, "trades.arrow"), records, log); err != nil {
			return err
		}
	}
	if f.storeTrades {
		if err := store.InsertTrades(ctx, man.RunID, records); err != nil {
			return err
		}
	}
	if f.metricsFile != "" {
		if err := metrics.WriteToTextfile(f.metricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	log.Info("reports written",
		zap.String("run_id", man.RunID),
		zap.String("trades", files.Trades),
		zap.String("summary", files.SummaryTXT),
		zap.Int("records", len(records)),
	)
	return report.WriteSummaryTXT(cmd.OutOrStdout(), sums)
}

func parseRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	var a, b time.Time
	var err error
	if from != "" {
		if a, err = time.ParseInLocation(time.DateOnly, from, loc); err != nil {
			return a, b, fmt.Errorf("--from: %w", err)
		}
	}
	if to != "" {
		if b, err = time.ParseInLocation(time.DateOnly, to, loc); err != nil {
			return a, b, fmt.Errorf("--to: %w", err)
		}
	}
	return a, b, nil
}

func writeJSON(path string, v any) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return out.Close()
}

func writeArrow(path string, recs []engine.ClosedTradeRecord, log *zap.Logger) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()
	if err := arrowpipeline.NewPipeline(arrowpipeline.Config{}, log).WriteTrades(out, recs); err != nil {
		return err
	}
	return out.Close()
}
