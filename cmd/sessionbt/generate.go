package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"session-backtest/services/feed"
)

func newGenerateCmd(g *globalFlags) *cobra.Command {
	var (
		out        string
		start      string
		days       int
		seed       int64
		price      float64
		volatility float64
		tz         string
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write seeded synthetic 1m bars in the semicolon CSV layout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			loc, err := time.LoadLocation(tz)
			if err != nil {
				return fmt.Errorf("--tz: %w", err)
			}
			day, err := time.ParseInLocation(time.DateOnly, start, loc)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			if days <= 0 {
				return fmt.Errorf("--days must be > 0")
			}
			bars := feed.Generate(feed.GenerateOptions{
				Start: day, Days: days, Seed: seed, StartPrice: price, Volatility: volatility,
			})
			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			defer f.Close()
			w := bufio.NewWriter(f)
			if err := feed.WriteCSV(w, bars); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bars to %s\n", len(bars), out)
			return f.Close()
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&out, "out", "synthetic.csv", "Output CSV path")
	fl.StringVar(&start, "start", "2024-01-01", "First day (YYYY-MM-DD)")
	fl.IntVar(&days, "days", 30, "Calendar days to generate; weekends are skipped")
	fl.Int64Var(&seed, "seed", 1, "Random seed")
	fl.Float64Var(&price, "price", 18000, "Starting price")
	fl.Float64Var(&volatility, "volatility", 4, "Per-minute standard deviation in points")
	fl.StringVar(&tz, "tz", "America/Chicago", "Zone of the written wall times")
	return cmd
}
