package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"session-backtest/services/feed"
	"session-backtest/services/hst"
)

func newConvertCmd(g *globalFlags) *cobra.Command {
	var (
		csvPath   string
		years     string
		outDir    string
		profiles  []string
		suffix    string
		copyright string
		digits    int
		spread    int32
		combine   bool
		weekends  bool
		localize  bool
	)
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a semicolon CSV into MT4 .hst history files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if csvPath == "" {
				return fmt.Errorf("--csv is required")
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			cfg.Feed.Years = years
			opts, err := cfg.FeedOptions()
			if err != nil {
				return err
			}
			if !localize {
				opts.Target = opts.Source
			}
			log, err := g.logger("")
			if err != nil {
				return err
			}
			defer log.Sync()

			bars, stats, err := feed.Load(csvPath, opts)
			if err != nil {
				return err
			}
			log.Info("loaded csv", zap.Int("kept", stats.Kept), zap.Int("malformed", stats.Malformed), zap.Int("filtered", stats.Filtered))
			outs, err := hst.Convert(bars, hst.ConvertOptions{
				OutDir:       outDir,
				Profiles:     profiles,
				SymbolSuffix: suffix,
				Copyright:    copyright,
				Digits:       digits,
				Spread:       spread,
				Combine:      combine,
				KeepWeekends: weekends,
			}, log)
			if err != nil {
				return err
			}
			for _, o := range outs {
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %-10s %8d bars  %s\n", o.Profile, yearsLabel(o.Years), o.Bars, o.HST)
			}
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&csvPath, "csv", "", "Semicolon CSV of 1m bars")
	fl.StringVar(&years, "years", "", "Year filter, e.g. 2020-2022")
	fl.StringVar(&outDir, "out", "hst", "Output directory")
	fl.StringSliceVar(&profiles, "profiles", hst.ProfileNames(), "Broker profiles: "+strings.Join(hst.ProfileNames(), ", "))
	fl.StringVar(&suffix, "suffix", "", "Symbol suffix appended to the profile symbol")
	fl.StringVar(&copyright, "copyright", "(C)opyright 2003, MetaQuotes Software Corp.", "HST header copyright")
	fl.IntVar(&digits, "digits", 1, "Price digits")
	fl.Int32Var(&spread, "spread", 0, "Spread stored on every record")
	fl.BoolVar(&combine, "combine", false, "One file per profile instead of one per year")
	fl.BoolVar(&weekends, "keep-weekends", false, "Keep Saturday and Sunday bars")
	fl.BoolVar(&localize, "localize", false, "Shift bars into the configured target zone")
	return cmd
}

func yearsLabel(ys []int) string {
	switch len(ys) {
	case 0:
		return "-"
	case 1:
		return fmt.Sprint(ys[0])
	default:
		return fmt.Sprintf("%d-%d", ys[0], ys[len(ys)-1])
	}
}
