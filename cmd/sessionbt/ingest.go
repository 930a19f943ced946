package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"session-backtest/services/clickhouse"
	"session-backtest/services/feed"
)

func newIngestCmd(g *globalFlags) *cobra.Command {
	var (
		csvPath string
		symbol  string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load a semicolon CSV into ClickHouse, one ledger entry per year",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if csvPath == "" {
				return fmt.Errorf("--csv is required")
			}
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			if symbol != "" {
				cfg.ClickHouse.Symbol = symbol
			}
			opts, err := cfg.FeedOptions()
			if err != nil {
				return err
			}
			log, err := g.logger("")
			if err != nil {
				return err
			}
			defer log.Sync()

			sha, err := clickhouse.FileSHA256(csvPath)
			if err != nil {
				return err
			}
			bars, _, err := feed.Load(csvPath, opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := clickhouse.Open(ctx, clickhouse.Config{
				Addr:     cfg.ClickHouse.Addr,
				Database: cfg.ClickHouse.Database,
				Username: cfg.ClickHouse.Username,
				Password: cfg.ClickHouse.Password,
			}, log)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}
			results, err := store.IngestBars(ctx, bars, clickhouse.IngestOptions{
				Symbol:  cfg.ClickHouse.Symbol,
				Source:  csvPath,
				FileSHA: sha,
				Force:   force,
			})
			for _, r := range results {
				state := "inserted"
				if r.Skipped {
					state = "skipped"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d %-8s %d rows\n", r.Year, state, r.Rows)
			}
			return err
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&csvPath, "csv", "", "Semicolon CSV of 1m bars")
	fl.StringVar(&symbol, "symbol", "", "Symbol to store bars under (default clickhouse.symbol)")
	fl.BoolVar(&force, "force", false, "Reload years already in the ingest ledger")
	return cmd
}
