package report

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"session-backtest/services/engine"
)

const timeLayout = "2006-01-02 15:04:05"

func f1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

// WriteTradesCSV writes one row per closed trade, in ledger order.
func WriteTradesCSV(w io.Writer, recs []engine.ClosedTradeRecord) error {
	cw := csv.NewWriter(w)
	header := []string{"variant", "session", "zone", "direction", "entry_time", "entry", "exit_time", "exit",
		"target", "open_distance", "reason", "pnl", "peak_profit", "peak_drawdown", "no_close_rules", "minutes"}
	for _, lvl := range HardCloseLevels {
		header = append(header, hcKey(lvl))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range recs {
		row := []string{
			r.Variant,
			strconv.Itoa(int(r.Session)),
			strconv.Itoa(r.Zone),
			r.Direction.String(),
			r.EntryTime.Format(timeLayout),
			f1(r.EntryPrice),
			r.ExitTime.Format(timeLayout),
			f1(r.ExitPrice),
			f1(r.Target),
			f1(r.OpenDistance),
			string(r.Reason),
			f1(r.PnL),
			f1(r.MaxFavorable),
			f1(r.MaxAdverse),
			strconv.FormatBool(r.NoCloseRules),
			strconv.Itoa(int(r.Duration() / time.Minute)),
		}
		for _, lvl := range HardCloseLevels {
			row = append(row, f1(HardClose(r, lvl)))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummaryJSON writes sums as an indented JSON array.
func WriteSummaryJSON(w io.Writer, sums []Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sums)
}

// WriteSummaryTXT renders the per-variant, per-month table followed by totals.
func WriteSummaryTXT(w io.Writer, sums []Summary) error {
	bw := bufio.NewWriter(w)
	line := func(l, m, r string) string {
		widths := []int{24, 9, 7, 6, 6, 8, 10, 8, 8}
		parts := make([]string, len(widths))
		for i, n := range widths {
			parts[i] = strings.Repeat("─", n)
		}
		return l + strings.Join(parts, m) + r + "\n"
	}
	row := "│ %-22s │ %-7s │ %5d │ %4d │ %4d │ %6s │ %8s │ %6s │ %6s │\n"

	bw.WriteString(line("┌", "┬", "┐"))
	fmt.Fprintf(bw, "│ %-22s │ %-7s │ %5s │ %4s │ %4s │ %6s │ %8s │ %6s │ %6s │\n",
		"Variant", "Period", "Count", "Wins", "Loss", "Win%", "Net", "Avg", "PF")
	bw.WriteString(line("├", "┼", "┤"))
	for _, s := range sums {
		for _, m := range s.Monthly {
			b := m.Bucket
			fmt.Fprintf(bw, row, s.Variant, fmt.Sprintf("%04d-%02d", m.Year, m.Month), b.Count, b.Wins, b.Losses,
				b.WinRate().StringFixed(1), b.Net.StringFixed(1), b.Average().StringFixed(1), b.ProfitFactor().StringFixed(2))
		}
		t := s.Total
		fmt.Fprintf(bw, row, s.Variant, "TOTAL", t.Count, t.Wins, t.Losses,
			t.WinRate().StringFixed(1), t.Net.StringFixed(1), t.Average().StringFixed(1), t.ProfitFactor().StringFixed(2))
	}
	bw.WriteString(line("└", "┴", "┘"))

	for _, s := range sums {
		fmt.Fprintf(bw, "\n=== %s ===\n", s.Variant)
		fmt.Fprintf(bw, "Total Trades: %d\n", s.Total.Count)
		fmt.Fprintf(bw, "Win Rate: %s%%\n", s.Total.WinRate().StringFixed(2))
		fmt.Fprintf(bw, "Net: %s\n", s.Total.Net.StringFixed(1))
		fmt.Fprintf(bw, "Median: %s\n", f1(s.Total.Median()))
		fmt.Fprintf(bw, "Max Drawdown: %s\n", s.Total.MaxDrawdown.StringFixed(1))
		for _, lvl := range HardCloseLevels {
			fmt.Fprintf(bw, "Hard close %d: %s\n", lvl, s.Total.HardClose[hcKey(lvl)].StringFixed(1))
		}
		reasons := make([]string, 0, len(s.Reasons))
		for r := range s.Reasons {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Fprintf(bw, "Close %s: %d\n", r, s.Reasons[engine.ExitReason(r)])
		}
		for _, m := range s.Major {
			fmt.Fprintf(bw, "%d %-13s count=%d net=%s median=%s\n", m.Year, m.Group, m.Count, f1(m.Net), f1(m.Median))
		}
	}
	return bw.Flush()
}

// Files lists the outputs written by WriteAll.
type Files struct {
	Trades      string `json:"trades"`
	SummaryJSON string `json:"summary_json"`
	SummaryTXT  string `json:"summary_txt"`
}

// WriteAll writes trades.csv, summary.json and summary.txt into dir.
func WriteAll(dir string, recs []engine.ClosedTradeRecord, sums []Summary) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, fmt.Errorf("create output dir: %w", err)
	}
	files := Files{
		Trades:      filepath.Join(dir, "trades.csv"),
		SummaryJSON: filepath.Join(dir, "summary.json"),
		SummaryTXT:  filepath.Join(dir, "summary.txt"),
	}
	if err := writeFile(files.Trades, func(w io.Writer) error { return WriteTradesCSV(w, recs) }); err != nil {
		return files, err
	}
	if err := writeFile(files.SummaryJSON, func(w io.Writer) error { return WriteSummaryJSON(w, sums) }); err != nil {
		return files, err
	}
	if err := writeFile(files.SummaryTXT, func(w io.Writer) error { return WriteSummaryTXT(w, sums) }); err != nil {
		return files, err
	}
	return files, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
