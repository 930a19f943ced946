package clickhouse

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"session-backtest/services/engine"
	"session-backtest/services/feed"
)

// IngestLedger records one (symbol, year) slice that has been loaded.
type IngestLedger struct {
	Symbol     string    `json:"symbol"`
	Year       int       `json:"year"`
	FileSHA    string    `json:"file_sha256"`
	RowCount   int       `json:"row_count"`
	Source     string    `json:"source"`
	InsertedAt time.Time `json:"inserted_at"`
}

// LedgerEntry returns nil when (symbol, year) has not been ingested.
func (s *Store) LedgerEntry(ctx context.Context, symbol string, year int) (*IngestLedger, error) {
	q := fmt.Sprintf(`SELECT file_sha256, row_count, source, inserted_at FROM %s FINAL WHERE symbol = ? AND year = ? LIMIT 1`,
		s.cfg.table(s.cfg.LedgerTable))
	var (
		sha  string
		rows uint64
		src  string
		at   time.Time
	)
	if err := s.conn.QueryRow(ctx, q, symbol, uint16(year)).Scan(&sha, &rows, &src, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger lookup: %s", ExplainError(err))
	}
	return &IngestLedger{Symbol: symbol, Year: year, FileSHA: sha, RowCount: int(rows), Source: src, InsertedAt: at}, nil
}

// RecordIngest marks a year of a symbol as ingested.
func (s *Store) RecordIngest(ctx context.Context, e IngestLedger) error {
	q := fmt.Sprintf(`INSERT INTO %s (symbol, year, file_sha256, row_count, source) VALUES (?, ?, ?, ?, ?)`,
		s.cfg.table(s.cfg.LedgerTable))
	if err := s.conn.Exec(ctx, q, e.Symbol, uint16(e.Year), e.FileSHA, uint64(e.RowCount), e.Source); err != nil {
		return fmt.Errorf("ledger insert: %s", ExplainError(err))
	}
	return nil
}

// IngestResult reports what happened to one year.
type IngestResult struct {
	Year    int  `json:"year"`
	Rows    int  `json:"rows"`
	Skipped bool `json:"skipped"`
}

// IngestOptions controls IngestBars.
type IngestOptions struct {
	Symbol  string
	Source  string
	FileSHA string
	// Force reloads years already in the ledger.
	Force bool
}

// IngestBars loads bars year by year, skipping years the ledger already holds.
func (s *Store) IngestBars(ctx context.Context, bars []engine.Bar, opts IngestOptions) ([]IngestResult, error) {
	byYear := feed.SplitByYear(bars)
	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	var out []IngestResult
	for _, y := range years {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if !opts.Force {
			entry, err := s.LedgerEntry(ctx, opts.Symbol, y)
			if err != nil {
				return out, err
			}
			if entry != nil {
				s.log.Info("year already ingested, skipping",
					zap.String("symbol", opts.Symbol), zap.Int("year", y), zap.Int("rows", entry.RowCount))
				out = append(out, IngestResult{Year: y, Rows: entry.RowCount, Skipped: true})
				continue
			}
		}
		n, err := s.InsertBars(ctx, opts.Symbol, byYear[y])
		if err != nil {
			return out, fmt.Errorf("ingest %s %d: %w", opts.Symbol, y, err)
		}
		if err := s.RecordIngest(ctx, IngestLedger{
			Symbol: opts.Symbol, Year: y, FileSHA: opts.FileSHA, RowCount: n, Source: opts.Source,
		}); err != nil {
			return out, err
		}
		s.log.Info("ingested year", zap.String("symbol", opts.Symbol), zap.Int("year", y), zap.Int("rows", n))
		out = append(out, IngestResult{Year: y, Rows: n})
	}
	return out, nil
}

// FileSHA256 hashes the file at path.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
