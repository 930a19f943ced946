package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"session-backtest/services/engine"
)

// InsertBars writes 1m bars for symbol in one batch. Rows are versioned so a
// re-ingest replaces earlier copies.
func (s *Store) InsertBars(ctx context.Context, symbol string, bars []engine.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s SETTINGS insert_deduplicate=1`, s.cfg.table(s.cfg.BarsTable)))
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %s", ExplainError(err))
	}
	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, b := range bars {
		if err := batch.Append(
			symbol, "1m",
			uint64(b.Time.UnixMilli()),
			b.Open, b.High, b.Low, b.Close,
			b.Volume,
			now,
			ver,
		); err != nil {
			batch.Abort()
			return 0, fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("batch send: %s", ExplainError(err))
	}
	s.log.Debug("inserted bars", zap.String("symbol", symbol), zap.Int("rows", len(bars)))
	return len(bars), nil
}

// Source serves stored 1m bars of symbol in [from, to), localized to loc.
// A zero from or to leaves that side open.
func (s *Store) Source(symbol string, from, to time.Time, loc *time.Location) engine.BarSource {
	if loc == nil {
		loc = time.UTC
	}
	return &barSource{store: s, symbol: symbol, from: from, to: to, loc: loc}
}

type barSource struct {
	store  *Store
	symbol string
	from   time.Time
	to     time.Time
	loc    *time.Location
}

func (b *barSource) query() (string, []any) {
	q := fmt.Sprintf(`SELECT open_time_ms, open, high, low, close, volume FROM %s FINAL WHERE symbol = ? AND interval = '1m'`,
		b.store.cfg.table(b.store.cfg.BarsTable))
	args := []any{b.symbol}
	if !b.from.IsZero() {
		q += " AND open_time_ms >= ?"
		args = append(args, uint64(b.from.UnixMilli()))
	}
	if !b.to.IsZero() {
		q += " AND open_time_ms < ?"
		args = append(args, uint64(b.to.UnixMilli()))
	}
	return q + " ORDER BY open_time_ms", args
}

func (b *barSource) Open(ctx context.Context) (engine.BarIterator, error) {
	q, args := b.query()
	rows, err := b.store.conn.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %s", ExplainError(err))
	}
	return &rowIterator{rows: rows, loc: b.loc}, nil
}

type rowIterator struct {
	rows driver.Rows
	loc  *time.Location
	bar  engine.Bar
	err  error
}

func (it *rowIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	var (
		ms                      uint64
		open, high, low, closep float64
		volume                  int64
	)
	if err := it.rows.Scan(&ms, &open, &high, &low, &closep, &volume); err != nil {
		it.err = fmt.Errorf("scan bar: %w", err)
		return false
	}
	it.bar = barFromRow(ms, open, high, low, closep, volume, it.loc)
	return true
}

func (it *rowIterator) Bar() engine.Bar { return it.bar }

func (it *rowIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *rowIterator) Close() error { return it.rows.Close() }

func barFromRow(ms uint64, open, high, low, closep float64, volume int64, loc *time.Location) engine.Bar {
	return engine.Bar{
		Time:   time.UnixMilli(int64(ms)).In(loc),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closep,
		Volume: volume,
	}
}
