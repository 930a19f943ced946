package clickhouse

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"session-backtest/services/engine"
)

// InsertTrades stores the closed trades of one run.
func (s *Store) InsertTrades(ctx context.Context, runID string, recs []engine.ClosedTradeRecord) error {
	if len(recs) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`INSERT INTO %s`, s.cfg.table(s.cfg.TradesTable)))
	if err != nil {
		return fmt.Errorf("prepare batch: %s", ExplainError(err))
	}
	for _, r := range recs {
		if err := batch.Append(tradeRow(runID, r)...); err != nil {
			batch.Abort()
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %s", ExplainError(err))
	}
	s.log.Info("stored trades", zap.String("run_id", runID), zap.Int("rows", len(recs)))
	return nil
}

func tradeRow(runID string, r engine.ClosedTradeRecord) []any {
	return []any{
		runID,
		r.Variant,
		uint8(r.Session),
		uint8(r.Zone),
		r.Direction.String(),
		r.Target,
		r.OpenDistance,
		r.NoCloseRules,
		r.EntryTime.UTC(),
		r.EntryPrice,
		r.ExitTime.UTC(),
		r.ExitPrice,
		string(r.Reason),
		r.PnL,
		r.MaxFavorable,
		r.MaxAdverse,
	}
}
