// Package arrowpipeline moves trade ledgers through Apache Arrow IPC streams.
package arrowpipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"go.uber.org/zap"

	"session-backtest/services/engine"
)

// Config holds Arrow pipeline configuration
type Config struct {
	BatchSize int `yaml:"batch_size"`
}

const (
	colVariant = iota
	colSession
	colZone
	colDirection
	colTarget
	colOpenDistance
	colNoCloseRules
	colEntryTime
	colEntryPrice
	colExitTime
	colExitPrice
	colReason
	colPnL
	colMaxFavorable
	colMaxAdverse
)

// TradeSchema is the column layout of an exported ledger.
var TradeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "variant", Type: arrow.BinaryTypes.String},
	{Name: "session", Type: arrow.PrimitiveTypes.Int32},
	{Name: "zone", Type: arrow.PrimitiveTypes.Int32},
	{Name: "direction", Type: arrow.BinaryTypes.String},
	{Name: "target", Type: arrow.PrimitiveTypes.Float64},
	{Name: "open_distance", Type: arrow.PrimitiveTypes.Float64},
	{Name: "no_close_rules", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "entry_time", Type: arrow.FixedWidthTypes.Timestamp_ns},
	{Name: "entry_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "exit_time", Type: arrow.FixedWidthTypes.Timestamp_ns},
	{Name: "exit_price", Type: arrow.PrimitiveTypes.Float64},
	{Name: "reason", Type: arrow.BinaryTypes.String},
	{Name: "pnl", Type: arrow.PrimitiveTypes.Float64},
	{Name: "max_favorable", Type: arrow.PrimitiveTypes.Float64},
	{Name: "max_adverse", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Pipeline converts ledgers to and from Arrow record batches.
type Pipeline struct {
	config     Config
	memoryPool memory.Allocator
	logger     *zap.Logger
}

// NewPipeline creates a new Arrow pipeline
func NewPipeline(config Config, logger *zap.Logger) *Pipeline {
	if config.BatchSize <= 0 {
		config.BatchSize = 8192
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{config: config, memoryPool: memory.NewGoAllocator(), logger: logger}
}

// TradesToArrow builds one record batch. The caller releases it.
func (p *Pipeline) TradesToArrow(recs []engine.ClosedTradeRecord) arrow.Record {
	b := array.NewRecordBuilder(p.memoryPool, TradeSchema)
	defer b.Release()
	for _, r := range recs {
		b.Field(colVariant).(*array.StringBuilder).Append(r.Variant)
		b.Field(colSession).(*array.Int32Builder).Append(int32(r.Session))
		b.Field(colZone).(*array.Int32Builder).Append(int32(r.Zone))
		b.Field(colDirection).(*array.StringBuilder).Append(r.Direction.String())
		b.Field(colTarget).(*array.Float64Builder).Append(r.Target)
		b.Field(colOpenDistance).(*array.Float64Builder).Append(r.OpenDistance)
		b.Field(colNoCloseRules).(*array.BooleanBuilder).Append(r.NoCloseRules)
		b.Field(colEntryTime).(*array.TimestampBuilder).Append(arrow.Timestamp(r.EntryTime.UnixNano()))
		b.Field(colEntryPrice).(*array.Float64Builder).Append(r.EntryPrice)
		b.Field(colExitTime).(*array.TimestampBuilder).Append(arrow.Timestamp(r.ExitTime.UnixNano()))
		b.Field(colExitPrice).(*array.Float64Builder).Append(r.ExitPrice)
		b.Field(colReason).(*array.StringBuilder).Append(string(r.Reason))
		b.Field(colPnL).(*array.Float64Builder).Append(r.PnL)
		b.Field(colMaxFavorable).(*array.Float64Builder).Append(r.MaxFavorable)
		b.Field(colMaxAdverse).(*array.Float64Builder).Append(r.MaxAdverse)
	}
	return b.NewRecord()
}

// WriteTrades streams recs to w in batches of BatchSize rows.
func (p *Pipeline) WriteTrades(w io.Writer, recs []engine.ClosedTradeRecord) error {
	writer := ipc.NewWriter(w, ipc.WithSchema(TradeSchema), ipc.WithAllocator(p.memoryPool))
	batches := 0
	for start := 0; ; start += p.config.BatchSize {
		end := min(start+p.config.BatchSize, len(recs))
		record := p.TradesToArrow(recs[start:end])
		err := writer.Write(record)
		record.Release()
		if err != nil {
			writer.Close()
			return fmt.Errorf("failed to write Arrow record: %w", err)
		}
		batches++
		if end >= len(recs) {
			break
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close Arrow writer: %w", err)
	}
	p.logger.Debug("wrote arrow trades", zap.Int("rows", len(recs)), zap.Int("batches", batches))
	return nil
}

// ReadTrades decodes a stream written by WriteTrades. Times come back in UTC.
func (p *Pipeline) ReadTrades(r io.Reader) ([]engine.ClosedTradeRecord, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(p.memoryPool))
	if err != nil {
		return nil, fmt.Errorf("failed to open Arrow reader: %w", err)
	}
	defer reader.Release()

	var out []engine.ClosedTradeRecord
	for reader.Next() {
		rec := reader.Record()
		recs, err := recordToTrades(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read Arrow record: %w", err)
	}
	return out, nil
}

func recordToTrades(rec arrow.Record) ([]engine.ClosedTradeRecord, error) {
	if !rec.Schema().Equal(TradeSchema) {
		return nil, fmt.Errorf("unexpected schema: %s", rec.Schema())
	}
	str := func(c int) *array.String { return rec.Column(c).(*array.String) }
	i32 := func(c int) *array.Int32 { return rec.Column(c).(*array.Int32) }
	f64 := func(c int) *array.Float64 { return rec.Column(c).(*array.Float64) }
	ts := func(c, i int) time.Time {
		return time.Unix(0, int64(rec.Column(c).(*array.Timestamp).Value(i))).UTC()
	}

	out := make([]engine.ClosedTradeRecord, 0, rec.NumRows())
	for i := 0; i < int(rec.NumRows()); i++ {
		dir, err := engine.ParseDirection(str(colDirection).Value(i))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, engine.ClosedTradeRecord{
			Variant:      str(colVariant).Value(i),
			Session:      engine.SessionID(i32(colSession).Value(i)),
			Zone:         int(i32(colZone).Value(i)),
			Direction:    dir,
			Target:       f64(colTarget).Value(i),
			OpenDistance: f64(colOpenDistance).Value(i),
			NoCloseRules: rec.Column(colNoCloseRules).(*array.Boolean).Value(i),
			EntryTime:    ts(colEntryTime, i),
			EntryPrice:   f64(colEntryPrice).Value(i),
			ExitTime:     ts(colExitTime, i),
			ExitPrice:    f64(colExitPrice).Value(i),
			Reason:       engine.ExitReason(str(colReason).Value(i)),
			PnL:          f64(colPnL).Value(i),
			MaxFavorable: f64(colMaxFavorable).Value(i),
			MaxAdverse:   f64(colMaxAdverse).Value(i),
		})
	}
	return out, nil
}
