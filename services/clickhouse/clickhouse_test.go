package clickhouse

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	chproto "github.com/ClickHouse/clickhouse-go/v2/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-backtest/services/engine"
)

func TestDSNHost(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", "localhost:9000"},
		{"ch:9000", "ch:9000"},
		{"clickhouse://default:@db:9440", "db:9440"},
		{"clickhouse://u:p@db:9000?secure=false&compress=lz4", "db:9000"},
		{"tcp://db:9000/backtest", "db:9000"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, DSNHost(c.in), c.in)
	}
}

func TestExplainError(t *testing.T) {
	ex := &chproto.Exception{Code: 60, Name: "DB::Exception", Message: "Table backtest.bars does not exist"}
	assert.Equal(t, "ClickHouse [60] Table backtest.bars does not exist (DB::Exception)", ExplainError(fmt.Errorf("query: %w", ex)))
	assert.Equal(t, "boom", ExplainError(fmt.Errorf("boom")))
}

func TestSchemaDDL(t *testing.T) {
	cfg := Config{Database: "dax"}.withDefaults()
	ddl := schemaDDL(cfg)
	require.Len(t, ddl, 3)
	assert.Contains(t, ddl[0], "dax.bars")
	assert.Contains(t, ddl[0], "ReplacingMergeTree(version)")
	assert.Contains(t, ddl[1], "dax.trades")
	assert.Contains(t, ddl[2], "dax.ingest_ledger")
	assert.Contains(t, ddl[2], "ORDER BY (symbol, year)")
}

func TestBarSourceQuery(t *testing.T) {
	s := &Store{cfg: Config{}.withDefaults()}
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	q, args := s.Source("GER30", from, time.Time{}, nil).(*barSource).query()
	assert.Contains(t, q, "FROM backtest.bars FINAL")
	assert.Contains(t, q, "open_time_ms >= ?")
	assert.NotContains(t, q, "open_time_ms < ?")
	assert.True(t, strings.HasSuffix(q, "ORDER BY open_time_ms"))
	assert.Equal(t, []any{"GER30", uint64(from.UnixMilli())}, args)
}

func TestBarFromRowLocalizes(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	ts := time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC)

	b := barFromRow(uint64(ts.UnixMilli()), 1, 2, 0.5, 1.5, 10, london)
	assert.Equal(t, 8, b.Time.Hour())
	assert.Equal(t, london, b.Time.Location())
	assert.Equal(t, engine.Bar{Time: b.Time, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}, b)
}

func TestTradeRowMatchesSchema(t *testing.T) {
	rec := engine.ClosedTradeRecord{
		Variant: "canonical", Session: engine.SessionTwo, Zone: 3, Direction: engine.Long,
		Reason: engine.ExitSweep, EntryTime: time.Now(), ExitTime: time.Now(),
	}
	row := tradeRow("run-1", rec)
	cols := strings.Count(schemaDDL(Config{}.withDefaults())[1], ",\n") + 1
	assert.Len(t, row, cols)
	assert.Equal(t, uint8(2), row[2])
	assert.Equal(t, "BUY", row[4])
	assert.Equal(t, "Sweep", row[12])
}

func TestFileSHA256(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	sum, err := FileSHA256(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}
