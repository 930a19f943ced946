package monitoring

import (
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-backtest/services/engine"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRunFinishedRecordsTrades(t *testing.T) {
	m := New()
	m.RunStarted()
	recs := []engine.ClosedTradeRecord{
		{Reason: engine.ExitTimeClose, PnL: 12},
		{Reason: engine.ExitGSL, PnL: -40},
		{Reason: engine.ExitTimeClose, PnL: 3},
	}
	m.RunFinished("canonical", 1000, 4000, 2*time.Second, recs, nil)

	out := scrape(t, m)
	assert.Contains(t, out, `sessionbt_trades_closed_total{reason="TimeClose",variant="canonical"} 2`)
	assert.Contains(t, out, `sessionbt_trades_closed_total{reason="GSL",variant="canonical"} 1`)
	assert.Contains(t, out, `sessionbt_bars_processed_total{variant="canonical"} 1000`)
	assert.Contains(t, out, `sessionbt_bars_per_second{variant="canonical"} 500`)
	assert.Contains(t, out, `sessionbt_trade_pnl_points_count{variant="canonical"} 3`)
	assert.Contains(t, out, "sessionbt_active_runs 0")
}

func TestRunFinishedCountsFailures(t *testing.T) {
	m := New()
	m.RunStarted()
	m.RunFinished("canonical", 10, 10, time.Second, nil, errors.New("boom"))

	out := scrape(t, m)
	assert.Contains(t, out, "sessionbt_runs_failed_total 1")
	assert.NotContains(t, out, "sessionbt_bars_processed_total{")
}

func TestWriteToTextfile(t *testing.T) {
	m := New()
	m.RunStarted()
	path := filepath.Join(t.TempDir(), "sessionbt.prom")
	require.NoError(t, m.WriteToTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "sessionbt_active_runs 1")
}

func TestSLOCheck(t *testing.T) {
	slo := SLOConfig{MaxDuration: time.Second, MinBarsPerSec: 1000}
	results := []BenchmarkResult{
		NewBenchmarkResult("fast", 10_000, 500*time.Millisecond),
		NewBenchmarkResult("slow", 100, 2*time.Second),
		NewBenchmarkResult("empty", 0, 0),
	}
	v := slo.Check(results)
	require.Len(t, v, 2)
	assert.Contains(t, v[0], "slow took 2s")
	assert.Contains(t, v[1], "slow below minimum bars/sec")

	assert.Empty(t, SLOConfig{}.Check(results))
}
