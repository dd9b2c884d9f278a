package backtest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"upbit-quant-bot/internal/feed"
	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStrategy replays a fixed list of actions, one per call, then holds.
type scriptedStrategy struct {
	actions []models.Action
	calls   int
	seen    []int // candle counts observed per call
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) RequiredTimeframes() []models.Timeframe {
	return []models.Timeframe{models.Timeframe1d}
}

func (s *scriptedStrategy) GenerateSignal(candles map[models.Timeframe][]models.Candle, state models.PositionState) models.Signal {
	s.seen = append(s.seen, len(candles[models.Timeframe1d]))
	action := models.ActionHold
	if s.calls < len(s.actions) {
		action = s.actions[s.calls]
	}
	s.calls++
	return models.Signal{Action: action, Reason: "scripted"}
}

func dailyCandles(closes ...float64) *feed.CandleStore {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Timestamp: base.AddDate(0, 0, i),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1,
		}
	}
	return feed.NewCandleStore(models.Timeframe1d, candles)
}

func newJournal(t *testing.T) *persistence.SQLiteJournal {
	t.Helper()
	j, err := persistence.OpenSQLiteJournal(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func runBacktest(t *testing.T, cfg Config, strat *scriptedStrategy, store *feed.CandleStore) *Result {
	t.Helper()
	eng, err := New(cfg, strat, map[models.Timeframe]*feed.CandleStore{models.Timeframe1d: store}, newJournal(t))
	require.NoError(t, err)
	res, err := eng.Run(context.Background())
	require.NoError(t, err)
	return res
}

func baseConfig(commission string) Config {
	return Config{
		StrategyID:     "test",
		Market:         "KRW-BTC",
		InitialBalance: decimal.NewFromInt(1_000_000),
		Commission:     decimal.RequireFromString(commission),
		BuyAmountRatio: decimal.New(1, 0),
		RiskFreeRate:   0.02,
	}
}

func risingCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func TestBuyAndHoldMatchesBenchmark(t *testing.T) {
	// A strategy that buys once and never sells, on a rising series with zero
	// commission, must return exactly the buy & hold benchmark.
	strat := &scriptedStrategy{actions: []models.Action{models.ActionBuy}}
	res := runBacktest(t, baseConfig("0"), strat, dailyCandles(risingCloses(20)...))

	assert.InDelta(t, 119.0/100.0-1, res.Metrics.BuyHoldReturn, 1e-12)
	assert.InDelta(t, res.Metrics.BuyHoldReturn, res.Metrics.TotalReturn, 1e-12)
	// Force-liquidation realizes the position at the final price.
	assert.True(t, res.FinalValue.Equal(decimal.NewFromInt(1_190_000)))
}

func TestBuyAndHoldWithCommission(t *testing.T) {
	strat := &scriptedStrategy{actions: []models.Action{models.ActionBuy}}
	res := runBacktest(t, baseConfig("0.0005"), strat, dailyCandles(risingCloses(20)...))

	// Buy and forced sell each pay commission once.
	want := (1-0.0005)*(1-0.0005)*(119.0/100.0) - 1
	assert.InDelta(t, want, res.Metrics.TotalReturn, 1e-9)
	assert.Less(t, res.Metrics.TotalReturn, res.Metrics.BuyHoldReturn)
}

func TestNoLookAhead(t *testing.T) {
	strat := &scriptedStrategy{}
	runBacktest(t, baseConfig("0"), strat, dailyCandles(risingCloses(5)...))

	// At step i the strategy may only see the first i+1 candles.
	assert.Equal(t, []int{1, 2, 3, 4, 5}, strat.seen)
}

func TestWinRateAndDrawdown(t *testing.T) {
	strat := &scriptedStrategy{actions: []models.Action{
		models.ActionBuy, models.ActionSell, models.ActionBuy, models.ActionSell,
	}}
	res := runBacktest(t, baseConfig("0"), strat, dailyCandles(100, 110, 100, 90))

	assert.Equal(t, 2, res.Metrics.RoundTrips)
	assert.Equal(t, 1, res.Metrics.Wins)
	assert.InDelta(t, 0.5, res.Metrics.WinRate, 1e-12)
	assert.InDelta(t, -0.1, res.Metrics.MaxDrawdown, 1e-12)
	assert.InDelta(t, -0.01, res.Metrics.TotalReturn, 1e-12)
	assert.Len(t, res.Trades, 4)
}

func TestDeterministicReplay(t *testing.T) {
	closes := []float64{100, 104, 99, 107, 103, 111, 96, 120, 115, 125}
	run := func() *Result {
		strat := &scriptedStrategy{actions: []models.Action{
			models.ActionBuy, models.ActionHold, models.ActionSell, models.ActionBuy,
		}}
		return runBacktest(t, baseConfig("0.0005"), strat, dailyCandles(closes...))
	}

	a, b := run(), run()
	require.Equal(t, len(a.EquityCurve), len(b.EquityCurve))
	for i := range a.EquityCurve {
		assert.True(t, a.EquityCurve[i].Value.Equal(b.EquityCurve[i].Value))
	}
	assert.Equal(t, a.Metrics, b.Metrics)
}

func TestEngineRequiresCandles(t *testing.T) {
	strat := &scriptedStrategy{}
	_, err := New(baseConfig("0"), strat, map[models.Timeframe]*feed.CandleStore{}, newJournal(t))
	assert.Error(t, err)
}

func TestSharpeZeroVarianceReportsZero(t *testing.T) {
	// Never trading keeps the equity curve perfectly flat.
	strat := &scriptedStrategy{}
	res := runBacktest(t, baseConfig("0"), strat, dailyCandles(risingCloses(10)...))

	assert.Equal(t, 0.0, res.Metrics.SharpeRatio)
	assert.Equal(t, 0.0, res.Metrics.TotalReturn)
}

func TestWriteReport(t *testing.T) {
	strat := &scriptedStrategy{actions: []models.Action{models.ActionBuy}}
	res := runBacktest(t, baseConfig("0.0005"), strat, dailyCandles(risingCloses(20)...))

	var buf bytes.Buffer
	WriteReport(&buf, res)
	out := buf.String()
	assert.Contains(t, out, "Total return")
	assert.Contains(t, out, "KRW-BTC")

	buf.Reset()
	WriteComparison(&buf, []*Result{res})
	assert.Contains(t, buf.String(), "Buy&Hold")
}
