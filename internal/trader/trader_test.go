package trader

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"upbit-quant-bot/internal/decision"
	"upbit-quant-bot/internal/exchange"
	"upbit-quant-bot/internal/executor"
	"upbit-quant-bot/internal/ledger"
	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"
	"upbit-quant-bot/internal/statemachine"
	"upbit-quant-bot/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubMarket serves canned candles and a fixed ticker.
type stubMarket struct {
	candles   []models.Candle
	price     float64
	tickerErr error
}

func (m *stubMarket) GetTicker(ctx context.Context, market string) (*models.Ticker, error) {
	if m.tickerErr != nil {
		return nil, m.tickerErr
	}
	return &models.Ticker{Market: market, Price: m.price, Timestamp: time.Now()}, nil
}

func (m *stubMarket) GetCandles(ctx context.Context, market string, tf models.Timeframe, count int) ([]models.Candle, error) {
	return m.candles, nil
}

// blockingMarket hangs until the context is canceled, simulating a stuck
// upstream that starves the heartbeat.
type blockingMarket struct{}

func (m *blockingMarket) GetTicker(ctx context.Context, market string) (*models.Ticker, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *blockingMarket) GetCandles(ctx context.Context, market string, tf models.Timeframe, count int) ([]models.Candle, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stubStrategy emits a fixed action.
type stubStrategy struct {
	action models.Action
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) RequiredTimeframes() []models.Timeframe {
	return []models.Timeframe{models.Timeframe15m}
}

func (s *stubStrategy) GenerateSignal(map[models.Timeframe][]models.Candle, models.PositionState) models.Signal {
	return models.Signal{Action: s.action, Reason: "stub"}
}

func newTestTask(t *testing.T, action models.Action, market exchange.MarketData, snapshots persistence.SnapshotStore) (*Task, *ledger.Account, *statemachine.Machine) {
	t.Helper()

	account, err := ledger.NewAccount(decimal.NewFromInt(1_000_000))
	require.NoError(t, err)
	journal, err := persistence.OpenSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	machine := statemachine.New()
	cfg := models.StrategyConfig{
		Market:           "KRW-BTC",
		Timeframe:        "15m",
		CheckIntervalSec: 3600,
		BuyAmountRatio:   1.0,
		Commission:       0.0005,
	}
	engine := decision.New("s1", cfg.Market, &stubStrategy{action: action}, machine, journal)
	paper := exchange.NewPaperExchange(account, decimal.RequireFromString("0.0005"))
	exec := executor.New("s1", cfg.Market, paper, journal, machine, time.Second)

	return NewTask("s1", cfg, engine, exec, account, market, snapshots), account, machine
}

func someCandles() []models.Candle {
	return []models.Candle{{Timestamp: time.Now(), Close: 100, Volume: 1}}
}

func TestTaskStepExecutesBuy(t *testing.T) {
	store, err := persistence.NewBadgerSnapshotStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	market := &stubMarket{candles: someCandles(), price: 100}
	task, account, machine := newTestTask(t, models.ActionBuy, market, store)

	task.Step(context.Background())

	assert.Equal(t, models.PositionLong, machine.State())
	assert.True(t, account.Balance().IsZero())
	assert.True(t, account.Holding("KRW-BTC").Sign() > 0)

	snap, err := store.LoadSnapshot("s1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, models.PositionLong, snap.Position)
}

func TestTaskStepContinuesOnTickerError(t *testing.T) {
	market := &stubMarket{candles: someCandles(), tickerErr: context.DeadlineExceeded}
	task, account, machine := newTestTask(t, models.ActionBuy, market, nil)

	before := task.LastHeartbeat()
	time.Sleep(5 * time.Millisecond)
	task.Step(context.Background())

	// No trade happened, but the task is still alive.
	assert.Equal(t, models.PositionFlat, machine.State())
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, task.LastHeartbeat().After(before))
}

func TestTaskStepHoldDoesNothing(t *testing.T) {
	market := &stubMarket{candles: someCandles(), price: 100}
	task, account, machine := newTestTask(t, models.ActionHold, market, nil)

	task.Step(context.Background())
	assert.Equal(t, models.PositionFlat, machine.State())
	assert.True(t, account.Balance().Equal(decimal.NewFromInt(1_000_000)))
}

func TestSupervisorExhaustsRestartBudget(t *testing.T) {
	cfg := &models.Config{
		InitialBalance: 1_000_000,
		Commission:     0.0005,
		MaxRestarts:    2,
		HeartbeatSec:   300,
		OrderTimeoutMs: 1000,
		Strategies: map[string]models.StrategyConfig{
			"s1": {
				Strategy:         "sma_cross",
				Market:           "KRW-BTC",
				Timeframe:        "15m",
				FastPeriod:       5,
				SlowPeriod:       20,
				CheckIntervalSec: 3600,
				BuyAmountRatio:   1.0,
				Commission:       0.0005,
			},
		},
	}

	journal, err := persistence.OpenSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer journal.Close()

	sup := NewSupervisor(cfg, strategy.NewRegistry(), ledger.NewManager(decimal.NewFromInt(1_000_000)), journal, nil, &blockingMarket{})
	// Tight timings so the stale-heartbeat path runs in test time.
	sup.heartbeatTimeout = 30 * time.Millisecond
	sup.monitorInterval = 10 * time.Millisecond
	sup.restartDelay = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	assert.Eventually(t, func() bool {
		restarts, failed, ok := sup.Snapshot("s1")
		return ok && failed && restarts == cfg.MaxRestarts
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSupervisorRestoresPositionFromSnapshot(t *testing.T) {
	store, err := persistence.NewBadgerSnapshotStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SaveSnapshot(&models.TraderSnapshot{
		StrategyID: "s1",
		Market:     "KRW-BTC",
		Position:   models.PositionLong,
	}))

	sup := &Supervisor{snapshots: store}
	machine, err := sup.restoreMachine("s1")
	require.NoError(t, err)
	assert.Equal(t, models.PositionLong, machine.State())

	fresh, err := sup.restoreMachine("unknown")
	require.NoError(t, err)
	assert.Equal(t, models.PositionFlat, fresh.State())
}
