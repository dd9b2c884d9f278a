// Package trader runs live paper trading: one supervised task per configured
// strategy, each on its own check interval, with heartbeat monitoring and a
// bounded number of automatic restarts.
package trader

import (
	"context"
	"sync/atomic"
	"time"

	"upbit-quant-bot/internal/decision"
	"upbit-quant-bot/internal/exchange"
	"upbit-quant-bot/internal/executor"
	"upbit-quant-bot/internal/ledger"
	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"

	"github.com/shopspring/decimal"
)

// candleFetchCount is how many candles each check fetches per timeframe,
// the Upbit single-request maximum.
const candleFetchCount = 200

// Task is one strategy's live loop. It polls market data on its check
// interval, runs the decision/execution cycle, and persists a snapshot after
// every step. All state mutation happens inside the loop goroutine.
type Task struct {
	strategyID string
	cfg        models.StrategyConfig
	engine     *decision.Engine
	exec       *executor.Executor
	account    *ledger.Account
	market     exchange.MarketData
	snapshots  persistence.SnapshotStore
	ratio      decimal.Decimal

	heartbeat atomic.Int64 // unix milli of the last completed step
}

// NewTask assembles a task from its collaborators.
func NewTask(strategyID string, cfg models.StrategyConfig, engine *decision.Engine, exec *executor.Executor, account *ledger.Account, market exchange.MarketData, snapshots persistence.SnapshotStore) *Task {
	t := &Task{
		strategyID: strategyID,
		cfg:        cfg,
		engine:     engine,
		exec:       exec,
		account:    account,
		market:     market,
		snapshots:  snapshots,
		ratio:      decimal.NewFromFloat(cfg.BuyAmountRatio),
	}
	t.heartbeat.Store(time.Now().UnixMilli())
	return t
}

// LastHeartbeat returns the time of the last completed step.
func (t *Task) LastHeartbeat() time.Time {
	return time.UnixMilli(t.heartbeat.Load())
}

// Run executes the check loop until ctx is canceled. Errors inside a step are
// logged and the loop continues with the next tick; only cancellation stops it.
func (t *Task) Run(ctx context.Context) {
	interval := time.Duration(t.cfg.CheckIntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.S().Infow("strategy task started",
		"strategy", t.strategyID, "market", t.cfg.Market, "interval", interval)

	// First check immediately rather than one interval in.
	t.Step(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.S().Infow("strategy task stopped", "strategy", t.strategyID)
			return
		case <-ticker.C:
			t.Step(ctx)
		}
	}
}

// Step runs one decision/execution cycle. It is exported so a caller can
// drive the cycle manually (tests, one-shot evaluation).
func (t *Task) Step(ctx context.Context) {
	defer func() {
		t.heartbeat.Store(time.Now().UnixMilli())
		t.saveSnapshot()
	}()

	candles := make(map[models.Timeframe][]models.Candle)
	for _, tf := range t.engine.RequiredTimeframes() {
		series, err := t.market.GetCandles(ctx, t.cfg.Market, tf, candleFetchCount)
		if err != nil {
			// Leaving the timeframe out degrades the decision to HOLD.
			logger.S().Warnw("candle fetch failed",
				"strategy", t.strategyID, "timeframe", tf, "error", err)
			continue
		}
		candles[tf] = series
	}

	ticker, err := t.market.GetTicker(ctx, t.cfg.Market)
	if err != nil {
		logger.S().Warnw("ticker fetch failed", "strategy", t.strategyID, "error", err)
		return
	}

	d := t.engine.Decide(candles, ticker.Price, time.Now())
	if d.Action != models.ActionBuy && d.Action != models.ActionSell {
		return
	}

	var req executor.Request
	if d.Action == models.ActionBuy {
		req.Amount = t.account.Balance().Mul(t.ratio)
		if req.Amount.Sign() <= 0 {
			logger.S().Infow("buy skipped, no cash", "strategy", t.strategyID)
			return
		}
	}

	order, err := t.exec.Execute(ctx, d, req)
	if err != nil {
		// Failed executions are already journaled; the task carries on with
		// its next scheduled check.
		logger.S().Errorw("execution failed",
			"strategy", t.strategyID, "action", d.Action, "error", err)
		return
	}
	logger.S().Infow("order executed",
		"strategy", t.strategyID,
		"order_id", order.OrderID,
		"side", order.Side,
		"price", order.Price,
		"quantity", order.Quantity)
}

// saveSnapshot persists the task's current state, best effort.
func (t *Task) saveSnapshot() {
	if t.snapshots == nil {
		return
	}
	now := time.Now()
	snap := &models.TraderSnapshot{
		StrategyID:     t.strategyID,
		Market:         t.cfg.Market,
		Position:       t.engine.Machine().State(),
		LastHeartbeat:  t.LastHeartbeat(),
		Account:        t.account.Summary(nil),
		LastUpdateTime: now,
	}
	if err := t.snapshots.SaveSnapshot(snap); err != nil {
		logger.S().Warnw("snapshot save failed", "strategy", t.strategyID, "error", err)
	}
}
