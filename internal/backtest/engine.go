// Package backtest replays a decision/execution cycle over historical candles
// and reports performance metrics. The replay drives the exact same decision
// engine, executor and ledger as live paper trading; only the market data and
// the clock differ.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"upbit-quant-bot/internal/decision"
	"upbit-quant-bot/internal/exchange"
	"upbit-quant-bot/internal/executor"
	"upbit-quant-bot/internal/feed"
	"upbit-quant-bot/internal/ledger"
	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"
	"upbit-quant-bot/internal/statemachine"
	"upbit-quant-bot/internal/strategy"

	"github.com/shopspring/decimal"
)

// Config parameterizes one backtest run.
type Config struct {
	StrategyID     string
	Market         string
	InitialBalance decimal.Decimal
	Commission     decimal.Decimal
	BuyAmountRatio decimal.Decimal // fraction of cash per buy, (0, 1]
	RiskFreeRate   float64         // annual, for the Sharpe ratio
}

// Result is the outcome of a run: the equity curve, the executed trades and
// the derived metrics.
type Result struct {
	StrategyID     string
	Market         string
	Start          time.Time
	End            time.Time
	InitialBalance decimal.Decimal
	FinalValue     decimal.Decimal
	EquityCurve    []EquityPoint
	Trades         []models.TradeRecord
	FailedOrders   int
	Metrics        Metrics
}

// Engine replays one strategy over one or more candle series.
type Engine struct {
	cfg     Config
	strat   strategy.Strategy
	stores  map[models.Timeframe]*feed.CandleStore
	journal persistence.OrderJournal
}

// New creates a backtest engine. Every timeframe the strategy requires must
// have a store; journal receives the replayed orders and signals.
func New(cfg Config, strat strategy.Strategy, stores map[models.Timeframe]*feed.CandleStore, journal persistence.OrderJournal) (*Engine, error) {
	if cfg.InitialBalance.Sign() <= 0 {
		return nil, errors.New("backtest: initial balance must be positive")
	}
	if cfg.BuyAmountRatio.Sign() <= 0 || cfg.BuyAmountRatio.GreaterThan(decimal.New(1, 0)) {
		cfg.BuyAmountRatio = decimal.New(1, 0)
	}
	for _, tf := range strat.RequiredTimeframes() {
		if stores[tf] == nil || stores[tf].Len() == 0 {
			return nil, fmt.Errorf("backtest: no candles for required timeframe %s", tf)
		}
	}
	return &Engine{cfg: cfg, strat: strat, stores: stores, journal: journal}, nil
}

// Run replays the series. It is single threaded and deterministic: the same
// candles and configuration always produce the same result.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	account, err := ledger.NewAccount(e.cfg.InitialBalance)
	if err != nil {
		return nil, err
	}
	machine := statemachine.New()
	paper := exchange.NewPaperExchange(account, e.cfg.Commission)
	dec := decision.New(e.cfg.StrategyID, e.cfg.Market, e.strat, machine, e.journal)
	exec := executor.New(e.cfg.StrategyID, e.cfg.Market, paper, e.journal, machine, time.Minute)

	primary := e.strat.RequiredTimeframes()[0]
	timestamps := e.decisionTimestamps()
	if len(timestamps) == 0 {
		return nil, errors.New("backtest: no candles to replay")
	}

	res := &Result{
		StrategyID:     e.cfg.StrategyID,
		Market:         e.cfg.Market,
		Start:          timestamps[0],
		End:            timestamps[len(timestamps)-1],
		InitialBalance: e.cfg.InitialBalance,
	}

	var lastPrice float64
	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Expose only candles that had closed by ts. This is the no-look-ahead
		// guarantee: the store view is capped, never the raw series.
		visible := make(map[models.Timeframe][]models.Candle, len(e.stores))
		for tf, store := range e.stores {
			visible[tf] = store.UpTo(ts)
		}

		primarySeries := visible[primary]
		if len(primarySeries) == 0 {
			continue
		}
		price := primarySeries[len(primarySeries)-1].Close
		lastPrice = price

		d := dec.Decide(visible, price, ts)
		e.execute(ctx, exec, account, d, &res.FailedOrders)

		res.EquityCurve = append(res.EquityCurve, EquityPoint{
			Timestamp: ts,
			Value:     account.TotalValue(e.priceMap(price)),
			Price:     price,
		})
	}

	// Force-liquidate any open position at the final price so metrics compare
	// fully-realized outcomes. Real exits may differ.
	if machine.IsLong() && account.Holding(e.cfg.Market).Sign() > 0 {
		d := models.Decision{
			Action:      models.ActionSell,
			Reason:      "end of data liquidation",
			StateBefore: models.PositionLong,
			StateAfter:  models.PositionFlat,
			Price:       lastPrice,
			Timestamp:   res.End,
		}
		e.execute(ctx, exec, account, d, &res.FailedOrders)
		if n := len(res.EquityCurve); n > 0 {
			res.EquityCurve[n-1].Value = account.TotalValue(e.priceMap(lastPrice))
		}
	}

	res.Trades = reverseTrades(account.History(0))
	res.FinalValue = account.TotalValue(e.priceMap(lastPrice))
	res.Metrics = computeMetrics(e.cfg.InitialBalance, res.EquityCurve, res.Trades, e.cfg.RiskFreeRate, periodsPerYear(primary))
	return res, nil
}

// execute runs one actionable decision through the executor. Failures are
// counted and logged; the replay continues, mirroring live behavior.
func (e *Engine) execute(ctx context.Context, exec *executor.Executor, account *ledger.Account, d models.Decision, failed *int) {
	if d.Action != models.ActionBuy && d.Action != models.ActionSell {
		return
	}

	var req executor.Request
	if d.Action == models.ActionBuy {
		req.Amount = account.Balance().Mul(e.cfg.BuyAmountRatio)
		if req.Amount.Sign() <= 0 {
			return
		}
	}
	if _, err := exec.Execute(ctx, d, req); err != nil {
		*failed++
		logger.S().Debugw("backtest order failed", "strategy", e.cfg.StrategyID, "error", err)
	}
}

// decisionTimestamps merges all stores into one ascending de-duplicated
// sequence of timestamps.
func (e *Engine) decisionTimestamps() []time.Time {
	var all []time.Time
	for _, store := range e.stores {
		all = append(all, store.Timestamps()...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })

	deduped := all[:0]
	for _, ts := range all {
		if len(deduped) > 0 && ts.Equal(deduped[len(deduped)-1]) {
			continue
		}
		deduped = append(deduped, ts)
	}
	return deduped
}

func (e *Engine) priceMap(price float64) map[string]decimal.Decimal {
	return map[string]decimal.Decimal{e.cfg.Market: decimal.NewFromFloat(price)}
}

// periodsPerYear scales the Sharpe annualization to the candle interval.
func periodsPerYear(tf models.Timeframe) float64 {
	d := tf.Duration()
	if d <= 0 {
		return 365
	}
	return float64(365*24*time.Hour) / float64(d)
}

// reverseTrades flips the newest-first history into replay order.
func reverseTrades(trades []models.TradeRecord) []models.TradeRecord {
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades
}
