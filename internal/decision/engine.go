// Package decision turns strategy signals into position-aware decisions.
// The engine is split in two halves: Decide is a pure read (no state is
// mutated), Apply commits a decision's transition. The executor normally owns
// the commit; Apply exists for decision-only replays and tests.
package decision

import (
	"fmt"
	"time"

	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"
	"upbit-quant-bot/internal/statemachine"
	"upbit-quant-bot/internal/strategy"
)

// Engine produces decisions for one strategy/market pair.
type Engine struct {
	strategyID string
	market     string
	strat      strategy.Strategy
	machine    *statemachine.Machine
	journal    persistence.OrderJournal // optional, nil disables signal journaling
}

// New creates a decision engine. journal may be nil; when present every
// decided signal is journaled for audit.
func New(strategyID, market string, strat strategy.Strategy, machine *statemachine.Machine, journal persistence.OrderJournal) *Engine {
	return &Engine{
		strategyID: strategyID,
		market:     market,
		strat:      strat,
		machine:    machine,
		journal:    journal,
	}
}

// Machine exposes the engine's state machine.
func (e *Engine) Machine() *statemachine.Machine {
	return e.machine
}

// RequiredTimeframes returns the timeframes the strategy needs per decision.
func (e *Engine) RequiredTimeframes() []models.Timeframe {
	return e.strat.RequiredTimeframes()
}

// Decide evaluates the strategy against the given candles and returns the
// decision. It never mutates state and never fails: a missing required
// timeframe degrades to HOLD so one bad data fetch cannot stop the loop.
//
// The position gates the signal: BUY is only actionable from FLAT, SELL only
// from LONG. Anything else (including any signal while PENDING) becomes HOLD.
func (e *Engine) Decide(candles map[models.Timeframe][]models.Candle, price float64, now time.Time) models.Decision {
	state := e.machine.State()

	for _, tf := range e.strat.RequiredTimeframes() {
		if len(candles[tf]) == 0 {
			return e.journaled(models.Decision{
				Action:      models.ActionHold,
				Reason:      fmt.Sprintf("no candles for required timeframe %s", tf),
				StateBefore: state,
				StateAfter:  state,
				Price:       price,
				Timestamp:   now,
			})
		}
	}

	sig := e.strat.GenerateSignal(candles, state)

	d := models.Decision{
		Action:      sig.Action,
		Confidence:  sig.Confidence,
		Reason:      sig.Reason,
		StateBefore: state,
		StateAfter:  state,
		Price:       price,
		Timestamp:   now,
		Metadata:    sig.Metadata,
	}

	switch sig.Action {
	case models.ActionBuy:
		if state != models.PositionFlat {
			d.Action = models.ActionHold
			d.Reason = fmt.Sprintf("buy signal ignored in state %s: %s", state, sig.Reason)
		} else {
			d.StateAfter = models.PositionLong
		}
	case models.ActionSell:
		if state != models.PositionLong {
			d.Action = models.ActionHold
			d.Reason = fmt.Sprintf("sell signal ignored in state %s: %s", state, sig.Reason)
		} else {
			d.StateAfter = models.PositionFlat
		}
	}

	return e.journaled(d)
}

// journaled records the decision to the signal journal, best effort. A journal
// write failure must not block trading; it is logged and the decision stands.
func (e *Engine) journaled(d models.Decision) models.Decision {
	if e.journal == nil {
		return d
	}
	err := e.journal.InsertSignal(persistence.SignalRecord{
		StrategyID: e.strategyID,
		Market:     e.market,
		Action:     d.Action,
		Confidence: d.Confidence,
		Reason:     d.Reason,
		Timestamp:  d.Timestamp,
	})
	if err != nil {
		logger.S().Warnw("failed to journal signal", "strategy", e.strategyID, "error", err)
	}
	return d
}

// Apply commits the decision's transition to the state machine. HOLD is a
// no-op. Used by decision-only replays; live execution commits through the
// executor instead, which also journals the order.
func (e *Engine) Apply(d models.Decision) error {
	if d.StateAfter == d.StateBefore {
		return nil
	}
	_, err := e.machine.TransitionTo(d.StateAfter, d.Reason, d.Metadata)
	return err
}
