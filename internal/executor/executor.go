// Package executor carries a decision through to a journaled order. It owns
// the position transitions around an order: the machine goes PENDING before
// the order is placed and settles to LONG or FLAT (or reverts) afterwards, so
// a crash mid-order is visible in the persisted state.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"upbit-quant-bot/internal/exchange"
	"upbit-quant-bot/internal/logger"
	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"
	"upbit-quant-bot/internal/statemachine"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"github.com/shopspring/decimal"
)

// DuplicateOrderError is returned when the order id is already journaled. The
// existing record is attached so a retrying caller can see what actually
// happened the first time.
type DuplicateOrderError struct {
	OrderID  string
	Existing *models.Order
}

func (e *DuplicateOrderError) Error() string {
	return fmt.Sprintf("order %s already executed", e.OrderID)
}

// Request sizes an order for a decision. For BUY, Amount is the cash to
// spend; for SELL, Quantity is the amount to sell (zero sells the whole
// holding). An empty OrderID gets a generated idempotency key.
type Request struct {
	OrderID  string
	Amount   decimal.Decimal
	Quantity decimal.Decimal
}

// Executor executes decisions for one strategy/market pair.
type Executor struct {
	strategyID string
	market     string
	placer     exchange.OrderPlacer
	journal    persistence.OrderJournal
	machine    *statemachine.Machine
	timeout    time.Duration
}

// New creates an executor. timeout bounds each order placement call.
func New(strategyID, market string, placer exchange.OrderPlacer, journal persistence.OrderJournal, machine *statemachine.Machine, timeout time.Duration) *Executor {
	return &Executor{
		strategyID: strategyID,
		market:     market,
		placer:     placer,
		journal:    journal,
		machine:    machine,
		timeout:    timeout,
	}
}

// NewOrderID generates a fresh idempotency key: a UUID compacted to base62.
func NewOrderID() string {
	u := uuid.New()
	return base62.EncodeToString(u[:])
}

// Execute places the order implied by the decision and journals the result.
//
// The same order id is never applied twice: a journaled id fails immediately
// with *DuplicateOrderError and touches nothing. Failed attempts (rejection,
// timeout, transport error) are journaled with status FAILED, the position
// transition is reverted, and the error is returned; retrying is the caller's
// call, with a fresh order id.
func (x *Executor) Execute(ctx context.Context, d models.Decision, req Request) (*models.Order, error) {
	if d.Action != models.ActionBuy && d.Action != models.ActionSell {
		return nil, fmt.Errorf("decision %s is not executable", d.Action)
	}

	orderID := req.OrderID
	if orderID == "" {
		orderID = NewOrderID()
	}

	exists, err := x.journal.HasOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check order %s: %w", orderID, err)
	}
	if exists {
		existing, err := x.journal.GetOrder(orderID)
		if err != nil {
			logger.S().Warnw("duplicate order lookup failed", "order_id", orderID, "error", err)
		}
		return nil, &DuplicateOrderError{OrderID: orderID, Existing: existing}
	}

	side := models.Buy
	if d.Action == models.ActionSell {
		side = models.Sell
	}

	// Mark the order in flight before touching the exchange. If the process
	// dies here, the PENDING snapshot tells the operator an order may or may
	// not have gone out.
	stateBefore := x.machine.State()
	if _, err := x.machine.TransitionTo(models.PositionPending, d.Reason, d.Metadata); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()

	order, placeErr := x.placer.PlaceOrder(callCtx, exchange.OrderRequest{
		OrderID:   orderID,
		Market:    x.market,
		Side:      side,
		Price:     decimal.NewFromFloat(d.Price),
		Quantity:  req.Quantity,
		Amount:    req.Amount,
		Timestamp: d.Timestamp,
	})
	if placeErr != nil {
		x.recordFailure(orderID, side, d, req, stateBefore, placeErr)
		return nil, placeErr
	}

	if err := x.journal.InsertOrder(*order); err != nil {
		if errors.Is(err, persistence.ErrDuplicateOrder) {
			// Lost an insert race with a concurrent retry. The trade is
			// already applied once; report it as a duplicate.
			x.revert(stateBefore, "duplicate order "+orderID)
			existing, _ := x.journal.GetOrder(orderID)
			return nil, &DuplicateOrderError{OrderID: orderID, Existing: existing}
		}
		logger.S().Errorw("executed order could not be journaled", "order_id", orderID, "error", err)
	}

	stateAfter := models.PositionLong
	if side == models.Sell {
		stateAfter = models.PositionFlat
	}
	if _, err := x.machine.TransitionTo(stateAfter, d.Reason, d.Metadata); err != nil {
		return order, err
	}

	if err := x.journal.InsertAction(persistence.ActionRecord{
		OrderID:     orderID,
		StrategyID:  x.strategyID,
		Action:      d.Action,
		StateBefore: stateBefore,
		StateAfter:  stateAfter,
		Reason:      d.Reason,
		Price:       d.Price,
		Timestamp:   order.ExecutedAt,
	}); err != nil {
		logger.S().Warnw("failed to journal action", "order_id", orderID, "error", err)
	}

	return order, nil
}

// recordFailure journals the failed attempt and reverts the PENDING state.
// A timeout is a failed-unknown: the attempt is recorded as FAILED rather
// than guessed either way.
func (x *Executor) recordFailure(orderID string, side models.Side, d models.Decision, req Request, stateBefore models.PositionState, cause error) {
	failed := models.Order{
		OrderID:    orderID,
		Market:     x.market,
		Side:       side,
		Type:       models.OrderTypeMarket,
		Price:      decimal.NewFromFloat(d.Price),
		Quantity:   req.Quantity,
		Amount:     req.Amount,
		Status:     models.OrderStatusFailed,
		CreatedAt:  d.Timestamp,
		ExecutedAt: time.Now(),
	}
	if err := x.journal.InsertOrder(failed); err != nil {
		logger.S().Errorw("failed order could not be journaled", "order_id", orderID, "error", err)
	}
	logger.S().Warnw("order failed",
		"order_id", orderID, "side", side, "reason", cause)

	x.revert(stateBefore, fmt.Sprintf("order %s failed: %v", orderID, cause))
}

func (x *Executor) revert(stateBefore models.PositionState, reason string) {
	if _, err := x.machine.TransitionTo(stateBefore, reason, nil); err != nil {
		logger.S().Errorw("failed to revert position state", "to", stateBefore, "error", err)
	}
}
