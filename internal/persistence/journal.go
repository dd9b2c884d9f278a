// Package persistence holds the two durable stores: a sqlite journal with the
// append-only order/action/signal trail, and a badger snapshot store for the
// per-strategy live state.
package persistence

import (
	"errors"
	"time"

	"upbit-quant-bot/internal/models"
)

// ErrDuplicateOrder is returned by InsertOrder when an order with the same id
// already exists in the journal. The executor relies on this to make order
// submission idempotent across retries and restarts.
var ErrDuplicateOrder = errors.New("persistence: duplicate order id")

// ActionRecord is the audit entry derived from a successful or failed
// execution attempt, tying an order to the position transition it caused.
type ActionRecord struct {
	OrderID     string
	StrategyID  string
	Action      models.Action
	StateBefore models.PositionState
	StateAfter  models.PositionState
	Reason      string
	Price       float64
	Timestamp   time.Time
}

// SignalRecord is one decision-engine output, journaled for audit regardless
// of whether it led to an order.
type SignalRecord struct {
	StrategyID string
	Market     string
	Action     models.Action
	Confidence float64
	Reason     string
	Timestamp  time.Time
}

// OrderJournal is the append-only persistent trail of orders, actions and
// signals. Implementations must make InsertOrder fail with ErrDuplicateOrder
// on an already-journaled id, atomically with respect to concurrent inserts.
type OrderJournal interface {
	InsertOrder(order models.Order) error
	HasOrder(orderID string) (bool, error)
	GetOrder(orderID string) (*models.Order, error)
	InsertAction(rec ActionRecord) error
	InsertSignal(rec SignalRecord) error
	Close() error
}
