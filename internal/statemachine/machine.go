// Package statemachine tracks the position lifecycle of one strategy/market
// pair: FLAT (no position), LONG (holding) and PENDING (order in flight).
package statemachine

import (
	"fmt"
	"sync"
	"time"

	"upbit-quant-bot/internal/models"
)

// InvalidTransitionError reports a transition outside the valid table. It is a
// hard error, not an expected condition: it means the decision engine and the
// state machine have diverged.
type InvalidTransitionError struct {
	From models.PositionState
	To   models.PositionState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid position transition from %s to %s", e.From, e.To)
}

// TransitionRecord is one entry of the audit trail. Records are immutable once
// appended.
type TransitionRecord struct {
	Timestamp time.Time            `json:"timestamp"`
	From      models.PositionState `json:"from"`
	To        models.PositionState `json:"to"`
	Reason    string               `json:"reason"`
	Metadata  map[string]float64   `json:"metadata,omitempty"`
}

// validTransitions is the full transition table. Anything not listed fails,
// including same-state "transitions".
var validTransitions = map[models.PositionState][]models.PositionState{
	models.PositionFlat:    {models.PositionLong, models.PositionPending},
	models.PositionLong:    {models.PositionFlat, models.PositionPending},
	models.PositionPending: {models.PositionFlat, models.PositionLong},
}

// Machine is the position state machine. The zero value is not usable; use New.
type Machine struct {
	mu      sync.Mutex
	state   models.PositionState
	history []TransitionRecord
}

// New creates a machine in the FLAT state.
func New() *Machine {
	return &Machine{state: models.PositionFlat}
}

// Restore creates a machine in the given state, for resuming from a snapshot.
func Restore(state models.PositionState) (*Machine, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("unknown position state %q", state)
	}
	return &Machine{state: state}, nil
}

// State returns the current position state.
func (m *Machine) State() models.PositionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsFlat reports whether no position is held and no order is in flight.
func (m *Machine) IsFlat() bool { return m.State() == models.PositionFlat }

// IsLong reports whether a position is held.
func (m *Machine) IsLong() bool { return m.State() == models.PositionLong }

// IsPending reports whether an order is in flight.
func (m *Machine) IsPending() bool { return m.State() == models.PositionPending }

// TransitionTo moves the machine to the given state. An invalid transition
// returns *InvalidTransitionError and leaves the state unchanged. On success
// the transition is appended to the audit history and its record returned.
func (m *Machine) TransitionTo(to models.PositionState, reason string, metadata map[string]float64) (TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.isValidLocked(to) {
		return TransitionRecord{}, &InvalidTransitionError{From: m.state, To: to}
	}

	rec := TransitionRecord{
		Timestamp: time.Now(),
		From:      m.state,
		To:        to,
		Reason:    reason,
		Metadata:  metadata,
	}
	m.state = to
	m.history = append(m.history, rec)

	return rec, nil
}

func (m *Machine) isValidLocked(to models.PositionState) bool {
	for _, s := range validTransitions[m.state] {
		if s == to {
			return true
		}
	}
	return false
}

// History returns a copy of the transition audit trail, oldest first.
func (m *Machine) History() []TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]TransitionRecord, len(m.history))
	copy(out, m.history)
	return out
}
