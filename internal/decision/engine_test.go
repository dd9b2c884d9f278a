package decision

import (
	"path/filepath"
	"testing"
	"time"

	"upbit-quant-bot/internal/models"
	"upbit-quant-bot/internal/persistence"
	"upbit-quant-bot/internal/statemachine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStrategy returns a canned signal regardless of input.
type stubStrategy struct {
	signal models.Signal
}

func (s *stubStrategy) Name() string { return "stub" }

func (s *stubStrategy) RequiredTimeframes() []models.Timeframe {
	return []models.Timeframe{models.Timeframe15m}
}

func (s *stubStrategy) GenerateSignal(map[models.Timeframe][]models.Candle, models.PositionState) models.Signal {
	return s.signal
}

func someCandles() map[models.Timeframe][]models.Candle {
	return map[models.Timeframe][]models.Candle{
		models.Timeframe15m: {{Timestamp: time.Now(), Close: 100}},
	}
}

func newEngine(sig models.Signal, state models.PositionState) *Engine {
	m, err := statemachine.Restore(state)
	if err != nil {
		panic(err)
	}
	return New("test", "KRW-BTC", &stubStrategy{signal: sig}, m, nil)
}

func TestDecideBuyFromFlat(t *testing.T) {
	e := newEngine(models.Signal{Action: models.ActionBuy, Confidence: 0.7, Reason: "cross"}, models.PositionFlat)

	d := e.Decide(someCandles(), 100, time.Now())
	assert.Equal(t, models.ActionBuy, d.Action)
	assert.Equal(t, models.PositionFlat, d.StateBefore)
	assert.Equal(t, models.PositionLong, d.StateAfter)
	// Decide is read-only: the machine has not moved.
	assert.Equal(t, models.PositionFlat, e.Machine().State())
}

func TestDecideBuyIgnoredWhileLong(t *testing.T) {
	e := newEngine(models.Signal{Action: models.ActionBuy, Reason: "cross"}, models.PositionLong)

	d := e.Decide(someCandles(), 100, time.Now())
	assert.Equal(t, models.ActionHold, d.Action)
	assert.Equal(t, models.PositionLong, d.StateAfter)
	assert.Contains(t, d.Reason, "ignored")
}

func TestDecideSellFromLong(t *testing.T) {
	e := newEngine(models.Signal{Action: models.ActionSell, Reason: "dead cross"}, models.PositionLong)

	d := e.Decide(someCandles(), 100, time.Now())
	assert.Equal(t, models.ActionSell, d.Action)
	assert.Equal(t, models.PositionFlat, d.StateAfter)
}

func TestDecideSellIgnoredWhileFlat(t *testing.T) {
	e := newEngine(models.Signal{Action: models.ActionSell, Reason: "dead cross"}, models.PositionFlat)

	d := e.Decide(someCandles(), 100, time.Now())
	assert.Equal(t, models.ActionHold, d.Action)
}

func TestDecideIgnoresSignalsWhilePending(t *testing.T) {
	for _, action := range []models.Action{models.ActionBuy, models.ActionSell} {
		e := newEngine(models.Signal{Action: action}, models.PositionPending)

		d := e.Decide(someCandles(), 100, time.Now())
		assert.Equal(t, models.ActionHold, d.Action)
		assert.Equal(t, models.PositionPending, d.StateAfter)
	}
}

func TestDecideHoldsOnMissingTimeframe(t *testing.T) {
	e := newEngine(models.Signal{Action: models.ActionBuy}, models.PositionFlat)

	d := e.Decide(map[models.Timeframe][]models.Candle{}, 100, time.Now())
	assert.Equal(t, models.ActionHold, d.Action)
	assert.Contains(t, d.Reason, "15m")
}

func TestApplyCommitsTransition(t *testing.T) {
	e := newEngine(models.Signal{Action: models.ActionBuy, Reason: "cross"}, models.PositionFlat)

	d := e.Decide(someCandles(), 100, time.Now())
	require.NoError(t, e.Apply(d))
	assert.Equal(t, models.PositionLong, e.Machine().State())

	// HOLD is a no-op.
	hold := models.Decision{Action: models.ActionHold, StateBefore: models.PositionLong, StateAfter: models.PositionLong}
	require.NoError(t, e.Apply(hold))
	assert.Equal(t, models.PositionLong, e.Machine().State())
}

func TestDecideJournalsSignals(t *testing.T) {
	j, err := persistence.OpenSQLiteJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	m := statemachine.New()
	e := New("test", "KRW-BTC", &stubStrategy{signal: models.Signal{Action: models.ActionHold, Reason: "quiet"}}, m, j)

	d := e.Decide(someCandles(), 100, time.Now())
	assert.Equal(t, models.ActionHold, d.Action)
}
