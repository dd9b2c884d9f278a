// Package strategy contains the pure signal generators. A strategy never
// touches the account, the exchange or the state machine: it looks at candles
// and the current position and proposes BUY, SELL or HOLD. Everything side
// effecting lives downstream in decision and executor.
package strategy

import (
	"upbit-quant-bot/internal/models"
)

// Strategy generates trading signals from candle data.
//
// GenerateSignal must be pure: same candles and state in, same signal out.
// Implementations receive candles per timeframe; a strategy only reads the
// timeframes it declared in RequiredTimeframes.
type Strategy interface {
	Name() string
	RequiredTimeframes() []models.Timeframe
	GenerateSignal(candles map[models.Timeframe][]models.Candle, state models.PositionState) models.Signal
}

// Closes extracts the close series from candles, oldest first.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func hold(reason string) models.Signal {
	return models.Signal{Action: models.ActionHold, Reason: reason}
}
