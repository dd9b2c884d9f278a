package strategy

import (
	"fmt"
	"math"

	"upbit-quant-bot/internal/indicator"
	"upbit-quant-bot/internal/models"
)

// Momentum signals on the fractional return over the lookback window: BUY at
// or above the buy threshold, SELL at or below the sell threshold.
type Momentum struct {
	timeframe     models.Timeframe
	lookback      int
	buyThreshold  float64
	sellThreshold float64
}

func NewMomentum(cfg models.StrategyConfig) *Momentum {
	return &Momentum{
		timeframe:     models.Timeframe(cfg.Timeframe),
		lookback:      cfg.LookbackPeriod,
		buyThreshold:  cfg.BuyThreshold,
		sellThreshold: cfg.SellThreshold,
	}
}

func (s *Momentum) Name() string { return "momentum" }

func (s *Momentum) RequiredTimeframes() []models.Timeframe {
	return []models.Timeframe{s.timeframe}
}

func (s *Momentum) GenerateSignal(candles map[models.Timeframe][]models.Candle, state models.PositionState) models.Signal {
	series := candles[s.timeframe]
	if len(series) <= s.lookback {
		return hold(fmt.Sprintf("need more than %d candles, have %d", s.lookback, len(series)))
	}

	mom := indicator.Last(indicator.Momentum(Closes(series), s.lookback))
	if math.IsNaN(mom) {
		return hold("momentum not yet defined")
	}

	meta := map[string]float64{"momentum": mom}

	switch {
	case mom >= s.buyThreshold:
		return models.Signal{
			Action:     models.ActionBuy,
			Confidence: clamp01(mom / (2 * s.buyThreshold)),
			Reason:     fmt.Sprintf("momentum %.4f >= %.4f over %d candles", mom, s.buyThreshold, s.lookback),
			Metadata:   meta,
		}
	case mom <= s.sellThreshold:
		return models.Signal{
			Action:     models.ActionSell,
			Confidence: clamp01(mom / (2 * s.sellThreshold)),
			Reason:     fmt.Sprintf("momentum %.4f <= %.4f over %d candles", mom, s.sellThreshold, s.lookback),
			Metadata:   meta,
		}
	}
	return models.Signal{Action: models.ActionHold, Reason: "momentum inside thresholds", Metadata: meta}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
