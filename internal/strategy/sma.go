package strategy

import (
	"fmt"

	"upbit-quant-bot/internal/indicator"
	"upbit-quant-bot/internal/models"
)

// SMACross signals BUY on a golden cross (fast SMA crossing above slow SMA)
// and SELL on a dead cross. Everything else is HOLD.
type SMACross struct {
	timeframe models.Timeframe
	fast      int
	slow      int
}

func NewSMACross(cfg models.StrategyConfig) *SMACross {
	return &SMACross{
		timeframe: models.Timeframe(cfg.Timeframe),
		fast:      cfg.FastPeriod,
		slow:      cfg.SlowPeriod,
	}
}

func (s *SMACross) Name() string { return "sma_cross" }

func (s *SMACross) RequiredTimeframes() []models.Timeframe {
	return []models.Timeframe{s.timeframe}
}

func (s *SMACross) GenerateSignal(candles map[models.Timeframe][]models.Candle, state models.PositionState) models.Signal {
	series := candles[s.timeframe]
	if len(series) <= s.slow {
		return hold(fmt.Sprintf("need more than %d candles, have %d", s.slow, len(series)))
	}

	closes := Closes(series)
	fastSMA := indicator.SMA(closes, s.fast)
	slowSMA := indicator.SMA(closes, s.slow)

	meta := map[string]float64{
		"sma_fast": indicator.Last(fastSMA),
		"sma_slow": indicator.Last(slowSMA),
	}

	switch {
	case indicator.CrossedAbove(fastSMA, slowSMA):
		return models.Signal{
			Action:     models.ActionBuy,
			Confidence: 0.7,
			Reason:     fmt.Sprintf("golden cross SMA%d/%d", s.fast, s.slow),
			Metadata:   meta,
		}
	case indicator.CrossedBelow(fastSMA, slowSMA):
		return models.Signal{
			Action:     models.ActionSell,
			Confidence: 0.7,
			Reason:     fmt.Sprintf("dead cross SMA%d/%d", s.fast, s.slow),
			Metadata:   meta,
		}
	}
	return models.Signal{Action: models.ActionHold, Reason: "no cross", Metadata: meta}
}
