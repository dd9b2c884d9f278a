package strategy

import (
	"fmt"
	"math"

	"upbit-quant-bot/internal/indicator"
	"upbit-quant-bot/internal/models"
)

// GoldCrossRSI is the SMA cross strategy with an RSI filter layered on top: a
// golden cross only buys when RSI is at or below the buy threshold (skip
// chasing an already-overbought market), and a dead cross only sells when RSI
// is at or above the sell threshold (ride out shallow pullbacks).
type GoldCrossRSI struct {
	timeframe models.Timeframe
	fast      int
	slow      int
	rsiPeriod int
	rsiBuy    float64
	rsiSell   float64
}

func NewGoldCrossRSI(cfg models.StrategyConfig) *GoldCrossRSI {
	return &GoldCrossRSI{
		timeframe: models.Timeframe(cfg.Timeframe),
		fast:      cfg.FastPeriod,
		slow:      cfg.SlowPeriod,
		rsiPeriod: cfg.RSIPeriod,
		rsiBuy:    cfg.RSIBuyThreshold,
		rsiSell:   cfg.RSISellThreshold,
	}
}

func (s *GoldCrossRSI) Name() string { return "goldcross_rsi" }

func (s *GoldCrossRSI) RequiredTimeframes() []models.Timeframe {
	return []models.Timeframe{s.timeframe}
}

func (s *GoldCrossRSI) GenerateSignal(candles map[models.Timeframe][]models.Candle, state models.PositionState) models.Signal {
	series := candles[s.timeframe]
	min := s.slow
	if s.rsiPeriod > min {
		min = s.rsiPeriod
	}
	if len(series) <= min {
		return hold(fmt.Sprintf("need more than %d candles, have %d", min, len(series)))
	}

	closes := Closes(series)
	fastSMA := indicator.SMA(closes, s.fast)
	slowSMA := indicator.SMA(closes, s.slow)
	rsi := indicator.Last(indicator.RSI(closes, s.rsiPeriod))

	meta := map[string]float64{
		"sma_fast": indicator.Last(fastSMA),
		"sma_slow": indicator.Last(slowSMA),
		"rsi":      rsi,
	}

	if math.IsNaN(rsi) {
		return models.Signal{Action: models.ActionHold, Reason: "RSI not yet defined", Metadata: meta}
	}

	switch {
	case indicator.CrossedAbove(fastSMA, slowSMA):
		if rsi > s.rsiBuy {
			return models.Signal{
				Action:   models.ActionHold,
				Reason:   fmt.Sprintf("golden cross skipped, RSI %.1f above %.1f", rsi, s.rsiBuy),
				Metadata: meta,
			}
		}
		return models.Signal{
			Action:     models.ActionBuy,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("golden cross with RSI %.1f <= %.1f", rsi, s.rsiBuy),
			Metadata:   meta,
		}
	case indicator.CrossedBelow(fastSMA, slowSMA):
		if rsi < s.rsiSell {
			return models.Signal{
				Action:   models.ActionHold,
				Reason:   fmt.Sprintf("dead cross skipped, RSI %.1f below %.1f", rsi, s.rsiSell),
				Metadata: meta,
			}
		}
		return models.Signal{
			Action:     models.ActionSell,
			Confidence: 0.8,
			Reason:     fmt.Sprintf("dead cross with RSI %.1f >= %.1f", rsi, s.rsiSell),
			Metadata:   meta,
		}
	}
	return models.Signal{Action: models.ActionHold, Reason: "no cross", Metadata: meta}
}
