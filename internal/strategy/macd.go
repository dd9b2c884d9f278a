package strategy

import (
	"fmt"
	"math"

	"upbit-quant-bot/internal/indicator"
	"upbit-quant-bot/internal/models"
)

// MACDTrend combines a MACD signal-line crossover with a long trend filter:
// BUY when the MACD line crosses above its signal line while price sits above
// the trend SMA and the histogram is positive. SELL on a cross below the
// signal line, or whenever price falls under the trend SMA while holding.
type MACDTrend struct {
	timeframe   models.Timeframe
	fast        int
	slow        int
	signal      int
	trendPeriod int
}

func NewMACDTrend(cfg models.StrategyConfig) *MACDTrend {
	return &MACDTrend{
		timeframe:   models.Timeframe(cfg.Timeframe),
		fast:        cfg.MACDFast,
		slow:        cfg.MACDSlow,
		signal:      cfg.MACDSignal,
		trendPeriod: cfg.TrendPeriod,
	}
}

func (s *MACDTrend) Name() string { return "macd_trend" }

func (s *MACDTrend) RequiredTimeframes() []models.Timeframe {
	return []models.Timeframe{s.timeframe}
}

func (s *MACDTrend) GenerateSignal(candles map[models.Timeframe][]models.Candle, state models.PositionState) models.Signal {
	series := candles[s.timeframe]
	if len(series) <= s.trendPeriod {
		return hold(fmt.Sprintf("need more than %d candles, have %d", s.trendPeriod, len(series)))
	}

	closes := Closes(series)
	macd, signalLine, hist := indicator.MACD(closes, s.fast, s.slow, s.signal)
	trendSMA := indicator.SMA(closes, s.trendPeriod)

	price := closes[len(closes)-1]
	trend := indicator.Last(trendSMA)
	lastHist := indicator.Last(hist)

	meta := map[string]float64{
		"macd":      indicator.Last(macd),
		"signal":    indicator.Last(signalLine),
		"histogram": lastHist,
		"trend_sma": trend,
	}

	if indicator.CrossedAbove(macd, signalLine) && !math.IsNaN(trend) && price > trend && lastHist > 0 {
		return models.Signal{
			Action:     models.ActionBuy,
			Confidence: 0.7,
			Reason:     "MACD crossed above signal in uptrend",
			Metadata:   meta,
		}
	}
	if indicator.CrossedBelow(macd, signalLine) {
		return models.Signal{
			Action:     models.ActionSell,
			Confidence: 0.7,
			Reason:     "MACD crossed below signal",
			Metadata:   meta,
		}
	}
	// The trend filter also closes positions: a price under the long SMA
	// means the uptrend premise is gone.
	if state == models.PositionLong && !math.IsNaN(trend) && price < trend {
		return models.Signal{
			Action:     models.ActionSell,
			Confidence: 0.6,
			Reason:     fmt.Sprintf("price below trend SMA%d", s.trendPeriod),
			Metadata:   meta,
		}
	}
	return models.Signal{Action: models.ActionHold, Reason: "no MACD signal", Metadata: meta}
}
