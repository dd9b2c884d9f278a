package backtest

import (
	"math"
	"time"

	"upbit-quant-bot/internal/models"

	"github.com/shopspring/decimal"
)

// EquityPoint is one step of the equity curve: portfolio value (cash plus
// holdings at the step's price) after processing the step.
type EquityPoint struct {
	Timestamp time.Time
	Value     decimal.Decimal
	Price     float64
}

// Metrics are the performance numbers derived from one backtest run.
// MaxDrawdown is a non-positive fraction (-0.25 is a 25% drawdown); returns
// are fractions as well.
type Metrics struct {
	TotalReturn   float64
	BuyHoldReturn float64
	MaxDrawdown   float64
	SharpeRatio   float64
	WinRate       float64
	RoundTrips    int
	Wins          int
}

// computeMetrics derives metrics from the equity curve and trade list.
// Total return is measured against the starting balance, not the first curve
// point: the first point already carries the opening trade's commission.
// periodsPerYear annualizes the Sharpe ratio: 365 for daily candles,
// proportionally more for intraday ones.
func computeMetrics(initialBalance decimal.Decimal, curve []EquityPoint, trades []models.TradeRecord, riskFreeRate, periodsPerYear float64) Metrics {
	var m Metrics
	if len(curve) == 0 {
		return m
	}

	first := curve[0]
	last := curve[len(curve)-1]

	initial, _ := initialBalance.Float64()
	final, _ := last.Value.Float64()
	if initial != 0 {
		m.TotalReturn = final/initial - 1
	}
	if first.Price != 0 {
		m.BuyHoldReturn = last.Price/first.Price - 1
	}

	m.MaxDrawdown = maxDrawdown(curve)
	m.SharpeRatio = sharpeRatio(curve, riskFreeRate, periodsPerYear)
	m.RoundTrips, m.Wins = roundTrips(trades)
	if m.RoundTrips > 0 {
		m.WinRate = float64(m.Wins) / float64(m.RoundTrips)
	}
	return m
}

// maxDrawdown returns the worst (value - peak) / peak over the curve.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	peak, _ := curve[0].Value.Float64()
	worst := 0.0
	for _, p := range curve[1:] {
		v, _ := p.Value.Float64()
		if v > peak {
			peak = v
			continue
		}
		if peak > 0 {
			if dd := (v - peak) / peak; dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpeRatio computes mean excess per-step return over its sample standard
// deviation, annualized by sqrt(periodsPerYear). Zero variance reports 0.
func sharpeRatio(curve []EquityPoint, riskFreeRate, periodsPerYear float64) float64 {
	if len(curve) < 3 || periodsPerYear <= 0 {
		return 0
	}

	stepRiskFree := riskFreeRate / periodsPerYear
	excess := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Value.Float64()
		cur, _ := curve[i].Value.Float64()
		if prev == 0 {
			continue
		}
		excess = append(excess, cur/prev-1-stepRiskFree)
	}
	if len(excess) < 2 {
		return 0
	}

	var sum float64
	for _, r := range excess {
		sum += r
	}
	mean := sum / float64(len(excess))

	var sq float64
	for _, r := range excess {
		sq += (r - mean) * (r - mean)
	}
	stdev := math.Sqrt(sq / float64(len(excess)-1))
	if stdev == 0 {
		return 0
	}
	return mean / stdev * math.Sqrt(periodsPerYear)
}

// roundTrips pairs buys with the sell that closes them and counts how many
// completed trips came out ahead: sell proceeds above the accumulated buy
// cost. An open position at the end is not a completed trip.
func roundTrips(trades []models.TradeRecord) (trips, wins int) {
	cost := decimal.Zero
	open := false
	for _, t := range trades {
		switch t.Type {
		case models.Buy:
			cost = cost.Add(t.Amount)
			open = true
		case models.Sell:
			if !open {
				continue
			}
			trips++
			if t.Amount.GreaterThan(cost) {
				wins++
			}
			cost = decimal.Zero
			open = false
		}
	}
	return trips, wins
}
