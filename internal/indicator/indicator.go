// Package indicator computes the moving-average family of features the
// strategies consume. All functions return slices aligned to their input, with
// NaN filling the warmup positions where the indicator is not yet defined.
package indicator

import "math"

// SMA computes a simple moving average over the given period.
func SMA(values []float64, period int) []float64 {
	out := warmup(len(values))
	if period <= 0 || period > len(values) {
		return out
	}

	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes an exponential moving average with smoothing 2/(period+1),
// seeded from the first value (pandas ewm(adjust=False) behavior).
func EMA(values []float64, period int) []float64 {
	out := warmup(len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}

	alpha := 2.0 / float64(period+1)
	ema := values[0]
	out[0] = ema
	for i := 1; i < len(values); i++ {
		ema = values[i]*alpha + ema*(1-alpha)
		out[i] = ema
	}
	return out
}

// RSI computes the relative strength index from simple rolling means of gains
// and losses over the period. Values range 0..100; a period with no losses
// yields 100.
func RSI(values []float64, period int) []float64 {
	out := warmup(len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	var gainSum, lossSum float64
	for i := 1; i < len(values); i++ {
		gainSum += gains[i]
		lossSum += losses[i]
		if i > period {
			gainSum -= gains[i-period]
			lossSum -= losses[i-period]
		}
		if i >= period {
			if lossSum == 0 {
				out[i] = 100
				continue
			}
			rs := gainSum / lossSum
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// MACD computes the MACD line (fast EMA - slow EMA), its signal line and the
// histogram (macd - signal).
func MACD(values []float64, fast, slow, signal int) (macd, signalLine, histogram []float64) {
	fastEMA := EMA(values, fast)
	slowEMA := EMA(values, slow)

	macd = make([]float64, len(values))
	for i := range values {
		macd[i] = fastEMA[i] - slowEMA[i]
	}
	signalLine = EMA(macd, signal)

	histogram = make([]float64, len(values))
	for i := range values {
		histogram[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, histogram
}

// Momentum computes the fractional return against the value lookback periods
// earlier: (v[i] - v[i-lookback]) / v[i-lookback].
func Momentum(values []float64, lookback int) []float64 {
	out := warmup(len(values))
	if lookback <= 0 {
		return out
	}
	for i := lookback; i < len(values); i++ {
		prev := values[i-lookback]
		if prev != 0 {
			out[i] = (values[i] - prev) / prev
		}
	}
	return out
}

// CrossedAbove reports whether a crossed above b on the last step: a was at or
// below b on the previous value and is strictly above it now. NaN warmup
// values never signal a cross.
func CrossedAbove(a, b []float64) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	if anyNaN(a[n-2], a[n-1], b[n-2], b[n-1]) {
		return false
	}
	return a[n-2] <= b[n-2] && a[n-1] > b[n-1]
}

// CrossedBelow reports whether a crossed below b on the last step.
func CrossedBelow(a, b []float64) bool {
	n := len(a)
	if n < 2 || len(b) != n {
		return false
	}
	if anyNaN(a[n-2], a[n-1], b[n-2], b[n-1]) {
		return false
	}
	return a[n-2] >= b[n-2] && a[n-1] < b[n-1]
}

// Last returns the final value of the series, or NaN when empty.
func Last(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}

func warmup(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
