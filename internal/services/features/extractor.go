package features

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"FusionTrader/internal/domain/models"
	"FusionTrader/internal/domain/repository"
)

// ATR returns the average true range proxy used for risk sizing:
// mean(high - low) over the last period bars.
func ATR(candles []models.Candle, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("atr period must be positive, got %d", period)
	}
	if len(candles) < period {
		return 0, fmt.Errorf("atr(%d) over %d bars: %w", period, len(candles), repository.ErrInsufficientData)
	}
	ranges := make([]float64, 0, period)
	for _, c := range candles[len(candles)-period:] {
		ranges = append(ranges, c.High-c.Low)
	}
	m, err := stats.Mean(ranges)
	if err != nil {
		return 0, fmt.Errorf("atr mean: %w", err)
	}
	return m, nil
}

// SwingRange returns the highest high and lowest low of the lookback bars
// preceding the newest bar.
func SwingRange(candles []models.Candle, lookback int) (high, low float64, err error) {
	if lookback <= 0 || len(candles) < lookback+1 {
		return 0, 0, fmt.Errorf("swing range(%d) over %d bars: %w", lookback, len(candles), repository.ErrInsufficientData)
	}
	window := candles[len(candles)-1-lookback : len(candles)-1]
	high, low = math.Inf(-1), math.Inf(1)
	for _, c := range window {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	return high, low, nil
}

// EMA returns the exponential moving average series seeded with the SMA of the
// first period values. out[0] corresponds to values[period-1].
func EMA(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	seed, _ := stats.Mean(values[:period])
	alpha := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	out = append(out, seed)
	prev := seed
	for _, v := range values[period:] {
		prev = alpha*v + (1-alpha)*prev
		out = append(out, prev)
	}
	return out
}

// RSI computes Wilder's relative strength index for the newest bar.
func RSI(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}
	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain, avgLoss := gain/float64(period), loss/float64(period)
	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50, true
		}
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}

// MACDResult holds the newest MACD line, signal line and the previous histogram
// value so callers can detect crosses.
type MACDResult struct {
	MACD     float64
	Signal   float64
	Hist     float64
	PrevHist float64
}

// MACD computes MACD(fast, slow, signal) for the newest bar.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, bool) {
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal {
		return MACDResult{}, false
	}
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	// align fast to slow: slowEMA[i] is closes[slow-1+i], fastEMA[j] is closes[fast-1+j]
	offset := slow - fast
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}
	sig := EMA(line, signal)
	if len(sig) < 2 {
		return MACDResult{}, false
	}
	n := len(line)
	m := len(sig)
	return MACDResult{
		MACD:     line[n-1],
		Signal:   sig[m-1],
		Hist:     line[n-1] - sig[m-1],
		PrevHist: line[n-2] - sig[m-2],
	}, true
}

// ComputeLogReturns computes log returns r_t = ln(C_t / C_{t-1}).
// It returns a slice of length len(candles)-1, or nil if insufficient data.
func ComputeLogReturns(candles []models.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev := candles[i-1].Close
		cur := candles[i].Close
		if prev <= 0 || cur <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(cur/prev))
	}
	return out
}

// RealizedVolatility computes annualized realized volatility over the last
// window returns using the provided number of bars per year.
func RealizedVolatility(logReturns []float64, window int, barsPerYear float64) float64 {
	if window <= 1 || len(logReturns) < window {
		return 0
	}
	variance, err := stats.SampleVariance(logReturns[len(logReturns)-window:])
	if err != nil || variance < 0 {
		return 0
	}
	return math.Sqrt(variance * barsPerYear)
}

// BarsPerYearForTF returns the approximate number of bars per year for a timeframe.
func BarsPerYearForTF(tf repository.Timeframe) float64 {
	d := tf.Duration()
	if d <= 0 {
		d = repository.DefaultTimeframe().Duration()
	}
	return float64(365*24*3600) / d.Seconds()
}
