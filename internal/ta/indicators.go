package ta

import (
	"fmt"
	"math"

	"why-did-it-move/internal/domain"
)

// Config carries the tunable windows and thresholds for the indicator engine.
// The cutoffs are policy values, not physical laws.
type Config struct {
	ShortWindow       int     // simple moving average, short (bars)
	LongWindow        int     // simple moving average, long (bars)
	OscPeriod         int     // momentum oscillator period
	StrongTrendPct    float64 // cumulative move for Strong Up/Downtrend
	TrendPct          float64 // cumulative move for Up/Downtrend
	HighVolatilityPct float64 // max daily move that flips a small cumulative change to Mixed/Volatile
}

func DefaultConfig() Config {
	return Config{
		ShortWindow:       20,
		LongWindow:        50,
		OscPeriod:         14,
		StrongTrendPct:    10.0,
		TrendPct:          3.0,
		HighVolatilityPct: 5.0,
	}
}

// SMA returns the arithmetic mean of the last n values. ok is false when
// fewer than n values exist; the average is never extrapolated.
func SMA(values []float64, n int) (float64, bool) {
	if n <= 0 || len(values) < n {
		return 0, false
	}
	var sum float64
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n), true
}

// Oscillator computes an RSI-style momentum oscillator over the last period
// deltas using Wilder exponential smoothing. Undefined (ok=false) with fewer
// than period+1 closes. Saturates at 100 when the average loss is zero.
func Oscillator(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := math.Max(delta, 0)
		loss := math.Max(-delta, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	return oscFromAvg(avgGain, avgLoss), true
}

func oscFromAvg(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// VolumeRatio divides the last bar's volume by the trailing average over the
// window preceding it. Undefined while the trailing window is incomplete or
// the trailing average is zero.
func VolumeRatio(volumes []int64, window int) (float64, bool) {
	if window <= 0 || len(volumes) < window+1 {
		return 0, false
	}
	trailing := volumes[len(volumes)-window-1 : len(volumes)-1]
	var sum float64
	for _, v := range trailing {
		sum += float64(v)
	}
	avg := sum / float64(window)
	if avg == 0 {
		return 0, false
	}
	return float64(volumes[len(volumes)-1]) / avg, true
}

// Compute derives the full indicator set for the last bar of the sequence.
// Indicators without enough history are left nil and the partial set is
// returned together with ErrInsufficientHistory; callers decide whether a
// partial set is acceptable.
func Compute(bars []domain.PriceBar, cfg Config) (domain.IndicatorSet, error) {
	set := domain.IndicatorSet{Pattern: ClassifyPattern(bars, cfg)}
	if len(bars) == 0 {
		return set, fmt.Errorf("compute indicators: %w", domain.ErrInsufficientHistory)
	}

	closes := make([]float64, len(bars))
	volumes := make([]int64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
		volumes[i] = b.Volume
	}

	complete := true
	if v, ok := SMA(closes, cfg.ShortWindow); ok {
		set.MAShort = &v
	} else {
		complete = false
	}
	if v, ok := SMA(closes, cfg.LongWindow); ok {
		set.MALong = &v
	} else {
		complete = false
	}
	if v, ok := Oscillator(closes, cfg.OscPeriod); ok {
		set.Oscillator = &v
	} else {
		complete = false
	}
	if v, ok := VolumeRatio(volumes, cfg.ShortWindow); ok {
		set.VolumeRatio = &v
	} else {
		complete = false
	}

	if !complete {
		return set, fmt.Errorf("compute indicators: %w", domain.ErrInsufficientHistory)
	}
	return set, nil
}
