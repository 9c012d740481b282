package ta

import (
	"fmt"
	"math"

	"turbo-umbrella/internal/domain"
)

// RequiredLookback is the longest window any indicator needs. Compute refuses
// shorter inputs rather than silently degrading.
const RequiredLookback = 100

const (
	atrPeriod    = 14
	volumeWindow = 20
)

// Compute derives a full indicator snapshot from a kline window ordered
// oldest to newest. Pure and deterministic; no I/O.
func Compute(klines []domain.Kline) (domain.TechnicalIndicators, error) {
	if len(klines) < RequiredLookback {
		return domain.TechnicalIndicators{}, fmt.Errorf("%w: have %d, need %d",
			domain.ErrInsufficientData, len(klines), RequiredLookback)
	}

	closes := make([]float64, len(klines))
	volumes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		volumes[i] = k.Volume
	}

	latest := closes[len(closes)-1]
	atr := averageTrueRange(klines, atrPeriod)
	atrPct := 0.0
	if latest != 0 {
		atrPct = atr / latest * 100
	}

	return domain.TechnicalIndicators{
		SMA5:          sma(closes, 5),
		SMA20:         sma(closes, 20),
		SMA50:         sma(closes, 50),
		SMA100:        sma(closes, 100),
		PriceChange1:  pctChange(closes, 1),
		PriceChange3:  pctChange(closes, 3),
		PriceChange6:  pctChange(closes, 6),
		PriceChange12: pctChange(closes, 12),
		ATR14:         atr,
		ATRPercent:    atrPct,
		VolumeRatio:   volumeRatio(volumes, volumeWindow),
	}, nil
}

// sma is the unweighted mean of the last n values.
func sma(values []float64, n int) float64 {
	window := values[len(values)-n:]
	var sum float64
	for _, v := range window {
		sum += v
	}
	return sum / float64(n)
}

// pctChange is the percentage move of the latest value over the value n
// periods back.
func pctChange(values []float64, n int) float64 {
	last := values[len(values)-1]
	prev := values[len(values)-1-n]
	if math.Abs(prev) < math.SmallestNonzeroFloat64 {
		return 0
	}
	return (last - prev) / prev * 100
}

// averageTrueRange is the simple mean of Wilder's true range over the last
// period bars: TR = max(high-low, |high-prevClose|, |low-prevClose|).
func averageTrueRange(klines []domain.Kline, period int) float64 {
	var sum float64
	start := len(klines) - period
	for i := start; i < len(klines); i++ {
		k := klines[i]
		prevClose := klines[i-1].Close
		tr := math.Max(k.High-k.Low,
			math.Max(math.Abs(k.High-prevClose), math.Abs(k.Low-prevClose)))
		sum += tr
	}
	return sum / float64(period)
}

// volumeRatio compares the latest volume to the mean over the preceding
// window, excluding the latest bar. A zero mean yields the neutral sentinel
// 1.0 instead of propagating Inf/NaN.
func volumeRatio(volumes []float64, window int) float64 {
	latest := volumes[len(volumes)-1]
	prior := volumes[len(volumes)-1-window : len(volumes)-1]

	var sum float64
	for _, v := range prior {
		sum += v
	}
	mean := sum / float64(window)
	if mean == 0 {
		return 1.0
	}
	return latest / mean
}
