package ta

import (
	"errors"
	"math"
	"testing"

	"turbo-umbrella/internal/domain"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func flatKlines(n int, price, volume float64) []domain.Kline {
	klines := make([]domain.Kline, n)
	for i := range klines {
		klines[i] = domain.Kline{
			OpenTime: int64(i) * 60_000,
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
			Volume:   volume,
		}
	}
	return klines
}

func TestComputeInsufficientData(t *testing.T) {
	t.Parallel()

	_, err := Compute(flatKlines(RequiredLookback-1, 100, 10))
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestComputeFlatSeries(t *testing.T) {
	t.Parallel()

	ind, err := Compute(flatKlines(RequiredLookback, 250, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for name, got := range map[string]float64{
		"SMA5":   ind.SMA5,
		"SMA20":  ind.SMA20,
		"SMA50":  ind.SMA50,
		"SMA100": ind.SMA100,
	} {
		if !almostEqual(got, 250) {
			t.Errorf("%s = %v, want 250", name, got)
		}
	}
	for name, got := range map[string]float64{
		"PriceChange1":  ind.PriceChange1,
		"PriceChange3":  ind.PriceChange3,
		"PriceChange6":  ind.PriceChange6,
		"PriceChange12": ind.PriceChange12,
		"ATR14":         ind.ATR14,
		"ATRPercent":    ind.ATRPercent,
	} {
		if !almostEqual(got, 0) {
			t.Errorf("%s = %v, want 0", name, got)
		}
	}
	if !almostEqual(ind.VolumeRatio, 1.0) {
		t.Errorf("VolumeRatio = %v, want 1.0", ind.VolumeRatio)
	}
}

func TestComputeLinearRamp(t *testing.T) {
	t.Parallel()

	// Closes 1..100, constant volume.
	klines := make([]domain.Kline, RequiredLookback)
	for i := range klines {
		c := float64(i + 1)
		klines[i] = domain.Kline{High: c, Low: c, Close: c, Volume: 5}
	}

	ind, err := Compute(klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Mean of last 5 closes (96..100) is 98.
	if !almostEqual(ind.SMA5, 98) {
		t.Errorf("SMA5 = %v, want 98", ind.SMA5)
	}
	if !almostEqual(ind.SMA100, 50.5) {
		t.Errorf("SMA100 = %v, want 50.5", ind.SMA100)
	}
	// 100 vs 99 one bar back.
	want := (100.0 - 99.0) / 99.0 * 100
	if !almostEqual(ind.PriceChange1, want) {
		t.Errorf("PriceChange1 = %v, want %v", ind.PriceChange1, want)
	}
	want = (100.0 - 88.0) / 88.0 * 100
	if !almostEqual(ind.PriceChange12, want) {
		t.Errorf("PriceChange12 = %v, want %v", ind.PriceChange12, want)
	}
	// Each bar has zero range but gaps 1 from the previous close, so every
	// true range is 1.
	if !almostEqual(ind.ATR14, 1) {
		t.Errorf("ATR14 = %v, want 1", ind.ATR14)
	}
	if !almostEqual(ind.ATRPercent, 1.0/100*100) {
		t.Errorf("ATRPercent = %v, want 1", ind.ATRPercent)
	}
}

func TestComputeVolumeRatio(t *testing.T) {
	t.Parallel()

	klines := flatKlines(RequiredLookback, 100, 10)
	// Latest bar spikes to triple the rolling mean of the prior 20 bars.
	klines[len(klines)-1].Volume = 30

	ind, err := Compute(klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(ind.VolumeRatio, 3.0) {
		t.Errorf("VolumeRatio = %v, want 3.0", ind.VolumeRatio)
	}
}

func TestComputeZeroVolumeWindow(t *testing.T) {
	t.Parallel()

	klines := flatKlines(RequiredLookback, 100, 0)
	klines[len(klines)-1].Volume = 42

	ind, err := Compute(klines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(ind.VolumeRatio, 1.0) {
		t.Errorf("VolumeRatio = %v, want neutral 1.0", ind.VolumeRatio)
	}
}
