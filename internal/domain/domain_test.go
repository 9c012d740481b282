package domain

import (
	"errors"
	"testing"
)

func TestPositionSideSign(t *testing.T) {
	t.Parallel()

	if SideLong.Sign() != 1 {
		t.Fatalf("long sign = %v, want 1", SideLong.Sign())
	}
	if SideShort.Sign() != -1 {
		t.Fatalf("short sign = %v, want -1", SideShort.Sign())
	}
}

func TestReportScore(t *testing.T) {
	t.Parallel()

	r := MarketReport{Confidence: ConfidenceHigh, Strength: StrengthStrong}
	if got := r.Score(); got != 1.0 {
		t.Fatalf("score = %v, want 1.0", got)
	}

	r.Unavailable = true
	if got := r.Score(); got != 0 {
		t.Fatalf("unavailable score = %v, want 0", got)
	}
}

func TestQuantizeDown(t *testing.T) {
	t.Parallel()

	c := SymbolConstraints{StepSize: 0.001}
	if got := c.QuantizeDown(0.0019); got != 0.001 {
		t.Fatalf("quantize = %v, want 0.001", got)
	}
	if got := (SymbolConstraints{}).QuantizeDown(0.0019); got != 0.0019 {
		t.Fatalf("zero step should be identity, got %v", got)
	}
}

func TestPartialExecutionErrorUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("boom")
	err := &PartialExecutionError{Symbol: "BTCUSDT", Completed: ActionCloseShort, Failed: ActionOpenLong, Err: inner}
	if !errors.Is(err, inner) {
		t.Fatal("expected Unwrap to expose inner error")
	}
}
