package allocator

import (
	"math"

	"turbo-umbrella/internal/domain"
)

const (
	// balancedFloor keeps marginal symbols in play under the balanced mode
	// instead of starving them entirely.
	balancedFloor = 0.05
	// conservativeCap limits concentration in any single symbol.
	conservativeCap = 0.4
)

// Allocator distributes portfolio weight across the configured symbols from
// their market report scores. Pure and deterministic; symbol order is the
// configured order and decides ties.
type Allocator struct {
	symbols []string
	mode    domain.AllocationMode
}

func New(symbols []string, mode domain.AllocationMode) *Allocator {
	return &Allocator{symbols: symbols, mode: mode}
}

// Allocate maps reports to weights. Weights are non-negative and sum to 1
// unless every score is zero, in which case all weights are zero and no
// capital is deployed this cycle.
func (a *Allocator) Allocate(reports map[string]domain.MarketReport) domain.PortfolioAllocation {
	scores := make([]float64, len(a.symbols))
	var total float64
	for i, sym := range a.symbols {
		if report, ok := reports[sym]; ok {
			scores[i] = report.Score()
		}
		total += scores[i]
	}

	weights := make(map[string]float64, len(a.symbols))
	if total == 0 {
		for _, sym := range a.symbols {
			weights[sym] = 0
		}
		return domain.PortfolioAllocation{Mode: a.mode, Weights: weights}
	}

	var out []float64
	switch a.mode {
	case domain.ModeAggressive:
		out = normalize(transform(scores, func(s float64) float64 { return s * s }))
	case domain.ModeConservative:
		out = capped(normalize(transform(scores, math.Sqrt)), conservativeCap)
	default:
		out = floored(normalize(scores), balancedFloor)
	}

	for i, sym := range a.symbols {
		weights[sym] = out[i]
	}
	return domain.PortfolioAllocation{Mode: a.mode, Weights: weights}
}

func transform(scores []float64, f func(float64) float64) []float64 {
	out := make([]float64, len(scores))
	for i, s := range scores {
		if s > 0 {
			out[i] = f(s)
		}
	}
	return out
}

func normalize(scores []float64) []float64 {
	var total float64
	for _, s := range scores {
		total += s
	}
	out := make([]float64, len(scores))
	if total == 0 {
		return out
	}
	for i, s := range scores {
		out[i] = s / total
	}
	return out
}

// floored raises each nonzero weight to at least floor, then renormalizes.
// Zero-score symbols stay at exactly zero.
func floored(weights []float64, floor float64) []float64 {
	out := make([]float64, len(weights))
	for i, w := range weights {
		if w > 0 && w < floor {
			out[i] = floor
		} else {
			out[i] = w
		}
	}
	return normalize(out)
}

// capped limits each weight to cap, redistributing the excess among the
// uncapped symbols proportionally. When every nonzero symbol would exceed the
// cap, the cap is infeasible and the weights fall back to an even split.
func capped(weights []float64, limit float64) []float64 {
	n := 0
	for _, w := range weights {
		if w > 0 {
			n++
		}
	}
	if n == 0 {
		return weights
	}
	if limit*float64(n) < 1 {
		out := make([]float64, len(weights))
		for i, w := range weights {
			if w > 0 {
				out[i] = 1 / float64(n)
			}
		}
		return out
	}

	out := make([]float64, len(weights))
	copy(out, weights)
	// Each pass pins the overweight symbols at the cap and renormalizes the
	// rest over the remaining mass. Terminates because pinned symbols never
	// come back.
	pinned := make([]bool, len(weights))
	for {
		excess := 0.0
		free := 0.0
		for i, w := range out {
			if pinned[i] {
				continue
			}
			if w > limit {
				excess += w - limit
				out[i] = limit
				pinned[i] = true
			} else {
				free += w
			}
		}
		if excess == 0 {
			return out
		}
		if free == 0 {
			// Everything pinned; weights already sum to at most 1 by the
			// feasibility check above.
			return out
		}
		for i, w := range out {
			if !pinned[i] && w > 0 {
				out[i] = w + excess*(w/free)
			}
		}
	}
}
