package agent

import (
	"fmt"
	"math"

	"turbo-umbrella/internal/domain"
)

// RiskManager is the deterministic gate between strategy and execution. It
// never consults a model; identical inputs always produce identical verdicts.
type RiskManager struct {
	// Notional bounds in USDT for a single order.
	MinTradeAmount float64
	MaxTradeAmount float64
	// MaxPosition caps the projected same-side notional per symbol.
	MaxPosition float64
	// MaxExposureFraction caps one order against available balance.
	MaxExposureFraction float64
}

func NewRiskManager(minTrade, maxTrade, maxPosition, maxExposureFraction float64) *RiskManager {
	return &RiskManager{
		MinTradeAmount:      minTrade,
		MaxTradeAmount:      maxTrade,
		MaxPosition:         maxPosition,
		MaxExposureFraction: maxExposureFraction,
	}
}

// Assess turns a strategy suggestion into a final decision and an approved
// order size. A rejection degrades the decision to Hold with the reason
// recorded; it never propagates as an error.
func (r *RiskManager) Assess(
	suggestion domain.StrategySuggestion,
	position *domain.Position,
	account domain.AccountSnapshot,
	price float64,
	constraints domain.SymbolConstraints,
) (domain.RiskAssessment, domain.TradingDecision) {
	symbol := suggestion.Symbol

	hold := func(reason string) (domain.RiskAssessment, domain.TradingDecision) {
		return domain.RiskAssessment{Symbol: symbol, Approved: false, Reason: reason},
			domain.TradingDecision{
				Symbol:     symbol,
				Signal:     domain.SignalHold,
				Reason:     reason,
				Confidence: suggestion.Confidence,
			}
	}

	if suggestion.Delta == 0 {
		return hold("no position change suggested")
	}
	if price <= 0 {
		return hold("no valid price for sizing")
	}

	signal := domain.SignalBuy
	if suggestion.Delta < 0 {
		signal = domain.SignalSell
	}

	// Clamp the requested notional into the configured band.
	notional := math.Abs(suggestion.Delta)
	if notional < r.MinTradeAmount {
		notional = r.MinTradeAmount
	}
	if notional > r.MaxTradeAmount {
		notional = r.MaxTradeAmount
	}

	// The per-symbol cap applies to the projected same-side exposure. An
	// order against the current side closes first, so the existing notional
	// does not count toward it.
	projected := notional
	if position != nil && sameDirection(position.Side, signal) {
		projected += position.Size * price
	}
	if r.MaxPosition > 0 && projected > r.MaxPosition {
		return hold(fmt.Sprintf("projected position %.2f USDT exceeds cap %.2f", projected, r.MaxPosition))
	}

	if r.MaxExposureFraction > 0 && notional > account.AvailableBalance*r.MaxExposureFraction {
		return hold(fmt.Sprintf("order %.2f USDT exceeds %.0f%% of available balance %.2f",
			notional, r.MaxExposureFraction*100, account.AvailableBalance))
	}

	quantity := constraints.QuantizeDown(notional / price)
	if constraints.MinQty > 0 && quantity < constraints.MinQty {
		return hold(fmt.Sprintf("quantity %.8f below exchange minimum %.8f", quantity, constraints.MinQty))
	}
	if constraints.MaxQty > 0 && quantity > constraints.MaxQty {
		quantity = constraints.QuantizeDown(constraints.MaxQty)
	}
	if constraints.MinNotional > 0 && quantity*price < constraints.MinNotional {
		return hold(fmt.Sprintf("notional %.2f below exchange minimum %.2f", quantity*price, constraints.MinNotional))
	}

	reason := fmt.Sprintf("approved %.8f at %.6f (%s)", quantity, price, suggestion.Reasoning)
	return domain.RiskAssessment{
			Symbol:           symbol,
			ApprovedQuantity: quantity,
			Approved:         true,
			Reason:           reason,
		}, domain.TradingDecision{
			Symbol:     symbol,
			Signal:     signal,
			Reason:     reason,
			Confidence: suggestion.Confidence,
		}
}

func sameDirection(side domain.PositionSide, signal domain.Signal) bool {
	return (side == domain.SideLong && signal == domain.SignalBuy) ||
		(side == domain.SideShort && signal == domain.SignalSell)
}
