package engine

import (
	"context"
	"fmt"
	"time"

	"turbo-umbrella/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OrderGateway places orders on the venue. Implemented by the exchange client.
type OrderGateway interface {
	PlaceMarketOrder(ctx context.Context, symbol, side string, positionSide domain.PositionSide, quantity float64) (domain.OrderAck, error)
}

// Executor drives positions through the transition table. A reversal is two
// venue orders executed in sequence; the venue has no atomic flip, so a
// failure between the legs surfaces as a partial execution.
type Executor struct {
	gateway OrderGateway
	tracer  trace.Tracer
	now     func() time.Time
}

func NewExecutor(gateway OrderGateway, tracer trace.Tracer) *Executor {
	return &Executor{gateway: gateway, tracer: tracer, now: time.Now}
}

// Plan maps the current position state and signal to the ordered venue
// actions. The table is total: every state/signal pair has a defined outcome
// and anything not explicitly a transition is Hold. A signal in the direction
// of an existing position never adds to it.
func Plan(position *domain.Position, signal domain.Signal) []domain.TradeAction {
	if signal == domain.SignalHold {
		return []domain.TradeAction{domain.ActionHold}
	}
	if position == nil {
		if signal == domain.SignalBuy {
			return []domain.TradeAction{domain.ActionOpenLong}
		}
		return []domain.TradeAction{domain.ActionOpenShort}
	}
	switch {
	case position.Side == domain.SideLong && signal == domain.SignalSell:
		return []domain.TradeAction{domain.ActionCloseLong, domain.ActionOpenShort}
	case position.Side == domain.SideShort && signal == domain.SignalBuy:
		return []domain.TradeAction{domain.ActionCloseShort, domain.ActionOpenLong}
	}
	return []domain.TradeAction{domain.ActionHold}
}

// Execute carries out the planned transition for one symbol. quantity sizes
// the opening leg; closing legs always use the full position size. On a
// partial execution the returned results cover the completed legs and the
// error identifies the failed one.
func (e *Executor) Execute(
	ctx context.Context,
	decision domain.TradingDecision,
	quantity float64,
	position *domain.Position,
	price float64,
) ([]domain.TradeResult, error) {
	ctx, span := e.tracer.Start(ctx, "engine.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("symbol", decision.Symbol),
		attribute.String("signal", string(decision.Signal)),
	)

	actions := Plan(position, decision.Signal)
	span.SetAttributes(attribute.Int("legs", len(actions)))

	results := make([]domain.TradeResult, 0, len(actions))
	for i, action := range actions {
		result, err := e.executeLeg(ctx, decision, action, quantity, position, price)
		if err != nil {
			if i == 0 {
				// Nothing changed on the venue; the error propagates as-is.
				return nil, err
			}
			return results, &domain.PartialExecutionError{
				Symbol:    decision.Symbol,
				Completed: actions[i-1],
				Failed:    action,
				Err:       err,
			}
		}
		results = append(results, result)
	}
	return results, nil
}

func (e *Executor) executeLeg(
	ctx context.Context,
	decision domain.TradingDecision,
	action domain.TradeAction,
	quantity float64,
	position *domain.Position,
	price float64,
) (domain.TradeResult, error) {
	result := domain.TradeResult{
		Symbol:    decision.Symbol,
		Action:    action,
		Price:     price,
		Timestamp: e.now().UnixMilli(),
		Reason:    decision.Reason,
	}

	if action == domain.ActionHold {
		return result, nil
	}

	side, positionSide, closing := legParams(action)
	qty := quantity
	if closing {
		if position == nil {
			return domain.TradeResult{}, fmt.Errorf("close %s with no open position", decision.Symbol)
		}
		qty = position.Size
	}

	ack, err := e.gateway.PlaceMarketOrder(ctx, decision.Symbol, side, positionSide, qty)
	if err != nil {
		return domain.TradeResult{}, fmt.Errorf("%s %s: %w", action, decision.Symbol, err)
	}

	result.Quantity = qty
	result.OrderDetails = fmt.Sprintf("order %d %s", ack.OrderID, ack.Status)
	if closing {
		pnl := (price - position.EntryPrice) * position.Size * position.Side.Sign()
		result.RealizedPnL = &pnl
	}
	return result, nil
}

// legParams maps an action to the venue order parameters. In hedge mode a
// close is the opposite order on the same position side.
func legParams(action domain.TradeAction) (side string, positionSide domain.PositionSide, closing bool) {
	switch action {
	case domain.ActionOpenLong:
		return "BUY", domain.SideLong, false
	case domain.ActionCloseLong:
		return "SELL", domain.SideLong, true
	case domain.ActionOpenShort:
		return "SELL", domain.SideShort, false
	default: // ActionCloseShort
		return "BUY", domain.SideShort, true
	}
}
