package agent

import (
	"context"
	"fmt"
	"strings"

	"turbo-umbrella/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const strategistSystemPrompt = `You are a crypto futures position strategist. You receive one symbol's market report, the portfolio weight assigned to it, the current position and account balances. Respond with a single JSON object, no prose, of the shape:
{"delta":<signed USDT notional to buy (positive) or sell (negative), 0 to hold>,"stop_loss":<price>,"take_profit":<price>,"confidence":"HIGH|MEDIUM|LOW","reasoning":"<one short paragraph>"}`

// Strategist proposes a signed notional adjustment for one symbol. Its output
// is advisory; the risk stage has final say on size and direction.
type Strategist struct {
	completer JSONCompleter
	tracer    trace.Tracer
}

func NewStrategist(completer JSONCompleter, tracer trace.Tracer) *Strategist {
	return &Strategist{completer: completer, tracer: tracer}
}

type strategistResponse struct {
	Delta      float64           `json:"delta"`
	StopLoss   float64           `json:"stop_loss"`
	TakeProfit float64           `json:"take_profit"`
	Confidence domain.Confidence `json:"confidence"`
	Reasoning  string            `json:"reasoning"`
}

// Suggest asks the model for a position adjustment given the cycle context.
func (s *Strategist) Suggest(
	ctx context.Context,
	report domain.MarketReport,
	weight float64,
	position *domain.Position,
	account domain.AccountSnapshot,
	price float64,
) (domain.StrategySuggestion, error) {
	ctx, span := s.tracer.Start(ctx, "agent.suggest")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", report.Symbol))

	prompt := buildStrategistPrompt(report, weight, position, account, price)

	var resp strategistResponse
	if err := s.completer.CompleteJSON(ctx, strategistSystemPrompt, prompt, &resp); err != nil {
		return domain.StrategySuggestion{}, fmt.Errorf("strategy for %s: %w", report.Symbol, err)
	}
	if !resp.Confidence.IsValid() {
		return domain.StrategySuggestion{}, fmt.Errorf("%w: strategy for %s: invalid confidence %q",
			domain.ErrLLMParse, report.Symbol, resp.Confidence)
	}

	return domain.StrategySuggestion{
		Symbol:     report.Symbol,
		Delta:      resp.Delta,
		StopLoss:   resp.StopLoss,
		TakeProfit: resp.TakeProfit,
		Confidence: resp.Confidence,
		Reasoning:  resp.Reasoning,
	}, nil
}

func buildStrategistPrompt(
	report domain.MarketReport,
	weight float64,
	position *domain.Position,
	account domain.AccountSnapshot,
	price float64,
) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", report.Symbol)
	fmt.Fprintf(&b, "Last price: %.6f\n", price)
	fmt.Fprintf(&b, "Portfolio weight this cycle: %.4f\n\n", weight)

	fmt.Fprintf(&b, "Market report: trend=%s strength=%s phase=%s confidence=%s\n",
		report.Trend, report.Strength, report.Phase, report.Confidence)
	fmt.Fprintf(&b, "Support=%.6f Resistance=%.6f\n", report.Support, report.Resistance)
	fmt.Fprintf(&b, "Analyst notes: %s\n\n", report.Analysis)

	if position == nil {
		b.WriteString("Current position: flat\n")
	} else {
		fmt.Fprintf(&b, "Current position: %s size=%.6f entry=%.6f unrealized PnL=%.4f\n",
			position.Side, position.Size, position.EntryPrice, position.UnrealizedPnL)
	}
	fmt.Fprintf(&b, "Account: wallet=%.2f USDT available=%.2f USDT\n",
		account.TotalWalletBalance, account.AvailableBalance)
	b.WriteString("\nRespond with the JSON object only.")
	return b.String()
}
