package agent

import (
	"context"
	"fmt"
	"strings"

	"turbo-umbrella/internal/domain"
	"turbo-umbrella/internal/ta"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// JSONCompleter runs a prompt pair and decodes the reply's JSON object.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, system, user string, out any) error
}

const analystSystemPrompt = `You are a crypto futures market analyst. You receive technical indicators for one symbol and respond with a single JSON object, no prose, of the shape:
{"trend":"bullish|bearish|neutral","strength":"strong|medium|weak","market_phase":"accumulation|markup|distribution|markdown","support":<number>,"resistance":<number>,"analysis":"<one short paragraph>","confidence":"HIGH|MEDIUM|LOW"}`

// Analyst turns a kline window into a market report via one LLM exchange.
type Analyst struct {
	completer JSONCompleter
	tracer    trace.Tracer
}

func NewAnalyst(completer JSONCompleter, tracer trace.Tracer) *Analyst {
	return &Analyst{completer: completer, tracer: tracer}
}

type analystResponse struct {
	Trend      domain.Trend       `json:"trend"`
	Strength   domain.Strength    `json:"strength"`
	Phase      domain.MarketPhase `json:"market_phase"`
	Support    float64            `json:"support"`
	Resistance float64            `json:"resistance"`
	Analysis   string             `json:"analysis"`
	Confidence domain.Confidence  `json:"confidence"`
}

// Analyze computes indicators from the kline window and asks the model for a
// structured read. The caller decides how to degrade when this fails; the
// analyst itself never fabricates a report.
func (a *Analyst) Analyze(ctx context.Context, symbol, interval string, klines []domain.Kline) (domain.MarketReport, error) {
	ctx, span := a.tracer.Start(ctx, "agent.analyze")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol))

	indicators, err := ta.Compute(klines)
	if err != nil {
		return domain.MarketReport{}, fmt.Errorf("indicators for %s: %w", symbol, err)
	}

	prompt := buildAnalystPrompt(symbol, interval, klines[len(klines)-1].Close, indicators)

	var resp analystResponse
	if err := a.completer.CompleteJSON(ctx, analystSystemPrompt, prompt, &resp); err != nil {
		return domain.MarketReport{}, fmt.Errorf("analysis for %s: %w", symbol, err)
	}
	if err := resp.validate(); err != nil {
		return domain.MarketReport{}, fmt.Errorf("%w: analysis for %s: %v", domain.ErrLLMParse, symbol, err)
	}

	return domain.MarketReport{
		Symbol:     symbol,
		Indicators: indicators,
		Trend:      resp.Trend,
		Strength:   resp.Strength,
		Phase:      resp.Phase,
		Support:    resp.Support,
		Resistance: resp.Resistance,
		Analysis:   resp.Analysis,
		Confidence: resp.Confidence,
	}, nil
}

func (r analystResponse) validate() error {
	if !r.Trend.IsValid() {
		return fmt.Errorf("invalid trend %q", r.Trend)
	}
	if !r.Strength.IsValid() {
		return fmt.Errorf("invalid strength %q", r.Strength)
	}
	if !r.Phase.IsValid() {
		return fmt.Errorf("invalid market phase %q", r.Phase)
	}
	if !r.Confidence.IsValid() {
		return fmt.Errorf("invalid confidence %q", r.Confidence)
	}
	return nil
}

func buildAnalystPrompt(symbol, interval string, price float64, ind domain.TechnicalIndicators) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s (%s candles)\n", symbol, interval)
	fmt.Fprintf(&b, "Last price: %.6f\n\n", price)
	fmt.Fprintf(&b, "SMA5=%.6f SMA20=%.6f SMA50=%.6f SMA100=%.6f\n",
		ind.SMA5, ind.SMA20, ind.SMA50, ind.SMA100)
	fmt.Fprintf(&b, "Price change %%: 1=%.3f 3=%.3f 6=%.3f 12=%.3f\n",
		ind.PriceChange1, ind.PriceChange3, ind.PriceChange6, ind.PriceChange12)
	fmt.Fprintf(&b, "ATR14=%.6f (%.3f%% of price)\n", ind.ATR14, ind.ATRPercent)
	fmt.Fprintf(&b, "Volume ratio vs 20-bar mean: %.3f\n", ind.VolumeRatio)
	b.WriteString("\nRespond with the JSON object only.")
	return b.String()
}
