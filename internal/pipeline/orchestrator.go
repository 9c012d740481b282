// Package pipeline runs the trading cycle: parallel market analysis, a single
// portfolio allocation, then strictly sequential per-symbol strategy, risk and
// execution. Symbols never execute concurrently; the venue sees at most one
// order stream at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"turbo-umbrella/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MarketData provides klines and prices for the cycle and keeps the latest
// analyst report available to the operator surfaces.
type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)
	Price(ctx context.Context, symbol string) (float64, error)
	StoreReport(ctx context.Context, report domain.MarketReport) error
}

// ExchangeState reads account and position state from the venue. The venue is
// the source of truth; local position state is rebuilt every cycle.
type ExchangeState interface {
	FetchPosition(ctx context.Context, symbol string) (*domain.Position, error)
	FetchAccount(ctx context.Context) (domain.AccountSnapshot, error)
	FetchSymbolConstraints(ctx context.Context, symbol string) (domain.SymbolConstraints, error)
}

// AnalysisStage produces one market report per symbol.
type AnalysisStage interface {
	Analyze(ctx context.Context, symbol, interval string, klines []domain.Kline) (domain.MarketReport, error)
}

// PortfolioAllocator maps the cycle's reports to fund weights.
type PortfolioAllocator interface {
	Allocate(reports map[string]domain.MarketReport) domain.PortfolioAllocation
}

// StrategyStage proposes a position adjustment for one symbol.
type StrategyStage interface {
	Suggest(ctx context.Context, report domain.MarketReport, weight float64, position *domain.Position, account domain.AccountSnapshot, price float64) (domain.StrategySuggestion, error)
}

// RiskStage turns a suggestion into a final decision and order size.
type RiskStage interface {
	Assess(suggestion domain.StrategySuggestion, position *domain.Position, account domain.AccountSnapshot, price float64, constraints domain.SymbolConstraints) (domain.RiskAssessment, domain.TradingDecision)
}

// ExecutionStage carries out a decision against the venue.
type ExecutionStage interface {
	Execute(ctx context.Context, decision domain.TradingDecision, quantity float64, position *domain.Position, price float64) ([]domain.TradeResult, error)
}

// DecisionJournal records verdicts and executed legs.
type DecisionJournal interface {
	AppendDecision(record domain.DecisionRecord) error
	AppendTrade(result domain.TradeResult) error
}

// PerformanceRecorder folds closed trades into running totals.
type PerformanceRecorder interface {
	Record(result domain.TradeResult)
	Persist() error
}

// TradeStore is the database copy of the journal. Best-effort: failures are
// logged and never stall the cycle.
type TradeStore interface {
	SaveTrade(ctx context.Context, result domain.TradeResult) error
	SaveDecision(ctx context.Context, record domain.DecisionRecord) error
}

// Notifier pushes trade events to the operator.
type Notifier interface {
	NotifyTrade(result domain.TradeResult)
}

type Config struct {
	Symbols      []string
	Interval     string
	KlineLimit   int
	CycleTimeout time.Duration
}

type Orchestrator struct {
	cfg       Config
	tracer    trace.Tracer
	market    MarketData
	exchange  ExchangeState
	analysis  AnalysisStage
	allocator PortfolioAllocator
	strategy  StrategyStage
	risk      RiskStage
	execution ExecutionStage
	journal   DecisionJournal
	perf      PerformanceRecorder
	store     TradeStore
	notifier  Notifier
	now       func() time.Time
}

func NewOrchestrator(
	cfg Config,
	tracer trace.Tracer,
	market MarketData,
	exchange ExchangeState,
	analysis AnalysisStage,
	alloc PortfolioAllocator,
	strategy StrategyStage,
	risk RiskStage,
	execution ExecutionStage,
	journal DecisionJournal,
	perf PerformanceRecorder,
	store TradeStore,
	notifier Notifier,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		tracer:    tracer,
		market:    market,
		exchange:  exchange,
		analysis:  analysis,
		allocator: alloc,
		strategy:  strategy,
		risk:      risk,
		execution: execution,
		journal:   journal,
		perf:      perf,
		store:     store,
		notifier:  notifier,
		now:       time.Now,
	}
}

// Run executes cycles on the given interval until ctx is cancelled. Cycle
// errors are logged and the loop continues; only an authentication failure
// stops trading, since every subsequent signed request would fail the same
// way.
func (o *Orchestrator) Run(ctx context.Context, every time.Duration) error {
	log.Printf("trading loop starting: %d symbols, %s candles, cycle every %s",
		len(o.cfg.Symbols), o.cfg.Interval, every)

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := o.RunCycle(ctx); err != nil {
			if errors.Is(err, domain.ErrAuth) {
				return fmt.Errorf("trading halted: %w", err)
			}
			log.Printf("cycle error: %v", err)
		}
		if o.perf != nil {
			if err := o.perf.Persist(); err != nil {
				log.Printf("persist performance: %v", err)
			}
		}

		select {
		case <-ctx.Done():
			log.Println("trading loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle executes one full pipeline pass. Per-symbol failures degrade that
// symbol and never abort the cycle; the returned error is the joined set of
// symbol errors for logging.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.run-cycle")
	defer span.End()

	if o.cfg.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.CycleTimeout)
		defer cancel()
	}

	reports := o.analyzeAll(ctx)

	allocation := o.allocator.Allocate(reports)
	span.SetAttributes(attribute.String("allocation.mode", string(allocation.Mode)))

	var errs []error
	for _, symbol := range o.cfg.Symbols {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("cycle deadline: %w", ctx.Err()))
			break
		}
		if err := o.tradeSymbol(ctx, symbol, reports[symbol], allocation.Weight(symbol)); err != nil {
			if errors.Is(err, domain.ErrAuth) {
				return err
			}
			log.Printf("symbol %s: %v", symbol, err)
			errs = append(errs, fmt.Errorf("%s: %w", symbol, err))
		}
	}
	return errors.Join(errs...)
}

// analyzeAll fans one goroutine out per symbol and waits for all of them. A
// failed analysis yields an Unavailable report so the allocator always sees
// the full symbol set.
func (o *Orchestrator) analyzeAll(ctx context.Context) map[string]domain.MarketReport {
	ctx, span := o.tracer.Start(ctx, "pipeline.analyze-all")
	defer span.End()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		reports = make(map[string]domain.MarketReport, len(o.cfg.Symbols))
	)

	for _, symbol := range o.cfg.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			report, err := o.analyzeOne(ctx, symbol)
			if err != nil {
				log.Printf("analysis for %s unavailable: %v", symbol, err)
				report = domain.UnavailableReport(symbol, err.Error())
			} else if err := o.market.StoreReport(ctx, report); err != nil {
				log.Printf("cache report for %s: %v", symbol, err)
			}

			mu.Lock()
			reports[symbol] = report
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()
	return reports
}

func (o *Orchestrator) analyzeOne(ctx context.Context, symbol string) (domain.MarketReport, error) {
	klines, err := o.market.Klines(ctx, symbol, o.cfg.Interval, o.cfg.KlineLimit)
	if err != nil {
		return domain.MarketReport{}, fmt.Errorf("klines: %w", err)
	}
	return o.analysis.Analyze(ctx, symbol, o.cfg.Interval, klines)
}

// tradeSymbol runs strategy, risk and execution for one symbol.
func (o *Orchestrator) tradeSymbol(ctx context.Context, symbol string, report domain.MarketReport, weight float64) error {
	ctx, span := o.tracer.Start(ctx, "pipeline.trade-symbol")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Float64("weight", weight))

	if report.Unavailable {
		log.Printf("skipping %s: analysis unavailable (%s)", symbol, report.Reason)
		return nil
	}
	if weight == 0 {
		log.Printf("skipping %s: zero allocation weight", symbol)
		return nil
	}

	position, err := o.exchange.FetchPosition(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch position: %w", err)
	}
	account, err := o.exchange.FetchAccount(ctx)
	if err != nil {
		return fmt.Errorf("fetch account: %w", err)
	}
	price, err := o.market.Price(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch price: %w", err)
	}
	constraints, err := o.exchange.FetchSymbolConstraints(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch constraints: %w", err)
	}

	suggestion, err := o.strategy.Suggest(ctx, report, weight, position, account, price)
	if err != nil {
		// A failed strategy call degrades to Hold rather than skipping the
		// journal trail.
		log.Printf("strategy for %s failed, holding: %v", symbol, err)
		suggestion = domain.StrategySuggestion{Symbol: symbol, Delta: 0, Confidence: domain.ConfidenceLow,
			Reasoning: fmt.Sprintf("strategy unavailable: %v", err)}
	}

	assessment, decision := o.risk.Assess(suggestion, position, account, price, constraints)
	o.recordDecision(ctx, decision, position)

	if decision.Signal == domain.SignalHold {
		return nil
	}

	results, execErr := o.execution.Execute(ctx, decision, assessment.ApprovedQuantity, position, price)
	for _, result := range results {
		o.recordTrade(ctx, result)
	}

	var partial *domain.PartialExecutionError
	if errors.As(execErr, &partial) {
		// The close leg landed but the open leg did not. Position state on
		// the venue is authoritative and gets re-read next cycle.
		log.Printf("partial execution on %s: completed %s, failed %s: %v",
			partial.Symbol, partial.Completed, partial.Failed, partial.Err)
		return nil
	}
	if execErr != nil {
		return fmt.Errorf("execute: %w", execErr)
	}
	return nil
}

func (o *Orchestrator) recordDecision(ctx context.Context, decision domain.TradingDecision, position *domain.Position) {
	record := domain.DecisionRecord{
		Timestamp: o.now().UnixMilli(),
		Symbol:    decision.Symbol,
		Decision:  decision,
		Position:  position,
	}
	if o.journal != nil {
		if err := o.journal.AppendDecision(record); err != nil {
			log.Printf("journal decision for %s: %v", decision.Symbol, err)
		}
	}
	if o.store != nil {
		if err := o.store.SaveDecision(ctx, record); err != nil {
			log.Printf("store decision for %s: %v", decision.Symbol, err)
		}
	}
}

func (o *Orchestrator) recordTrade(ctx context.Context, result domain.TradeResult) {
	if o.journal != nil {
		if err := o.journal.AppendTrade(result); err != nil {
			log.Printf("journal trade for %s: %v", result.Symbol, err)
		}
	}
	if o.store != nil {
		if err := o.store.SaveTrade(ctx, result); err != nil {
			log.Printf("store trade for %s: %v", result.Symbol, err)
		}
	}
	if o.perf != nil {
		o.perf.Record(result)
	}
	if o.notifier != nil {
		o.notifier.NotifyTrade(result)
	}
}
