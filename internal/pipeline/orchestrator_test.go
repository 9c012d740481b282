package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"turbo-umbrella/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

var testTracer = trace.NewNoopTracerProvider().Tracer("test")

type fakeMarket struct {
	mu            sync.Mutex
	klines        map[string][]domain.Kline
	klinesErr     map[string]error
	prices        map[string]float64
	klineCalls    int
	storedReports []domain.MarketReport
}

func (f *fakeMarket) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	f.mu.Lock()
	f.klineCalls++
	f.mu.Unlock()
	if err := f.klinesErr[symbol]; err != nil {
		return nil, err
	}
	return f.klines[symbol], nil
}

func (f *fakeMarket) Price(ctx context.Context, symbol string) (float64, error) {
	return f.prices[symbol], nil
}

func (f *fakeMarket) StoreReport(ctx context.Context, report domain.MarketReport) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storedReports = append(f.storedReports, report)
	return nil
}

type fakeExchange struct {
	positions   map[string]*domain.Position
	account     domain.AccountSnapshot
	accountErr  error
	constraints domain.SymbolConstraints
}

func (f *fakeExchange) FetchPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	return f.positions[symbol], nil
}

func (f *fakeExchange) FetchAccount(ctx context.Context) (domain.AccountSnapshot, error) {
	return f.account, f.accountErr
}

func (f *fakeExchange) FetchSymbolConstraints(ctx context.Context, symbol string) (domain.SymbolConstraints, error) {
	return f.constraints, nil
}

type fakeAnalysis struct {
	mu      sync.Mutex
	reports map[string]domain.MarketReport
	errs    map[string]error
	calls   []string
}

func (f *fakeAnalysis) Analyze(ctx context.Context, symbol, interval string, klines []domain.Kline) (domain.MarketReport, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()
	if err := f.errs[symbol]; err != nil {
		return domain.MarketReport{}, err
	}
	return f.reports[symbol], nil
}

type fakeAllocator struct {
	got        map[string]domain.MarketReport
	allocation domain.PortfolioAllocation
}

func (f *fakeAllocator) Allocate(reports map[string]domain.MarketReport) domain.PortfolioAllocation {
	f.got = reports
	return f.allocation
}

type fakeStrategy struct {
	suggestions map[string]domain.StrategySuggestion
	errs        map[string]error
	order       []string
}

func (f *fakeStrategy) Suggest(ctx context.Context, report domain.MarketReport, weight float64, position *domain.Position, account domain.AccountSnapshot, price float64) (domain.StrategySuggestion, error) {
	f.order = append(f.order, report.Symbol)
	if err := f.errs[report.Symbol]; err != nil {
		return domain.StrategySuggestion{}, err
	}
	return f.suggestions[report.Symbol], nil
}

type fakeRisk struct{}

// Approves any nonzero delta at delta/price quantized by the constraints.
func (f *fakeRisk) Assess(suggestion domain.StrategySuggestion, position *domain.Position, account domain.AccountSnapshot, price float64, constraints domain.SymbolConstraints) (domain.RiskAssessment, domain.TradingDecision) {
	if suggestion.Delta == 0 {
		return domain.RiskAssessment{Symbol: suggestion.Symbol, Approved: false, Reason: "hold"},
			domain.TradingDecision{Symbol: suggestion.Symbol, Signal: domain.SignalHold, Confidence: suggestion.Confidence}
	}
	signal := domain.SignalBuy
	if suggestion.Delta < 0 {
		signal = domain.SignalSell
	}
	qty := constraints.QuantizeDown(suggestion.Delta / price)
	return domain.RiskAssessment{Symbol: suggestion.Symbol, ApprovedQuantity: qty, Approved: true},
		domain.TradingDecision{Symbol: suggestion.Symbol, Signal: signal, Confidence: suggestion.Confidence}
}

type executedCall struct {
	decision domain.TradingDecision
	quantity float64
}

type fakeExecution struct {
	calls   []executedCall
	results map[string][]domain.TradeResult
	errs    map[string]error
}

func (f *fakeExecution) Execute(ctx context.Context, decision domain.TradingDecision, quantity float64, position *domain.Position, price float64) ([]domain.TradeResult, error) {
	f.calls = append(f.calls, executedCall{decision, quantity})
	return f.results[decision.Symbol], f.errs[decision.Symbol]
}

type fakeJournal struct {
	decisions []domain.DecisionRecord
	trades    []domain.TradeResult
}

func (f *fakeJournal) AppendDecision(record domain.DecisionRecord) error {
	f.decisions = append(f.decisions, record)
	return nil
}

func (f *fakeJournal) AppendTrade(result domain.TradeResult) error {
	f.trades = append(f.trades, result)
	return nil
}

func bullishReport(symbol string) domain.MarketReport {
	return domain.MarketReport{
		Symbol:     symbol,
		Trend:      domain.TrendBullish,
		Strength:   domain.StrengthStrong,
		Phase:      domain.PhaseMarkup,
		Confidence: domain.ConfidenceHigh,
	}
}

func klineWindow(n int) []domain.Kline {
	klines := make([]domain.Kline, n)
	for i := range klines {
		klines[i] = domain.Kline{OpenTime: int64(i), Close: 50000, Volume: 1}
	}
	return klines
}

type fixture struct {
	market    *fakeMarket
	exchange  *fakeExchange
	analysis  *fakeAnalysis
	alloc     *fakeAllocator
	strategy  *fakeStrategy
	execution *fakeExecution
	journal   *fakeJournal
}

func newOrchestrator(cfg Config, f *fixture) *Orchestrator {
	return NewOrchestrator(cfg, testTracer,
		f.market, f.exchange, f.analysis, f.alloc, f.strategy, &fakeRisk{}, f.execution,
		f.journal, nil, nil, nil)
}

func TestRunCycleOpensLong(t *testing.T) {
	t.Parallel()

	symbols := []string{"BTCUSDT"}
	f := &fixture{
		market: &fakeMarket{
			klines: map[string][]domain.Kline{"BTCUSDT": klineWindow(100)},
			prices: map[string]float64{"BTCUSDT": 50000},
		},
		exchange: &fakeExchange{
			positions:   map[string]*domain.Position{},
			account:     domain.AccountSnapshot{TotalWalletBalance: 1000, AvailableBalance: 900},
			constraints: domain.SymbolConstraints{StepSize: 0.001},
		},
		analysis: &fakeAnalysis{reports: map[string]domain.MarketReport{"BTCUSDT": bullishReport("BTCUSDT")}},
		alloc: &fakeAllocator{allocation: domain.PortfolioAllocation{
			Mode: domain.ModeBalanced, Weights: map[string]float64{"BTCUSDT": 1.0},
		}},
		strategy: &fakeStrategy{suggestions: map[string]domain.StrategySuggestion{
			"BTCUSDT": {Symbol: "BTCUSDT", Delta: 50, Confidence: domain.ConfidenceHigh},
		}},
		execution: &fakeExecution{results: map[string][]domain.TradeResult{
			"BTCUSDT": {{Symbol: "BTCUSDT", Action: domain.ActionOpenLong, Quantity: 0.001, Price: 50000}},
		}},
		journal: &fakeJournal{},
	}
	o := newOrchestrator(Config{Symbols: symbols, Interval: "15m", KlineLimit: 100}, f)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected cycle error: %v", err)
	}

	if len(f.execution.calls) != 1 {
		t.Fatalf("execution calls = %d, want 1", len(f.execution.calls))
	}
	call := f.execution.calls[0]
	if call.decision.Signal != domain.SignalBuy {
		t.Errorf("Signal = %s, want BUY", call.decision.Signal)
	}
	// 50 USDT at 50000 on a 0.001 step.
	if call.quantity != 0.001 {
		t.Errorf("quantity = %v, want 0.001", call.quantity)
	}
	if len(f.journal.decisions) != 1 || len(f.journal.trades) != 1 {
		t.Errorf("journal: %d decisions, %d trades", len(f.journal.decisions), len(f.journal.trades))
	}
}

func TestRunCycleIsolatesFailedAnalysis(t *testing.T) {
	t.Parallel()

	symbols := []string{"BTCUSDT", "ETHUSDT"}
	f := &fixture{
		market: &fakeMarket{
			klines: map[string][]domain.Kline{
				"BTCUSDT": klineWindow(100),
				"ETHUSDT": klineWindow(100),
			},
			prices: map[string]float64{"BTCUSDT": 50000, "ETHUSDT": 3000},
		},
		exchange: &fakeExchange{
			positions:   map[string]*domain.Position{},
			account:     domain.AccountSnapshot{AvailableBalance: 900},
			constraints: domain.SymbolConstraints{StepSize: 0.001},
		},
		analysis: &fakeAnalysis{
			reports: map[string]domain.MarketReport{"ETHUSDT": bullishReport("ETHUSDT")},
			errs:    map[string]error{"BTCUSDT": domain.ErrAnalysisTimeout},
		},
		alloc: &fakeAllocator{allocation: domain.PortfolioAllocation{
			Weights: map[string]float64{"BTCUSDT": 0, "ETHUSDT": 1.0},
		}},
		strategy: &fakeStrategy{suggestions: map[string]domain.StrategySuggestion{
			"ETHUSDT": {Symbol: "ETHUSDT", Delta: 30, Confidence: domain.ConfidenceMedium},
		}},
		execution: &fakeExecution{results: map[string][]domain.TradeResult{
			"ETHUSDT": {{Symbol: "ETHUSDT", Action: domain.ActionOpenLong}},
		}},
		journal: &fakeJournal{},
	}
	o := newOrchestrator(Config{Symbols: symbols, Interval: "15m", KlineLimit: 100}, f)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("failed analysis must not fail the cycle: %v", err)
	}

	// The allocator still saw both symbols, one of them unavailable.
	if len(f.alloc.got) != 2 {
		t.Fatalf("allocator saw %d reports, want 2", len(f.alloc.got))
	}
	if !f.alloc.got["BTCUSDT"].Unavailable {
		t.Error("failed symbol should produce an unavailable report")
	}

	// Only the healthy symbol traded.
	if len(f.execution.calls) != 1 || f.execution.calls[0].decision.Symbol != "ETHUSDT" {
		t.Errorf("execution calls = %+v", f.execution.calls)
	}
}

func TestRunCycleStrategyErrorDegradesToHold(t *testing.T) {
	t.Parallel()

	symbols := []string{"BTCUSDT"}
	f := &fixture{
		market: &fakeMarket{
			klines: map[string][]domain.Kline{"BTCUSDT": klineWindow(100)},
			prices: map[string]float64{"BTCUSDT": 50000},
		},
		exchange: &fakeExchange{
			positions: map[string]*domain.Position{},
			account:   domain.AccountSnapshot{AvailableBalance: 900},
		},
		analysis: &fakeAnalysis{reports: map[string]domain.MarketReport{"BTCUSDT": bullishReport("BTCUSDT")}},
		alloc: &fakeAllocator{allocation: domain.PortfolioAllocation{
			Weights: map[string]float64{"BTCUSDT": 1.0},
		}},
		strategy:  &fakeStrategy{errs: map[string]error{"BTCUSDT": domain.ErrLLMParse}},
		execution: &fakeExecution{},
		journal:   &fakeJournal{},
	}
	o := newOrchestrator(Config{Symbols: symbols, Interval: "15m", KlineLimit: 100}, f)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("strategy failure must degrade, not error: %v", err)
	}
	if len(f.execution.calls) != 0 {
		t.Errorf("hold must not reach execution, got %+v", f.execution.calls)
	}
	if len(f.journal.decisions) != 1 || f.journal.decisions[0].Decision.Signal != domain.SignalHold {
		t.Errorf("expected one HOLD decision, got %+v", f.journal.decisions)
	}
}

func TestRunCycleZeroWeightSkipsSymbol(t *testing.T) {
	t.Parallel()

	symbols := []string{"BTCUSDT"}
	f := &fixture{
		market: &fakeMarket{
			klines: map[string][]domain.Kline{"BTCUSDT": klineWindow(100)},
			prices: map[string]float64{"BTCUSDT": 50000},
		},
		exchange: &fakeExchange{positions: map[string]*domain.Position{}},
		analysis: &fakeAnalysis{reports: map[string]domain.MarketReport{"BTCUSDT": bullishReport("BTCUSDT")}},
		alloc: &fakeAllocator{allocation: domain.PortfolioAllocation{
			Weights: map[string]float64{"BTCUSDT": 0},
		}},
		strategy:  &fakeStrategy{},
		execution: &fakeExecution{},
		journal:   &fakeJournal{},
	}
	o := newOrchestrator(Config{Symbols: symbols, Interval: "15m", KlineLimit: 100}, f)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.strategy.order) != 0 {
		t.Errorf("zero-weight symbol reached strategy: %v", f.strategy.order)
	}
}

func TestRunCyclePartialExecutionIsNotFatal(t *testing.T) {
	t.Parallel()

	symbols := []string{"BTCUSDT"}
	closePnL := 10.0
	f := &fixture{
		market: &fakeMarket{
			klines: map[string][]domain.Kline{"BTCUSDT": klineWindow(100)},
			prices: map[string]float64{"BTCUSDT": 50000},
		},
		exchange: &fakeExchange{
			positions: map[string]*domain.Position{
				"BTCUSDT": {Symbol: "BTCUSDT", Side: domain.SideLong, Size: 0.005, EntryPrice: 48000},
			},
			account:     domain.AccountSnapshot{AvailableBalance: 900},
			constraints: domain.SymbolConstraints{StepSize: 0.001},
		},
		analysis: &fakeAnalysis{reports: map[string]domain.MarketReport{"BTCUSDT": bullishReport("BTCUSDT")}},
		alloc: &fakeAllocator{allocation: domain.PortfolioAllocation{
			Weights: map[string]float64{"BTCUSDT": 1.0},
		}},
		strategy: &fakeStrategy{suggestions: map[string]domain.StrategySuggestion{
			"BTCUSDT": {Symbol: "BTCUSDT", Delta: -100, Confidence: domain.ConfidenceHigh},
		}},
		execution: &fakeExecution{
			results: map[string][]domain.TradeResult{
				"BTCUSDT": {{Symbol: "BTCUSDT", Action: domain.ActionCloseLong, Quantity: 0.005, RealizedPnL: &closePnL}},
			},
			errs: map[string]error{
				"BTCUSDT": &domain.PartialExecutionError{
					Symbol:    "BTCUSDT",
					Completed: domain.ActionCloseLong,
					Failed:    domain.ActionOpenShort,
					Err:       domain.ErrExecutionFailed,
				},
			},
		},
		journal: &fakeJournal{},
	}
	o := newOrchestrator(Config{Symbols: symbols, Interval: "15m", KlineLimit: 100}, f)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("partial execution must not fail the cycle: %v", err)
	}
	// The completed close leg is still journaled.
	if len(f.journal.trades) != 1 || f.journal.trades[0].Action != domain.ActionCloseLong {
		t.Errorf("journal trades = %+v", f.journal.trades)
	}
}

func TestRunCycleAuthErrorPropagates(t *testing.T) {
	t.Parallel()

	symbols := []string{"BTCUSDT"}
	f := &fixture{
		market: &fakeMarket{
			klines: map[string][]domain.Kline{"BTCUSDT": klineWindow(100)},
			prices: map[string]float64{"BTCUSDT": 50000},
		},
		exchange: &fakeExchange{
			positions:  map[string]*domain.Position{},
			accountErr: domain.ErrAuth,
		},
		analysis: &fakeAnalysis{reports: map[string]domain.MarketReport{"BTCUSDT": bullishReport("BTCUSDT")}},
		alloc: &fakeAllocator{allocation: domain.PortfolioAllocation{
			Weights: map[string]float64{"BTCUSDT": 1.0},
		}},
		strategy:  &fakeStrategy{},
		execution: &fakeExecution{},
		journal:   &fakeJournal{},
	}
	o := newOrchestrator(Config{Symbols: symbols, Interval: "15m", KlineLimit: 100}, f)

	err := o.RunCycle(context.Background())
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("expected ErrAuth to propagate, got %v", err)
	}
}

func TestRunCycleSequentialTradePhase(t *testing.T) {
	t.Parallel()

	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	reports := map[string]domain.MarketReport{}
	klines := map[string][]domain.Kline{}
	weights := map[string]float64{}
	suggestions := map[string]domain.StrategySuggestion{}
	for _, s := range symbols {
		reports[s] = bullishReport(s)
		klines[s] = klineWindow(100)
		weights[s] = 1.0 / 3
		suggestions[s] = domain.StrategySuggestion{Symbol: s, Delta: 0}
	}
	f := &fixture{
		market:    &fakeMarket{klines: klines, prices: map[string]float64{"BTCUSDT": 1, "ETHUSDT": 1, "SOLUSDT": 1}},
		exchange:  &fakeExchange{positions: map[string]*domain.Position{}},
		analysis:  &fakeAnalysis{reports: reports},
		alloc:     &fakeAllocator{allocation: domain.PortfolioAllocation{Weights: weights}},
		strategy:  &fakeStrategy{suggestions: suggestions},
		execution: &fakeExecution{},
		journal:   &fakeJournal{},
	}
	o := newOrchestrator(Config{Symbols: symbols, Interval: "15m", KlineLimit: 100}, f)

	if err := o.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Trade phase follows the configured symbol order exactly.
	if len(f.strategy.order) != 3 {
		t.Fatalf("strategy calls = %v", f.strategy.order)
	}
	for i, s := range symbols {
		if f.strategy.order[i] != s {
			t.Errorf("trade order[%d] = %s, want %s", i, f.strategy.order[i], s)
		}
	}
}

func TestRunStopsOnAuthError(t *testing.T) {
	t.Parallel()

	symbols := []string{"BTCUSDT"}
	f := &fixture{
		market: &fakeMarket{
			klines: map[string][]domain.Kline{"BTCUSDT": klineWindow(100)},
			prices: map[string]float64{"BTCUSDT": 50000},
		},
		exchange: &fakeExchange{
			positions:  map[string]*domain.Position{},
			accountErr: domain.ErrAuth,
		},
		analysis: &fakeAnalysis{reports: map[string]domain.MarketReport{"BTCUSDT": bullishReport("BTCUSDT")}},
		alloc: &fakeAllocator{allocation: domain.PortfolioAllocation{
			Weights: map[string]float64{"BTCUSDT": 1.0},
		}},
		strategy:  &fakeStrategy{},
		execution: &fakeExecution{},
		journal:   &fakeJournal{},
	}
	o := newOrchestrator(Config{Symbols: symbols, Interval: "15m", KlineLimit: 100}, f)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := o.Run(ctx, time.Hour)
	if !errors.Is(err, domain.ErrAuth) {
		t.Fatalf("Run should halt on auth failure, got %v", err)
	}
}
