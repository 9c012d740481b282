package domain

import "time"

// Signal is the final directional instruction for one symbol in one cycle.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

func (s Signal) IsValid() bool {
	return s == SignalBuy || s == SignalSell || s == SignalHold
}

// Confidence is the model's self-reported conviction, mapped onto a fixed
// numeric score so downstream allocation stays deterministic.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

func (c Confidence) IsValid() bool {
	return c == ConfidenceHigh || c == ConfidenceMedium || c == ConfidenceLow
}

func (c Confidence) Score() float64 {
	switch c {
	case ConfidenceHigh:
		return 1.0
	case ConfidenceMedium:
		return 0.66
	case ConfidenceLow:
		return 0.33
	default:
		return 0
	}
}

// Trend is the analyst's directional read of the market.
type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

func (t Trend) IsValid() bool {
	return t == TrendBullish || t == TrendBearish || t == TrendNeutral
}

// Strength grades how established the trend is.
type Strength string

const (
	StrengthStrong Strength = "strong"
	StrengthMedium Strength = "medium"
	StrengthWeak   Strength = "weak"
)

func (s Strength) IsValid() bool {
	return s == StrengthStrong || s == StrengthMedium || s == StrengthWeak
}

func (s Strength) Score() float64 {
	switch s {
	case StrengthStrong:
		return 1.0
	case StrengthMedium:
		return 0.6
	case StrengthWeak:
		return 0.3
	default:
		return 0
	}
}

// MarketPhase follows the classic Wyckoff cycle labels.
type MarketPhase string

const (
	PhaseAccumulation MarketPhase = "accumulation"
	PhaseMarkup       MarketPhase = "markup"
	PhaseDistribution MarketPhase = "distribution"
	PhaseMarkdown     MarketPhase = "markdown"
)

func (p MarketPhase) IsValid() bool {
	switch p {
	case PhaseAccumulation, PhaseMarkup, PhaseDistribution, PhaseMarkdown:
		return true
	}
	return false
}

// MarketReport is the analyst stage's output for one symbol in one cycle.
// A failed analysis still produces a report with Unavailable set so the
// allocator sees every configured symbol.
type MarketReport struct {
	Symbol      string              `json:"symbol"`
	Indicators  TechnicalIndicators `json:"indicators"`
	Trend       Trend               `json:"trend"`
	Strength    Strength            `json:"strength"`
	Phase       MarketPhase         `json:"market_phase"`
	Support     float64             `json:"support"`
	Resistance  float64             `json:"resistance"`
	Analysis    string              `json:"analysis"`
	Confidence  Confidence          `json:"confidence"`
	Unavailable bool                `json:"unavailable,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}

// Score combines confidence and strength into the allocator's raw input.
// Unavailable reports always score zero.
func (r MarketReport) Score() float64 {
	if r.Unavailable {
		return 0
	}
	return r.Confidence.Score() * r.Strength.Score()
}

// UnavailableReport builds the placeholder report for a symbol whose
// analysis failed this cycle.
func UnavailableReport(symbol, reason string) MarketReport {
	return MarketReport{Symbol: symbol, Unavailable: true, Reason: reason}
}

// AllocationMode selects the concentration transform used by the allocator.
type AllocationMode string

const (
	ModeBalanced     AllocationMode = "balanced"
	ModeAggressive   AllocationMode = "aggressive"
	ModeConservative AllocationMode = "conservative"
)

func (m AllocationMode) IsValid() bool {
	return m == ModeBalanced || m == ModeAggressive || m == ModeConservative
}

// PortfolioAllocation maps each configured symbol to a fund weight in [0,1].
// Weights sum to 1 whenever at least one symbol scored nonzero.
type PortfolioAllocation struct {
	Mode    AllocationMode     `json:"mode"`
	Weights map[string]float64 `json:"weights"`
}

func (a PortfolioAllocation) Weight(symbol string) float64 {
	return a.Weights[symbol]
}

// StrategySuggestion is the strategist stage's output: a signed target
// position delta (positive = buy) plus protective levels.
type StrategySuggestion struct {
	Symbol     string     `json:"symbol"`
	Delta      float64    `json:"delta"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Confidence Confidence `json:"confidence"`
	Reasoning  string     `json:"reasoning"`
}

// RiskAssessment is the deterministic risk stage's verdict.
type RiskAssessment struct {
	Symbol           string  `json:"symbol"`
	ApprovedQuantity float64 `json:"approved_quantity"`
	Approved         bool    `json:"approved"`
	Reason           string  `json:"reason"`
}

// TradingDecision is the artifact handed to the execution engine.
type TradingDecision struct {
	Symbol     string     `json:"symbol"`
	Signal     Signal     `json:"signal"`
	Reason     string     `json:"reason"`
	Confidence Confidence `json:"confidence"`
}

// PositionSide is Long or Short; the exchange tracks both independently in
// hedge mode.
type PositionSide string

const (
	SideLong  PositionSide = "LONG"
	SideShort PositionSide = "SHORT"
)

// Sign maps the side onto the PnL multiplier: +1 for long, -1 for short.
func (s PositionSide) Sign() float64 {
	if s == SideShort {
		return -1
	}
	return 1
}

// Position is the exchange's authoritative view of an open position. A nil
// *Position means flat. Positions are re-fetched every cycle and never cached.
type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	Size          float64      `json:"size"`
	EntryPrice    float64      `json:"entry_price"`
	UnrealizedPnL float64      `json:"unrealized_pnl"`
}

// TradeAction is what the execution engine actually did (or decided not to do).
type TradeAction string

const (
	ActionOpenLong   TradeAction = "OPEN_LONG"
	ActionCloseLong  TradeAction = "CLOSE_LONG"
	ActionOpenShort  TradeAction = "OPEN_SHORT"
	ActionCloseShort TradeAction = "CLOSE_SHORT"
	ActionHold       TradeAction = "HOLD"
)

// TradeResult is the terminal artifact of one execution attempt. RealizedPnL
// is set only on actions that closed a position.
type TradeResult struct {
	Symbol       string      `json:"symbol"`
	Action       TradeAction `json:"action"`
	Price        float64     `json:"price"`
	Quantity     float64     `json:"quantity"`
	Timestamp    int64       `json:"timestamp"`
	Reason       string      `json:"reason"`
	RealizedPnL  *float64    `json:"realized_pnl,omitempty"`
	OrderDetails string      `json:"order_details,omitempty"`
}

// OrderAck is the venue's acknowledgment of a placed order.
type OrderAck struct {
	OrderID int64  `json:"order_id"`
	Symbol  string `json:"symbol"`
	Status  string `json:"status"`
}

// AccountSnapshot is the signed account query result used by the risk stage's
// exposure checks.
type AccountSnapshot struct {
	TotalWalletBalance float64 `json:"total_wallet_balance"`
	AvailableBalance   float64 `json:"available_balance"`
}

// SymbolConstraints are the venue's trading filters for one symbol.
type SymbolConstraints struct {
	StepSize    float64 `json:"step_size"`
	MinQty      float64 `json:"min_qty"`
	MaxQty      float64 `json:"max_qty"`
	MinNotional float64 `json:"min_notional"`
	TickSize    float64 `json:"tick_size"`
}

// QuantizeDown floors a quantity to the symbol's step size. A zero step
// leaves the value untouched.
func (c SymbolConstraints) QuantizeDown(qty float64) float64 {
	if c.StepSize <= 0 {
		return qty
	}
	steps := float64(int64(qty / c.StepSize))
	q := steps * c.StepSize
	if q < 0 {
		return 0
	}
	return q
}

// DecisionRecord is the journal entry written after every risk verdict.
type DecisionRecord struct {
	Timestamp int64           `json:"timestamp"`
	Symbol    string          `json:"symbol"`
	Decision  TradingDecision `json:"decision"`
	Position  *Position       `json:"position,omitempty"`
}

// PerformanceSnapshot aggregates realized results across the process lifetime.
type PerformanceSnapshot struct {
	TotalRealizedPnL float64    `json:"total_realized_pnl"`
	TotalTrades      uint64     `json:"total_trades"`
	WinningTrades    uint64     `json:"winning_trades"`
	LosingTrades     uint64     `json:"losing_trades"`
	BestTrade        *float64   `json:"best_trade,omitempty"`
	WorstTrade       *float64   `json:"worst_trade,omitempty"`
	EquityPeak       float64    `json:"equity_peak"`
	MaxDrawdown      float64    `json:"max_drawdown"`
	LastUpdate       *time.Time `json:"last_update,omitempty"`
}
