package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy. Per-symbol errors are caught at symbol granularity inside
// the orchestrator and never propagate past the symbol boundary; only ErrAuth
// is treated as fatal for the account.
var (
	// ErrInsufficientData means the kline window is shorter than the largest
	// indicator lookback. The symbol's analysis is skipped for the cycle.
	ErrInsufficientData = errors.New("insufficient kline data for indicator window")

	// ErrLLMParse means no well-formed JSON object matching the stage schema
	// could be extracted from the model's response.
	ErrLLMParse = errors.New("no valid JSON object in model response")

	// ErrAnalysisTimeout means an inference call exceeded its deadline.
	ErrAnalysisTimeout = errors.New("inference call timed out")

	// ErrAuth means the venue refused the request's signature, API key or
	// timestamp. Not retryable; trading halts until credentials are fixed.
	ErrAuth = errors.New("exchange authentication failed")

	// ErrNetwork wraps transient transport failures that are retried.
	ErrNetwork = errors.New("transient network failure")

	// ErrExecutionFailed means all retries were exhausted without a
	// successful order placement.
	ErrExecutionFailed = errors.New("order execution failed after retries")
)

// RejectionError is a venue-side order rejection (margin, minimum notional,
// minimum quantity, ...). Never retried.
type RejectionError struct {
	Code    int
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("exchange rejected order (code %d): %s", e.Code, e.Message)
}

// PartialExecutionError reports a composite close-then-open transition whose
// close leg succeeded but whose open leg failed. Local position state is
// unknown until the next cycle re-queries the exchange.
type PartialExecutionError struct {
	Symbol    string
	Completed TradeAction
	Failed    TradeAction
	Err       error
}

func (e *PartialExecutionError) Error() string {
	return fmt.Sprintf("partial execution on %s: %s succeeded, %s failed: %v",
		e.Symbol, e.Completed, e.Failed, e.Err)
}

func (e *PartialExecutionError) Unwrap() error { return e.Err }
