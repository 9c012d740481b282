package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"turbo-umbrella/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

const (
	mainnetBaseURL = "https://fapi.binance.com"
	testnetBaseURL = "https://demo-trading-fapi.binance.com"

	// Positions smaller than this are dust left over from quantization and
	// are treated as flat.
	flatThreshold = 1e-4

	// Returned when the position mode already matches the requested one.
	codeNoNeedToChange = -4059
)

var authErrorCodes = map[int]bool{
	-1022: true, // invalid signature
	-2014: true, // bad API key format
	-2015: true, // invalid key, IP or permissions
}

// Client talks to the Binance USD-M futures REST API. Signed endpoints use
// HMAC-SHA256 over the encoded query string with the key sent in a header.
type Client struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	secret     string
	recvWindow int64
	limiter    *rateLimiter
	tracer     trace.Tracer
	now        func() time.Time
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a futures client. testnet selects the demo trading
// endpoint so the bot can run against paper funds.
func NewClient(apiKey, secret string, testnet bool, recvWindowMs int64, tracer trace.Tracer) *Client {
	baseURL := mainnetBaseURL
	if testnet {
		baseURL = testnetBaseURL
	}
	return &Client{
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		secret:     secret,
		recvWindow: recvWindowMs,
		limiter:    newRateLimiter(20, 250*time.Millisecond),
		tracer:     tracer,
		now:        time.Now,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// FetchKlines returns up to limit closed candles for symbol at the given
// interval, oldest first.
func (c *Client) FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	ctx, span := c.tracer.Start(ctx, "exchange.fetch-klines")
	defer span.End()

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/klines", params, false)
	if err != nil {
		return nil, fmt.Errorf("fetch klines for %s: %w", symbol, err)
	}

	// Each row is a mixed array: open time as a number, OHLCV as strings.
	var raw [][]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse klines for %s: %w", symbol, err)
	}

	klines := make([]domain.Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		var k domain.Kline
		if err := json.Unmarshal(row[0], &k.OpenTime); err != nil {
			return nil, fmt.Errorf("parse kline open time: %w", err)
		}
		fields := []*float64{&k.Open, &k.High, &k.Low, &k.Close, &k.Volume}
		for i, dst := range fields {
			var s string
			if err := json.Unmarshal(row[i+1], &s); err != nil {
				return nil, fmt.Errorf("parse kline field %d: %w", i+1, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("parse kline field %d: %w", i+1, err)
			}
			*dst = v
		}
		klines = append(klines, k)
	}
	return klines, nil
}

// FetchPrice returns the latest traded price for symbol.
func (c *Client) FetchPrice(ctx context.Context, symbol string) (float64, error) {
	ctx, span := c.tracer.Start(ctx, "exchange.fetch-price")
	defer span.End()

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/ticker/price", params, false)
	if err != nil {
		return 0, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}

	var raw struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return 0, fmt.Errorf("parse price for %s: %w", symbol, err)
	}
	price, err := strconv.ParseFloat(raw.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price for %s: %w", symbol, err)
	}
	return price, nil
}

// FetchPosition returns the open position for symbol, or nil when flat. In
// hedge mode the endpoint returns one row per side; the first row with a
// non-dust amount wins.
func (c *Client) FetchPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	ctx, span := c.tracer.Start(ctx, "exchange.fetch-position")
	defer span.End()

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.do(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true)
	if err != nil {
		return nil, fmt.Errorf("fetch position for %s: %w", symbol, err)
	}

	var rows []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		UnrealizedProfit string `json:"unRealizedProfit"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("parse position for %s: %w", symbol, err)
	}

	for _, row := range rows {
		amt, err := strconv.ParseFloat(row.PositionAmt, 64)
		if err != nil {
			return nil, fmt.Errorf("parse position amount for %s: %w", symbol, err)
		}
		if amt > -flatThreshold && amt < flatThreshold {
			continue
		}
		entry, err := strconv.ParseFloat(row.EntryPrice, 64)
		if err != nil {
			return nil, fmt.Errorf("parse entry price for %s: %w", symbol, err)
		}
		pnl, _ := strconv.ParseFloat(row.UnrealizedProfit, 64)

		side := domain.SideLong
		size := amt
		if amt < 0 {
			side = domain.SideShort
			size = -amt
		}
		return &domain.Position{
			Symbol:        symbol,
			Side:          side,
			Size:          size,
			EntryPrice:    entry,
			UnrealizedPnL: pnl,
		}, nil
	}
	return nil, nil
}

// FetchAccount returns wallet and available balances in USDT.
func (c *Client) FetchAccount(ctx context.Context) (domain.AccountSnapshot, error) {
	ctx, span := c.tracer.Start(ctx, "exchange.fetch-account")
	defer span.End()

	body, err := c.do(ctx, http.MethodGet, "/fapi/v2/account", url.Values{}, true)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("fetch account: %w", err)
	}

	var raw struct {
		TotalWalletBalance string `json:"totalWalletBalance"`
		AvailableBalance   string `json:"availableBalance"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("parse account: %w", err)
	}
	total, err := strconv.ParseFloat(raw.TotalWalletBalance, 64)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("parse account balance: %w", err)
	}
	avail, err := strconv.ParseFloat(raw.AvailableBalance, 64)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("parse account balance: %w", err)
	}
	return domain.AccountSnapshot{
		TotalWalletBalance: total,
		AvailableBalance:   avail,
	}, nil
}

// FetchSymbolConstraints reads the exchange filters that orders for symbol
// must satisfy.
func (c *Client) FetchSymbolConstraints(ctx context.Context, symbol string) (domain.SymbolConstraints, error) {
	ctx, span := c.tracer.Start(ctx, "exchange.fetch-symbol-constraints")
	defer span.End()

	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.do(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", params, false)
	if err != nil {
		return domain.SymbolConstraints{}, fmt.Errorf("fetch exchange info for %s: %w", symbol, err)
	}

	var raw struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
				MinQty     string `json:"minQty"`
				MaxQty     string `json:"maxQty"`
				TickSize   string `json:"tickSize"`
				Notional   string `json:"notional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.SymbolConstraints{}, fmt.Errorf("parse exchange info for %s: %w", symbol, err)
	}

	var sc domain.SymbolConstraints
	for _, s := range raw.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "LOT_SIZE":
				sc.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
				sc.MinQty, _ = strconv.ParseFloat(f.MinQty, 64)
				sc.MaxQty, _ = strconv.ParseFloat(f.MaxQty, 64)
			case "PRICE_FILTER":
				sc.TickSize, _ = strconv.ParseFloat(f.TickSize, 64)
			case "MIN_NOTIONAL":
				sc.MinNotional, _ = strconv.ParseFloat(f.Notional, 64)
			}
		}
		return sc, nil
	}
	return domain.SymbolConstraints{}, fmt.Errorf("symbol %s not in exchange info", symbol)
}

// PlaceMarketOrder submits a market order. positionSide is LONG or SHORT;
// hedge mode requires it on every order.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol, side string, positionSide domain.PositionSide, quantity float64) (domain.OrderAck, error) {
	ctx, span := c.tracer.Start(ctx, "exchange.place-market-order")
	defer span.End()

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("positionSide", string(positionSide))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))

	body, err := c.do(ctx, http.MethodPost, "/fapi/v1/order", params, true)
	if err != nil {
		return domain.OrderAck{}, fmt.Errorf("place %s %s order for %s: %w", side, positionSide, symbol, err)
	}

	var raw struct {
		OrderID int64  `json:"orderId"`
		Symbol  string `json:"symbol"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.OrderAck{}, fmt.Errorf("parse order ack for %s: %w", symbol, err)
	}
	return domain.OrderAck{OrderID: raw.OrderID, Symbol: raw.Symbol, Status: raw.Status}, nil
}

// SetLeverage sets the leverage multiplier for symbol.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	ctx, span := c.tracer.Start(ctx, "exchange.set-leverage")
	defer span.End()

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("leverage", strconv.Itoa(leverage))

	if _, err := c.do(ctx, http.MethodPost, "/fapi/v1/leverage", params, true); err != nil {
		return fmt.Errorf("set leverage for %s: %w", symbol, err)
	}
	return nil
}

// SetDualSidePosition switches the account between one-way and hedge mode.
// The no-op rejection when the mode already matches is not an error.
func (c *Client) SetDualSidePosition(ctx context.Context, enabled bool) error {
	ctx, span := c.tracer.Start(ctx, "exchange.set-dual-side")
	defer span.End()

	params := url.Values{}
	params.Set("dualSidePosition", strconv.FormatBool(enabled))

	_, err := c.do(ctx, http.MethodPost, "/fapi/v1/positionSide/dual", params, true)
	if err != nil {
		var rej *domain.RejectionError
		if errors.As(err, &rej) && rej.Code == codeNoNeedToChange {
			return nil
		}
		return fmt.Errorf("set dual side position: %w", err)
	}
	return nil
}

// do issues one API call, retrying transient failures with a fixed delay.
// Auth failures and order rejections are never retried.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}

		body, err := c.doOnce(ctx, method, path, params, signed)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, domain.ErrNetwork) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: retries exhausted: %v", domain.ErrExecutionFailed, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.wait(ctx); err != nil {
		return nil, err
	}

	query := params
	if signed {
		// The signature covers the exact encoded query, so it must be the
		// last thing appended.
		query = url.Values{}
		for k, vs := range params {
			query[k] = vs
		}
		query.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
		query.Set("recvWindow", strconv.FormatInt(c.recvWindow, 10))
	}

	encoded := query.Encode()
	if signed {
		encoded += "&signature=" + Sign(c.secret, encoded)
	}

	reqURL := c.baseURL + path
	if encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusOK {
		return body, nil
	}
	return nil, c.classify(resp.StatusCode, body)
}

// classify maps a non-200 response to the error taxonomy: retryable network
// faults, fatal auth failures, or terminal rejections.
func (c *Client) classify(status int, body []byte) error {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case status >= 500 || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: API error %d: %s", domain.ErrNetwork, status, string(body))
	case status == http.StatusUnauthorized || status == http.StatusForbidden || authErrorCodes[apiErr.Code]:
		return fmt.Errorf("%w: API error %d code %d: %s", domain.ErrAuth, status, apiErr.Code, apiErr.Msg)
	default:
		return &domain.RejectionError{Code: apiErr.Code, Message: apiErr.Msg}
	}
}
