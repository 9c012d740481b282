package domain

// Kline is a single OHLCV candlestick for a fixed interval. OpenTime is in
// milliseconds since epoch; slices of Klines are ordered oldest to newest.
type Kline struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// TechnicalIndicators is a read-only snapshot derived from one kline window.
// It is recomputed from scratch every cycle and never mutated.
type TechnicalIndicators struct {
	SMA5           float64 `json:"sma_5"`
	SMA20          float64 `json:"sma_20"`
	SMA50          float64 `json:"sma_50"`
	SMA100         float64 `json:"sma_100"`
	PriceChange1   float64 `json:"price_change_1"`
	PriceChange3   float64 `json:"price_change_3"`
	PriceChange6   float64 `json:"price_change_6"`
	PriceChange12  float64 `json:"price_change_12"`
	ATR14          float64 `json:"atr_14"`
	ATRPercent     float64 `json:"atr_percent"`
	VolumeRatio    float64 `json:"volume_ratio"`
}

// SupportedIntervals lists the kline intervals the trader accepts.
var SupportedIntervals = []string{"1m", "15m", "30m", "1h"}
