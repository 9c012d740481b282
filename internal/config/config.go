package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"turbo-umbrella/internal/domain"
)

type Config struct {
	BinanceAPIKey    string
	BinanceAPISecret string
	BinanceTestnet   bool
	RecvWindowMs     int64

	DeepSeekAPIKey  string
	DeepSeekBaseURL string
	LLMModel        string

	Symbols        []string
	Interval       string
	KlineLimit     int
	PortfolioMode  domain.AllocationMode
	Leverage       int
	DualSidePosition bool

	MinTradeAmount      float64
	MaxTradeAmount      float64
	MaxPosition         float64
	MaxExposureFraction float64

	CycleSecs        int
	AnalysisTimeoutSecs int

	DatabaseURL string
	RedisURL    string
	JournalDir  string

	HTTPPort   int
	HTTPAPIKey string

	TelegramBotToken string
}

func Load() *Config {
	cfg := &Config{
		BinanceAPIKey:    os.Getenv("BINANCE_API_KEY"),
		BinanceAPISecret: os.Getenv("BINANCE_API_SECRET"),
		DeepSeekAPIKey:   os.Getenv("DEEPSEEK_API_KEY"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		HTTPAPIKey:       os.Getenv("HTTP_API_KEY"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		log.Println("Warning: BINANCE_API_KEY / BINANCE_API_SECRET not set")
	}
	if cfg.DeepSeekAPIKey == "" {
		log.Println("Warning: DEEPSEEK_API_KEY not set")
	}
	if cfg.DatabaseURL == "" {
		log.Println("Warning: DATABASE_URL not set, trade history API will be unavailable")
	}
	if cfg.RedisURL == "" {
		log.Println("Warning: REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}

	cfg.BinanceTestnet = strings.EqualFold(strings.TrimSpace(os.Getenv("BINANCE_TESTNET")), "true")

	cfg.RecvWindowMs = 5000
	if v := strings.TrimSpace(os.Getenv("RECV_WINDOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			cfg.RecvWindowMs = n
		}
	}

	cfg.DeepSeekBaseURL = strings.TrimSpace(os.Getenv("DEEPSEEK_BASE_URL"))
	if cfg.DeepSeekBaseURL == "" {
		cfg.DeepSeekBaseURL = "https://api.deepseek.com"
	}

	cfg.LLMModel = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	if cfg.LLMModel == "" {
		cfg.LLMModel = "deepseek-chat"
	}

	cfg.Symbols = []string{"BTCUSDT"}
	if v := strings.TrimSpace(os.Getenv("TRADE_SYMBOLS")); v != "" {
		var symbols []string
		for _, s := range strings.Split(v, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				symbols = append(symbols, s)
			}
		}
		if len(symbols) > 0 {
			cfg.Symbols = symbols
		}
	}

	cfg.Interval = strings.TrimSpace(os.Getenv("TRADE_INTERVAL"))
	if cfg.Interval == "" {
		cfg.Interval = "15m"
	}
	if !validInterval(cfg.Interval) {
		log.Printf("Warning: unsupported TRADE_INTERVAL=%q, defaulting to 15m", cfg.Interval)
		cfg.Interval = "15m"
	}

	cfg.KlineLimit = 200
	if v := strings.TrimSpace(os.Getenv("KLINE_LIMIT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 100 && n <= 1000 {
			cfg.KlineLimit = n
		}
	}

	cfg.PortfolioMode = domain.ModeBalanced
	if v := domain.AllocationMode(strings.ToLower(strings.TrimSpace(os.Getenv("PORTFOLIO_MODE")))); v != "" {
		if v.IsValid() {
			cfg.PortfolioMode = v
		} else {
			log.Printf("Warning: unsupported PORTFOLIO_MODE=%q, defaulting to balanced", v)
		}
	}

	cfg.Leverage = 5
	if v := strings.TrimSpace(os.Getenv("LEVERAGE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 1 && n <= 125 {
			cfg.Leverage = n
		}
	}

	cfg.DualSidePosition = true
	if v := strings.TrimSpace(os.Getenv("DUAL_SIDE_POSITION")); v != "" {
		cfg.DualSidePosition = strings.EqualFold(v, "true")
	}

	cfg.MinTradeAmount = envFloat("TRADE_MIN_AMOUNT", 100)
	cfg.MaxTradeAmount = envFloat("TRADE_MAX_AMOUNT", 500)
	cfg.MaxPosition = envFloat("MAX_POSITION", 2000)
	cfg.MaxExposureFraction = envFloat("MAX_EXPOSURE_FRACTION", 0.5)

	cfg.CycleSecs = 900
	if v := strings.TrimSpace(os.Getenv("CYCLE_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 10 {
			cfg.CycleSecs = n
		}
	}

	cfg.AnalysisTimeoutSecs = 60
	if v := strings.TrimSpace(os.Getenv("ANALYSIS_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AnalysisTimeoutSecs = n
		}
	}

	cfg.JournalDir = strings.TrimSpace(os.Getenv("JOURNAL_DIR"))
	if cfg.JournalDir == "" {
		cfg.JournalDir = "data"
	}

	cfg.HTTPPort = 8080
	if v := strings.TrimSpace(os.Getenv("HTTP_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	return cfg
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Printf("Warning: invalid %s=%q, defaulting to %v", key, v, fallback)
		return fallback
	}
	return f
}

func validInterval(interval string) bool {
	for _, si := range domain.SupportedIntervals {
		if interval == si {
			return true
		}
	}
	return false
}
