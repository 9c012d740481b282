package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"turbo-umbrella/internal/agent"
	"turbo-umbrella/internal/allocator"
	"turbo-umbrella/internal/bot"
	"turbo-umbrella/internal/cache"
	"turbo-umbrella/internal/config"
	"turbo-umbrella/internal/domain"
	"turbo-umbrella/internal/engine"
	"turbo-umbrella/internal/exchange"
	"turbo-umbrella/internal/handler"
	"turbo-umbrella/internal/journal"
	"turbo-umbrella/internal/llm"
	"turbo-umbrella/internal/pipeline"
	"turbo-umbrella/internal/repository"
	"turbo-umbrella/internal/service"
	"turbo-umbrella/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	_ "turbo-umbrella/docs"
)

var (
	loadEnvFunc            = godotenv.Load
	loadConfigFunc         = config.Load
	initTracerFunc         = tracing.InitTracer
	initRedisFunc          = cache.InitRedis
	openPoolFunc           = pgxpool.New
	startTelegramBotFunc   = bot.StartTelegramBot
	prepareVenueFunc       = prepareVenue
	startTradingFunc       = func(ctx context.Context, orch *pipeline.Orchestrator, every time.Duration, quit chan<- os.Signal) {
		go func() {
			err := orch.Run(ctx, every)
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("trading loop exited: %v", err)
				quit <- syscall.SIGTERM
			}
		}()
	}
	newRouterFunc          = gin.Default
	setupSignalNotify      = signal.Notify
	waitForSignalFunc      = func(quit <-chan os.Signal) { <-quit }
	startHTTPServerFunc    = func(srv *http.Server) error { return srv.ListenAndServe() }
	shutdownHTTPServerFunc = func(srv *http.Server, ctx context.Context) error { return srv.Shutdown(ctx) }
)

// @title           Turbo Umbrella API
// @version         1.0
// @description     LLM-driven perpetual futures trading service with OpenTelemetry tracing.

// @host      localhost:8080
// @BasePath  /
func main() {
	loadEnvFunc()

	cfg := loadConfigFunc()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init tracing
	tp, tracer, err := initTracerFunc(ctx)
	if err != nil {
		log.Fatalf("failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("error shutting down tracer provider: %v", err)
		}
	}()

	// Init Redis and Postgres
	os.Setenv("REDIS_URL", cfg.RedisURL)
	initRedisFunc(ctx)
	defer cache.Close()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = openPoolFunc(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: postgres unavailable, continuing without persistence: %v", err)
			pool = nil
		} else {
			defer pool.Close()
		}
	}

	// Exchange client and market data
	binance := exchange.NewClient(cfg.BinanceAPIKey, cfg.BinanceAPISecret, cfg.BinanceTestnet, cfg.RecvWindowMs, tracer)

	var klineStore service.KlineStore
	var tradeStore pipeline.TradeStore
	var tradeQuerier handler.TradeQuerier
	if pool != nil {
		klineStore = repository.NewKlineRepository(pool, tracer)
		tradeRepo := repository.NewTradeRepository(pool, tracer)
		tradeStore = tradeRepo
		tradeQuerier = tradeRepo
	}

	var redisClient service.RedisClient
	if cache.Client != nil {
		redisClient = cache.Client
	}
	market := service.NewMarketService(tracer, binance, klineStore, redisClient)

	// LLM agents
	chat := llm.NewDeepSeekClient(cfg.DeepSeekAPIKey, cfg.DeepSeekBaseURL)
	completer := llm.NewCompleter(chat, cfg.LLMModel, time.Duration(cfg.AnalysisTimeoutSecs)*time.Second, tracer)
	analyst := agent.NewAnalyst(completer, tracer)
	strategist := agent.NewStrategist(completer, tracer)
	riskManager := agent.NewRiskManager(cfg.MinTradeAmount, cfg.MaxTradeAmount, cfg.MaxPosition, cfg.MaxExposureFraction)

	portfolio := allocator.New(cfg.Symbols, cfg.PortfolioMode)
	executor := engine.NewExecutor(binance, tracer)

	// Local journal and performance totals
	jour, err := journal.New(cfg.JournalDir)
	if err != nil {
		log.Fatalf("failed to open journal: %v", err)
	}
	perf, err := journal.NewTracker(cfg.JournalDir)
	if err != nil {
		log.Fatalf("failed to load performance totals: %v", err)
	}

	// Venue preflight: verify credentials and apply position mode and leverage
	// before the first cycle. An auth failure here fails every signed request
	// later, so it is fatal.
	prepareVenueFunc(ctx, binance, cfg)

	// Telegram bot
	os.Setenv("TELEGRAM_BOT_TOKEN", cfg.TelegramBotToken)
	notifier := startTelegramBotFunc(cfg.Symbols, binance, perf, market)

	orch := pipeline.NewOrchestrator(
		pipeline.Config{
			Symbols:      cfg.Symbols,
			Interval:     cfg.Interval,
			KlineLimit:   cfg.KlineLimit,
			CycleTimeout: time.Duration(cfg.CycleSecs) * time.Second,
		},
		tracer, market, binance, analyst, portfolio, strategist, riskManager,
		executor, jour, perf, tradeStore, notifier,
	)

	quit := make(chan os.Signal, 1)
	setupSignalNotify(quit, syscall.SIGINT, syscall.SIGTERM)

	startTradingFunc(ctx, orch, time.Duration(cfg.CycleSecs)*time.Second, quit)

	// HTTP API
	h := handler.New(tracer, cfg.Symbols, binance, tradeQuerier, market, perf)

	r := newRouterFunc()
	r.Use(otelgin.Middleware("turbo-umbrella"))

	h.RegisterRoutes(r, handler.APIKeyAuth(cfg.HTTPAPIKey))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.HTTPPort),
		Handler: r,
	}

	go func() {
		if err := startHTTPServerFunc(srv); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	waitForSignalFunc(quit)
	log.Println("Shutting down...")

	cancel()

	if err := perf.Persist(); err != nil {
		log.Printf("persist performance on shutdown: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := shutdownHTTPServerFunc(srv, shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exiting")
}

// prepareVenue probes the venue with a signed call and configures hedge mode
// and leverage for every traded symbol.
func prepareVenue(ctx context.Context, binance *exchange.Client, cfg *config.Config) {
	if len(cfg.Symbols) > 0 {
		if _, err := binance.FetchPrice(ctx, cfg.Symbols[0]); err != nil {
			log.Printf("Warning: price probe for %s failed: %v", cfg.Symbols[0], err)
		}
	}

	if _, err := binance.FetchAccount(ctx); err != nil {
		if errors.Is(err, domain.ErrAuth) {
			log.Fatalf("exchange rejected credentials: %v", err)
		}
		log.Printf("Warning: account probe failed: %v", err)
	}

	if err := binance.SetDualSidePosition(ctx, cfg.DualSidePosition); err != nil {
		if errors.Is(err, domain.ErrAuth) {
			log.Fatalf("exchange rejected credentials: %v", err)
		}
		log.Printf("Warning: set position mode: %v", err)
	}

	for _, symbol := range cfg.Symbols {
		if err := binance.SetLeverage(ctx, symbol, cfg.Leverage); err != nil {
			if errors.Is(err, domain.ErrAuth) {
				log.Fatalf("exchange rejected credentials: %v", err)
			}
			log.Printf("Warning: set leverage for %s: %v", symbol, err)
		}
	}
}
