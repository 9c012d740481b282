package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"turbo-umbrella/internal/bot"
	"turbo-umbrella/internal/config"
	"turbo-umbrella/internal/domain"
	"turbo-umbrella/internal/exchange"
	"turbo-umbrella/internal/pipeline"

	"github.com/gin-gonic/gin"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMainBootstrap(t *testing.T) {
	gin.SetMode(gin.TestMode)
	restore := stubTraderDeps(t)
	defer restore()

	done := make(chan struct{})
	go func() {
		main()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("main did not exit")
	}
}

func stubTraderDeps(t *testing.T) func() {
	t.Helper()

	origLoadEnv := loadEnvFunc
	origLoadConfig := loadConfigFunc
	origInitTracer := initTracerFunc
	origInitRedis := initRedisFunc
	origStartTelegram := startTelegramBotFunc
	origPrepareVenue := prepareVenueFunc
	origStartTrading := startTradingFunc
	origNewRouter := newRouterFunc
	origSetupSignal := setupSignalNotify
	origWait := waitForSignalFunc
	origStartHTTP := startHTTPServerFunc
	origShutdownHTTP := shutdownHTTPServerFunc

	journalDir := t.TempDir()

	loadEnvFunc = func(...string) error { return nil }
	loadConfigFunc = func() *config.Config {
		return &config.Config{
			Symbols:       []string{"BTCUSDT"},
			Interval:      "15m",
			KlineLimit:    100,
			PortfolioMode: domain.ModeBalanced,
			CycleSecs:     900,
			JournalDir:    journalDir,
			HTTPPort:      8080,
			RecvWindowMs:  5000,
		}
	}
	initTracerFunc = func(ctx context.Context) (*sdktrace.TracerProvider, trace.Tracer, error) {
		tp := sdktrace.NewTracerProvider()
		return tp, tp.Tracer("test"), nil
	}
	initRedisFunc = func(context.Context) {}
	startTelegramBotFunc = func([]string, bot.PositionReader, bot.PerformanceSource, bot.ReportSource) *bot.Bot { return nil }
	prepareVenueFunc = func(context.Context, *exchange.Client, *config.Config) {}
	startTradingFunc = func(context.Context, *pipeline.Orchestrator, time.Duration, chan<- os.Signal) {}
	newRouterFunc = func(...gin.OptionFunc) *gin.Engine { return gin.New() }
	setupSignalNotify = func(c chan<- os.Signal, sig ...os.Signal) {}
	waitForSignalFunc = func(<-chan os.Signal) {}
	startHTTPServerFunc = func(*http.Server) error { return http.ErrServerClosed }
	shutdownHTTPServerFunc = func(*http.Server, context.Context) error { return nil }

	return func() {
		loadEnvFunc = origLoadEnv
		loadConfigFunc = origLoadConfig
		initTracerFunc = origInitTracer
		initRedisFunc = origInitRedis
		startTelegramBotFunc = origStartTelegram
		prepareVenueFunc = origPrepareVenue
		startTradingFunc = origStartTrading
		newRouterFunc = origNewRouter
		setupSignalNotify = origSetupSignal
		waitForSignalFunc = origWait
		startHTTPServerFunc = origStartHTTP
		shutdownHTTPServerFunc = origShutdownHTTP
	}
}
