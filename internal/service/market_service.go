package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"turbo-umbrella/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

const (
	priceCacheTTL  = 10 * time.Second
	reportCacheTTL = 30 * time.Minute
)

// MarketFetcher is the exchange surface the service reads market data from.
type MarketFetcher interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error)
	FetchPrice(ctx context.Context, symbol string) (float64, error)
}

// KlineStore keeps the audit copy of fetched candles.
type KlineStore interface {
	UpsertKlines(ctx context.Context, symbol, interval string, klines []domain.Kline) error
}

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// MarketService fronts the exchange for the pipeline. The exchange stays
// authoritative for klines; the database copy is written best-effort and
// prices get a short Redis TTL to absorb bursts within one cycle.
type MarketService struct {
	tracer  trace.Tracer
	fetcher MarketFetcher
	store   KlineStore
	redis   RedisClient
}

func NewMarketService(tracer trace.Tracer, fetcher MarketFetcher, store KlineStore, redisClient RedisClient) *MarketService {
	return &MarketService{
		tracer:  tracer,
		fetcher: fetcher,
		store:   store,
		redis:   redisClient,
	}
}

// Klines fetches the live window and persists it for audit. A failed upsert
// is logged, never surfaced; the trading path does not depend on Postgres.
func (s *MarketService) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.klines")
	defer span.End()

	klines, err := s.fetcher.FetchKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		if err := s.store.UpsertKlines(ctx, symbol, interval, klines); err != nil {
			log.Printf("kline upsert for %s failed: %v", symbol, err)
		}
	}
	return klines, nil
}

// Price returns the latest price, serving from Redis within the TTL.
func (s *MarketService) Price(ctx context.Context, symbol string) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.price")
	defer span.End()

	key := "price:" + symbol
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, key).Result()
		if err == nil {
			price, perr := strconv.ParseFloat(cached, 64)
			if perr == nil {
				return price, nil
			}
		} else if err != redis.Nil {
			log.Printf("redis cache read error: %v", err)
		}
	}

	price, err := s.fetcher.FetchPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("price for %s: %w", symbol, err)
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, key, strconv.FormatFloat(price, 'f', -1, 64), priceCacheTTL).Err(); err != nil {
			log.Printf("redis cache write error for %s: %v", symbol, err)
		}
	}
	return price, nil
}

// StoreReport caches the latest analyst report for a symbol. Best-effort: a
// missing Redis client or a write failure only loses the cached copy.
func (s *MarketService) StoreReport(ctx context.Context, report domain.MarketReport) error {
	ctx, span := s.tracer.Start(ctx, "market-service.store-report")
	defer span.End()

	if s.redis == nil {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report for %s: %w", report.Symbol, err)
	}
	return s.redis.Set(ctx, "report:"+report.Symbol, payload, reportCacheTTL).Err()
}

// LatestReports returns the cached analyst reports for the given symbols.
// Symbols without a cached report are skipped.
func (s *MarketService) LatestReports(ctx context.Context, symbols []string) ([]domain.MarketReport, error) {
	ctx, span := s.tracer.Start(ctx, "market-service.latest-reports")
	defer span.End()

	if s.redis == nil {
		return nil, nil
	}

	reports := make([]domain.MarketReport, 0, len(symbols))
	for _, symbol := range symbols {
		cached, err := s.redis.Get(ctx, "report:"+symbol).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("report for %s: %w", symbol, err)
		}
		var report domain.MarketReport
		if err := json.Unmarshal([]byte(cached), &report); err != nil {
			log.Printf("corrupt cached report for %s: %v", symbol, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}
