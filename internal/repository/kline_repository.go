package repository

import (
	"context"
	"time"

	"turbo-umbrella/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

// PgxPool is the subset of pgxpool.Pool the repositories use.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// KlineRepository keeps an audit copy of the candles each cycle traded on.
// The exchange stays authoritative; this table exists for backtesting and
// post-mortems.
type KlineRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewKlineRepository(pool PgxPool, tracer trace.Tracer) *KlineRepository {
	return &KlineRepository{pool: pool, tracer: tracer}
}

func (r *KlineRepository) UpsertKlines(ctx context.Context, symbol, interval string, klines []domain.Kline) error {
	if len(klines) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "kline-repo.upsert-klines")
	defer span.End()

	batch := &pgx.Batch{}
	for _, k := range klines {
		batch.Queue(
			`INSERT INTO klines (symbol, interval, open_time, open, high, low, close, volume)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
			     open = EXCLUDED.open,
			     high = EXCLUDED.high,
			     low = EXCLUDED.low,
			     close = EXCLUDED.close,
			     volume = EXCLUDED.volume`,
			symbol, interval, time.UnixMilli(k.OpenTime).UTC(), k.Open, k.High, k.Low, k.Close, k.Volume,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range klines {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func (r *KlineRepository) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]domain.Kline, error) {
	_, span := r.tracer.Start(ctx, "kline-repo.get-klines")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT open_time, open, high, low, close, volume
		 FROM klines
		 WHERE symbol = $1 AND interval = $2
		 ORDER BY open_time DESC
		 LIMIT $3`,
		symbol, interval, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var klines []domain.Kline
	for rows.Next() {
		var k domain.Kline
		var openTime time.Time
		if err := rows.Scan(&openTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, err
		}
		k.OpenTime = openTime.UnixMilli()
		klines = append(klines, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; callers expect oldest first.
	for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
		klines[i], klines[j] = klines[j], klines[i]
	}
	return klines, nil
}
