package repository

import (
	"context"
	"time"

	"turbo-umbrella/internal/domain"

	"go.opentelemetry.io/otel/trace"
)

// TradeRepository persists executed legs and risk decisions alongside the
// JSONL journal. The database copy powers the HTTP API queries.
type TradeRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewTradeRepository(pool PgxPool, tracer trace.Tracer) *TradeRepository {
	return &TradeRepository{pool: pool, tracer: tracer}
}

func (r *TradeRepository) SaveTrade(ctx context.Context, result domain.TradeResult) error {
	_, span := r.tracer.Start(ctx, "trade-repo.save-trade")
	defer span.End()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO trades (symbol, action, price, quantity, realized_pnl, reason, order_details, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.Symbol, string(result.Action), result.Price, result.Quantity,
		result.RealizedPnL, result.Reason, result.OrderDetails,
		time.UnixMilli(result.Timestamp).UTC(),
	)
	return err
}

func (r *TradeRepository) ListTrades(ctx context.Context, symbol string, limit int) ([]domain.TradeResult, error) {
	_, span := r.tracer.Start(ctx, "trade-repo.list-trades")
	defer span.End()

	query := `SELECT symbol, action, price, quantity, realized_pnl, reason, order_details, executed_at
	          FROM trades`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = $1 ORDER BY executed_at DESC LIMIT $2`
		args = append(args, symbol, limit)
	} else {
		query += ` ORDER BY executed_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.TradeResult
	for rows.Next() {
		var t domain.TradeResult
		var action string
		var executedAt time.Time
		if err := rows.Scan(&t.Symbol, &action, &t.Price, &t.Quantity,
			&t.RealizedPnL, &t.Reason, &t.OrderDetails, &executedAt); err != nil {
			return nil, err
		}
		t.Action = domain.TradeAction(action)
		t.Timestamp = executedAt.UnixMilli()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (r *TradeRepository) SaveDecision(ctx context.Context, record domain.DecisionRecord) error {
	_, span := r.tracer.Start(ctx, "trade-repo.save-decision")
	defer span.End()

	var positionSide *string
	var positionSize *float64
	if record.Position != nil {
		side := string(record.Position.Side)
		positionSide = &side
		positionSize = &record.Position.Size
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO decisions (symbol, signal, confidence, reason, position_side, position_size, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		record.Symbol, string(record.Decision.Signal), string(record.Decision.Confidence),
		record.Decision.Reason, positionSide, positionSize,
		time.UnixMilli(record.Timestamp).UTC(),
	)
	return err
}

func (r *TradeRepository) ListDecisions(ctx context.Context, symbol string, limit int) ([]domain.DecisionRecord, error) {
	_, span := r.tracer.Start(ctx, "trade-repo.list-decisions")
	defer span.End()

	query := `SELECT symbol, signal, confidence, reason, position_side, position_size, decided_at
	          FROM decisions`
	args := []any{}
	if symbol != "" {
		query += ` WHERE symbol = $1 ORDER BY decided_at DESC LIMIT $2`
		args = append(args, symbol, limit)
	} else {
		query += ` ORDER BY decided_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.DecisionRecord
	for rows.Next() {
		var rec domain.DecisionRecord
		var signal, confidence string
		var positionSide *string
		var positionSize *float64
		var decidedAt time.Time
		if err := rows.Scan(&rec.Symbol, &signal, &confidence, &rec.Decision.Reason,
			&positionSide, &positionSize, &decidedAt); err != nil {
			return nil, err
		}
		rec.Decision.Symbol = rec.Symbol
		rec.Decision.Signal = domain.Signal(signal)
		rec.Decision.Confidence = domain.Confidence(confidence)
		rec.Timestamp = decidedAt.UnixMilli()
		if positionSide != nil && positionSize != nil {
			rec.Position = &domain.Position{
				Symbol: rec.Symbol,
				Side:   domain.PositionSide(*positionSide),
				Size:   *positionSize,
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
