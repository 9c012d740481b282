package handler

import (
	"context"

	"turbo-umbrella/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// PositionReader queries open positions from the venue.
type PositionReader interface {
	FetchPosition(ctx context.Context, symbol string) (*domain.Position, error)
}

// TradeQuerier reads the persisted trade and decision history.
type TradeQuerier interface {
	ListTrades(ctx context.Context, symbol string, limit int) ([]domain.TradeResult, error)
	ListDecisions(ctx context.Context, symbol string, limit int) ([]domain.DecisionRecord, error)
}

// ReportSource exposes the latest cached analyst reports.
type ReportSource interface {
	LatestReports(ctx context.Context, symbols []string) ([]domain.MarketReport, error)
}

// PerformanceSource exposes the running performance totals.
type PerformanceSource interface {
	Snapshot() domain.PerformanceSnapshot
}

type Handler struct {
	tracer    trace.Tracer
	symbols   []string
	positions PositionReader
	trades    TradeQuerier
	reports   ReportSource
	perf      PerformanceSource
}

func New(tracer trace.Tracer, symbols []string, positions PositionReader, trades TradeQuerier, reports ReportSource, perf PerformanceSource) *Handler {
	return &Handler{
		tracer:    tracer,
		symbols:   symbols,
		positions: positions,
		trades:    trades,
		reports:   reports,
		perf:      perf,
	}
}

// RegisterRoutes mounts the health probe and the /api group. Any middleware
// passed in guards the /api routes only.
func (h *Handler) RegisterRoutes(r *gin.Engine, mw ...gin.HandlerFunc) {
	r.GET("/health", h.Health)

	api := r.Group("/api", mw...)
	api.GET("/positions", h.GetPositions)
	api.GET("/trades", h.GetTrades)
	api.GET("/decisions", h.GetDecisions)
	api.GET("/reports", h.GetReports)
	api.GET("/performance", h.GetPerformance)
}
