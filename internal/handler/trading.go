package handler

import (
	"net/http"
	"strconv"
	"strings"

	"turbo-umbrella/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const defaultListLimit = 100

// GetPositions godoc
// @Summary      Get open positions
// @Description  Queries the exchange for the current position on every traded symbol
// @Tags         trading
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/positions [get]
func (h *Handler) GetPositions(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-positions")
	defer span.End()

	positions := make([]*domain.Position, 0, len(h.symbols))
	for _, symbol := range h.symbols {
		pos, err := h.positions.FetchPosition(ctx, symbol)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		if pos != nil {
			positions = append(positions, pos)
		}
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

// GetTrades godoc
// @Summary      Get trade history
// @Description  Returns executed trades, newest first
// @Tags         trading
// @Produce      json
// @Param        symbol  query  string  false  "Filter by symbol (e.g., BTCUSDT)"
// @Param        limit   query  int     false  "Number of trades (default 100, max 500)"  default(100)
// @Success      200  {object}  map[string]interface{}
// @Router       /api/trades [get]
func (h *Handler) GetTrades(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-trades")
	defer span.End()

	if h.trades == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade history unavailable"})
		return
	}

	symbol := strings.ToUpper(c.Query("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	trades, err := h.trades.ListTrades(ctx, symbol, listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// GetDecisions godoc
// @Summary      Get decision history
// @Description  Returns the risk-stage verdicts, newest first
// @Tags         trading
// @Produce      json
// @Param        symbol  query  string  false  "Filter by symbol (e.g., BTCUSDT)"
// @Param        limit   query  int     false  "Number of decisions (default 100, max 500)"  default(100)
// @Success      200  {object}  map[string]interface{}
// @Router       /api/decisions [get]
func (h *Handler) GetDecisions(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-decisions")
	defer span.End()

	if h.trades == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade history unavailable"})
		return
	}

	symbol := strings.ToUpper(c.Query("symbol"))
	span.SetAttributes(attribute.String("symbol", symbol))

	decisions, err := h.trades.ListDecisions(ctx, symbol, listLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

// GetReports godoc
// @Summary      Get latest analyst reports
// @Description  Returns the most recent cached market analysis per symbol
// @Tags         trading
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/reports [get]
func (h *Handler) GetReports(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-reports")
	defer span.End()

	if h.reports == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report cache unavailable"})
		return
	}

	reports, err := h.reports.LatestReports(ctx, h.symbols)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// GetPerformance godoc
// @Summary      Get performance totals
// @Description  Returns realized PnL, win/loss counts and drawdown since first start
// @Tags         trading
// @Produce      json
// @Success      200  {object}  domain.PerformanceSnapshot
// @Router       /api/performance [get]
func (h *Handler) GetPerformance(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-performance")
	defer span.End()

	c.JSON(http.StatusOK, h.perf.Snapshot())
}

func listLimit(c *gin.Context) int {
	limit := defaultListLimit
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return limit
}
