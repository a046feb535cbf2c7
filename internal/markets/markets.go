package markets

import (
	"github.com/gin-gonic/gin"

	"github.com/ksred/astrade-api/internal/exchange"
	"github.com/ksred/astrade-api/internal/types"
	"github.com/ksred/astrade-api/pkg/request"
	"github.com/ksred/astrade-api/pkg/response"
)

const defaultOrderBookDepth = 20

// GinHandlers contains HTTP handlers for the public market endpoints
type GinHandlers struct {
	client *exchange.Client
	cache  *Cache
}

func NewGinHandlers(client *exchange.Client, cache *Cache) *GinHandlers {
	return &GinHandlers{client: client, cache: cache}
}

func (h *GinHandlers) Register(group *gin.RouterGroup) {
	group.GET("", h.ListMarketsHandler())
	group.GET("/stats", h.AllStatsHandler())
	group.GET("/:symbol/stats", h.StatsHandler())
	group.GET("/:symbol/orderbook", h.OrderBookHandler())
	group.GET("/:symbol/trades", h.TradesHandler())
	group.GET("/:symbol/candles", h.CandlesHandler())
	group.GET("/:symbol/funding", h.FundingHandler())
}

func (h *GinHandlers) ListMarketsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		markets, err := h.cache.Markets(c.Request.Context())
		response.Handle(c, markets, err)
	}
}

func (h *GinHandlers) AllStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.client.GetAllMarketStats(c.Request.Context())
		response.Handle(c, stats, err)
	}
}

func (h *GinHandlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := h.client.GetMarketStats(c.Request.Context(), c.Param("symbol"))
		response.Handle(c, stats, err)
	}
}

func (h *GinHandlers) OrderBookHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := request.Limit(c, defaultOrderBookDepth)
		if err != nil {
			response.Fail(c, err)
			return
		}
		book, err := h.client.GetOrderBook(c.Request.Context(), c.Param("symbol"), limit)
		response.Handle(c, book, err)
	}
}

func (h *GinHandlers) TradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := request.Limit(c, types.DefaultLimit)
		if err != nil {
			response.Fail(c, err)
			return
		}
		page, err := h.client.GetTrades(c.Request.Context(), c.Param("symbol"), exchange.PageQuery{Limit: limit, Cursor: c.Query("cursor")})
		response.Handle(c, page, err)
	}
}

// CandlesHandler serves OHLCV data; interval defaults to 1h
func (h *GinHandlers) CandlesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := request.Limit(c, types.DefaultLimit)
		if err != nil {
			response.Fail(c, err)
			return
		}
		start, err := request.Int64(c, "start_time")
		if err != nil {
			response.Fail(c, err)
			return
		}
		end, err := request.Int64(c, "end_time")
		if err != nil {
			response.Fail(c, err)
			return
		}

		candles, err := h.client.GetCandles(c.Request.Context(), c.Param("symbol"), exchange.CandleQuery{
			Interval:  c.DefaultQuery("interval", "1h"),
			Limit:     limit,
			StartTime: start,
			EndTime:   end,
		})
		response.Handle(c, candles, err)
	}
}

func (h *GinHandlers) FundingHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := request.Limit(c, types.DefaultLimit)
		if err != nil {
			response.Fail(c, err)
			return
		}
		rates, err := h.client.GetFundingHistory(c.Request.Context(), c.Param("symbol"), limit)
		response.Handle(c, rates, err)
	}
}
