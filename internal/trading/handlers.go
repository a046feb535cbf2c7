package trading

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/ksred/astrade-api/internal/exchange"
	"github.com/ksred/astrade-api/internal/types"
	"github.com/ksred/astrade-api/pkg/middleware"
	"github.com/ksred/astrade-api/pkg/request"
	"github.com/ksred/astrade-api/pkg/response"
)

// GinHandlers contains HTTP handlers for trading endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for trading endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{service: service}
}

// Register mounts the order routes on an authenticated group
func (h *GinHandlers) Register(orders *gin.RouterGroup) {
	orders.POST("", h.CreateOrderHandler())
	orders.GET("", h.GetOrdersHandler())
	orders.DELETE("", h.CancelAllOrdersHandler())
	orders.GET("/history", h.GetOrderHistoryHandler())
	orders.GET("/trades", h.GetTradesHandler())
	orders.GET("/submissions", h.GetSubmissionsHandler())
	orders.POST("/twap", h.CreateTWAPHandler())
	orders.PATCH("/:order_id", h.UpdateOrderHandler())
	orders.DELETE("/:order_id", h.CancelOrderHandler())
}

// CreateOrderHandler handles POST requests to create new orders.
// The Idempotency-Key header is optional.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateOrder(c.Request.Context(), middleware.UserID(c), &req, c.GetHeader("Idempotency-Key"))
		if errors.Is(err, ErrIdempotencyConflict) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) CreateTWAPHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.OrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		order, err := h.service.CreateTWAP(c.Request.Context(), middleware.UserID(c), &req, c.GetHeader("Idempotency-Key"))
		if errors.Is(err, ErrIdempotencyConflict) {
			response.Conflict(c, err.Error())
			return
		}
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) UpdateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var update types.OrderUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		order, err := h.service.UpdateOrder(c.Request.Context(), c.Param("order_id"), update)
		response.Handle(c, order, err)
	}
}

func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.CancelOrder(c.Request.Context(), c.Param("order_id"))
		response.Handle(c, result, err)
	}
}

// CancelAllOrdersHandler cancels every open order, optionally for one symbol
func (h *GinHandlers) CancelAllOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := h.service.CancelAllOrders(c.Request.Context(), c.Query("symbol"))
		response.Handle(c, result, err)
	}
}

func (h *GinHandlers) GetOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		query, err := orderQuery(c)
		if err != nil {
			response.Fail(c, err)
			return
		}
		page, err := h.service.GetOrders(c.Request.Context(), query)
		response.Handle(c, page, err)
	}
}

func (h *GinHandlers) GetOrderHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		query, err := orderQuery(c)
		if err != nil {
			response.Fail(c, err)
			return
		}
		page, err := h.service.GetOrderHistory(c.Request.Context(), query)
		response.Handle(c, page, err)
	}
}

func (h *GinHandlers) GetTradesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := request.Limit(c, types.DefaultLimit)
		if err != nil {
			response.Fail(c, err)
			return
		}
		page, err := h.service.GetTrades(c.Request.Context(), c.Query("symbol"), exchange.PageQuery{Limit: limit, Cursor: c.Query("cursor")})
		response.Handle(c, page, err)
	}
}

func (h *GinHandlers) GetSubmissionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := request.Limit(c, 50)
		if err != nil {
			response.Fail(c, err)
			return
		}
		subs, err := h.service.Submissions(c.Request.Context(), middleware.UserID(c), limit)
		response.Handle(c, subs, err)
	}
}

func orderQuery(c *gin.Context) (exchange.OrderQuery, error) {
	limit, err := request.Limit(c, types.DefaultLimit)
	if err != nil {
		return exchange.OrderQuery{}, err
	}
	return exchange.OrderQuery{
		Symbol:    c.Query("symbol"),
		Status:    c.Query("status"),
		PageQuery: exchange.PageQuery{Limit: limit, Cursor: c.Query("cursor")},
	}, nil
}
