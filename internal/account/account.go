package account

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ksred/astrade-api/internal/exchange"
	"github.com/ksred/astrade-api/internal/types"
	"github.com/ksred/astrade-api/pkg/middleware"
	"github.com/ksred/astrade-api/pkg/request"
	"github.com/ksred/astrade-api/pkg/response"
)

var hundred = decimal.NewFromInt(100)

// Service exposes account state from the exchange
type Service struct {
	client *exchange.Client
}

func NewService(client *exchange.Client) *Service {
	return &Service{client: client}
}

// Summary fetches balance and positions concurrently. Either failing fails the whole summary.
func (s *Service) Summary(ctx context.Context) (*types.AccountSummary, error) {
	var (
		balance   *types.Balance
		positions []types.Position
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		balance, err = s.client.GetBalance(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		positions, err = s.client.GetPositions(gctx, "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return summarize(balance, positions), nil
}

func summarize(balance *types.Balance, positions []types.Position) *types.AccountSummary {
	pnl := decimal.Zero
	for _, p := range positions {
		pnl = pnl.Add(p.UnrealizedPnL)
	}

	ratio := decimal.Zero
	if !balance.TotalEquity.IsZero() {
		ratio = balance.UsedMargin.Div(balance.TotalEquity).Mul(hundred).Round(4)
	}

	if positions == nil {
		positions = []types.Position{}
	}
	return &types.AccountSummary{
		TotalEquity:      balance.TotalEquity,
		AvailableBalance: balance.AvailableBalance,
		UsedMargin:       balance.UsedMargin,
		FreeMargin:       balance.AvailableBalance.Sub(balance.UsedMargin),
		MarginRatio:      ratio,
		UnrealizedPnL:    pnl,
		TotalPositions:   len(positions),
		Positions:        positions,
	}
}

// GinHandlers contains HTTP handlers for account endpoints
type GinHandlers struct {
	service *Service
	client  *exchange.Client
}

func NewGinHandlers(service *Service, client *exchange.Client) *GinHandlers {
	return &GinHandlers{service: service, client: client}
}

// Register mounts the account routes on an authenticated group
func (h *GinHandlers) Register(group *gin.RouterGroup) {
	group.GET("/balance", h.BalanceHandler())
	group.GET("/positions", h.PositionsHandler())
	group.GET("/positions/history", h.PositionHistoryHandler())
	group.GET("/leverage", h.GetLeverageHandler())
	group.PATCH("/leverage", h.SetLeverageHandler())
	group.GET("/fees", h.FeesHandler())
	group.GET("/summary", h.SummaryHandler())
}

func (h *GinHandlers) BalanceHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		balance, err := h.client.GetBalance(c.Request.Context())
		response.Handle(c, balance, err)
	}
}

func (h *GinHandlers) PositionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		positions, err := h.client.GetPositions(c.Request.Context(), c.Query("symbol"))
		response.Handle(c, positions, err)
	}
}

func (h *GinHandlers) PositionHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := request.Limit(c, types.DefaultLimit)
		if err != nil {
			response.Fail(c, err)
			return
		}
		page, err := h.client.GetPositionHistory(c.Request.Context(), c.Query("symbol"), exchange.PageQuery{Limit: limit, Cursor: c.Query("cursor")})
		response.Handle(c, page, err)
	}
}

func (h *GinHandlers) GetLeverageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		leverage, err := h.client.GetLeverage(c.Request.Context(), c.Query("symbol"))
		response.Handle(c, leverage, err)
	}
}

func (h *GinHandlers) SetLeverageHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var update types.LeverageUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			response.BadRequest(c, "Invalid request body")
			return
		}
		leverage, err := h.client.SetLeverage(c.Request.Context(), update)
		if err == nil {
			log.Info().
				Str("operation", "set_leverage").
				Str("user_id", middleware.UserID(c)).
				Str("symbol", update.Symbol).
				Int("leverage", update.Leverage).
				Msg("leverage updated")
		}
		response.Handle(c, leverage, err)
	}
}

func (h *GinHandlers) FeesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		fees, err := h.client.GetFees(c.Request.Context())
		response.Handle(c, fees, err)
	}
}

func (h *GinHandlers) SummaryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := h.service.Summary(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("operation", "account_summary").Str("user_id", middleware.UserID(c)).Msg("failed to build account summary")
		}
		response.Handle(c, summary, err)
	}
}
