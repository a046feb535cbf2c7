package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ksred/astrade-api/internal/types"
)

// Client exposes one typed operation per Extended Exchange capability
type Client struct {
	backend Backend
}

// NewClient wraps a backend; construct one per process and inject it
func NewClient(backend Backend) *Client {
	return &Client{backend: backend}
}

// Mode reports "live" or "mock"
func (c *Client) Mode() string {
	return c.backend.Mode()
}

func (c *Client) Close() {
	c.backend.Close()
}

// PageQuery is a cursor page request
type PageQuery struct {
	Limit  int
	Cursor string
}

func (q PageQuery) values() (url.Values, error) {
	if err := types.ValidateLimit(q.Limit); err != nil {
		return nil, err
	}
	v := url.Values{}
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.Cursor != "" {
		v.Set("cursor", q.Cursor)
	}
	return v, nil
}

// OrderQuery filters order listings
type OrderQuery struct {
	Symbol string
	Status string
	PageQuery
}

func (q OrderQuery) values() (url.Values, error) {
	v, err := q.PageQuery.values()
	if err != nil {
		return nil, err
	}
	if q.Status != "" {
		if !types.OrderStatus(q.Status).Valid() {
			return nil, types.NewValidationError("status", "must be one of pending, open, filled, cancelled, rejected")
		}
		v.Set("status", q.Status)
	}
	if q.Symbol != "" {
		v.Set("symbol", q.Symbol)
	}
	return v, nil
}

// CandleQuery selects a candle range; times are unix milliseconds
type CandleQuery struct {
	Interval  string
	Limit     int
	StartTime int64
	EndTime   int64
}

func (q CandleQuery) values() (url.Values, error) {
	if !types.CandleIntervals[q.Interval] {
		return nil, types.NewValidationError("interval", "must be one of 1m, 5m, 15m, 30m, 1h, 4h, 1d")
	}
	if err := types.ValidateLimit(q.Limit); err != nil {
		return nil, err
	}
	if q.StartTime < 0 || q.EndTime < 0 {
		return nil, types.NewValidationError("start_time", "must not be negative")
	}
	if q.StartTime > 0 && q.EndTime > 0 && q.StartTime > q.EndTime {
		return nil, types.NewValidationError("start_time", "must not be after end_time")
	}
	v := url.Values{}
	v.Set("interval", q.Interval)
	v.Set("limit", strconv.Itoa(q.Limit))
	if q.StartTime > 0 {
		v.Set("start_time", strconv.FormatInt(q.StartTime, 10))
	}
	if q.EndTime > 0 {
		v.Set("end_time", strconv.FormatInt(q.EndTime, 10))
	}
	return v, nil
}

func (c *Client) GetMarkets(ctx context.Context) ([]types.Market, error) {
	markets, _, err := call[[]types.Market](ctx, c.backend, Request{Method: http.MethodGet, Path: "/markets"})
	return markets, err
}

func (c *Client) GetAllMarketStats(ctx context.Context) ([]types.MarketStats, error) {
	stats, _, err := call[[]types.MarketStats](ctx, c.backend, Request{Method: http.MethodGet, Path: "/markets/stats"})
	return stats, err
}

func (c *Client) GetMarketStats(ctx context.Context, symbol string) (*types.MarketStats, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	stats, _, err := call[types.MarketStats](ctx, c.backend, Request{
		Method: http.MethodGet,
		Path:   marketPath(symbol, "stats"),
	})
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Client) GetOrderBook(ctx context.Context, symbol string, limit int) (*types.OrderBook, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := types.ValidateLimit(limit); err != nil {
		return nil, err
	}
	book, _, err := call[types.OrderBook](ctx, c.backend, Request{
		Method: http.MethodGet,
		Path:   marketPath(symbol, "orderbook"),
		Query:  url.Values{"limit": {strconv.Itoa(limit)}},
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func (c *Client) GetTrades(ctx context.Context, symbol string, page PageQuery) (*types.Page[types.Trade], error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	q, err := page.values()
	if err != nil {
		return nil, err
	}
	return callPage[types.Trade](ctx, c.backend, Request{Method: http.MethodGet, Path: marketPath(symbol, "trades"), Query: q})
}

func (c *Client) GetCandles(ctx context.Context, symbol string, query CandleQuery) ([]types.Candle, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	q, err := query.values()
	if err != nil {
		return nil, err
	}
	candles, _, err := call[[]types.Candle](ctx, c.backend, Request{Method: http.MethodGet, Path: marketPath(symbol, "candles"), Query: q})
	return candles, err
}

func (c *Client) GetFundingHistory(ctx context.Context, symbol string, limit int) ([]types.FundingRate, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, err
	}
	if err := types.ValidateLimit(limit); err != nil {
		return nil, err
	}
	rates, _, err := call[[]types.FundingRate](ctx, c.backend, Request{
		Method: http.MethodGet,
		Path:   marketPath(symbol, "funding"),
		Query:  url.Values{"limit": {strconv.Itoa(limit)}},
	})
	return rates, err
}

func (c *Client) GetBalance(ctx context.Context) (*types.Balance, error) {
	balance, _, err := call[types.Balance](ctx, c.backend, Request{Method: http.MethodGet, Path: "/account", Auth: true})
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (c *Client) GetPositions(ctx context.Context, symbol string) ([]types.Position, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	positions, _, err := call[[]types.Position](ctx, c.backend, Request{Method: http.MethodGet, Path: "/positions", Query: q, Auth: true})
	return positions, err
}

func (c *Client) GetPositionHistory(ctx context.Context, symbol string, page PageQuery) (*types.Page[types.PositionHistory], error) {
	q, err := page.values()
	if err != nil {
		return nil, err
	}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	return callPage[types.PositionHistory](ctx, c.backend, Request{Method: http.MethodGet, Path: "/positions/history", Query: q, Auth: true})
}

func (c *Client) GetLeverage(ctx context.Context, symbol string) (*types.Leverage, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	lev, _, err := call[types.Leverage](ctx, c.backend, Request{Method: http.MethodGet, Path: "/account/leverage", Query: q, Auth: true})
	if err != nil {
		return nil, err
	}
	return &lev, nil
}

func (c *Client) SetLeverage(ctx context.Context, update types.LeverageUpdate) (*types.Leverage, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	lev, _, err := call[types.Leverage](ctx, c.backend, Request{Method: http.MethodPatch, Path: "/account/leverage", Body: update, Auth: true})
	if err != nil {
		return nil, err
	}
	return &lev, nil
}

func (c *Client) GetFees(ctx context.Context) (*types.Fees, error) {
	fees, _, err := call[types.Fees](ctx, c.backend, Request{Method: http.MethodGet, Path: "/account/fees", Auth: true})
	if err != nil {
		return nil, err
	}
	return &fees, nil
}

// CreateOrder places a new order. Not idempotent: client_id is forwarded but
// deduplication is left to the exchange.
func (c *Client) CreateOrder(ctx context.Context, order *types.OrderRequest) (*types.Order, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	created, _, err := call[types.Order](ctx, c.backend, Request{Method: http.MethodPost, Path: "/orders", Body: order, Auth: true})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) UpdateOrder(ctx context.Context, orderID string, update types.OrderUpdate) (*types.Order, error) {
	if orderID == "" {
		return nil, types.NewValidationError("order_id", "is required")
	}
	if err := update.Validate(); err != nil {
		return nil, err
	}
	order, _, err := call[types.Order](ctx, c.backend, Request{
		Method: http.MethodPatch,
		Path:   "/orders/" + url.PathEscape(orderID),
		Body:   update,
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) (*types.CancelResult, error) {
	if orderID == "" {
		return nil, types.NewValidationError("order_id", "is required")
	}
	result, _, err := call[types.CancelResult](ctx, c.backend, Request{
		Method: http.MethodDelete,
		Path:   "/orders/" + url.PathEscape(orderID),
		Auth:   true,
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CancelAllOrders(ctx context.Context, symbol string) (*types.CancelResult, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	result, _, err := call[types.CancelResult](ctx, c.backend, Request{Method: http.MethodDelete, Path: "/orders", Query: q, Auth: true})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetOrders(ctx context.Context, query OrderQuery) (*types.Page[types.Order], error) {
	q, err := query.values()
	if err != nil {
		return nil, err
	}
	return callPage[types.Order](ctx, c.backend, Request{Method: http.MethodGet, Path: "/orders", Query: q, Auth: true})
}

func (c *Client) GetOrderHistory(ctx context.Context, query OrderQuery) (*types.Page[types.Order], error) {
	q, err := query.values()
	if err != nil {
		return nil, err
	}
	return callPage[types.Order](ctx, c.backend, Request{Method: http.MethodGet, Path: "/orders/history", Query: q, Auth: true})
}

func (c *Client) GetTradeHistory(ctx context.Context, symbol string, page PageQuery) (*types.Page[types.Fill], error) {
	q, err := page.values()
	if err != nil {
		return nil, err
	}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	return callPage[types.Fill](ctx, c.backend, Request{Method: http.MethodGet, Path: "/trades", Query: q, Auth: true})
}

func call[T any](ctx context.Context, backend Backend, req Request) (T, *Pagination, error) {
	var out T
	resp, err := backend.Do(ctx, req)
	if err != nil {
		return out, nil, err
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return out, resp.Pagination, nil
	}
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, nil, fmt.Errorf("decode %s %s: %w", req.Method, req.Path, err)
	}
	return out, resp.Pagination, nil
}

func callPage[T any](ctx context.Context, backend Backend, req Request) (*types.Page[T], error) {
	items, pagination, err := call[[]T](ctx, backend, req)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	page := &types.Page[T]{Items: items}
	if pagination != nil {
		page.Cursor = pagination.Cursor
		page.HasMore = pagination.HasMore
	}
	return page, nil
}

func validateSymbol(symbol string) error {
	if symbol == "" {
		return types.NewValidationError("symbol", "is required")
	}
	return nil
}

func marketPath(symbol, resource string) string {
	return "/markets/" + url.PathEscape(symbol) + "/" + resource
}
