package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ksred/astrade-api/internal/types"
)

// countingBackend records calls and answers with a canned response
type countingBackend struct {
	calls    int
	last     Request
	response *Response
	err      error
}

func (b *countingBackend) Do(ctx context.Context, req Request) (*Response, error) {
	b.calls++
	b.last = req
	if b.err != nil {
		return nil, b.err
	}
	if b.response != nil {
		return b.response, nil
	}
	return &Response{Data: json.RawMessage(`[]`)}, nil
}

func (b *countingBackend) Mode() string { return "test" }
func (b *countingBackend) Close()       {}

func TestClient_LimitOutOfRangeNeverCallsBackend(t *testing.T) {
	ctx := context.Background()
	for _, limit := range []int{-1, 0, 1001, 5000} {
		backend := &countingBackend{}
		client := NewClient(backend)

		calls := map[string]func() error{
			"orderbook": func() error { _, err := client.GetOrderBook(ctx, "BTC-USD", limit); return err },
			"trades":    func() error { _, err := client.GetTrades(ctx, "BTC-USD", PageQuery{Limit: limit}); return err },
			"candles": func() error {
				_, err := client.GetCandles(ctx, "BTC-USD", CandleQuery{Interval: "1h", Limit: limit})
				return err
			},
			"funding":          func() error { _, err := client.GetFundingHistory(ctx, "BTC-USD", limit); return err },
			"position_history": func() error { _, err := client.GetPositionHistory(ctx, "", PageQuery{Limit: limit}); return err },
			"orders":           func() error { _, err := client.GetOrders(ctx, OrderQuery{PageQuery: PageQuery{Limit: limit}}); return err },
			"order_history":    func() error { _, err := client.GetOrderHistory(ctx, OrderQuery{PageQuery: PageQuery{Limit: limit}}); return err },
			"trade_history":    func() error { _, err := client.GetTradeHistory(ctx, "", PageQuery{Limit: limit}); return err },
		}

		for name, call := range calls {
			if err := call(); !errors.Is(err, types.ErrValidation) {
				t.Errorf("%s limit=%d: expected validation error, got %v", name, limit, err)
			}
		}
		if backend.calls != 0 {
			t.Errorf("limit=%d: backend called %d times", limit, backend.calls)
		}
	}
}

func TestClient_LimitBoundsAccepted(t *testing.T) {
	for _, limit := range []int{1, 1000} {
		backend := &countingBackend{}
		client := NewClient(backend)
		if _, err := client.GetTrades(context.Background(), "BTC-USD", PageQuery{Limit: limit}); err != nil {
			t.Errorf("limit=%d: unexpected error %v", limit, err)
		}
		if backend.calls != 1 {
			t.Errorf("limit=%d: expected one backend call, got %d", limit, backend.calls)
		}
	}
}

func TestClient_CandleValidation(t *testing.T) {
	tests := []struct {
		name  string
		query CandleQuery
	}{
		{"bad interval", CandleQuery{Interval: "2h", Limit: 10}},
		{"start after end", CandleQuery{Interval: "1h", Limit: 10, StartTime: 2000, EndTime: 1000}},
		{"negative time", CandleQuery{Interval: "1h", Limit: 10, StartTime: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &countingBackend{}
			_, err := NewClient(backend).GetCandles(context.Background(), "BTC-USD", tt.query)
			if !errors.Is(err, types.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if backend.calls != 0 {
				t.Error("backend should not be called")
			}
		})
	}
}

func TestClient_DecimalExactness(t *testing.T) {
	backend := &countingBackend{response: &Response{Data: json.RawMessage(
		`{"total_equity":"0.1","available_balance":"0.2","used_margin":"0.30000000000000004","unrealized_pnl":"1e-8","balances":[]}`,
	)}}

	balance, err := NewClient(backend).GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance() error = %v", err)
	}
	sum := balance.TotalEquity.Add(balance.AvailableBalance)
	if !sum.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("0.1 + 0.2 = %s, want exactly 0.3", sum)
	}
	if balance.UsedMargin.String() != "0.30000000000000004" {
		t.Errorf("used margin lost precision: %s", balance.UsedMargin)
	}
	if !backend.last.Auth {
		t.Error("balance must be an authenticated request")
	}
}

func TestClient_PageMapping(t *testing.T) {
	backend := &countingBackend{response: &Response{
		Data:       json.RawMessage(`[{"id":"o1","symbol":"BTC-USD","side":"buy","type":"limit","size":"1","filled_size":"0","time_in_force":"gtc","status":"open","fee":"0"}]`),
		Pagination: &Pagination{Cursor: "next", HasMore: true},
	}}

	page, err := NewClient(backend).GetOrders(context.Background(), OrderQuery{Symbol: "BTC-USD", Status: "open", PageQuery: PageQuery{Limit: 1}})
	if err != nil {
		t.Fatalf("GetOrders() error = %v", err)
	}
	if len(page.Items) != 1 || page.Cursor != "next" || !page.HasMore {
		t.Errorf("unexpected page %+v", page)
	}
	if backend.last.Query.Get("symbol") != "BTC-USD" || backend.last.Query.Get("status") != "open" {
		t.Errorf("filters not forwarded: %v", backend.last.Query)
	}
}

func TestClient_InvalidOrderStatusFilter(t *testing.T) {
	backend := &countingBackend{}
	_, err := NewClient(backend).GetOrders(context.Background(), OrderQuery{Status: "done", PageQuery: PageQuery{Limit: 10}})
	if !errors.Is(err, types.ErrValidation) || backend.calls != 0 {
		t.Errorf("expected validation error without backend call, got %v (%d calls)", err, backend.calls)
	}
}

func TestClient_CreateOrderValidatesFirst(t *testing.T) {
	backend := &countingBackend{}
	client := NewClient(backend)

	_, err := client.CreateOrder(context.Background(), &types.OrderRequest{
		Symbol: "BTC-USD", Side: "hold", Type: types.OrderTypeMarket, Size: decimal.RequireFromString("1"),
	})
	if !errors.Is(err, types.ErrValidation) || backend.calls != 0 {
		t.Fatalf("expected validation error without backend call, got %v", err)
	}
}

func TestClient_PropagatesBackendErrors(t *testing.T) {
	backend := &countingBackend{err: &APIError{Status: http.StatusBadRequest, Message: "bad"}}
	_, err := NewClient(backend).GetMarkets(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest {
		t.Fatalf("expected APIError 400, got %v", err)
	}
}
