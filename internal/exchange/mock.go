package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ksred/astrade-api/internal/types"
)

// mockEpoch anchors every synthetic timestamp so payloads are reproducible
var mockEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

const (
	mockMaxBookLevels = 20
	mockMaxTrades     = 50
	mockMaxCandles    = 500
	mockMaxFunding    = 200
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

type mockInstrument struct {
	market types.Market
	stats  types.MarketStats
}

var mockInstruments = []mockInstrument{
	{
		market: types.Market{
			Symbol: "BTC-USD", DisplayName: "BTC/USD", BaseAsset: "BTC", QuoteAsset: "USD", Status: "active",
			TickSize: d("0.1"), StepSize: d("0.001"), MinOrderSize: d("0.001"), MaxOrderSize: d("100.0"),
			MakerFee: d("0.0002"), TakerFee: d("0.0005"), FundingInterval: 8, MaxLeverage: 20, IsActive: true,
		},
		stats: types.MarketStats{
			Symbol: "BTC-USD", LastPrice: d("95420.5"), PriceChange24h: d("1250.3"), PriceChangePercent: d("1.33"),
			High24h: d("96100.0"), Low24h: d("93800.2"), Volume24h: d("12500.75"),
			MarkPrice: d("95425.1"), IndexPrice: d("95422.8"), FundingRate: d("0.0001"),
		},
	},
	{
		market: types.Market{
			Symbol: "ETH-USD", DisplayName: "ETH/USD", BaseAsset: "ETH", QuoteAsset: "USD", Status: "active",
			TickSize: d("0.01"), StepSize: d("0.01"), MinOrderSize: d("0.01"), MaxOrderSize: d("1000"),
			MakerFee: d("0.0002"), TakerFee: d("0.0005"), FundingInterval: 8, MaxLeverage: 20, IsActive: true,
		},
		stats: types.MarketStats{
			Symbol: "ETH-USD", LastPrice: d("3456.78"), PriceChange24h: d("45.67"), PriceChangePercent: d("1.34"),
			High24h: d("3480.00"), Low24h: d("3398.50"), Volume24h: d("85420.3"),
			MarkPrice: d("3457.12"), IndexPrice: d("3456.9"), FundingRate: d("0.0001"),
		},
	},
	{
		market: types.Market{
			Symbol: "SOL-USD", DisplayName: "SOL/USD", BaseAsset: "SOL", QuoteAsset: "USD", Status: "active",
			TickSize: d("0.01"), StepSize: d("0.1"), MinOrderSize: d("0.1"), MaxOrderSize: d("10000"),
			MakerFee: d("0.0002"), TakerFee: d("0.0005"), FundingInterval: 8, MaxLeverage: 15, IsActive: true,
		},
		stats: types.MarketStats{
			Symbol: "SOL-USD", LastPrice: d("185.45"), PriceChange24h: d("-2.35"), PriceChangePercent: d("-1.25"),
			High24h: d("189.2"), Low24h: d("182.1"), Volume24h: d("452300.5"),
			MarkPrice: d("185.5"), IndexPrice: d("185.47"), FundingRate: d("0.00008"),
		},
	},
}

var mockPositions = []types.Position{
	{
		Symbol: "BTC-USD", Side: "long", Size: d("0.1234"), EntryPrice: d("94325.5"), MarkPrice: d("95425.1"),
		Leverage: d("10"), Margin: d("1234.56"), UnrealizedPnL: d("135.69"), RealizedPnL: d("0"),
		LiquidationPrice: d("85840.2"),
	},
	{
		Symbol: "ETH-USD", Side: "short", Size: d("2.3456"), EntryPrice: d("3557.25"), MarkPrice: d("3457.12"),
		Leverage: d("10"), Margin: d("2345.67"), UnrealizedPnL: d("234.86"), RealizedPnL: d("12.5"),
		LiquidationPrice: d("3895.1"),
	},
}

var mockPositionHistory = []types.PositionHistory{
	{
		Symbol: "BTC-USD", Side: "long", Size: d("0.1234"), EntryPrice: d("92150.0"), ExitPrice: d("93250.5"),
		Leverage: d("10"), Margin: d("1137.13"), RealizedPnL: d("135.8"),
		OpenedAt: mockEpoch - 2*86400000, ClosedAt: mockEpoch - 86400000,
	},
	{
		Symbol: "ETH-USD", Side: "short", Size: d("2.3456"), EntryPrice: d("3650.25"), ExitPrice: d("3550.0"),
		Leverage: d("10"), Margin: d("856.21"), RealizedPnL: d("235.15"),
		OpenedAt: mockEpoch - 3*86400000, ClosedAt: mockEpoch - 2*86400000,
	},
	{
		Symbol: "SOL-USD", Side: "long", Size: d("25.0"), EntryPrice: d("190.1"), ExitPrice: d("184.3"),
		Leverage: d("5"), Margin: d("950.5"), RealizedPnL: d("-145.0"),
		OpenedAt: mockEpoch - 4*86400000, ClosedAt: mockEpoch - 3*86400000,
	},
}

var mockOpenOrders = []types.Order{
	{
		ID: "mock-order-1", Symbol: "BTC-USD", Side: types.SideBuy, Type: types.OrderTypeLimit,
		Size: d("0.01"), FilledSize: d("0"), Price: dp("94000.0"), TimeInForce: types.TimeInForceGTC,
		PostOnly: true, Status: types.OrderStatusOpen, Fee: d("0"),
		CreatedAt: mockEpoch - 3600000, UpdatedAt: mockEpoch - 3600000,
	},
	{
		ID: "mock-order-2", Symbol: "ETH-USD", Side: types.SideSell, Type: types.OrderTypeLimit,
		Size: d("0.5"), FilledSize: d("0.1"), Price: dp("3600.00"), TimeInForce: types.TimeInForceGTC,
		Status: types.OrderStatusOpen, Fee: d("0.072"),
		CreatedAt: mockEpoch - 7200000, UpdatedAt: mockEpoch - 1800000,
	},
}

var mockOrderHistory = []types.Order{
	{
		ID: "mock-order-0", Symbol: "BTC-USD", Side: types.SideBuy, Type: types.OrderTypeMarket,
		Size: d("0.05"), FilledSize: d("0.05"), AveragePrice: dp("95410.3"), TimeInForce: types.TimeInForceIOC,
		Status: types.OrderStatusFilled, Fee: d("2.3852575"),
		CreatedAt: mockEpoch - 86400000, UpdatedAt: mockEpoch - 86400000,
	},
	{
		ID: "mock-order-00", Symbol: "SOL-USD", Side: types.SideSell, Type: types.OrderTypeLimit,
		Size: d("10.0"), FilledSize: d("0"), Price: dp("200.0"), TimeInForce: types.TimeInForceGTC,
		Status: types.OrderStatusCancelled, Fee: d("0"),
		CreatedAt: mockEpoch - 172800000, UpdatedAt: mockEpoch - 86400000,
	},
}

var mockFills = []types.Fill{
	{
		ID: "mock-fill-1", OrderID: "mock-order-0", Symbol: "BTC-USD", Side: types.SideBuy,
		Price: d("95410.3"), Size: d("0.05"), Fee: d("2.3852575"), IsMaker: false, Timestamp: mockEpoch - 86400000,
	},
	{
		ID: "mock-fill-2", OrderID: "mock-order-2", Symbol: "ETH-USD", Side: types.SideSell,
		Price: d("3600.00"), Size: d("0.1"), Fee: d("0.072"), IsMaker: true, Timestamp: mockEpoch - 1800000,
	},
}

// mockVolume30d places the mock account in the second fee tier
var mockVolume30d = d("1250000.00")

var candleDurations = map[string]int64{
	"1m": 60000, "5m": 300000, "15m": 900000, "30m": 1800000, "1h": 3600000, "4h": 14400000, "1d": 86400000,
}

// MockBackend serves deterministic synthetic exchange data
type MockBackend struct {
	orderSeq atomic.Int64
}

func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

func (m *MockBackend) Mode() string { return ModeMock }
func (m *MockBackend) Close()       {}

// Do routes the request by method and path pattern
func (m *MockBackend) Do(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	parts := strings.Split(strings.Trim(req.Path, "/"), "/")
	q := req.Query
	if q == nil {
		q = url.Values{}
	}

	switch {
	case req.Method == http.MethodGet && req.Path == "/markets":
		markets := make([]types.Market, 0, len(mockInstruments))
		for _, inst := range mockInstruments {
			markets = append(markets, inst.market)
		}
		return respond(markets, nil)

	case req.Method == http.MethodGet && req.Path == "/markets/stats":
		stats := make([]types.MarketStats, 0, len(mockInstruments))
		for _, inst := range mockInstruments {
			stats = append(stats, statsWithFunding(inst.stats))
		}
		return respond(stats, nil)

	case req.Method == http.MethodGet && len(parts) == 3 && parts[0] == "markets":
		inst, ok := findInstrument(parts[1])
		if !ok {
			return nil, &APIError{Status: http.StatusNotFound, Message: fmt.Sprintf("market %s not found", parts[1])}
		}
		switch parts[2] {
		case "stats":
			return respond(statsWithFunding(inst.stats), nil)
		case "orderbook":
			return respond(mockOrderBook(inst, queryInt(q, "limit", mockMaxBookLevels)), nil)
		case "trades":
			return respond(mockTrades(inst, queryInt(q, "limit", mockMaxTrades)), &Pagination{})
		case "candles":
			return respond(mockCandles(inst, q), &Pagination{})
		case "funding":
			return respond(mockFunding(inst, queryInt(q, "limit", 100)), &Pagination{})
		}

	case req.Method == http.MethodGet && req.Path == "/account":
		return respond(mockBalance(), nil)

	case req.Method == http.MethodGet && req.Path == "/positions":
		return respond(filterBySymbol(mockPositions, q.Get("symbol"), func(p types.Position) string { return p.Symbol }), nil)

	case req.Method == http.MethodGet && req.Path == "/positions/history":
		items := filterBySymbol(mockPositionHistory, q.Get("symbol"), func(p types.PositionHistory) string { return p.Symbol })
		page, pagination := paginate(items, q)
		return respond(page, pagination)

	case req.Path == "/account/leverage":
		if req.Method == http.MethodPatch {
			update, err := decodeBody[types.LeverageUpdate](req.Body)
			if err != nil {
				return nil, err
			}
			lev := mockLeverage(update.Symbol)
			if update.Leverage > lev.MaxLeverage {
				return nil, &APIError{Status: http.StatusBadRequest, Message: fmt.Sprintf("leverage exceeds maximum of %d", lev.MaxLeverage)}
			}
			lev.CurrentLeverage = update.Leverage
			return respond(lev, nil)
		}
		return respond(mockLeverage(q.Get("symbol")), nil)

	case req.Method == http.MethodGet && req.Path == "/account/fees":
		return respond(mockFees(), nil)

	case req.Path == "/orders":
		switch req.Method {
		case http.MethodGet:
			items := filterOrders(mockOpenOrders, q)
			page, pagination := paginate(items, q)
			return respond(page, pagination)
		case http.MethodPost:
			order, err := decodeBody[types.OrderRequest](req.Body)
			if err != nil {
				return nil, err
			}
			return respond(m.placeOrder(order), nil)
		case http.MethodDelete:
			result := types.CancelResult{CancelledOrders: []string{}}
			for _, o := range filterBySymbol(mockOpenOrders, q.Get("symbol"), func(o types.Order) string { return o.Symbol }) {
				result.CancelledOrders = append(result.CancelledOrders, o.ID)
			}
			result.Count = len(result.CancelledOrders)
			return respond(result, nil)
		}

	case req.Method == http.MethodGet && req.Path == "/orders/history":
		items := filterOrders(mockOrderHistory, q)
		page, pagination := paginate(items, q)
		return respond(page, pagination)

	case len(parts) == 2 && parts[0] == "orders":
		id := parts[1]
		if !strings.HasPrefix(id, "mock-order-") {
			return nil, &APIError{Status: http.StatusNotFound, Message: fmt.Sprintf("order %s not found", id)}
		}
		switch req.Method {
		case http.MethodDelete:
			return respond(types.CancelResult{CancelledOrders: []string{id}, Count: 1}, nil)
		case http.MethodPatch:
			update, err := decodeBody[types.OrderUpdate](req.Body)
			if err != nil {
				return nil, err
			}
			return respond(amendOrder(id, update), nil)
		}

	case req.Method == http.MethodGet && req.Path == "/trades":
		items := filterBySymbol(mockFills, q.Get("symbol"), func(f types.Fill) string { return f.Symbol })
		page, pagination := paginate(items, q)
		return respond(page, pagination)
	}

	return nil, &APIError{
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("mock endpoint %s %s not implemented", req.Method, req.Path),
	}
}

func (m *MockBackend) placeOrder(req types.OrderRequest) types.Order {
	seq := m.orderSeq.Add(1)
	status := types.OrderStatusOpen
	filled := decimal.Zero
	var avg *decimal.Decimal
	if req.Type == types.OrderTypeMarket {
		status = types.OrderStatusFilled
		filled = req.Size
		if inst, ok := findInstrument(req.Symbol); ok {
			px := inst.stats.LastPrice
			avg = &px
		}
	}
	tif := req.TimeInForce
	if tif == "" {
		tif = types.TimeInForceGTC
	}
	return types.Order{
		ID:           fmt.Sprintf("mock-order-%d", 1000+seq),
		ClientID:     req.ClientID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         req.Type,
		Size:         req.Size,
		FilledSize:   filled,
		Price:        req.Price,
		StopPrice:    req.StopPrice,
		AveragePrice: avg,
		TimeInForce:  tif,
		ReduceOnly:   req.ReduceOnly,
		PostOnly:     req.PostOnly,
		Status:       status,
		Fee:          decimal.Zero,
		TWAPParams:   req.TWAPParams,
		CreatedAt:    mockEpoch,
		UpdatedAt:    mockEpoch,
	}
}

func amendOrder(id string, update types.OrderUpdate) types.Order {
	order := types.Order{
		ID: id, Symbol: "BTC-USD", Side: types.SideBuy, Type: types.OrderTypeLimit,
		Size: d("0.01"), FilledSize: decimal.Zero, Price: dp("94000.0"), TimeInForce: types.TimeInForceGTC,
		Status: types.OrderStatusOpen, Fee: decimal.Zero, CreatedAt: mockEpoch - 3600000,
	}
	for _, o := range mockOpenOrders {
		if o.ID == id {
			order = o
		}
	}
	if update.Size != nil {
		order.Size = *update.Size
	}
	if update.Price != nil {
		order.Price = update.Price
	}
	if update.StopPrice != nil {
		order.StopPrice = update.StopPrice
	}
	order.UpdatedAt = mockEpoch
	return order
}

func respond(data interface{}, pagination *Pagination) (*Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode mock payload: %w", err)
	}
	return &Response{Data: raw, Pagination: pagination}, nil
}

func decodeBody[T any](body interface{}) (T, error) {
	var out T
	raw, err := json.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("encode mock body: %w", err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &APIError{Status: http.StatusBadRequest, Message: "invalid request body"}
	}
	return out, nil
}

func findInstrument(symbol string) (mockInstrument, bool) {
	for _, inst := range mockInstruments {
		if inst.market.Symbol == symbol {
			return inst, true
		}
	}
	return mockInstrument{}, false
}

func statsWithFunding(s types.MarketStats) types.MarketStats {
	s.NextFundingTime = mockEpoch + 8*3600000
	return s
}

func mockOrderBook(inst mockInstrument, limit int) types.OrderBook {
	levels := clamp(limit, 1, mockMaxBookLevels)
	base := inst.stats.LastPrice
	places := -inst.market.TickSize.Exponent()
	step := base.Mul(d("0.0001"))

	book := types.OrderBook{
		Symbol:    inst.market.Symbol,
		Bids:      make([]types.PriceLevel, 0, levels),
		Asks:      make([]types.PriceLevel, 0, levels),
		Timestamp: mockEpoch,
	}
	for i := 0; i < levels; i++ {
		offset := step.Mul(decimal.NewFromInt(int64(i + 1)))
		size := d("0.1").Add(d("0.05").Mul(decimal.NewFromInt(int64(i))))
		book.Bids = append(book.Bids, types.PriceLevel{Price: base.Sub(offset).Round(places), Size: size, NumOrders: i + 1})
		book.Asks = append(book.Asks, types.PriceLevel{Price: base.Add(offset).Round(places), Size: size, NumOrders: i + 1})
	}
	return book
}

func mockTrades(inst mockInstrument, limit int) []types.Trade {
	n := clamp(limit, 1, mockMaxTrades)
	base := inst.stats.LastPrice
	places := -inst.market.TickSize.Exponent()

	trades := make([]types.Trade, 0, n)
	for i := 0; i < n; i++ {
		variance := base.Mul(d("0.001")).Mul(d("0.5").Sub(decimal.NewFromInt(int64(i % 10)).Div(decimal.NewFromInt(10))))
		side := types.SideBuy
		if i%2 == 1 {
			side = types.SideSell
		}
		trades = append(trades, types.Trade{
			ID:        fmt.Sprintf("mock-trade-%s-%d", inst.market.Symbol, i),
			Symbol:    inst.market.Symbol,
			Side:      side,
			Price:     base.Add(variance).Round(places),
			Size:      d("0.01").Add(d("0.1").Mul(decimal.NewFromInt(int64(i % 5)))),
			Timestamp: mockEpoch - int64(i)*1000,
		})
	}
	return trades
}

func mockCandles(inst mockInstrument, q url.Values) []types.Candle {
	n := clamp(queryInt(q, "limit", 100), 1, mockMaxCandles)
	step, ok := candleDurations[q.Get("interval")]
	if !ok {
		step = candleDurations["1h"]
	}
	end := mockEpoch
	if v, err := strconv.ParseInt(q.Get("end_time"), 10, 64); err == nil && v > 0 {
		end = v - v%step
	}
	start := int64(0)
	if v, err := strconv.ParseInt(q.Get("start_time"), 10, 64); err == nil {
		start = v
	}

	base := inst.stats.LastPrice
	places := -inst.market.TickSize.Exponent()
	unit := base.Mul(d("0.001"))

	candles := make([]types.Candle, 0, n)
	for i := 0; i < n; i++ {
		ts := end - int64(i)*step
		if ts < start {
			break
		}
		open := base.Add(unit.Mul(decimal.NewFromInt(int64(i%7 - 3))))
		move := unit.Div(decimal.NewFromInt(2))
		if i%2 == 1 {
			move = move.Neg()
		}
		closePx := open.Add(move)
		high := decimal.Max(open, closePx).Add(unit.Mul(d("0.8")))
		low := decimal.Min(open, closePx).Sub(unit.Mul(d("0.8")))
		candles = append(candles, types.Candle{
			Timestamp: ts,
			Open:      open.Round(places),
			High:      high.Round(places),
			Low:       low.Round(places),
			Close:     closePx.Round(places),
			Volume:    d("10").Add(d("2.5").Mul(decimal.NewFromInt(int64(i % 5)))),
		})
	}
	return candles
}

func mockFunding(inst mockInstrument, limit int) []types.FundingRate {
	n := clamp(limit, 1, mockMaxFunding)
	interval := int64(inst.market.FundingInterval) * 3600000
	rates := make([]types.FundingRate, 0, n)
	for i := 0; i < n; i++ {
		rates = append(rates, types.FundingRate{
			Symbol:      inst.market.Symbol,
			FundingRate: inst.stats.FundingRate.Add(d("0.00002").Mul(decimal.NewFromInt(int64(i%3 - 1)))),
			MarkPrice:   inst.stats.MarkPrice,
			Timestamp:   mockEpoch - int64(i)*interval,
		})
	}
	return rates
}

func mockBalance() types.Balance {
	used := decimal.Zero
	pnl := decimal.Zero
	for _, p := range mockPositions {
		used = used.Add(p.Margin)
		pnl = pnl.Add(p.UnrealizedPnL)
	}
	equity := d("12345.67")
	return types.Balance{
		TotalEquity:      equity,
		AvailableBalance: equity.Sub(used),
		UsedMargin:       used,
		UnrealizedPnL:    pnl,
		Balances: []types.AssetBalance{
			{Asset: "USD", Free: d("8765.44"), Locked: d("3580.23")},
			{Asset: "BTC", Free: d("1.2345"), Locked: d("0.1234")},
		},
	}
}

func mockLeverage(symbol string) types.Leverage {
	lev := types.Leverage{
		Symbol:                 symbol,
		CurrentLeverage:        10,
		MaxLeverage:            20,
		InitialMarginRatio:     d("0.1"),
		MaintenanceMarginRatio: d("0.05"),
	}
	if inst, ok := findInstrument(symbol); ok {
		lev.MaxLeverage = inst.market.MaxLeverage
	}
	return lev
}

func mockFees() types.Fees {
	tier := types.LookupFeeTier(mockVolume30d)
	return types.Fees{
		Tier:            tier.Name,
		MakerFee:        tier.MakerFee,
		TakerFee:        tier.TakerFee,
		Volume30d:       mockVolume30d,
		FundingInterval: 8,
		FundingRate:     d("0.0001"),
		NextFundingTime: mockEpoch + 1800000,
	}
}

func filterBySymbol[T any](items []T, symbol string, key func(T) string) []T {
	out := make([]T, 0, len(items))
	for _, it := range items {
		if symbol == "" || key(it) == symbol {
			out = append(out, it)
		}
	}
	return out
}

func filterOrders(orders []types.Order, q url.Values) []types.Order {
	symbol, status := q.Get("symbol"), q.Get("status")
	out := make([]types.Order, 0, len(orders))
	for _, o := range orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if status != "" && string(o.Status) != status {
			continue
		}
		out = append(out, o)
	}
	return out
}

// paginate slices items with an offset cursor
func paginate[T any](items []T, q url.Values) ([]T, *Pagination) {
	offset := queryInt(q, "cursor", 0)
	if offset < 0 || offset > len(items) {
		offset = len(items)
	}
	limit := clamp(queryInt(q, "limit", types.DefaultLimit), 1, types.MaxLimit)
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	p := &Pagination{HasMore: end < len(items)}
	if p.HasMore {
		p.Cursor = strconv.Itoa(end)
	}
	return items[offset:end], p
}

func queryInt(q url.Values, key string, fallback int) int {
	if v, err := strconv.Atoi(q.Get(key)); err == nil {
		return v
	}
	return fallback
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
