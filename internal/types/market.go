package types

import "github.com/shopspring/decimal"

// Market is reference data for a tradable instrument
type Market struct {
	Symbol          string          `json:"symbol"`
	DisplayName     string          `json:"display_name"`
	BaseAsset       string          `json:"base_asset"`
	QuoteAsset      string          `json:"quote_asset"`
	Status          string          `json:"status"`
	TickSize        decimal.Decimal `json:"tick_size"`
	StepSize        decimal.Decimal `json:"step_size"`
	MinOrderSize    decimal.Decimal `json:"min_order_size"`
	MaxOrderSize    decimal.Decimal `json:"max_order_size"`
	MakerFee        decimal.Decimal `json:"maker_fee"`
	TakerFee        decimal.Decimal `json:"taker_fee"`
	FundingInterval int             `json:"funding_interval"`
	MaxLeverage     int             `json:"max_leverage"`
	IsActive        bool            `json:"is_active"`
}

type MarketStats struct {
	Symbol             string          `json:"symbol"`
	LastPrice          decimal.Decimal `json:"last_price"`
	PriceChange24h     decimal.Decimal `json:"price_change_24h"`
	PriceChangePercent decimal.Decimal `json:"price_change_percent_24h"`
	High24h            decimal.Decimal `json:"high_24h"`
	Low24h             decimal.Decimal `json:"low_24h"`
	Volume24h          decimal.Decimal `json:"volume_24h"`
	MarkPrice          decimal.Decimal `json:"mark_price"`
	IndexPrice         decimal.Decimal `json:"index_price"`
	FundingRate        decimal.Decimal `json:"funding_rate"`
	NextFundingTime    int64           `json:"next_funding_time"`
}

type PriceLevel struct {
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	NumOrders int             `json:"num_orders"`
}

type OrderBook struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

// BestBid returns the highest bid, false when the book side is empty
func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	if len(ob.Bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the lowest ask, false when the book side is empty
func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	if len(ob.Asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.Asks[0], true
}

// Trade is a public trade print
type Trade struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Timestamp int64           `json:"timestamp"`
}

type Candle struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
}

type FundingRate struct {
	Symbol      string          `json:"symbol"`
	FundingRate decimal.Decimal `json:"funding_rate"`
	MarkPrice   decimal.Decimal `json:"mark_price"`
	Timestamp   int64           `json:"timestamp"`
}

// CandleIntervals lists the intervals accepted by the candles endpoint.
var CandleIntervals = map[string]bool{
	"1m": true, "5m": true, "15m": true, "30m": true, "1h": true, "4h": true, "1d": true,
}
