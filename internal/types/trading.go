package types

import (
	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

type OrderType string

const (
	OrderTypeLimit      OrderType = "limit"
	OrderTypeMarket     OrderType = "market"
	OrderTypeStopLimit  OrderType = "stop_limit"
	OrderTypeStopMarket OrderType = "stop_market"
	OrderTypeTWAP       OrderType = "twap"
)

type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
	TimeInForceFOK TimeInForce = "fok"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusOpen      OrderStatus = "open"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// TWAP parameter bounds, in seconds.
const (
	TWAPMinDuration = 60
	TWAPMaxDuration = 86400
	TWAPMinInterval = 10
	TWAPMaxInterval = 3600
)

func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeLimit, OrderTypeMarket, OrderTypeStopLimit, OrderTypeStopMarket, OrderTypeTWAP:
		return true
	}
	return false
}

// RequiresPrice reports whether orders of this type must carry a limit price.
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStopLimit
}

// RequiresStopPrice reports whether orders of this type must carry a trigger price.
func (t OrderType) RequiresStopPrice() bool {
	return t == OrderTypeStopLimit || t == OrderTypeStopMarket
}

func (tif TimeInForce) Valid() bool {
	switch tif {
	case TimeInForceGTC, TimeInForceIOC, TimeInForceFOK:
		return true
	}
	return false
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusOpen, OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// TWAPParams controls how a TWAP order is sliced over time
type TWAPParams struct {
	Duration  int  `json:"duration"`
	Interval  int  `json:"interval"`
	Randomize bool `json:"randomize"`
}

// Validate checks duration and interval bounds
func (p TWAPParams) Validate() error {
	if p.Duration < TWAPMinDuration || p.Duration > TWAPMaxDuration {
		return NewValidationError("twap_params.duration", "must be between %d and %d seconds", TWAPMinDuration, TWAPMaxDuration)
	}
	if p.Interval < TWAPMinInterval || p.Interval > TWAPMaxInterval {
		return NewValidationError("twap_params.interval", "must be between %d and %d seconds", TWAPMinInterval, TWAPMaxInterval)
	}
	return nil
}

// OrderRequest is the payload submitted to the exchange when placing an order
type OrderRequest struct {
	Symbol      string           `json:"symbol"`
	Side        OrderSide        `json:"side"`
	Type        OrderType        `json:"type"`
	Size        decimal.Decimal  `json:"size"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	StopPrice   *decimal.Decimal `json:"stop_price,omitempty"`
	TimeInForce TimeInForce      `json:"time_in_force,omitempty"`
	ReduceOnly  bool             `json:"reduce_only"`
	PostOnly    bool             `json:"post_only"`
	ClientID    string           `json:"client_id,omitempty"`
	TWAPParams  *TWAPParams      `json:"twap_params,omitempty"`
	Signature   string           `json:"signature,omitempty"`
	StarkKey    string           `json:"stark_key,omitempty"`
}

// Validate checks the order fields that can be verified without exchange data
func (r *OrderRequest) Validate() error {
	if r.Symbol == "" {
		return NewValidationError("symbol", "is required")
	}
	if !r.Side.Valid() {
		return NewValidationError("side", "must be one of buy, sell")
	}
	if !r.Type.Valid() {
		return NewValidationError("type", "must be one of limit, market, stop_limit, stop_market, twap")
	}
	if !r.Size.IsPositive() {
		return NewValidationError("size", "must be greater than zero")
	}
	if r.TimeInForce == "" {
		r.TimeInForce = TimeInForceGTC
	}
	if !r.TimeInForce.Valid() {
		return NewValidationError("time_in_force", "must be one of gtc, ioc, fok")
	}
	if r.Type.RequiresPrice() && (r.Price == nil || !r.Price.IsPositive()) {
		return NewValidationError("price", "is required for %s orders", r.Type)
	}
	if r.Type.RequiresStopPrice() && (r.StopPrice == nil || !r.StopPrice.IsPositive()) {
		return NewValidationError("stop_price", "is required for %s orders", r.Type)
	}
	if r.PostOnly && r.Type != OrderTypeLimit {
		return NewValidationError("post_only", "is only allowed on limit orders")
	}
	if r.Type == OrderTypeTWAP {
		if r.TWAPParams == nil {
			return NewValidationError("twap_params", "is required for twap orders")
		}
		if err := r.TWAPParams.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OrderUpdate carries the mutable fields of a resting order
type OrderUpdate struct {
	Size      *decimal.Decimal `json:"size,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	StopPrice *decimal.Decimal `json:"stop_price,omitempty"`
}

func (u *OrderUpdate) Validate() error {
	if u.Size == nil && u.Price == nil && u.StopPrice == nil {
		return NewValidationError("body", "at least one of size, price, stop_price is required")
	}
	fields := []struct {
		name  string
		value *decimal.Decimal
	}{{"size", u.Size}, {"price", u.Price}, {"stop_price", u.StopPrice}}
	for _, f := range fields {
		if f.value != nil && !f.value.IsPositive() {
			return NewValidationError(f.name, "must be greater than zero")
		}
	}
	return nil
}

// Order mirrors an order as reported by the exchange
type Order struct {
	ID           string           `json:"id"`
	ClientID     string           `json:"client_id,omitempty"`
	Symbol       string           `json:"symbol"`
	Side         OrderSide        `json:"side"`
	Type         OrderType        `json:"type"`
	Size         decimal.Decimal  `json:"size"`
	FilledSize   decimal.Decimal  `json:"filled_size"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	StopPrice    *decimal.Decimal `json:"stop_price,omitempty"`
	AveragePrice *decimal.Decimal `json:"average_price,omitempty"`
	TimeInForce  TimeInForce      `json:"time_in_force"`
	ReduceOnly   bool             `json:"reduce_only"`
	PostOnly     bool             `json:"post_only"`
	Status       OrderStatus      `json:"status"`
	Fee          decimal.Decimal  `json:"fee"`
	TWAPParams   *TWAPParams      `json:"twap_params,omitempty"`
	CreatedAt    int64            `json:"created_at"`
	UpdatedAt    int64            `json:"updated_at"`
}

// CancelResult is returned by single and bulk cancellation
type CancelResult struct {
	CancelledOrders []string `json:"cancelled_orders"`
	Count           int      `json:"count"`
}

// Fill is one of the account's own executions
type Fill struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	Symbol    string          `json:"symbol"`
	Side      OrderSide       `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Fee       decimal.Decimal `json:"fee"`
	IsMaker   bool            `json:"is_maker"`
	Timestamp int64           `json:"timestamp"`
}
