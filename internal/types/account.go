package types

import "github.com/shopspring/decimal"

type AssetBalance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}

type Balance struct {
	TotalEquity      decimal.Decimal `json:"total_equity"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	UsedMargin       decimal.Decimal `json:"used_margin"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	Balances         []AssetBalance  `json:"balances"`
}

type Position struct {
	Symbol           string          `json:"symbol"`
	Side             string          `json:"side"`
	Size             decimal.Decimal `json:"size"`
	EntryPrice       decimal.Decimal `json:"entry_price"`
	MarkPrice        decimal.Decimal `json:"mark_price"`
	Leverage         decimal.Decimal `json:"leverage"`
	Margin           decimal.Decimal `json:"margin"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	LiquidationPrice decimal.Decimal `json:"liquidation_price"`
}

type PositionHistory struct {
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Size        decimal.Decimal `json:"size"`
	EntryPrice  decimal.Decimal `json:"entry_price"`
	ExitPrice   decimal.Decimal `json:"exit_price"`
	Leverage    decimal.Decimal `json:"leverage"`
	Margin      decimal.Decimal `json:"margin"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	OpenedAt    int64           `json:"opened_at"`
	ClosedAt    int64           `json:"closed_at"`
}

type Leverage struct {
	Symbol                 string          `json:"symbol,omitempty"`
	CurrentLeverage        int             `json:"current_leverage"`
	MaxLeverage            int             `json:"max_leverage"`
	InitialMarginRatio     decimal.Decimal `json:"initial_margin_ratio"`
	MaintenanceMarginRatio decimal.Decimal `json:"maintenance_margin_ratio"`
}

// LeverageUpdate is the body of a leverage change request
type LeverageUpdate struct {
	Symbol   string `json:"symbol"`
	Leverage int    `json:"leverage"`
}

// Leverage bounds accepted by the gateway
const (
	MinLeverage = 1
	MaxLeverage = 100
)

func (u LeverageUpdate) Validate() error {
	if u.Symbol == "" {
		return NewValidationError("symbol", "is required")
	}
	if u.Leverage < MinLeverage || u.Leverage > MaxLeverage {
		return NewValidationError("leverage", "must be between %d and %d", MinLeverage, MaxLeverage)
	}
	return nil
}

type Fees struct {
	Tier            string          `json:"tier"`
	MakerFee        decimal.Decimal `json:"maker_fee"`
	TakerFee        decimal.Decimal `json:"taker_fee"`
	Volume30d       decimal.Decimal `json:"volume_30d"`
	FundingInterval int             `json:"funding_interval"`
	FundingRate     decimal.Decimal `json:"funding_rate"`
	NextFundingTime int64           `json:"next_funding_time"`
}

// AccountSummary combines balance and open positions
type AccountSummary struct {
	TotalEquity      decimal.Decimal `json:"total_equity"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	UsedMargin       decimal.Decimal `json:"used_margin"`
	FreeMargin       decimal.Decimal `json:"free_margin"`
	MarginRatio      decimal.Decimal `json:"margin_ratio"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	TotalPositions   int             `json:"total_positions"`
	Positions        []Position      `json:"positions"`
}

// FeeTier is a volume bracket of the exchange fee schedule
type FeeTier struct {
	Name      string
	MinVolume decimal.Decimal
	MakerFee  decimal.Decimal
	TakerFee  decimal.Decimal
}

// FeeTiers is ordered by ascending 30-day volume threshold.
var FeeTiers = []FeeTier{
	{Name: "VIP0", MinVolume: decimal.Zero, MakerFee: decimal.RequireFromString("0.0002"), TakerFee: decimal.RequireFromString("0.0005")},
	{Name: "VIP1", MinVolume: decimal.NewFromInt(1_000_000), MakerFee: decimal.RequireFromString("0.00015"), TakerFee: decimal.RequireFromString("0.00045")},
	{Name: "VIP2", MinVolume: decimal.NewFromInt(5_000_000), MakerFee: decimal.RequireFromString("0.0001"), TakerFee: decimal.RequireFromString("0.0004")},
	{Name: "VIP3", MinVolume: decimal.NewFromInt(25_000_000), MakerFee: decimal.RequireFromString("0.00005"), TakerFee: decimal.RequireFromString("0.00035")},
	{Name: "VIP4", MinVolume: decimal.NewFromInt(100_000_000), MakerFee: decimal.Zero, TakerFee: decimal.RequireFromString("0.0003")},
}

// LookupFeeTier returns the highest tier whose threshold volume reaches
func LookupFeeTier(volume decimal.Decimal) FeeTier {
	tier := FeeTiers[0]
	for _, t := range FeeTiers {
		if volume.GreaterThanOrEqual(t.MinVolume) {
			tier = t
		}
	}
	return tier
}
