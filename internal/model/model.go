// Package model defines the core domain types shared across the service.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cash movement types.
const (
	MovementDeposit  = "DEPOSIT"
	MovementWithdraw = "WITHDRAW"
)

// Trade types recorded against an investment.
const (
	TradeBuy         = "BUY"
	TradeSell        = "SELL"
	TradePriceUpdate = "PRICE_UPDATE"
)

// General event kinds used by the unified history and its CSV export.
const (
	KindCash       = "EFECTIVO"
	KindInvestment = "INVERSIÓN"
	KindPrice      = "PRECIO"
)

// TimestampLayout is the fixed-width wire format for event timestamps.
// Lexicographic order on this layout matches chronological order.
const TimestampLayout = "2006-01-02 15:04:05"

// Client is an investor account. CapitalAvailable is the liquid cash
// balance and must never go negative after a committed operation.
type Client struct {
	ID               string          `json:"id" db:"id"`
	Name             string          `json:"name" db:"name"`
	Email            string          `json:"email,omitempty" db:"email"`
	Phone            string          `json:"phone,omitempty" db:"phone"`
	CapitalAvailable decimal.Decimal `json:"capital_available" db:"capital_available"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// Investment is a client's holding in one company. At most one row exists
// per (client, company) pair. A fully sold position stays on file with
// Shares = 0 and AvgPrice = 0; it is hidden from portfolio views.
type Investment struct {
	ID        string          `json:"id" db:"id"`
	ClientID  string          `json:"client_id" db:"client_id"`
	Company   string          `json:"company" db:"company"`
	Category  string          `json:"category,omitempty" db:"category"`
	AvgPrice  decimal.Decimal `json:"avg_price" db:"avg_price"` // weighted-average cost per share
	Shares    decimal.Decimal `json:"shares" db:"shares"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Open reports whether the position currently holds shares.
func (inv *Investment) Open() bool {
	return inv.Shares.IsPositive()
}

// CashMovement is an immutable record of a deposit or withdrawal.
// Amount is always stored positive; the sign is inferred from Type.
type CashMovement struct {
	ID        string          `json:"id" db:"id"`
	ClientID  string          `json:"client_id" db:"client_id"`
	Type      string          `json:"type" db:"type"` // DEPOSIT or WITHDRAW
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Note      string          `json:"note,omitempty" db:"note"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Trade is an immutable record of a BUY, SELL, or PRICE_UPDATE against one
// investment. PRICE_UPDATE rows carry zero shares and zero amount.
type Trade struct {
	ID           string          `json:"id" db:"id"`
	InvestmentID string          `json:"investment_id" db:"investment_id"`
	Type         string          `json:"type" db:"type"`
	Shares       decimal.Decimal `json:"shares" db:"shares"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Note         string          `json:"note,omitempty" db:"note"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// TradeWithCompany is a Trade joined with its investment's company name,
// as needed by the unified history.
type TradeWithCompany struct {
	Trade
	Company string `json:"company" db:"company"`
}

// PricePoint is an immutable price sample for one investment. One point is
// written alongside every BUY, SELL, and PRICE_UPDATE; the most recent
// point is the investment's current market price.
type PricePoint struct {
	InvestmentID string          `json:"investment_id" db:"investment_id"`
	Price        decimal.Decimal `json:"price" db:"price"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// HistoryEvent is one row of the unified client history: a cash movement
// or a trade projected into a common shape. CapitalDelta is signed:
// +amount for DEPOSIT/SELL, -amount for WITHDRAW/BUY, 0 for PRICE_UPDATE.
type HistoryEvent struct {
	Timestamp    time.Time       `json:"timestamp"`
	Kind         string          `json:"kind"` // EFECTIVO, INVERSIÓN, PRECIO
	Type         string          `json:"type"`
	Company      string          `json:"company,omitempty"`
	Detail       string          `json:"detail"`
	CapitalDelta decimal.Decimal `json:"capital_delta"`
	Shares       decimal.Decimal `json:"shares"`
	Price        decimal.Decimal `json:"price"`
}

// PortfolioPosition is the valuation of one open position.
type PortfolioPosition struct {
	InvestmentID    string          `json:"investment_id"`
	Company         string          `json:"company"`
	Category        string          `json:"category,omitempty"`
	Shares          decimal.Decimal `json:"shares"`
	AvgPrice        decimal.Decimal `json:"avg_price"`
	CurrentPrice    decimal.Decimal `json:"current_price"`
	InvestedAmount  decimal.Decimal `json:"invested_amount"`
	CurrentValue    decimal.Decimal `json:"current_value"`
	PnL             decimal.Decimal `json:"pnl"`
	ReturnRate      decimal.Decimal `json:"return_rate"`
	PercentOfOwner  decimal.Decimal `json:"percent_of_owner"`
	PercentOfGlobal decimal.Decimal `json:"percent_of_global"`
}

// PortfolioReport aggregates a client's open positions with the owner-scope
// and global-scope market value totals the percentages are taken against.
type PortfolioReport struct {
	ClientID         string              `json:"client_id"`
	CapitalAvailable decimal.Decimal     `json:"capital_available"`
	Positions        []PortfolioPosition `json:"positions"`
	TotalValue       decimal.Decimal     `json:"total_value"`        // this client's open positions
	GlobalTotalValue decimal.Decimal     `json:"global_total_value"` // all clients' open positions
	TotalPnL         decimal.Decimal     `json:"total_pnl"`
}
