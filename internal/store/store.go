// Package store defines the persistence interface for the ledger.
// Implementations include PostgreSQL, SQLite (single local file), Redis
// (read-through cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/model"
)

// ErrNotFound is returned when a client or investment id does not resolve,
// or when an investment has no recorded price yet.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface for the four ledger record types.
//
// Multi-statement mutations must run inside WithTx so partial application
// is impossible: the callback receives a Store bound to one transaction,
// and any error rolls the whole transaction back.
type Store interface {
	// WithTx runs fn inside a single transaction. fn's error aborts the
	// transaction and is returned unchanged.
	WithTx(ctx context.Context, fn func(tx Store) error) error

	// --- Clients ---

	// ListClients returns all clients, newest first. A non-empty query
	// filters by name substring.
	ListClients(ctx context.Context, query string) ([]model.Client, error)

	// CreateClient persists a new client.
	CreateClient(ctx context.Context, c *model.Client) error

	// GetClient retrieves a client by id.
	GetClient(ctx context.Context, id string) (*model.Client, error)

	// AdjustClientCapital adds delta (signed) to a client's available capital.
	AdjustClientCapital(ctx context.Context, id string, delta decimal.Decimal) error

	// --- Investments ---

	// GetInvestmentsByClient returns a client's investments, newest first,
	// including closed ones (shares = 0).
	GetInvestmentsByClient(ctx context.Context, clientID string) ([]model.Investment, error)

	// GetAllInvestments returns every investment across all clients.
	GetAllInvestments(ctx context.Context) ([]model.Investment, error)

	// GetInvestmentByCompany resolves the single (client, company) position.
	GetInvestmentByCompany(ctx context.Context, clientID, company string) (*model.Investment, error)

	// GetInvestment retrieves an investment by id.
	GetInvestment(ctx context.Context, id string) (*model.Investment, error)

	// CreateInvestment persists a new investment.
	CreateInvestment(ctx context.Context, inv *model.Investment) error

	// UpdateInvestment sets an investment's average price and share count.
	UpdateInvestment(ctx context.Context, id string, avgPrice, shares decimal.Decimal) error

	// --- Immutable ledger records ---

	// InsertCashMovement appends an immutable deposit/withdraw record.
	InsertCashMovement(ctx context.Context, m *model.CashMovement) error

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, t *model.Trade) error

	// InsertPricePoint appends an immutable price sample.
	InsertPricePoint(ctx context.Context, p *model.PricePoint) error

	// LastPrice returns the most recent price sample for an investment,
	// or ErrNotFound when none has been recorded.
	LastPrice(ctx context.Context, investmentID string) (decimal.Decimal, error)

	// PriceHistory returns all price samples for an investment, newest first.
	PriceHistory(ctx context.Context, investmentID string) ([]model.PricePoint, error)

	// --- History queries ---

	// CashMovements returns a client's cash movements, newest first,
	// inclusively bounded by from/to when both are non-nil.
	CashMovements(ctx context.Context, clientID string, from, to *time.Time) ([]model.CashMovement, error)

	// TradesWithCompany returns a client's trades joined with company names,
	// newest first, inclusively bounded by from/to when both are non-nil.
	TradesWithCompany(ctx context.Context, clientID string, from, to *time.Time) ([]model.TradeWithCompany, error)
}
