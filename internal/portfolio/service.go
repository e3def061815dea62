// Package portfolio implements the accounting engine, the unified history
// reconstruction, and the valuation queries, together with their HTTP
// handlers.
//
// Every mutation runs as one all-or-nothing transaction against the ledger
// store: validation failures and storage errors roll the whole operation
// back, so capital, positions, and the immutable trade/price/cash records
// can never drift apart.
package portfolio

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/costbasis"
	"github.com/Jorgeluia82/inversiones/internal/metrics"
	"github.com/Jorgeluia82/inversiones/internal/model"
	"github.com/Jorgeluia82/inversiones/internal/store"
)

var (
	// ErrInvalidAmount is returned for non-positive or unparsable amounts,
	// prices, or share quantities.
	ErrInvalidAmount = errors.New("portfolio: amount must be positive")

	// ErrNotFound is returned when a client or investment id does not resolve.
	ErrNotFound = errors.New("portfolio: not found")

	// ErrInsufficientFunds is returned when a withdraw or buy exceeds the
	// client's available capital.
	ErrInsufficientFunds = errors.New("portfolio: insufficient funds")

	// ErrInsufficientShares is returned when a sell exceeds the held shares.
	ErrInsufficientShares = errors.New("portfolio: insufficient shares")

	// ErrInvalidDate is returned for malformed history date filters.
	ErrInvalidDate = errors.New("portfolio: invalid date, use YYYY-MM-DD")
)

// Service is the accounting engine. All mutations are serialized through
// the store's transactions; this service assumes a single active writer
// (one local session) and provides no multi-writer coordination.
type Service struct {
	store store.Store
	hub   *Hub // optional WebSocket hub for change broadcasts
}

// NewService creates a new portfolio service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *Hub) *Service {
	return &Service{store: st, hub: hub}
}

// mapNotFound converts the store's not-found sentinel into the engine's.
func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// observe records metrics and a structured log line for one committed
// operation.
func observe(op string, start time.Time, attrs ...any) {
	metrics.OperationsTotal.WithLabelValues(op).Inc()
	metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	slog.Info(op, attrs...)
}

// reject records a rejected operation.
func reject(op string, err error) error {
	reason := "error"
	switch {
	case errors.Is(err, ErrInvalidAmount):
		reason = "invalid_amount"
	case errors.Is(err, ErrNotFound):
		reason = "not_found"
	case errors.Is(err, ErrInsufficientFunds):
		reason = "insufficient_funds"
	case errors.Is(err, ErrInsufficientShares):
		reason = "insufficient_shares"
	}
	metrics.RejectionsTotal.WithLabelValues(op, reason).Inc()
	return err
}

// --- Clients ---

// CreateClient registers a new client with an optional starting capital.
func (s *Service) CreateClient(ctx context.Context, name, email, phone string, initialCapital decimal.Decimal) (*model.Client, error) {
	if name == "" {
		return nil, errors.New("portfolio: client name is required")
	}
	if initialCapital.IsNegative() {
		return nil, ErrInvalidAmount
	}

	client := &model.Client{
		ID:               uuid.New().String(),
		Name:             name,
		Email:            email,
		Phone:            phone,
		CapitalAvailable: initialCapital,
		CreatedAt:        time.Now().UTC(),
	}
	if err := s.store.CreateClient(ctx, client); err != nil {
		return nil, err
	}

	slog.Info("client created", "id", client.ID, "name", name, "capital", initialCapital.String())
	return client, nil
}

// ListClients returns all clients, optionally filtered by name substring.
func (s *Service) ListClients(ctx context.Context, query string) ([]model.Client, error) {
	return s.store.ListClients(ctx, query)
}

// GetClient resolves one client by id.
func (s *Service) GetClient(ctx context.Context, id string) (*model.Client, error) {
	c, err := s.store.GetClient(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return c, nil
}

// --- Cash ---

// Deposit credits amount to the client's available capital and appends a
// DEPOSIT cash movement, atomically.
func (s *Service) Deposit(ctx context.Context, clientID string, amount decimal.Decimal, note string) (*model.Client, error) {
	start := time.Now()
	if !amount.IsPositive() {
		return nil, reject("deposit", ErrInvalidAmount)
	}

	var client *model.Client
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetClient(ctx, clientID); err != nil {
			return mapNotFound(err)
		}
		if err := tx.AdjustClientCapital(ctx, clientID, amount); err != nil {
			return mapNotFound(err)
		}
		if err := tx.InsertCashMovement(ctx, &model.CashMovement{
			ID:        uuid.New().String(),
			ClientID:  clientID,
			Type:      model.MovementDeposit,
			Amount:    amount,
			Note:      note,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		var err error
		client, err = tx.GetClient(ctx, clientID)
		return err
	})
	if err != nil {
		return nil, reject("deposit", err)
	}

	observe("deposit", start, "client", clientID, "amount", amount.String())
	s.broadcast(WSMessage{Type: "deposit", ClientID: clientID, Amount: amount.String(), Capital: client.CapitalAvailable.String()})
	return client, nil
}

// Withdraw debits amount from the client's available capital and appends a
// WITHDRAW cash movement, atomically. Capital can never go negative.
func (s *Service) Withdraw(ctx context.Context, clientID string, amount decimal.Decimal, note string) (*model.Client, error) {
	start := time.Now()
	if !amount.IsPositive() {
		return nil, reject("withdraw", ErrInvalidAmount)
	}

	var client *model.Client
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		c, err := tx.GetClient(ctx, clientID)
		if err != nil {
			return mapNotFound(err)
		}
		if c.CapitalAvailable.LessThan(amount) {
			return ErrInsufficientFunds
		}
		if err := tx.AdjustClientCapital(ctx, clientID, amount.Neg()); err != nil {
			return mapNotFound(err)
		}
		if err := tx.InsertCashMovement(ctx, &model.CashMovement{
			ID:        uuid.New().String(),
			ClientID:  clientID,
			Type:      model.MovementWithdraw,
			Amount:    amount,
			Note:      note,
			CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		client, err = tx.GetClient(ctx, clientID)
		return err
	})
	if err != nil {
		return nil, reject("withdraw", err)
	}

	observe("withdraw", start, "client", clientID, "amount", amount.String())
	s.broadcast(WSMessage{Type: "withdraw", ClientID: clientID, Amount: amount.String(), Capital: client.CapitalAvailable.String()})
	return client, nil
}

// --- Trades ---

// Buy spends amount of the client's capital on company shares at price.
// An existing open position is merged into a new weighted-average cost
// basis; otherwise a fresh position is created. Appends a BUY trade and a
// price sample, atomically.
func (s *Service) Buy(ctx context.Context, clientID, company, category string, amount, price decimal.Decimal, note string) (*model.Investment, error) {
	start := time.Now()
	if !amount.IsPositive() || !price.IsPositive() {
		return nil, reject("buy", ErrInvalidAmount)
	}
	if company == "" {
		return nil, reject("buy", errors.New("portfolio: company is required"))
	}

	var result *model.Investment
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		client, err := tx.GetClient(ctx, clientID)
		if err != nil {
			return mapNotFound(err)
		}
		if client.CapitalAvailable.LessThan(amount) {
			return ErrInsufficientFunds
		}

		now := time.Now().UTC()
		sharesDelta, err := costbasis.SharesFor(amount, price)
		if err != nil {
			return ErrInvalidAmount
		}

		inv, err := tx.GetInvestmentByCompany(ctx, clientID, company)
		switch {
		case err == nil:
			newShares, newAvg, merr := costbasis.Merge(inv.Shares, inv.AvgPrice, amount, price)
			if merr != nil {
				return ErrInvalidAmount
			}
			if err := tx.UpdateInvestment(ctx, inv.ID, newAvg, newShares); err != nil {
				return err
			}
			inv.AvgPrice, inv.Shares = newAvg, newShares
		case errors.Is(err, store.ErrNotFound):
			inv = &model.Investment{
				ID:        uuid.New().String(),
				ClientID:  clientID,
				Company:   company,
				Category:  category,
				AvgPrice:  price,
				Shares:    sharesDelta,
				CreatedAt: now,
			}
			if err := tx.CreateInvestment(ctx, inv); err != nil {
				return err
			}
		default:
			return err
		}

		if err := tx.AdjustClientCapital(ctx, clientID, amount.Neg()); err != nil {
			return mapNotFound(err)
		}
		if err := tx.InsertTrade(ctx, &model.Trade{
			ID:           uuid.New().String(),
			InvestmentID: inv.ID,
			Type:         model.TradeBuy,
			Shares:       sharesDelta,
			Price:        price,
			Amount:       amount,
			Note:         note,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		if err := tx.InsertPricePoint(ctx, &model.PricePoint{
			InvestmentID: inv.ID,
			Price:        price,
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		result = inv
		return nil
	})
	if err != nil {
		return nil, reject("buy", err)
	}

	observe("buy", start,
		"client", clientID,
		"company", company,
		"amount", amount.String(),
		"price", price.String(),
		"shares", result.Shares.String(),
		"avg_price", result.AvgPrice.String(),
	)
	s.broadcast(WSMessage{
		Type: "buy", ClientID: clientID, InvestmentID: result.ID,
		Company: company, Price: price.String(), Shares: result.Shares.String(),
	})
	return result, nil
}

// Sell disposes sharesToSell of an investment at price, crediting the
// proceeds to the owner's capital. The average price is untouched for a
// partial sell and reset to zero when the position closes. Appends a SELL
// trade and a price sample, atomically.
func (s *Service) Sell(ctx context.Context, investmentID string, sharesToSell, price decimal.Decimal, note string) (*model.Investment, error) {
	start := time.Now()
	if !sharesToSell.IsPositive() || !price.IsPositive() {
		return nil, reject("sell", ErrInvalidAmount)
	}

	var result *model.Investment
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		inv, err := tx.GetInvestment(ctx, investmentID)
		if err != nil {
			return mapNotFound(err)
		}

		remaining, newAvg, err := costbasis.Reduce(inv.Shares, inv.AvgPrice, sharesToSell)
		if errors.Is(err, costbasis.ErrSharesExceedHeld) {
			return ErrInsufficientShares
		}
		if err != nil {
			return ErrInvalidAmount
		}
		amount, err := costbasis.Proceeds(sharesToSell, price)
		if err != nil {
			return ErrInvalidAmount
		}

		now := time.Now().UTC()
		if err := tx.UpdateInvestment(ctx, inv.ID, newAvg, remaining); err != nil {
			return err
		}
		if err := tx.AdjustClientCapital(ctx, inv.ClientID, amount); err != nil {
			return mapNotFound(err)
		}
		if err := tx.InsertTrade(ctx, &model.Trade{
			ID:           uuid.New().String(),
			InvestmentID: inv.ID,
			Type:         model.TradeSell,
			Shares:       sharesToSell,
			Price:        price,
			Amount:       amount,
			Note:         note,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		if err := tx.InsertPricePoint(ctx, &model.PricePoint{
			InvestmentID: inv.ID,
			Price:        price,
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		inv.AvgPrice, inv.Shares = newAvg, remaining
		result = inv
		return nil
	})
	if err != nil {
		return nil, reject("sell", err)
	}

	observe("sell", start,
		"investment", investmentID,
		"shares", sharesToSell.String(),
		"price", price.String(),
		"remaining", result.Shares.String(),
	)
	s.broadcast(WSMessage{
		Type: "sell", ClientID: result.ClientID, InvestmentID: result.ID,
		Company: result.Company, Price: price.String(), Shares: result.Shares.String(),
	})
	return result, nil
}

// UpdatePrice records a new market price for an investment without touching
// shares or capital: one PRICE_UPDATE trade plus one price sample. This is
// how the current price advances independent of trading.
func (s *Service) UpdatePrice(ctx context.Context, investmentID string, price decimal.Decimal, note string) error {
	start := time.Now()
	if !price.IsPositive() {
		return reject("price_update", ErrInvalidAmount)
	}

	var inv *model.Investment
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		var err error
		inv, err = tx.GetInvestment(ctx, investmentID)
		if err != nil {
			return mapNotFound(err)
		}

		now := time.Now().UTC()
		if err := tx.InsertTrade(ctx, &model.Trade{
			ID:           uuid.New().String(),
			InvestmentID: investmentID,
			Type:         model.TradePriceUpdate,
			Shares:       decimal.Zero,
			Price:        price,
			Amount:       decimal.Zero,
			Note:         note,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		return tx.InsertPricePoint(ctx, &model.PricePoint{
			InvestmentID: investmentID,
			Price:        price,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return reject("price_update", err)
	}

	observe("price_update", start, "investment", investmentID, "price", price.String())
	s.broadcast(WSMessage{
		Type: "price_update", ClientID: inv.ClientID, InvestmentID: investmentID,
		Company: inv.Company, Price: price.String(),
	})
	return nil
}

// PriceHistory returns all recorded price samples for an investment,
// newest first.
func (s *Service) PriceHistory(ctx context.Context, investmentID string) ([]model.PricePoint, error) {
	if _, err := s.store.GetInvestment(ctx, investmentID); err != nil {
		return nil, mapNotFound(err)
	}
	return s.store.PriceHistory(ctx, investmentID)
}

func (s *Service) broadcast(msg WSMessage) {
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
}
