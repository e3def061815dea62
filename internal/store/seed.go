package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/model"
)

// SeedDemo populates an empty store with one demo client holding an open
// ACME position, so a fresh deployment has something to look at. It is
// idempotent: any existing client makes it a no-op. Runs as one
// transaction — a half-seeded store is never committed.
func SeedDemo(ctx context.Context, s Store) error {
	clients, err := s.ListClients(ctx, "")
	if err != nil {
		return err
	}
	if len(clients) > 0 {
		return nil
	}

	now := time.Now().UTC()
	client := &model.Client{
		ID:               uuid.New().String(),
		Name:             "Cliente Demo",
		Email:            "demo@example.com",
		Phone:            "555-000-0000",
		CapitalAvailable: decimal.NewFromInt(12000),
		CreatedAt:        now,
	}
	inv := &model.Investment{
		ID:        uuid.New().String(),
		ClientID:  client.ID,
		Company:   "ACME",
		Category:  "Tecnología",
		AvgPrice:  decimal.NewFromInt(100),
		Shares:    decimal.NewFromInt(20),
		CreatedAt: now,
	}
	buyAmount := decimal.NewFromInt(2000)

	return s.WithTx(ctx, func(tx Store) error {
		if err := tx.CreateClient(ctx, client); err != nil {
			return err
		}
		if err := tx.CreateInvestment(ctx, inv); err != nil {
			return err
		}
		if err := tx.InsertTrade(ctx, &model.Trade{
			ID:           uuid.New().String(),
			InvestmentID: inv.ID,
			Type:         model.TradeBuy,
			Shares:       inv.Shares,
			Price:        inv.AvgPrice,
			Amount:       buyAmount,
			Note:         "Seed",
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		if err := tx.InsertPricePoint(ctx, &model.PricePoint{
			InvestmentID: inv.ID,
			Price:        decimal.NewFromInt(105),
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		if err := tx.InsertCashMovement(ctx, &model.CashMovement{
			ID:        uuid.New().String(),
			ClientID:  client.ID,
			Type:      model.MovementWithdraw,
			Amount:    buyAmount,
			Note:      "Compra inicial ACME",
			CreatedAt: now,
		}); err != nil {
			return err
		}
		return tx.AdjustClientCapital(ctx, client.ID, buyAmount.Neg())
	})
}
