package portfolio

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/model"
	"github.com/Jorgeluia82/inversiones/internal/store"
)

// valuationScale is the rounding applied to derived ratios (return rate,
// portfolio-share fractions).
const valuationScale int32 = 8

// currentPrice resolves an investment's market price: the most recent
// price sample, or the average cost when no sample exists yet.
func (s *Service) currentPrice(ctx context.Context, inv model.Investment) (decimal.Decimal, error) {
	price, err := s.store.LastPrice(ctx, inv.ID)
	if errors.Is(err, store.ErrNotFound) {
		return inv.AvgPrice, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

// GetClientPortfolio values every open position of one client: invested
// amount, mark-to-market value, P&L, return rate, and the position's share
// of the client's book and of the global book across all clients. Closed
// positions (shares = 0) stay in storage but are hidden here.
//
// This is a read-only aggregation; it runs outside any transaction and may
// observe in-flight writes under a concurrent writer.
func (s *Service) GetClientPortfolio(ctx context.Context, clientID string) (*model.PortfolioReport, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	invs, err := s.store.GetInvestmentsByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.GetAllInvestments(ctx)
	if err != nil {
		return nil, err
	}

	// Global market value over every client's open positions.
	globalTotal := decimal.Zero
	for _, inv := range all {
		if !inv.Open() {
			continue
		}
		price, err := s.currentPrice(ctx, inv)
		if err != nil {
			return nil, err
		}
		globalTotal = globalTotal.Add(price.Mul(inv.Shares))
	}

	report := &model.PortfolioReport{
		ClientID:         clientID,
		CapitalAvailable: client.CapitalAvailable,
		Positions:        []model.PortfolioPosition{},
		GlobalTotalValue: globalTotal,
	}

	ownerTotal := decimal.Zero
	for _, inv := range invs {
		if !inv.Open() {
			continue
		}
		price, err := s.currentPrice(ctx, inv)
		if err != nil {
			return nil, err
		}

		invested := inv.AvgPrice.Mul(inv.Shares)
		current := price.Mul(inv.Shares)
		pnl := current.Sub(invested)

		returnRate := decimal.Zero
		if !invested.IsZero() {
			returnRate = pnl.DivRound(invested, valuationScale)
		}

		ownerTotal = ownerTotal.Add(current)
		report.TotalPnL = report.TotalPnL.Add(pnl)
		report.Positions = append(report.Positions, model.PortfolioPosition{
			InvestmentID:   inv.ID,
			Company:        inv.Company,
			Category:       inv.Category,
			Shares:         inv.Shares,
			AvgPrice:       inv.AvgPrice,
			CurrentPrice:   price,
			InvestedAmount: invested,
			CurrentValue:   current,
			PnL:            pnl,
			ReturnRate:     returnRate,
		})
	}
	report.TotalValue = ownerTotal

	// Portfolio-share fractions need both totals settled first.
	for i := range report.Positions {
		current := report.Positions[i].CurrentValue
		if !ownerTotal.IsZero() {
			report.Positions[i].PercentOfOwner = current.DivRound(ownerTotal, valuationScale)
		}
		if !globalTotal.IsZero() {
			report.Positions[i].PercentOfGlobal = current.DivRound(globalTotal, valuationScale)
		}
	}

	return report, nil
}
