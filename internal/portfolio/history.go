package portfolio

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Jorgeluia82/inversiones/internal/model"
)

const dayLayout = "2006-01-02"

// HistoryFilter selects the time range for a history query. Day wins over
// From/To; all three empty means unfiltered. Dates use YYYY-MM-DD and the
// resulting range is inclusive: [start 00:00:00, end 23:59:59].
type HistoryFilter struct {
	Day  string
	From string
	To   string
}

// rangeBounds resolves the filter into inclusive bounds, or (nil, nil)
// when unfiltered.
func (f HistoryFilter) rangeBounds() (*time.Time, *time.Time, error) {
	parse := func(s string) (time.Time, error) {
		t, err := time.Parse(dayLayout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
		}
		return t, nil
	}

	var startDay, endDay time.Time
	switch {
	case f.Day != "":
		d, err := parse(f.Day)
		if err != nil {
			return nil, nil, err
		}
		startDay, endDay = d, d
	case f.From != "" && f.To != "":
		var err error
		if startDay, err = parse(f.From); err != nil {
			return nil, nil, err
		}
		if endDay, err = parse(f.To); err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, nil
	}

	start := startDay
	end := endDay.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	return &start, &end, nil
}

// GetClientHistory merges the client's cash movements and trades into one
// unified sequence, newest first. Events sharing the same second sort cash
// movements before trades, each group newest-insertion-first (stable sort
// over cash-then-trades projection order) — the stores keep no ordering
// signal across the two record types finer than one second.
//
// The result is a fresh projection on every call, never cached.
func (s *Service) GetClientHistory(ctx context.Context, clientID string, filter HistoryFilter) ([]model.HistoryEvent, error) {
	from, to, err := filter.rangeBounds()
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetClient(ctx, clientID); err != nil {
		return nil, mapNotFound(err)
	}

	cash, err := s.store.CashMovements(ctx, clientID, from, to)
	if err != nil {
		return nil, err
	}
	trades, err := s.store.TradesWithCompany(ctx, clientID, from, to)
	if err != nil {
		return nil, err
	}

	events := make([]model.HistoryEvent, 0, len(cash)+len(trades))
	for _, m := range cash {
		events = append(events, projectMovement(m))
	}
	for _, t := range trades {
		events = append(events, projectTrade(t))
	}

	sort.SliceStable(events, func(i, j int) bool {
		// Whole-second comparison mirrors the fixed-width timestamp
		// format used on the wire and in exports.
		return events[i].Timestamp.Truncate(time.Second).
			After(events[j].Timestamp.Truncate(time.Second))
	})
	return events, nil
}

// projectMovement turns a cash movement into a unified event.
// Capital delta: +amount for DEPOSIT, -amount for WITHDRAW.
func projectMovement(m model.CashMovement) model.HistoryEvent {
	delta := m.Amount
	if m.Type == model.MovementWithdraw {
		delta = m.Amount.Neg()
	}
	detail := fmt.Sprintf("%s $%s", m.Type, m.Amount.StringFixed(2))
	if m.Note != "" {
		detail += fmt.Sprintf(" (%s)", m.Note)
	}
	return model.HistoryEvent{
		Timestamp:    m.CreatedAt,
		Kind:         model.KindCash,
		Type:         m.Type,
		Detail:       detail,
		CapitalDelta: delta,
	}
}

// projectTrade turns a trade into a unified event.
// Capital delta: -amount for BUY, +amount for SELL, 0 for PRICE_UPDATE.
func projectTrade(t model.TradeWithCompany) model.HistoryEvent {
	var detail string
	delta := t.Amount
	kind := model.KindInvestment

	switch t.Type {
	case model.TradeBuy:
		detail = fmt.Sprintf("BUY %s @ $%s de %s", t.Shares.StringFixed(4), t.Price.StringFixed(2), t.Company)
		delta = t.Amount.Neg()
	case model.TradeSell:
		detail = fmt.Sprintf("SELL %s @ $%s de %s", t.Shares.StringFixed(4), t.Price.StringFixed(2), t.Company)
	default: // PRICE_UPDATE
		detail = fmt.Sprintf("PRICE_UPDATE @ $%s de %s", t.Price.StringFixed(2), t.Company)
		delta = decimal.Zero
		kind = model.KindPrice
	}
	if t.Note != "" {
		detail += fmt.Sprintf(" (%s)", t.Note)
	}

	return model.HistoryEvent{
		Timestamp:    t.CreatedAt,
		Kind:         kind,
		Type:         t.Type,
		Company:      t.Company,
		Detail:       detail,
		CapitalDelta: delta,
		Shares:       t.Shares,
		Price:        t.Price,
	}
}
