// Package costbasis implements the weighted-average cost-basis arithmetic
// for client positions:
//
//   - A buy converts an amount of cash into shares at a price and merges
//     the new lot into the position's single weighted average.
//   - A sell reduces shares at an unchanged average; closing a position
//     resets its cost basis to zero so a later buy starts a fresh average.
//
// The functions are stateless and pure — position state is passed as
// arguments, not stored — so the central pricing algorithm is unit-testable
// without a store.
//
// All monetary values use shopspring/decimal — never float64 for money.
package costbasis

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrNonPositiveAmount is returned when a cash amount is zero or negative.
	ErrNonPositiveAmount = errors.New("costbasis: amount must be positive")

	// ErrNonPositivePrice is returned when a share price is zero or negative.
	ErrNonPositivePrice = errors.New("costbasis: price must be positive")

	// ErrNonPositiveShares is returned when a share quantity is zero or negative.
	ErrNonPositiveShares = errors.New("costbasis: shares must be positive")

	// ErrSharesExceedHeld is returned when a sell asks for more shares than
	// the position holds.
	ErrSharesExceedHeld = errors.New("costbasis: shares to sell exceed shares held")
)

// ShareScale is the number of decimal places kept when dividing an amount
// by a price to obtain a share quantity.
const ShareScale int32 = 8

// SharesFor returns the share quantity bought when spending amount at price:
//
//	shares = amount / price
//
// rounded to ShareScale places.
func SharesFor(amount, price decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrNonPositiveAmount
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrNonPositivePrice
	}
	return amount.DivRound(price, ShareScale), nil
}

// Merge folds a new purchase into an existing position and returns the new
// share count and weighted-average price:
//
//	newShares = oldShares + amount/price
//	newAvg    = (oldAvg*oldShares + amount) / newShares
//
// A fresh or closed position (oldShares == 0) starts at exactly the
// purchase price. oldShares and oldAvg must be non-negative.
func Merge(oldShares, oldAvg, amount, price decimal.Decimal) (newShares, newAvg decimal.Decimal, err error) {
	delta, err := SharesFor(amount, price)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if oldShares.IsNegative() || oldAvg.IsNegative() {
		return decimal.Zero, decimal.Zero, ErrNonPositiveShares
	}

	newShares = oldShares.Add(delta)
	if oldShares.IsZero() {
		return newShares, price, nil
	}
	invested := oldAvg.Mul(oldShares).Add(amount)
	newAvg = invested.DivRound(newShares, ShareScale)
	return newShares, newAvg, nil
}

// Reduce removes sold shares from a position and returns the remaining
// share count and the resulting average price. The average is unchanged
// while shares remain and reset to zero exactly when the position closes.
func Reduce(heldShares, heldAvg, sellShares decimal.Decimal) (remaining, avg decimal.Decimal, err error) {
	if !sellShares.IsPositive() {
		return decimal.Zero, decimal.Zero, ErrNonPositiveShares
	}
	if sellShares.GreaterThan(heldShares) {
		return decimal.Zero, decimal.Zero, ErrSharesExceedHeld
	}

	remaining = heldShares.Sub(sellShares)
	if remaining.IsZero() {
		return remaining, decimal.Zero, nil
	}
	return remaining, heldAvg, nil
}

// Proceeds returns the cash credited for selling shares at price:
//
//	amount = shares * price
func Proceeds(shares, price decimal.Decimal) (decimal.Decimal, error) {
	if !shares.IsPositive() {
		return decimal.Zero, ErrNonPositiveShares
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrNonPositivePrice
	}
	return shares.Mul(price), nil
}
