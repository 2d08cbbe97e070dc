// Package ledger implements the balance-mutating rules of the rewards core:
// accrual of investment returns, purchases, check-ins, the prize wheel,
// withdrawals, deposits and referral bookkeeping.
//
// Every function here operates on an in-memory *domain.User and never talks
// to storage; callers load, mutate and persist through port.UserStore.
package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

// Amounts are stored as float64 but all arithmetic is done in decimal and
// rounded to cents, so 35 × 0.10 is 3.5 and not 3.5000000000000004.

func add(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

func sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

func mul(a float64, n int64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromInt(n)).Round(2).InexactFloat64()
}

func pct(a, rate float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(rate)).Round(2).InexactFloat64()
}

// credit adds a reward to balance, totalEarnings and todayEarnings together.
func credit(u *domain.User, amount float64) {
	u.Balance = add(u.Balance, amount)
	u.TotalEarnings = add(u.TotalEarnings, amount)
	u.TodayEarnings = add(u.TodayEarnings, amount)
}
