package ledger

import (
	"time"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

// Purchase debits the product price and opens a new active investment.
func Purchase(u *domain.User, p domain.Product, now time.Time, id string) (*domain.Investment, error) {
	if u.Balance < p.Price {
		return nil, &domain.ErrInsufficientFunds{Available: u.Balance, Required: p.Price}
	}

	u.Balance = sub(u.Balance, p.Price)
	u.Investments = append(u.Investments, domain.Investment{
		ID:            id,
		ProductID:     p.ID,
		ProductName:   p.Name,
		Amount:        p.Price,
		DailyReturn:   p.DailyReturn,
		TotalDays:     p.Duration,
		RemainingDays: p.Duration,
		StartDate:     now,
		LastClaimDate: now,
		Status:        domain.InvestmentActive,
	})
	return &u.Investments[len(u.Investments)-1], nil
}

// MarkReferralPurchased flips hasPurchased on the inviter's level-1 referral
// for inviteeID and grants the inviter one spin. It reports false when the
// referral is unknown or was already flagged, so repeated calls never grant twice.
func MarkReferralPurchased(inviter *domain.User, inviteeID string) bool {
	for i := range inviter.Referrals {
		r := &inviter.Referrals[i]
		if r.ID != inviteeID || r.Level != 1 {
			continue
		}
		if r.HasPurchased {
			return false
		}
		r.HasPurchased = true
		inviter.RouletteSpins++
		return true
	}
	return false
}
