package ledger

import (
	"time"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

const day = 24 * time.Hour

// Accrue credits every matured daily return of the user's active investments.
// It reports whether anything was credited; when it returns false the record
// is untouched and callers must not persist it.
//
// The claim watermark moves to now; a partial day elapsed before the claim is
// not carried over.
func Accrue(u *domain.User, now time.Time) bool {
	var total float64
	accrued := false

	for i := range u.Investments {
		inv := &u.Investments[i]
		if inv.Status != domain.InvestmentActive {
			continue
		}

		elapsed := now.Sub(inv.LastClaimDate)
		if elapsed < day {
			continue
		}

		claimable := int(elapsed / day)
		if claimable > inv.RemainingDays {
			claimable = inv.RemainingDays
		}
		if claimable <= 0 {
			continue
		}

		total = add(total, mul(inv.DailyReturn, int64(claimable)))
		inv.RemainingDays -= claimable
		inv.LastClaimDate = now
		if inv.RemainingDays == 0 {
			inv.Status = domain.InvestmentCompleted
		}
		accrued = true
	}

	if !accrued {
		return false
	}
	credit(u, total)
	return true
}

// PendingReturn is the amount Accrue would credit at now, without mutating u.
func PendingReturn(u *domain.User, now time.Time) float64 {
	c := u.Clone()
	before := c.TotalEarnings
	if !Accrue(c, now) {
		return 0
	}
	return sub(c.TotalEarnings, before)
}
