package ledger

import (
	"time"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

// ValidateDeposit checks the minimum deposit amount.
func ValidateDeposit(amount float64) error {
	if amount < domain.MinDeposit {
		return &domain.ErrValidation{Field: "amount", Message: "Valor mínimo de depósito: R$ 30,00"}
	}
	return nil
}

// AddDeposit appends a pending deposit. The balance only changes on confirmation.
func AddDeposit(u *domain.User, amount float64, pixCode, gatewayID, id string, now time.Time) (*domain.Deposit, error) {
	if err := ValidateDeposit(amount); err != nil {
		return nil, err
	}
	u.Deposits = append(u.Deposits, domain.Deposit{
		ID:        id,
		Amount:    amount,
		Status:    domain.DepositPending,
		PixCode:   pixCode,
		GatewayID: gatewayID,
		CreatedAt: now,
	})
	return &u.Deposits[len(u.Deposits)-1], nil
}

// ConfirmDeposit credits a pending deposit and grants one spin. A missing or
// already confirmed deposit is a no-op and reports false.
func ConfirmDeposit(u *domain.User, depositID string, now time.Time) bool {
	for i := range u.Deposits {
		d := &u.Deposits[i]
		if d.ID != depositID && (d.GatewayID == "" || d.GatewayID != depositID) {
			continue
		}
		if d.Status == domain.DepositConfirmed {
			return false
		}
		d.Status = domain.DepositConfirmed
		d.ConfirmedAt = &now
		u.Balance = add(u.Balance, d.Amount)
		u.RouletteSpins++
		return true
	}
	return false
}
