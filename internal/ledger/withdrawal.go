package ledger

import (
	"time"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

// WithdrawalRequest carries the caller's payout instructions.
type WithdrawalRequest struct {
	Amount  float64
	PixKey  string
	PixType string
}

// InWithdrawalWindow reports whether now's local hour is within [open, close).
func InWithdrawalWindow(now time.Time) bool {
	h := now.Hour()
	return h >= domain.WithdrawOpenHour && h < domain.WithdrawCloseHour
}

// WithdrawalFee returns the fee and the net amount paid out for a gross amount.
func WithdrawalFee(amount float64) (fee, net float64) {
	fee = pct(amount, domain.WithdrawalFeeRate)
	return fee, sub(amount, fee)
}

// ValidateWithdrawal runs every check of a withdrawal without mutating u.
// now is the instant the withdrawal was requested.
func ValidateWithdrawal(u *domain.User, req WithdrawalRequest, now time.Time) error {
	if !InWithdrawalWindow(now) {
		return &domain.ErrOutsideWindow{OpenHour: domain.WithdrawOpenHour, CloseHour: domain.WithdrawCloseHour}
	}
	if req.Amount < domain.MinWithdrawal {
		return &domain.ErrValidation{Field: "amount", Message: "Valor mínimo de saque: R$ 35,00"}
	}
	if req.Amount > u.Balance {
		return &domain.ErrInsufficientFunds{Available: u.Balance, Required: req.Amount}
	}
	return nil
}

// Withdraw debits the gross amount and appends the withdrawal with the given
// initial status. The service reserves with pending before the gateway call.
func Withdraw(u *domain.User, req WithdrawalRequest, now time.Time, id, status string) (*domain.Withdrawal, error) {
	if err := ValidateWithdrawal(u, req, now); err != nil {
		return nil, err
	}

	fee, net := WithdrawalFee(req.Amount)
	u.Balance = sub(u.Balance, req.Amount)
	u.Withdrawals = append(u.Withdrawals, domain.Withdrawal{
		ID:        id,
		Amount:    req.Amount,
		Fee:       fee,
		NetAmount: net,
		PixKey:    req.PixKey,
		PixType:   req.PixType,
		Status:    status,
		CreatedAt: now,
	})
	return &u.Withdrawals[len(u.Withdrawals)-1], nil
}

// ReleaseWithdrawal removes a pending withdrawal and refunds its amount. It
// reports false when the withdrawal is gone or has already moved on.
func ReleaseWithdrawal(u *domain.User, withdrawalID string) bool {
	for i, w := range u.Withdrawals {
		if w.ID != withdrawalID {
			continue
		}
		if w.Status != domain.WithdrawalPending {
			return false
		}
		u.Balance = add(u.Balance, w.Amount)
		u.Withdrawals = append(u.Withdrawals[:i], u.Withdrawals[i+1:]...)
		return true
	}
	return false
}

// withdrawalTransitions lists the moves an operator may apply.
var withdrawalTransitions = map[string][]string{
	domain.WithdrawalPending:    {domain.WithdrawalProcessing, domain.WithdrawalCompleted, domain.WithdrawalRejected},
	domain.WithdrawalProcessing: {domain.WithdrawalCompleted, domain.WithdrawalRejected},
}

// SetWithdrawalStatus advances a withdrawal along the operator state machine.
// Rejection does not refund the debited amount.
func SetWithdrawalStatus(u *domain.User, withdrawalID, status string, now time.Time) (*domain.Withdrawal, error) {
	for i := range u.Withdrawals {
		w := &u.Withdrawals[i]
		if w.ID != withdrawalID {
			continue
		}
		for _, next := range withdrawalTransitions[w.Status] {
			if next == status {
				w.Status = status
				w.UpdatedAt = &now
				return w, nil
			}
		}
		return nil, &domain.ErrConflict{Message: "transição de status inválida: " + w.Status + " -> " + status}
	}
	return nil, &domain.ErrNotFound{Resource: "withdrawal", ID: withdrawalID}
}
