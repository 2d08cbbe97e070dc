package domain

import "time"

// ============================================================
// Ledger operations: Request / Response types
// ============================================================

// PurchaseRequest is the body for POST /v1/me/investments.
type PurchaseRequest struct {
	ProductID int `json:"productId" validate:"required,min=1"`
}

// PurchaseResponse carries the opened investment and the updated record.
type PurchaseResponse struct {
	Investment Investment `json:"investment"`
	User       *User      `json:"user"`
}

// CheckinRequest is the body for POST /v1/me/checkin. Day 0 claims the next
// day of the cycle.
type CheckinRequest struct {
	Day int `json:"day" validate:"min=0,max=7"`
}

// CheckinResponse reports the claimed day and reward.
type CheckinResponse struct {
	Day    int     `json:"day"`
	Reward float64 `json:"reward"`
	User   *User   `json:"user"`
}

// SpinResponse reports the prize drawn by the wheel.
type SpinResponse struct {
	Prize          float64 `json:"prize"`
	RemainingSpins int     `json:"remainingSpins"`
	User           *User   `json:"user"`
}

// WithdrawRequest is the body for POST /v1/me/withdrawals.
type WithdrawRequest struct {
	Amount  float64 `json:"amount" validate:"required,gt=0"`
	PixKey  string  `json:"pixKey" validate:"required,max=140"`
	PixType string  `json:"pixType" validate:"required,oneof=cpf email phone"`
}

// DepositRequest is the body for POST /v1/me/deposits.
type DepositRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

// ConfirmDepositRequest is the body of the deposit confirmation webhook.
type ConfirmDepositRequest struct {
	UserID    string `json:"userId" validate:"required"`
	DepositID string `json:"depositId" validate:"required"`
}

// ConfirmDepositResponse reports whether the confirmation changed the record.
type ConfirmDepositResponse struct {
	Applied bool `json:"applied"`
}

// WithdrawalStatusRequest is the body of the withdrawal status webhook.
type WithdrawalStatusRequest struct {
	UserID       string `json:"userId" validate:"required"`
	WithdrawalID string `json:"withdrawalId" validate:"required"`
	Status       string `json:"status" validate:"required,oneof=processing completed rejected"`
}

// ReferralsResponse groups referrals by level with the advertised rates.
type ReferralsResponse struct {
	InviteCode string             `json:"inviteCode"`
	Levels     map[int][]Referral `json:"levels"`
	Rates      map[int]float64    `json:"commissionRates"`
}

// ============================================================
// Admin
// ============================================================

// DashboardStats is the operator overview.
type DashboardStats struct {
	TotalUsers         int       `json:"totalUsers"`
	BannedUsers        int       `json:"bannedUsers"`
	TotalBalance       float64   `json:"totalBalance"`
	PendingWithdrawals int       `json:"pendingWithdrawals"`
	PendingAmount      float64   `json:"pendingAmount"`
	ActiveInvestments  int       `json:"activeInvestments"`
	GeneratedAt        time.Time `json:"generatedAt"`
	Metrics            any       `json:"metrics,omitempty"`
}

// PendingWithdrawal is one row of the operator withdrawal queue.
type PendingWithdrawal struct {
	UserID     string     `json:"userId"`
	UserName   string     `json:"userName"`
	UserEmail  string     `json:"userEmail"`
	Withdrawal Withdrawal `json:"withdrawal"`
}
