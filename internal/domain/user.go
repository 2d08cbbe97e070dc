package domain

import "time"

// ============================================================
// Ledger record
// ============================================================

// Investment statuses.
const (
	InvestmentActive    = "active"
	InvestmentCompleted = "completed"
)

// Withdrawal statuses. Only pending/processing are set by the ledger; the
// rest are applied by the payment operator.
const (
	WithdrawalPending    = "pending"
	WithdrawalProcessing = "processing"
	WithdrawalCompleted  = "completed"
	WithdrawalRejected   = "rejected"
)

// Deposit statuses.
const (
	DepositPending   = "pending"
	DepositConfirmed = "confirmed"
)

// PIX key types accepted for withdrawals.
const (
	PixTypeCPF   = "cpf"
	PixTypeEmail = "email"
	PixTypePhone = "phone"
)

// User is the ledger record owned by one account.
type User struct {
	ID        string `json:"id"`
	DisplayID string `json:"displayId"`
	Name      string `json:"name"`
	Email     string `json:"email"`

	Balance       float64 `json:"balance"`
	TotalEarnings float64 `json:"totalEarnings"`
	TodayEarnings float64 `json:"todayEarnings"`

	InviteCode string     `json:"inviteCode"`
	InvitedBy  *string    `json:"invitedBy"`
	Referrals  []Referral `json:"referrals"`

	CheckinDays   []int   `json:"checkinDays"`
	LastCheckin   *string `json:"lastCheckin"`
	RouletteSpins int     `json:"rouletteSpins"`

	Investments []Investment `json:"investments"`
	Withdrawals []Withdrawal `json:"withdrawals"`
	Deposits    []Deposit    `json:"deposits"`

	Banned    bool      `json:"banned"`
	CreatedAt time.Time `json:"createdAt"`

	// Version is the optimistic concurrency token maintained by the stores.
	Version int64 `json:"version"`
}

// Referral is kept by the inviter, one per invited user.
type Referral struct {
	ID           string    `json:"id"`
	DisplayID    string    `json:"displayId"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Level        int       `json:"level"`
	Earnings     float64   `json:"earnings"`
	HasPurchased bool      `json:"hasPurchased"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Investment is a purchased product accruing a fixed daily return.
type Investment struct {
	ID            string    `json:"id"`
	ProductID     int       `json:"productId"`
	ProductName   string    `json:"productName"`
	Amount        float64   `json:"amount"`
	DailyReturn   float64   `json:"dailyReturn"`
	TotalDays     int       `json:"totalDays"`
	RemainingDays int       `json:"remainingDays"`
	StartDate     time.Time `json:"startDate"`
	LastClaimDate time.Time `json:"lastClaimDate"`
	Status        string    `json:"status"` // active, completed
}

// Withdrawal is a payout request. Amount is the gross value debited.
type Withdrawal struct {
	ID        string     `json:"id"`
	Amount    float64    `json:"amount"`
	Fee       float64    `json:"fee"`
	NetAmount float64    `json:"netAmount"`
	PixKey    string     `json:"pixKey"`
	PixType   string     `json:"pixType"`
	Status    string     `json:"status"` // pending, processing, completed, rejected
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// Deposit is a PIX charge waiting for (or having received) payment.
type Deposit struct {
	ID          string     `json:"id"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"` // pending, confirmed
	PixCode     string     `json:"pixCode"`
	GatewayID   string     `json:"gatewayId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ConfirmedAt *time.Time `json:"confirmedAt,omitempty"`
}

// Clone returns a deep copy so callers can mutate without aliasing stored slices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.InvitedBy != nil {
		v := *u.InvitedBy
		c.InvitedBy = &v
	}
	if u.LastCheckin != nil {
		v := *u.LastCheckin
		c.LastCheckin = &v
	}
	c.Referrals = append([]Referral(nil), u.Referrals...)
	c.CheckinDays = append([]int(nil), u.CheckinDays...)
	c.Investments = append([]Investment(nil), u.Investments...)
	c.Withdrawals = append([]Withdrawal(nil), u.Withdrawals...)
	c.Deposits = append([]Deposit(nil), u.Deposits...)
	for i, d := range c.Deposits {
		if d.ConfirmedAt != nil {
			t := *d.ConfirmedAt
			c.Deposits[i].ConfirmedAt = &t
		}
	}
	for i, w := range c.Withdrawals {
		if w.UpdatedAt != nil {
			t := *w.UpdatedAt
			c.Withdrawals[i].UpdatedAt = &t
		}
	}
	return &c
}

// ReferralsByLevel returns the referrals at the given invite-chain distance.
func (u *User) ReferralsByLevel(level int) []Referral {
	out := make([]Referral, 0)
	for _, r := range u.Referrals {
		if r.Level == level {
			out = append(out, r)
		}
	}
	return out
}

// Credential holds the password hash of an account, stored apart from the ledger record.
type Credential struct {
	UserID       string    `json:"user_id"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
