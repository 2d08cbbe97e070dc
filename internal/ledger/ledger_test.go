package ledger_test

import (
	"encoding/json"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/ledger"
)

var base = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

func userWithInvestment(daily float64, remaining int, lastClaim time.Time) *domain.User {
	return &domain.User{
		ID: "u1",
		Investments: []domain.Investment{{
			ID:            "inv-1",
			DailyReturn:   daily,
			TotalDays:     60,
			RemainingDays: remaining,
			StartDate:     lastClaim,
			LastClaimDate: lastClaim,
			Status:        domain.InvestmentActive,
		}},
	}
}

// --- Accrual ---

func TestAccrue_NothingMatured(t *testing.T) {
	u := userWithInvestment(6, 60, base)
	before, _ := json.Marshal(u)

	assert.False(t, ledger.Accrue(u, base.Add(23*time.Hour+59*time.Minute)))

	after, _ := json.Marshal(u)
	assert.JSONEq(t, string(before), string(after))
}

func TestAccrue_CreditsWholeDays(t *testing.T) {
	u := userWithInvestment(6, 60, base)
	now := base.Add(3*24*time.Hour + 5*time.Hour)

	require.True(t, ledger.Accrue(u, now))

	assert.Equal(t, 18.0, u.Balance)
	assert.Equal(t, 18.0, u.TotalEarnings)
	assert.Equal(t, 18.0, u.TodayEarnings)
	assert.Equal(t, 57, u.Investments[0].RemainingDays)
	assert.Equal(t, now, u.Investments[0].LastClaimDate)
	assert.Equal(t, domain.InvestmentActive, u.Investments[0].Status)
}

func TestAccrue_IdempotentWithinWindow(t *testing.T) {
	u := userWithInvestment(10, 60, base)
	now := base.Add(48 * time.Hour)
	require.True(t, ledger.Accrue(u, now))

	first, _ := json.Marshal(u)
	assert.False(t, ledger.Accrue(u, now.Add(12*time.Hour)))
	second, _ := json.Marshal(u)

	assert.Equal(t, string(first), string(second))
}

func TestAccrue_ClampsToRemainingAndCompletes(t *testing.T) {
	u := userWithInvestment(20, 2, base)

	require.True(t, ledger.Accrue(u, base.Add(10*24*time.Hour)))

	inv := u.Investments[0]
	assert.Equal(t, 0, inv.RemainingDays)
	assert.Equal(t, domain.InvestmentCompleted, inv.Status)
	assert.Equal(t, 40.0, u.Balance)

	assert.False(t, ledger.Accrue(u, base.Add(30*24*time.Hour)))
	assert.Equal(t, 40.0, u.Balance)
	assert.Equal(t, 0, u.Investments[0].RemainingDays)
}

func TestAccrue_SumsAcrossInvestments(t *testing.T) {
	u := userWithInvestment(6, 60, base)
	u.Investments = append(u.Investments,
		domain.Investment{ID: "inv-2", DailyReturn: 10, RemainingDays: 60, LastClaimDate: base.Add(12 * time.Hour), Status: domain.InvestmentActive},
		domain.Investment{ID: "inv-3", DailyReturn: 500, RemainingDays: 0, LastClaimDate: base, Status: domain.InvestmentCompleted},
	)
	u.Balance = 1.5

	require.True(t, ledger.Accrue(u, base.Add(30*time.Hour)))

	// inv-1 matured one day, inv-2 only 18h
	assert.Equal(t, 7.5, u.Balance)
	assert.Equal(t, 6.0, u.TotalEarnings)
	assert.Equal(t, base.Add(12*time.Hour), u.Investments[1].LastClaimDate)
	assert.Equal(t, 60, u.Investments[1].RemainingDays)
}

func TestPendingReturn_DoesNotMutate(t *testing.T) {
	u := userWithInvestment(6, 60, base)

	assert.Equal(t, 12.0, ledger.PendingReturn(u, base.Add(49*time.Hour)))
	assert.Equal(t, 0.0, u.Balance)
	assert.Equal(t, 60, u.Investments[0].RemainingDays)
}

// --- Purchase & referral grant ---

func TestPurchase_InsufficientFunds(t *testing.T) {
	u := &domain.User{Balance: 29.99}
	p, _ := domain.FindProduct(1)

	_, err := ledger.Purchase(u, p, base, "inv-1")

	var insufficient *domain.ErrInsufficientFunds
	require.ErrorAs(t, err, &insufficient)
	assert.Empty(t, u.Investments)
	assert.Equal(t, 29.99, u.Balance)
}

func TestPurchase_OpensActiveInvestment(t *testing.T) {
	u := &domain.User{Balance: 120}
	p, _ := domain.FindProduct(3)

	inv, err := ledger.Purchase(u, p, base, "inv-1")
	require.NoError(t, err)

	assert.Equal(t, 20.0, u.Balance)
	assert.Equal(t, 60, inv.TotalDays)
	assert.Equal(t, 60, inv.RemainingDays)
	assert.Equal(t, base, inv.StartDate)
	assert.Equal(t, base, inv.LastClaimDate)
	assert.Equal(t, domain.InvestmentActive, inv.Status)
	assert.Equal(t, "Minerador Ouro", inv.ProductName)
}

func TestMarkReferralPurchased_GrantsOnce(t *testing.T) {
	inviter := &domain.User{ID: "a"}
	invitee := &domain.User{ID: "b", Name: "Bia"}
	ledger.LinkReferral(inviter, invitee, base)

	assert.True(t, ledger.MarkReferralPurchased(inviter, "b"))
	assert.False(t, ledger.MarkReferralPurchased(inviter, "b"))
	assert.False(t, ledger.MarkReferralPurchased(inviter, "unknown"))

	assert.Equal(t, 1, inviter.RouletteSpins)
	assert.True(t, inviter.Referrals[0].HasPurchased)
}

func TestLinkReferral_LevelOneOnly(t *testing.T) {
	inviter := &domain.User{ID: "a"}
	invitee := &domain.User{ID: "b", DisplayID: "123456", Name: "Bia", Email: "bia@x.com"}

	ledger.LinkReferral(inviter, invitee, base)
	ledger.LinkReferral(inviter, invitee, base)

	require.Len(t, inviter.Referrals, 1)
	r := inviter.Referrals[0]
	assert.Equal(t, 1, r.Level)
	assert.Equal(t, 0.0, r.Earnings)
	assert.False(t, r.HasPurchased)
	assert.Equal(t, "123456", r.DisplayID)
	require.NotNil(t, invitee.InvitedBy)
	assert.Equal(t, "a", *invitee.InvitedBy)
	assert.Empty(t, inviter.ReferralsByLevel(2))
	assert.Empty(t, inviter.ReferralsByLevel(3))
}

func TestNewInviteCode_Format(t *testing.T) {
	code, err := ledger.NewInviteCode()
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Z0-9]{8}$`, code)

	id, err := ledger.NewDisplayID()
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9]{6}$`, id)
}

// --- Check-in ---

func TestCheckin_RewardTable(t *testing.T) {
	want := []float64{1, 2, 3, 4, 5, 7, 10}
	u := &domain.User{}
	now := base

	for i, w := range want {
		d := ledger.NextCheckinDay(u)
		require.Equal(t, i+1, d)

		got, err := ledger.Checkin(u, d, now)
		require.NoError(t, err)
		assert.Equal(t, w, got)
		now = now.Add(24 * time.Hour)
	}

	assert.Equal(t, 32.0, u.Balance)
	assert.Equal(t, 32.0, u.TodayEarnings)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, u.CheckinDays)
	assert.Equal(t, 0.0, ledger.CheckinReward(8))
	assert.Equal(t, 0.0, ledger.CheckinReward(0))
}

func TestCheckin_SameDateFails(t *testing.T) {
	u := &domain.User{}
	_, err := ledger.Checkin(u, 1, base)
	require.NoError(t, err)

	for _, d := range []int{2, 3, 7} {
		_, err := ledger.Checkin(u, d, base.Add(5*time.Hour))
		var unavailable *domain.ErrCheckinUnavailable
		assert.ErrorAs(t, err, &unavailable)
	}
	assert.Equal(t, 1.0, u.Balance)
}

func TestCheckin_DayAlreadyClaimed(t *testing.T) {
	u := &domain.User{CheckinDays: []int{1}}

	_, err := ledger.Checkin(u, 1, base)

	var unavailable *domain.ErrCheckinUnavailable
	assert.ErrorAs(t, err, &unavailable)
	assert.Nil(t, u.LastCheckin)
}

// --- Wheel ---

type seqRand struct{ vals []int }

func (s *seqRand) Intn(n int) int {
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v % n
}

func TestDraw_Boundaries(t *testing.T) {
	cases := []struct {
		r    int
		want float64
	}{
		{0, 1}, {34, 1}, {35, 5}, {64, 5}, {65, 10}, {84, 10}, {85, 15}, {94, 15}, {95, 20}, {99, 20},
	}
	for _, tc := range cases {
		got := ledger.Draw(domain.PrizeTable, &seqRand{vals: []int{tc.r}})
		assert.Equal(t, tc.want, got.Value, "r=%d", tc.r)
	}
}

func TestSpin_NoCredits(t *testing.T) {
	u := &domain.User{}
	_, err := ledger.Spin(u, &seqRand{vals: []int{0}})
	assert.ErrorIs(t, err, domain.ErrNoSpins)
	assert.Equal(t, 0.0, u.Balance)
}

func TestSpin_ConsumesCreditAndPays(t *testing.T) {
	u := &domain.User{RouletteSpins: 2, Balance: 3}

	prize, err := ledger.Spin(u, &seqRand{vals: []int{70}})
	require.NoError(t, err)

	assert.Equal(t, 10.0, prize)
	assert.Equal(t, 1, u.RouletteSpins)
	assert.Equal(t, 13.0, u.Balance)
	assert.Equal(t, 10.0, u.TotalEarnings)
}

func TestSpin_Distribution(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	u := &domain.User{}
	counts := map[float64]int{}
	const n = 200000

	for i := 0; i < n; i++ {
		u.RouletteSpins = 1
		prize, err := ledger.Spin(u, rng)
		require.NoError(t, err)
		counts[prize]++
	}

	for _, p := range domain.PrizeTable {
		got := float64(counts[p.Value]) / n
		assert.InDelta(t, float64(p.Weight)/100, got, 0.01, "prize %v", p.Value)
	}
	assert.Zero(t, counts[35])
	assert.Zero(t, counts[50])
	assert.Zero(t, counts[100])
}

// --- Withdrawal ---

func at(hour int) time.Time {
	return time.Date(2025, 3, 10, hour, 0, 0, 0, time.UTC)
}

func TestWithdraw_Succeeds(t *testing.T) {
	u := &domain.User{Balance: 40}

	w, err := ledger.Withdraw(u, ledger.WithdrawalRequest{Amount: 35, PixKey: "k", PixType: "cpf"}, at(10), "w1", domain.WithdrawalPending)
	require.NoError(t, err)

	assert.Equal(t, 5.0, u.Balance)
	assert.Equal(t, 3.5, w.Fee)
	assert.Equal(t, 31.5, w.NetAmount)
	assert.Equal(t, 35.0, w.Amount)
	assert.Equal(t, domain.WithdrawalPending, w.Status)
	assert.Len(t, u.Withdrawals, 1)
}

func TestWithdraw_Window(t *testing.T) {
	for _, h := range []int{0, 8, 17, 20, 23} {
		u := &domain.User{Balance: 40}
		_, err := ledger.Withdraw(u, ledger.WithdrawalRequest{Amount: 35, PixKey: "k", PixType: "cpf"}, at(h), "w1", domain.WithdrawalPending)

		var window *domain.ErrOutsideWindow
		require.ErrorAs(t, err, &window, "hour %d", h)
		assert.Contains(t, err.Error(), "09:00")
		assert.Contains(t, err.Error(), "17:00")
		assert.Equal(t, 40.0, u.Balance)
	}
	for _, h := range []int{9, 12, 16} {
		assert.True(t, ledger.InWithdrawalWindow(at(h)))
	}
}

func TestWithdraw_Validation(t *testing.T) {
	u := &domain.User{Balance: 10}
	_, err := ledger.Withdraw(u, ledger.WithdrawalRequest{Amount: 35, PixKey: "k", PixType: "cpf"}, at(10), "w1", domain.WithdrawalPending)
	var insufficient *domain.ErrInsufficientFunds
	assert.ErrorAs(t, err, &insufficient)

	u = &domain.User{Balance: 100}
	_, err = ledger.Withdraw(u, ledger.WithdrawalRequest{Amount: 34.99, PixKey: "k", PixType: "cpf"}, at(10), "w1", domain.WithdrawalPending)
	var validation *domain.ErrValidation
	assert.ErrorAs(t, err, &validation)
	assert.Empty(t, u.Withdrawals)
}

func TestReleaseWithdrawal(t *testing.T) {
	u := &domain.User{Balance: 100}
	req := ledger.WithdrawalRequest{Amount: 50, PixKey: "k", PixType: "cpf"}
	_, err := ledger.Withdraw(u, req, at(10), "w1", domain.WithdrawalPending)
	require.NoError(t, err)
	_, err = ledger.Withdraw(u, req, at(10), "w2", domain.WithdrawalPending)
	require.NoError(t, err)
	require.Zero(t, u.Balance)

	assert.True(t, ledger.ReleaseWithdrawal(u, "w1"))
	assert.Equal(t, 50.0, u.Balance)
	require.Len(t, u.Withdrawals, 1)
	assert.Equal(t, "w2", u.Withdrawals[0].ID)

	assert.False(t, ledger.ReleaseWithdrawal(u, "w1"))
	assert.Equal(t, 50.0, u.Balance)

	_, err = ledger.SetWithdrawalStatus(u, "w2", domain.WithdrawalProcessing, at(11))
	require.NoError(t, err)
	assert.False(t, ledger.ReleaseWithdrawal(u, "w2"))
	assert.Equal(t, 50.0, u.Balance)
}

func TestSetWithdrawalStatus(t *testing.T) {
	u := &domain.User{Withdrawals: []domain.Withdrawal{{ID: "w1", Status: domain.WithdrawalPending}}}

	w, err := ledger.SetWithdrawalStatus(u, "w1", domain.WithdrawalProcessing, at(11))
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalProcessing, w.Status)

	_, err = ledger.SetWithdrawalStatus(u, "w1", domain.WithdrawalCompleted, at(12))
	require.NoError(t, err)

	_, err = ledger.SetWithdrawalStatus(u, "w1", domain.WithdrawalRejected, at(13))
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)

	_, err = ledger.SetWithdrawalStatus(u, "nope", domain.WithdrawalCompleted, at(13))
	var notFound *domain.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

// --- Deposit ---

func TestDeposit_Minimum(t *testing.T) {
	u := &domain.User{}
	_, err := ledger.AddDeposit(u, 20, "code", "", "d1", base)

	var validation *domain.ErrValidation
	assert.ErrorAs(t, err, &validation)
	assert.Empty(t, u.Deposits)
}

func TestDeposit_ConfirmOnce(t *testing.T) {
	u := &domain.User{Balance: 1}
	d, err := ledger.AddDeposit(u, 50, "code", "", "d1", base)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositPending, d.Status)
	assert.Equal(t, 1.0, u.Balance)

	assert.True(t, ledger.ConfirmDeposit(u, "d1", base))
	assert.False(t, ledger.ConfirmDeposit(u, "d1", base))
	assert.False(t, ledger.ConfirmDeposit(u, "missing", base))

	assert.Equal(t, 51.0, u.Balance)
	assert.Equal(t, 1, u.RouletteSpins)
	assert.Equal(t, 0.0, u.TotalEarnings)
	assert.Equal(t, domain.DepositConfirmed, u.Deposits[0].Status)
}
