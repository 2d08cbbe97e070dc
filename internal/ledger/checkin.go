package ledger

import (
	"fmt"
	"slices"
	"time"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

// CheckinReward returns the bonus for a 1-based cycle day, 0 outside the table.
func CheckinReward(day int) float64 {
	if day < 1 || day > len(domain.CheckinRewards) {
		return 0
	}
	return domain.CheckinRewards[day-1]
}

// NextCheckinDay is the day a new check-in would claim.
func NextCheckinDay(u *domain.User) int {
	return len(u.CheckinDays) + 1
}

// CanCheckin reports whether the user has not checked in on now's calendar date.
func CanCheckin(u *domain.User, now time.Time) bool {
	return u.LastCheckin == nil || *u.LastCheckin != now.Format(DateLayout)
}

// Checkin claims the bonus for day. One check-in per calendar date; a day
// already in the cycle cannot be claimed again.
func Checkin(u *domain.User, day int, now time.Time) (float64, error) {
	if !CanCheckin(u, now) {
		return 0, &domain.ErrCheckinUnavailable{Reason: "Já fez check-in hoje"}
	}
	if slices.Contains(u.CheckinDays, day) {
		return 0, &domain.ErrCheckinUnavailable{Reason: fmt.Sprintf("dia %d já resgatado", day)}
	}

	reward := CheckinReward(day)
	credit(u, reward)
	u.CheckinDays = append(u.CheckinDays, day)
	today := now.Format(DateLayout)
	u.LastCheckin = &today
	return reward, nil
}
