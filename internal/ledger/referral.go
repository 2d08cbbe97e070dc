package ledger

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

const inviteAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewInviteCode returns an 8-character upper-case alphanumeric code.
// Uniqueness is enforced by the caller against the store.
func NewInviteCode() (string, error) {
	return randomString(inviteAlphabet, 8)
}

// NewDisplayID returns the 6-digit public id shown on the profile page.
func NewDisplayID() (string, error) {
	return randomString("0123456789", 6)
}

func randomString(alphabet string, n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[v.Int64()]
	}
	return string(b), nil
}

// LinkReferral records that invitee joined with inviter's code: the invitee
// points back at the inviter and the inviter gains a level-1 referral.
// Deeper levels are never populated.
func LinkReferral(inviter, invitee *domain.User, now time.Time) {
	inviterID := inviter.ID
	invitee.InvitedBy = &inviterID

	for _, r := range inviter.Referrals {
		if r.ID == invitee.ID {
			return
		}
	}
	inviter.Referrals = append(inviter.Referrals, domain.Referral{
		ID:           invitee.ID,
		DisplayID:    invitee.DisplayID,
		Name:         invitee.Name,
		Email:        invitee.Email,
		Level:        1,
		Earnings:     0,
		HasPurchased: false,
		JoinedAt:     now,
	})
}
