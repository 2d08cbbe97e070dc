package ledger

import (
	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

// Rand is the random source used by the wheel. *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Draw picks a prize from table by weight. r is drawn uniformly over
// [0, totalWeight) and weights are subtracted in table order until it falls
// inside one; zero-weight entries can never match.
func Draw(table []domain.Prize, rng Rand) domain.Prize {
	total := 0
	for _, p := range table {
		total += p.Weight
	}
	if total <= 0 {
		return domain.Prize{}
	}

	r := rng.Intn(total)
	for _, p := range table {
		if p.Weight <= 0 {
			continue
		}
		if r < p.Weight {
			return p
		}
		r -= p.Weight
	}
	return domain.Prize{}
}

// Spin consumes one spin credit and credits a prize drawn from domain.PrizeTable.
func Spin(u *domain.User, rng Rand) (float64, error) {
	if u.RouletteSpins <= 0 {
		return 0, domain.ErrNoSpins
	}

	prize := Draw(domain.PrizeTable, rng)
	u.RouletteSpins--
	credit(u, prize.Value)
	return prize.Value, nil
}
