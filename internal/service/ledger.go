// Package service orchestrates the ledger engine with the record store, the
// payment gateway, metrics and tracing.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/infra/observability"
	"github.com/boddenberg/monety-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/monety-ledger-go/internal/ledger"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

var tracer = otel.Tracer("service/ledger")

// errNoChange aborts an UpdateUser whose function found nothing to write.
var errNoChange = errors.New("no change")

type defaultRand struct{}

func (defaultRand) Intn(n int) int { return rand.Intn(n) }

// LedgerService runs every user-facing ledger operation as one serialized
// read-modify-write of the user's record. Matured investment returns are
// accrued at the start of each operation.
type LedgerService struct {
	store    port.UserStore
	gateway  port.PaymentGateway
	replay   port.Cache[domain.Withdrawal]
	clock    ledger.Clock
	rng      ledger.Rand
	retryCfg resilience.Config
	locks    *keyedMutex
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewLedgerService creates a ledger service. A nil rng uses math/rand.
func NewLedgerService(
	store port.UserStore,
	gateway port.PaymentGateway,
	replay port.Cache[domain.Withdrawal],
	clock ledger.Clock,
	rng ledger.Rand,
	retryCfg resilience.Config,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *LedgerService {
	if rng == nil {
		rng = defaultRand{}
	}
	return &LedgerService{
		store:    store,
		gateway:  gateway,
		replay:   replay,
		clock:    clock,
		rng:      rng,
		retryCfg: retryCfg,
		locks:    newKeyedMutex(),
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *LedgerService) observe(operation string, start time.Time, err error) {
	s.metrics.ObserveOperation(operation, time.Since(start), err)
}

// accrue credits matured returns and reports the amount credited.
func (s *LedgerService) accrue(u *domain.User, now time.Time) float64 {
	before := u.TotalEarnings
	if !ledger.Accrue(u, now) {
		return 0
	}
	return u.TotalEarnings - before
}

func checkActive(u *domain.User) error {
	if u.Banned {
		return &domain.ErrAccountBlocked{UserID: u.ID}
	}
	return nil
}

// update runs fn under the per-user lock with accrual applied first. It
// returns the committed record and the accrued amount.
func (s *LedgerService) update(ctx context.Context, userID string, fn func(u *domain.User, now time.Time) error) (*domain.User, error) {
	var accrued float64
	updated, err := s.store.UpdateUser(ctx, userID, func(u *domain.User) error {
		if err := checkActive(u); err != nil {
			return err
		}
		now := s.clock.Now()
		accrued = s.accrue(u, now)
		return fn(u, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddCredit(observability.SourceAccrual, accrued)
	return updated, nil
}

// ============================================================
// Me: GET /v1/me
// ============================================================

// Me returns the user's record with matured returns credited. The record is
// only written when something accrued.
func (s *LedgerService) Me(ctx context.Context, userID string) (u *domain.User, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Me")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))
	defer func(start time.Time) { s.observe("me", start, err) }(time.Now())

	u, err = s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := checkActive(u); err != nil {
		return nil, err
	}
	if ledger.PendingReturn(u, s.clock.Now()) == 0 {
		return u, nil
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	var accrued float64
	updated, err := s.store.UpdateUser(ctx, userID, func(rec *domain.User) error {
		accrued = s.accrue(rec, s.clock.Now())
		if accrued == 0 {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		return u, nil
	}
	if err != nil {
		return nil, fmt.Errorf("accrue returns: %w", err)
	}

	s.metrics.AddCredit(observability.SourceAccrual, accrued)
	s.logger.Info("returns accrued",
		zap.String("user_id", userID),
		zap.Float64("amount", accrued),
	)
	return updated, nil
}

// ============================================================
// Purchase: POST /v1/me/investments
// ============================================================

func (s *LedgerService) Purchase(ctx context.Context, userID string, productID int) (resp *domain.PurchaseResponse, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Purchase")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Int("product.id", productID),
	)
	defer func(start time.Time) { s.observe("purchase", start, err) }(time.Now())

	product, ok := domain.FindProduct(productID)
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "product", ID: strconv.Itoa(productID)}
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	investmentID := uuid.NewString()
	var inv domain.Investment
	updated, err := s.update(ctx, userID, func(u *domain.User, now time.Time) error {
		opened, err := ledger.Purchase(u, product, now, investmentID)
		if err != nil {
			return err
		}
		inv = *opened
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("investment purchased",
		zap.String("user_id", userID),
		zap.String("investment_id", inv.ID),
		zap.String("product", product.Name),
		zap.Float64("price", product.Price),
	)

	if updated.InvitedBy != nil {
		s.grantReferralSpin(ctx, *updated.InvitedBy, updated)
	}

	return &domain.PurchaseResponse{Investment: inv, User: updated}, nil
}

// grantReferralSpin marks the invitee as a purchaser on the inviter's record
// and grants the inviter one spin. The flag makes the grant happen at most
// once, so the step is retried and a failure is left for the next purchase.
// A referral missing from the inviter's record is linked first.
func (s *LedgerService) grantReferralSpin(ctx context.Context, inviterID string, invitee *domain.User) {
	ctx, span := tracer.Start(ctx, "LedgerService.grantReferralSpin")
	defer span.End()

	inviteeID := invitee.ID
	granted, repaired := false, false
	err := resilience.RetryWithBackoff(ctx, s.retryCfg, func() error {
		_, err := s.store.UpdateUser(ctx, inviterID, func(inviter *domain.User) error {
			before := len(inviter.Referrals)
			ledger.LinkReferral(inviter, invitee.Clone(), invitee.CreatedAt)
			repaired = len(inviter.Referrals) > before
			if !ledger.MarkReferralPurchased(inviter, inviteeID) {
				return errNoChange
			}
			return nil
		})
		switch {
		case err == nil:
			granted = true
			return nil
		case errors.Is(err, errNoChange):
			return nil
		}
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		s.logger.Error("referral spin grant failed",
			zap.String("inviter_id", inviterID),
			zap.String("invitee_id", inviteeID),
			zap.Error(err),
		)
		return
	}
	if granted && repaired {
		s.logger.Warn("referral link repaired on first purchase",
			zap.String("inviter_id", inviterID),
			zap.String("invitee_id", inviteeID),
		)
	}
	if granted {
		s.logger.Info("referral spin granted",
			zap.String("inviter_id", inviterID),
			zap.String("invitee_id", inviteeID),
		)
	}
}

// ============================================================
// Checkin: POST /v1/me/checkin
// ============================================================

// Checkin claims the daily bonus. Day 0 claims the next day of the cycle; a
// cycle with all seven days claimed is refused.
func (s *LedgerService) Checkin(ctx context.Context, userID string, day int) (resp *domain.CheckinResponse, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Checkin")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))
	defer func(start time.Time) { s.observe("checkin", start, err) }(time.Now())

	unlock := s.locks.Lock(userID)
	defer unlock()

	var claimed int
	var reward float64
	updated, err := s.update(ctx, userID, func(u *domain.User, now time.Time) error {
		claimed = day
		if claimed == 0 {
			claimed = ledger.NextCheckinDay(u)
		}
		if claimed > domain.CheckinCycleDays {
			return &domain.ErrCheckinUnavailable{Reason: "ciclo de 7 dias completo"}
		}
		r, err := ledger.Checkin(u, claimed, now)
		if err != nil {
			return err
		}
		reward = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddCredit(observability.SourceCheckin, reward)
	s.logger.Info("check-in claimed",
		zap.String("user_id", userID),
		zap.Int("day", claimed),
		zap.Float64("reward", reward),
	)
	return &domain.CheckinResponse{Day: claimed, Reward: reward, User: updated}, nil
}

// ============================================================
// Spin: POST /v1/me/roulette/spin
// ============================================================

func (s *LedgerService) Spin(ctx context.Context, userID string) (resp *domain.SpinResponse, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Spin")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))
	defer func(start time.Time) { s.observe("spin", start, err) }(time.Now())

	unlock := s.locks.Lock(userID)
	defer unlock()

	var prize float64
	updated, err := s.update(ctx, userID, func(u *domain.User, _ time.Time) error {
		p, err := ledger.Spin(u, s.rng)
		if err != nil {
			return err
		}
		prize = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrPrize(strconv.FormatFloat(prize, 'f', -1, 64))
	s.metrics.AddCredit(observability.SourceRoulette, prize)
	s.logger.Info("roulette spun",
		zap.String("user_id", userID),
		zap.Float64("prize", prize),
		zap.Int("remaining_spins", updated.RouletteSpins),
	)
	return &domain.SpinResponse{Prize: prize, RemainingSpins: updated.RouletteSpins, User: updated}, nil
}

// ============================================================
// Referrals: GET /v1/me/referrals
// ============================================================

func (s *LedgerService) Referrals(ctx context.Context, userID string) (*domain.ReferralsResponse, error) {
	ctx, span := tracer.Start(ctx, "LedgerService.Referrals")
	defer span.End()

	u, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}

	levels := make(map[int][]domain.Referral, len(domain.CommissionRates))
	for level := range domain.CommissionRates {
		levels[level] = u.ReferralsByLevel(level)
	}
	return &domain.ReferralsResponse{
		InviteCode: u.InviteCode,
		Levels:     levels,
		Rates:      domain.CommissionRates,
	}, nil
}
