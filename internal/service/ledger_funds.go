package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/infra/observability"
	"github.com/boddenberg/monety-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/monety-ledger-go/internal/ledger"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

var pixTypes = map[string]bool{
	domain.PixTypeCPF:   true,
	domain.PixTypeEmail: true,
	domain.PixTypePhone: true,
}

// ============================================================
// RequestWithdraw: POST /v1/me/withdrawals
// ============================================================

// RequestWithdraw reserves the amount as a pending withdrawal, registers the
// payout with the gateway and then settles the reservation: it takes the
// gateway's status on success and is released on failure. The window and the
// balance are judged once, at the instant of the request. A non-empty
// idempotencyKey replays the first successful result for the same user.
func (s *LedgerService) RequestWithdraw(ctx context.Context, userID, idempotencyKey string, req *domain.WithdrawRequest) (w *domain.Withdrawal, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.RequestWithdraw")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Float64("amount", req.Amount),
	)
	defer func(start time.Time) { s.observe("withdraw", start, err) }(time.Now())

	if strings.TrimSpace(req.PixKey) == "" {
		return nil, &domain.ErrValidation{Field: "pixKey", Message: "Chave PIX obrigatória"}
	}
	if !pixTypes[req.PixType] {
		return nil, &domain.ErrValidation{Field: "pixType", Message: "Tipo de chave PIX inválido"}
	}

	replayKey := ""
	if idempotencyKey != "" {
		replayKey = userID + ":" + idempotencyKey
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	if replayKey != "" {
		if cached, ok := s.replay.Get(replayKey); ok {
			s.logger.Info("withdrawal replayed",
				zap.String("user_id", userID),
				zap.String("withdrawal_id", cached.ID),
			)
			return &cached, nil
		}
	}

	requestedAt := s.clock.Now()
	lreq := ledger.WithdrawalRequest{Amount: req.Amount, PixKey: req.PixKey, PixType: req.PixType}
	withdrawalID := uuid.NewString()

	var created domain.Withdrawal
	_, err = s.update(ctx, userID, func(u *domain.User, _ time.Time) error {
		made, err := ledger.Withdraw(u, lreq, requestedAt, withdrawalID, domain.WithdrawalPending)
		if err != nil {
			return err
		}
		created = *made
		return nil
	})
	if err != nil {
		return nil, err
	}

	payout, err := s.gateway.RequestPayout(ctx, &port.PayoutRequest{
		UserID:  userID,
		Amount:  req.Amount,
		PixKey:  req.PixKey,
		PixType: req.PixType,
	})
	if err != nil {
		s.metrics.IncrExternalError("pixgateway")
		s.logger.Error("withdrawal: gateway refused payout",
			zap.String("user_id", userID),
			zap.Float64("amount", req.Amount),
			zap.Error(err),
		)
		s.releaseWithdrawal(ctx, userID, withdrawalID)
		return nil, err
	}

	if payout.Status != "" && payout.Status != created.Status {
		if settled, err := s.settleWithdrawal(ctx, userID, withdrawalID, payout.Status); err != nil {
			s.logger.Warn("withdrawal: gateway status not recorded",
				zap.String("user_id", userID),
				zap.String("withdrawal_id", withdrawalID),
				zap.String("status", payout.Status),
				zap.Error(err),
			)
		} else {
			created = *settled
		}
	}

	if replayKey != "" {
		s.replay.Set(replayKey, created)
	}

	s.logger.Info("withdrawal requested",
		zap.String("user_id", userID),
		zap.String("withdrawal_id", created.ID),
		zap.Float64("amount", created.Amount),
		zap.Float64("fee", created.Fee),
		zap.String("status", created.Status),
	)
	return &created, nil
}

// settleWithdrawal records the status the gateway assigned to a reservation.
func (s *LedgerService) settleWithdrawal(ctx context.Context, userID, withdrawalID, status string) (*domain.Withdrawal, error) {
	ctx = context.WithoutCancel(ctx)
	var settled domain.Withdrawal
	err := resilience.RetryWithBackoff(ctx, s.retryCfg, func() error {
		_, err := s.store.UpdateUser(ctx, userID, func(u *domain.User) error {
			made, err := ledger.SetWithdrawalStatus(u, withdrawalID, status, s.clock.Now())
			if err != nil {
				return resilience.Permanent(err)
			}
			settled = *made
			return nil
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &settled, nil
}

// releaseWithdrawal refunds a reservation whose payout the gateway refused.
// It runs even when the caller has gone away. A reservation that cannot be
// released stays pending and is logged for a manual refund.
func (s *LedgerService) releaseWithdrawal(ctx context.Context, userID, withdrawalID string) {
	ctx = context.WithoutCancel(ctx)
	err := resilience.RetryWithBackoff(ctx, s.retryCfg, func() error {
		_, err := s.store.UpdateUser(ctx, userID, func(u *domain.User) error {
			if !ledger.ReleaseWithdrawal(u, withdrawalID) {
				return resilience.Permanent(errNoChange)
			}
			return nil
		})
		return err
	})
	if errors.Is(err, errNoChange) {
		s.logger.Warn("withdrawal: reservation no longer pending",
			zap.String("user_id", userID),
			zap.String("withdrawal_id", withdrawalID),
		)
		return
	}
	if err != nil {
		s.logger.Error("withdrawal: reservation not released, manual refund required",
			zap.String("user_id", userID),
			zap.String("withdrawal_id", withdrawalID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("withdrawal reservation released",
		zap.String("user_id", userID),
		zap.String("withdrawal_id", withdrawalID),
	)
}

// ============================================================
// CreateDeposit: POST /v1/me/deposits
// ============================================================

// CreateDeposit asks the gateway for a PIX charge and records it as pending.
// The balance only changes when the payment is confirmed.
func (s *LedgerService) CreateDeposit(ctx context.Context, userID string, amount float64) (d *domain.Deposit, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.CreateDeposit")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.Float64("amount", amount),
	)
	defer func(start time.Time) { s.observe("deposit", start, err) }(time.Now())

	if err := ledger.ValidateDeposit(amount); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := checkActive(u); err != nil {
		return nil, err
	}

	charge, err := s.gateway.CreateCharge(ctx, &port.ChargeRequest{
		UserID: userID,
		Email:  u.Email,
		Amount: amount,
	})
	if err != nil {
		s.metrics.IncrExternalError("pixgateway")
		s.logger.Error("deposit: gateway charge failed",
			zap.String("user_id", userID),
			zap.Float64("amount", amount),
			zap.Error(err),
		)
		return nil, err
	}

	depositID := uuid.NewString()
	var created domain.Deposit
	_, err = s.update(ctx, userID, func(u *domain.User, now time.Time) error {
		made, err := ledger.AddDeposit(u, amount, charge.PixCode, charge.GatewayID, depositID, now)
		if err != nil {
			return err
		}
		created = *made
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deposit created",
		zap.String("user_id", userID),
		zap.String("deposit_id", created.ID),
		zap.String("gateway_id", created.GatewayID),
		zap.Float64("amount", amount),
	)
	return &created, nil
}

// ============================================================
// Payment webhooks
// ============================================================

// ConfirmDeposit credits a pending deposit once. A missing or already
// confirmed deposit is reported as not applied, without an error. depositID
// may be the ledger id or the gateway id.
func (s *LedgerService) ConfirmDeposit(ctx context.Context, userID, depositID string) (applied bool, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.ConfirmDeposit")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("deposit.id", depositID),
	)
	defer func(start time.Time) { s.observe("confirm_deposit", start, err) }(time.Now())

	unlock := s.locks.Lock(userID)
	defer unlock()

	var amount float64
	_, err = s.store.UpdateUser(ctx, userID, func(u *domain.User) error {
		before := u.Balance
		if !ledger.ConfirmDeposit(u, depositID, s.clock.Now()) {
			return errNoChange
		}
		amount = u.Balance - before
		return nil
	})
	if errors.Is(err, errNoChange) {
		s.logger.Info("deposit confirmation ignored",
			zap.String("user_id", userID),
			zap.String("deposit_id", depositID),
		)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.metrics.AddCredit(observability.SourceDeposit, amount)
	s.logger.Info("deposit confirmed",
		zap.String("user_id", userID),
		zap.String("deposit_id", depositID),
		zap.Float64("amount", amount),
	)
	return true, nil
}

// SetWithdrawalStatus applies an operator or gateway status change.
func (s *LedgerService) SetWithdrawalStatus(ctx context.Context, userID, withdrawalID, status string) (w *domain.Withdrawal, err error) {
	ctx, span := tracer.Start(ctx, "LedgerService.SetWithdrawalStatus")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("withdrawal.id", withdrawalID),
		attribute.String("status", status),
	)
	defer func(start time.Time) { s.observe("withdrawal_status", start, err) }(time.Now())

	unlock := s.locks.Lock(userID)
	defer unlock()

	var changed domain.Withdrawal
	_, err = s.store.UpdateUser(ctx, userID, func(u *domain.User) error {
		made, err := ledger.SetWithdrawalStatus(u, withdrawalID, status, s.clock.Now())
		if err != nil {
			return err
		}
		changed = *made
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal status changed",
		zap.String("user_id", userID),
		zap.String("withdrawal_id", withdrawalID),
		zap.String("status", status),
	)
	return &changed, nil
}
