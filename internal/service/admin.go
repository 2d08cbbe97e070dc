package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/infra/observability"
	"github.com/boddenberg/monety-ledger-go/internal/ledger"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

var adminTracer = otel.Tracer("service/admin")

// AdminService backs the operator console.
type AdminService struct {
	store   port.UserStore
	ledger  *LedgerService
	clock   ledger.Clock
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAdminService creates a new admin service.
func NewAdminService(store port.UserStore, ledgerSvc *LedgerService, clock ledger.Clock, metrics *observability.Metrics, logger *zap.Logger) *AdminService {
	return &AdminService{
		store:   store,
		ledger:  ledgerSvc,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

func isOpenWithdrawal(w domain.Withdrawal) bool {
	return w.Status == domain.WithdrawalPending || w.Status == domain.WithdrawalProcessing
}

// Dashboard aggregates the user base and attaches the operation counters.
func (s *AdminService) Dashboard(ctx context.Context) (*domain.DashboardStats, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.Dashboard")
	defer span.End()

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	stats := &domain.DashboardStats{
		GeneratedAt: s.clock.Now(),
		TotalUsers:  len(users),
		Metrics:     s.metrics.Snapshot(),
	}
	for i := range users {
		u := &users[i]
		if u.Banned {
			stats.BannedUsers++
		}
		stats.TotalBalance += u.Balance
		for _, w := range u.Withdrawals {
			if isOpenWithdrawal(w) {
				stats.PendingWithdrawals++
				stats.PendingAmount += w.Amount
			}
		}
		for _, inv := range u.Investments {
			if inv.Status == domain.InvestmentActive {
				stats.ActiveInvestments++
			}
		}
	}

	stats.TotalBalance = math.Round(stats.TotalBalance*100) / 100
	stats.PendingAmount = math.Round(stats.PendingAmount*100) / 100
	span.SetAttributes(attribute.Int("users.total", stats.TotalUsers))
	return stats, nil
}

// ListPendingWithdrawals returns pending and processing withdrawals, oldest
// first.
func (s *AdminService) ListPendingWithdrawals(ctx context.Context) ([]domain.PendingWithdrawal, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.ListPendingWithdrawals")
	defer span.End()

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	out := make([]domain.PendingWithdrawal, 0)
	for _, u := range users {
		for _, w := range u.Withdrawals {
			if !isOpenWithdrawal(w) {
				continue
			}
			out = append(out, domain.PendingWithdrawal{
				UserID:     u.ID,
				UserName:   u.Name,
				UserEmail:  u.Email,
				Withdrawal: w,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Withdrawal.CreatedAt.Before(out[j].Withdrawal.CreatedAt)
	})
	return out, nil
}

// ToggleBan flips the banned flag of a user.
func (s *AdminService) ToggleBan(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.ToggleBan")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	unlock := s.ledger.locks.Lock(userID)
	defer unlock()

	updated, err := s.store.UpdateUser(ctx, userID, func(u *domain.User) error {
		u.Banned = !u.Banned
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Warn("admin: ban toggled",
		zap.String("user_id", userID),
		zap.Bool("banned", updated.Banned),
	)
	return updated, nil
}

// ApproveWithdrawal marks a withdrawal as paid.
func (s *AdminService) ApproveWithdrawal(ctx context.Context, userID, withdrawalID string) (*domain.Withdrawal, error) {
	ctx, span := adminTracer.Start(ctx, "AdminService.ApproveWithdrawal")
	defer span.End()

	return s.ledger.SetWithdrawalStatus(ctx, userID, withdrawalID, domain.WithdrawalCompleted)
}
