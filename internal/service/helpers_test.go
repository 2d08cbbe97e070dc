package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/infra/cache"
	"github.com/boddenberg/monety-ledger-go/internal/infra/memstore"
	"github.com/boddenberg/monety-ledger-go/internal/infra/observability"
	"github.com/boddenberg/monety-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/monety-ledger-go/internal/ledger"
	"github.com/boddenberg/monety-ledger-go/internal/port"
	"github.com/boddenberg/monety-ledger-go/internal/service"
)

// --- Fakes ---

type fakeGateway struct {
	mu        sync.Mutex
	chargeErr error
	payoutErr error
	status    string
	charges   []port.ChargeRequest
	payouts   []port.PayoutRequest
	// onPayout runs while the payout is being registered.
	onPayout func()
}

func (g *fakeGateway) CreateCharge(_ context.Context, req *port.ChargeRequest) (*port.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	g.charges = append(g.charges, *req)
	return &port.Charge{PixCode: "00020126-test", GatewayID: "gw-" + time.Now().Format("150405.000000000")}, nil
}

func (g *fakeGateway) RequestPayout(_ context.Context, req *port.PayoutRequest) (*port.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.payoutErr != nil {
		return nil, g.payoutErr
	}
	g.payouts = append(g.payouts, *req)
	if g.onPayout != nil {
		g.onPayout()
	}
	status := g.status
	if status == "" {
		status = domain.WithdrawalPending
	}
	return &port.Payout{Status: status}, nil
}

func (g *fakeGateway) payoutCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.payouts)
}

// tickingClock moves forward by step on every read.
type tickingClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// fixedRand always draws the same value.
type fixedRand struct{ v int }

func (r fixedRand) Intn(n int) int { return r.v % n }

// --- Environment ---

var base = time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

var testRetry = resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxConcurrency: 4}

type env struct {
	store   *memstore.Store
	clock   *ledger.FixedClock
	gateway *fakeGateway
	metrics *observability.Metrics
	ledger  *service.LedgerService
	auth    *service.AuthService
	admin   *service.AdminService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	e := &env{
		store:   memstore.New(),
		clock:   &ledger.FixedClock{T: base},
		gateway: &fakeGateway{},
		metrics: observability.NewMetrics(),
	}
	retry := testRetry
	logger := zap.NewNop()

	e.ledger = e.newLedger(t, e.clock)
	e.auth = service.NewAuthService(e.store, e.store, e.ledger, e.clock, retry, "test-secret-0123456789", time.Hour, logger)
	e.admin = service.NewAdminService(e.store, e.ledger, e.clock, e.metrics, logger)
	return e
}

// newLedger builds a ledger service over e's store and gateway reading clock.
func (e *env) newLedger(t *testing.T, clock ledger.Clock) *service.LedgerService {
	t.Helper()
	replay := cache.New[domain.Withdrawal](time.Hour)
	t.Cleanup(replay.Close)
	return service.NewLedgerService(e.store, e.gateway, replay, clock, fixedRand{v: 0}, testRetry, e.metrics, zap.NewNop())
}

// seed stores a user with the given balance.
func (e *env) seed(t *testing.T, id string, balance float64) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:         id,
		Name:       "User " + id,
		Email:      id + "@example.com",
		InviteCode: "CODE" + id,
		Balance:    balance,
		CreatedAt:  e.clock.Now(),
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *env) get(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := e.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *env) mutate(t *testing.T, id string, fn func(u *domain.User)) {
	t.Helper()
	_, err := e.store.UpdateUser(context.Background(), id, func(u *domain.User) error {
		fn(u)
		return nil
	})
	require.NoError(t, err)
}

var errGatewayDown = errors.New("gateway down")
