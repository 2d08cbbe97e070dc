package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/handler"
	"github.com/boddenberg/monety-ledger-go/internal/infra/cache"
	"github.com/boddenberg/monety-ledger-go/internal/infra/memstore"
	"github.com/boddenberg/monety-ledger-go/internal/infra/observability"
	"github.com/boddenberg/monety-ledger-go/internal/infra/pixgateway"
	"github.com/boddenberg/monety-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/monety-ledger-go/internal/ledger"
	"github.com/boddenberg/monety-ledger-go/internal/service"
)

const (
	webhookSecret = "hook-secret"
	adminToken    = "admin-token"
)

type firstPrize struct{}

func (firstPrize) Intn(int) int { return 0 }

func newTestRouter(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()

	store := memstore.New()
	clock := &ledger.FixedClock{T: time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)}
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	retry := resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond}

	replay := cache.New[domain.Withdrawal](time.Hour)
	t.Cleanup(replay.Close)

	ledgerSvc := service.NewLedgerService(store, pixgateway.NewLocal(logger), replay, clock, firstPrize{}, retry, metrics, logger)
	authSvc := service.NewAuthService(store, store, ledgerSvc, clock, retry, "router-test-secret", time.Hour, logger)
	adminSvc := service.NewAdminService(store, ledgerSvc, clock, metrics, logger)

	router := handler.NewRouter(
		handler.Services{Ledger: ledgerSvc, Auth: authSvc, Admin: adminSvc, Store: store},
		handler.Secrets{Webhook: webhookSecret, Admin: adminToken},
		metrics,
		logger,
	)
	return router, store
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func registerUser(t *testing.T, h http.Handler, email string) domain.AuthResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/v1/auth/register", domain.RegisterRequest{
		Name: "Ana Souza", Email: email, Password: "secret1",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.AuthResponse](t, rec)
}

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/healthz", nil, nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	status := decode[domain.HealthStatus](t, rec)
	assert.Equal(t, "healthy", status.Status)
	assert.Len(t, status.Services, 2)
}

func TestReadyz(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/readyz", nil, nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router, _ := newTestRouter(t)
	registerUser(t, router, "ana@example.com")

	rec := do(t, router, http.MethodGet, "/metrics", nil, nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	assert.Contains(t, rec.Body.String(), "ledger_operations_total")
}

func TestProducts(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/products", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Product](t, rec), len(domain.Catalog))
}

// --- Auth ---

func TestAuth_RegisterAndLogin(t *testing.T) {
	router, _ := newTestRouter(t)
	registered := registerUser(t, router, "ana@example.com")
	assert.NotEmpty(t, registered.AccessToken)

	rec := do(t, router, http.MethodPost, "/v1/auth/register", domain.RegisterRequest{
		Name: "Ana Souza", Email: "ana@example.com", Password: "secret1",
	}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/auth/login", domain.LoginRequest{Email: "ana@example.com", Password: "secret1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, registered.User.ID, decode[domain.AuthResponse](t, rec).User.ID)

	rec = do(t, router, http.MethodPost, "/v1/auth/login", domain.LoginRequest{Email: "ana@example.com", Password: "wrong!"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_RegisterValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name string
		body any
	}{
		{"invalid email", domain.RegisterRequest{Name: "Ana", Email: "not-an-email", Password: "secret1"}},
		{"short password", domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "123"}},
		{"malformed body", "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/v1/auth/register", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestMe_RequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := do(t, router, http.MethodGet, "/v1/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/me", nil, bearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// --- Ledger flow ---

func TestLedgerFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	auth := registerUser(t, router, "ana@example.com")
	h := bearer(auth.AccessToken)

	rec := do(t, router, http.MethodGet, "/v1/me", nil, h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.User.ID, decode[domain.User](t, rec).ID)

	// check-in with an empty body claims day 1
	rec = do(t, router, http.MethodPost, "/v1/me/checkin", nil, h)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, decode[domain.CheckinResponse](t, rec).Day)

	rec = do(t, router, http.MethodPost, "/v1/me/checkin", nil, h)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/me/roulette/spin", nil, h)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/me/investments", domain.PurchaseRequest{ProductID: 1}, h)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// deposit and confirm through the webhook
	rec = do(t, router, http.MethodPost, "/v1/me/deposits", domain.DepositRequest{Amount: 20}, h)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/me/deposits", domain.DepositRequest{Amount: 50}, h)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	deposit := decode[domain.Deposit](t, rec)
	assert.Contains(t, deposit.PixCode, "br.gov.bcb.pix")

	confirm := domain.ConfirmDepositRequest{UserID: auth.User.ID, DepositID: deposit.ID}
	rec = do(t, router, http.MethodPost, "/v1/webhooks/deposits/confirm", confirm, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	secret := map[string]string{handler.WebhookSecretHeader: webhookSecret}
	rec = do(t, router, http.MethodPost, "/v1/webhooks/deposits/confirm", confirm, secret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.ConfirmDepositResponse](t, rec).Applied)

	rec = do(t, router, http.MethodPost, "/v1/webhooks/deposits/confirm", confirm, secret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[domain.ConfirmDepositResponse](t, rec).Applied)

	rec = do(t, router, http.MethodPost, "/v1/me/roulette/spin", nil, h)
	require.Equal(t, http.StatusOK, rec.Code)
	spin := decode[domain.SpinResponse](t, rec)
	assert.Equal(t, 1.0, spin.Prize)
	assert.Equal(t, 52.0, spin.User.Balance)

	// withdrawal
	rec = do(t, router, http.MethodPost, "/v1/me/withdrawals", domain.WithdrawRequest{Amount: 35, PixKey: "ana@example.com", PixType: "bank"}, h)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	withdrawHeaders := bearer(auth.AccessToken)
	withdrawHeaders[handler.IdempotencyKeyHeader] = "w-1"
	req := domain.WithdrawRequest{Amount: 35, PixKey: "ana@example.com", PixType: domain.PixTypeEmail}

	rec = do(t, router, http.MethodPost, "/v1/me/withdrawals", req, withdrawHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	withdrawal := decode[domain.Withdrawal](t, rec)
	assert.Equal(t, 3.5, withdrawal.Fee)
	assert.Equal(t, 31.5, withdrawal.NetAmount)

	rec = do(t, router, http.MethodPost, "/v1/me/withdrawals", req, withdrawHeaders)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, withdrawal.ID, decode[domain.Withdrawal](t, rec).ID)

	rec = do(t, router, http.MethodGet, "/v1/me", nil, h)
	assert.Equal(t, 17.0, decode[domain.User](t, rec).Balance)

	// gateway reports the payout in flight
	rec = do(t, router, http.MethodPost, "/v1/webhooks/withdrawals/status", domain.WithdrawalStatusRequest{
		UserID: auth.User.ID, WithdrawalID: withdrawal.ID, Status: domain.WithdrawalProcessing,
	}, secret)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.WithdrawalProcessing, decode[domain.Withdrawal](t, rec).Status)

	rec = do(t, router, http.MethodGet, "/v1/me/referrals", nil, h)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.User.InviteCode, decode[domain.ReferralsResponse](t, rec).InviteCode)
}

// --- Operator ---

func TestAdminRoutes(t *testing.T) {
	router, store := newTestRouter(t)
	auth := registerUser(t, router, "ana@example.com")
	admin := map[string]string{handler.AdminTokenHeader: adminToken}

	rec := do(t, router, http.MethodGet, "/v1/admin/dashboard", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/admin/dashboard", nil, map[string]string{handler.AdminTokenHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodGet, "/v1/admin/dashboard", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[domain.DashboardStats](t, rec).TotalUsers)

	_, err := store.UpdateUser(context.Background(), auth.User.ID, func(u *domain.User) error {
		u.Balance = 40
		return nil
	})
	require.NoError(t, err)

	rec = do(t, router, http.MethodPost, "/v1/me/withdrawals",
		domain.WithdrawRequest{Amount: 35, PixKey: "12345678901", PixType: domain.PixTypeCPF}, bearer(auth.AccessToken))
	require.Equal(t, http.StatusCreated, rec.Code)
	withdrawal := decode[domain.Withdrawal](t, rec)

	rec = do(t, router, http.MethodGet, "/v1/admin/withdrawals", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]domain.PendingWithdrawal](t, rec)
	require.Len(t, pending, 1)
	assert.Equal(t, withdrawal.ID, pending[0].Withdrawal.ID)

	path := "/v1/admin/users/" + auth.User.ID + "/withdrawals/" + withdrawal.ID + "/approve"
	rec = do(t, router, http.MethodPost, path, nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.WithdrawalCompleted, decode[domain.Withdrawal](t, rec).Status)

	rec = do(t, router, http.MethodPost, path, nil, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/admin/users/"+auth.User.ID+"/ban", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.User](t, rec).Banned)

	rec = do(t, router, http.MethodGet, "/v1/me", nil, bearer(auth.AccessToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodPost, "/v1/admin/users/missing/ban", nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
