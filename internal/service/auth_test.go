package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/port"
	"github.com/boddenberg/monety-ledger-go/internal/service"
)

// failingCredentials refuses every credential write.
type failingCredentials struct {
	port.CredentialStore
}

func (failingCredentials) SaveCredential(context.Context, *domain.Credential) error {
	return errors.New("credential store down")
}

func register(t *testing.T, e *env, email, inviteCode string) *domain.AuthResponse {
	t.Helper()
	resp, err := e.auth.Register(context.Background(), &domain.RegisterRequest{
		Name:       "Test User",
		Email:      email,
		Password:   "secret1",
		InviteCode: inviteCode,
	})
	require.NoError(t, err)
	return resp
}

func TestRegister_NewAccount(t *testing.T) {
	e := newEnv(t)

	resp := register(t, e, "  Ana@Example.com ", "")

	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "ana@example.com", resp.User.Email)
	assert.Len(t, resp.User.InviteCode, 8)
	assert.Len(t, resp.User.DisplayID, 6)
	assert.Zero(t, resp.User.Balance)
	assert.Nil(t, resp.User.InvitedBy)

	cred, err := e.store.GetCredential(context.Background(), resp.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", cred.PasswordHash)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	e := newEnv(t)
	register(t, e, "ana@example.com", "")

	_, err := e.auth.Register(context.Background(), &domain.RegisterRequest{
		Name: "Other", Email: "ANA@example.com", Password: "secret1",
	})
	var conflict *domain.ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestRegister_ShortPassword(t *testing.T) {
	e := newEnv(t)

	_, err := e.auth.Register(context.Background(), &domain.RegisterRequest{
		Name: "Ana", Email: "ana@example.com", Password: "123",
	})
	var validation *domain.ErrValidation
	assert.ErrorAs(t, err, &validation)
}

func TestRegister_UnknownInviteCodeIsIgnored(t *testing.T) {
	e := newEnv(t)

	resp := register(t, e, "ana@example.com", "NOPE0000")
	assert.Nil(t, resp.User.InvitedBy)
}

func TestRegister_CredentialFailureLeavesNoAccount(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	broken := service.NewAuthService(e.store, failingCredentials{e.store}, e.ledger, e.clock, testRetry, "test-secret-0123456789", time.Hour, zap.NewNop())

	_, err := broken.Register(ctx, &domain.RegisterRequest{Name: "Ana", Email: "ana@example.com", Password: "secret1"})
	require.Error(t, err)

	_, err = e.store.GetUserByEmail(ctx, "ana@example.com")
	var notFound *domain.ErrNotFound
	require.ErrorAs(t, err, &notFound)

	resp := register(t, e, "ana@example.com", "")
	_, err = e.auth.Login(ctx, &domain.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", resp.User.Email)
}

func TestLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	registered := register(t, e, "ana@example.com", "")

	resp, err := e.auth.Login(ctx, &domain.LoginRequest{Email: "ANA@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, resp.User.ID)

	claims, err := e.auth.ValidateAccessToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.Subject)
	assert.Equal(t, "access", claims.Type)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	e := newEnv(t)
	register(t, e, "ana@example.com", "")

	tests := []struct {
		name string
		req  *domain.LoginRequest
	}{
		{"wrong password", &domain.LoginRequest{Email: "ana@example.com", Password: "wrong!"}},
		{"unknown email", &domain.LoginRequest{Email: "nobody@example.com", Password: "secret1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.auth.Login(context.Background(), tt.req)
			var unauthorized *domain.ErrUnauthorized
			assert.ErrorAs(t, err, &unauthorized)
		})
	}
}

func TestLogin_BlockedAccount(t *testing.T) {
	e := newEnv(t)
	registered := register(t, e, "ana@example.com", "")
	e.mutate(t, registered.User.ID, func(u *domain.User) { u.Banned = true })

	_, err := e.auth.Login(context.Background(), &domain.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	var blocked *domain.ErrAccountBlocked
	assert.ErrorAs(t, err, &blocked)
}

func TestLogin_AccruesReturns(t *testing.T) {
	e := newEnv(t)
	registered := register(t, e, "ana@example.com", "")
	e.mutate(t, registered.User.ID, func(u *domain.User) {
		u.Investments = []domain.Investment{{
			ID: "inv-1", DailyReturn: 10, TotalDays: 60, RemainingDays: 60,
			StartDate: base, LastClaimDate: base, Status: domain.InvestmentActive,
		}}
	})
	e.clock.Advance(3 * 24 * time.Hour)

	resp, err := e.auth.Login(context.Background(), &domain.LoginRequest{Email: "ana@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, 30.0, resp.User.Balance)
	assert.Equal(t, 30.0, e.get(t, registered.User.ID).Balance)
}

func TestValidateAccessToken_Rejects(t *testing.T) {
	e := newEnv(t)
	registered := register(t, e, "ana@example.com", "")

	_, err := e.auth.ValidateAccessToken(registered.AccessToken + "x")
	var unauthorized *domain.ErrUnauthorized
	assert.ErrorAs(t, err, &unauthorized)

	_, err = e.auth.ValidateAccessToken("not-a-token")
	assert.ErrorAs(t, err, &unauthorized)
}
