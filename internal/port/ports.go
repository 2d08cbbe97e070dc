// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
)

// UpdateFunc mutates a user record in place. Returning an error aborts the
// update and nothing is persisted. It may be invoked more than once when a
// concurrent writer wins, so it must not have side effects outside u.
type UpdateFunc func(u *domain.User) error

// UserStore persists ledger records. Implemented by the in-memory, Redis and
// Supabase adapters.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByInviteCode(ctx context.Context, code string) (*domain.User, error)

	// CreateUser inserts a new record. Email and invite code must be unique.
	CreateUser(ctx context.Context, u *domain.User) error

	// UpdateUser is the serialized read-modify-write of one record.
	UpdateUser(ctx context.Context, userID string, fn UpdateFunc) (*domain.User, error)

	ListUsers(ctx context.Context) ([]domain.User, error)
}

// CredentialStore keeps password hashes apart from the ledger record.
type CredentialStore interface {
	SaveCredential(ctx context.Context, cred *domain.Credential) error
	GetCredential(ctx context.Context, userID string) (*domain.Credential, error)
}

// ChargeRequest asks the payment gateway for a PIX charge.
type ChargeRequest struct {
	UserID string  `json:"userId"`
	Email  string  `json:"email"`
	Amount float64 `json:"amount"`
}

// Charge is the gateway's answer to a ChargeRequest.
type Charge struct {
	PixCode   string
	GatewayID string
}

// PayoutRequest asks the payment gateway to send a PIX payout.
type PayoutRequest struct {
	UserID  string  `json:"userId"`
	Amount  float64 `json:"amount"`
	PixKey  string  `json:"pixKey"`
	PixType string  `json:"pixType"`
}

// Payout is the accepted payout; Status becomes the withdrawal's initial status.
type Payout struct {
	Status string
}

// PaymentGateway is the external PIX collaborator.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, req *ChargeRequest) (*Charge, error)
	RequestPayout(ctx context.Context, req *PayoutRequest) (*Payout, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
