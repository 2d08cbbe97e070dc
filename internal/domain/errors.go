package domain

import (
	"errors"
	"fmt"
)

// Error types for consistent error handling across the ledger.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
// Message, when set, is the reason the service gave and is safe to show.
type ErrExternalService struct {
	Service string
	Message string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInsufficientFunds indicates not enough balance for the operation.
type ErrInsufficientFunds struct {
	Available float64
	Required  float64
}

func (e *ErrInsufficientFunds) Error() string {
	return fmt.Sprintf("Saldo insuficiente: disponível=%.2f necessário=%.2f", e.Available, e.Required)
}

// ErrOutsideWindow indicates an operation requested outside its allowed hours.
type ErrOutsideWindow struct {
	OpenHour  int
	CloseHour int
}

func (e *ErrOutsideWindow) Error() string {
	return fmt.Sprintf("Saques disponíveis apenas das %02d:00 às %02d:00", e.OpenHour, e.CloseHour)
}

// ErrNoSpins indicates the roulette was spun without spin credits.
var ErrNoSpins = errors.New("Sem giros disponíveis")

// ErrCheckinUnavailable indicates the check-in for the requested day cannot be taken.
type ErrCheckinUnavailable struct {
	Reason string
}

func (e *ErrCheckinUnavailable) Error() string {
	return fmt.Sprintf("check-in indisponível: %s", e.Reason)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrAccountBlocked indicates the account was banned by an operator.
type ErrAccountBlocked struct {
	UserID string
}

func (e *ErrAccountBlocked) Error() string {
	return "Conta bloqueada"
}

// ErrConflict indicates a resource already exists or a concurrent write won.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}
