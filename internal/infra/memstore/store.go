// Package memstore provides an in-process UserStore used by the local-only
// deployment and by tests. Records are deep-copied on every read and write.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

// Store is a thread-safe in-memory user and credential store.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*domain.User
	byEmail     map[string]string
	byInvite    map[string]string
	credentials map[string]domain.Credential
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:       make(map[string]*domain.User),
		byEmail:     make(map[string]string),
		byInvite:    make(map[string]string),
		credentials: make(map[string]domain.Credential),
	}
}

func (s *Store) GetUser(_ context.Context, userID string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}
	return u.Clone(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[strings.ToLower(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: email}
	}
	return s.GetUser(ctx, id)
}

func (s *Store) GetUserByInviteCode(ctx context.Context, code string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byInvite[strings.ToUpper(code)]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "invite_code", ID: code}
	}
	return s.GetUser(ctx, id)
}

func (s *Store) CreateUser(_ context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	code := strings.ToUpper(u.InviteCode)
	if _, exists := s.users[u.ID]; exists {
		return &domain.ErrConflict{Message: "usuário já existe"}
	}
	if _, exists := s.byEmail[email]; exists {
		return &domain.ErrConflict{Message: "E-mail já cadastrado"}
	}
	if _, exists := s.byInvite[code]; exists {
		return &domain.ErrConflict{Message: "código de convite em uso"}
	}

	c := u.Clone()
	c.Version = 1
	s.users[u.ID] = c
	s.byEmail[email] = u.ID
	s.byInvite[code] = u.ID
	u.Version = 1
	return nil
}

// UpdateUser holds the write lock for the whole read-modify-write, so
// concurrent updates of any record are serialized.
func (s *Store) UpdateUser(_ context.Context, userID string, fn port.UpdateFunc) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = userID
	next.Version = current.Version + 1
	s.users[userID] = next
	return next.Clone(), nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SaveCredential(_ context.Context, cred *domain.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials[cred.UserID] = *cred
	return nil
}

func (s *Store) GetCredential(_ context.Context, userID string) (*domain.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.credentials[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "credential", ID: userID}
	}
	return &c, nil
}
