package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

const (
	usersTable       = "ledger_users"
	credentialsTable = "ledger_credentials"

	maxUpdateAttempts = 10
)

// UserStore implements port.UserStore and port.CredentialStore on Supabase.
// Updates are guarded by the version column: a PATCH filtered on the version
// that was read updates zero rows when another writer got there first.
type UserStore struct {
	c *Client
}

// NewUserStore creates a Supabase-backed store.
func NewUserStore(c *Client) *UserStore {
	return &UserStore{c: c}
}

func (s *UserStore) selectOne(ctx context.Context, column, value, resource string) (*domain.User, error) {
	var user *domain.User
	err := s.c.execute(ctx, func() error {
		path := fmt.Sprintf("%s?%s=%s&limit=1", usersTable, column, eq(value))
		body, err := s.c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows(body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: resource, ID: value})
		}
		user, err = fromRow(rows[0])
		return err
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	return s.selectOne(ctx, "id", userID, "user")
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByEmail")
	defer span.End()

	return s.selectOne(ctx, "email", strings.ToLower(email), "user")
}

func (s *UserStore) GetUserByInviteCode(ctx context.Context, code string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUserByInviteCode")
	defer span.End()

	return s.selectOne(ctx, "invite_code", strings.ToUpper(code), "invite_code")
}

// CreateUser inserts the record with version 1. The table's unique indexes on
// email and invite_code answer 409, reported as domain.ErrConflict.
func (s *UserStore) CreateUser(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "Supabase.CreateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", u.ID))

	u.Version = 1
	row, err := toRow(u)
	if err != nil {
		return err
	}

	err = s.c.executeOnce(func() error {
		_, err := s.c.doRequest(ctx, http.MethodPost, usersTable, row)
		return err
	})
	if err != nil {
		return err
	}

	s.c.logger.Info("supabase: user created", zap.String("user_id", u.ID))
	return nil
}

// UpdateUser reloads, applies fn and writes back only if the version is still
// the one that was read. A lost race reloads and reapplies fn.
func (s *UserStore) UpdateUser(ctx context.Context, userID string, fn port.UpdateFunc) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		current, err := s.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}

		expected := current.Version
		if err := fn(current); err != nil {
			return nil, err
		}
		current.ID = userID
		current.Version = expected + 1

		row, err := toRow(current)
		if err != nil {
			return nil, err
		}
		patch := map[string]any{
			"record":  row.Record,
			"version": row.Version,
		}

		var rows []userRow
		err = s.c.executeOnce(func() error {
			path := fmt.Sprintf("%s?id=%s&version=eq.%d", usersTable, eq(userID), expected)
			body, err := s.c.doRequest(ctx, http.MethodPatch, path, patch)
			if err != nil {
				return err
			}
			rows, err = decodeRows(body)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(rows) == 1 {
			return fromRow(rows[0])
		}

		s.c.logger.Debug("supabase: version conflict, retrying",
			zap.String("user_id", userID),
			zap.Int64("version", expected),
			zap.Int("attempt", attempt),
		)
	}

	return nil, &domain.ErrConflict{Message: "atualização concorrente, tente novamente"}
}

func (s *UserStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListUsers")
	defer span.End()

	var users []domain.User
	err := s.c.execute(ctx, func() error {
		path := fmt.Sprintf("%s?order=created_at.asc", usersTable)
		body, err := s.c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows(body)
		if err != nil {
			return err
		}

		users = make([]domain.User, 0, len(rows))
		for _, r := range rows {
			u, err := fromRow(r)
			if err != nil {
				s.c.logger.Warn("supabase: skipping undecodable user", zap.String("user_id", r.ID), zap.Error(err))
				continue
			}
			users = append(users, *u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UserStore) SaveCredential(ctx context.Context, cred *domain.Credential) error {
	ctx, span := tracer.Start(ctx, "Supabase.SaveCredential")
	defer span.End()

	return s.c.executeOnce(func() error {
		_, err := s.c.doRequest(ctx, http.MethodPost, credentialsTable, cred)
		return err
	})
}

func (s *UserStore) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCredential")
	defer span.End()

	var cred *domain.Credential
	err := s.c.execute(ctx, func() error {
		path := fmt.Sprintf("%s?user_id=%s&limit=1", credentialsTable, eq(userID))
		body, err := s.c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		var rows []domain.Credential
		if len(body) > 0 {
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode credential: %w", err)
			}
		}
		if len(rows) == 0 {
			return resilience.Permanent(&domain.ErrNotFound{Resource: "credential", ID: userID})
		}
		cred = &rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}
