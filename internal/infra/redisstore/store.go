// Package redisstore implements UserStore on Redis. Each user record is one
// JSON value; writes use WATCH/MULTI so concurrent updates of the same record
// retry instead of overwriting each other.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

var tracer = otel.Tracer("redisstore")

const (
	userKeyPattern       = "user:%s"
	emailKeyPattern      = "user:email:%s"
	inviteKeyPattern     = "user:invite:%s"
	credentialKeyPattern = "credential:%s"
	usersSetKey          = "users"

	maxTxAttempts = 10
)

// Config defines connection parameters for the Redis client.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
}

// NewClient creates a Redis client and verifies the connection with Ping.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// Store persists users in Redis.
type Store struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a Redis-backed store.
func New(client *redis.Client, logger *zap.Logger) *Store {
	return &Store{client: client, logger: logger}
}

func userKey(id string) string       { return fmt.Sprintf(userKeyPattern, id) }
func emailKey(e string) string       { return fmt.Sprintf(emailKeyPattern, strings.ToLower(e)) }
func inviteKey(c string) string      { return fmt.Sprintf(inviteKeyPattern, strings.ToUpper(c)) }
func credentialKey(id string) string { return fmt.Sprintf(credentialKeyPattern, id) }

func (s *Store) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Redis.GetUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	return s.load(ctx, s.client, userID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) load(ctx context.Context, g getter, userID string) (*domain.User, error) {
	raw, err := g.Get(ctx, userKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.ErrNotFound{Resource: "user", ID: userID}
		}
		return nil, fmt.Errorf("get user from redis: %w", err)
	}

	var u domain.User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func (s *Store) lookup(ctx context.Context, key, resource, value string) (*domain.User, error) {
	id, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.ErrNotFound{Resource: resource, ID: value}
		}
		return nil, fmt.Errorf("lookup %s: %w", resource, err)
	}
	return s.load(ctx, s.client, id)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Redis.GetUserByEmail")
	defer span.End()

	return s.lookup(ctx, emailKey(email), "user", email)
}

func (s *Store) GetUserByInviteCode(ctx context.Context, code string) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Redis.GetUserByInviteCode")
	defer span.End()

	return s.lookup(ctx, inviteKey(code), "invite_code", code)
}

// CreateUser claims the email and invite-code indexes with SETNX before the
// record is written; a lost claim releases what was already taken.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "Redis.CreateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", u.ID))

	ok, err := s.client.SetNX(ctx, emailKey(u.Email), u.ID, 0).Result()
	if err != nil {
		return fmt.Errorf("claim email: %w", err)
	}
	if !ok {
		return &domain.ErrConflict{Message: "E-mail já cadastrado"}
	}

	ok, err = s.client.SetNX(ctx, inviteKey(u.InviteCode), u.ID, 0).Result()
	if err != nil || !ok {
		s.release(ctx, u.ID, emailKey(u.Email))
		if err != nil {
			return fmt.Errorf("claim invite code: %w", err)
		}
		return &domain.ErrConflict{Message: "código de convite em uso"}
	}

	u.Version = 1
	payload, err := json.Marshal(u)
	if err != nil {
		s.release(ctx, u.ID, emailKey(u.Email), inviteKey(u.InviteCode))
		return fmt.Errorf("marshal user: %w", err)
	}

	// EXEC does not roll back, so a failed pipeline may have written the record.
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, userKey(u.ID), payload, 0)
	pipe.SAdd(ctx, usersSetKey, u.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		s.release(ctx, u.ID, emailKey(u.Email), inviteKey(u.InviteCode), userKey(u.ID))
		return fmt.Errorf("store user: %w", err)
	}

	s.logger.Debug("redis: user created", zap.String("user_id", u.ID))
	return nil
}

// release deletes the keys a failed CreateUser claimed.
func (s *Store) release(ctx context.Context, userID string, keys ...string) {
	if err := s.client.Del(context.WithoutCancel(ctx), keys...).Err(); err != nil {
		s.logger.Error("redis: failed to release claims",
			zap.String("user_id", userID),
			zap.Strings("keys", keys),
			zap.Error(err),
		)
	}
}

// UpdateUser runs fn inside WATCH on the user key and commits with MULTI/EXEC.
// A concurrent write aborts EXEC with redis.TxFailedErr and the whole
// read-modify-write is retried.
func (s *Store) UpdateUser(ctx context.Context, userID string, fn port.UpdateFunc) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Redis.UpdateUser")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	key := userKey(userID)
	var updated *domain.User

	txf := func(tx *redis.Tx) error {
		u, err := s.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		u.ID = userID
		u.Version++

		payload, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = u
		return nil
	}

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, err
		}
		s.logger.Debug("redis: update conflict, retrying",
			zap.String("user_id", userID),
			zap.Int("attempt", attempt),
		)
	}

	return nil, &domain.ErrConflict{Message: "atualização concorrente, tente novamente"}
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	ctx, span := tracer.Start(ctx, "Redis.ListUsers")
	defer span.End()

	ids, err := s.client.SMembers(ctx, usersSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	if len(ids) == 0 {
		return []domain.User{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = userKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	users := make([]domain.User, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var u domain.User
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			s.logger.Warn("redis: skipping undecodable user", zap.String("user_id", ids[i]), zap.Error(err))
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Store) SaveCredential(ctx context.Context, cred *domain.Credential) error {
	payload, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	if err := s.client.Set(ctx, credentialKey(cred.UserID), payload, 0).Err(); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, userID string) (*domain.Credential, error) {
	raw, err := s.client.Get(ctx, credentialKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, &domain.ErrNotFound{Resource: "credential", ID: userID}
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	var cred domain.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("unmarshal credential: %w", err)
	}
	return &cred, nil
}
