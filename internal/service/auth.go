package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/monety-ledger-go/internal/domain"
	"github.com/boddenberg/monety-ledger-go/internal/infra/resilience"
	"github.com/boddenberg/monety-ledger-go/internal/ledger"
	"github.com/boddenberg/monety-ledger-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

const (
	bcryptCost        = bcrypt.DefaultCost
	maxInviteAttempts = 5
	tokenIssuer       = "monety-ledger"
)

// JWTClaims are the claims of an access token.
type JWTClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// AuthService handles registration, login and access tokens.
type AuthService struct {
	users     port.UserStore
	creds     port.CredentialStore
	ledger    *LedgerService
	clock     ledger.Clock
	retryCfg  resilience.Config
	jwtSecret []byte
	accessTTL time.Duration
	logger    *zap.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(users port.UserStore, creds port.CredentialStore, ledgerSvc *LedgerService, clock ledger.Clock, retryCfg resilience.Config, jwtSecret string, accessTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		creds:     creds,
		ledger:    ledgerSvc,
		clock:     clock,
		retryCfg:  retryCfg,
		jwtSecret: []byte(jwtSecret),
		accessTTL: accessTTL,
		logger:    logger,
	}
}

// ============================================================
// Register: POST /v1/auth/register
// ============================================================

// Register creates the account. A known invite code links the new user to
// the inviter; an unknown one is ignored. The credential is written first,
// under the new id, so a failed insert never leaves an account that cannot
// log in.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if len(req.Password) < 6 {
		return nil, &domain.ErrValidation{Field: "password", Message: "Senha deve ter pelo menos 6 caracteres"}
	}

	var inviter *domain.User
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := s.users.GetUserByEmail(gctx, email)
		if err == nil {
			return &domain.ErrConflict{Message: "E-mail já cadastrado"}
		}
		if !isNotFound(err) {
			return fmt.Errorf("check existing user: %w", err)
		}
		return nil
	})

	if code := strings.TrimSpace(req.InviteCode); code != "" {
		g.Go(func() error {
			found, err := s.users.GetUserByInviteCode(gctx, code)
			if err != nil {
				if !isNotFound(err) {
					return fmt.Errorf("resolve invite code: %w", err)
				}
				s.logger.Info("register: unknown invite code ignored", zap.String("invite_code", code))
				return nil
			}
			inviter = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.clock.Now()
	u := &domain.User{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Email:     email,
		CreatedAt: now,
	}
	if u.DisplayID, err = ledger.NewDisplayID(); err != nil {
		return nil, fmt.Errorf("generate display id: %w", err)
	}
	if inviter != nil {
		inviterID := inviter.ID
		u.InvitedBy = &inviterID
	}

	if err := s.creds.SaveCredential(ctx, &domain.Credential{UserID: u.ID, PasswordHash: string(hash), CreatedAt: now}); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}

	if err := s.createWithInviteCode(ctx, u); err != nil {
		return nil, err
	}

	if inviter != nil {
		s.linkReferral(ctx, inviter.ID, u)
	}

	s.logger.Info("user registered",
		zap.String("user_id", u.ID),
		zap.Bool("invited", inviter != nil),
	)

	return s.issue(ctx, u.ID)
}

// createWithInviteCode stores u with a fresh invite code, drawing a new one
// when the code is already taken.
func (s *AuthService) createWithInviteCode(ctx context.Context, u *domain.User) error {
	for attempt := 1; attempt <= maxInviteAttempts; attempt++ {
		code, err := ledger.NewInviteCode()
		if err != nil {
			return fmt.Errorf("generate invite code: %w", err)
		}
		u.InviteCode = code

		err = s.users.CreateUser(ctx, u)
		if err == nil {
			return nil
		}
		var conflict *domain.ErrConflict
		if !errors.As(err, &conflict) {
			return fmt.Errorf("create user: %w", err)
		}
		if _, lookupErr := s.users.GetUserByEmail(ctx, u.Email); lookupErr == nil {
			return &domain.ErrConflict{Message: "E-mail já cadastrado"}
		}
		s.logger.Debug("register: invite code collision", zap.Int("attempt", attempt))
	}
	return &domain.ErrConflict{Message: "não foi possível gerar um código de convite"}
}

// linkReferral appends the new user to the inviter's level-1 referrals. The
// append is idempotent so the step is retried; a failure leaves the
// invitee's invitedBy in place and is logged. The invitee's first purchase
// links it again.
func (s *AuthService) linkReferral(ctx context.Context, inviterID string, invitee *domain.User) {
	err := resilience.RetryWithBackoff(ctx, s.retryCfg, func() error {
		_, err := s.users.UpdateUser(ctx, inviterID, func(inviter *domain.User) error {
			ledger.LinkReferral(inviter, invitee.Clone(), s.clock.Now())
			return nil
		})
		if isNotFound(err) {
			return resilience.Permanent(err)
		}
		return err
	})
	if err != nil {
		s.logger.Error("register: referral link failed",
			zap.String("inviter_id", inviterID),
			zap.String("invitee_id", invitee.ID),
			zap.Error(err),
		)
	}
}

// ============================================================
// Login: POST /v1/auth/login
// ============================================================

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.AuthResponse, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if isNotFound(err) {
			return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", u.ID))

	if u.Banned {
		s.logger.Warn("login: account blocked", zap.String("user_id", u.ID))
		return nil, &domain.ErrAccountBlocked{UserID: u.ID}
	}

	cred, err := s.creds.GetCredential(ctx, u.ID)
	if err != nil {
		if isNotFound(err) {
			return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(req.Password)); err != nil {
		s.logger.Warn("login: wrong password", zap.String("user_id", u.ID))
		return nil, &domain.ErrUnauthorized{Message: "Credenciais inválidas"}
	}

	s.logger.Info("user logged in", zap.String("user_id", u.ID))
	return s.issue(ctx, u.ID)
}

// issue loads the accrued record and signs an access token for it.
func (s *AuthService) issue(ctx context.Context, userID string) (*domain.AuthResponse, error) {
	u, err := s.ledger.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, err := s.signAccessToken(userID)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &domain.AuthResponse{
		AccessToken: token,
		ExpiresIn:   int(s.accessTTL.Seconds()),
		User:        u,
	}, nil
}

// ValidateAccessToken parses and validates a JWT access token.
func (s *AuthService) ValidateAccessToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido ou expirado"}
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "Token inválido"}
	}
	if claims.Type != "access" {
		return nil, &domain.ErrUnauthorized{Message: "Tipo de token inválido"}
	}
	return claims, nil
}

func (s *AuthService) signAccessToken(userID string) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		Type: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
			Issuer:    tokenIssuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func isNotFound(err error) bool {
	var notFound *domain.ErrNotFound
	return errors.As(err, &notFound)
}
