package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "github.com/yungbote/docscan-backend/internal/pkg/errors"
	"github.com/yungbote/docscan-backend/internal/pkg/envutil"
	"github.com/yungbote/docscan-backend/internal/pkg/logger"
	"github.com/yungbote/docscan-backend/internal/repos"
	"github.com/yungbote/docscan-backend/internal/types"
)

// AuthService resolves the request's identity cookie. There is no signup:
// a missing or invalid token gets a fresh anonymous user and a new token.
type AuthService interface {
	// Authenticate returns the user for token. When the token is absent or
	// unusable it creates a user and returns a freshly issued token; freshToken
	// is empty when the presented token was fine.
	Authenticate(ctx context.Context, token string) (user *types.User, freshToken string, err error)
	TokenTTL() time.Duration
}

type authService struct {
	log    *logger.Logger
	users  repos.UserRepo
	secret []byte
	ttl    time.Duration
}

func NewAuthService(log *logger.Logger, users repos.UserRepo) (AuthService, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if users == nil {
		return nil, fmt.Errorf("user repo required")
	}
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	ttlHours := envutil.GetEnvAsInt("JWT_TTL_HOURS", 24*30, log)
	return &authService{
		log:    log.With("service", "AuthService"),
		users:  users,
		secret: []byte(secret),
		ttl:    time.Duration(ttlHours) * time.Hour,
	}, nil
}

func (s *authService) TokenTTL() time.Duration { return s.ttl }

func (s *authService) Authenticate(ctx context.Context, token string) (*types.User, string, error) {
	if userID, err := s.parse(token); err == nil {
		user, err := s.users.GetByID(ctx, nil, userID)
		if err == nil {
			return user, "", nil
		}
		s.log.Warn("Token subject unknown, issuing new identity", "user_id", userID.String())
	}

	user, err := s.users.Create(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	fresh, err := s.issue(user.ID)
	if err != nil {
		return nil, "", err
	}
	s.log.Info("Created anonymous user", "user_id", user.ID.String())
	return user, fresh, nil
}

func (s *authService) issue(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *authService) parse(token string) (uuid.UUID, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return uuid.Nil, fmt.Errorf("empty token: %w", apperrors.ErrUnauthorized)
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, fmt.Errorf("invalid token: %w", apperrors.ErrUnauthorized)
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid claims: %w", apperrors.ErrUnauthorized)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject: %w", apperrors.ErrUnauthorized)
	}
	return userID, nil
}
