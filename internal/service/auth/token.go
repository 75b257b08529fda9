// Package auth validates the bearer tokens minted by the identity
// service. Dispatch never issues credentials; it only checks them.
package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
	"github.com/golang-jwt/jwt/v5"
)

type TokenService struct {
	secret string
	log    logger.Logger
}

func NewTokenService(secret string, log logger.Logger) *TokenService {
	return &TokenService{
		secret: secret,
		log:    log,
	}
}

// Validate parses and verifies an HS256 token, returning the user it
// identifies.
func (s *TokenService) Validate(ctx context.Context, token string) (*models.User, error) {
	ctx = wrap.WithAction(ctx, "validate_token")

	parsedToken, err := jwt.ParseWithClaims(token, jwt.MapClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return []byte(s.secret), nil
	})
	if err != nil || !parsedToken.Valid {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	mc, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	userIDStr, _ := mc["user_id"].(string)
	if userIDStr == "" {
		return nil, wrap.Error(ctx, fmt.Errorf("invalid or missing 'user_id' in token claims"))
	}
	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, wrap.Error(ctx, fmt.Errorf("invalid 'user_id' in token claims"))
	}

	role, _ := mc["role"].(string)
	if !isValidRole(role) {
		return nil, wrap.Error(ctx, ErrInvalidToken)
	}

	expFloat, ok := mc["exp"].(float64)
	if !ok {
		return nil, wrap.Error(ctx, fmt.Errorf("invalid or missing 'exp' in token claims"))
	}
	if time.Now().UTC().After(time.Unix(int64(expFloat), 0)) {
		return nil, wrap.Error(ctx, ErrExpToken)
	}

	name, _ := mc["name"].(string)

	return &models.User{
		ID:   userID,
		Name: name,
		Role: types.UserRole(role),
	}, nil
}

// RoleCheck validates the token and additionally requires one of the
// given roles.
func (s *TokenService) RoleCheck(ctx context.Context, token string, roles ...types.UserRole) (*models.User, error) {
	user, err := s.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if user.Role == role {
			return user, nil
		}
	}
	return nil, wrap.Error(wrap.WithUserID(ctx, user.ID.String()), ErrActionForbidden)
}

// Sign mints a token for the given user. Used by local tooling and
// tests; production tokens come from the identity service with the
// shared secret.
func (s *TokenService) Sign(user *models.User, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"user_id": user.ID.String(),
		"name":    user.Name,
		"role":    user.Role.String(),
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.secret))
}

func isValidRole(role string) bool {
	switch types.UserRole(role) {
	case types.RiderRole, types.DriverRole, types.AdminRole:
		return true
	default:
		return false
	}
}
