package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/pkg/logger"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

func testService(t *testing.T) *TokenService {
	t.Helper()
	return NewTokenService("test-secret", logger.InitLogger("auth-test", logger.LevelError))
}

func testUser(t *testing.T, role types.UserRole) *models.User {
	t.Helper()
	id, err := uuid.New()
	if err != nil {
		t.Fatalf("uuid: %v", err)
	}
	return &models.User{ID: id, Name: "test user", Role: role}
}

func TestTokenService_Roundtrip(t *testing.T) {
	s := testService(t)
	user := testUser(t, types.DriverRole)

	token, err := s.Sign(user, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := s.Validate(context.Background(), token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID != user.ID || got.Role != types.DriverRole || got.Name != user.Name {
		t.Fatalf("claims mismatch: %+v", got)
	}
}

func TestTokenService_WrongSecret(t *testing.T) {
	s := testService(t)
	other := NewTokenService("other-secret", logger.InitLogger("auth-test", logger.LevelError))

	token, err := other.Sign(testUser(t, types.RiderRole), time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := s.Validate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("foreign token: got %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_Expired(t *testing.T) {
	s := testService(t)

	token, err := s.Sign(testUser(t, types.RiderRole), -time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	// jwt/v5 rejects an expired token at parse time already.
	_, err = s.Validate(context.Background(), token)
	if err == nil {
		t.Fatal("expired token must not validate")
	}
}

func TestTokenService_Garbage(t *testing.T) {
	s := testService(t)

	if _, err := s.Validate(context.Background(), "not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: got %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_RoleCheck(t *testing.T) {
	s := testService(t)
	user := testUser(t, types.RiderRole)

	token, err := s.Sign(user, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := s.RoleCheck(context.Background(), token, types.RiderRole, types.AdminRole); err != nil {
		t.Fatalf("role check must accept a listed role: %v", err)
	}
	if _, err := s.RoleCheck(context.Background(), token, types.DriverRole); !errors.Is(err, ErrActionForbidden) {
		t.Fatalf("role check: got %v, want ErrActionForbidden", err)
	}
}
