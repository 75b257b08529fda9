package models

import (
	"context"

	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	"github.com/Temutjin2k/dispatch-core/pkg/uuid"
)

// User is the authenticated identity behind a channel or HTTP request.
// Identity issuance lives in an external auth service; here we only
// carry what the verified token claims.
type User struct {
	ID   uuid.UUID      `json:"id"`
	Name string         `json:"name"`
	Role types.UserRole `json:"role"`
}

var anonymous = &User{}

func AnonymousUser() *User {
	return anonymous
}

func (u *User) IsAnonymous() bool {
	return u == anonymous
}

func (u *User) HasRole(role types.UserRole) bool {
	return u != nil && u.Role == role
}

type userCtxKey struct{}

var userKey = userCtxKey{}

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func UserFromContext(ctx context.Context) *User {
	if u, ok := ctx.Value(userKey).(*User); ok {
		return u
	}
	return nil
}
