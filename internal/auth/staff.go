package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role is a staff permission level.
type Role string

const (
	RoleSuperAdmin Role = "super-admin"
	RoleCoAdmin    Role = "co-admin"
)

// AdminRoles may open and close sessions, mark attendance and add members.
var AdminRoles = []Role{RoleSuperAdmin, RoleCoAdmin}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleSuperAdmin, RoleCoAdmin:
		return r, nil
	}
	return "", ErrInvalidRole
}

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRole        = errors.New("invalid role")
	ErrStaffExists        = errors.New("staff email already registered")
	ErrStaffNotFound      = errors.New("staff not found")
	ErrTokenRevoked       = errors.New("refresh token revoked or unknown")
)

// Staff is an operator account.
type Staff struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists staff accounts and refresh tokens.
type Store interface {
	CreateStaff(ctx context.Context, s Staff) (Staff, error)
	StaffByEmail(ctx context.Context, email string) (Staff, error)
	StaffByID(ctx context.Context, id string) (Staff, error)
	SaveRefreshToken(ctx context.Context, staffID, token string, expiresAt time.Time) error
	// ConsumeRefreshToken revokes an unrevoked, unexpired token and returns
	// its owner. Only one concurrent caller can succeed.
	ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (string, error)
	RevokeRefreshToken(ctx context.Context, token string) error
}
