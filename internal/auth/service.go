package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service handles staff accounts and token rotation.
type Service struct {
	store      Store
	issuer     string
	key        string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewService creates the staff auth service.
func NewService(store Store, issuer, key string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		store:      store,
		issuer:     issuer,
		key:        key,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// CreateStaff registers an operator account.
func (s *Service) CreateStaff(ctx context.Context, name, email, password string, role Role) (Staff, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return Staff{}, errors.New("name and a valid email are required")
	}
	if _, err := ParseRole(string(role)); err != nil {
		return Staff{}, err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Staff{}, err
	}
	return s.store.CreateStaff(ctx, Staff{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    s.now().UTC(),
	})
}

// Login checks credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, Staff, error) {
	st, err := s.store.StaffByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, ErrStaffNotFound) {
			return TokenPair{}, Staff{}, ErrInvalidCredentials
		}
		return TokenPair{}, Staff{}, err
	}
	if !st.IsActive || !CheckPassword(st.PasswordHash, password) {
		return TokenPair{}, Staff{}, ErrInvalidCredentials
	}
	pair, err := s.issue(ctx, st)
	if err != nil {
		return TokenPair{}, Staff{}, err
	}
	zerolog.Ctx(ctx).Info().Str("staff_id", st.ID).Msg("staff logged in")
	return pair, st, nil
}

// Refresh rotates a refresh token. The presented token is revoked and
// cannot be reused.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := Parse(refreshToken, s.key, s.issuer)
	if err != nil || claims.Kind != KindRefresh {
		return TokenPair{}, ErrTokenRevoked
	}
	staffID, err := s.store.ConsumeRefreshToken(ctx, refreshToken, s.now())
	if err != nil {
		return TokenPair{}, err
	}
	st, err := s.store.StaffByID(ctx, staffID)
	if err != nil {
		return TokenPair{}, err
	}
	if !st.IsActive {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.issue(ctx, st)
}

// Logout revokes a refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.store.RevokeRefreshToken(ctx, refreshToken)
}

func (s *Service) issue(ctx context.Context, st Staff) (TokenPair, error) {
	pair, err := Issue(st.ID, st.Role, s.issuer, s.key, s.accessTTL, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.SaveRefreshToken(ctx, st.ID, pair.RefreshToken, pair.RefreshExp); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}
