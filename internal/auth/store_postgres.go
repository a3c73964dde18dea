package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore keeps staff in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a staff store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const staffColumns = `id, name, email, password_hash, role, is_active, created_at`

func scanStaff(row *sql.Row) (Staff, error) {
	var s Staff
	var role string
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.PasswordHash, &role, &s.IsActive, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Staff{}, ErrStaffNotFound
		}
		return Staff{}, err
	}
	s.Role = Role(role)
	return s, nil
}

func (p *PostgresStore) CreateStaff(ctx context.Context, s Staff) (Staff, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO staff (id, name, email, password_hash, role, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+staffColumns,
		s.ID, s.Name, s.Email, s.PasswordHash, string(s.Role), s.IsActive, s.CreatedAt)
	out, err := scanStaff(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return Staff{}, ErrStaffExists
		}
		return Staff{}, err
	}
	return out, nil
}

func (p *PostgresStore) StaffByEmail(ctx context.Context, email string) (Staff, error) {
	return scanStaff(p.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE email = $1`, email))
}

func (p *PostgresStore) StaffByID(ctx context.Context, id string) (Staff, error) {
	return scanStaff(p.db.QueryRowContext(ctx, `SELECT `+staffColumns+` FROM staff WHERE id::text = $1`, id))
}

func (p *PostgresStore) SaveRefreshToken(ctx context.Context, staffID, token string, expiresAt time.Time) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO staff_refresh_tokens (token, staff_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, staffID, expiresAt)
	return err
}

func (p *PostgresStore) ConsumeRefreshToken(ctx context.Context, token string, now time.Time) (string, error) {
	var staffID string
	err := p.db.QueryRowContext(ctx, `
		UPDATE staff_refresh_tokens
		SET revoked = TRUE
		WHERE token = $1 AND NOT revoked AND expires_at > $2
		RETURNING staff_id
	`, token, now).Scan(&staffID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrTokenRevoked
	}
	return staffID, err
}

func (p *PostgresStore) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE staff_refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	return err
}
