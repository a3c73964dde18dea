package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// Constraint names from the schema migrations. Unique violations are
// classified by name.
const (
	constraintSingleActive     = "uq_sessions_single_active"
	constraintAttendancePair   = "uq_attendance_member_session"
	constraintRegistrationCode = "uq_members_registration_code"
)

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

const sessionColumns = `id, label, session_date, start_time, end_time, is_active, opened_by, closed_by`

func scanSession(row rowScanner) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.Label, &s.Date, &s.StartTime, &s.EndTime, &s.IsActive, &s.OpenedBy, &s.ClosedBy)
	return s, err
}

// InsertSession relies on the partial unique index over active sessions, so
// two concurrent opens cannot both succeed.
func (r *Repository) InsertSession(ctx context.Context, s Session) (Session, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO sessions (id, label, session_date, start_time, is_active, opened_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+sessionColumns,
		s.ID, s.Label, s.Date, s.StartTime, s.IsActive, s.OpenedBy)
	out, err := scanSession(row)
	if err != nil {
		return Session{}, classify("insert session", err)
	}
	return out, nil
}

// GetSession returns a single session by id.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, NotFoundError{Resource: "session"}
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, NotFoundError{Resource: "session"}
		}
		return Session{}, classify("get session", err)
	}
	return s, nil
}

// ActiveSession returns the open session, if any.
func (r *Repository) ActiveSession(ctx context.Context) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE is_active LIMIT 1`)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("active session", err)
	}
	return &s, nil
}

// CloseSession closes the session only while it is still active.
func (r *Repository) CloseSession(ctx context.Context, id, closerID string, at time.Time) (Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Session{}, NotFoundError{Resource: "session"}
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET is_active = FALSE, end_time = $3, closed_by = $2
		WHERE id = $1 AND is_active
		RETURNING `+sessionColumns,
		id, closerID, at)
	s, err := scanSession(row)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Session{}, classify("close session", err)
	}
	if _, err := r.GetSession(ctx, id); err != nil {
		return Session{}, err
	}
	return Session{}, ErrInvalidState
}

// ListSessions returns sessions newest first.
func (r *Repository) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions`
	var clauses []string
	var args []any
	if f.Active != nil {
		args = append(args, *f.Active)
		clauses = append(clauses, "is_active = $"+strconv.Itoa(len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		clauses = append(clauses, "session_date >= $"+strconv.Itoa(len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		clauses = append(clauses, "session_date <= $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY session_date DESC, start_time DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("list sessions", err)
	}
	defer rows.Close()
	var res []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, classify("list sessions", err)
		}
		res = append(res, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list sessions", err)
	}
	return res, nil
}

const codeColumns = `id, member_id, session_id, code, expires_at, is_used, is_verified, attempts, max_attempts, created_at, verified_at`

func scanCode(row rowScanner) (OneTimeCode, error) {
	var c OneTimeCode
	err := row.Scan(&c.ID, &c.MemberID, &c.SessionID, &c.Code, &c.ExpiresAt, &c.IsUsed, &c.IsVerified, &c.Attempts, &c.MaxAttempts, &c.CreatedAt, &c.VerifiedAt)
	return c, err
}

// InsertCode serializes issuance per (member, session) with a transaction
// scoped advisory lock, then refuses when an outstanding code exists.
func (r *Repository) InsertCode(ctx context.Context, c OneTimeCode, now time.Time) (OneTimeCode, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return OneTimeCode{}, classify("insert code", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`, c.MemberID, c.SessionID); err != nil {
		return OneTimeCode{}, classify("insert code", err)
	}
	var outstanding bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM one_time_codes
			WHERE member_id = $1 AND session_id = $2 AND NOT is_used AND expires_at >= $3
		)
	`, c.MemberID, c.SessionID, now).Scan(&outstanding)
	if err != nil {
		return OneTimeCode{}, classify("insert code", err)
	}
	if outstanding {
		return OneTimeCode{}, ErrDuplicateRequest
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO one_time_codes (id, member_id, session_id, code, expires_at, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+codeColumns,
		c.ID, c.MemberID, c.SessionID, c.Code, c.ExpiresAt, c.MaxAttempts, c.CreatedAt)
	out, err := scanCode(row)
	if err != nil {
		return OneTimeCode{}, classify("insert code", err)
	}
	if err := tx.Commit(); err != nil {
		return OneTimeCode{}, classify("insert code", err)
	}
	return out, nil
}

// LatestUnusedCode returns the newest unused code for the pair.
func (r *Repository) LatestUnusedCode(ctx context.Context, memberID, sessionID string) (OneTimeCode, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+codeColumns+`
		FROM one_time_codes
		WHERE member_id = $1 AND session_id = $2 AND NOT is_used
		ORDER BY created_at DESC
		LIMIT 1
	`, memberID, sessionID)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OneTimeCode{}, ErrNotRequested
		}
		return OneTimeCode{}, classify("latest code", err)
	}
	return c, nil
}

// RecordMismatch increments attempts in one statement so concurrent wrong
// guesses each count.
func (r *Repository) RecordMismatch(ctx context.Context, id string) (OneTimeCode, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE one_time_codes
		SET attempts = attempts + 1
		WHERE id = $1 AND NOT is_used AND attempts < max_attempts
		RETURNING `+codeColumns, id)
	c, err := scanCode(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return OneTimeCode{}, classify("record mismatch", err)
	}
	cur, err := r.getCode(ctx, id)
	if err != nil {
		return OneTimeCode{}, err
	}
	if cur.IsUsed {
		return OneTimeCode{}, ErrNotRequested
	}
	return OneTimeCode{}, ErrAttemptsExceeded
}

// ConsumeCode flips is_used only while the code is still valid. Exactly one
// concurrent caller gets the row back.
func (r *Repository) ConsumeCode(ctx context.Context, id string, at time.Time) (OneTimeCode, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE one_time_codes
		SET is_used = TRUE, is_verified = TRUE, verified_at = $2
		WHERE id = $1 AND NOT is_used AND attempts < max_attempts AND expires_at >= $2
		RETURNING `+codeColumns, id, at)
	c, err := scanCode(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return OneTimeCode{}, classify("consume code", err)
	}
	cur, err := r.getCode(ctx, id)
	if err != nil {
		return OneTimeCode{}, err
	}
	switch {
	case cur.IsUsed:
		return OneTimeCode{}, ErrNotRequested
	case cur.Attempts >= cur.MaxAttempts:
		return OneTimeCode{}, ErrAttemptsExceeded
	default:
		return OneTimeCode{}, ErrExpired
	}
}

func (r *Repository) getCode(ctx context.Context, id string) (OneTimeCode, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+codeColumns+` FROM one_time_codes WHERE id = $1`, id)
	c, err := scanCode(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return OneTimeCode{}, ErrNotRequested
		}
		return OneTimeCode{}, classify("get code", err)
	}
	return c, nil
}

// InsertRecord writes an attendance record; the pair constraint rejects
// duplicates.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) (Record, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, member_id, session_id, status, origin, marked_by, ip_address, marked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, rec.ID, rec.MemberID, rec.SessionID, string(rec.Status), string(rec.Origin), rec.MarkedBy, rec.IPAddress, rec.MarkedAt)
	if err != nil {
		return Record{}, classify("insert record", err)
	}
	return rec, nil
}

// HasRecord reports whether the pair already has a record.
func (r *Repository) HasRecord(ctx context.Context, memberID, sessionID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM attendance_records WHERE member_id = $1 AND session_id = $2)
	`, memberID, sessionID).Scan(&ok)
	if err != nil {
		return false, classify("has record", err)
	}
	return ok, nil
}

// ListRecords returns the roster joined with member names.
func (r *Repository) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.member_id, a.session_id, a.status, a.origin, a.marked_by, a.ip_address, a.marked_at,
		       m.name, m.registration_code
		FROM attendance_records a
		JOIN members m ON m.id = a.member_id
		WHERE a.session_id = $1
		ORDER BY a.marked_at ASC
	`, sessionID)
	if err != nil {
		return nil, classify("list records", err)
	}
	defer rows.Close()
	res := []Record{}
	for rows.Next() {
		var rec Record
		var status, origin string
		if err := rows.Scan(&rec.ID, &rec.MemberID, &rec.SessionID, &status, &origin, &rec.MarkedBy, &rec.IPAddress, &rec.MarkedAt, &rec.MemberName, &rec.RegistrationCode); err != nil {
			return nil, classify("list records", err)
		}
		rec.Status, rec.Origin = Status(status), Origin(origin)
		res = append(res, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list records", err)
	}
	return res, nil
}

// CountPresent counts Present records among the given sessions.
func (r *Repository) CountPresent(ctx context.Context, memberID string, sessionIDs []string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records
		WHERE member_id = $1 AND status = $2 AND session_id = ANY($3::text[]::uuid[])
	`, memberID, string(StatusPresent), sessionIDs).Scan(&n)
	if err != nil {
		return 0, classify("count present", err)
	}
	return n, nil
}

// TotalPresent counts every Present record of a member.
func (r *Repository) TotalPresent(ctx context.Context, memberID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attendance_records WHERE member_id = $1 AND status = $2
	`, memberID, string(StatusPresent)).Scan(&n)
	if err != nil {
		return 0, classify("total present", err)
	}
	return n, nil
}

const memberColumns = `id, registration_code, name, email, gender, year, is_active, current_streak, longest_streak, last_attendance_at, created_at`

func scanMember(row rowScanner) (Member, error) {
	var m Member
	err := row.Scan(&m.ID, &m.RegistrationCode, &m.Name, &m.Email, &m.Gender, &m.Year, &m.IsActive, &m.CurrentStreak, &m.LongestStreak, &m.LastAttendanceDate, &m.CreatedAt)
	return m, err
}

// FindActiveByRegistrationCode returns nil for unknown or inactive members.
func (r *Repository) FindActiveByRegistrationCode(ctx context.Context, code string) (*Member, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+` FROM members WHERE registration_code = $1 AND is_active
	`, code)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("find member", err)
	}
	return &m, nil
}

// GetMember returns a member by id.
func (r *Repository) GetMember(ctx context.Context, id string) (Member, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Member{}, NotFoundError{Resource: "member"}
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+memberColumns+` FROM members WHERE id = $1`, id)
	m, err := scanMember(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Member{}, NotFoundError{Resource: "member"}
		}
		return Member{}, classify("get member", err)
	}
	return m, nil
}

// SaveStreak persists the streak fields when last_attendance_at still
// holds prev.
func (r *Repository) SaveStreak(ctx context.Context, m Member, prev *time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE members
		SET current_streak = $2, longest_streak = $3, last_attendance_at = $4, updated_at = NOW()
		WHERE id = $1 AND last_attendance_at IS NOT DISTINCT FROM $5
	`, m.ID, m.CurrentStreak, m.LongestStreak, m.LastAttendanceDate, prev)
	if err != nil {
		return classify("save streak", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("save streak", err)
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM members WHERE id = $1)`, m.ID).Scan(&exists); err != nil {
		return classify("save streak", err)
	}
	if !exists {
		return NotFoundError{Resource: "member"}
	}
	return ErrStaleMember
}

// ListActiveMembers returns active members, optionally for one year group.
func (r *Repository) ListActiveMembers(ctx context.Context, year string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM members
		WHERE is_active AND ($1 = '' OR year = $1)
		ORDER BY registration_code
	`, year)
	if err != nil {
		return nil, classify("list members", err)
	}
	defer rows.Close()
	var res []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, classify("list members", err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list members", err)
	}
	return res, nil
}

// CreateMember inserts a member.
func (r *Repository) CreateMember(ctx context.Context, m Member) (Member, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO members (id, registration_code, name, email, gender, year, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+memberColumns,
		m.ID, m.RegistrationCode, m.Name, m.Email, m.Gender, m.Year, m.IsActive)
	out, err := scanMember(row)
	if err != nil {
		return Member{}, classify("create member", err)
	}
	return out, nil
}

// classify maps Postgres failures onto the package errors. Anything not
// recognized becomes a StorageError.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return storageErr(op, err)
	}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		switch pgErr.ConstraintName {
		case constraintSingleActive:
			return ErrSessionConflict
		case constraintAttendancePair:
			return ErrDuplicateAttendance
		case constraintRegistrationCode:
			return ErrDuplicateMember
		}
	case pgerrcode.ForeignKeyViolation:
		return NotFoundError{Resource: strings.TrimSuffix(strings.TrimPrefix(pgErr.ConstraintName, "fk_"), "_id")}
	case pgerrcode.InvalidTextRepresentation:
		return ErrInvalidInput
	}
	return storageErr(op, err)
}
