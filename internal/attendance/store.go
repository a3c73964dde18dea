package attendance

import (
	"context"
	"time"
)

// SessionStore persists sessions. InsertSession must reject a second active
// session atomically (ErrSessionConflict); a read-then-write is not enough.
type SessionStore interface {
	InsertSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, id string) (Session, error)
	// ActiveSession returns nil, nil when no session is open.
	ActiveSession(ctx context.Context) (*Session, error)
	// CloseSession flips an active session to closed. It returns ErrNotFound
	// for unknown ids and ErrInvalidState when already closed.
	CloseSession(ctx context.Context, id, closerID string, at time.Time) (Session, error)
	ListSessions(ctx context.Context, f SessionFilter) ([]Session, error)
}

// CodeStore persists one-time codes.
type CodeStore interface {
	// InsertCode stores c unless an outstanding code exists for the same
	// (member, session) at now, in which case it returns ErrDuplicateRequest.
	InsertCode(ctx context.Context, c OneTimeCode, now time.Time) (OneTimeCode, error)
	// LatestUnusedCode returns the most recent unused code or ErrNotRequested.
	LatestUnusedCode(ctx context.Context, memberID, sessionID string) (OneTimeCode, error)
	// RecordMismatch increments attempts on an unused, non-exhausted code.
	RecordMismatch(ctx context.Context, id string) (OneTimeCode, error)
	// ConsumeCode marks the code used and verified. It fails with
	// ErrNotRequested if the code was already used, ErrAttemptsExceeded or
	// ErrExpired otherwise.
	ConsumeCode(ctx context.Context, id string, at time.Time) (OneTimeCode, error)
}

// RecordStore persists attendance records. InsertRecord must enforce
// (member, session) uniqueness itself and return ErrDuplicateAttendance.
type RecordStore interface {
	InsertRecord(ctx context.Context, r Record) (Record, error)
	HasRecord(ctx context.Context, memberID, sessionID string) (bool, error)
	ListRecords(ctx context.Context, sessionID string) ([]Record, error)
	CountPresent(ctx context.Context, memberID string, sessionIDs []string) (int, error)
	TotalPresent(ctx context.Context, memberID string) (int, error)
}

// Directory is the member directory collaborator.
type Directory interface {
	// FindActiveByRegistrationCode returns nil, nil for unknown or inactive members.
	FindActiveByRegistrationCode(ctx context.Context, code string) (*Member, error)
	GetMember(ctx context.Context, id string) (Member, error)
	// SaveStreak writes the streak fields only if last_attendance still
	// equals prev, otherwise it returns ErrStaleMember.
	SaveStreak(ctx context.Context, m Member, prev *time.Time) error
	ListActiveMembers(ctx context.Context, year string) ([]Member, error)
	CreateMember(ctx context.Context, m Member) (Member, error)
}

// Store bundles every persistence concern the engine needs.
type Store interface {
	SessionStore
	CodeStore
	RecordStore
	Directory
}

// Clock returns the current time.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
