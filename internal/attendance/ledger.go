package attendance

import (
	"context"

	"github.com/google/uuid"
)

// RecordInput describes a new attendance record.
type RecordInput struct {
	MemberID  string
	SessionID string
	Status    Status
	Origin    Origin
	MarkedBy  *string
	IPAddress string
}

// Ledger writes and reads attendance records.
type Ledger struct {
	store RecordStore
	now   Clock
}

// NewLedger creates a ledger over store.
func NewLedger(store RecordStore, now Clock) *Ledger {
	if now == nil {
		now = systemClock
	}
	return &Ledger{store: store, now: now}
}

// Record writes one record. A second write for the same pair fails with
// ErrDuplicateAttendance; it never overwrites.
func (l *Ledger) Record(ctx context.Context, in RecordInput) (Record, error) {
	if in.MemberID == "" || in.SessionID == "" {
		return Record{}, ErrInvalidInput
	}
	if in.Status == "" {
		in.Status = StatusPresent
	}
	if in.Origin == "" {
		in.Origin = OriginSelf
	}
	return l.store.InsertRecord(ctx, Record{
		ID:        uuid.NewString(),
		MemberID:  in.MemberID,
		SessionID: in.SessionID,
		Status:    in.Status,
		Origin:    in.Origin,
		MarkedBy:  in.MarkedBy,
		IPAddress: in.IPAddress,
		MarkedAt:  l.now(),
	})
}

// Exists reports whether the member already has a record for the session.
func (l *Ledger) Exists(ctx context.Context, memberID, sessionID string) (bool, error) {
	return l.store.HasRecord(ctx, memberID, sessionID)
}

// ListForSession returns a session's records ordered by MarkedAt ascending.
func (l *Ledger) ListForSession(ctx context.Context, sessionID string) ([]Record, error) {
	return l.store.ListRecords(ctx, sessionID)
}

// CountPresent counts Present records for memberID among sessionIDs.
func (l *Ledger) CountPresent(ctx context.Context, memberID string, sessionIDs []string) (int, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	return l.store.CountPresent(ctx, memberID, sessionIDs)
}
