package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store. One mutex guards every table so each
// method is atomic, matching the guarantees of the Postgres repository.
type Memory struct {
	mu       sync.Mutex
	members  map[string]Member
	sessions map[string]Session
	codes    map[string]OneTimeCode
	records  map[string]Record
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		members:  map[string]Member{},
		sessions: map[string]Session{},
		codes:    map[string]OneTimeCode{},
		records:  map[string]Record{},
	}
}

var _ Store = (*Memory)(nil)

func pairKey(memberID, sessionID string) string { return memberID + ":" + sessionID }

func (m *Memory) InsertSession(_ context.Context, s Session) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.IsActive {
		for _, cur := range m.sessions {
			if cur.IsActive {
				return Session{}, ErrSessionConflict
			}
		}
	}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *Memory) GetSession(_ context.Context, id string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, NotFoundError{Resource: "session"}
	}
	return s, nil
}

func (m *Memory) ActiveSession(_ context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.IsActive {
			return &s, nil
		}
	}
	return nil, nil
}

func (m *Memory) CloseSession(_ context.Context, id, closerID string, at time.Time) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return Session{}, NotFoundError{Resource: "session"}
	}
	if !s.IsActive {
		return Session{}, ErrInvalidState
	}
	s.IsActive = false
	s.EndTime = &at
	s.ClosedBy = &closerID
	m.sessions[id] = s
	return s, nil
}

func (m *Memory) ListSessions(_ context.Context, f SessionFilter) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Session
	for _, s := range m.sessions {
		if f.Match(s) {
			res = append(res, s)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if !res[i].Date.Equal(res[j].Date) {
			return res[i].Date.After(res[j].Date)
		}
		return res[i].StartTime.After(res[j].StartTime)
	})
	return res, nil
}

func (m *Memory) InsertCode(_ context.Context, c OneTimeCode, now time.Time) (OneTimeCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.codes {
		if cur.MemberID == c.MemberID && cur.SessionID == c.SessionID && cur.Outstanding(now) {
			return OneTimeCode{}, ErrDuplicateRequest
		}
	}
	m.codes[c.ID] = c
	return c, nil
}

func (m *Memory) LatestUnusedCode(_ context.Context, memberID, sessionID string) (OneTimeCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest OneTimeCode
		found  bool
	)
	for _, c := range m.codes {
		if c.MemberID != memberID || c.SessionID != sessionID || c.IsUsed {
			continue
		}
		if !found || c.CreatedAt.After(latest.CreatedAt) {
			latest, found = c, true
		}
	}
	if !found {
		return OneTimeCode{}, ErrNotRequested
	}
	return latest, nil
}

func (m *Memory) RecordMismatch(_ context.Context, id string) (OneTimeCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[id]
	if !ok || c.IsUsed {
		return OneTimeCode{}, ErrNotRequested
	}
	if c.Attempts >= c.MaxAttempts {
		return OneTimeCode{}, ErrAttemptsExceeded
	}
	c.Attempts++
	m.codes[id] = c
	return c, nil
}

func (m *Memory) ConsumeCode(_ context.Context, id string, at time.Time) (OneTimeCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[id]
	switch {
	case !ok || c.IsUsed:
		return OneTimeCode{}, ErrNotRequested
	case c.Attempts >= c.MaxAttempts:
		return OneTimeCode{}, ErrAttemptsExceeded
	case c.Expired(at):
		return OneTimeCode{}, ErrExpired
	}
	c.IsUsed, c.IsVerified, c.VerifiedAt = true, true, &at
	m.codes[id] = c
	return c, nil
}

func (m *Memory) InsertRecord(_ context.Context, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.members[r.MemberID]; !ok {
		return Record{}, NotFoundError{Resource: "member"}
	}
	if _, ok := m.sessions[r.SessionID]; !ok {
		return Record{}, NotFoundError{Resource: "session"}
	}
	key := pairKey(r.MemberID, r.SessionID)
	if _, ok := m.records[key]; ok {
		return Record{}, ErrDuplicateAttendance
	}
	m.records[key] = r
	return r, nil
}

func (m *Memory) HasRecord(_ context.Context, memberID, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[pairKey(memberID, sessionID)]
	return ok, nil
}

func (m *Memory) ListRecords(_ context.Context, sessionID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := []Record{}
	for _, r := range m.records {
		if r.SessionID != sessionID {
			continue
		}
		if mem, ok := m.members[r.MemberID]; ok {
			r.MemberName, r.RegistrationCode = mem.Name, mem.RegistrationCode
		}
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].MarkedAt.Before(res[j].MarkedAt) })
	return res, nil
}

func (m *Memory) CountPresent(_ context.Context, memberID string, sessionIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sid := range sessionIDs {
		if r, ok := m.records[pairKey(memberID, sid)]; ok && r.Status == StatusPresent {
			n++
		}
	}
	return n, nil
}

func (m *Memory) TotalPresent(_ context.Context, memberID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.records {
		if r.MemberID == memberID && r.Status == StatusPresent {
			n++
		}
	}
	return n, nil
}

func (m *Memory) FindActiveByRegistrationCode(_ context.Context, code string) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members {
		if mem.RegistrationCode == code && mem.IsActive {
			return &mem, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetMember(_ context.Context, id string) (Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[id]
	if !ok {
		return Member{}, NotFoundError{Resource: "member"}
	}
	return mem, nil
}

func (m *Memory) SaveStreak(_ context.Context, mem Member, prev *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.members[mem.ID]
	if !ok {
		return NotFoundError{Resource: "member"}
	}
	if !sameInstant(cur.LastAttendanceDate, prev) {
		return ErrStaleMember
	}
	cur.CurrentStreak = mem.CurrentStreak
	cur.LongestStreak = mem.LongestStreak
	cur.LastAttendanceDate = mem.LastAttendanceDate
	m.members[mem.ID] = cur
	return nil
}

func (m *Memory) ListActiveMembers(_ context.Context, year string) ([]Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []Member
	for _, mem := range m.members {
		if mem.IsActive && (year == "" || mem.Year == year) {
			res = append(res, mem)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].RegistrationCode < res[j].RegistrationCode })
	return res, nil
}

func (m *Memory) CreateMember(_ context.Context, mem Member) (Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.members {
		if cur.RegistrationCode == mem.RegistrationCode {
			return Member{}, ErrDuplicateMember
		}
	}
	if mem.ID == "" {
		mem.ID = uuid.NewString()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	m.members[mem.ID] = mem
	return mem, nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
