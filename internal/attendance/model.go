package attendance

import (
	"strings"
	"time"
)

// Status is the outcome stored on an attendance record.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// ParseStatus normalizes a caller supplied status. Anything other than
// "Absent" is treated as Present.
func ParseStatus(s string) Status {
	if strings.EqualFold(strings.TrimSpace(s), string(StatusAbsent)) {
		return StatusAbsent
	}
	return StatusPresent
}

// Origin records how an attendance record came to exist.
type Origin string

const (
	OriginSelf  Origin = "self"
	OriginStaff Origin = "staff"
)

// Member is the directory's view of an enrolled member. The engine only
// reads it and writes the streak fields.
type Member struct {
	ID                 string     `json:"id"`
	RegistrationCode   string     `json:"registration_code"`
	Name               string     `json:"name"`
	Email              string     `json:"email"`
	Gender             string     `json:"gender"`
	Year               string     `json:"year"`
	IsActive           bool       `json:"is_active"`
	CurrentStreak      int        `json:"current_streak"`
	LongestStreak      int        `json:"longest_streak"`
	LastAttendanceDate *time.Time `json:"last_attendance_date,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// NormalizeRegistrationCode returns the canonical (trimmed, upper case) form.
func NormalizeRegistrationCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Session is a bounded attendance window. At most one is active at a time.
type Session struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	Date      time.Time  `json:"date"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	IsActive  bool       `json:"is_active"`
	OpenedBy  string     `json:"opened_by"`
	ClosedBy  *string    `json:"closed_by,omitempty"`
}

// OneTimeCode is a single-use credential bound to one member and one session.
type OneTimeCode struct {
	ID          string
	MemberID    string
	SessionID   string
	Code        string
	ExpiresAt   time.Time
	IsUsed      bool
	IsVerified  bool
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	VerifiedAt  *time.Time
}

// Expired reports whether the code can no longer be verified at now.
func (c OneTimeCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Outstanding reports whether the code is unused and unexpired.
func (c OneTimeCode) Outstanding(now time.Time) bool {
	return !c.IsUsed && !c.Expired(now)
}

// Remaining returns how many verification attempts are left.
func (c OneTimeCode) Remaining() int {
	if n := c.MaxAttempts - c.Attempts; n > 0 {
		return n
	}
	return 0
}

// Record is one attendance entry. Unique per (member, session).
type Record struct {
	ID        string    `json:"id"`
	MemberID  string    `json:"member_id"`
	SessionID string    `json:"session_id"`
	Status    Status    `json:"status"`
	Origin    Origin    `json:"origin"`
	MarkedBy  *string   `json:"marked_by,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	MarkedAt  time.Time `json:"marked_at"`

	// Filled on roster reads.
	MemberName       string `json:"member_name,omitempty"`
	RegistrationCode string `json:"registration_code,omitempty"`
}

// SessionFilter narrows ListSessions. Nil fields are ignored.
type SessionFilter struct {
	Active *bool
	From   *time.Time
	To     *time.Time
}

// Match reports whether s passes the filter.
func (f SessionFilter) Match(s Session) bool {
	if f.Active != nil && s.IsActive != *f.Active {
		return false
	}
	if f.From != nil && s.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && s.Date.After(*f.To) {
		return false
	}
	return true
}
