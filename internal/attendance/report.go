package attendance

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"
)

// ReportFilter narrows the attendance report.
type ReportFilter struct {
	From *time.Time
	To   *time.Time
	Year string
}

// MemberSummary is the member slice shown in reports and lookups.
type MemberSummary struct {
	ID               string `json:"id"`
	RegistrationCode string `json:"registration_code"`
	Name             string `json:"name"`
	Year             string `json:"year,omitempty"`
	Email            string `json:"email,omitempty"`
}

// ReportRow is one member's aggregate.
type ReportRow struct {
	Member           MemberSummary `json:"member"`
	TotalSessions    int           `json:"total_sessions"`
	AttendedSessions int           `json:"attended_sessions"`
	Percentage       float64       `json:"percentage"`
	CurrentStreak    int           `json:"current_streak"`
	LongestStreak    int           `json:"longest_streak"`
}

// Report aggregates attendance across sessions.
type Report struct {
	TotalSessions int         `json:"total_sessions"`
	TotalMembers  int         `json:"total_members"`
	Rows          []ReportRow `json:"rows"`
}

// MemberStats is a single member's lifetime summary.
type MemberStats struct {
	Member             MemberSummary `json:"member"`
	TotalAttendance    int           `json:"total_attendance"`
	CurrentStreak      int           `json:"current_streak"`
	LongestStreak      int           `json:"longest_streak"`
	LastAttendanceDate *time.Time    `json:"last_attendance_date,omitempty"`
}

// Report builds per-member attendance aggregates over the sessions in range.
func (s *Service) Report(ctx context.Context, f ReportFilter) (Report, error) {
	sessions, err := s.sessions.ListSessions(ctx, SessionFilter{From: f.From, To: f.To})
	if err != nil {
		return Report{}, err
	}
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}
	members, err := s.directory.ListActiveMembers(ctx, strings.TrimSpace(f.Year))
	if err != nil {
		return Report{}, err
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].RegistrationCode < members[j].RegistrationCode
	})

	rows := make([]ReportRow, 0, len(members))
	for _, m := range members {
		attended, err := s.ledger.CountPresent(ctx, m.ID, ids)
		if err != nil {
			return Report{}, err
		}
		rows = append(rows, ReportRow{
			Member:           summaryOf(m),
			TotalSessions:    len(ids),
			AttendedSessions: attended,
			Percentage:       percentage(attended, len(ids)),
			CurrentStreak:    m.CurrentStreak,
			LongestStreak:    m.LongestStreak,
		})
	}
	return Report{TotalSessions: len(ids), TotalMembers: len(members), Rows: rows}, nil
}

// MemberStats summarizes one member's attendance.
func (s *Service) MemberStats(ctx context.Context, memberID string) (MemberStats, error) {
	m, err := s.directory.GetMember(ctx, memberID)
	if err != nil {
		return MemberStats{}, err
	}
	total, err := s.ledger.store.TotalPresent(ctx, m.ID)
	if err != nil {
		return MemberStats{}, err
	}
	return MemberStats{
		Member:             summaryOf(m),
		TotalAttendance:    total,
		CurrentStreak:      m.CurrentStreak,
		LongestStreak:      m.LongestStreak,
		LastAttendanceDate: m.LastAttendanceDate,
	}, nil
}

// LookupMember returns the limited public view of an active member.
func (s *Service) LookupMember(ctx context.Context, registrationCode string) (MemberSummary, error) {
	code := NormalizeRegistrationCode(registrationCode)
	if code == "" {
		return MemberSummary{}, ErrInvalidInput
	}
	m, err := s.directory.FindActiveByRegistrationCode(ctx, code)
	if err != nil {
		return MemberSummary{}, err
	}
	if m == nil {
		return MemberSummary{}, NotFoundError{Resource: "member"}
	}
	return MemberSummary{
		ID:               m.ID,
		RegistrationCode: m.RegistrationCode,
		Name:             m.Name,
		Email:            MaskEmail(m.Email),
	}, nil
}

// RegisterMember adds a member to the directory.
func (s *Service) RegisterMember(ctx context.Context, m Member) (Member, error) {
	m.RegistrationCode = NormalizeRegistrationCode(m.RegistrationCode)
	m.Name = strings.TrimSpace(m.Name)
	m.Email = strings.ToLower(strings.TrimSpace(m.Email))
	if m.RegistrationCode == "" || m.Name == "" || m.Email == "" {
		return Member{}, ErrInvalidInput
	}
	m.IsActive = true
	m.CurrentStreak, m.LongestStreak, m.LastAttendanceDate = 0, 0, nil
	return s.directory.CreateMember(ctx, m)
}

// MaskEmail hides most of the local part: "jane@x.io" becomes "j***@x.io".
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return ""
	}
	return email[:1] + "***" + email[at:]
}

func summaryOf(m Member) MemberSummary {
	return MemberSummary{
		ID:               m.ID,
		RegistrationCode: m.RegistrationCode,
		Name:             m.Name,
		Year:             m.Year,
		Email:            m.Email,
	}
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
