package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpdateStreak(t *testing.T) {
	day := func(d, h int) time.Time { return time.Date(2026, 3, d, h, 0, 0, 0, time.UTC) }
	ptr := func(t time.Time) *time.Time { return &t }

	tests := []struct {
		name        string
		member      Member
		at          time.Time
		wantCurrent int
		wantLongest int
	}{
		{
			name:        "first attendance",
			member:      Member{},
			at:          day(2, 9),
			wantCurrent: 1,
			wantLongest: 1,
		},
		{
			name:        "next day extends",
			member:      Member{CurrentStreak: 2, LongestStreak: 2, LastAttendanceDate: ptr(day(2, 9))},
			at:          day(3, 8),
			wantCurrent: 3,
			wantLongest: 3,
		},
		{
			name:        "same day unchanged",
			member:      Member{CurrentStreak: 2, LongestStreak: 4, LastAttendanceDate: ptr(day(3, 8))},
			at:          day(3, 18),
			wantCurrent: 2,
			wantLongest: 4,
		},
		{
			name:        "gap resets",
			member:      Member{CurrentStreak: 5, LongestStreak: 5, LastAttendanceDate: ptr(day(2, 9))},
			at:          day(4, 9),
			wantCurrent: 1,
			wantLongest: 5,
		},
		{
			name:        "earlier day treated as same day",
			member:      Member{CurrentStreak: 3, LongestStreak: 3, LastAttendanceDate: ptr(day(5, 9))},
			at:          day(4, 9),
			wantCurrent: 3,
			wantLongest: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UpdateStreak(tt.member, tt.at, time.UTC)
			require.Equal(t, tt.wantCurrent, got.CurrentStreak)
			require.Equal(t, tt.wantLongest, got.LongestStreak)
			require.NotNil(t, got.LastAttendanceDate)
			require.True(t, got.LastAttendanceDate.Equal(tt.at))
		})
	}
}

func TestUpdateStreakUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	// 23:30 UTC on the 2nd is already the 3rd in UTC+7.
	last := time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)
	m := Member{CurrentStreak: 1, LongestStreak: 1, LastAttendanceDate: &last}

	got := UpdateStreak(m, time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC), loc)
	require.Equal(t, 2, got.CurrentStreak)

	got = UpdateStreak(m, time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC), time.UTC)
	require.Equal(t, 1, got.CurrentStreak)
}

func TestLongestStreakNeverDecreases(t *testing.T) {
	m := Member{}
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	offsets := []int{0, 1, 2, 5, 6, 6, 20, 21, 22, 23}
	prev := 0
	for _, off := range offsets {
		m = UpdateStreak(m, start.AddDate(0, 0, off), time.UTC)
		require.GreaterOrEqual(t, m.LongestStreak, prev)
		require.GreaterOrEqual(t, m.LongestStreak, m.CurrentStreak)
		prev = m.LongestStreak
	}
	require.Equal(t, 4, m.CurrentStreak)
	require.Equal(t, 4, m.LongestStreak)
}
