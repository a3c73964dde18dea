package attendance

import "time"

// UpdateStreak applies a Present attendance at ts to a member snapshot and
// returns the new snapshot. Calendar days are taken in loc.
//
// A timestamp on an earlier day than the last attendance is treated as the
// same day.
func UpdateStreak(m Member, ts time.Time, loc *time.Location) Member {
	if loc == nil {
		loc = time.UTC
	}
	if m.LastAttendanceDate == nil {
		m.CurrentStreak = 1
	} else {
		switch diff := daysBetween(*m.LastAttendanceDate, ts, loc); {
		case diff == 1:
			m.CurrentStreak++
		case diff > 1:
			m.CurrentStreak = 1
		}
	}
	if m.CurrentStreak > m.LongestStreak {
		m.LongestStreak = m.CurrentStreak
	}
	last := ts
	m.LastAttendanceDate = &last
	return m
}

func daysBetween(from, to time.Time, loc *time.Location) int {
	a := midnight(from, loc)
	b := midnight(to, loc)
	// Calendar arithmetic through UTC dates so DST shifts never yield
	// fractional days.
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
