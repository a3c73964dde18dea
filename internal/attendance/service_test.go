package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixedGenerator string

func (g fixedGenerator) Generate(int) (string, error) { return string(g), nil }

type outbox struct {
	mu   sync.Mutex
	sent []Delivery
	err  error
}

func (o *outbox) Deliver(_ context.Context, d Delivery) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, d)
	return nil
}

func (o *outbox) last() Delivery {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sent[len(o.sent)-1]
}

type fixture struct {
	svc   *Service
	store *Memory
	clock *fakeClock
	out   *outbox
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{store: NewMemory(), clock: newFakeClock(), out: &outbox{}}
	opts = append([]Option{WithClock(f.clock.Now), WithGenerator(fixedGenerator("123456"))}, opts...)
	svc, err := NewService(f.store, f.out, opts...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) member(t *testing.T, code, name string) Member {
	t.Helper()
	m, err := f.svc.RegisterMember(context.Background(), Member{
		RegistrationCode: code,
		Name:             name,
		Email:            name + "@example.com",
		Year:             "2026",
	})
	require.NoError(t, err)
	return m
}

func (f *fixture) open(t *testing.T, label string) Session {
	t.Helper()
	s, err := f.svc.OpenSession(context.Background(), label, f.clock.Now(), "staff-1")
	require.NoError(t, err)
	return s
}

func TestNewServiceRejectsMissingCollaborators(t *testing.T) {
	_, err := NewService(nil, &outbox{})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewService(NewMemory(), nil)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = NewService(NewMemory(), &outbox{}, WithLocation(nil))
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestCheckInScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	f.open(t, "Morning")

	req, err := f.svc.RequestCode(ctx, "cs101")
	require.NoError(t, err)
	require.Equal(t, 3, req.ExpiresInMinutes)
	require.Equal(t, "123456", f.out.last().Code)
	require.Equal(t, "ada@example.com", f.out.last().Address)

	_, err = f.svc.VerifyCode(ctx, "CS101", "000000", "")
	require.ErrorIs(t, err, ErrMismatch)
	left, ok := RemainingAttempts(err)
	require.True(t, ok)
	require.Equal(t, 2, left)

	_, err = f.svc.VerifyCode(ctx, "CS101", "000001", "")
	left, _ = RemainingAttempts(err)
	require.Equal(t, 1, left)

	conf, err := f.svc.VerifyCode(ctx, "CS101", "123456", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "ada", conf.MemberName)
	require.Equal(t, "CS101", conf.RegistrationCode)
	require.Equal(t, 1, conf.CurrentStreak)
	require.Equal(t, f.clock.Now(), conf.MarkedAt)

	_, err = f.svc.VerifyCode(ctx, "CS101", "123456", "")
	require.ErrorIs(t, err, ErrNotRequested)

	_, err = f.svc.RequestCode(ctx, "CS101")
	require.ErrorIs(t, err, ErrDuplicateAttendance)
}

func TestRequestCodeFailures(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")

	_, err := f.svc.RequestCode(ctx, "")
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.RequestCode(ctx, "NOPE")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.RequestCode(ctx, "CS101")
	require.ErrorIs(t, err, ErrNoActiveSession)

	_, err = f.svc.MarkDirect(ctx, "CS101", StatusPresent, "staff-1", "")
	require.ErrorIs(t, err, ErrNoActiveSession)

	f.open(t, "Morning")
	_, err = f.svc.RequestCode(ctx, "CS101")
	require.NoError(t, err)
	_, err = f.svc.RequestCode(ctx, "CS101")
	require.ErrorIs(t, err, ErrDuplicateRequest)
}

func TestVerifyCodeExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	f.open(t, "Morning")

	_, err := f.svc.VerifyCode(ctx, "CS101", "123456", "")
	require.ErrorIs(t, err, ErrNotRequested)

	_, err = f.svc.RequestCode(ctx, "CS101")
	require.NoError(t, err)

	f.clock.Advance(3*time.Minute + time.Second)
	_, err = f.svc.VerifyCode(ctx, "CS101", "123456", "")
	require.ErrorIs(t, err, ErrExpired)

	// An expired code no longer blocks a new one.
	_, err = f.svc.RequestCode(ctx, "CS101")
	require.NoError(t, err)
	_, err = f.svc.VerifyCode(ctx, "CS101", "123456", "")
	require.NoError(t, err)
}

func TestVerifyCodeAtExactExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	f.open(t, "Morning")

	_, err := f.svc.RequestCode(ctx, "CS101")
	require.NoError(t, err)
	f.clock.Advance(3 * time.Minute)
	_, err = f.svc.VerifyCode(ctx, "CS101", "123456", "")
	require.NoError(t, err)
}

func TestVerifyCodeAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	f.open(t, "Morning")

	_, err := f.svc.RequestCode(ctx, "CS101")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.svc.VerifyCode(ctx, "CS101", "999999", "")
		require.ErrorIs(t, err, ErrMismatch)
	}
	left, _ := RemainingAttempts(err)
	require.Zero(t, left)

	_, err = f.svc.VerifyCode(ctx, "CS101", "123456", "")
	require.ErrorIs(t, err, ErrAttemptsExceeded)

	// Exhausted but unexpired codes still block reissue.
	_, err = f.svc.RequestCode(ctx, "CS101")
	require.ErrorIs(t, err, ErrDuplicateRequest)

	f.clock.Advance(4 * time.Minute)
	_, err = f.svc.RequestCode(ctx, "CS101")
	require.NoError(t, err)
}

func TestDeliveryFailureKeepsCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	f.open(t, "Morning")

	f.out.err = errors.New("smtp down")
	_, err := f.svc.RequestCode(ctx, "CS101")
	require.ErrorIs(t, err, ErrDeliveryFailed)
	var de DeliveryError
	require.ErrorAs(t, err, &de)

	f.out.err = nil
	_, err = f.svc.RequestCode(ctx, "CS101")
	require.ErrorIs(t, err, ErrDuplicateRequest)

	_, err = f.svc.VerifyCode(ctx, "CS101", "123456", "")
	require.NoError(t, err)
}

func TestMarkDirect(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ada := f.member(t, "CS101", "ada")
	bob := f.member(t, "CS102", "bob")
	s := f.open(t, "Morning")

	_, err := f.svc.MarkDirect(ctx, "CS101", StatusPresent, "", "")
	require.ErrorIs(t, err, ErrInvalidInput)

	res, err := f.svc.MarkDirect(ctx, "cs101", StatusPresent, "staff-1", "10.0.0.2")
	require.NoError(t, err)
	require.Equal(t, StatusPresent, res.Status)
	require.Equal(t, "ada", res.MemberName)

	_, err = f.svc.MarkDirect(ctx, "CS101", StatusAbsent, "staff-1", "")
	require.ErrorIs(t, err, ErrDuplicateAttendance)

	f.clock.Advance(time.Second)
	res, err = f.svc.MarkDirect(ctx, "CS102", StatusAbsent, "staff-1", "")
	require.NoError(t, err)
	require.Equal(t, StatusAbsent, res.Status)

	got, err := f.store.GetMember(ctx, ada.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.CurrentStreak)

	got, err = f.store.GetMember(ctx, bob.ID)
	require.NoError(t, err)
	require.Zero(t, got.CurrentStreak)
	require.Nil(t, got.LastAttendanceDate)

	roster, err := f.svc.SessionRecords(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, OriginStaff, roster[0].Origin)
	require.Equal(t, "staff-1", *roster[0].MarkedBy)
	require.Equal(t, "CS101", roster[0].RegistrationCode)

	// A staff mark makes a pending code unusable for a second record.
	_, err = f.svc.RequestCode(ctx, "CS101")
	require.ErrorIs(t, err, ErrDuplicateAttendance)
}

func TestVerifyAfterConcurrentStaffMark(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	s := f.open(t, "Morning")

	_, err := f.svc.RequestCode(ctx, "CS101")
	require.NoError(t, err)
	_, err = f.svc.MarkDirect(ctx, "CS101", StatusPresent, "staff-1", "")
	require.NoError(t, err)

	_, err = f.svc.VerifyCode(ctx, "CS101", "123456", "")
	require.ErrorIs(t, err, ErrDuplicateAttendance)

	roster, err := f.svc.SessionRecords(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
}

func TestStreakAcrossSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")

	checkIn := func(wantStreak int) {
		s := f.open(t, "Daily")
		_, err := f.svc.RequestCode(ctx, "CS101")
		require.NoError(t, err)
		conf, err := f.svc.VerifyCode(ctx, "CS101", "123456", "")
		require.NoError(t, err)
		require.Equal(t, wantStreak, conf.CurrentStreak)
		_, err = f.svc.CloseSession(ctx, s.ID, "staff-1")
		require.NoError(t, err)
	}

	checkIn(1)
	f.clock.Advance(time.Hour)
	checkIn(1)
	f.clock.Advance(24 * time.Hour)
	checkIn(2)
	f.clock.Advance(48 * time.Hour)
	checkIn(1)
}

func TestConcurrentVerifySingleWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	s := f.open(t, "Morning")
	_, err := f.svc.RequestCode(ctx, "CS101")
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.VerifyCode(ctx, "CS101", "123456", "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.True(t, errors.Is(err, ErrNotRequested) || errors.Is(err, ErrDuplicateAttendance), "unexpected error: %v", err)
	}
	require.Equal(t, 1, wins)

	roster, err := f.svc.SessionRecords(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
}

func TestConcurrentRequestSingleCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	f.open(t, "Morning")

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RequestCode(ctx, "CS101")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		require.ErrorIs(t, err, ErrDuplicateRequest)
	}
	require.Equal(t, 1, ok)
	require.Len(t, f.out.sent, 1)
}

func TestConcurrentMarkAndVerifySingleRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	s := f.open(t, "Morning")
	_, err := f.svc.RequestCode(ctx, "CS101")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.svc.VerifyCode(ctx, "CS101", "123456", "")
		}()
		go func() {
			defer wg.Done()
			_, _ = f.svc.MarkDirect(ctx, "CS101", StatusPresent, "staff-1", "")
		}()
	}
	wg.Wait()

	roster, err := f.svc.SessionRecords(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, roster, 1)
}

func TestReport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS102", "bob")
	f.member(t, "CS101", "ada")
	other, err := f.svc.RegisterMember(ctx, Member{RegistrationCode: "CS900", Name: "cy", Email: "cy@example.com", Year: "2025"})
	require.NoError(t, err)

	for i, present := range []bool{true, true, false} {
		s := f.open(t, "Session")
		if present {
			_, err := f.svc.MarkDirect(ctx, "CS101", StatusPresent, "staff-1", "")
			require.NoError(t, err)
		}
		if i == 0 {
			_, err := f.svc.MarkDirect(ctx, "CS102", StatusAbsent, "staff-1", "")
			require.NoError(t, err)
		}
		_, err := f.svc.CloseSession(ctx, s.ID, "staff-1")
		require.NoError(t, err)
		f.clock.Advance(24 * time.Hour)
	}

	rep, err := f.svc.Report(ctx, ReportFilter{Year: "2026"})
	require.NoError(t, err)
	require.Equal(t, 3, rep.TotalSessions)
	require.Equal(t, 2, rep.TotalMembers)
	require.Equal(t, "CS101", rep.Rows[0].Member.RegistrationCode)
	require.Equal(t, 2, rep.Rows[0].AttendedSessions)
	require.Equal(t, 66.67, rep.Rows[0].Percentage)
	require.Equal(t, 2, rep.Rows[0].LongestStreak)
	require.Equal(t, 0, rep.Rows[1].AttendedSessions)
	require.Equal(t, 0.0, rep.Rows[1].Percentage)

	first := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	rep, err = f.svc.Report(ctx, ReportFilter{From: &first})
	require.NoError(t, err)
	require.Equal(t, 2, rep.TotalSessions)
	require.Equal(t, 3, rep.TotalMembers)

	stats, err := f.svc.MemberStats(ctx, other.ID)
	require.NoError(t, err)
	require.Zero(t, stats.TotalAttendance)
}

func TestReportWithoutSessions(t *testing.T) {
	f := newFixture(t)
	f.member(t, "CS101", "ada")
	rep, err := f.svc.Report(context.Background(), ReportFilter{})
	require.NoError(t, err)
	require.Zero(t, rep.TotalSessions)
	require.Zero(t, rep.Rows[0].Percentage)
}

func TestLookupAndRegisterMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.member(t, "CS101", "ada")

	got, err := f.svc.LookupMember(ctx, " cs101 ")
	require.NoError(t, err)
	require.Equal(t, "ada", got.Name)
	require.Equal(t, "a***@example.com", got.Email)

	_, err = f.svc.LookupMember(ctx, "CS999")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.RegisterMember(ctx, Member{RegistrationCode: "cs101", Name: "dup", Email: "d@example.com"})
	require.ErrorIs(t, err, ErrDuplicateMember)

	_, err = f.svc.RegisterMember(ctx, Member{RegistrationCode: "CS200"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestInactiveMemberCannotCheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.member(t, "CS101", "ada")
	f.open(t, "Morning")

	f.store.mu.Lock()
	m.IsActive = false
	f.store.members[m.ID] = m
	f.store.mu.Unlock()

	_, err := f.svc.RequestCode(ctx, "CS101")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMaskEmail(t *testing.T) {
	require.Equal(t, "j***@x.io", MaskEmail("jane@x.io"))
	require.Equal(t, "", MaskEmail("broken"))
	require.Equal(t, "", MaskEmail("@x.io"))
}

func TestReportUsesLocalCalendarDay(t *testing.T) {
	ctx := context.Background()
	ist := time.FixedZone("IST", 5*3600+1800)
	f := newFixture(t, WithLocation(ist))
	f.clock.now = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	f.member(t, "CS101", "ada")
	f.open(t, "Late")
	_, err := f.svc.MarkDirect(ctx, "CS101", StatusPresent, "staff-1", "")
	require.NoError(t, err)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, ist)
	rep, err := f.svc.Report(ctx, ReportFilter{From: &day, To: &day})
	require.NoError(t, err)
	require.Equal(t, 1, rep.TotalSessions)
	require.Equal(t, 1, rep.Rows[0].AttendedSessions)

	prev := time.Date(2026, 3, 1, 0, 0, 0, 0, ist)
	rep, err = f.svc.Report(ctx, ReportFilter{From: &prev, To: &prev})
	require.NoError(t, err)
	require.Zero(t, rep.TotalSessions)
}

// racingStore lets another writer update the member right after each read.
type racingStore struct {
	*Memory
	race func()
}

func (r *racingStore) GetMember(ctx context.Context, id string) (Member, error) {
	m, err := r.Memory.GetMember(ctx, id)
	if err == nil && r.race != nil {
		r.race()
	}
	return m, err
}

func TestStreakUpdateRetriesAfterConcurrentWrite(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Memory: NewMemory()}
	svc, err := NewService(store, &outbox{})
	require.NoError(t, err)
	m, err := svc.RegisterMember(ctx, Member{RegistrationCode: "CS101", Name: "ada", Email: "ada@example.com"})
	require.NoError(t, err)

	day1 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveStreak(ctx, Member{ID: m.ID, CurrentStreak: 1, LongestStreak: 1, LastAttendanceDate: &day1}, nil))
	require.ErrorIs(t, store.SaveStreak(ctx, Member{ID: m.ID}, nil), ErrStaleMember)

	var once sync.Once
	store.race = func() {
		once.Do(func() {
			require.NoError(t, store.SaveStreak(ctx, Member{ID: m.ID, CurrentStreak: 2, LongestStreak: 2, LastAttendanceDate: &day2}, &day1))
		})
	}
	got, err := svc.advanceStreak(ctx, m.ID, day3)
	require.NoError(t, err)
	require.Equal(t, 3, got.CurrentStreak)
	require.Equal(t, 3, got.LongestStreak)

	stored, err := store.GetMember(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stored.CurrentStreak)
}

func TestStreakUpdateGivesUpUnderContention(t *testing.T) {
	ctx := context.Background()
	store := &racingStore{Memory: NewMemory()}
	svc, err := NewService(store, &outbox{})
	require.NoError(t, err)
	m, err := svc.RegisterMember(ctx, Member{RegistrationCode: "CS101", Name: "ada", Email: "ada@example.com"})
	require.NoError(t, err)

	last := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store.race = func() {
		cur, err := store.Memory.GetMember(ctx, m.ID)
		require.NoError(t, err)
		last = last.Add(time.Minute)
		next := last
		require.NoError(t, store.SaveStreak(ctx, Member{ID: m.ID, CurrentStreak: 1, LongestStreak: 1, LastAttendanceDate: &next}, cur.LastAttendanceDate))
	}
	_, err = svc.advanceStreak(ctx, m.ID, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, ErrStaleMember)
	require.ErrorIs(t, err, ErrStorage)
}
