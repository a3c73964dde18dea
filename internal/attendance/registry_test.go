package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := NewRegistry(NewMemory(), clock.Now, nil)

	active, err := r.ActiveSession(ctx)
	require.NoError(t, err)
	require.Nil(t, active)

	_, err = r.OpenSession(ctx, "  ", time.Time{}, "staff-1")
	require.ErrorIs(t, err, ErrInvalidInput)

	s, err := r.OpenSession(ctx, "Morning", time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC), "staff-1")
	require.NoError(t, err)
	require.True(t, s.IsActive)
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), s.Date)
	require.Equal(t, clock.Now(), s.StartTime)

	_, err = r.OpenSession(ctx, "Evening", time.Time{}, "staff-2")
	require.ErrorIs(t, err, ErrSessionConflict)

	active, err = r.ActiveSession(ctx)
	require.NoError(t, err)
	require.Equal(t, s.ID, active.ID)

	clock.Advance(time.Hour)
	closed, err := r.CloseSession(ctx, s.ID, "staff-2")
	require.NoError(t, err)
	require.False(t, closed.IsActive)
	require.Equal(t, "staff-2", *closed.ClosedBy)
	require.Equal(t, clock.Now(), *closed.EndTime)

	clock.Advance(time.Hour)
	_, err = r.CloseSession(ctx, s.ID, "staff-3")
	require.ErrorIs(t, err, ErrInvalidState)

	got, err := r.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "staff-2", *got.ClosedBy)
	require.Equal(t, closed.EndTime, got.EndTime)

	_, err = r.CloseSession(ctx, "missing", "staff-1")
	require.ErrorIs(t, err, ErrNotFound)

	next, err := r.OpenSession(ctx, "Evening", time.Time{}, "staff-2")
	require.NoError(t, err)
	require.NotEqual(t, s.ID, next.ID)
}

func TestRegistryListSessions(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	r := NewRegistry(NewMemory(), clock.Now, nil)

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := r.OpenSession(ctx, "Daily", time.Time{}, "staff-1")
		require.NoError(t, err)
		ids = append(ids, s.ID)
		if i < 2 {
			_, err = r.CloseSession(ctx, s.ID, "staff-1")
			require.NoError(t, err)
		}
		clock.Advance(24 * time.Hour)
	}

	all, err := r.ListSessions(ctx, SessionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, ids[2], all[0].ID)

	active := true
	open, err := r.ListSessions(ctx, SessionFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, open, 1)

	to := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	early, err := r.ListSessions(ctx, SessionFilter{To: &to})
	require.NoError(t, err)
	require.Len(t, early, 2)
}

func TestRegistryConcurrentOpen(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(NewMemory(), nil, nil)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.OpenSession(ctx, "Rush", time.Time{}, "staff-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	opened := 0
	for err := range errs {
		if err == nil {
			opened++
			continue
		}
		require.True(t, errors.Is(err, ErrSessionConflict), "unexpected error: %v", err)
	}
	require.Equal(t, 1, opened)
}

func TestRegistrySessionDateUsesLocation(t *testing.T) {
	ctx := context.Background()
	ist := time.FixedZone("IST", 5*3600+1800)
	clock := newFakeClock()
	// 01:30 on March 2nd in IST, still March 1st in UTC.
	clock.now = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	r := NewRegistry(NewMemory(), clock.Now, ist)

	s, err := r.OpenSession(ctx, "Night", time.Time{}, "staff-1")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), s.Date)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, ist)
	found, err := r.ListSessions(ctx, SessionFilter{From: &day, To: &day})
	require.NoError(t, err)
	require.Len(t, found, 1)

	closed, err := r.CloseSession(ctx, s.ID, "staff-1")
	require.NoError(t, err)
	require.Equal(t, s.Date, closed.Date)
	next, err := r.OpenSession(ctx, "Backfill", time.Date(2026, 2, 27, 0, 0, 0, 0, ist), "staff-1")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), next.Date)
}
