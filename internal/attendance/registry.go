package attendance

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Registry owns the single-active-session invariant.
// Session dates are calendar days in loc, stored as UTC midnight.
type Registry struct {
	store SessionStore
	now   Clock
	loc   *time.Location
}

// NewRegistry creates a registry. A nil clock uses the system clock and a
// nil location means UTC.
func NewRegistry(store SessionStore, now Clock, loc *time.Location) *Registry {
	if now == nil {
		now = systemClock
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Registry{store: store, now: now, loc: loc}
}

// Day returns the calendar day of t in the registry's location.
func (r *Registry) Day(t time.Time) time.Time {
	t = t.In(r.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// OpenSession starts a new active session. It fails with ErrSessionConflict
// while another session is active.
func (r *Registry) OpenSession(ctx context.Context, label string, date time.Time, openerID string) (Session, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.TrimSpace(openerID) == "" {
		return Session{}, ErrInvalidInput
	}
	now := r.now()
	if date.IsZero() {
		date = now
	}
	s, err := r.store.InsertSession(ctx, Session{
		ID:        uuid.NewString(),
		Label:     label,
		Date:      r.Day(date),
		StartTime: now,
		IsActive:  true,
		OpenedBy:  openerID,
	})
	if err != nil {
		return Session{}, err
	}
	zerolog.Ctx(ctx).Info().Str("session_id", s.ID).Str("label", s.Label).Str("opened_by", openerID).Msg("session opened")
	return s, nil
}

// CloseSession ends an active session. Closing twice fails with
// ErrInvalidState and leaves the first close untouched.
func (r *Registry) CloseSession(ctx context.Context, id, closerID string) (Session, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(closerID) == "" {
		return Session{}, ErrInvalidInput
	}
	s, err := r.store.CloseSession(ctx, id, closerID, r.now())
	if err != nil {
		return Session{}, err
	}
	zerolog.Ctx(ctx).Info().Str("session_id", s.ID).Str("closed_by", closerID).Msg("session closed")
	return s, nil
}

// ActiveSession returns the open session or nil when none is open.
func (r *Registry) ActiveSession(ctx context.Context) (*Session, error) {
	return r.store.ActiveSession(ctx)
}

// Get returns a session by id.
func (r *Registry) Get(ctx context.Context, id string) (Session, error) {
	return r.store.GetSession(ctx, id)
}

// ListSessions returns sessions newest first. Bounds are compared as
// calendar days.
func (r *Registry) ListSessions(ctx context.Context, f SessionFilter) ([]Session, error) {
	if f.From != nil {
		from := r.Day(*f.From)
		f.From = &from
	}
	if f.To != nil {
		to := r.Day(*f.To)
		f.To = &to
	}
	return r.store.ListSessions(ctx, f)
}

func (r *Registry) requireActive(ctx context.Context) (Session, error) {
	s, err := r.store.ActiveSession(ctx)
	if err != nil {
		return Session{}, err
	}
	if s == nil {
		return Session{}, ErrNoActiveSession
	}
	return *s, nil
}
