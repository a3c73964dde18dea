package attendance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Delivery is what the out-of-band channel needs to reach a member.
type Delivery struct {
	Address       string `json:"address"`
	Code          string `json:"code"`
	MemberName    string `json:"member_name"`
	ExpiryMinutes int    `json:"expiry_minutes"`
}

// Deliverer hands a code to the member through an external channel.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, d Delivery) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, d Delivery) error { return f(ctx, d) }

// Observer receives engine events, typically for metrics.
type Observer interface {
	SessionOpened()
	SessionClosed()
	CodeIssued()
	CodeVerification(outcome string)
	AttendanceMarked(origin Origin, status Status)
	DeliveryFailed()
}

type nopObserver struct{}

func (nopObserver) SessionOpened()                  {}
func (nopObserver) SessionClosed()                  {}
func (nopObserver) CodeIssued()                     {}
func (nopObserver) CodeVerification(string)         {}
func (nopObserver) AttendanceMarked(Origin, Status) {}
func (nopObserver) DeliveryFailed()                 {}

// CodeRequest is returned to the member after a code was sent.
type CodeRequest struct {
	ExpiresInMinutes int       `json:"expires_in_minutes"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Confirmation is returned after a successful self check-in.
type Confirmation struct {
	MemberName       string    `json:"member_name"`
	RegistrationCode string    `json:"registration_code"`
	CurrentStreak    int       `json:"current_streak"`
	MarkedAt         time.Time `json:"marked_at"`
}

// MarkResult is returned after a staff mark.
type MarkResult struct {
	MemberName       string    `json:"member_name"`
	RegistrationCode string    `json:"registration_code"`
	Status           Status    `json:"status"`
	MarkedAt         time.Time `json:"marked_at"`
}

// Service combines the registry, code store, ledger and streak tracker into
// the public check-in flows.
type Service struct {
	directory Directory
	sessions  *Registry
	codes     *Codes
	ledger    *Ledger
	deliverer Deliverer
	observer  Observer
	loc       *time.Location
}

type options struct {
	policy   CodePolicy
	loc      *time.Location
	now      Clock
	gen      Generator
	observer Observer
}

// Option configures a Service.
type Option func(*options) error

// WithPolicy sets code length, expiry and attempt limits.
func WithPolicy(p CodePolicy) Option {
	return func(o *options) error {
		if p.Length < 0 || p.Expiry < 0 || p.MaxAttempts < 0 {
			return ErrInvalidInput
		}
		o.policy = p
		return nil
	}
}

// WithLocation sets the timezone used for streak calendar days.
func WithLocation(loc *time.Location) Option {
	return func(o *options) error {
		if loc == nil {
			return ErrInvalidInput
		}
		o.loc = loc
		return nil
	}
}

// WithClock replaces the system clock.
func WithClock(now Clock) Option {
	return func(o *options) error {
		if now == nil {
			return ErrInvalidInput
		}
		o.now = now
		return nil
	}
}

// WithGenerator replaces the random code generator.
func WithGenerator(g Generator) Option {
	return func(o *options) error {
		if g == nil {
			return ErrInvalidInput
		}
		o.gen = g
		return nil
	}
}

// WithObserver attaches an event observer.
func WithObserver(obs Observer) Option {
	return func(o *options) error {
		if obs == nil {
			return ErrInvalidInput
		}
		o.observer = obs
		return nil
	}
}

// NewService builds the engine over store, delivering codes through d.
func NewService(store Store, d Deliverer, opts ...Option) (*Service, error) {
	if store == nil || d == nil {
		return nil, ErrInvalidInput
	}
	o := options{loc: time.UTC, now: systemClock, gen: DigitGenerator{}, observer: nopObserver{}}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	sessions := NewRegistry(store, o.now, o.loc)
	ledger := NewLedger(store, o.now)
	return &Service{
		directory: store,
		sessions:  sessions,
		codes:     NewCodes(store, sessions, ledger, o.gen, o.policy, o.now),
		ledger:    ledger,
		deliverer: d,
		observer:  o.observer,
		loc:       o.loc,
	}, nil
}

// Sessions exposes the session registry.
func (s *Service) Sessions() *Registry { return s.sessions }

// Location is the timezone used for calendar days.
func (s *Service) Location() *time.Location { return s.loc }

// OpenSession opens a session on behalf of staff.
func (s *Service) OpenSession(ctx context.Context, label string, date time.Time, staffID string) (Session, error) {
	sess, err := s.sessions.OpenSession(ctx, label, date, staffID)
	if err != nil {
		return Session{}, err
	}
	s.observer.SessionOpened()
	return sess, nil
}

// CloseSession closes a session on behalf of staff.
func (s *Service) CloseSession(ctx context.Context, id, staffID string) (Session, error) {
	sess, err := s.sessions.CloseSession(ctx, id, staffID)
	if err != nil {
		return Session{}, err
	}
	s.observer.SessionClosed()
	return sess, nil
}

// RequestCode issues a code for the member and hands it to the delivery
// channel. A delivery failure leaves the code persisted.
func (s *Service) RequestCode(ctx context.Context, registrationCode string) (CodeRequest, error) {
	m, sess, err := s.resolve(ctx, registrationCode)
	if err != nil {
		return CodeRequest{}, err
	}
	marked, err := s.ledger.Exists(ctx, m.ID, sess.ID)
	if err != nil {
		return CodeRequest{}, err
	}
	if marked {
		return CodeRequest{}, ErrDuplicateAttendance
	}

	code, err := s.codes.Issue(ctx, m.ID, sess.ID)
	if err != nil {
		return CodeRequest{}, err
	}
	s.observer.CodeIssued()

	minutes := s.codes.Policy().ExpiryMinutes()
	err = s.deliverer.Deliver(ctx, Delivery{
		Address:       m.Email,
		Code:          code.Code,
		MemberName:    m.Name,
		ExpiryMinutes: minutes,
	})
	if err != nil {
		s.observer.DeliveryFailed()
		zerolog.Ctx(ctx).Error().Err(err).Str("member_id", m.ID).Str("code_id", code.ID).Msg("code delivery failed")
		return CodeRequest{}, DeliveryError{Err: err}
	}
	return CodeRequest{ExpiresInMinutes: minutes, ExpiresAt: code.ExpiresAt}, nil
}

// VerifyCode checks the submitted code and, on success, records the member
// Present and advances the streak.
func (s *Service) VerifyCode(ctx context.Context, registrationCode, submitted, ip string) (Confirmation, error) {
	m, sess, err := s.resolve(ctx, registrationCode)
	if err != nil {
		return Confirmation{}, err
	}
	if _, err := s.codes.Verify(ctx, m.ID, sess.ID, submitted); err != nil {
		s.observer.CodeVerification(outcomeOf(err))
		return Confirmation{}, err
	}
	s.observer.CodeVerification("verified")

	// A code issued before a concurrent staff mark may still verify.
	marked, err := s.ledger.Exists(ctx, m.ID, sess.ID)
	if err != nil {
		return Confirmation{}, err
	}
	if marked {
		return Confirmation{}, ErrDuplicateAttendance
	}

	rec, err := s.ledger.Record(ctx, RecordInput{
		MemberID:  m.ID,
		SessionID: sess.ID,
		Status:    StatusPresent,
		Origin:    OriginSelf,
		IPAddress: ip,
	})
	if err != nil {
		return Confirmation{}, err
	}
	s.observer.AttendanceMarked(rec.Origin, rec.Status)

	updated, err := s.advanceStreak(ctx, m.ID, rec.MarkedAt)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{
		MemberName:       updated.Name,
		RegistrationCode: updated.RegistrationCode,
		CurrentStreak:    updated.CurrentStreak,
		MarkedAt:         rec.MarkedAt,
	}, nil
}

// MarkDirect records attendance on behalf of staff without a code.
func (s *Service) MarkDirect(ctx context.Context, registrationCode string, status Status, staffID, ip string) (MarkResult, error) {
	if strings.TrimSpace(staffID) == "" {
		return MarkResult{}, ErrInvalidInput
	}
	m, sess, err := s.resolve(ctx, registrationCode)
	if err != nil {
		return MarkResult{}, err
	}
	marked, err := s.ledger.Exists(ctx, m.ID, sess.ID)
	if err != nil {
		return MarkResult{}, err
	}
	if marked {
		return MarkResult{}, ErrDuplicateAttendance
	}
	if status != StatusAbsent {
		status = StatusPresent
	}

	by := staffID
	rec, err := s.ledger.Record(ctx, RecordInput{
		MemberID:  m.ID,
		SessionID: sess.ID,
		Status:    status,
		Origin:    OriginStaff,
		MarkedBy:  &by,
		IPAddress: ip,
	})
	if err != nil {
		return MarkResult{}, err
	}
	s.observer.AttendanceMarked(rec.Origin, rec.Status)

	if status == StatusPresent {
		if _, err := s.advanceStreak(ctx, m.ID, rec.MarkedAt); err != nil {
			return MarkResult{}, err
		}
	}
	zerolog.Ctx(ctx).Info().Str("member_id", m.ID).Str("session_id", sess.ID).Str("status", string(status)).Str("marked_by", staffID).Msg("attendance marked by staff")
	return MarkResult{
		MemberName:       m.Name,
		RegistrationCode: m.RegistrationCode,
		Status:           rec.Status,
		MarkedAt:         rec.MarkedAt,
	}, nil
}

// SessionRecords returns the roster of a session.
func (s *Service) SessionRecords(ctx context.Context, sessionID string) ([]Record, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.ledger.ListForSession(ctx, sessionID)
}

func (s *Service) resolve(ctx context.Context, registrationCode string) (Member, Session, error) {
	code := NormalizeRegistrationCode(registrationCode)
	if code == "" {
		return Member{}, Session{}, ErrInvalidInput
	}
	m, err := s.directory.FindActiveByRegistrationCode(ctx, code)
	if err != nil {
		return Member{}, Session{}, err
	}
	if m == nil {
		return Member{}, Session{}, NotFoundError{Resource: "member"}
	}
	sess, err := s.sessions.requireActive(ctx)
	if err != nil {
		return Member{}, Session{}, err
	}
	return *m, sess, nil
}

const streakRetries = 5

// advanceStreak re-reads the member so the streak applies to the latest
// snapshot, then persists it guarded by the snapshot's last attendance. The
// attendance record is always written first.
func (s *Service) advanceStreak(ctx context.Context, memberID string, at time.Time) (Member, error) {
	for i := 0; i < streakRetries; i++ {
		m, err := s.directory.GetMember(ctx, memberID)
		if err != nil {
			return Member{}, err
		}
		updated := UpdateStreak(m, at, s.loc)
		err = s.directory.SaveStreak(ctx, updated, m.LastAttendanceDate)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrStaleMember) {
			return Member{}, err
		}
		zerolog.Ctx(ctx).Debug().Str("member_id", memberID).Int("attempt", i+1).Msg("streak update raced, retrying")
	}
	return Member{}, storageErr("save streak", ErrStaleMember)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrMismatch):
		return "mismatch"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrAttemptsExceeded):
		return "exhausted"
	case errors.Is(err, ErrNotRequested):
		return "not_requested"
	default:
		return "error"
	}
}
