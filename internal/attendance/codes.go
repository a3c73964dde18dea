package attendance

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Codes issues and verifies one-time codes.
type Codes struct {
	store    CodeStore
	sessions *Registry
	ledger   *Ledger
	gen      Generator
	policy   CodePolicy
	now      Clock
}

// NewCodes wires the OTC store logic.
func NewCodes(store CodeStore, sessions *Registry, ledger *Ledger, gen Generator, policy CodePolicy, now Clock) *Codes {
	if gen == nil {
		gen = DigitGenerator{}
	}
	if now == nil {
		now = systemClock
	}
	return &Codes{
		store:    store,
		sessions: sessions,
		ledger:   ledger,
		gen:      gen,
		policy:   policy.withDefaults(),
		now:      now,
	}
}

// Policy returns the effective code policy.
func (c *Codes) Policy() CodePolicy { return c.policy }

// Issue creates a code for (memberID, sessionID). The session must be active,
// the member must not be marked yet, and no outstanding code may exist.
func (c *Codes) Issue(ctx context.Context, memberID, sessionID string) (OneTimeCode, error) {
	if memberID == "" || sessionID == "" {
		return OneTimeCode{}, ErrInvalidInput
	}
	s, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return OneTimeCode{}, err
	}
	if !s.IsActive {
		return OneTimeCode{}, ErrNoActiveSession
	}
	marked, err := c.ledger.Exists(ctx, memberID, sessionID)
	if err != nil {
		return OneTimeCode{}, err
	}
	if marked {
		return OneTimeCode{}, ErrDuplicateAttendance
	}

	value, err := c.gen.Generate(c.policy.Length)
	if err != nil {
		return OneTimeCode{}, err
	}
	now := c.now()
	code, err := c.store.InsertCode(ctx, OneTimeCode{
		ID:          uuid.NewString(),
		MemberID:    memberID,
		SessionID:   sessionID,
		Code:        value,
		ExpiresAt:   ExpiryOf(now, c.policy.Expiry),
		MaxAttempts: c.policy.MaxAttempts,
		CreatedAt:   now,
	}, now)
	if err != nil {
		return OneTimeCode{}, err
	}
	zerolog.Ctx(ctx).Debug().Str("code_id", code.ID).Str("member_id", memberID).Time("expires_at", code.ExpiresAt).Msg("code issued")
	return code, nil
}

// Verify checks submitted against the latest unused code for the pair. A
// match consumes the code permanently.
func (c *Codes) Verify(ctx context.Context, memberID, sessionID, submitted string) (OneTimeCode, error) {
	submitted = strings.TrimSpace(submitted)
	if memberID == "" || sessionID == "" || submitted == "" {
		return OneTimeCode{}, ErrInvalidInput
	}
	code, err := c.store.LatestUnusedCode(ctx, memberID, sessionID)
	if err != nil {
		return OneTimeCode{}, err
	}
	now := c.now()
	if code.Expired(now) {
		return OneTimeCode{}, ErrExpired
	}
	if code.Attempts >= code.MaxAttempts {
		return OneTimeCode{}, ErrAttemptsExceeded
	}

	if subtle.ConstantTimeCompare([]byte(code.Code), []byte(submitted)) != 1 {
		updated, err := c.store.RecordMismatch(ctx, code.ID)
		if err != nil {
			return OneTimeCode{}, err
		}
		return OneTimeCode{}, MismatchError{Remaining: updated.Remaining()}
	}

	consumed, err := c.store.ConsumeCode(ctx, code.ID, now)
	if err != nil {
		if errors.Is(err, ErrNotRequested) {
			zerolog.Ctx(ctx).Warn().Str("code_id", code.ID).Msg("code consumed concurrently")
		}
		return OneTimeCode{}, err
	}
	return consumed, nil
}
