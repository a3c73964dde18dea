package attendance

import (
	"crypto/rand"
	"math/big"
	"time"
)

const (
	DefaultCodeLength    = 6
	DefaultCodeExpiry    = 3 * time.Minute
	DefaultMaxAttempts   = 3
	maxSupportedCodeSize = 12
)

// Generator produces one-time code values.
type Generator interface {
	Generate(length int) (string, error)
}

// DigitGenerator draws uniformly random decimal digits from crypto/rand.
type DigitGenerator struct{}

// Generate returns length random digits. Non-positive lengths fall back to
// DefaultCodeLength.
func (DigitGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}
	if length > maxSupportedCodeSize {
		return "", ErrInvalidInput
	}
	ten := big.NewInt(10)
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + n.Int64())
	}
	return string(out), nil
}

// ExpiryOf returns the expiry instant for a code issued at now.
func ExpiryOf(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = DefaultCodeExpiry
	}
	return now.Add(ttl)
}

// CodePolicy is the configurable shape of issued codes.
type CodePolicy struct {
	Length      int
	Expiry      time.Duration
	MaxAttempts int
}

func (p CodePolicy) withDefaults() CodePolicy {
	if p.Length <= 0 {
		p.Length = DefaultCodeLength
	}
	if p.Expiry <= 0 {
		p.Expiry = DefaultCodeExpiry
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	return p
}

// ExpiryMinutes is the expiry rounded up to whole minutes for messages.
func (p CodePolicy) ExpiryMinutes() int {
	p = p.withDefaults()
	m := int(p.Expiry / time.Minute)
	if p.Expiry%time.Minute != 0 {
		m++
	}
	return m
}
