package delivery

import (
	"context"

	"github.com/rs/zerolog"

	"paie/internal/attendance"
)

// Log writes deliveries to the request logger instead of sending them.
// Only meant for development.
type Log struct{}

// Deliver logs the delivery, code included.
func (Log) Deliver(ctx context.Context, d attendance.Delivery) error {
	zerolog.Ctx(ctx).Warn().
		Str("to", d.Address).
		Str("code", d.Code).
		Int("expires_in_minutes", d.ExpiryMinutes).
		Msg("code delivery (log mode)")
	return nil
}
