package notifier

import (
	"context"

	"github.com/rs/zerolog"

	"fuelwatch/internal/alerting"
	"fuelwatch/internal/storage"
)

// Nop logs what it would have sent. Used when SMTP is not configured so
// the pipeline stays exercisable in development.
type Nop struct {
	logger zerolog.Logger
}

// NewNop constructs a logging no-op notifier.
func NewNop(logger zerolog.Logger) *Nop {
	return &Nop{logger: logger.With().Str("component", "nop_notifier").Logger()}
}

func (n *Nop) SendAlert(_ context.Context, rec storage.PriceRecord, stats alerting.Stats, recipients []string) []DeliveryFailure {
	n.logger.Info().
		Str("fuel_type", rec.FuelType).
		Int64("price", rec.Price).
		Int64("highest", stats.Highest).
		Strs("recipients", recipients).
		Msg("smtp disabled, alert not sent")
	return nil
}

func (n *Nop) SendWeeklyDigest(_ context.Context, digest Digest, recipients []string) []DeliveryFailure {
	n.logger.Info().
		Int("fuel_types", len(digest.Prices)).
		Strs("recipients", recipients).
		Msg("smtp disabled, weekly digest not sent")
	return nil
}

func (n *Nop) SendVerification(_ context.Context, email, code string) error {
	n.logger.Info().Str("email", email).Str("code", code).Msg("smtp disabled, verification code not sent")
	return nil
}

var _ Notifier = (*Nop)(nil)
