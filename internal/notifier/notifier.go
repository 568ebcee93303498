package notifier

import (
	"context"

	"github.com/shopspring/decimal"

	"fuelwatch/internal/alerting"
	"fuelwatch/internal/storage"
)

// DeliveryFailure records one recipient the message could not reach.
// Email transport flakiness is expected; failures are reported, never
// raised as hard errors, and one bad recipient must not block the rest.
type DeliveryFailure struct {
	Recipient string
	Err       error
}

// Digest is the weekly summary content: current prices per fuel type and
// the primary fuel type's 90-day statistics with a rendered chart.
type Digest struct {
	Prices    map[string]int64
	Primary   string
	Current   int64
	Highest   int64
	Lowest    int64
	AlertLine decimal.Decimal
	Samples   int
	ChartPNG  []byte
}

// Notifier renders and delivers the system's three email kinds.
type Notifier interface {
	SendAlert(ctx context.Context, rec storage.PriceRecord, stats alerting.Stats, recipients []string) []DeliveryFailure
	SendWeeklyDigest(ctx context.Context, digest Digest, recipients []string) []DeliveryFailure
	SendVerification(ctx context.Context, email, code string) error
}
