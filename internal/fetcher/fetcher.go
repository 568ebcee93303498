package fetcher

import (
	"context"
	"errors"

	"fuelwatch/internal/storage"
)

// ErrFeedUnavailable wraps any network or parse failure reaching the
// upstream feed. Callers skip the cycle; the next scheduled run retries.
var ErrFeedUnavailable = errors.New("fuel price feed unavailable")

// PriceFetcher retrieves a feed snapshot reduced to the lowest price per
// fuel type.
type PriceFetcher interface {
	FetchLowest(ctx context.Context) (map[string]storage.PriceRecord, error)
}
