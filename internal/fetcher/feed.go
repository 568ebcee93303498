package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"fuelwatch/internal/storage"
)

// FeedOptions parameterise the upstream feed client.
type FeedOptions struct {
	URL       string
	Region    string
	FuelTypes []string
	Timeout   time.Duration
	UserAgent string
}

// Feed fetches snapshots from the public fuel price API.
type Feed struct {
	opts   FeedOptions
	client *http.Client
	types  map[string]struct{}
	logger zerolog.Logger
	now    func() time.Time
}

// NewFeed constructs a feed client.
func NewFeed(opts FeedOptions, logger zerolog.Logger) *Feed {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var types map[string]struct{}
	if len(opts.FuelTypes) > 0 {
		types = make(map[string]struct{}, len(opts.FuelTypes))
		for _, t := range opts.FuelTypes {
			types[t] = struct{}{}
		}
	}

	return &Feed{
		opts:   opts,
		client: &http.Client{Timeout: timeout},
		types:  types,
		logger: logger.With().Str("component", "feed_client").Logger(),
		now:    time.Now,
	}
}

type feedResponse struct {
	Regions []struct {
		Region string      `json:"region"`
		Prices []feedPrice `json:"prices"`
	} `json:"regions"`
}

type feedPrice struct {
	Type     string  `json:"type"`
	Price    float64 `json:"price"`
	Name     string  `json:"name"`
	Suburb   string  `json:"suburb"`
	State    string  `json:"state"`
	Postcode string  `json:"postcode"`
}

// FetchLowest retrieves one snapshot and reduces it to the cheapest record
// per fuel type within the configured region, timestamped at call time.
// Every failure mode comes back wrapped in ErrFeedUnavailable.
func (f *Feed) FetchLowest(ctx context.Context) (map[string]storage.PriceRecord, error) {
	if f.opts.URL == "" {
		return nil, fmt.Errorf("%w: feed url not configured", ErrFeedUnavailable)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(f.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: feed returned %d: %s", ErrFeedUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload feedResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrFeedUnavailable, err)
	}

	lowest := make(map[string]feedPrice)
	for _, region := range payload.Regions {
		if region.Region != f.opts.Region {
			continue
		}
		for _, price := range region.Prices {
			if price.Price <= 0 {
				// A free or negative price is feed garbage, not a bargain.
				f.logger.Warn().Str("fuel_type", price.Type).Float64("price", price.Price).Msg("discarding non-positive feed price")
				continue
			}
			if f.types != nil {
				if _, ok := f.types[price.Type]; !ok {
					continue
				}
			}
			if cur, ok := lowest[price.Type]; !ok || price.Price < cur.Price {
				lowest[price.Type] = price
			}
		}
	}

	ts := storage.NewTimestamp(f.now())
	records := make(map[string]storage.PriceRecord, len(lowest))
	for fuelType, price := range lowest {
		records[fuelType] = storage.PriceRecord{
			FuelType:  price.Type,
			Price:     int64(math.Round(price.Price)),
			Station:   price.Name,
			Suburb:    price.Suburb,
			State:     price.State,
			Postcode:  price.Postcode,
			Timestamp: ts,
		}
	}

	f.logger.Debug().Int("fuel_types", len(records)).Msg("feed snapshot reduced")
	return records, nil
}

var _ PriceFetcher = (*Feed)(nil)
