package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fuelwatch/internal/alerting"
	"fuelwatch/internal/chart"
	"fuelwatch/internal/config"
	"fuelwatch/internal/fetcher"
	"fuelwatch/internal/notifier"
	"fuelwatch/internal/queue"
	"fuelwatch/internal/scheduler"
	"fuelwatch/internal/storage"
)

const historyLookback = 90 * 24 * time.Hour

// Service orchestrates the three loops: ingest, alert dispatch, and the
// weekly digest. All shared state lives in the store, the registry, the
// change queue, and the throttle, each behind its own mutual exclusion.
type Service struct {
	cfg      *config.Config
	feed     fetcher.PriceFetcher
	store    *storage.Store
	registry *storage.Registry
	queue    *queue.Queue
	notifier notifier.Notifier
	throttle *alerting.DispatchState
	logger   zerolog.Logger

	now func() time.Time
}

// New constructs the monitoring service.
func New(cfg *config.Config, feed fetcher.PriceFetcher, store *storage.Store, registry *storage.Registry, q *queue.Queue, n notifier.Notifier, logger zerolog.Logger) *Service {
	return &Service{
		cfg:      cfg,
		feed:     feed,
		store:    store,
		registry: registry,
		queue:    q,
		notifier: n,
		throttle: alerting.NewDispatchState(),
		logger:   logger.With().Str("component", "service").Logger(),
		now:      time.Now,
	}
}

// Run starts the three loops and blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	ingest := scheduler.New(scheduler.Options{
		Name:         "ingest",
		Interval:     s.cfg.Scheduler.IngestInterval,
		AlignToStart: s.cfg.Scheduler.AlignIngest,
		StartupDelay: s.cfg.Scheduler.StartupDelay,
		RunAtStart:   true,
	}, s.logger)
	dispatch := scheduler.New(scheduler.Options{
		Name:     "alert_dispatch",
		Interval: s.cfg.Scheduler.DispatchInterval,
	}, s.logger)
	weekly := scheduler.New(scheduler.Options{
		Name:       "weekly_digest",
		Interval:   s.cfg.Scheduler.WeeklyInterval,
		RunAtStart: true,
	}, s.logger)

	g.Go(func() error {
		return ingest.Run(ctx, func(ctx context.Context, _ time.Time) error {
			return s.IngestOnce(ctx)
		})
	})
	g.Go(func() error {
		return dispatch.Run(ctx, func(ctx context.Context, _ time.Time) error {
			return s.DispatchOnce(ctx)
		})
	})
	g.Go(func() error {
		return weekly.Run(ctx, func(ctx context.Context, _ time.Time) error {
			return s.WeeklyOnce(ctx)
		})
	})

	return g.Wait()
}

// IngestOnce fetches one feed snapshot, appends every reduced record to
// the full history, merges into the daily minima, and enqueues each fuel
// type whose daily minimum changed.
func (s *Service) IngestOnce(ctx context.Context) error {
	snapshot, err := s.feed.FetchLowest(ctx)
	if err != nil {
		// Feed trouble skips the cycle; the next scheduled run retries.
		return err
	}

	types := make([]string, 0, len(snapshot))
	for t := range snapshot {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, fuelType := range types {
		rec := snapshot[fuelType]
		if err := s.store.RecordFull(rec); err != nil {
			// Without disk truth the merge invariant is unprovable, so the
			// whole tick aborts. The loop retries next tick.
			return err
		}
		changed, err := s.store.MergeDaily(rec)
		if err != nil {
			return err
		}
		if !changed {
			continue
		}
		s.queue.Enqueue(rec)
		s.logger.Info().
			Str("fuel_type", fuelType).
			Int64("price", rec.Price).
			Str("station", rec.Station).
			Msg("daily minimum changed")
	}
	return nil
}

// DispatchOnce drains the change queue and evaluates every subscriber
// rule against each queued record.
func (s *Service) DispatchOnce(ctx context.Context) error {
	for _, rec := range s.queue.Drain() {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.dispatchRecord(ctx, rec)
	}
	return nil
}

// dispatchRecord applies the product policy for one changed record: an
// alert fires when the subscriber's configured rule triggers OR the hard
// price ceiling is breached, then the per-email daily throttle decides
// whether the subscriber actually hears about it.
func (s *Service) dispatchRecord(ctx context.Context, rec storage.PriceRecord) {
	now := s.now()
	history := s.store.History(rec.FuelType, time.Time{})
	ceilingRule := storage.AlertRule{
		FuelType:  rec.FuelType,
		Method:    storage.MethodFixed,
		Threshold: s.cfg.Alerting.Ceiling,
	}

	for email, rules := range s.registry.AlertRules() {
		for _, rule := range rules {
			if rule.FuelType != rec.FuelType {
				continue
			}

			triggered, stats := alerting.Evaluate(history, rec, rule, now)
			ceilingHit, ceilingStats := alerting.Evaluate(history, rec, ceilingRule, now)
			if !triggered && !ceilingHit {
				continue
			}
			if !triggered {
				stats = ceilingStats
			}

			if !s.throttle.Claim(email, rec.Price, now) {
				s.logger.Debug().Str("email", email).Str("fuel_type", rec.FuelType).Msg("alert throttled")
				continue
			}

			failures := s.notifier.SendAlert(ctx, rec, stats, []string{email})
			for _, f := range failures {
				s.logger.Warn().Err(f.Err).Str("recipient", f.Recipient).Msg("alert not delivered")
			}
			break
		}
	}
}

// WeeklyOnce sends the digest to every weekly subscriber whose cadence
// has elapsed and stamps the delivery bookkeeping.
func (s *Service) WeeklyOnce(ctx context.Context) error {
	now := s.now()
	due := s.registry.WeeklyDue(now, s.cfg.Scheduler.WeeklyCadence)
	if len(due) == 0 {
		return nil
	}

	prices := s.store.LatestPrices()
	if len(prices) == 0 {
		s.logger.Info().Msg("no price data yet, skipping weekly digest")
		return nil
	}

	digest := s.buildDigest(prices, now)

	failures := s.notifier.SendWeeklyDigest(ctx, digest, due)
	for _, f := range failures {
		s.logger.Warn().Err(f.Err).Str("recipient", f.Recipient).Msg("weekly digest not delivered")
	}

	if err := s.registry.MarkWeeklySent(due, now); err != nil {
		return err
	}
	return s.store.StampLastSent(now)
}

// buildDigest assembles the digest stats and chart for the primary fuel
// type (the first configured one present in the data).
func (s *Service) buildDigest(prices map[string]int64, now time.Time) notifier.Digest {
	digest := notifier.Digest{Prices: prices}

	primary := ""
	for _, t := range s.cfg.Feed.FuelTypes {
		if _, ok := prices[t]; ok {
			primary = t
			break
		}
	}
	if primary == "" {
		return digest
	}

	history := s.store.History(primary, now.Add(-historyLookback))
	if len(history) == 0 {
		return digest
	}

	// The digest reports statistics even below the alert cold-start bar.
	stats := alerting.Summarize(history, s.cfg.Alerting.MAWindow, now)

	digest.Primary = primary
	digest.Current = prices[primary]
	digest.Highest = stats.Highest
	digest.Lowest = stats.Lowest
	digest.AlertLine = stats.AlertLine
	digest.Samples = stats.Samples

	png, err := chart.Render(primary+" lowest price, last 90 days", history, s.cfg.Alerting.MAWindow)
	if err != nil {
		s.logger.Debug().Err(err).Msg("digest chart skipped")
	} else {
		digest.ChartPNG = png
	}
	return digest
}
