package app

import (
	"context"
	"errors"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"fuelwatch/internal/api"
	"fuelwatch/internal/config"
	"fuelwatch/internal/fetcher"
	"fuelwatch/internal/notifier"
	"fuelwatch/internal/queue"
	"fuelwatch/internal/service"
	"fuelwatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI
// commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) openStore() (*storage.Store, error) {
	return storage.Open(storage.Options{
		Dir:         a.Config.Store.Dir,
		HistoryFile: a.Config.Store.HistoryFile,
		DailyFile:   a.Config.Store.DailyFile,
	}, a.Logger)
}

func (a *App) openRegistry() (*storage.Registry, error) {
	path := filepath.Join(a.Config.Store.Dir, a.Config.Store.SubscriptionsFile)
	return storage.OpenRegistry(path, a.Logger)
}

func (a *App) newFeed() fetcher.PriceFetcher {
	return fetcher.NewFeed(fetcher.FeedOptions{
		URL:       a.Config.Feed.URL,
		Region:    a.Config.Feed.Region,
		FuelTypes: a.Config.Feed.FuelTypes,
		Timeout:   a.Config.Feed.RequestTimeout,
		UserAgent: a.Config.Feed.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() notifier.Notifier {
	if !a.Config.SMTP.Enabled {
		a.Logger.Warn().Msg("smtp not configured; email delivery disabled")
		return notifier.NewNop(a.Logger)
	}
	cfg := a.Config.SMTP
	return notifier.NewMailer(notifier.MailerOptions{
		Host:         cfg.Host,
		Port:         cfg.Port,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Sender:       cfg.Sender,
		SSL:          cfg.SSL,
		SendTimeout:  cfg.SendTimeout,
		DashboardURL: cfg.DashboardURL,
	}, a.Logger)
}

// Run executes the long-running monitor: the three loops plus the
// subscription API.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	registry, err := a.openRegistry()
	if err != nil {
		return err
	}

	feed := a.newFeed()
	mailer := a.newNotifier()
	changeQueue := queue.New(a.Config.Scheduler.QueueCapacity, a.Logger)

	svc := service.New(a.Config, feed, store, registry, changeQueue, mailer, a.Logger)
	server := api.NewServer(a.Config.HTTP, store, registry, mailer, a.Logger)

	a.Logger.Info().Msg("starting fuel price monitor")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("monitor terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitor stopped")
	return nil
}

// ExportOptions hold parameters for exporting history.
type ExportOptions struct {
	FuelType  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	FuelType string
}

// EvaluateOptions configure the offline rule evaluation.
type EvaluateOptions struct {
	FuelType  string
	Method    string
	Threshold int64
	Window    int
}
