package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"odds-crawler/internal/alerting"
	"odds-crawler/internal/config"
	"odds-crawler/internal/extractor"
	"odds-crawler/internal/locator"
	"odds-crawler/internal/model"
	"odds-crawler/internal/oddsfetcher"
	"odds-crawler/internal/pipeline"
	"odds-crawler/internal/resolver"
	"odds-crawler/internal/scheduler"
	"odds-crawler/internal/scraping"
	"odds-crawler/internal/service"
	"odds-crawler/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// newClient builds the budgeted site client shared by every stage of a run.
func (a *App) newClient() *scraping.Client {
	budget := scraping.NewSlotBudget(a.Config.Crawl.Concurrency)
	return scraping.NewClient(scraping.ClientOptions{
		BaseURL:      a.Config.Source.BaseURL,
		UserAgent:    a.Config.Source.UserAgent,
		Timeout:      a.Config.Source.RequestTimeout,
		MaxRetries:   a.Config.Crawl.MaxRetries,
		RetryBackoff: a.Config.Crawl.RetryBackoff,
	}, budget, a.Logger)
}

// newPipeline assembles the five crawl stages over one shared client.
func (a *App) newPipeline(client *scraping.Client, sink pipeline.Sink) *pipeline.Pipeline {
	res := resolver.New(client, a.Logger)
	loc := locator.New(client, locator.Options{
		BaseURL:        a.Config.Source.BaseURL,
		TimezoneOffset: a.Config.Source.TimezoneOffset,
		MaxPages:       a.Config.Crawl.MaxPages,
	}, a.Logger)
	ext := extractor.New(client, nil, a.Logger)
	fet := oddsfetcher.New(client, oddsfetcher.Options{
		BaseURL:     a.Config.Source.BaseURL,
		Concurrency: a.Config.Crawl.Concurrency,
	}, a.Logger)

	return pipeline.New(res, loc, ext, fet, sink, pipeline.Options{
		BettingTypeIDs: a.Config.Crawl.BettingTypeIDs,
		ScopeIDs:       a.Config.Crawl.ScopeIDs,
		Modes:          []model.Mode{model.ModeResults, model.ModeFixtures},
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running scheduled crawl service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	var sink pipeline.Sink
	var runs storage.RunStore
	var locker storage.AdvisoryLocker
	if store != nil {
		sink = store
		runs = store
		locker = store
	}

	crawler := a.newPipeline(a.newClient(), sink)
	notifier := a.newNotifier()

	svc := service.New(a.Config, sched, crawler, runs, notifier, locker, a.Logger)

	a.Logger.Info().Msg("starting crawl service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("crawl service stopped")
	return nil
}

// ResolveOptions configure the resolve command.
type ResolveOptions struct {
	LeagueURL string
	Save      bool
}

// LocateOptions configure the locate command.
type LocateOptions struct {
	LeagueURL string
	SeasonID  string
	Fixtures  bool
	FromPage  int
	Save      bool
}

// ExtractOptions configure the extract command.
type ExtractOptions struct {
	MatchURL string
}

// OddsOptions configure the one-shot odds command.
type OddsOptions struct {
	MatchURL       string
	BettingTypeIDs []int
	ScopeIDs       []int
	Save           bool
}

// ExportOptions hold parameters for exporting stored odds history.
type ExportOptions struct {
	MatchID     string
	BookmakerID string
	Direction   string
	PNGPath     string
	CSVPath     string
	MaxPoints   int
}
