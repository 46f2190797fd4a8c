// Package service runs the crawl pipeline on a schedule, serialising
// concurrent deployments with a postgres advisory lock and paging on
// structural failures.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"odds-crawler/internal/alerting"
	"odds-crawler/internal/config"
	"odds-crawler/internal/errs"
	"odds-crawler/internal/pipeline"
	"odds-crawler/internal/scheduler"
	"odds-crawler/internal/storage"
)

// Crawler runs one league crawl. Satisfied by *pipeline.Pipeline.
type Crawler interface {
	Run(ctx context.Context, leagueURL string) (pipeline.Summary, error)
}

// Service orchestrates scheduled crawling, run auditing, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	crawler   Crawler
	runs      storage.RunStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	leagueURLs []string
	channels   []string
	alertsOn   bool
	locker     storage.AdvisoryLocker
	lockKey    int64
}

// New constructs the crawl service. runs, notifier and locker may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, crawler Crawler, runs storage.RunStore, notifier alerting.Notifier, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	return &Service{
		scheduler:  sched,
		crawler:    crawler,
		runs:       runs,
		notifier:   notifier,
		logger:     logger.With().Str("component", "service").Logger(),
		leagueURLs: cfg.Crawl.LeagueURLs,
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the recurring crawl loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if len(s.leagueURLs) == 0 {
		return fmt.Errorf("no league urls configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick crawls every configured league once. Holding the advisory
// lock elsewhere means another instance owns this tick; skip quietly.
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	for _, leagueURL := range s.leagueURLs {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.crawlLeague(ctx, leagueURL)
	}
	return nil
}

// crawlLeague runs one league and records the outcome. League failures do
// not propagate: the remaining leagues of the tick still run.
func (s *Service) crawlLeague(ctx context.Context, leagueURL string) {
	started := time.Now().UTC()
	summary, err := s.crawler.Run(ctx, leagueURL)
	finished := time.Now().UTC()

	run := storage.CrawlRun{
		LeagueURL:     leagueURL,
		StartedAt:     started,
		FinishedAt:    finished,
		Matches:       summary.Matches,
		Succeeded:     summary.Succeeded,
		Skipped:       summary.Skipped,
		Failed:        summary.Failed,
		Snapshots:     summary.Snapshots,
		QualityIssues: summary.QualityIssues,
		Status:        storage.RunStatusOK,
	}
	if err != nil {
		msg := err.Error()
		run.Status = storage.RunStatusErrored
		run.Error = &msg
	}

	if s.runs != nil {
		if _, insertErr := s.runs.InsertRun(ctx, run); insertErr != nil {
			s.logger.Error().Err(insertErr).Str("league_url", leagueURL).Msg("failed to persist run record")
		}
	}

	if err == nil {
		s.logger.Info().
			Str("league_url", leagueURL).
			Int("succeeded", summary.Succeeded).
			Int("failed", summary.Failed).
			Msg("league crawled")
		return
	}

	s.logger.Error().Err(err).Str("league_url", leagueURL).Msg("league crawl failed")

	if s.alertsOn && s.notifier != nil && errs.IsStructural(err) {
		note := alerting.Notification{
			OccurredAt: finished,
			LeagueURL:  leagueURL,
			Stage:      structuralStage(err),
			Detail:     err.Error(),
			Channels:   s.channels,
		}
		if notifyErr := s.notifier.Notify(ctx, note); notifyErr != nil {
			s.logger.Error().Err(notifyErr).Str("league_url", leagueURL).Msg("failed to dispatch structural alert")
		}
	}
}

func structuralStage(err error) string {
	var structural *errs.StructuralError
	if errors.As(err, &structural) {
		return structural.Stage
	}
	return "unknown"
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
