// Package pipeline chains resolution, match location, parameter extraction,
// odds fetching and normalization into one crawl run. A run fails a match,
// not the batch: every per-match error is recorded in the summary and the
// run moves on. Only structural errors and cancellation abort.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
	"odds-crawler/internal/model"
	"odds-crawler/internal/normalize"
	"odds-crawler/internal/oddsfetcher"
	"odds-crawler/internal/resolver"
)

// Stage names the pipeline phase a run is in, for logging and for pinning
// structural failures to their origin.
type Stage string

const (
	StageResolving   Stage = "resolving"
	StageLocating    Stage = "locating"
	StageExtracting  Stage = "extracting"
	StageFetching    Stage = "fetching"
	StageNormalizing Stage = "normalizing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// LeagueResolver resolves a league URL into its identity and seasons.
type LeagueResolver interface {
	Resolve(ctx context.Context, leagueURL string) (*resolver.Resolution, error)
}

// MatchLocator enumerates the matches of one season.
type MatchLocator interface {
	Locate(ctx context.Context, season model.Season, mode model.Mode) ([]model.MatchRef, error)
}

// ParamExtractor recovers odds-endpoint access parameters from a match page.
type ParamExtractor interface {
	Extract(ctx context.Context, matchURL string) (model.MatchAccessParams, error)
}

// OddsFetcher retrieves raw odds payloads for a set of market selectors.
type OddsFetcher interface {
	Fetch(ctx context.Context, params model.MatchAccessParams, matchURL string, selectors []model.MarketSelector) ([]oddsfetcher.Result, []oddsfetcher.SelectorFailure, error)
}

// Sink receives pipeline output. The nil Sink discards everything, which
// keeps dry runs and tests free of database wiring.
type Sink interface {
	SaveLeague(ctx context.Context, league model.LeagueIdentity) error
	SaveSeasons(ctx context.Context, seasons []model.Season) error
	SaveMatches(ctx context.Context, matches []model.MatchRef) error
	SaveOdds(ctx context.Context, snapshots []model.OddsSnapshot, history []model.OddsHistoryEntry) error
}

// Options scope one run.
type Options struct {
	BettingTypeIDs []int
	ScopeIDs       []int
	// Modes defaults to results only. Fixtures runs add the upcoming list.
	Modes []model.Mode
	// CurrentSeasonOnly restricts location to the season marked current.
	CurrentSeasonOnly bool
	// MaxMatches caps per-run match work; zero means unbounded.
	MaxMatches int
}

// MatchOutcome records how one match fared.
type MatchOutcome struct {
	MatchID string
	Stage   Stage
	Skipped bool
	Reason  string
	Err     error
}

// Summary aggregates a run for the caller and the logs.
type Summary struct {
	LeagueURL     string
	Seasons       int
	Matches       int
	Succeeded     int
	Skipped       int
	Failed        int
	Snapshots     int
	HistoryPoints int
	QualityIssues int
	ClockSkews    int
	Outcomes      []MatchOutcome
}

// Pipeline wires the five stages together.
type Pipeline struct {
	resolver  LeagueResolver
	locator   MatchLocator
	extractor ParamExtractor
	fetcher   OddsFetcher
	sink      Sink
	logger    zerolog.Logger
	opts      Options
}

// New constructs a Pipeline. sink may be nil.
func New(res LeagueResolver, loc MatchLocator, ext ParamExtractor, fet OddsFetcher, sink Sink, opts Options, logger zerolog.Logger) *Pipeline {
	if len(opts.Modes) == 0 {
		opts.Modes = []model.Mode{model.ModeResults}
	}
	return &Pipeline{
		resolver:  res,
		locator:   loc,
		extractor: ext,
		fetcher:   fet,
		sink:      sink,
		opts:      opts,
		logger:    logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run crawls one league end to end. A structural error from resolution or
// location aborts with that error; match-level failures are absorbed into
// the summary.
func (p *Pipeline) Run(ctx context.Context, leagueURL string) (Summary, error) {
	summary := Summary{LeagueURL: leagueURL}

	p.logger.Info().Str("league_url", leagueURL).Str("stage", string(StageResolving)).Msg("run started")

	resolution, err := p.resolver.Resolve(ctx, leagueURL)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", StageResolving, err)
	}
	if err := p.save(ctx, func(s Sink) error { return s.SaveLeague(ctx, resolution.League) }); err != nil {
		return summary, err
	}

	seasons := resolution.Seasons
	if p.opts.CurrentSeasonOnly {
		seasons = currentOnly(seasons)
	}
	summary.Seasons = len(seasons)
	if err := p.save(ctx, func(s Sink) error { return s.SaveSeasons(ctx, seasons) }); err != nil {
		return summary, err
	}

	matches, err := p.locate(ctx, seasons)
	if err != nil {
		return summary, fmt.Errorf("%s: %w", StageLocating, err)
	}
	if p.opts.MaxMatches > 0 && len(matches) > p.opts.MaxMatches {
		matches = matches[:p.opts.MaxMatches]
	}
	summary.Matches = len(matches)
	if err := p.save(ctx, func(s Sink) error { return s.SaveMatches(ctx, matches) }); err != nil {
		return summary, err
	}

	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		outcome := p.crawlMatch(ctx, match, &summary)
		summary.Outcomes = append(summary.Outcomes, outcome)
		switch {
		case outcome.Skipped:
			summary.Skipped++
		case outcome.Err != nil:
			summary.Failed++
		default:
			summary.Succeeded++
		}
		// A structural error means the source markup changed shape, so every
		// remaining match would fail identically. Stop instead of hammering.
		if outcome.Err != nil && errs.IsStructural(outcome.Err) {
			p.logger.Error().Err(outcome.Err).
				Str("match_id", outcome.MatchID).
				Str("stage", string(outcome.Stage)).
				Msg("structural change detected; aborting remaining matches")
			return summary, fmt.Errorf("%s: %w", outcome.Stage, outcome.Err)
		}
	}

	p.logger.Info().
		Str("league_url", leagueURL).
		Int("matches", summary.Matches).
		Int("succeeded", summary.Succeeded).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("snapshots", summary.Snapshots).
		Int("quality_issues", summary.QualityIssues).
		Str("stage", string(StageDone)).
		Msg("run finished")

	return summary, nil
}

func (p *Pipeline) locate(ctx context.Context, seasons []model.Season) ([]model.MatchRef, error) {
	var matches []model.MatchRef
	seen := make(map[string]bool)

	for _, season := range seasons {
		for _, mode := range p.opts.Modes {
			if mode == model.ModeFixtures && !season.IsCurrent {
				continue
			}
			located, err := p.locator.Locate(ctx, season, mode)
			if err != nil {
				if errs.IsNoOdds(err) {
					continue
				}
				return nil, err
			}
			for _, m := range located {
				if seen[m.MatchID] {
					continue
				}
				seen[m.MatchID] = true
				matches = append(matches, m)
			}
		}
	}
	return matches, nil
}

// crawlMatch runs extraction, fetching and normalization for one match.
// NoOdds errors become skips; everything else a recorded failure.
func (p *Pipeline) crawlMatch(ctx context.Context, match model.MatchRef, summary *Summary) MatchOutcome {
	log := p.logger.With().Str("match_id", match.MatchID).Logger()

	params, err := p.extractor.Extract(ctx, match.MatchURL)
	if err != nil {
		if errs.IsNoOdds(err) {
			log.Debug().Str("reason", err.Error()).Msg("match skipped")
			return MatchOutcome{MatchID: match.MatchID, Stage: StageExtracting, Skipped: true, Reason: err.Error()}
		}
		log.Warn().Err(err).Str("stage", string(StageExtracting)).Str("class", string(errs.Classify(err))).Msg("match failed")
		return MatchOutcome{MatchID: match.MatchID, Stage: StageExtracting, Err: err}
	}

	selectors := oddsfetcher.DefaultSelectors(match.MatchID, p.opts.BettingTypeIDs, p.opts.ScopeIDs)
	results, failures, err := p.fetcher.Fetch(ctx, params, match.MatchURL, selectors)
	if err != nil {
		return MatchOutcome{MatchID: match.MatchID, Stage: StageFetching, Err: err}
	}
	if len(results) == 0 {
		err := fmt.Errorf("all %d selectors failed, first: %w", len(failures), firstErr(failures))
		log.Warn().Err(err).Str("stage", string(StageFetching)).Str("class", string(errs.Classify(err))).Msg("match failed")
		return MatchOutcome{MatchID: match.MatchID, Stage: StageFetching, Err: err}
	}

	var (
		snapshots []model.OddsSnapshot
		history   []model.OddsHistoryEntry
	)
	for _, res := range results {
		if res.ClockSkew {
			summary.ClockSkews++
		}
		normalized, err := normalize.Normalize(res.Payload, params.HasStarted)
		if err != nil {
			summary.QualityIssues++
			log.Warn().Err(err).
				Int("betting_type", res.Payload.Selector.BettingTypeID).
				Int("scope", res.Payload.Selector.ScopeID).
				Msg("payload dropped")
			continue
		}
		if normalized.Unavailable {
			log.Debug().
				Int("status", normalized.StatusCode).
				Int("betting_type", res.Payload.Selector.BettingTypeID).
				Msg("odds unavailable for selector")
			continue
		}
		summary.QualityIssues += len(normalized.QualityIssues)
		snapshots = append(snapshots, normalized.Snapshots...)
		history = append(history, normalized.History...)
	}

	if err := p.save(ctx, func(s Sink) error { return s.SaveOdds(ctx, snapshots, history) }); err != nil {
		return MatchOutcome{MatchID: match.MatchID, Stage: StageNormalizing, Err: err}
	}

	summary.Snapshots += len(snapshots)
	summary.HistoryPoints += len(history)

	// A structural selector failure outranks partial success: the saved
	// snapshots stand, but the match reports the failure so the run aborts.
	for _, failure := range failures {
		if errs.IsStructural(failure.Err) {
			return MatchOutcome{MatchID: match.MatchID, Stage: StageFetching, Err: failure.Err}
		}
	}

	log.Debug().
		Int("snapshots", len(snapshots)).
		Int("history_points", len(history)).
		Int("selector_failures", len(failures)).
		Msg("match crawled")

	return MatchOutcome{MatchID: match.MatchID, Stage: StageDone}
}

func (p *Pipeline) save(ctx context.Context, fn func(Sink) error) error {
	if p.sink == nil {
		return nil
	}
	return fn(p.sink)
}

func currentOnly(seasons []model.Season) []model.Season {
	out := seasons[:0:0]
	for _, s := range seasons {
		if s.IsCurrent {
			out = append(out, s)
		}
	}
	return out
}

func firstErr(failures []oddsfetcher.SelectorFailure) error {
	if len(failures) == 0 {
		return fmt.Errorf("no payloads returned")
	}
	return failures[0].Err
}
