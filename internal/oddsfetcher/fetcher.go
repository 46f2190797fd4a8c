// Package oddsfetcher issues one odds-endpoint request per market selector,
// fanning out under the run's politeness budget.
package oddsfetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"odds-crawler/internal/model"
	"odds-crawler/internal/scraping"
)

// Options tune the fetcher.
type Options struct {
	BaseURL string
	// Concurrency bounds in-flight selectors for one match. The shared
	// scraping budget still applies on top of this.
	Concurrency int
	// SkewTolerance is how far past "now" a history timestamp may sit on a
	// not-yet-started match before the payload is flagged as stale.
	SkewTolerance time.Duration
}

// Fetcher builds and executes odds endpoint requests.
type Fetcher struct {
	fetcher scraping.PageFetcher
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// Result pairs a fetched payload with its staleness flag. ClockSkew set
// means the payload's history extends past now although the match has not
// started; the caller should re-extract access params instead of trusting
// the payload.
type Result struct {
	Payload   model.RawPayload
	ClockSkew bool
}

// SelectorFailure records one failed selector without failing the match.
type SelectorFailure struct {
	Selector model.MarketSelector
	Err      error
}

// New constructs a Fetcher.
func New(fetcher scraping.PageFetcher, opts Options, logger zerolog.Logger) *Fetcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.SkewTolerance <= 0 {
		opts.SkewTolerance = 5 * time.Minute
	}
	return &Fetcher{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With().Str("component", "odds_fetcher").Logger(),
		now:     time.Now,
	}
}

// EndpointURL builds the odds endpoint path for one selector:
// /match-event/{version}-{sportId}-{matchId}-{bettingTypeId}-{scopeId}-{token}.dat
func (f *Fetcher) EndpointURL(params model.MatchAccessParams, sel model.MarketSelector) string {
	return fmt.Sprintf("%s/match-event/%s-%d-%s-%d-%d-%s.dat?_=%d",
		strings.TrimRight(f.opts.BaseURL, "/"),
		params.ProtocolVersion,
		params.SportID,
		params.MatchID,
		sel.BettingTypeID,
		sel.ScopeID,
		params.AccessToken,
		f.now().UnixMilli())
}

// Fetch retrieves one payload per selector. Selectors are independent: a
// failure on one never aborts the others, and failures come back alongside
// the successes. Only context cancellation returns an error.
func (f *Fetcher) Fetch(ctx context.Context, params model.MatchAccessParams, matchURL string, selectors []model.MarketSelector) ([]Result, []SelectorFailure, error) {
	var (
		mu       sync.Mutex
		results  []Result
		failures []SelectorFailure
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.opts.Concurrency)

	for _, sel := range selectors {
		sel := sel
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			url := f.EndpointURL(params, sel)
			body, err := f.fetcher.FetchData(groupCtx, url, matchURL)
			if err != nil {
				mu.Lock()
				failures = append(failures, SelectorFailure{Selector: sel, Err: err})
				mu.Unlock()
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}
				return nil
			}

			res := Result{Payload: model.RawPayload{Selector: sel, Body: body}}
			if !params.HasStarted && f.historyExtendsPastNow(body) {
				res.ClockSkew = true
				f.logger.Warn().
					Str("match_id", params.MatchID).
					Int("betting_type", sel.BettingTypeID).
					Int("scope", sel.ScopeID).
					Msg("history extends past now on unstarted match; access params likely stale")
			}

			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	return results, failures, nil
}

// historyExtendsPastNow peeks at the history block for timestamps beyond
// now plus tolerance.
func (f *Fetcher) historyExtendsPastNow(body []byte) bool {
	var envelope struct {
		D struct {
			OddsData struct {
				History map[string]map[string]map[string][][]json.Number `json:"history"`
			} `json:"oddsdata"`
		} `json:"d"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}

	horizon := f.now().Add(f.opts.SkewTolerance).Unix()
	for _, outcomes := range envelope.D.OddsData.History {
		for _, bookmakers := range outcomes {
			for _, entries := range bookmakers {
				for _, entry := range entries {
					if len(entry) < 3 {
						continue
					}
					if ts, err := entry[2].Int64(); err == nil && ts > horizon {
						return true
					}
				}
			}
		}
	}
	return false
}

// DefaultSelectors expands the requested betting types and scopes into the
// cartesian product of market selectors for one match.
func DefaultSelectors(matchID string, bettingTypeIDs, scopeIDs []int) []model.MarketSelector {
	if len(bettingTypeIDs) == 0 {
		bettingTypeIDs = []int{model.BettingTypeHeadToHead}
	}
	if len(scopeIDs) == 0 {
		scopeIDs = []int{model.ScopeFullTime}
	}
	selectors := make([]model.MarketSelector, 0, len(bettingTypeIDs)*len(scopeIDs))
	for _, bt := range bettingTypeIDs {
		for _, sc := range scopeIDs {
			selectors = append(selectors, model.MarketSelector{
				MatchID:       matchID,
				BettingTypeID: bt,
				ScopeID:       sc,
			})
		}
	}
	return selectors
}
