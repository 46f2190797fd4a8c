package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
	"odds-crawler/internal/model"
	"odds-crawler/internal/oddsfetcher"
	"odds-crawler/internal/resolver"
)

type stubResolver struct {
	resolution *resolver.Resolution
	err        error
}

func (s *stubResolver) Resolve(context.Context, string) (*resolver.Resolution, error) {
	return s.resolution, s.err
}

type stubLocator struct {
	matches map[string][]model.MatchRef
	err     error
}

func (s *stubLocator) Locate(_ context.Context, season model.Season, mode model.Mode) ([]model.MatchRef, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.matches[season.SeasonID+"/"+string(mode)], nil
}

type stubExtractor struct {
	params map[string]model.MatchAccessParams
	errs   map[string]error
	calls  int
}

func (s *stubExtractor) Extract(_ context.Context, matchURL string) (model.MatchAccessParams, error) {
	s.calls++
	if err := s.errs[matchURL]; err != nil {
		return model.MatchAccessParams{}, err
	}
	return s.params[matchURL], nil
}

type stubFetcher struct {
	body     []byte
	failures []oddsfetcher.SelectorFailure
	err      error
}

func (s *stubFetcher) Fetch(_ context.Context, params model.MatchAccessParams, _ string, selectors []model.MarketSelector) ([]oddsfetcher.Result, []oddsfetcher.SelectorFailure, error) {
	if s.err != nil {
		return nil, nil, s.err
	}
	results := make([]oddsfetcher.Result, 0, len(selectors))
	for _, sel := range selectors {
		results = append(results, oddsfetcher.Result{
			Payload: model.RawPayload{Selector: sel, Body: json.RawMessage(s.body)},
		})
	}
	return results, s.failures, nil
}

type recordingSink struct {
	league    *model.LeagueIdentity
	seasons   []model.Season
	matches   []model.MatchRef
	snapshots []model.OddsSnapshot
	history   []model.OddsHistoryEntry
}

func (r *recordingSink) SaveLeague(_ context.Context, league model.LeagueIdentity) error {
	r.league = &league
	return nil
}

func (r *recordingSink) SaveSeasons(_ context.Context, seasons []model.Season) error {
	r.seasons = append(r.seasons, seasons...)
	return nil
}

func (r *recordingSink) SaveMatches(_ context.Context, matches []model.MatchRef) error {
	r.matches = append(r.matches, matches...)
	return nil
}

func (r *recordingSink) SaveOdds(_ context.Context, snapshots []model.OddsSnapshot, history []model.OddsHistoryEntry) error {
	r.snapshots = append(r.snapshots, snapshots...)
	r.history = append(r.history, history...)
	return nil
}

const validPayload = `{
	"s": 1,
	"d": {
		"oddsdata": {
			"back": {
				"E-1-2-0-0-0": {
					"outcomeId": {"0": "o0", "1": "o1", "2": "o2"},
					"odds": {"16": {"0": 2.05, "1": 3.40, "2": 3.75}}
				}
			},
			"history": {
				"back": {"k1": {"16": [[2.10, null, 1700000000]]}}
			}
		}
	}
}`

func testResolution() *resolver.Resolution {
	return &resolver.Resolution{
		League: model.LeagueIdentity{SportID: 1, LeagueID: "L1", LeagueURL: "https://s.test/f/e/pl"},
		Seasons: []model.Season{
			{SeasonID: "current", LeagueID: "L1", IsCurrent: true, HasResults: true, SeasonURL: "https://s.test/f/e/pl"},
			{SeasonID: "2022-2023", LeagueID: "L1", HasResults: true, SeasonURL: "https://s.test/f/e/pl-2022-2023"},
		},
	}
}

func newTestPipeline(res LeagueResolver, loc MatchLocator, ext ParamExtractor, fet OddsFetcher, sink Sink, opts Options) *Pipeline {
	return New(res, loc, ext, fet, sink, opts, zerolog.Nop())
}

func TestRunEndToEnd(t *testing.T) {
	loc := &stubLocator{matches: map[string][]model.MatchRef{
		"current/results": {
			{MatchID: "m1", MatchURL: "https://s.test/m/m1", SeasonID: "current"},
			{MatchID: "m2", MatchURL: "https://s.test/m/m2", SeasonID: "current"},
		},
		"2022-2023/results": {
			// Duplicate of m1 across seasons collapses.
			{MatchID: "m1", MatchURL: "https://s.test/m/m1", SeasonID: "2022-2023"},
			{MatchID: "m3", MatchURL: "https://s.test/m/m3", SeasonID: "2022-2023"},
		},
	}}
	ext := &stubExtractor{
		params: map[string]model.MatchAccessParams{
			"https://s.test/m/m1": {MatchID: "m1", SportID: 1, AccessToken: "t1", ProtocolVersion: "1", HasStarted: true},
			"https://s.test/m/m3": {MatchID: "m3", SportID: 1, AccessToken: "t3", ProtocolVersion: "1"},
		},
		errs: map[string]error{
			"https://s.test/m/m2": errs.NoOdds("m2", "match page exposes no access token"),
		},
	}
	sink := &recordingSink{}

	p := newTestPipeline(
		&stubResolver{resolution: testResolution()},
		loc, ext,
		&stubFetcher{body: []byte(validPayload)},
		sink,
		Options{BettingTypeIDs: []int{1}, ScopeIDs: []int{2}},
	)

	summary, err := p.Run(context.Background(), "https://s.test/f/e/pl")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Matches != 3 {
		t.Errorf("matches = %d, want 3 after cross-season dedupe", summary.Matches)
	}
	if summary.Succeeded != 2 {
		t.Errorf("succeeded = %d, want 2", summary.Succeeded)
	}
	if summary.Skipped != 1 {
		t.Errorf("skipped = %d, want 1", summary.Skipped)
	}
	if summary.Failed != 0 {
		t.Errorf("failed = %d, want 0", summary.Failed)
	}
	if summary.Snapshots != 6 {
		t.Errorf("snapshots = %d, want 6 (3 outcomes x 2 matches)", summary.Snapshots)
	}
	if summary.HistoryPoints != 2 {
		t.Errorf("history points = %d, want 2", summary.HistoryPoints)
	}

	if sink.league == nil || sink.league.LeagueID != "L1" {
		t.Error("league not saved")
	}
	if len(sink.seasons) != 2 {
		t.Errorf("%d seasons saved", len(sink.seasons))
	}
	if len(sink.matches) != 3 {
		t.Errorf("%d matches saved", len(sink.matches))
	}
	if len(sink.snapshots) != 6 {
		t.Errorf("%d snapshots saved", len(sink.snapshots))
	}

	// m1 started, m3 not: closing-line semantics follow extraction.
	for _, snap := range sink.snapshots {
		want := snap.MatchID == "m1"
		if snap.IsClosingLine != want {
			t.Errorf("match %s closing line = %t", snap.MatchID, snap.IsClosingLine)
		}
	}

	skip := summary.Outcomes[1]
	if !skip.Skipped || skip.Reason == "" {
		t.Errorf("skip outcome not recorded: %+v", skip)
	}
}

func TestRunStructuralResolveAborts(t *testing.T) {
	p := newTestPipeline(
		&stubResolver{err: errs.Structural("resolver", "no seasons found")},
		&stubLocator{}, &stubExtractor{}, &stubFetcher{}, nil,
		Options{},
	)

	_, err := p.Run(context.Background(), "https://s.test/f/e/pl")
	if !errs.IsStructural(err) {
		t.Fatalf("want structural error, got %v", err)
	}
}

func TestRunStructuralLocateAborts(t *testing.T) {
	p := newTestPipeline(
		&stubResolver{resolution: testResolution()},
		&stubLocator{err: errs.Structural("locator", "archive endpoint pattern not found")},
		&stubExtractor{}, &stubFetcher{}, nil,
		Options{},
	)

	_, err := p.Run(context.Background(), "https://s.test/f/e/pl")
	if !errs.IsStructural(err) {
		t.Fatalf("want structural error, got %v", err)
	}
}

func TestRunMatchFailureDoesNotAbortBatch(t *testing.T) {
	loc := &stubLocator{matches: map[string][]model.MatchRef{
		"current/results": {
			{MatchID: "m1", MatchURL: "https://s.test/m/m1", SeasonID: "current"},
			{MatchID: "m2", MatchURL: "https://s.test/m/m2", SeasonID: "current"},
		},
	}}
	ext := &stubExtractor{
		params: map[string]model.MatchAccessParams{
			"https://s.test/m/m2": {MatchID: "m2", SportID: 1, AccessToken: "t2", ProtocolVersion: "1"},
		},
		errs: map[string]error{
			"https://s.test/m/m1": fmt.Errorf("fetch match page: connection reset"),
		},
	}

	p := newTestPipeline(
		&stubResolver{resolution: &resolver.Resolution{
			League:  model.LeagueIdentity{SportID: 1, LeagueID: "L1"},
			Seasons: []model.Season{{SeasonID: "current", IsCurrent: true, HasResults: true}},
		}},
		loc, ext,
		&stubFetcher{body: []byte(validPayload)},
		nil,
		Options{BettingTypeIDs: []int{1}, ScopeIDs: []int{2}},
	)

	summary, err := p.Run(context.Background(), "https://s.test/f/e/pl")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Failed != 1 || summary.Succeeded != 1 {
		t.Errorf("failed=%d succeeded=%d, want 1/1", summary.Failed, summary.Succeeded)
	}
}

func TestRunStructuralExtractAbortsRemainingMatches(t *testing.T) {
	loc := &stubLocator{matches: map[string][]model.MatchRef{
		"current/results": {
			{MatchID: "m1", MatchURL: "https://s.test/m/m1", SeasonID: "current"},
			{MatchID: "m2", MatchURL: "https://s.test/m/m2", SeasonID: "current"},
			{MatchID: "m3", MatchURL: "https://s.test/m/m3", SeasonID: "current"},
		},
	}}
	// The page layout changed, so every extraction fails identically.
	ext := &stubExtractor{errs: map[string]error{
		"https://s.test/m/m1": errs.Structural("extractor", "react event header component missing"),
		"https://s.test/m/m2": errs.Structural("extractor", "react event header component missing"),
		"https://s.test/m/m3": errs.Structural("extractor", "react event header component missing"),
	}}

	p := newTestPipeline(
		&stubResolver{resolution: &resolver.Resolution{
			League:  model.LeagueIdentity{SportID: 1, LeagueID: "L1"},
			Seasons: []model.Season{{SeasonID: "current", IsCurrent: true, HasResults: true}},
		}},
		loc, ext,
		&stubFetcher{body: []byte(validPayload)},
		nil,
		Options{BettingTypeIDs: []int{1}, ScopeIDs: []int{2}},
	)

	summary, err := p.Run(context.Background(), "https://s.test/f/e/pl")
	if !errs.IsStructural(err) {
		t.Fatalf("want structural error, got %v", err)
	}
	if ext.calls != 1 {
		t.Errorf("extractor called %d times, want 1 (remaining matches must not run)", ext.calls)
	}
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	if len(summary.Outcomes) != 1 {
		t.Errorf("outcomes = %d, want 1", len(summary.Outcomes))
	}
}

func TestRunStructuralSelectorFailureAborts(t *testing.T) {
	loc := &stubLocator{matches: map[string][]model.MatchRef{
		"current/results": {
			{MatchID: "m1", MatchURL: "https://s.test/m/m1", SeasonID: "current"},
			{MatchID: "m2", MatchURL: "https://s.test/m/m2", SeasonID: "current"},
		},
	}}
	ext := &stubExtractor{params: map[string]model.MatchAccessParams{
		"https://s.test/m/m1": {MatchID: "m1", SportID: 1, AccessToken: "t1", ProtocolVersion: "1"},
		"https://s.test/m/m2": {MatchID: "m2", SportID: 1, AccessToken: "t2", ProtocolVersion: "1"},
	}}
	sink := &recordingSink{}

	p := newTestPipeline(
		&stubResolver{resolution: &resolver.Resolution{
			League:  model.LeagueIdentity{SportID: 1, LeagueID: "L1"},
			Seasons: []model.Season{{SeasonID: "current", IsCurrent: true, HasResults: true}},
		}},
		loc, ext,
		&stubFetcher{
			body: []byte(validPayload),
			failures: []oddsfetcher.SelectorFailure{{
				Selector: model.MarketSelector{MatchID: "m1", BettingTypeID: 2, ScopeID: 2},
				Err:      errs.Structural("fetcher", "odds endpoint moved"),
			}},
		},
		sink,
		Options{BettingTypeIDs: []int{1}, ScopeIDs: []int{2}},
	)

	_, err := p.Run(context.Background(), "https://s.test/f/e/pl")
	if !errs.IsStructural(err) {
		t.Fatalf("want structural error, got %v", err)
	}
	if ext.calls != 1 {
		t.Errorf("extractor called %d times, want 1", ext.calls)
	}
	// The payloads fetched before the failure still land.
	if len(sink.snapshots) != 3 {
		t.Errorf("%d snapshots saved, want 3", len(sink.snapshots))
	}
}

func TestRunCurrentSeasonOnly(t *testing.T) {
	loc := &stubLocator{matches: map[string][]model.MatchRef{
		"current/results":   {{MatchID: "m1", MatchURL: "https://s.test/m/m1", SeasonID: "current"}},
		"2022-2023/results": {{MatchID: "m9", MatchURL: "https://s.test/m/m9", SeasonID: "2022-2023"}},
	}}
	ext := &stubExtractor{params: map[string]model.MatchAccessParams{
		"https://s.test/m/m1": {MatchID: "m1", SportID: 1, AccessToken: "t1", ProtocolVersion: "1"},
	}}

	p := newTestPipeline(
		&stubResolver{resolution: testResolution()},
		loc, ext,
		&stubFetcher{body: []byte(validPayload)},
		nil,
		Options{BettingTypeIDs: []int{1}, ScopeIDs: []int{2}, CurrentSeasonOnly: true},
	)

	summary, err := p.Run(context.Background(), "https://s.test/f/e/pl")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Seasons != 1 {
		t.Errorf("seasons = %d, want 1", summary.Seasons)
	}
	if summary.Matches != 1 {
		t.Errorf("matches = %d, want 1", summary.Matches)
	}
}

func TestRunUnavailablePayloadIsNotFailure(t *testing.T) {
	loc := &stubLocator{matches: map[string][]model.MatchRef{
		"current/results": {{MatchID: "m1", MatchURL: "https://s.test/m/m1", SeasonID: "current"}},
	}}
	ext := &stubExtractor{params: map[string]model.MatchAccessParams{
		"https://s.test/m/m1": {MatchID: "m1", SportID: 1, AccessToken: "t1", ProtocolVersion: "1"},
	}}

	p := newTestPipeline(
		&stubResolver{resolution: &resolver.Resolution{
			League:  model.LeagueIdentity{SportID: 1, LeagueID: "L1"},
			Seasons: []model.Season{{SeasonID: "current", IsCurrent: true, HasResults: true}},
		}},
		loc, ext,
		&stubFetcher{body: []byte(`{"s": 0, "d": {}}`)},
		nil,
		Options{BettingTypeIDs: []int{1}, ScopeIDs: []int{2}},
	)

	summary, err := p.Run(context.Background(), "https://s.test/f/e/pl")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Succeeded != 1 {
		t.Errorf("succeeded = %d, want 1 (unavailable is not a failure)", summary.Succeeded)
	}
	if summary.Snapshots != 0 {
		t.Errorf("snapshots = %d, want 0", summary.Snapshots)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loc := &stubLocator{matches: map[string][]model.MatchRef{
		"current/results": {{MatchID: "m1", MatchURL: "https://s.test/m/m1", SeasonID: "current"}},
	}}
	p := newTestPipeline(
		&stubResolver{resolution: &resolver.Resolution{
			League:  model.LeagueIdentity{SportID: 1, LeagueID: "L1"},
			Seasons: []model.Season{{SeasonID: "current", IsCurrent: true, HasResults: true}},
		}},
		loc, &stubExtractor{}, &stubFetcher{body: []byte(validPayload)}, nil,
		Options{},
	)

	if _, err := p.Run(ctx, "https://s.test/f/e/pl"); err == nil {
		t.Fatal("cancelled context should abort the run")
	}
}
