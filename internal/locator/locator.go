// Package locator enumerates the matches of one season, paged from the
// source's archive endpoint for results and from embedded structured data
// for fixtures.
package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
	"odds-crawler/internal/model"
	"odds-crawler/internal/scraping"
)

// Options tune locator behaviour.
type Options struct {
	BaseURL        string
	TimezoneOffset string
	// MaxPages bounds results pagination; zero means all pages.
	MaxPages int
}

// Locator pages match lists out of a season.
type Locator struct {
	fetcher scraping.PageFetcher
	opts    Options
	logger  zerolog.Logger
}

// New constructs a Locator.
func New(fetcher scraping.PageFetcher, opts Options, logger zerolog.Logger) *Locator {
	if opts.TimezoneOffset == "" {
		opts.TimezoneOffset = "0"
	}
	return &Locator{
		fetcher: fetcher,
		opts:    opts,
		logger:  logger.With().Str("component", "locator").Logger(),
	}
}

var archivePatternRe = regexp.MustCompile(`/ajax-sport-country-tournament-archive_/(\d+)/([^/"]+)/([^/"]+)/`)

// archiveRef is the endpoint triple the season page embeds for its paged
// results archive.
type archiveRef struct {
	SportID   string
	EncodedID string
	BookieKey string
}

// Locate returns the full deduplicated match list for a season in source
// order. For paged results it drains a Pager; fixtures come from the season
// page in one shot.
func (l *Locator) Locate(ctx context.Context, season model.Season, mode model.Mode) ([]model.MatchRef, error) {
	if mode == model.ModeFixtures {
		return l.locateFixtures(ctx, season)
	}

	pager, err := l.NewPager(ctx, season)
	if err != nil {
		return nil, err
	}

	var all []model.MatchRef
	for {
		page, more, err := pager.Next(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if !more {
			return all, nil
		}
	}
}

// Pager walks the results archive one page at a time. It deduplicates by
// match id across pages (overlap pages repeat matches) and preserves source
// order, which is reverse-chronological for results.
type Pager struct {
	locator *Locator
	season  model.Season
	ref     archiveRef
	referer string

	page int
	seen map[string]bool
	done bool
}

// NewPager fetches the season results page once to discover the archive
// endpoint, then returns a pager positioned at page one.
func (l *Locator) NewPager(ctx context.Context, season model.Season) (*Pager, error) {
	resultsURL := strings.TrimRight(season.SeasonURL, "/") + "/results/"

	body, err := l.fetcher.FetchPage(ctx, resultsURL)
	if err != nil {
		return nil, fmt.Errorf("fetch season results page: %w", err)
	}

	m := archivePatternRe.FindSubmatch(body)
	if m == nil {
		return nil, errs.Structural("locator", "archive endpoint pattern not found on %s", resultsURL)
	}

	return &Pager{
		locator: l,
		season:  season,
		ref:     archiveRef{SportID: string(m[1]), EncodedID: string(m[2]), BookieKey: string(m[3])},
		referer: resultsURL,
		page:    1,
		seen:    make(map[string]bool),
	}, nil
}

// Seek positions the pager at an arbitrary page, enabling resumption
// without re-walking earlier pages.
func (p *Pager) Seek(page int) {
	if page > 0 {
		p.page = page
		p.done = false
	}
}

// Next fetches one archive page. The second return value reports whether
// more pages remain.
func (p *Pager) Next(ctx context.Context) ([]model.MatchRef, bool, error) {
	if p.done {
		return nil, false, nil
	}
	if p.locator.opts.MaxPages > 0 && p.page > p.locator.opts.MaxPages {
		p.done = true
		return nil, false, nil
	}

	url := fmt.Sprintf("%s/ajax-sport-country-tournament-archive_/%s/%s/%s/%d/%s/?_=%d",
		strings.TrimRight(p.locator.opts.BaseURL, "/"),
		p.ref.SportID, p.ref.EncodedID, p.ref.BookieKey,
		p.page, p.locator.opts.TimezoneOffset,
		time.Now().UnixMilli())

	body, err := p.locator.fetcher.FetchData(ctx, url, p.referer)
	if err != nil {
		return nil, false, fmt.Errorf("fetch results page %d: %w", p.page, err)
	}

	var envelope struct {
		S int `json:"s"`
		D struct {
			Rows       []resultRow `json:"rows"`
			Pagination struct {
				PageCount     int  `json:"pageCount"`
				HasPagination bool `json:"hasPagination"`
			} `json:"pagination"`
			Page int `json:"page"`
		} `json:"d"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false, errs.Structural("locator", "archive page %d is not valid JSON: %v", p.page, err)
	}
	if envelope.S != 1 {
		return nil, false, errs.Structural("locator", "archive page %d returned status %d", p.page, envelope.S)
	}

	matches := make([]model.MatchRef, 0, len(envelope.D.Rows))
	for _, row := range envelope.D.Rows {
		ref, ok := row.toMatchRef(p.season.SeasonID)
		if !ok || p.seen[ref.MatchID] {
			continue
		}
		p.seen[ref.MatchID] = true
		matches = append(matches, ref)
	}

	p.locator.logger.Debug().
		Int("page", p.page).
		Int("matches", len(matches)).
		Str("season", p.season.SeasonID).
		Msg("results page located")

	more := envelope.D.Pagination.HasPagination && p.page < envelope.D.Pagination.PageCount
	p.page++
	if !more {
		p.done = true
	}
	return matches, more, nil
}

// resultRow mirrors one row of the archive response.
type resultRow struct {
	EncodeEventID  string          `json:"encodeEventId"`
	URL            string          `json:"url"`
	HomeName       string          `json:"home-name"`
	AwayName       string          `json:"away-name"`
	StartTimestamp int64           `json:"date-start-timestamp"`
	StatusID       json.RawMessage `json:"status-id"`
	EventStageName string          `json:"event-stage-name"`
}

func (r resultRow) toMatchRef(seasonID string) (model.MatchRef, bool) {
	if r.EncodeEventID == "" {
		return model.MatchRef{}, false
	}
	return model.MatchRef{
		MatchID:  r.EncodeEventID,
		MatchURL: r.URL,
		SeasonID: seasonID,
		Kickoff:  time.Unix(r.StartTimestamp, 0).UTC(),
		Status:   statusFromStage(r.EventStageName, model.StatusFinished),
		HomeTeam: r.HomeName,
		AwayTeam: r.AwayName,
	}, true
}

// locateFixtures reads upcoming matches from the JSON-LD SportsEvent blocks
// on the season page. Fixtures are a single page and chronological.
func (l *Locator) locateFixtures(ctx context.Context, season model.Season) ([]model.MatchRef, error) {
	pageURL := strings.TrimRight(strings.TrimSuffix(season.SeasonURL, "/results/"), "/")

	body, err := l.fetcher.FetchPage(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch fixtures page: %w", err)
	}

	events := extractJSONLDEvents(body)
	if len(events) == 0 {
		return nil, errs.Structural("locator", "no fixture data on %s", pageURL)
	}

	seen := make(map[string]bool)
	matches := make([]model.MatchRef, 0, len(events))
	for _, ev := range events {
		ref, ok := ev.toMatchRef(season.SeasonID)
		if !ok || seen[ref.MatchID] {
			continue
		}
		seen[ref.MatchID] = true
		matches = append(matches, ref)
	}

	l.logger.Debug().Int("matches", len(matches)).Str("season", season.SeasonID).Msg("fixtures located")
	return matches, nil
}

var (
	jsonLDRe        = regexp.MustCompile(`(?s)<script[^>]+application/ld\+json[^>]*>(.*?)</script>`)
	matchIDTail     = regexp.MustCompile(`-([a-zA-Z0-9]+)/?$`)
	statusScheduled = "https://schema.org/EventScheduled"
)

type jsonLDEvent struct {
	Type        json.RawMessage `json:"@type"`
	Name        string          `json:"name"`
	URL         string          `json:"url"`
	StartDate   string          `json:"startDate"`
	EventStatus string          `json:"eventStatus"`
}

func (ev jsonLDEvent) toMatchRef(seasonID string) (model.MatchRef, bool) {
	if !bytesContains(ev.Type, "SportsEvent") {
		return model.MatchRef{}, false
	}
	m := matchIDTail.FindStringSubmatch(ev.URL)
	if m == nil {
		return model.MatchRef{}, false
	}

	home, away := splitTeams(ev.Name)

	var kickoff time.Time
	if ev.StartDate != "" {
		if parsed, err := time.Parse(time.RFC3339, ev.StartDate); err == nil {
			kickoff = parsed.UTC()
		}
	}

	status := model.StatusScheduled
	if ev.EventStatus != "" && ev.EventStatus != statusScheduled {
		status = statusFromStage(ev.EventStatus, model.StatusScheduled)
	}

	return model.MatchRef{
		MatchID:  m[1],
		MatchURL: ev.URL,
		SeasonID: seasonID,
		Kickoff:  kickoff,
		Status:   status,
		HomeTeam: home,
		AwayTeam: away,
	}, true
}

func extractJSONLDEvents(body []byte) []jsonLDEvent {
	var events []jsonLDEvent
	for _, m := range jsonLDRe.FindAllSubmatch(body, -1) {
		var ev jsonLDEvent
		if err := json.Unmarshal(m[1], &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events
}

func bytesContains(raw json.RawMessage, needle string) bool {
	return strings.Contains(string(raw), needle)
}

func splitTeams(name string) (home, away string) {
	parts := strings.SplitN(name, " - ", 2)
	if len(parts) != 2 {
		return strings.TrimSpace(name), ""
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
}

func statusFromStage(stage string, fallback model.MatchStatus) model.MatchStatus {
	lowered := strings.ToLower(stage)
	switch {
	case strings.Contains(lowered, "postponed"):
		return model.StatusPostponed
	case strings.Contains(lowered, "cancel"):
		return model.StatusCancelled
	case strings.Contains(lowered, "live"):
		return model.StatusLive
	default:
		return fallback
	}
}
