package locator

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
	"odds-crawler/internal/model"
)

type fakeFetcher struct {
	page func(url string) ([]byte, error)
	data func(url, referer string) ([]byte, error)
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) ([]byte, error) {
	return f.page(url)
}

func (f *fakeFetcher) FetchData(_ context.Context, url, referer string) ([]byte, error) {
	return f.data(url, referer)
}

func testSeason() model.Season {
	return model.Season{
		SeasonID:   "current",
		LeagueID:   "SbSJzWlu",
		IsCurrent:  true,
		HasResults: true,
		SeasonURL:  "https://s.test/football/england/premier-league",
	}
}

func seasonResultsPage() []byte {
	return []byte(`<html><body>
		<script>fetch("/ajax-sport-country-tournament-archive_/1/SbSJzWlu/X0/1/0/");</script>
	</body></html>`)
}

func archivePage(rows string, page, pageCount int) []byte {
	return []byte(fmt.Sprintf(`{
		"s": 1,
		"d": {
			"rows": [%s],
			"pagination": {"pageCount": %d, "hasPagination": true},
			"page": %d
		}
	}`, rows, pageCount, page))
}

func row(id, home, away string, ts int64) string {
	return fmt.Sprintf(`{"encodeEventId": %q, "url": "https://s.test/m/%s", "home-name": %q, "away-name": %q, "date-start-timestamp": %d, "event-stage-name": "Finished"}`,
		id, id, home, away, ts)
}

func newTestLocator(fetcher *fakeFetcher, maxPages int) *Locator {
	return New(fetcher, Options{
		BaseURL:        "https://s.test",
		TimezoneOffset: "0",
		MaxPages:       maxPages,
	}, zerolog.Nop())
}

func pagedFetcher(t *testing.T) *fakeFetcher {
	t.Helper()
	return &fakeFetcher{
		page: func(url string) ([]byte, error) {
			if !strings.HasSuffix(url, "/results/") {
				return nil, fmt.Errorf("unexpected page url %s", url)
			}
			return seasonResultsPage(), nil
		},
		data: func(url, referer string) ([]byte, error) {
			if referer == "" {
				t.Error("archive request missing referer")
			}
			switch {
			case strings.Contains(url, "/SbSJzWlu/X0/1/0/"):
				rows := row("m1", "Arsenal", "Chelsea", 1700000000) + "," + row("m2", "Leeds", "Everton", 1699990000)
				return archivePage(rows, 1, 2), nil
			case strings.Contains(url, "/SbSJzWlu/X0/2/0/"):
				// m2 repeats on the overlap; dedupe keeps only m3.
				rows := row("m2", "Leeds", "Everton", 1699990000) + "," + row("m3", "Spurs", "Wolves", 1699980000)
				return archivePage(rows, 2, 2), nil
			default:
				return nil, fmt.Errorf("unexpected data url %s", url)
			}
		},
	}
}

func TestLocateResultsPaged(t *testing.T) {
	loc := newTestLocator(pagedFetcher(t), 0)

	matches, err := loc.Locate(context.Background(), testSeason(), model.ModeResults)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3 after dedupe", len(matches))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if matches[i].MatchID != want {
			t.Errorf("matches[%d] = %q, want %q (source order)", i, matches[i].MatchID, want)
		}
	}
	if matches[0].Status != model.StatusFinished {
		t.Errorf("status = %q", matches[0].Status)
	}
	if matches[0].HomeTeam != "Arsenal" || matches[0].AwayTeam != "Chelsea" {
		t.Errorf("teams = %q / %q", matches[0].HomeTeam, matches[0].AwayTeam)
	}
	if matches[0].Kickoff.Unix() != 1700000000 {
		t.Errorf("kickoff = %v", matches[0].Kickoff)
	}
}

func TestPagerSeekResumesMidSequence(t *testing.T) {
	loc := newTestLocator(pagedFetcher(t), 0)

	pager, err := loc.NewPager(context.Background(), testSeason())
	if err != nil {
		t.Fatalf("NewPager: %v", err)
	}
	pager.Seek(2)

	matches, more, err := pager.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if more {
		t.Error("last page reported more")
	}
	// Without page one's dedupe state, the overlap row m2 reappears.
	if len(matches) != 2 {
		t.Fatalf("got %d matches on page 2, want 2", len(matches))
	}
	if matches[0].MatchID != "m2" || matches[1].MatchID != "m3" {
		t.Errorf("page 2 = %q, %q", matches[0].MatchID, matches[1].MatchID)
	}
}

func TestLocateMaxPages(t *testing.T) {
	loc := newTestLocator(pagedFetcher(t), 1)

	matches, err := loc.Locate(context.Background(), testSeason(), model.ModeResults)
	if err != nil {
		t.Fatalf("Locate: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches with max_pages=1, want 2", len(matches))
	}
}

func TestLocateArchiveErrorStatusIsStructural(t *testing.T) {
	fetcher := &fakeFetcher{
		page: func(string) ([]byte, error) { return seasonResultsPage(), nil },
		data: func(string, string) ([]byte, error) { return []byte(`{"s": 0, "d": {}}`), nil },
	}
	loc := newTestLocator(fetcher, 0)

	_, err := loc.Locate(context.Background(), testSeason(), model.ModeResults)
	if !errs.IsStructural(err) {
		t.Fatalf("want structural error, got %v", err)
	}
}

func TestLocateMissingArchivePatternIsStructural(t *testing.T) {
	fetcher := &fakeFetcher{
		page: func(string) ([]byte, error) { return []byte(`<html><body>redesigned</body></html>`), nil },
	}
	loc := newTestLocator(fetcher, 0)

	_, err := loc.Locate(context.Background(), testSeason(), model.ModeResults)
	if !errs.IsStructural(err) {
		t.Fatalf("want structural error, got %v", err)
	}
}

func TestLocateFixturesFromJSONLD(t *testing.T) {
	page := []byte(`<html><head>
		<script type="application/ld+json">{"@type":"SportsEvent","name":"Arsenal - Chelsea","url":"https://s.test/football/england/premier-league/arsenal-chelsea-f1","startDate":"2026-09-01T15:00:00Z","eventStatus":"https://schema.org/EventScheduled"}</script>
		<script type="application/ld+json">{"@type":"SportsEvent","name":"Leeds - Everton","url":"https://s.test/football/england/premier-league/leeds-everton-f2","startDate":"2026-09-02T15:00:00Z","eventStatus":"https://schema.org/EventPostponed"}</script>
		<script type="application/ld+json">{"@type":"Organization","name":"not a match"}</script>
	</head><body></body></html>`)
	fetcher := &fakeFetcher{
		page: func(string) ([]byte, error) { return page, nil },
	}
	loc := newTestLocator(fetcher, 0)

	matches, err := loc.Locate(context.Background(), testSeason(), model.ModeFixtures)
	if err != nil {
		t.Fatalf("Locate fixtures: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d fixtures, want 2", len(matches))
	}
	if matches[0].MatchID != "f1" {
		t.Errorf("match id = %q, want url tail", matches[0].MatchID)
	}
	if matches[0].Status != model.StatusScheduled {
		t.Errorf("status = %q, want scheduled", matches[0].Status)
	}
	if matches[1].Status != model.StatusPostponed {
		t.Errorf("postponed status = %q", matches[1].Status)
	}
	if matches[0].HomeTeam != "Arsenal" || matches[0].AwayTeam != "Chelsea" {
		t.Errorf("teams = %q / %q", matches[0].HomeTeam, matches[0].AwayTeam)
	}
	if matches[0].Kickoff.IsZero() {
		t.Error("kickoff not parsed")
	}
}

func TestLocateFixturesEmptyPageIsStructural(t *testing.T) {
	fetcher := &fakeFetcher{
		page: func(string) ([]byte, error) { return []byte(`<html><body></body></html>`), nil },
	}
	loc := newTestLocator(fetcher, 0)

	_, err := loc.Locate(context.Background(), testSeason(), model.ModeFixtures)
	if !errs.IsStructural(err) {
		t.Fatalf("want structural error, got %v", err)
	}
}
