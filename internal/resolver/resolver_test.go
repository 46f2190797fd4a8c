package resolver

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"odds-crawler/internal/errs"
)

type fakeFetcher struct {
	pages map[string][]byte
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) ([]byte, error) {
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return body, nil
}

func (f *fakeFetcher) FetchData(_ context.Context, url, _ string) ([]byte, error) {
	return f.FetchPage(context.Background(), url)
}

const leagueURL = "https://s.test/football/england/premier-league"

func leaguePage() []byte {
	return []byte(`<html><body>
		<script>window.pageVar = {"sid":1,"id":"SbSJzWlu"};</script>
		<a href="/football/england/premier-league/fixtures/">Fixtures</a>
		<a href="/football/england/premier-league-2021-2022/results/">2021/2022</a>
		<a href="/football/england/premier-league-2022-2023/results/">2022/2023</a>
		<a href="/football/england/premier-league-2022-2023/results/">2022/2023 again</a>
	</body></html>`)
}

func TestResolveLeagueAndSeasons(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]byte{leagueURL + "/results/": leaguePage()}}
	res := New(fetcher, zerolog.Nop())

	resolution, err := res.Resolve(context.Background(), leagueURL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	league := resolution.League
	if league.SportID != 1 {
		t.Errorf("sport id = %d, want 1", league.SportID)
	}
	if league.LeagueID != "SbSJzWlu" {
		t.Errorf("league id = %q, want script id", league.LeagueID)
	}
	if league.CountryID != "ENGLAND" {
		t.Errorf("country = %q", league.CountryID)
	}

	// One current season plus the two deduplicated historical ones.
	if len(resolution.Seasons) != 3 {
		t.Fatalf("got %d seasons, want 3", len(resolution.Seasons))
	}

	current := 0
	for _, season := range resolution.Seasons {
		if season.IsCurrent {
			current++
		}
	}
	if current != 1 {
		t.Errorf("%d seasons marked current, want exactly 1", current)
	}

	if resolution.Seasons[0].SeasonID != "current" {
		t.Errorf("first season = %q, want current", resolution.Seasons[0].SeasonID)
	}
	if !resolution.Seasons[0].HasFixtures {
		t.Error("current season should carry fixtures when the page links them")
	}
	if resolution.Seasons[1].SeasonID != "2022-2023" || resolution.Seasons[2].SeasonID != "2021-2022" {
		t.Errorf("historical seasons not newest-first: %q, %q",
			resolution.Seasons[1].SeasonID, resolution.Seasons[2].SeasonID)
	}
	if resolution.Seasons[1].SeasonURL != leagueURL+"-2022-2023" {
		t.Errorf("historical season url = %q", resolution.Seasons[1].SeasonURL)
	}
}

func TestResolveMissingSportIDIsStructural(t *testing.T) {
	page := []byte(`<html><body><script>var x = 1;</script></body></html>`)
	fetcher := &fakeFetcher{pages: map[string][]byte{leagueURL + "/results/": page}}
	res := New(fetcher, zerolog.Nop())

	_, err := res.Resolve(context.Background(), leagueURL)
	if !errs.IsStructural(err) {
		t.Fatalf("want structural error, got %v", err)
	}
}

func TestResolveTrailingSlash(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]byte{leagueURL + "/results/": leaguePage()}}
	res := New(fetcher, zerolog.Nop())

	resolution, err := res.Resolve(context.Background(), leagueURL+"/")
	if err != nil {
		t.Fatalf("Resolve with trailing slash: %v", err)
	}
	if resolution.League.LeagueURL != leagueURL {
		t.Errorf("league url = %q, want normalized", resolution.League.LeagueURL)
	}
}
